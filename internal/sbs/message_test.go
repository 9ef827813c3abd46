package sbs

import (
	"testing"
	"time"
)

const sampleRecord = "MSG,3,1,1,A1B2C3,1,2024/01/01,00:00:00,2024/01/01,00:00:00,UAL123,35000,450,90,40.1,-75.2,,,,,,0"

func TestDecode_FullRecord(t *testing.T) {
	m := Decode(sampleRecord)

	if m.Type != "MSG" {
		t.Errorf("Type = %q, want MSG", m.Type)
	}
	if m.Transmission != "3" {
		t.Errorf("Transmission = %q, want 3", m.Transmission)
	}
	if m.Hex != "A1B2C3" {
		t.Errorf("Hex = %q, want A1B2C3", m.Hex)
	}
	if m.Callsign != "UAL123" {
		t.Errorf("Callsign = %q, want UAL123", m.Callsign)
	}
	if m.Altitude != "35000" {
		t.Errorf("Altitude = %q, want 35000", m.Altitude)
	}
	if m.Latitude != "40.1" || m.Longitude != "-75.2" {
		t.Errorf("position = (%q, %q), want (40.1, -75.2)", m.Latitude, m.Longitude)
	}
	if m.Grounded != "0" {
		t.Errorf("Grounded = %q, want 0", m.Grounded)
	}
	if !m.IsStateUpdate() {
		t.Error("IsStateUpdate() = false, want true")
	}
	if !m.HasPosition() {
		t.Error("HasPosition() = false, want true")
	}
}

func TestDecode_ShortRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"type only", "MSG"},
		{"five fields", "MSG,8,1,1,7C6B2D"},
		{"single comma", ","},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Decode(tt.line)
			// Missing fields degrade to blank, never panic.
			if m.Grounded != "" {
				t.Errorf("Grounded = %q, want blank", m.Grounded)
			}
			if m.Callsign != "" {
				t.Errorf("Callsign = %q, want blank", m.Callsign)
			}
		})
	}
}

func TestDecode_ExtraFieldsIgnored(t *testing.T) {
	m := Decode(sampleRecord + ",junk,more")
	if m.Grounded != "0" {
		t.Errorf("Grounded = %q, want 0", m.Grounded)
	}
}

func TestDecode_IdentifiersUppercased(t *testing.T) {
	m := Decode("MSG,3,1,1,a1b2c3,1,,,,,ual123,,,,,,,,,,,")
	if m.Hex != "A1B2C3" {
		t.Errorf("Hex = %q, want A1B2C3", m.Hex)
	}
	if m.Callsign != "UAL123" {
		t.Errorf("Callsign = %q, want UAL123", m.Callsign)
	}
}

func TestDecode_TrimsWhitespace(t *testing.T) {
	m := Decode("MSG,3,1,1,A1B2C3,1,,,,, UAL123 ,,,,,,,,,,,")
	if m.Callsign != "UAL123" {
		t.Errorf("Callsign = %q, want UAL123", m.Callsign)
	}
}

func TestIsStateUpdate(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"msg with hex", sampleRecord, true},
		{"sel record", "SEL,,1,1,A1B2C3,1,2024/01/01,00:00:00", false},
		{"id record", "ID,,1,1,A1B2C3,1", false},
		{"msg without hex", "MSG,3,1,1,,1", false},
		{"junk", "not a record at all", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode(tt.line).IsStateUpdate(); got != tt.want {
				t.Errorf("IsStateUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdate_Sparse(t *testing.T) {
	// Only altitude supplied: every other attribute must be absent so the
	// store cannot erase prior state.
	m := Decode("MSG,5,1,1,A1B2C3,1,2024/01/01,00:00:01,2024/01/01,00:00:01,,36000,,,,,,,,,,")
	u := m.Update()

	if u.Altitude == nil || *u.Altitude != 36000 {
		t.Fatalf("Altitude = %v, want 36000", u.Altitude)
	}
	if u.Callsign != nil {
		t.Errorf("Callsign present, want nil")
	}
	if u.Latitude != nil || u.Longitude != nil {
		t.Errorf("position present, want nil")
	}
	if u.Grounded != nil {
		t.Errorf("Grounded present, want nil")
	}
}

func TestUpdate_FullRecord(t *testing.T) {
	u := Decode(sampleRecord).Update()

	if u.Callsign == nil || *u.Callsign != "UAL123" {
		t.Errorf("Callsign = %v, want UAL123", u.Callsign)
	}
	if u.Altitude == nil || *u.Altitude != 35000 {
		t.Errorf("Altitude = %v, want 35000", u.Altitude)
	}
	if u.GroundSpeed == nil || *u.GroundSpeed != 450 {
		t.Errorf("GroundSpeed = %v, want 450", u.GroundSpeed)
	}
	if u.Track == nil || *u.Track != 90 {
		t.Errorf("Track = %v, want 90", u.Track)
	}
	if u.Latitude == nil || *u.Latitude != 40.1 {
		t.Errorf("Latitude = %v, want 40.1", u.Latitude)
	}
	if u.Longitude == nil || *u.Longitude != -75.2 {
		t.Errorf("Longitude = %v, want -75.2", u.Longitude)
	}
	if u.Grounded == nil || *u.Grounded != false {
		t.Errorf("Grounded = %v, want false", u.Grounded)
	}
}

func TestUpdate_GroundedConvention(t *testing.T) {
	tests := []struct {
		value string
		want  *bool
	}{
		{"-1", boolPtr(true)},
		{"0", boolPtr(false)},
		{"1", boolPtr(true)},
		{"", nil},
		{"garbage", nil},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			m := Decode("MSG,3,1,1,A1B2C3,1,,,,,,,,,,,,,,,," + tt.value)
			u := m.Update()
			switch {
			case tt.want == nil && u.Grounded != nil:
				t.Errorf("Grounded = %v, want nil", *u.Grounded)
			case tt.want != nil && (u.Grounded == nil || *u.Grounded != *tt.want):
				t.Errorf("Grounded = %v, want %v", u.Grounded, *tt.want)
			}
		})
	}
}

func TestTimestamp(t *testing.T) {
	fallback := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("from record", func(t *testing.T) {
		m := Decode("MSG,3,1,1,A1B2C3,1,2024/03/15,10:20:30.500,,,,,,,,,,,,,,")
		got := m.Timestamp(fallback)
		want := time.Date(2024, 3, 15, 10, 20, 30, 500_000_000, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Timestamp = %v, want %v", got, want)
		}
	})

	t.Run("no fractional seconds", func(t *testing.T) {
		m := Decode("MSG,3,1,1,A1B2C3,1,2024/03/15,10:20:30,,,,,,,,,,,,,,")
		got := m.Timestamp(fallback)
		want := time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Timestamp = %v, want %v", got, want)
		}
	})

	t.Run("blank falls back", func(t *testing.T) {
		m := Decode("MSG,3,1,1,A1B2C3")
		if got := m.Timestamp(fallback); !got.Equal(fallback) {
			t.Errorf("Timestamp = %v, want fallback", got)
		}
	})

	t.Run("garbage falls back", func(t *testing.T) {
		m := Decode("MSG,3,1,1,A1B2C3,1,notadate,nottime,,,,,,,,,,,,,,")
		if got := m.Timestamp(fallback); !got.Equal(fallback) {
			t.Errorf("Timestamp = %v, want fallback", got)
		}
	})
}

func boolPtr(v bool) *bool { return &v }
