package store

import (
	"context"
	"testing"
	"time"

	"sbs_tracker/internal/sbs"
	"sbs_tracker/internal/session"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite("")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// record builds a Record the way the ingestion loop does, from a raw wire
// line, with the timestamp offset from baseTime.
func record(line string, offset time.Duration) Record {
	msg := sbs.Decode(line)
	return Record{
		Hex:       msg.Hex,
		Timestamp: baseTime.Add(offset),
		Update:    msg.Update(),
	}
}

func TestApplyRecord_PartialUpdatePreservesState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	full := record("MSG,3,1,1,A1B2C3,1,,,,,UAL123,35000,450,90,40.1,-75.2,,,,,,0", 0)
	if err := s.ApplyRecord(ctx, full); err != nil {
		t.Fatalf("ApplyRecord full: %v", err)
	}

	// Altitude only: everything else must survive.
	partial := record("MSG,5,1,1,A1B2C3,1,,,,,,36000,,,,,,,,,,", time.Minute)
	if err := s.ApplyRecord(ctx, partial); err != nil {
		t.Fatalf("ApplyRecord partial: %v", err)
	}

	a, err := s.GetAircraft(ctx, "A1B2C3")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a == nil {
		t.Fatal("aircraft missing")
	}
	if a.Altitude == nil || *a.Altitude != 36000 {
		t.Errorf("Altitude = %v, want 36000", a.Altitude)
	}
	if a.Callsign != "UAL123" {
		t.Errorf("Callsign = %q, want UAL123 preserved", a.Callsign)
	}
	if a.Latitude == nil || *a.Latitude != 40.1 {
		t.Errorf("Latitude = %v, want 40.1 preserved", a.Latitude)
	}
	if a.Longitude == nil || *a.Longitude != -75.2 {
		t.Errorf("Longitude = %v, want -75.2 preserved", a.Longitude)
	}
	if a.Grounded == nil || *a.Grounded != false {
		t.Errorf("Grounded = %v, want false preserved", a.Grounded)
	}
	if !a.UpdatedAt.After(a.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", a.UpdatedAt, a.CreatedAt)
	}
}

func TestApplyRecord_OneRowPerHex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := record("MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,-75.2,,,,,,", time.Duration(i)*time.Second)
		if err := s.ApplyRecord(ctx, rec); err != nil {
			t.Fatalf("ApplyRecord: %v", err)
		}
	}

	list, err := s.ListAircraft(ctx)
	if err != nil {
		t.Fatalf("ListAircraft: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListAircraft = %d rows, want 1", len(list))
	}
}

func TestApplyRecord_PositionRequiresBothCoordinates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		line string
		want int
	}{
		{"lat only", "MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,,,,,,,", 0},
		{"lon only", "MSG,3,1,1,A1B2C3,1,,,,,,,,,,-75.2,,,,,,", 0},
		{"neither", "MSG,5,1,1,A1B2C3,1,,,,,,36000,,,,,,,,,,", 0},
		{"both", "MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,-75.2,,,,,,", 1},
	}

	total := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.ApplyRecord(ctx, record(tt.line, time.Duration(total)*time.Second)); err != nil {
				t.Fatalf("ApplyRecord: %v", err)
			}
			total += tt.want
			samples, err := s.Track(ctx, "A1B2C3", 100)
			if err != nil {
				t.Fatalf("Track: %v", err)
			}
			if len(samples) != total {
				t.Errorf("history has %d samples, want %d", len(samples), total)
			}
		})
	}
}

func TestTrack_OldestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := record("MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,-75.2,,,,,,", time.Duration(i)*time.Minute)
		if err := s.ApplyRecord(ctx, rec); err != nil {
			t.Fatalf("ApplyRecord: %v", err)
		}
	}

	samples, err := s.Track(ctx, "A1B2C3", 3)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}

	// The limit keeps the newest samples; serving order is oldest first.
	want := []time.Time{
		baseTime.Add(2 * time.Minute),
		baseTime.Add(3 * time.Minute),
		baseTime.Add(4 * time.Minute),
	}
	for i, w := range want {
		if !samples[i].Timestamp.Equal(w) {
			t.Errorf("sample %d at %v, want %v", i, samples[i].Timestamp, w)
		}
	}
}

func TestGetAircraft_CaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ApplyRecord(ctx, record("MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,-75.2,,,,,,", 0)); err != nil {
		t.Fatalf("ApplyRecord: %v", err)
	}

	a, err := s.GetAircraft(ctx, "a1b2c3")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a == nil || a.Hex != "A1B2C3" {
		t.Errorf("GetAircraft(a1b2c3) = %+v, want hex A1B2C3", a)
	}

	missing, err := s.GetAircraft(ctx, "FFFFFF")
	if err != nil {
		t.Fatalf("GetAircraft missing: %v", err)
	}
	if missing != nil {
		t.Errorf("GetAircraft(FFFFFF) = %+v, want nil", missing)
	}
}

func TestListAircraft_RequiresPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// One aircraft with a position, one seen only via altitude.
	if err := s.ApplyRecord(ctx, record("MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,-75.2,,,,,,", 0)); err != nil {
		t.Fatalf("ApplyRecord: %v", err)
	}
	if err := s.ApplyRecord(ctx, record("MSG,5,1,1,D4E5F6,1,,,,,,36000,,,,,,,,,,", 0)); err != nil {
		t.Fatalf("ApplyRecord: %v", err)
	}

	list, err := s.ListAircraft(ctx)
	if err != nil {
		t.Fatalf("ListAircraft: %v", err)
	}
	if len(list) != 1 || list[0].Hex != "A1B2C3" {
		t.Errorf("ListAircraft = %+v, want only A1B2C3", list)
	}

	// The positionless aircraft still exists for direct lookup.
	a, err := s.GetAircraft(ctx, "D4E5F6")
	if err != nil || a == nil {
		t.Errorf("GetAircraft(D4E5F6) = (%+v, %v), want row", a, err)
	}
}

func TestApplyRecord_SessionInsertAndTouch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	open := record("MSG,3,1,1,A1B2C3,1,,,,,UAL123,,,,40.1,-75.2,,,,,,", 0)
	open.Session = &session.Assignment{
		ID: 7, Callsign: "UAL123", Opened: true,
		FirstSeen: baseTime, LastSeen: baseTime,
	}
	if err := s.ApplyRecord(ctx, open); err != nil {
		t.Fatalf("ApplyRecord open: %v", err)
	}

	later := baseTime.Add(10 * time.Minute)
	touch := record("MSG,3,1,1,A1B2C3,1,,,,,UAL123,,,,40.2,-75.3,,,,,,", 10*time.Minute)
	touch.Session = &session.Assignment{
		ID: 7, Callsign: "UAL123",
		FirstSeen: baseTime, LastSeen: later,
	}
	if err := s.ApplyRecord(ctx, touch); err != nil {
		t.Fatalf("ApplyRecord touch: %v", err)
	}

	sessions, err := s.Sessions(ctx, "UAL123")
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.ID != 7 || got.Hex != "A1B2C3" {
		t.Errorf("session = %+v, want id 7 hex A1B2C3", got)
	}
	if !got.FirstSeen.Equal(baseTime) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, baseTime)
	}
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}

	id, err := s.MaxSessionID(ctx)
	if err != nil {
		t.Fatalf("MaxSessionID: %v", err)
	}
	if id != 7 {
		t.Errorf("MaxSessionID = %d, want 7", id)
	}
}

func TestSessions_MixedCaseWireCallsign(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// The wire may carry a lower-case callsign; decode normalizes it, so
	// the stored session matches the uppercased query.
	msg := sbs.Decode("MSG,3,1,1,A1B2C3,1,,,,,ual123,,,,40.1,-75.2,,,,,,")
	rec := Record{Hex: msg.Hex, Timestamp: baseTime, Update: msg.Update()}
	rec.Session = &session.Assignment{
		ID: 1, Callsign: msg.Callsign, Opened: true,
		FirstSeen: baseTime, LastSeen: baseTime,
	}
	if err := s.ApplyRecord(ctx, rec); err != nil {
		t.Fatalf("ApplyRecord: %v", err)
	}

	for _, query := range []string{"ual123", "UAL123"} {
		sessions, err := s.Sessions(ctx, query)
		if err != nil {
			t.Fatalf("Sessions(%q): %v", query, err)
		}
		if len(sessions) != 1 || sessions[0].Callsign != "UAL123" {
			t.Errorf("Sessions(%q) = %+v, want one UAL123 session", query, sessions)
		}
	}

	a, err := s.GetAircraft(ctx, "A1B2C3")
	if err != nil || a == nil {
		t.Fatalf("GetAircraft = (%+v, %v), want row", a, err)
	}
	if a.Callsign != "UAL123" {
		t.Errorf("stored callsign = %q, want UAL123", a.Callsign)
	}
}

func TestMaxSessionID_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	id, err := s.MaxSessionID(context.Background())
	if err != nil {
		t.Fatalf("MaxSessionID: %v", err)
	}
	if id != 0 {
		t.Errorf("MaxSessionID = %d, want 0", id)
	}
}

func TestApplyRecord_MessageLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	line := "MSG,3,1,1,A1B2C3,1,,,,,,,,,40.1,-75.2,,,,,,"
	rec := record(line, 0)
	rec.Raw = line
	if err := s.ApplyRecord(ctx, rec); err != nil {
		t.Fatalf("ApplyRecord: %v", err)
	}

	var count int
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(raw) FROM messages").Scan(&count, &raw)
	if err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if count != 1 || raw != line {
		t.Errorf("message log = (%d, %q), want one copy of the record", count, raw)
	}

	// Raw unset: nothing is logged.
	if err := s.ApplyRecord(ctx, record(line, time.Second)); err != nil {
		t.Fatalf("ApplyRecord: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if count != 1 {
		t.Errorf("message log grew to %d rows with Raw unset", count)
	}
}
