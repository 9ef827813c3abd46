// Package sbs decodes SBS-1 / BaseStation style surveillance records.
//
// The wire format is a comma-separated, newline-delimited text protocol
// with up to 22 positional fields. Receivers routinely emit short records
// (trailing fields omitted) and occasionally junk; Decode never fails, it
// pads what is missing and ignores what it does not know.
package sbs

import (
	"strconv"
	"strings"
	"time"
)

// TypeTransmission is the message type carrying aircraft state updates.
// All other types (SEL, ID, AIR, STA, CLK) are decoded but carry nothing
// the tracker persists.
const TypeTransmission = "MSG"

// FieldCount is the full width of a BaseStation record.
const FieldCount = 22

// Message is one decoded BaseStation record. All fields are kept as the
// raw text from the wire; blank means the field was absent or empty.
type Message struct {
	Type         string // 0: message type (MSG, SEL, ID, ...)
	Transmission string // 1: transmission subtype (1-8 for MSG)
	SessionID    string // 2: receiver session id
	AircraftID   string // 3: receiver aircraft id
	Hex          string // 4: ICAO hex ident, uppercased
	FlightID     string // 5: receiver flight id
	DateGen      string // 6: date generated (2006/01/02)
	TimeGen      string // 7: time generated (15:04:05.000)
	DateLogged   string // 8: date logged
	TimeLogged   string // 9: time logged
	Callsign     string // 10: uppercased
	Altitude     string // 11
	GroundSpeed  string // 12
	Track        string // 13
	Latitude     string // 14
	Longitude    string // 15
	VerticalRate string // 16
	Squawk       string // 17
	Alert        string // 18
	Emergency    string // 19
	SPI          string // 20
	Grounded     string // 21: "-1" on ground, "0" airborne

	Raw string // the full record as received
}

// Decode parses a single delimited record. Records shorter than 22 fields
// are padded with blanks; fields beyond 22 are ignored. Decode never
// returns an error: malformed input degrades to blank fields.
func Decode(line string) Message {
	fields := strings.Split(line, ",")
	if len(fields) < FieldCount {
		padded := make([]string, FieldCount)
		copy(padded, fields)
		fields = padded
	}
	for i := 0; i < FieldCount; i++ {
		fields[i] = strings.TrimSpace(fields[i])
	}

	return Message{
		Type:         fields[0],
		Transmission: fields[1],
		SessionID:    fields[2],
		AircraftID:   fields[3],
		Hex:          strings.ToUpper(fields[4]),
		FlightID:     fields[5],
		DateGen:      fields[6],
		TimeGen:      fields[7],
		DateLogged:   fields[8],
		TimeLogged:   fields[9],
		Callsign:     strings.ToUpper(fields[10]),
		Altitude:     fields[11],
		GroundSpeed:  fields[12],
		Track:        fields[13],
		Latitude:     fields[14],
		Longitude:    fields[15],
		VerticalRate: fields[16],
		Squawk:       fields[17],
		Alert:        fields[18],
		Emergency:    fields[19],
		SPI:          fields[20],
		Grounded:     fields[21],
		Raw:          line,
	}
}

// IsStateUpdate reports whether this record should reach the store.
func (m Message) IsStateUpdate() bool {
	return m.Type == TypeTransmission && m.Hex != ""
}

// HasPosition reports whether both latitude and longitude parse.
func (m Message) HasPosition() bool {
	_, latOK := m.LatitudeValue()
	_, lonOK := m.LongitudeValue()
	return latOK && lonOK
}

// LatitudeValue returns the parsed latitude, if present.
func (m Message) LatitudeValue() (float64, bool) { return parseFloat(m.Latitude) }

// LongitudeValue returns the parsed longitude, if present.
func (m Message) LongitudeValue() (float64, bool) { return parseFloat(m.Longitude) }

// Timestamp returns the record's generated timestamp in UTC, assembled
// from the date and time fields. Records without a parseable timestamp
// get the fallback (normally the receive time).
func (m Message) Timestamp(fallback time.Time) time.Time {
	if m.DateGen == "" || m.TimeGen == "" {
		return fallback
	}
	for _, layout := range []string{"2006/01/02 15:04:05.000", "2006/01/02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, m.DateGen+" "+m.TimeGen, time.UTC); err == nil {
			return t
		}
	}
	return fallback
}

// Update is a sparse field-update record: a nil attribute means "leave the
// stored value alone". The store applies exactly the attributes present.
type Update struct {
	Callsign    *string
	Altitude    *int
	GroundSpeed *float64
	Track       *float64
	Latitude    *float64
	Longitude   *float64
	Grounded    *bool
}

// Update converts the record's non-blank fields into a sparse update.
func (m Message) Update() Update {
	var u Update
	if m.Callsign != "" {
		u.Callsign = ptr(m.Callsign)
	}
	if v, ok := parseInt(m.Altitude); ok {
		u.Altitude = ptr(v)
	}
	if v, ok := parseFloat(m.GroundSpeed); ok {
		u.GroundSpeed = ptr(v)
	}
	if v, ok := parseFloat(m.Track); ok {
		u.Track = ptr(v)
	}
	if v, ok := parseFloat(m.Latitude); ok {
		u.Latitude = ptr(v)
	}
	if v, ok := parseFloat(m.Longitude); ok {
		u.Longitude = ptr(v)
	}
	if v, ok := parseBool(m.Grounded); ok {
		u.Grounded = ptr(v)
	}
	return u
}

func ptr[T any](v T) *T { return &v }

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseBool handles the BaseStation boolean convention: "-1" is true,
// "0" is false. "1"/"true" are accepted for tolerant feeds.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "":
		return false, false
	case "-1", "1", "true":
		return true, true
	case "0", "false":
		return false, true
	}
	return false, false
}
