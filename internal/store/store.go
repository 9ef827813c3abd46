// Package store persists aircraft state, position history, and flight
// sessions. Two interchangeable state backends are provided (SQLite for a
// single-box collector, PostgreSQL for shared deployments) plus an
// optional ClickHouse archive for the raw message log at scale.
package store

import (
	"context"
	"time"

	"sbs_tracker/internal/sbs"
	"sbs_tracker/internal/session"
)

// Aircraft is the latest known state of one tracked aircraft, keyed by its
// ICAO hex ident. Nil pointer fields have never been reported.
type Aircraft struct {
	Hex         string    `json:"hex"`
	Callsign    string    `json:"callsign,omitempty"`
	Altitude    *int      `json:"altitude,omitempty"`
	GroundSpeed *float64  `json:"ground_speed,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Latitude    *float64  `json:"lat,omitempty"`
	Longitude   *float64  `json:"lon,omitempty"`
	Grounded    *bool     `json:"grounded,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PositionSample is one append-only history row. Latitude and longitude
// are always present; a sample is only recorded when both were reported.
type PositionSample struct {
	Hex         string    `json:"hex"`
	Timestamp   time.Time `json:"timestamp"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lon"`
	Altitude    *int      `json:"altitude,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	GroundSpeed *float64  `json:"ground_speed,omitempty"`
}

// Session is a persisted flight session: one callsign's contiguous run of
// sightings. A session has no explicit status; it is closed once its
// last-seen timestamp is older than the grouping timeout.
type Session struct {
	ID        int64     `json:"id"`
	Callsign  string    `json:"callsign"`
	Hex       string    `json:"hex,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Record is everything the ingestion loop derived from one wire record.
// ApplyRecord persists it as a single atomic unit.
type Record struct {
	Hex       string
	Timestamp time.Time
	Update    sbs.Update
	Session   *session.Assignment // nil when the record carried no callsign
	Raw       string              // raw wire record for the message log; empty disables
}

// Querier is the read-only contract the external query surface relies on.
type Querier interface {
	// ListAircraft returns every aircraft with a known position.
	ListAircraft(ctx context.Context) ([]Aircraft, error)
	// GetAircraft fetches one aircraft by hex ident, case-insensitively.
	// Returns nil when the ident has never been seen.
	GetAircraft(ctx context.Context, hex string) (*Aircraft, error)
	// Track returns the most recent limit samples for an ident, oldest
	// first.
	Track(ctx context.Context, hex string, limit int) ([]PositionSample, error)
	// Sessions returns the sessions recorded for a callsign, oldest first.
	Sessions(ctx context.Context, callsign string) ([]Session, error)
}

// Store is the full contract the ingestion loop writes through.
type Store interface {
	Querier

	// ApplyRecord applies one record atomically: sparse aircraft upsert,
	// position append when both coordinates are present, session
	// insert/touch, and message log. Either all of it persists or none.
	ApplyRecord(ctx context.Context, rec Record) error

	// MaxSessionID returns the highest persisted session id, for seeding
	// the session tracker across restarts.
	MaxSessionID(ctx context.Context) (int64, error)

	Close() error
}
