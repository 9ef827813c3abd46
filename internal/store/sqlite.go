package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is the canonical on-disk timestamp representation: RFC3339
// UTC with fixed millisecond precision, so that string ordering equals
// time ordering.
const timeLayout = "2006-01-02T15:04:05.000Z"

const sqliteSchema = `
-- Latest known state, one row per ICAO hex ident. Rows are created on
-- first sighting and never deleted by the ingestion path.
CREATE TABLE IF NOT EXISTS aircraft (
	hex          TEXT PRIMARY KEY,
	callsign     TEXT,
	altitude     INTEGER,
	ground_speed REAL,
	heading      REAL,
	lat          REAL,
	lon          REAL,
	grounded     INTEGER,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aircraft_callsign ON aircraft(callsign);

-- Append-only position history.
CREATE TABLE IF NOT EXISTS positions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	hex          TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	altitude     INTEGER,
	heading      REAL,
	ground_speed REAL
);

CREATE INDEX IF NOT EXISTS idx_positions_hex_time ON positions(hex, timestamp);

-- Flight sessions: one callsign's contiguous run of sightings.
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY,
	callsign   TEXT NOT NULL,
	hex        TEXT,
	first_seen TEXT NOT NULL,
	last_seen  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_callsign ON sessions(callsign);

-- Raw message log for audit/debug, keyed back to the session it arrived
-- under (when grouped).
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  INTEGER,
	hex         TEXT NOT NULL,
	raw         TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_hex ON messages(hex);
`

// SQLiteStore is the default single-box state store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" gives an
// in-memory store for tests. WAL mode lets the external query surface
// read while the ingestion loop writes without either blocking the other.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The ingestion loop is the only writer; a single connection avoids
	// SQLITE_BUSY between the implicit pool's connections.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ApplyRecord applies one decoded record in a single transaction.
func (s *SQLiteStore) ApplyRecord(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := rec.Timestamp.UTC().Format(timeLayout)
	u := rec.Update

	_, err = tx.ExecContext(ctx, `
		INSERT INTO aircraft (hex, callsign, altitude, ground_speed, heading, lat, lon, grounded, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hex) DO UPDATE SET
			callsign     = COALESCE(excluded.callsign, callsign),
			altitude     = COALESCE(excluded.altitude, altitude),
			ground_speed = COALESCE(excluded.ground_speed, ground_speed),
			heading      = COALESCE(excluded.heading, heading),
			lat          = COALESCE(excluded.lat, lat),
			lon          = COALESCE(excluded.lon, lon),
			grounded     = COALESCE(excluded.grounded, grounded),
			updated_at   = excluded.updated_at
	`, rec.Hex, u.Callsign, u.Altitude, u.GroundSpeed, u.Track, u.Latitude, u.Longitude, u.Grounded, now, now)
	if err != nil {
		return fmt.Errorf("upsert aircraft: %w", err)
	}

	if u.Latitude != nil && u.Longitude != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO positions (hex, timestamp, lat, lon, altitude, heading, ground_speed)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rec.Hex, now, *u.Latitude, *u.Longitude, u.Altitude, u.Track, u.GroundSpeed)
		if err != nil {
			return fmt.Errorf("append position: %w", err)
		}
	}

	if sess := rec.Session; sess != nil {
		if sess.Opened {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sessions (id, callsign, hex, first_seen, last_seen)
				VALUES (?, ?, ?, ?, ?)
			`, sess.ID, sess.Callsign, rec.Hex,
				sess.FirstSeen.UTC().Format(timeLayout),
				sess.LastSeen.UTC().Format(timeLayout))
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE sessions SET
					last_seen = ?,
					hex = COALESCE(NULLIF(?, ''), hex)
				WHERE id = ?
			`, sess.LastSeen.UTC().Format(timeLayout), rec.Hex, sess.ID)
		}
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}

	if rec.Raw != "" {
		var sessionID any
		if rec.Session != nil {
			sessionID = rec.Session.ID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, hex, raw, recorded_at)
			VALUES (?, ?, ?, ?)
		`, sessionID, rec.Hex, rec.Raw, now)
		if err != nil {
			return fmt.Errorf("log message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MaxSessionID returns the highest persisted session id.
func (s *SQLiteStore) MaxSessionID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM sessions").Scan(&id)
	return id, err
}

const aircraftColumns = `hex, callsign, altitude, ground_speed, heading, lat, lon, grounded, created_at, updated_at`

// ListAircraft returns every aircraft with a known position.
func (s *SQLiteStore) ListAircraft(ctx context.Context) ([]Aircraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+aircraftColumns+`
		FROM aircraft
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY hex
	`)
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Aircraft
	for rows.Next() {
		a, err := scanAircraft(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetAircraft fetches one aircraft by hex ident, case-insensitively.
func (s *SQLiteStore) GetAircraft(ctx context.Context, hex string) (*Aircraft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+aircraftColumns+`
		FROM aircraft
		WHERE hex = ?
	`, strings.ToUpper(hex))

	a, err := scanAircraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Track returns the most recent limit samples for an ident, oldest first.
func (s *SQLiteStore) Track(ctx context.Context, hex string, limit int) ([]PositionSample, error) {
	if limit <= 0 {
		limit = 300
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hex, timestamp, lat, lon, altitude, heading, ground_speed
		FROM positions
		WHERE hex = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, strings.ToUpper(hex), limit)
	if err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var samples []PositionSample
	for rows.Next() {
		var p PositionSample
		var ts string
		var alt sql.NullInt64
		var heading, gs sql.NullFloat64

		if err := rows.Scan(&p.Hex, &ts, &p.Latitude, &p.Longitude, &alt, &heading, &gs); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Timestamp, _ = time.Parse(timeLayout, ts)
		if alt.Valid {
			v := int(alt.Int64)
			p.Altitude = &v
		}
		if heading.Valid {
			p.Heading = &heading.Float64
		}
		if gs.Valid {
			p.GroundSpeed = &gs.Float64
		}
		samples = append(samples, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query newest-first for the LIMIT, serve oldest-first.
	reverse(samples)
	return samples, nil
}

// Sessions returns the sessions recorded for a callsign, oldest first.
func (s *SQLiteStore) Sessions(ctx context.Context, callsign string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, callsign, hex, first_seen, last_seen
		FROM sessions
		WHERE callsign = ?
		ORDER BY first_seen, id
	`, strings.ToUpper(callsign))
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Session
	for rows.Next() {
		var sess Session
		var hex sql.NullString
		var first, last string
		if err := rows.Scan(&sess.ID, &sess.Callsign, &hex, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Hex = hex.String
		sess.FirstSeen, _ = time.Parse(timeLayout, first)
		sess.LastSeen, _ = time.Parse(timeLayout, last)
		result = append(result, sess)
	}
	return result, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAircraft(row rowScanner) (Aircraft, error) {
	var a Aircraft
	var callsign sql.NullString
	var altitude sql.NullInt64
	var gs, heading, lat, lon sql.NullFloat64
	var grounded sql.NullBool
	var created, updated string

	err := row.Scan(&a.Hex, &callsign, &altitude, &gs, &heading, &lat, &lon, &grounded, &created, &updated)
	if err != nil {
		return a, err
	}

	a.Callsign = callsign.String
	if altitude.Valid {
		v := int(altitude.Int64)
		a.Altitude = &v
	}
	if gs.Valid {
		a.GroundSpeed = &gs.Float64
	}
	if heading.Valid {
		a.Heading = &heading.Float64
	}
	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lon.Valid {
		a.Longitude = &lon.Float64
	}
	if grounded.Valid {
		a.Grounded = &grounded.Bool
	}
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	a.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return a, nil
}

func reverse(s []PositionSample) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
