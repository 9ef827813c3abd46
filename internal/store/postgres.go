package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DefaultPostgresConfig returns local development settings.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "sbs_tracker",
		User:     "sbs",
		Password: "sbs",
	}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS aircraft (
	hex          TEXT PRIMARY KEY,
	callsign     TEXT,
	altitude     INTEGER,
	ground_speed DOUBLE PRECISION,
	heading      DOUBLE PRECISION,
	lat          DOUBLE PRECISION,
	lon          DOUBLE PRECISION,
	grounded     BOOLEAN,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aircraft_callsign ON aircraft(callsign);

CREATE TABLE IF NOT EXISTS positions (
	id           BIGSERIAL PRIMARY KEY,
	hex          TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	altitude     INTEGER,
	heading      DOUBLE PRECISION,
	ground_speed DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_positions_hex_time ON positions(hex, timestamp);

CREATE TABLE IF NOT EXISTS sessions (
	id         BIGINT PRIMARY KEY,
	callsign   TEXT NOT NULL,
	hex        TEXT,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_callsign ON sessions(callsign);

CREATE TABLE IF NOT EXISTS messages (
	id          BIGSERIAL PRIMARY KEY,
	session_id  BIGINT,
	hex         TEXT NOT NULL,
	raw         TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_hex ON messages(hex);
`

// PostgresStore is the shared-deployment state store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool and ensures the schema exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ApplyRecord applies one decoded record in a single transaction.
func (s *PostgresStore) ApplyRecord(ctx context.Context, rec Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := rec.Timestamp.UTC()
	u := rec.Update

	_, err = tx.Exec(ctx, `
		INSERT INTO aircraft (hex, callsign, altitude, ground_speed, heading, lat, lon, grounded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (hex) DO UPDATE SET
			callsign     = COALESCE(EXCLUDED.callsign, aircraft.callsign),
			altitude     = COALESCE(EXCLUDED.altitude, aircraft.altitude),
			ground_speed = COALESCE(EXCLUDED.ground_speed, aircraft.ground_speed),
			heading      = COALESCE(EXCLUDED.heading, aircraft.heading),
			lat          = COALESCE(EXCLUDED.lat, aircraft.lat),
			lon          = COALESCE(EXCLUDED.lon, aircraft.lon),
			grounded     = COALESCE(EXCLUDED.grounded, aircraft.grounded),
			updated_at   = EXCLUDED.updated_at
	`, rec.Hex, u.Callsign, u.Altitude, u.GroundSpeed, u.Track, u.Latitude, u.Longitude, u.Grounded, now)
	if err != nil {
		return fmt.Errorf("upsert aircraft: %w", err)
	}

	if u.Latitude != nil && u.Longitude != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO positions (hex, timestamp, lat, lon, altitude, heading, ground_speed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.Hex, now, *u.Latitude, *u.Longitude, u.Altitude, u.Track, u.GroundSpeed)
		if err != nil {
			return fmt.Errorf("append position: %w", err)
		}
	}

	if sess := rec.Session; sess != nil {
		if sess.Opened {
			_, err = tx.Exec(ctx, `
				INSERT INTO sessions (id, callsign, hex, first_seen, last_seen)
				VALUES ($1, $2, $3, $4, $5)
			`, sess.ID, sess.Callsign, rec.Hex, sess.FirstSeen.UTC(), sess.LastSeen.UTC())
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE sessions SET
					last_seen = $1,
					hex = COALESCE(NULLIF($2, ''), hex)
				WHERE id = $3
			`, sess.LastSeen.UTC(), rec.Hex, sess.ID)
		}
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}

	if rec.Raw != "" {
		var sessionID *int64
		if rec.Session != nil {
			sessionID = &rec.Session.ID
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (session_id, hex, raw, recorded_at)
			VALUES ($1, $2, $3, $4)
		`, sessionID, rec.Hex, rec.Raw, now)
		if err != nil {
			return fmt.Errorf("log message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MaxSessionID returns the highest persisted session id.
func (s *PostgresStore) MaxSessionID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM sessions").Scan(&id)
	return id, err
}

// ListAircraft returns every aircraft with a known position.
func (s *PostgresStore) ListAircraft(ctx context.Context) ([]Aircraft, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hex, callsign, altitude, ground_speed, heading, lat, lon, grounded, created_at, updated_at
		FROM aircraft
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY hex
	`)
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer rows.Close()

	var result []Aircraft
	for rows.Next() {
		a, err := scanPGAircraft(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetAircraft fetches one aircraft by hex ident, case-insensitively.
func (s *PostgresStore) GetAircraft(ctx context.Context, hex string) (*Aircraft, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hex, callsign, altitude, ground_speed, heading, lat, lon, grounded, created_at, updated_at
		FROM aircraft
		WHERE hex = $1
	`, strings.ToUpper(hex))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanPGAircraft(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Track returns the most recent limit samples for an ident, oldest first.
func (s *PostgresStore) Track(ctx context.Context, hex string, limit int) ([]PositionSample, error) {
	if limit <= 0 {
		limit = 300
	}

	rows, err := s.pool.Query(ctx, `
		SELECT hex, timestamp, lat, lon, altitude, heading, ground_speed
		FROM positions
		WHERE hex = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, strings.ToUpper(hex), limit)
	if err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	defer rows.Close()

	var samples []PositionSample
	for rows.Next() {
		var p PositionSample
		if err := rows.Scan(&p.Hex, &p.Timestamp, &p.Latitude, &p.Longitude, &p.Altitude, &p.Heading, &p.GroundSpeed); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		samples = append(samples, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(samples)
	return samples, nil
}

// Sessions returns the sessions recorded for a callsign, oldest first.
func (s *PostgresStore) Sessions(ctx context.Context, callsign string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, callsign, hex, first_seen, last_seen
		FROM sessions
		WHERE callsign = $1
		ORDER BY first_seen, id
	`, strings.ToUpper(callsign))
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		var sess Session
		var hex *string
		if err := rows.Scan(&sess.ID, &sess.Callsign, &hex, &sess.FirstSeen, &sess.LastSeen); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if hex != nil {
			sess.Hex = *hex
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

func scanPGAircraft(rows pgx.Rows) (Aircraft, error) {
	var a Aircraft
	var callsign *string
	err := rows.Scan(&a.Hex, &callsign, &a.Altitude, &a.GroundSpeed, &a.Heading,
		&a.Latitude, &a.Longitude, &a.Grounded, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, fmt.Errorf("scan aircraft: %w", err)
	}
	if callsign != nil {
		a.Callsign = *callsign
	}
	return a, nil
}
