package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"sbs_tracker/internal/sbs"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DefaultClickHouseConfig returns local development settings.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Host:     "localhost",
		Port:     9000,
		Database: "sbs",
		User:     "default",
		Password: "",
	}
}

// Archive is an optional append-only store of every decoded state-update
// record, for audit and offline analysis. It sits beside the state store;
// losing an archive write never fails the ingestion transaction.
type Archive struct {
	conn driver.Conn
}

// OpenArchive opens a connection to ClickHouse and ensures the schema.
func OpenArchive(ctx context.Context, cfg ClickHouseConfig) (*Archive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	a := &Archive{conn: conn}
	if err := a.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the ClickHouse connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

func (a *Archive) createSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS records (
		timestamp     DateTime64(3),
		hex           LowCardinality(String),
		transmission  LowCardinality(String),
		callsign      LowCardinality(String),
		altitude      Int32,
		ground_speed  Float32,
		track         Float32,
		lat           Float64,
		lon           Float64,
		has_position  UInt8,
		squawk        LowCardinality(String),
		grounded      UInt8,
		raw           String,
		recorded_at   DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (hex, timestamp)
	SETTINGS index_granularity = 8192`

	if err := a.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ArchiveRecord is one row of the archive.
type ArchiveRecord struct {
	Timestamp time.Time
	Message   sbs.Message
}

// InsertBatch appends a batch of decoded records.
func (a *Archive) InsertBatch(ctx context.Context, records []ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO records (timestamp, hex, transmission, callsign, altitude, ground_speed, track, lat, lon, has_position, squawk, grounded, raw)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		m := r.Message
		u := m.Update()

		var altitude int32
		if u.Altitude != nil {
			altitude = int32(*u.Altitude)
		}
		var gs, track float32
		if u.GroundSpeed != nil {
			gs = float32(*u.GroundSpeed)
		}
		if u.Track != nil {
			track = float32(*u.Track)
		}
		var lat, lon float64
		var hasPosition uint8
		if u.Latitude != nil && u.Longitude != nil {
			lat, lon = *u.Latitude, *u.Longitude
			hasPosition = 1
		}
		var grounded uint8
		if u.Grounded != nil && *u.Grounded {
			grounded = 1
		}

		err := batch.Append(r.Timestamp, m.Hex, m.Transmission, m.Callsign,
			altitude, gs, track, lat, lon, hasPosition, m.Squawk, grounded, m.Raw)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Count returns the number of archived records, optionally for one ident.
func (a *Archive) Count(ctx context.Context, hex string) (uint64, error) {
	var count uint64
	var err error
	if hex != "" {
		row := a.conn.QueryRow(ctx, "SELECT count() FROM records WHERE hex = ?", hex)
		err = row.Scan(&count)
	} else {
		row := a.conn.QueryRow(ctx, "SELECT count() FROM records")
		err = row.Scan(&count)
	}
	return count, err
}
