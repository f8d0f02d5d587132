package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"route-optimizer-service/internal/domain"
	"strings"
)

// InitSchema creates the cache tables and indexes if they do not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS distance_cache (
			profile TEXT NOT NULL,
			origin TEXT NOT NULL,
			destination TEXT NOT NULL,
			distance_meters BIGINT NOT NULL,
			duration_seconds BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (profile, origin, destination)
		);`,
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			address TEXT PRIMARY KEY,
			lon DOUBLE PRECISION NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL DEFAULT 'provider'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_distance_cache_updated_at
		ON distance_cache(updated_at);`,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type GeocodeSeed struct {
	Address string  `json:"address"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
}

// SeedGeocodeFromJSON loads known address coordinates from a JSON array so
// the first optimization over them needs no geocoding calls. It returns the
// number of rows written.
func SeedGeocodeFromJSON(ctx context.Context, db *sql.DB, jsonPath string) (int, error) {
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("seed geocodes: read %q: %w", jsonPath, err)
	}

	var data []GeocodeSeed
	if err := json.Unmarshal(b, &data); err != nil {
		return 0, fmt.Errorf("seed geocodes: parse json: %w", err)
	}

	rows, err := seedRows(data)
	if err != nil {
		return 0, err
	}

	c := &SQLGeocodeCache{DB: db, Source: SourceSeed}
	if err := c.PutMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("seed geocodes: %w", err)
	}

	return len(rows), nil
}

// seedRows normalizes addresses the way the ORS adapter keys its lookups.
func seedRows(data []GeocodeSeed) (map[string]domain.Coordinates, error) {
	rows := make(map[string]domain.Coordinates, len(data))
	for i, item := range data {
		addr := strings.Join(strings.Fields(item.Address), " ")
		if addr == "" {
			return nil, fmt.Errorf("seed geocodes: empty address at index %d", i+1)
		}
		if item.Lon < -180 || item.Lon > 180 || item.Lat < -90 || item.Lat > 90 {
			return nil, fmt.Errorf("seed geocodes: coordinate out of range at index %d", i+1)
		}
		if _, dup := rows[addr]; dup {
			return nil, fmt.Errorf("seed geocodes: duplicate address %q at index %d", addr, i+1)
		}
		rows[addr] = domain.Coordinates{Lon: item.Lon, Lat: item.Lat}
	}
	return rows, nil
}
