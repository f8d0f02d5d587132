package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/obs"
	"route-optimizer-service/internal/ports"
	"strings"
)

var _ ports.GeocodeCache = (*SQLGeocodeCache)(nil)

// Geocode rows carry where the coordinate came from.
const (
	SourceProvider = "provider"
	SourceSeed     = "seed"
)

// SQLGeocodeCache maps normalized addresses to coordinates.
type SQLGeocodeCache struct {
	DB *sql.DB
	// Source is recorded on rows written by PutMany.
	Source string
}

func NewSQLGeocodeCache(db *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db, Source: SourceProvider}
}

// GetMany fetches cached coordinates for the given addresses.
func (s *SQLGeocodeCache) GetMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	uniq := uniqueKeys(addresses, "")
	if len(uniq) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	q := `
	SELECT address, lon, lat
	FROM geocode_cache
	WHERE address = ANY($1::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, uniq)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: query geocode_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Coordinates, len(uniq))
	for rows.Next() {
		var addr string
		var c domain.Coordinates
		if err := rows.Scan(&addr, &c.Lon, &c.Lat); err != nil {
			return nil, fmt.Errorf("get geocode cache: scan rows: %w", err)
		}
		out[addr] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get geocode cache: row iteration: %w", err)
	}

	return out, nil
}

// PutMany upserts address -> coordinate mappings in one statement.
func (s *SQLGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) (err error) {
	defer obs.Time(ctx, "geocode.cache.PutMany")(&err)

	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}

	if len(results) == 0 {
		return nil
	}

	addrs := make([]string, 0, len(results))
	lons := make([]float64, 0, len(results))
	lats := make([]float64, 0, len(results))
	for addr, c := range results {
		if strings.TrimSpace(addr) == "" {
			return errors.New("insert geocode cache: empty address key")
		}
		if c.Lon < -180 || c.Lon > 180 || c.Lat < -90 || c.Lat > 90 {
			return fmt.Errorf("insert geocode cache address=%q: coordinate out of range", addr)
		}
		addrs = append(addrs, addr)
		lons = append(lons, c.Lon)
		lats = append(lats, c.Lat)
	}

	source := s.Source
	if source == "" {
		source = SourceProvider
	}

	q := `
	INSERT INTO geocode_cache (address, lon, lat, source)
	SELECT g.address, g.lon, g.lat, $4
	FROM unnest($1::text[], $2::double precision[], $3::double precision[]) AS g(address, lon, lat)
	ON CONFLICT (address) DO UPDATE
	SET lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		source = EXCLUDED.source;
	`

	if _, err := s.DB.ExecContext(ctx, q, addrs, lons, lats, source); err != nil {
		return fmt.Errorf("insert geocode cache: %w", err)
	}

	return nil
}
