package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"route-optimizer-service/internal/platform/obs"
	"route-optimizer-service/internal/ports"
	"strings"
	"time"
)

var _ ports.DistanceCache = (*SQLDistanceCache)(nil)

// SQLDistanceCache is a Postgres-backed cache for pairwise travel costs,
// keyed by routing profile and normalized provider references.
// Entries older than MaxAge are treated as misses; zero keeps them forever.
type SQLDistanceCache struct {
	DB      *sql.DB
	Profile string
	MaxAge  time.Duration

	now func() time.Time
}

func NewSQLDistanceCache(db *sql.DB, profile string, maxAge time.Duration) *SQLDistanceCache {
	return &SQLDistanceCache{DB: db, Profile: profile, MaxAge: maxAge, now: time.Now}
}

// GetMany fetches cached costs from one origin to many destinations.
// Destinations without a fresh entry are absent from the result.
func (s *SQLDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("distance cache: db is nil")
	}

	if origin == "" {
		return nil, errors.New("get distance cache: origin must not be empty")
	}

	uniq := uniqueKeys(destinations, origin)
	if len(uniq) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	var cutoff time.Time
	if s.MaxAge > 0 {
		cutoff = s.clock().Add(-s.MaxAge)
	}

	q := `
	SELECT destination, distance_meters, duration_seconds
	FROM distance_cache
	WHERE profile = $1
		AND origin = $2
		AND destination = ANY($3::text[])
		AND updated_at >= $4;
	`

	rows, err := s.DB.QueryContext(ctx, q, s.Profile, origin, uniq, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get distance cache: query distance_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ports.DistanceResult, len(uniq))
	for rows.Next() {
		var dest string
		var r ports.DistanceResult
		if err := rows.Scan(&dest, &r.DistanceMeters, &r.DurationSeconds); err != nil {
			return nil, fmt.Errorf("get distance cache: scan rows: %w", err)
		}
		out[dest] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get distance cache: row iteration: %w", err)
	}

	return out, nil
}

// PutMany upserts the costs from a single origin in one statement.
func (s *SQLDistanceCache) PutMany(
	ctx context.Context,
	origin string,
	results map[string]ports.DistanceResult,
) (err error) {
	defer obs.Time(ctx, "distance.cache.PutMany")(&err)

	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}

	if origin == "" {
		return errors.New("insert distance cache: origin must not be empty")
	}

	if len(results) == 0 {
		return nil
	}

	dests := make([]string, 0, len(results))
	meters := make([]int64, 0, len(results))
	seconds := make([]int64, 0, len(results))
	for dest, r := range results {
		if strings.TrimSpace(dest) == "" {
			return errors.New("insert distance cache: empty destination key")
		}
		if r.DistanceMeters < 0 || r.DurationSeconds < 0 {
			return fmt.Errorf("insert distance cache dest=%q: negative cost", dest)
		}
		dests = append(dests, dest)
		meters = append(meters, int64(r.DistanceMeters))
		seconds = append(seconds, int64(r.DurationSeconds))
	}

	q := `
	INSERT INTO distance_cache (profile, origin, destination, distance_meters, duration_seconds, updated_at)
	SELECT $1, $2, d.destination, d.distance_meters, d.duration_seconds, $6
	FROM unnest($3::text[], $4::bigint[], $5::bigint[]) AS d(destination, distance_meters, duration_seconds)
	ON CONFLICT (profile, origin, destination) DO UPDATE
	SET distance_meters = EXCLUDED.distance_meters,
		duration_seconds = EXCLUDED.duration_seconds,
		updated_at = EXCLUDED.updated_at;
	`

	if _, err := s.DB.ExecContext(ctx, q, s.Profile, origin, dests, meters, seconds, s.clock()); err != nil {
		return fmt.Errorf("insert distance cache origin=%q: %w", origin, err)
	}

	return nil
}

func (s *SQLDistanceCache) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// uniqueKeys trims, drops blanks and duplicates, and skips exclude.
func uniqueKeys(keys []string, exclude string) []string {
	seen := make(map[string]struct{}, len(keys))
	uniq := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || k == exclude {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	return uniq
}
