package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/obs"
	"route-optimizer-service/internal/ports"

	"go.uber.org/zap"
)

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// FetchMatrix returns the full n×n matrix for snap. When every pair is already
// in the distance cache no request is made; otherwise one /v2/matrix call
// covers all stops and the reachable pairs are written back to the cache.
func (o *ORSProvider) FetchMatrix(ctx context.Context, snap domain.Snapshot) (_ *domain.DistanceMatrix, err error) {
	defer obs.Time(ctx, "ors.FetchMatrix")(&err)

	n := snap.Len()
	if n == 0 {
		return domain.NewDistanceMatrix(snap, nil)
	}

	refs := make([]string, n)
	for i, s := range snap.Stops {
		refs[i] = normalize(s.ProviderRef)
	}

	if cells, ok := o.cachedCells(ctx, refs); ok {
		return domain.NewDistanceMatrix(snap, cells)
	}

	coords, err := o.locate(ctx, snap.Stops)
	if err != nil {
		return nil, err
	}

	cells, err := o.fetchCells(ctx, coords)
	if err != nil {
		return nil, err
	}

	o.storeCells(ctx, refs, cells)
	return domain.NewDistanceMatrix(snap, cells)
}

// cachedCells builds the matrix from the distance cache. It reports false on
// the first missing pair or on any cache error.
func (o *ORSProvider) cachedCells(ctx context.Context, refs []string) ([][]domain.Cell, bool) {
	if o.distanceCache == nil {
		return nil, false
	}

	n := len(refs)
	cells := make([][]domain.Cell, n)
	for i, from := range refs {
		hits, err := o.distanceCache.GetMany(ctx, from, refs)
		if err != nil {
			o.logger.Warn("distance cache read failed", zap.Error(err))
			return nil, false
		}

		cells[i] = make([]domain.Cell, n)
		for j, to := range refs {
			if i == j || from == to {
				continue
			}
			r, ok := hits[to]
			if !ok {
				return nil, false
			}
			cells[i][j] = domain.Cell{
				DistanceMeters:  float64(r.DistanceMeters),
				DurationSeconds: float64(r.DurationSeconds),
			}
		}
	}
	return cells, true
}

// storeCells writes the reachable off-diagonal pairs to the distance cache.
func (o *ORSProvider) storeCells(ctx context.Context, refs []string, cells [][]domain.Cell) {
	if o.distanceCache == nil {
		return
	}

	for i, from := range refs {
		row := make(map[string]ports.DistanceResult, len(refs))
		for j, to := range refs {
			if i == j || from == to || !cells[i][j].Reachable() {
				continue
			}
			// ORS returns float metrics; round to nearest integer for the cache.
			row[to] = ports.DistanceResult{
				DistanceMeters:  int(math.Round(cells[i][j].DistanceMeters)),
				DurationSeconds: int(math.Round(cells[i][j].DurationSeconds)),
			}
		}
		if err := o.distanceCache.PutMany(ctx, from, row); err != nil {
			o.logger.Warn("distance cache write failed", zap.String("origin", from), zap.Error(err))
			return
		}
	}
}

// fetchCells retrieves distance and duration between every pair of coords
// using the OpenRouteService matrix endpoint. A null cell means no route and
// becomes an unreachable cell; a missing row or column is a malformed response.
func (o *ORSProvider) fetchCells(ctx context.Context, coords []domain.Coordinates) ([][]domain.Cell, error) {
	endpoint := fmt.Sprintf("%s/v2/matrix/%s", o.baseURL, o.profile)

	locations := make([][]float64, 0, len(coords))
	for _, c := range coords {
		locations = append(locations, c.CoordsToList())
	}

	payload, err := json.Marshal(matrixRequest{
		Locations: locations,
		Metrics:   []string{"distance", "duration"},
	})
	if err != nil {
		return nil, malformed("matrix", "marshal request: %v", err)
	}

	resp, err := o.doWithRetry(ctx, "matrix", func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, malformed("matrix", "decode response: %v", err)
	}

	n := len(coords)
	if len(mr.Distances) != n || len(mr.Durations) != n {
		return nil, malformed("matrix", "expected %d rows; got distances=%d durations=%d", n, len(mr.Distances), len(mr.Durations))
	}

	cells := make([][]domain.Cell, n)
	for i := 0; i < n; i++ {
		if len(mr.Distances[i]) != n || len(mr.Durations[i]) != n {
			return nil, malformed("matrix", "row %d has distances=%d durations=%d, want %d",
				i, len(mr.Distances[i]), len(mr.Durations[i]), n)
		}

		cells[i] = make([]domain.Cell, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			meters, seconds := mr.Distances[i][j], mr.Durations[i][j]
			if meters == nil || seconds == nil {
				cells[i][j] = domain.Unreachable()
				continue
			}
			cells[i][j] = domain.Cell{DistanceMeters: *meters, DurationSeconds: *seconds}
		}
	}

	return cells, nil
}
