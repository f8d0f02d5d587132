package distance

import (
	"context"
	"fmt"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/ports"
	"sort"
)

// MockPair is a directed travel cost between two stop ids.
type MockPair struct {
	From, To string
	Meters   float64
	Seconds  float64
}

func pairKey(from, to string) string { return from + "|" + to }

// MockMatrixProvider serves matrices from a fixed table of pairs.
// A pair missing from the table is a malformed response.
type MockMatrixProvider struct {
	m map[string]domain.Cell
}

func NewMockMatrixProvider(pairs []MockPair) *MockMatrixProvider {
	m := make(map[string]domain.Cell, len(pairs))
	for _, p := range pairs {
		m[pairKey(p.From, p.To)] = domain.Cell{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &MockMatrixProvider{m: m}
}

func (p *MockMatrixProvider) FetchMatrix(ctx context.Context, snap domain.Snapshot) (*domain.DistanceMatrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ErrorKindNetwork, Message: "request cancelled", Err: err}
	}

	n := snap.Len()
	cells := make([][]domain.Cell, n)
	for i, from := range snap.Stops {
		cells[i] = make([]domain.Cell, n)
		for j, to := range snap.Stops {
			if i == j {
				continue
			}
			c, ok := p.m[pairKey(from.ID, to.ID)]
			if !ok {
				return nil, &domain.ProviderError{
					Kind:    domain.ErrorKindUnknown,
					Message: fmt.Sprintf("missing pair %q -> %q", from.ID, to.ID),
				}
			}
			cells[i][j] = c
		}
	}

	return domain.NewDistanceMatrix(snap, cells)
}

// MockRouteProvider visits waypoints in ascending id order and reports
// per-leg costs from its pair table (zero when a pair is absent).
type MockRouteProvider struct {
	m map[string]domain.Cell
}

func NewMockRouteProvider(pairs []MockPair) *MockRouteProvider {
	return &MockRouteProvider{m: NewMockMatrixProvider(pairs).m}
}

func (p *MockRouteProvider) OptimizeRoute(
	ctx context.Context,
	origin domain.Stop,
	waypoints []domain.Stop,
) (ports.OptimizedRoute, error) {
	if err := ctx.Err(); err != nil {
		return ports.OptimizedRoute{}, &domain.ProviderError{Kind: domain.ErrorKindNetwork, Message: "request cancelled", Err: err}
	}

	order := make([]int, len(waypoints))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return waypoints[order[a]].ID < waypoints[order[b]].ID })

	route := ports.OptimizedRoute{Order: order}
	prev := origin.ID
	for _, idx := range order {
		c := p.m[pairKey(prev, waypoints[idx].ID)]
		route.PerLegDistance = append(route.PerLegDistance, c.DistanceMeters)
		route.PerLegDuration = append(route.PerLegDuration, c.DurationSeconds)
		prev = waypoints[idx].ID
	}
	back := p.m[pairKey(prev, origin.ID)]
	route.PerLegDistance = append(route.PerLegDistance, back.DistanceMeters)
	route.PerLegDuration = append(route.PerLegDuration, back.DurationSeconds)

	return route, nil
}
