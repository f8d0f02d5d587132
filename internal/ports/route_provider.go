package ports

import (
	"context"
	"route-optimizer-service/internal/domain"
)

// OptimizedRoute is a provider's visiting order for a set of waypoints.
// Order is a permutation of waypoint indices; the origin is implicit at the
// start and the end of the tour. PerLegDistance/PerLegDuration have one entry
// per leg, including the return leg to the origin (len(Order)+1).
type OptimizedRoute struct {
	Order          []int
	PerLegDistance []float64
	PerLegDuration []float64
}

// Contract for retrieving a provider-native optimized round trip.
type RouteProvider interface {
	OptimizeRoute(ctx context.Context, origin domain.Stop, waypoints []domain.Stop) (OptimizedRoute, error)
}
