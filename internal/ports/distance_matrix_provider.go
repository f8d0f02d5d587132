package ports

import (
	"context"
	"route-optimizer-service/internal/domain"
)

// Contract for retrieving the full pairwise travel cost matrix over a set of stops.
type DistanceMatrixProvider interface {
	// Return an n×n matrix where row/column i corresponds to stops[i].
	// Failures are reported as *domain.ProviderError.
	FetchMatrix(ctx context.Context, snap domain.Snapshot) (*domain.DistanceMatrix, error)
}

// Distance and travel duration between two locations.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
}

// Persistent origin->destination cache keyed by normalized provider locators.
type DistanceCache interface {
	GetMany(ctx context.Context, origin string, destinations []string) (map[string]DistanceResult, error)
	PutMany(ctx context.Context, origin string, results map[string]DistanceResult) error
}

// Persistent address->coordinate cache.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}
