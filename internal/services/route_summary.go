package services

import (
	"fmt"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/ports"
	"time"
)

// localCandidate turns a solver order into a closed-tour candidate, with per-leg
// costs read from the same matrix. Totals are left nil if any leg is unreachable.
func localCandidate(m *domain.DistanceMatrix, order []int, now time.Time) *domain.RouteCandidate {
	ids := make([]string, 0, len(order)+1)
	for _, i := range order {
		ids = append(ids, m.StopID(i))
	}
	ids = append(ids, m.StopID(order[0]))

	legs := make([]domain.Leg, 0, len(order))
	reachable := true
	var totalDistance, totalDuration float64

	for k := range order {
		from := order[k]
		to := order[(k+1)%len(order)]
		c := m.At(from, to)
		if !c.Reachable() {
			reachable = false
		}

		totalDistance += c.DistanceMeters
		totalDuration += c.DurationSeconds
		legs = append(legs, domain.Leg{
			FromID:          m.StopID(from),
			ToID:            m.StopID(to),
			DistanceMeters:  c.DistanceMeters,
			DurationSeconds: c.DurationSeconds,
		})
	}

	cand := &domain.RouteCandidate{
		SourceVersion: m.Version(),
		Method:        domain.MethodLocalHeuristic,
		Order:         ids,
		Legs:          legs,
		ComputedAt:    now,
	}
	if reachable {
		cand.TotalDistanceMeters = &totalDistance
		cand.TotalDurationSeconds = &totalDuration
	}

	return cand
}

// providerCandidate resolves a provider permutation against the exact waypoint
// list that was sent, never against the live LocationSet.
func providerCandidate(
	version uint64,
	origin domain.Stop,
	waypoints []domain.Stop,
	route ports.OptimizedRoute,
	now time.Time,
) (*domain.RouteCandidate, error) {
	if len(route.Order) != len(waypoints) {
		return nil, &domain.ProviderError{
			Kind:    domain.ErrorKindUnknown,
			Message: fmt.Sprintf("provider order has %d entries, sent %d waypoints", len(route.Order), len(waypoints)),
		}
	}

	seen := make([]bool, len(waypoints))
	tour := make([]domain.Stop, 0, len(waypoints)+2)
	tour = append(tour, origin)
	for _, idx := range route.Order {
		if idx < 0 || idx >= len(waypoints) || seen[idx] {
			return nil, &domain.ProviderError{
				Kind:    domain.ErrorKindUnknown,
				Message: fmt.Sprintf("provider order is not a permutation: %v", route.Order),
			}
		}
		seen[idx] = true
		tour = append(tour, waypoints[idx])
	}
	tour = append(tour, origin)

	ids := make([]string, 0, len(tour))
	for _, s := range tour {
		ids = append(ids, s.ID)
	}

	cand := &domain.RouteCandidate{
		SourceVersion: version,
		Method:        domain.MethodProviderOptimized,
		Order:         ids,
		ComputedAt:    now,
	}

	legCount := len(tour) - 1
	if len(route.PerLegDistance) != legCount || len(route.PerLegDuration) != legCount {
		return cand, nil
	}

	var totalDistance, totalDuration float64
	cand.Legs = make([]domain.Leg, 0, legCount)
	for k := 0; k < legCount; k++ {
		totalDistance += route.PerLegDistance[k]
		totalDuration += route.PerLegDuration[k]
		cand.Legs = append(cand.Legs, domain.Leg{
			FromID:          tour[k].ID,
			ToID:            tour[k+1].ID,
			DistanceMeters:  route.PerLegDistance[k],
			DurationSeconds: route.PerLegDuration[k],
		})
	}
	cand.TotalDistanceMeters = &totalDistance
	cand.TotalDurationSeconds = &totalDuration

	return cand, nil
}
