package services

import (
	"fmt"
	"route-optimizer-service/internal/domain"
)

// NearestNeighborOrder orders every matrix index with a greedy nearest-neighbor walk.
//
// From the last placed index it picks the unvisited index with the smallest
// DistanceMeters. Ties go to the lowest index (strict < over an ascending scan),
// so the result is deterministic. Unreachable (+Inf) pairs never beat a
// reachable one, but when every remaining candidate is unreachable the first
// of them is still taken: the tour degrades instead of failing.
//
// The returned order has length n, starts at start and excludes the return leg.
// It does not attempt global optimization; O(n²) time, O(n) extra space.
func NearestNeighborOrder(m *domain.DistanceMatrix, start int) ([]int, error) {
	n := m.Size()
	if n < 2 {
		return nil, fmt.Errorf("nearest neighbor: n=%d: %w", n, domain.ErrInsufficientStops)
	}

	if start < 0 || start >= n {
		return nil, fmt.Errorf("nearest neighbor: start=%d n=%d: %w", start, n, domain.ErrIndexOutOfRange)
	}

	visited := make([]bool, n)
	visited[start] = true
	order := make([]int, 0, n)
	order = append(order, start)

	for len(order) < n {
		last := order[len(order)-1]
		next := -1
		var best float64

		for i := 0; i < n; i++ {
			if visited[i] {
				continue
			}
			d := m.At(last, i).DistanceMeters
			if next == -1 || d < best {
				next = i
				best = d
			}
		}

		visited[next] = true
		order = append(order, next)
	}

	return order, nil
}
