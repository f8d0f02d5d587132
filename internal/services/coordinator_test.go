package services

import (
	"context"
	"errors"
	"route-optimizer-service/internal/adapters/distance"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/metrics"
	"route-optimizer-service/internal/ports"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.RouteUpdate
}

func (p *recordingPublisher) Publish(_ string, u domain.RouteUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *recordingPublisher) forMethod(m domain.Method) []domain.RouteUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.RouteUpdate
	for _, u := range p.updates {
		if u.Method == m {
			out = append(out, u)
		}
	}
	return out
}

func statuses(updates []domain.RouteUpdate) []domain.Status {
	out := make([]domain.Status, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.Status)
	}
	return out
}

type funcMatrix func(ctx context.Context, snap domain.Snapshot) (*domain.DistanceMatrix, error)

func (f funcMatrix) FetchMatrix(ctx context.Context, snap domain.Snapshot) (*domain.DistanceMatrix, error) {
	return f(ctx, snap)
}

type funcRouter func(ctx context.Context, origin domain.Stop, waypoints []domain.Stop) (ports.OptimizedRoute, error)

func (f funcRouter) OptimizeRoute(ctx context.Context, origin domain.Stop, waypoints []domain.Stop) (ports.OptimizedRoute, error) {
	return f(ctx, origin, waypoints)
}

// gate holds provider calls per version until released. Calls ignore ctx,
// like a third-party SDK request that cannot be aborted.
type gate struct {
	mu    sync.Mutex
	gates map[uint64]chan error
}

func newGate() *gate { return &gate{gates: make(map[uint64]chan error)} }

func (g *gate) ch(v uint64) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates[v] == nil {
		g.gates[v] = make(chan error, 1)
	}
	return g.gates[v]
}

func (g *gate) release(v uint64, err error) { g.ch(v) <- err }

func (g *gate) matrix(inner ports.DistanceMatrixProvider) funcMatrix {
	return func(_ context.Context, snap domain.Snapshot) (*domain.DistanceMatrix, error) {
		if err := <-g.ch(snap.Version); err != nil {
			return nil, err
		}
		return inner.FetchMatrix(context.Background(), snap)
	}
}

func (g *gate) router(inner ports.RouteProvider, versionOf func([]domain.Stop) uint64) funcRouter {
	return func(_ context.Context, origin domain.Stop, waypoints []domain.Stop) (ports.OptimizedRoute, error) {
		if err := <-g.ch(versionOf(waypoints)); err != nil {
			return ports.OptimizedRoute{}, err
		}
		return inner.OptimizeRoute(context.Background(), origin, waypoints)
	}
}

// abcdPairs is the symmetric A/B/C/D table used across tests.
// A-B=10 A-C=50 B-C=10, D is far from everything.
func abcdPairs() []distance.MockPair {
	d := map[[2]string]float64{
		{"A", "B"}: 10, {"A", "C"}: 50, {"B", "C"}: 10,
		{"A", "D"}: 90, {"B", "D"}: 80, {"C", "D"}: 70,
	}
	var pairs []distance.MockPair
	for k, v := range d {
		pairs = append(pairs,
			distance.MockPair{From: k[0], To: k[1], Meters: v, Seconds: v * 6},
			distance.MockPair{From: k[1], To: k[0], Meters: v, Seconds: v * 6},
		)
	}
	return pairs
}

func newTestCoordinator(
	t *testing.T,
	matrix ports.DistanceMatrixProvider,
	router ports.RouteProvider,
	cfg CoordinatorConfig,
) (*Coordinator, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	c := NewCoordinator("test", matrix, router, pub, nil, cfg)
	return c, pub
}

func waitSettled(t *testing.T, c *Coordinator, m domain.Method, version uint64) domain.RouteUpdate {
	t.Helper()
	require.Eventually(t, func() bool {
		s := c.State(m)
		return s.Status == domain.StatusSettled && s.Candidate != nil && s.Candidate.SourceVersion == version
	}, 2*time.Second, 5*time.Millisecond, "%s never settled at version %d (state %+v)", m, version, c.State(m))
	return c.State(m)
}

func waitStatus(t *testing.T, c *Coordinator, m domain.Method, status domain.Status) domain.RouteUpdate {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State(m).Status == status
	}, 2*time.Second, 5*time.Millisecond, "%s never reached %s (state %+v)", m, status, c.State(m))
	return c.State(m)
}

func staleRuns(m domain.Method) float64 {
	return testutil.ToFloat64(metrics.RouteRuns.WithLabelValues(string(m), "stale"))
}

func TestCoordinatorSettlesBothMethods(t *testing.T) {
	pairs := abcdPairs()
	c, pub := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), distance.NewMockRouteProvider(pairs), CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B", "C"))

	local := waitSettled(t, c, domain.MethodLocalHeuristic, 1)
	require.Equal(t, []string{"A", "B", "C", "A"}, local.Candidate.Order)
	require.NotNil(t, local.Candidate.TotalDistanceMeters)
	require.Equal(t, 70.0, *local.Candidate.TotalDistanceMeters)
	require.Equal(t, 420.0, *local.Candidate.TotalDurationSeconds)
	require.Nil(t, local.Err)

	provider := waitSettled(t, c, domain.MethodProviderOptimized, 1)
	require.Equal(t, domain.MethodProviderOptimized, provider.Candidate.Method)
	require.Equal(t, []string{"A", "B", "C", "A"}, provider.Candidate.Order)
	require.Len(t, provider.Candidate.Legs, 3)
	require.Equal(t, 70.0, *provider.Candidate.TotalDistanceMeters)

	require.Equal(t, []domain.Status{domain.StatusRunning, domain.StatusSettled}, statuses(pub.forMethod(domain.MethodLocalHeuristic)))
	require.Equal(t, []domain.Status{domain.StatusRunning, domain.StatusSettled}, statuses(pub.forMethod(domain.MethodProviderOptimized)))

	m := c.Matrix()
	require.NotNil(t, m)
	require.Equal(t, uint64(1), m.Version())
}

func TestCoordinatorDropsStaleResultArrivingAfterFresh(t *testing.T) {
	pairs := abcdPairs()
	mg, rg := newGate(), newGate()
	router := rg.router(distance.NewMockRouteProvider(pairs), func(w []domain.Stop) uint64 { return uint64(len(w)) })
	c, pub := newTestCoordinator(t, mg.matrix(distance.NewMockMatrixProvider(pairs)), router, CoordinatorConfig{})

	// Waypoint counts double as versions for the router gate: v1 has 1 waypoint, v2 has 2.
	c.Trigger(snapshotOf(1, "A", "B"))
	c.Trigger(snapshotOf(2, "A", "B", "C"))

	mg.release(2, nil)
	rg.release(2, nil)
	waitSettled(t, c, domain.MethodLocalHeuristic, 2)
	waitSettled(t, c, domain.MethodProviderOptimized, 2)

	localStale := staleRuns(domain.MethodLocalHeuristic)
	providerStale := staleRuns(domain.MethodProviderOptimized)

	mg.release(1, nil)
	rg.release(1, nil)
	require.Eventually(t, func() bool {
		return staleRuns(domain.MethodLocalHeuristic) == localStale+1 &&
			staleRuns(domain.MethodProviderOptimized) == providerStale+1
	}, 2*time.Second, 5*time.Millisecond)

	for _, m := range domain.Methods {
		s := c.State(m)
		require.Equal(t, domain.StatusSettled, s.Status)
		require.Equal(t, uint64(2), s.Candidate.SourceVersion)
		for _, u := range pub.forMethod(m) {
			if u.Candidate != nil {
				require.Equal(t, uint64(2), u.Candidate.SourceVersion, "version 1 must never be published")
			}
		}
	}

	c.Close()
}

func TestCoordinatorLastVersionWinsRegardlessOfCompletionOrder(t *testing.T) {
	pairs := abcdPairs()
	g := newGate()
	c, pub := newTestCoordinator(t, g.matrix(distance.NewMockMatrixProvider(pairs)), distance.NewMockRouteProvider(pairs), CoordinatorConfig{})

	c.Trigger(snapshotOf(1, "A", "B"))
	c.Trigger(snapshotOf(2, "A", "B", "C"))
	c.Trigger(snapshotOf(3, "A", "C", "B"))

	stale := staleRuns(domain.MethodLocalHeuristic)

	// Version 1 finishes first while 3 is current: discarded, still running.
	g.release(1, nil)
	require.Eventually(t, func() bool { return staleRuns(domain.MethodLocalHeuristic) == stale+1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, domain.StatusRunning, c.State(domain.MethodLocalHeuristic).Status)

	g.release(3, nil)
	got := waitSettled(t, c, domain.MethodLocalHeuristic, 3)
	require.Equal(t, []string{"A", "B", "C", "A"}, got.Candidate.Order)

	// Version 2 finishes last: discarded as well.
	g.release(2, errors.New("late failure"))
	require.Eventually(t, func() bool { return staleRuns(domain.MethodLocalHeuristic) == stale+2 }, 2*time.Second, 5*time.Millisecond)

	s := c.State(domain.MethodLocalHeuristic)
	require.Equal(t, domain.StatusSettled, s.Status)
	require.Equal(t, uint64(3), s.Candidate.SourceVersion)
	require.Nil(t, s.Err)

	for _, u := range pub.forMethod(domain.MethodLocalHeuristic) {
		require.NotEqual(t, domain.StatusFailed, u.Status)
		if u.Candidate != nil {
			require.Equal(t, uint64(3), u.Candidate.SourceVersion)
		}
	}

	c.Close()
}

func TestCoordinatorProviderFailureDoesNotTouchLocalMethod(t *testing.T) {
	pairs := abcdPairs()
	mock := distance.NewMockRouteProvider(pairs)
	router := funcRouter(func(ctx context.Context, origin domain.Stop, waypoints []domain.Stop) (ports.OptimizedRoute, error) {
		if len(waypoints) == 2 {
			return ports.OptimizedRoute{}, &domain.ProviderError{Kind: domain.ErrorKindRateLimited, Status: 429, Message: "quota"}
		}
		return mock.OptimizeRoute(ctx, origin, waypoints)
	})
	c, _ := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), router, CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B"))
	waitSettled(t, c, domain.MethodLocalHeuristic, 1)
	waitSettled(t, c, domain.MethodProviderOptimized, 1)

	c.Trigger(snapshotOf(2, "A", "B", "C"))
	local := waitSettled(t, c, domain.MethodLocalHeuristic, 2)
	require.Nil(t, local.Err)

	failed := waitStatus(t, c, domain.MethodProviderOptimized, domain.StatusFailed)
	require.NotNil(t, failed.Err)
	require.Equal(t, domain.ErrorKindRateLimited, failed.Err.Kind)
	require.Equal(t, 429, failed.Err.Status)
	require.NotNil(t, failed.Candidate, "previous candidate is retained on failure")
	require.Equal(t, uint64(1), failed.Candidate.SourceVersion)

	// Recovers on the next change without a manual retry.
	c.Trigger(snapshotOf(3, "A", "C"))
	recovered := waitSettled(t, c, domain.MethodProviderOptimized, 3)
	require.Nil(t, recovered.Err)
}

func TestCoordinatorMatrixFailureDoesNotTouchProviderMethod(t *testing.T) {
	pairs := abcdPairs()
	matrix := funcMatrix(func(context.Context, domain.Snapshot) (*domain.DistanceMatrix, error) {
		return nil, &domain.ProviderError{Kind: domain.ErrorKindInvalidLocation, Status: 404, Message: "unknown place"}
	})
	c, _ := newTestCoordinator(t, matrix, distance.NewMockRouteProvider(pairs), CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B", "C"))

	failed := waitStatus(t, c, domain.MethodLocalHeuristic, domain.StatusFailed)
	require.Equal(t, domain.ErrorKindInvalidLocation, failed.Err.Kind)
	require.Nil(t, failed.Candidate)
	require.Nil(t, c.Matrix())

	waitSettled(t, c, domain.MethodProviderOptimized, 1)
}

func TestCoordinatorMalformedMatrixIsUnknownProviderError(t *testing.T) {
	pairs := abcdPairs()[:2] // a single pair in both directions
	c, _ := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), distance.NewMockRouteProvider(pairs), CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B", "D"))

	failed := waitStatus(t, c, domain.MethodLocalHeuristic, domain.StatusFailed)
	require.Equal(t, domain.ErrorKindUnknown, failed.Err.Kind)
}

func TestCoordinatorIdleResetAndRegrow(t *testing.T) {
	pairs := abcdPairs()
	c, pub := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), distance.NewMockRouteProvider(pairs), CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B"))
	waitSettled(t, c, domain.MethodLocalHeuristic, 1)
	waitSettled(t, c, domain.MethodProviderOptimized, 1)

	c.Trigger(snapshotOf(2, "A"))
	for _, m := range domain.Methods {
		s := c.State(m)
		require.Equal(t, domain.StatusIdle, s.Status)
		require.Nil(t, s.Candidate)
		require.Nil(t, s.Err)
	}
	require.Nil(t, c.Matrix())

	// A second sub-2 change is not a transition and publishes nothing.
	before := len(pub.forMethod(domain.MethodLocalHeuristic))
	c.Trigger(snapshotOf(3))
	require.Len(t, pub.forMethod(domain.MethodLocalHeuristic), before)

	c.Trigger(snapshotOf(4, "A", "B"))
	waitSettled(t, c, domain.MethodLocalHeuristic, 4)
	waitSettled(t, c, domain.MethodProviderOptimized, 4)
}

func TestCoordinatorHungProviderDoesNotBlockNewRuns(t *testing.T) {
	pairs := abcdPairs()
	g := newGate()
	router := g.router(distance.NewMockRouteProvider(pairs), func(w []domain.Stop) uint64 { return uint64(len(w)) })
	c, _ := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), router, CoordinatorConfig{})

	c.Trigger(snapshotOf(1, "A", "B"))
	waitSettled(t, c, domain.MethodLocalHeuristic, 1)
	require.Equal(t, domain.StatusRunning, c.State(domain.MethodProviderOptimized).Status)

	c.Trigger(snapshotOf(2, "A", "B", "C"))
	waitSettled(t, c, domain.MethodLocalHeuristic, 2)

	g.release(2, nil)
	waitSettled(t, c, domain.MethodProviderOptimized, 2)

	g.release(1, nil)
	c.Close()
	require.Equal(t, uint64(2), c.State(domain.MethodProviderOptimized).Candidate.SourceVersion)
}

func TestCoordinatorIgnoresOutdatedTrigger(t *testing.T) {
	pairs := abcdPairs()
	c, _ := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), distance.NewMockRouteProvider(pairs), CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(5, "A", "B", "C"))
	c.Trigger(snapshotOf(4, "A", "B"))
	c.Trigger(snapshotOf(5, "A", "B"))

	s := waitSettled(t, c, domain.MethodLocalHeuristic, 5)
	require.Len(t, s.Candidate.Order, 4)
}

func TestCoordinatorDebounceDispatchesOnlyLatest(t *testing.T) {
	pairs := abcdPairs()
	inner := distance.NewMockMatrixProvider(pairs)
	var calls atomic.Int32
	matrix := funcMatrix(func(ctx context.Context, snap domain.Snapshot) (*domain.DistanceMatrix, error) {
		calls.Add(1)
		return inner.FetchMatrix(ctx, snap)
	})
	c, _ := newTestCoordinator(t, matrix, distance.NewMockRouteProvider(pairs), CoordinatorConfig{Debounce: 40 * time.Millisecond})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B"))
	c.Trigger(snapshotOf(2, "A", "B", "C"))
	require.Equal(t, domain.StatusRunning, c.State(domain.MethodLocalHeuristic).Status)
	c.Trigger(snapshotOf(3, "A", "B", "C", "D"))

	waitSettled(t, c, domain.MethodLocalHeuristic, 3)
	require.Equal(t, int32(1), calls.Load())
}

func TestCoordinatorRunTimeoutIsNetworkError(t *testing.T) {
	pairs := abcdPairs()
	router := funcRouter(func(ctx context.Context, _ domain.Stop, _ []domain.Stop) (ports.OptimizedRoute, error) {
		<-ctx.Done()
		return ports.OptimizedRoute{}, ctx.Err()
	})
	c, _ := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), router, CoordinatorConfig{RunTimeout: 20 * time.Millisecond})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B"))

	failed := waitStatus(t, c, domain.MethodProviderOptimized, domain.StatusFailed)
	require.Equal(t, domain.ErrorKindNetwork, failed.Err.Kind)
	waitSettled(t, c, domain.MethodLocalHeuristic, 1)
}

func TestCoordinatorRejectsNonPermutationFromProvider(t *testing.T) {
	pairs := abcdPairs()
	router := funcRouter(func(context.Context, domain.Stop, []domain.Stop) (ports.OptimizedRoute, error) {
		return ports.OptimizedRoute{Order: []int{1, 1}}, nil
	})
	c, _ := newTestCoordinator(t, distance.NewMockMatrixProvider(pairs), router, CoordinatorConfig{})
	defer c.Close()

	c.Trigger(snapshotOf(1, "A", "B", "C"))

	failed := waitStatus(t, c, domain.MethodProviderOptimized, domain.StatusFailed)
	require.Equal(t, domain.ErrorKindUnknown, failed.Err.Kind)
}

func TestProviderCandidateResolvesAgainstSentWaypoints(t *testing.T) {
	origin := domain.Stop{ID: "O"}
	waypoints := []domain.Stop{{ID: "X"}, {ID: "Y"}, {ID: "Z"}}

	cand, err := providerCandidate(7, origin, waypoints, ports.OptimizedRoute{
		Order:          []int{2, 0, 1},
		PerLegDistance: []float64{1, 2, 3, 4},
		PerLegDuration: []float64{10, 20, 30, 40},
	}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"O", "Z", "X", "Y", "O"}, cand.Order)
	require.Equal(t, uint64(7), cand.SourceVersion)
	require.Equal(t, 10.0, *cand.TotalDistanceMeters)
	require.Equal(t, 100.0, *cand.TotalDurationSeconds)
	require.Equal(t, domain.Leg{FromID: "Z", ToID: "X", DistanceMeters: 2, DurationSeconds: 20}, cand.Legs[1])

	// Missing leg data keeps the order but omits summaries.
	cand, err = providerCandidate(7, origin, waypoints, ports.OptimizedRoute{Order: []int{0, 1, 2}}, time.Time{})
	require.NoError(t, err)
	require.Nil(t, cand.TotalDistanceMeters)
	require.Empty(t, cand.Legs)

	_, err = providerCandidate(7, origin, waypoints, ports.OptimizedRoute{Order: []int{0, 1}}, time.Time{})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, domain.ErrorKindUnknown, pe.Kind)
}
