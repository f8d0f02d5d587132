package services

import (
	"context"
	"errors"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/metrics"
	"route-optimizer-service/internal/ports"
	"sync"
	"time"

	"go.uber.org/zap"
)

type CoordinatorConfig struct {
	// Debounce delays dispatch until the location set has been quiet this long.
	Debounce time.Duration
	// RunTimeout bounds each provider call. Zero means no bound.
	RunTimeout time.Duration
}

// pendingRun is one in-flight run of one method. It is only touched under Coordinator.mu.
type pendingRun struct {
	version    uint64
	cancelled  bool
	dispatched bool
	cancel     context.CancelFunc
}

type methodState struct {
	status    domain.Status
	candidate *domain.RouteCandidate
	err       *domain.ProviderError
	pending   *pendingRun
}

// Coordinator drives one optimization cycle per LocationSet change, for the
// local-heuristic and provider-optimized methods independently.
//
// Runs operate on immutable snapshots. A result is published only if its run
// is still the pending run of its method and its version is the latest version
// seen; anything else is a stale result and is dropped (last version wins, not
// last to finish). Superseded runs also get their context cancelled.
//
// Publisher.Publish is called while holding the coordinator lock so updates of
// one method are delivered in transition order; implementations must not block.
type Coordinator struct {
	topic     string
	matrix    ports.DistanceMatrixProvider
	router    ports.RouteProvider
	publisher ports.UpdatePublisher
	logger    *zap.Logger
	cfg       CoordinatorConfig
	now       func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	started    bool
	current    uint64
	methods    map[domain.Method]*methodState
	lastMatrix *domain.DistanceMatrix
	debounce   *time.Timer
}

func NewCoordinator(
	topic string,
	matrix ports.DistanceMatrixProvider,
	router ports.RouteProvider,
	publisher ports.UpdatePublisher,
	logger *zap.Logger,
	cfg CoordinatorConfig,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	methods := make(map[domain.Method]*methodState, len(domain.Methods))
	for _, m := range domain.Methods {
		methods[m] = &methodState{status: domain.StatusIdle}
	}

	return &Coordinator{
		topic:      topic,
		matrix:     matrix,
		router:     router,
		publisher:  publisher,
		logger:     logger.With(zap.String("topic", topic)),
		cfg:        cfg,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		methods:    methods,
	}
}

// Trigger starts a new cycle for snap. Snapshots older than the latest one
// seen, or repeats of it, are ignored.
func (c *Coordinator) Trigger(snap domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.started && snap.Version <= c.current {
		c.logger.Debug("ignoring outdated trigger",
			zap.Uint64("version", snap.Version),
			zap.Uint64("current", c.current),
		)
		return
	}

	c.started = true
	c.current = snap.Version
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}

	if snap.Len() < 2 {
		c.lastMatrix = nil
		for _, m := range domain.Methods {
			st := c.methods[m]
			c.cancelPending(st)
			if st.status == domain.StatusIdle && st.candidate == nil && st.err == nil {
				continue
			}
			st.status = domain.StatusIdle
			st.candidate = nil
			st.err = nil
			c.publishLocked(m)
		}
		return
	}

	for _, m := range domain.Methods {
		st := c.methods[m]
		c.cancelPending(st)
		st.pending = &pendingRun{version: snap.Version}
		st.status = domain.StatusRunning
		st.err = nil
		c.publishLocked(m)
	}

	if c.cfg.Debounce > 0 {
		c.debounce = time.AfterFunc(c.cfg.Debounce, func() { c.dispatch(snap) })
		return
	}
	c.dispatchLocked(snap)
}

func (c *Coordinator) dispatch(snap domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLocked(snap)
}

func (c *Coordinator) dispatchLocked(snap domain.Snapshot) {
	if c.closed || snap.Version != c.current {
		return
	}

	for _, m := range domain.Methods {
		run := c.methods[m].pending
		if run == nil || run.cancelled || run.dispatched || run.version != snap.Version {
			continue
		}

		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if c.cfg.RunTimeout > 0 {
			ctx, cancel = context.WithTimeout(c.baseCtx, c.cfg.RunTimeout)
		} else {
			ctx, cancel = context.WithCancel(c.baseCtx)
		}
		run.dispatched = true
		run.cancel = cancel

		c.wg.Add(1)
		switch m {
		case domain.MethodLocalHeuristic:
			go c.runLocal(ctx, run, snap)
		case domain.MethodProviderOptimized:
			go c.runProvider(ctx, run, snap)
		}
	}
}

// runLocal fetches the matrix and then solves it; the two steps are sequential.
func (c *Coordinator) runLocal(ctx context.Context, run *pendingRun, snap domain.Snapshot) {
	defer c.wg.Done()
	start := time.Now()

	m, err := c.matrix.FetchMatrix(ctx, snap)
	if err != nil {
		c.complete(domain.MethodLocalHeuristic, run, nil, nil, err, start)
		return
	}

	if m == nil || m.Size() != snap.Len() || m.Version() != snap.Version {
		err := &domain.ProviderError{Kind: domain.ErrorKindUnknown, Message: "distance matrix does not match the requested stops"}
		c.complete(domain.MethodLocalHeuristic, run, nil, nil, err, start)
		return
	}

	order, err := NearestNeighborOrder(m, 0)
	if err != nil {
		c.complete(domain.MethodLocalHeuristic, run, nil, nil, err, start)
		return
	}

	c.complete(domain.MethodLocalHeuristic, run, localCandidate(m, order, c.now()), m, nil, start)
}

// runProvider asks the route provider to order snap.Stops[1:] around snap.Stops[0].
func (c *Coordinator) runProvider(ctx context.Context, run *pendingRun, snap domain.Snapshot) {
	defer c.wg.Done()
	start := time.Now()

	origin := snap.Stops[0]
	waypoints := append([]domain.Stop(nil), snap.Stops[1:]...)

	route, err := c.router.OptimizeRoute(ctx, origin, waypoints)
	if err != nil {
		c.complete(domain.MethodProviderOptimized, run, nil, nil, err, start)
		return
	}

	cand, err := providerCandidate(snap.Version, origin, waypoints, route, c.now())
	c.complete(domain.MethodProviderOptimized, run, cand, nil, err, start)
}

func (c *Coordinator) complete(
	method domain.Method,
	run *pendingRun,
	cand *domain.RouteCandidate,
	matrix *domain.DistanceMatrix,
	err error,
	start time.Time,
) {
	metrics.RouteRunDuration.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.methods[method]
	if c.closed || run.cancelled || st.pending != run || run.version != c.current {
		metrics.RouteRuns.WithLabelValues(string(method), "stale").Inc()
		c.logger.Debug("stale result discarded",
			zap.String("method", string(method)),
			zap.Uint64("version", run.version),
			zap.Uint64("current", c.current),
			zap.Bool("failed", err != nil),
		)
		return
	}

	st.pending = nil
	if run.cancel != nil {
		run.cancel()
	}

	if err != nil {
		pe := domain.AsProviderError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			pe = &domain.ProviderError{Kind: domain.ErrorKindNetwork, Message: "provider call timed out", Err: err}
		}
		st.status = domain.StatusFailed
		st.err = pe
		metrics.RouteRuns.WithLabelValues(string(method), "failed").Inc()
		c.logger.Warn("route run failed",
			zap.String("method", string(method)),
			zap.Uint64("version", run.version),
			zap.String("kind", string(pe.Kind)),
			zap.Error(err),
		)
		c.publishLocked(method)
		return
	}

	st.status = domain.StatusSettled
	st.candidate = cand
	st.err = nil
	if matrix != nil {
		c.lastMatrix = matrix
	}
	metrics.RouteRuns.WithLabelValues(string(method), "settled").Inc()
	c.logger.Info("route run settled",
		zap.String("method", string(method)),
		zap.Uint64("version", run.version),
		zap.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	c.publishLocked(method)
}

func (c *Coordinator) cancelPending(st *methodState) {
	if st.pending == nil {
		return
	}
	st.pending.cancelled = true
	if st.pending.cancel != nil {
		st.pending.cancel()
	}
	st.pending = nil
}

func (c *Coordinator) stateLocked(method domain.Method) domain.RouteUpdate {
	st := c.methods[method]
	return domain.RouteUpdate{
		Method:    method,
		Status:    st.status,
		Version:   c.current,
		Candidate: st.candidate,
		Err:       st.err,
	}
}

func (c *Coordinator) publishLocked(method domain.Method) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(c.topic, c.stateLocked(method))
}

// State returns the latest visible state of one method.
func (c *Coordinator) State(method domain.Method) domain.RouteUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(method)
}

// States returns the latest visible state of every method.
func (c *Coordinator) States() []domain.RouteUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.RouteUpdate, 0, len(domain.Methods))
	for _, m := range domain.Methods {
		out = append(out, c.stateLocked(m))
	}
	return out
}

// Matrix returns the matrix behind the last settled local-heuristic candidate,
// or nil when there is none.
func (c *Coordinator) Matrix() *domain.DistanceMatrix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMatrix
}

// Close cancels in-flight runs and waits for their goroutines to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	for _, st := range c.methods {
		c.cancelPending(st)
	}
	c.mu.Unlock()

	c.baseCancel()
	c.wg.Wait()
}
