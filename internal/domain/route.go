package domain

import "time"

// Method identifies how a route candidate was computed.
type Method string

const (
	MethodLocalHeuristic    Method = "local-heuristic"
	MethodProviderOptimized Method = "provider-optimized"
)

// Methods lists every method the coordinator runs, in publication order.
var Methods = []Method{MethodLocalHeuristic, MethodProviderOptimized}

// Status is the externally visible state of one method.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
)

// Leg is one hop of a tour.
type Leg struct {
	FromID          string
	ToID            string
	DistanceMeters  float64
	DurationSeconds float64
}

// Represents one computed visiting order plus its provenance.
// Order starts and ends at the same origin stop id.
// Totals are nil when the computing method could not summarize the tour
// (e.g. an unreachable leg). A candidate is never mutated once published.
type RouteCandidate struct {
	SourceVersion        uint64
	Method               Method
	Order                []string
	Legs                 []Leg
	TotalDistanceMeters  *float64
	TotalDurationSeconds *float64
	ComputedAt           time.Time
}

// RouteUpdate is published on every state transition of one method.
type RouteUpdate struct {
	Method    Method
	Status    Status
	Version   uint64
	Candidate *RouteCandidate
	Err       *ProviderError
}
