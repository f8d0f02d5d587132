package broker

import (
	"encoding/json"
	"fmt"
	"math"
	"route-optimizer-service/internal/domain"
	"time"
)

// Wire format of a route update on Redis. JSON has no infinity, so
// unreachable leg costs travel as null.
type wireLeg struct {
	FromID          string   `json:"from_id"`
	ToID            string   `json:"to_id"`
	DistanceMeters  *float64 `json:"distance_meters"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

type wireCandidate struct {
	SourceVersion        uint64    `json:"source_version"`
	Method               string    `json:"method"`
	Order                []string  `json:"order"`
	Legs                 []wireLeg `json:"legs"`
	TotalDistanceMeters  *float64  `json:"total_distance_meters"`
	TotalDurationSeconds *float64  `json:"total_duration_seconds"`
	ComputedAt           time.Time `json:"computed_at"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

type wireUpdate struct {
	Method    string         `json:"method"`
	Status    string         `json:"status"`
	Version   uint64         `json:"version"`
	Candidate *wireCandidate `json:"candidate"`
	Error     *wireError     `json:"error"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func orInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}

func encodeUpdate(u domain.RouteUpdate) ([]byte, error) {
	w := wireUpdate{Method: string(u.Method), Status: string(u.Status), Version: u.Version}

	if c := u.Candidate; c != nil {
		legs := make([]wireLeg, 0, len(c.Legs))
		for _, l := range c.Legs {
			legs = append(legs, wireLeg{
				FromID:          l.FromID,
				ToID:            l.ToID,
				DistanceMeters:  finite(l.DistanceMeters),
				DurationSeconds: finite(l.DurationSeconds),
			})
		}
		w.Candidate = &wireCandidate{
			SourceVersion:        c.SourceVersion,
			Method:               string(c.Method),
			Order:                c.Order,
			Legs:                 legs,
			TotalDistanceMeters:  c.TotalDistanceMeters,
			TotalDurationSeconds: c.TotalDurationSeconds,
			ComputedAt:           c.ComputedAt,
		}
	}

	if e := u.Err; e != nil {
		w.Error = &wireError{Kind: string(e.Kind), Status: e.Status, Message: e.Message}
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode route update: %w", err)
	}
	return b, nil
}

func decodeUpdate(payload []byte) (domain.RouteUpdate, error) {
	var w wireUpdate
	if err := json.Unmarshal(payload, &w); err != nil {
		return domain.RouteUpdate{}, fmt.Errorf("decode route update: %w", err)
	}

	u := domain.RouteUpdate{
		Method:  domain.Method(w.Method),
		Status:  domain.Status(w.Status),
		Version: w.Version,
	}

	if c := w.Candidate; c != nil {
		legs := make([]domain.Leg, 0, len(c.Legs))
		for _, l := range c.Legs {
			legs = append(legs, domain.Leg{
				FromID:          l.FromID,
				ToID:            l.ToID,
				DistanceMeters:  orInf(l.DistanceMeters),
				DurationSeconds: orInf(l.DurationSeconds),
			})
		}
		u.Candidate = &domain.RouteCandidate{
			SourceVersion:        c.SourceVersion,
			Method:               domain.Method(c.Method),
			Order:                c.Order,
			Legs:                 legs,
			TotalDistanceMeters:  c.TotalDistanceMeters,
			TotalDurationSeconds: c.TotalDurationSeconds,
			ComputedAt:           c.ComputedAt,
		}
	}

	if e := w.Error; e != nil {
		u.Err = &domain.ProviderError{Kind: domain.ErrorKind(e.Kind), Status: e.Status, Message: e.Message}
	}

	return u, nil
}
