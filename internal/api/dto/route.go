package dto

import (
	"math"
	"route-optimizer-service/internal/domain"
	"time"
)

// LegResponse costs are null when the leg has no route.
type LegResponse struct {
	FromID          string   `json:"from_id"`
	ToID            string   `json:"to_id"`
	DistanceMeters  *float64 `json:"distance_meters"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

type CandidateResponse struct {
	SourceVersion        uint64        `json:"source_version"`
	Method               string        `json:"method"`
	Order                []string      `json:"order"`
	Legs                 []LegResponse `json:"legs"`
	TotalDistanceMeters  *float64      `json:"total_distance_meters"`
	TotalDurationSeconds *float64      `json:"total_duration_seconds"`
	ComputedAt           time.Time     `json:"computed_at"`
}

type ProviderErrorResponse struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// RouteUpdateResponse is the API view of one method's state.
type RouteUpdateResponse struct {
	Method    string                 `json:"method"`
	Status    string                 `json:"status"`
	Version   uint64                 `json:"version"`
	Candidate *CandidateResponse     `json:"candidate"`
	Error     *ProviderErrorResponse `json:"error"`
}

type ListRoutesResponse struct {
	Version uint64                `json:"version"`
	Routes  []RouteUpdateResponse `json:"routes"`
}

// finite maps +Inf and NaN to nil; JSON has no infinity.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func NewRouteUpdate(u domain.RouteUpdate) RouteUpdateResponse {
	res := RouteUpdateResponse{
		Method:  string(u.Method),
		Status:  string(u.Status),
		Version: u.Version,
	}

	if c := u.Candidate; c != nil {
		legs := make([]LegResponse, 0, len(c.Legs))
		for _, l := range c.Legs {
			legs = append(legs, LegResponse{
				FromID:          l.FromID,
				ToID:            l.ToID,
				DistanceMeters:  finite(l.DistanceMeters),
				DurationSeconds: finite(l.DurationSeconds),
			})
		}
		res.Candidate = &CandidateResponse{
			SourceVersion:        c.SourceVersion,
			Method:               string(c.Method),
			Order:                append([]string(nil), c.Order...),
			Legs:                 legs,
			TotalDistanceMeters:  copyPtr(c.TotalDistanceMeters),
			TotalDurationSeconds: copyPtr(c.TotalDurationSeconds),
			ComputedAt:           c.ComputedAt,
		}
	}

	if e := u.Err; e != nil {
		res.Error = &ProviderErrorResponse{Kind: string(e.Kind), Status: e.Status, Message: e.Message}
	}

	return res
}
