package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/obs"
	"route-optimizer-service/internal/ports"
)

type optimizationJob struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"`
}

type optimizationVehicle struct {
	ID      int       `json:"id"`
	Profile string    `json:"profile"`
	Start   []float64 `json:"start"`
	End     []float64 `json:"end"`
}

type optimizationRequest struct {
	Jobs     []optimizationJob     `json:"jobs"`
	Vehicles []optimizationVehicle `json:"vehicles"`
	Options  struct {
		G bool `json:"g"`
	} `json:"options"`
}

type optimizationStep struct {
	Type     string   `json:"type"`
	Job      int      `json:"job"`
	Distance *float64 `json:"distance"`
	Duration *float64 `json:"duration"`
}

type optimizationResponse struct {
	Routes []struct {
		Steps []optimizationStep `json:"steps"`
	} `json:"routes"`
	Unassigned []struct {
		ID int `json:"id"`
	} `json:"unassigned"`
}

// OptimizeRoute asks /optimization for a round trip from origin through every
// waypoint. Job ids are waypoint index + 1; the returned order is mapped back to
// waypoint indices. Per-leg values come from the cumulative step values and are
// omitted when the response lacks them.
func (o *ORSProvider) OptimizeRoute(
	ctx context.Context,
	origin domain.Stop,
	waypoints []domain.Stop,
) (_ ports.OptimizedRoute, err error) {
	defer obs.Time(ctx, "ors.OptimizeRoute")(&err)

	if len(waypoints) == 0 {
		return ports.OptimizedRoute{}, nil
	}

	all := make([]domain.Stop, 0, 1+len(waypoints))
	all = append(all, origin)
	all = append(all, waypoints...)

	coords, err := o.locate(ctx, all)
	if err != nil {
		return ports.OptimizedRoute{}, err
	}

	var body optimizationRequest
	for i, c := range coords[1:] {
		body.Jobs = append(body.Jobs, optimizationJob{ID: i + 1, Location: c.CoordsToList()})
	}
	body.Vehicles = []optimizationVehicle{{
		ID:      1,
		Profile: o.profile,
		Start:   coords[0].CoordsToList(),
		End:     coords[0].CoordsToList(),
	}}
	body.Options.G = true

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.OptimizedRoute{}, malformed("optimization", "marshal request: %v", err)
	}

	endpoint := o.baseURL + "/optimization"
	resp, err := o.doWithRetry(ctx, "optimization", func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return ports.OptimizedRoute{}, err
	}
	defer resp.Body.Close()

	var decoded optimizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.OptimizedRoute{}, malformed("optimization", "decode response: %v", err)
	}

	if len(decoded.Unassigned) > 0 {
		id := decoded.Unassigned[0].ID
		ref := fmt.Sprint(id)
		if id >= 1 && id <= len(waypoints) {
			ref = waypoints[id-1].ID
		}
		return ports.OptimizedRoute{}, &domain.ProviderError{
			Kind:    domain.ErrorKindInvalidLocation,
			Message: fmt.Sprintf("optimization left %d stop(s) unassigned, first %q", len(decoded.Unassigned), ref),
		}
	}
	if len(decoded.Routes) != 1 {
		return ports.OptimizedRoute{}, malformed("optimization", "expected 1 route, got %d", len(decoded.Routes))
	}

	return routeFromSteps(decoded.Routes[0].Steps), nil
}

// routeFromSteps turns VROOM steps into waypoint order and per-leg costs.
// The step distance and duration fields are cumulative from the start.
func routeFromSteps(steps []optimizationStep) ports.OptimizedRoute {
	var route ports.OptimizedRoute

	var (
		cumDistance []float64
		cumDuration []float64
		complete    = true
	)
	for _, s := range steps {
		switch s.Type {
		case "job":
			route.Order = append(route.Order, s.Job-1)
		case "start", "end":
		default:
			continue
		}
		if s.Distance == nil || s.Duration == nil {
			complete = false
			continue
		}
		cumDistance = append(cumDistance, *s.Distance)
		cumDuration = append(cumDuration, *s.Duration)
	}

	if !complete || len(cumDistance) != len(route.Order)+2 {
		return route
	}

	for k := 1; k < len(cumDistance); k++ {
		route.PerLegDistance = append(route.PerLegDistance, cumDistance[k]-cumDistance[k-1])
		route.PerLegDuration = append(route.PerLegDuration, cumDuration[k]-cumDuration[k-1])
	}
	return route
}
