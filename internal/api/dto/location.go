package dto

import "route-optimizer-service/internal/domain"

type AddLocationRequest struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Address     string `json:"address"`
	ProviderRef string `json:"provider_ref"`
}

type ReorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

type StopResponse struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Address     string `json:"address"`
	ProviderRef string `json:"provider_ref"`
}

type ListLocationsResponse struct {
	Version uint64         `json:"version"`
	Stops   []StopResponse `json:"stops"`
}

type MutationResponse struct {
	Version uint64        `json:"version"`
	Stop    *StopResponse `json:"stop,omitempty"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

func NewStop(s domain.Stop) StopResponse {
	return StopResponse{ID: s.ID, Label: s.Label, Address: s.Address, ProviderRef: s.ProviderRef}
}

func NewListLocations(snap domain.Snapshot) ListLocationsResponse {
	res := ListLocationsResponse{Version: snap.Version, Stops: make([]StopResponse, 0, snap.Len())}
	for _, s := range snap.Stops {
		res.Stops = append(res.Stops, NewStop(s))
	}
	return res
}
