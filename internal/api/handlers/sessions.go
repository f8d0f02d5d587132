package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"route-optimizer-service/internal/api/dto"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/ports"
	"route-optimizer-service/internal/services"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionHandler exposes the location set of each session and the route
// candidates computed for it.
type SessionHandler struct {
	Sessions     *services.SessionManager
	Updates      ports.UpdateSubscriber
	Heartbeat    time.Duration
	StreamRemote bool
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create()
	writeJSON(w, r, http.StatusCreated, dto.SessionResponse{SessionID: s.ID.String()})
}

func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Close(id); err != nil {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, dto.NewListLocations(s.Snapshot()))
}

func (h *SessionHandler) AddLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dto.AddLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stop, version, err := s.AddStop(domain.Stop{
		ID:          req.ID,
		Label:       req.Label,
		Address:     req.Address,
		ProviderRef: req.ProviderRef,
	})
	if err != nil {
		writeMutationError(w, r, err)
		return
	}

	res := dto.NewStop(stop)
	writeJSON(w, r, http.StatusCreated, dto.MutationResponse{Version: version, Stop: &res})
}

func (h *SessionHandler) RemoveLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	version, err := s.RemoveStop(chi.URLParam(r, "stopID"))
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.MutationResponse{Version: version})
}

func (h *SessionHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dto.ReorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.From == nil || req.To == nil {
		writeError(w, r, http.StatusBadRequest, "from and to are required")
		return
	}

	version, err := s.ReorderStops(*req.From, *req.To)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.MutationResponse{Version: version})
}

func (h *SessionHandler) Routes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	states := s.Routes()
	res := dto.ListRoutesResponse{
		Version: s.Snapshot().Version,
		Routes:  make([]dto.RouteUpdateResponse, 0, len(states)),
	}
	for _, u := range states {
		res.Routes = append(res.Routes, dto.NewRouteUpdate(u))
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Matrix returns the pairwise table behind the last settled local-heuristic
// candidate, which may trail the current version.
func (h *SessionHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	m := s.Matrix()
	if m == nil {
		writeError(w, r, http.StatusNotFound, "no distance matrix yet")
		return
	}

	writeJSON(w, r, http.StatusOK, dto.NewMatrix(m, s.Snapshot().Version))
}

// Stream sends the current state of every method, then each update as a
// server-sent event until the client goes away. Slow clients only see the
// newest update of each method.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.Sessions.Get(id)
	if err != nil && !h.StreamRemote {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	topic := services.TopicFor(id)
	updates, unsubscribe, err := h.Updates.Subscribe(topic)
	if err != nil {
		zap.L().Warn("subscribe route updates", zap.String("topic", topic), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "route updates unavailable")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if s != nil {
		for _, u := range s.Routes() {
			if err := writeEvent(w, u); err != nil {
				return
			}
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, u domain.RouteUpdate) error {
	b, err := json.Marshal(dto.NewRouteUpdate(u))
	if err != nil {
		zap.L().Warn("encode route event failed", zap.Error(err))
		return nil
	}
	_, err = fmt.Fprintf(w, "event: route\ndata: %s\n\n", b)
	return err
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	id, ok := sessionID(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.Sessions.Get(id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrStopNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateStop):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusBadRequest, err.Error())
	}
}
