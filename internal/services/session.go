package services

import (
	"errors"
	"fmt"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/ports"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// Session pairs one caller-owned LocationSet with the Coordinator routing it.
// Every successful mutation triggers a new cycle with a fresh snapshot.
type Session struct {
	ID    uuid.UUID
	set   *domain.LocationSet
	coord *Coordinator
}

// AddStop appends a stop. A missing id is generated; a missing provider
// reference defaults to the address.
func (s *Session) AddStop(stop domain.Stop) (domain.Stop, uint64, error) {
	stop.ID = strings.TrimSpace(stop.ID)
	if stop.ID == "" {
		stop.ID = uuid.NewString()
	}

	stop.Address = strings.TrimSpace(stop.Address)
	stop.ProviderRef = strings.TrimSpace(stop.ProviderRef)
	if stop.ProviderRef == "" {
		stop.ProviderRef = stop.Address
	}
	if stop.ProviderRef == "" {
		return domain.Stop{}, 0, errors.New("add stop: address or provider reference is required")
	}

	if strings.TrimSpace(stop.Label) == "" {
		stop.Label = stop.Address
	}

	v, err := s.set.Add(stop)
	if err != nil {
		return domain.Stop{}, 0, err
	}
	s.coord.Trigger(s.set.Snapshot())
	return stop, v, nil
}

func (s *Session) RemoveStop(id string) (uint64, error) {
	v, err := s.set.Remove(id)
	if err != nil {
		return 0, err
	}
	s.coord.Trigger(s.set.Snapshot())
	return v, nil
}

func (s *Session) ReorderStops(from, to int) (uint64, error) {
	v, err := s.set.Reorder(from, to)
	if err != nil {
		return 0, err
	}
	s.coord.Trigger(s.set.Snapshot())
	return v, nil
}

func (s *Session) Snapshot() domain.Snapshot { return s.set.Snapshot() }

func (s *Session) Routes() []domain.RouteUpdate { return s.coord.States() }

func (s *Session) Matrix() *domain.DistanceMatrix { return s.coord.Matrix() }

// Topic is the broker topic the session's route updates are published on.
func (s *Session) Topic() string { return TopicFor(s.ID) }

// TopicFor is the broker topic for a session id.
func TopicFor(id uuid.UUID) string { return "session:" + id.String() }

// SessionManager creates sessions sharing the same providers and publisher.
type SessionManager struct {
	matrix    ports.DistanceMatrixProvider
	router    ports.RouteProvider
	publisher ports.UpdatePublisher
	logger    *zap.Logger
	cfg       CoordinatorConfig

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewSessionManager(
	matrix ports.DistanceMatrixProvider,
	router ports.RouteProvider,
	publisher ports.UpdatePublisher,
	logger *zap.Logger,
	cfg CoordinatorConfig,
) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		matrix:    matrix,
		router:    router,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

func (m *SessionManager) Create() *Session {
	id := uuid.New()
	s := &Session{
		ID:    id,
		set:   domain.NewLocationSet(),
		coord: NewCoordinator(TopicFor(id), m.matrix, m.router, m.publisher, m.logger, m.cfg),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session_id", id.String()))
	return s
}

func (m *SessionManager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// Close stops the session's coordinator and forgets the session.
func (m *SessionManager) Close(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("close session %s: %w", id, ErrSessionNotFound)
	}

	s.coord.Close()
	m.logger.Info("session closed", zap.String("session_id", id.String()))
	return nil
}

// CloseAll closes every session; used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.coord.Close()
	}
}
