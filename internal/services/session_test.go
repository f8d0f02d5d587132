package services

import (
	"route-optimizer-service/internal/adapters/distance"
	"route-optimizer-service/internal/domain"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *recordingPublisher) {
	t.Helper()
	pairs := abcdPairs()
	pub := &recordingPublisher{}
	m := NewSessionManager(distance.NewMockMatrixProvider(pairs), distance.NewMockRouteProvider(pairs), pub, nil, CoordinatorConfig{})
	t.Cleanup(m.CloseAll)
	return m, pub
}

func TestSessionAddStopDefaults(t *testing.T) {
	m, _ := newTestManager(t)
	s := m.Create()

	stop, v, err := s.AddStop(domain.Stop{Address: "  1 Main St  "})
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)
	require.NotEmpty(t, stop.ID)
	require.Equal(t, "1 Main St", stop.Address)
	require.Equal(t, "1 Main St", stop.ProviderRef)
	require.Equal(t, "1 Main St", stop.Label)

	_, _, err = s.AddStop(domain.Stop{ID: "x"})
	require.Error(t, err)
	require.Equal(t, uint64(1), s.Snapshot().Version)

	_, _, err = s.AddStop(domain.Stop{ID: stop.ID, Address: "elsewhere"})
	require.ErrorIs(t, err, domain.ErrDuplicateStop)
}

func TestSessionMutationsDriveRoutes(t *testing.T) {
	m, pub := newTestManager(t)
	s := m.Create()

	for _, id := range []string{"A", "C", "B"} {
		_, _, err := s.AddStop(domain.Stop{ID: id, Address: id})
		require.NoError(t, err)
	}
	waitSettled(t, s.coord, domain.MethodLocalHeuristic, 3)
	waitSettled(t, s.coord, domain.MethodProviderOptimized, 3)

	routes := s.Routes()
	require.Len(t, routes, 2)
	require.Equal(t, []string{"A", "B", "C", "A"}, routes[0].Candidate.Order)
	require.NotNil(t, s.Matrix())
	require.Equal(t, []string{"A", "C", "B"}, s.Matrix().StopIDs())

	v, err := s.ReorderStops(2, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(4), v)
	require.Equal(t, []string{"B", "A", "C"}, s.Snapshot().IDs())
	waitSettled(t, s.coord, domain.MethodLocalHeuristic, 4)

	_, err = s.ReorderStops(0, 9)
	require.ErrorIs(t, err, domain.ErrIndexOutOfRange)

	_, err = s.RemoveStop("missing")
	require.ErrorIs(t, err, domain.ErrStopNotFound)

	_, err = s.RemoveStop("A")
	require.NoError(t, err)
	_, err = s.RemoveStop("C")
	require.NoError(t, err)

	for _, r := range s.Routes() {
		require.Equal(t, domain.StatusIdle, r.Status)
		require.Nil(t, r.Candidate)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.updates)
}

func TestSessionManagerLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	s := m.Create()
	require.Equal(t, "session:"+s.ID.String(), s.Topic())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	require.Same(t, s, got)

	_, err = m.Get(uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, m.Close(s.ID))
	require.ErrorIs(t, m.Close(s.ID), ErrSessionNotFound)

	_, err = m.Get(s.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
