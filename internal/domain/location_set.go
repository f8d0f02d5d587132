package domain

import (
	"fmt"
	"strings"
	"sync"
)

// Snapshot is an immutable copy of a LocationSet taken at a given version.
type Snapshot struct {
	Version uint64
	Stops   []Stop
}

// Len returns the number of stops in the snapshot.
func (s Snapshot) Len() int { return len(s.Stops) }

// IDs returns the stop ids in snapshot order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Stops))
	for _, st := range s.Stops {
		ids = append(ids, st.ID)
	}
	return ids
}

// LocationSet is the caller-owned, ordered collection of stops to route.
// Every successful Add, Remove or Reorder increments Version.
// Stop ids are unique within a set. The set is safe for concurrent use.
type LocationSet struct {
	mu      sync.RWMutex
	version uint64
	stops   []Stop
}

func NewLocationSet() *LocationSet {
	return &LocationSet{}
}

// Add appends a stop and returns the new version.
func (l *LocationSet) Add(stop Stop) (uint64, error) {
	if strings.TrimSpace(stop.ID) == "" {
		return 0, fmt.Errorf("add stop: id must not be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.stops {
		if s.ID == stop.ID {
			return 0, fmt.Errorf("add stop %q: %w", stop.ID, ErrDuplicateStop)
		}
	}

	l.stops = append(l.stops, stop)
	l.version++
	return l.version, nil
}

// Remove deletes the stop with the given id and returns the new version.
func (l *LocationSet) Remove(id string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, s := range l.stops {
		if s.ID != id {
			continue
		}
		next := make([]Stop, 0, len(l.stops)-1)
		next = append(next, l.stops[:i]...)
		next = append(next, l.stops[i+1:]...)
		l.stops = next
		l.version++
		return l.version, nil
	}

	return 0, fmt.Errorf("remove stop %q: %w", id, ErrStopNotFound)
}

// Reorder moves the stop at from so that it ends up at index to.
func (l *LocationSet) Reorder(from, to int) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.stops)
	if from < 0 || from >= n || to < 0 || to >= n {
		return 0, fmt.Errorf("reorder stops from=%d to=%d len=%d: %w", from, to, n, ErrIndexOutOfRange)
	}

	moved := l.stops[from]
	next := make([]Stop, 0, n)
	next = append(next, l.stops[:from]...)
	next = append(next, l.stops[from+1:]...)
	next = append(next[:to], append([]Stop{moved}, next[to:]...)...)

	l.stops = next
	l.version++
	return l.version, nil
}

// Snapshot returns the current stops and version as one consistent pair.
func (l *LocationSet) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stops := make([]Stop, len(l.stops))
	copy(stops, l.stops)
	return Snapshot{Version: l.version, Stops: stops}
}

func (l *LocationSet) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}
