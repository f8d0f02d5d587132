package domain

import (
	"fmt"
	"math"
)

// Cell is the travel cost from one stop to another.
// Unreachable pairs carry +Inf in both fields.
type Cell struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// Unreachable returns the sentinel cell for a pair with no route.
func Unreachable() Cell {
	return Cell{DistanceMeters: math.Inf(1), DurationSeconds: math.Inf(1)}
}

// Reachable reports whether the cell holds finite travel costs.
func (c Cell) Reachable() bool {
	return !math.IsInf(c.DistanceMeters, 0) && !math.IsNaN(c.DistanceMeters)
}

// Represents the pairwise travel cost table over one LocationSet snapshot.
// Row and column i correspond to the i-th stop of the snapshot it was built from.
// Diagonal entries are unused. A DistanceMatrix is never mutated after creation.
type DistanceMatrix struct {
	version uint64
	stopIDs []string
	labels  []string
	cells   [][]Cell
}

// NewDistanceMatrix copies cells into a matrix bound to the given snapshot.
func NewDistanceMatrix(snap Snapshot, cells [][]Cell) (*DistanceMatrix, error) {
	n := snap.Len()
	if len(cells) != n {
		return nil, fmt.Errorf("new distance matrix: got %d rows, want %d", len(cells), n)
	}

	copied := make([][]Cell, n)
	for i, row := range cells {
		if len(row) != n {
			return nil, fmt.Errorf("new distance matrix: row %d has %d columns, want %d", i, len(row), n)
		}
		copied[i] = append([]Cell(nil), row...)
	}

	labels := make([]string, n)
	for i, st := range snap.Stops {
		labels[i] = st.Label
	}

	return &DistanceMatrix{
		version: snap.Version,
		stopIDs: snap.IDs(),
		labels:  labels,
		cells:   copied,
	}, nil
}

// Size returns n for an n×n matrix.
func (m *DistanceMatrix) Size() int { return len(m.cells) }

// At returns the travel cost from row i to column j.
func (m *DistanceMatrix) At(i, j int) Cell { return m.cells[i][j] }

// Version is the LocationSet version the matrix was built from.
func (m *DistanceMatrix) Version() uint64 { return m.version }

// StopID returns the id of the stop at index i.
func (m *DistanceMatrix) StopID(i int) string { return m.stopIDs[i] }

// StopIDs returns the row ids in matrix order.
func (m *DistanceMatrix) StopIDs() []string { return append([]string(nil), m.stopIDs...) }

// Label returns the display label the stop at index i had when the matrix was
// built, falling back to its id.
func (m *DistanceMatrix) Label(i int) string {
	if m.labels[i] == "" {
		return m.stopIDs[i]
	}
	return m.labels[i]
}
