package dto

import (
	"math"
	"route-optimizer-service/internal/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMatrixLabelsStopsAsBuilt(t *testing.T) {
	set := domain.NewLocationSet()
	for _, st := range []domain.Stop{
		{ID: "A", Label: "Depot", ProviderRef: "a"},
		{ID: "B", Label: "Bakery", ProviderRef: "b"},
	} {
		_, err := set.Add(st)
		require.NoError(t, err)
	}

	m, err := domain.NewDistanceMatrix(set.Snapshot(), [][]domain.Cell{
		{{}, {DistanceMeters: 120, DurationSeconds: 30}},
		{domain.Unreachable(), {}},
	})
	require.NoError(t, err)

	// The stop leaves the set after the matrix was computed.
	v, err := set.Remove("B")
	require.NoError(t, err)

	res := NewMatrix(m, v)
	require.Equal(t, uint64(2), res.SourceVersion)
	require.Equal(t, uint64(3), res.CurrentVersion)
	require.Len(t, res.Entries, 2)

	ab, ba := res.Entries[0], res.Entries[1]
	require.Equal(t, "Depot", ab.FromLabel)
	require.Equal(t, "Bakery", ab.ToLabel)
	require.Equal(t, 120.0, *ab.DistanceMeters)
	require.Equal(t, "Bakery", ba.FromLabel)
	require.Nil(t, ba.DistanceMeters)
	require.False(t, math.IsNaN(*ab.DurationSeconds))
}
