package dto

import "route-optimizer-service/internal/domain"

// MatrixEntryResponse is one ordered pair of distinct stops.
type MatrixEntryResponse struct {
	FromID          string   `json:"from_id"`
	FromLabel       string   `json:"from_label"`
	ToID            string   `json:"to_id"`
	ToLabel         string   `json:"to_label"`
	DistanceMeters  *float64 `json:"distance_meters"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

type MatrixResponse struct {
	SourceVersion  uint64                `json:"source_version"`
	CurrentVersion uint64                `json:"current_version"`
	Entries        []MatrixEntryResponse `json:"entries"`
}

// NewMatrix lists every i != j pair in row order, labelled as the stops were
// when the matrix was built.
func NewMatrix(m *domain.DistanceMatrix, current uint64) MatrixResponse {
	n := m.Size()
	res := MatrixResponse{
		SourceVersion:  m.Version(),
		CurrentVersion: current,
		Entries:        make([]MatrixEntryResponse, 0, n*(n-1)),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			c := m.At(i, j)
			res.Entries = append(res.Entries, MatrixEntryResponse{
				FromID:          m.StopID(i),
				FromLabel:       m.Label(i),
				ToID:            m.StopID(j),
				ToLabel:         m.Label(j),
				DistanceMeters:  finite(c.DistanceMeters),
				DurationSeconds: finite(c.DurationSeconds),
			})
		}
	}
	return res
}
