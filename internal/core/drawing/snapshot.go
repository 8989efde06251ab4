package drawing

import (
	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/profile"
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID            string                `json:"id"`
	State         string                `json:"state"`
	Generation    uint64                `json:"generation"`
	SnapToRoad    bool                  `json:"snap_to_road"`
	LayerID       string                `json:"layer_id,omitempty"`
	Points        []domain.GeoPoint     `json:"points"`
	Elevations    []int                 `json:"elevations"`
	Unresolved    int                   `json:"unresolved"`
	Pending       int                   `json:"pending"`
	Profile       []domain.ProfilePoint `json:"profile"`
	Grades        []float64             `json:"grades"`
	GradeSegments []domain.GradeSegment `json:"grade_segments"`
}

// Snapshot returns the current points with the live profile derived from
// them. The profile is always recomputed from the full point list.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:         s.id,
		State:      s.state.String(),
		Generation: s.generation,
		SnapToRoad: s.snapToRoad,
		LayerID:    s.layerID,
		Pending:    s.pending,
		Elevations: make([]int, len(s.points)),
	}
	points, elevations := s.pathLocked()
	for i, p := range s.points {
		snap.Elevations[i] = p.elevation
		if !p.resolved {
			snap.Unresolved++
		}
	}
	s.mu.Unlock()

	snap.Points = points
	snap.Profile = profile.Build(points, elevations)
	snap.Grades = profile.ComputeGrades(snap.Profile)
	snap.GradeSegments = profile.GroupSegments(snap.Profile, snap.Grades)
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the current generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
