package profile

import (
	"math"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// WindowKm is the minimum horizontal run of a grade window.
const WindowKm = 0.1

// ComputeGrades returns one grade percentage per profile point.
//
// Windows start at index i and extend until they span at least WindowKm or
// reach the last point. The window grade, rounded to one decimal, is assigned
// to every index of the window; a boundary index shared with the previous
// window keeps the previous value. A window with zero run (only possible at
// the tail) is skipped and its points inherit the last computed grade.
func ComputeGrades(profile []domain.ProfilePoint) []float64 {
	n := len(profile)
	grades := make([]float64, n)
	if n < 2 {
		return grades
	}

	var last float64
	covered := -1 // highest index already assigned
	start := 0
	for start < n-1 {
		end := start + 1
		for end < n-1 && profile[end].DistanceKm-profile[start].DistanceKm < WindowKm {
			end++
		}

		run := (profile[end].DistanceKm - profile[start].DistanceKm) * 1000
		if run <= 0 {
			break
		}

		g := round1((profile[end].ElevationMeters - profile[start].ElevationMeters) / run * 100)
		for k := covered + 1; k <= end; k++ {
			grades[k] = g
		}
		covered = end
		last = g
		start = end
	}

	for k := covered + 1; k < n; k++ {
		grades[k] = last
	}
	return grades
}

// GradeColor maps a grade to its color bucket by magnitude.
func GradeColor(grade float64) domain.ColorBucket {
	g := math.Abs(grade)
	switch {
	case g < 2:
		return domain.Bucket0
	case g < 4:
		return domain.Bucket1
	case g < 6:
		return domain.Bucket2
	case g < 8:
		return domain.Bucket3
	case g < 10:
		return domain.Bucket4
	case g < 14:
		return domain.Bucket5
	default:
		return domain.Bucket6
	}
}

// GroupSegments partitions the profile into maximal runs sharing a color bucket.
// Each run reports its steepest grade. grades must have the same length as profile.
func GroupSegments(profile []domain.ProfilePoint, grades []float64) []domain.GradeSegment {
	if len(profile) == 0 || len(grades) != len(profile) {
		return nil
	}

	var out []domain.GradeSegment
	start := 0
	for i := 1; i <= len(profile); i++ {
		if i < len(profile) && GradeColor(grades[i]) == GradeColor(grades[start]) {
			continue
		}
		out = append(out, newGradeSegment(profile, grades, start, i-1))
		start = i
	}
	return out
}

// Segments computes grades and groups them in one step.
func Segments(profile []domain.ProfilePoint) []domain.GradeSegment {
	return GroupSegments(profile, ComputeGrades(profile))
}

func newGradeSegment(profile []domain.ProfilePoint, grades []float64, from, to int) domain.GradeSegment {
	steepest := grades[from]
	for k := from + 1; k <= to; k++ {
		if math.Abs(grades[k]) > math.Abs(steepest) {
			steepest = grades[k]
		}
	}
	return domain.GradeSegment{
		StartIndex:   from,
		EndIndex:     to,
		Points:       append([]domain.ProfilePoint(nil), profile[from:to+1]...),
		GradePercent: steepest,
		Bucket:       GradeColor(grades[from]),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
