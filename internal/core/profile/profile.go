// Package profile derives elevation profiles, grades and finished segments
// from an ordered point sequence and its sampled elevations.
package profile

import (
	"fmt"
	"strings"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/pkg/geospatial"
)

// Build pairs each point's cumulative great-circle distance with its elevation.
// Missing elevations are treated as 0.
func Build(points []domain.GeoPoint, elevations []float64) []domain.ProfilePoint {
	km := geospatial.CumulativeKm(points)
	out := make([]domain.ProfilePoint, len(points))
	for i := range points {
		var ele float64
		if i < len(elevations) {
			ele = elevations[i]
		}
		out[i] = domain.ProfilePoint{DistanceKm: km[i], ElevationMeters: ele}
	}
	return out
}

// FromSamples builds a profile from sampler output.
func FromSamples(samples []domain.ElevationSample) []domain.ProfilePoint {
	points := make([]domain.GeoPoint, len(samples))
	elevations := make([]float64, len(samples))
	for i, s := range samples {
		points[i] = s.Point
		elevations[i] = float64(s.ElevationMeters)
	}
	return Build(points, elevations)
}

// GainLoss sums positive and negative elevation deltas between consecutive points.
// Both results are non-negative.
func GainLoss(profile []domain.ProfilePoint) (gain, loss float64) {
	for i := 1; i < len(profile); i++ {
		d := profile[i].ElevationMeters - profile[i-1].ElevationMeters
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	return gain, loss
}

// Assemble packages a finished segment. It fails with domain.ErrInsufficientPoints
// for fewer than two points.
func Assemble(points []domain.GeoPoint, elevations []float64, title string) (domain.FinishedSegment, error) {
	if len(points) < 2 {
		return domain.FinishedSegment{}, fmt.Errorf("assemble segment: %w (got %d)", domain.ErrInsufficientPoints, len(points))
	}

	prof := Build(points, elevations)
	gain, loss := GainLoss(prof)

	return domain.FinishedSegment{
		Coordinates:         append([]domain.GeoPoint(nil), points...),
		Title:               strings.TrimSpace(title),
		DistanceMeters:      prof[len(prof)-1].DistanceKm * 1000,
		ElevationGainMeters: gain,
		ElevationLossMeters: loss,
		ElevationProfile:    prof,
	}, nil
}
