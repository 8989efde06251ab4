package domain

import (
	"time"
)

// ElevationSample is the terrain elevation resolved for one point.
// ElevationMeters is 0 when sampling failed.
type ElevationSample struct {
	Point           GeoPoint `json:"point"`
	ElevationMeters int      `json:"elevation_meters"`
}

// ProfilePoint is one entry of an elevation profile.
type ProfilePoint struct {
	DistanceKm      float64 `json:"distance_km"` // cumulative from the first point
	ElevationMeters float64 `json:"elevation_meters"`
}

// ColorBucket is the discrete steepness class used to color a line.
type ColorBucket int

const (
	Bucket0 ColorBucket = iota // |grade| < 2%
	Bucket1                    // < 4%
	Bucket2                    // < 6%
	Bucket3                    // < 8%
	Bucket4                    // < 10%
	Bucket5                    // < 14%
	Bucket6                    // >= 14%
)

// GradeSegment is a maximal run of profile points sharing one color bucket.
type GradeSegment struct {
	StartIndex   int            `json:"start_index"`
	EndIndex     int            `json:"end_index"` // inclusive
	Points       []ProfilePoint `json:"points"`
	GradePercent float64        `json:"grade_percent"`
	Bucket       ColorBucket    `json:"bucket"`
}

// FinishedSegment is the assembled result of a drawing session.
type FinishedSegment struct {
	Coordinates         []GeoPoint     `json:"coordinates"`
	Title               string         `json:"title"`
	DistanceMeters      float64        `json:"distance_meters"`
	ElevationGainMeters float64        `json:"elevation_gain_meters"`
	ElevationLossMeters float64        `json:"elevation_loss_meters"`
	ElevationProfile    []ProfilePoint `json:"elevation_profile"`
}

// Segment is a persisted route segment.
type Segment struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Coordinates         []GeoPoint     `json:"coordinates"`
	Polyline            string         `json:"polyline"`
	DistanceMeters      float64        `json:"distance_meters"`
	ElevationGainMeters float64        `json:"elevation_gain_meters"`
	ElevationLossMeters float64        `json:"elevation_loss_meters"`
	ElevationProfile    []ProfilePoint `json:"elevation_profile"`
	Enriched            bool           `json:"enriched"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// SegmentMetadata carries user-supplied attributes of a segment.
type SegmentMetadata struct {
	Title string `json:"title"`
}

// SegmentInput is the body accepted when saving a segment.
type SegmentInput struct {
	GeoJSON  LineStringFeature `json:"geojson"`
	Metadata SegmentMetadata   `json:"metadata"`
}

// DenseProfile is the refined profile produced by the enrichment workflow.
type DenseProfile struct {
	SegmentID           string         `json:"segment_id"`
	SpacingMeters       float64        `json:"spacing_meters"`
	ElevationGainMeters float64        `json:"elevation_gain_meters"`
	ElevationLossMeters float64        `json:"elevation_loss_meters"`
	Profile             []ProfilePoint `json:"profile"`
}
