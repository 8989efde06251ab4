package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientPoints is returned when a segment has fewer than two points.
	ErrInsufficientPoints = errors.New("at least two points are required")

	// ErrSnapUnavailable is returned by a road snapper with no usable candidate.
	ErrSnapUnavailable = errors.New("road snap unavailable")

	// ErrNotDrawing is returned for drawing operations on an idle session.
	ErrNotDrawing = errors.New("session is not drawing")

	// ErrSessionNotFound is returned for unknown or expired draw sessions.
	ErrSessionNotFound = errors.New("draw session not found")

	// ErrSegmentNotFound is returned when a stored segment does not exist.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrInvalidGeometry is returned for malformed GeoJSON payloads.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidTitle is returned for segment titles that are too long.
	ErrInvalidTitle = errors.New("invalid title")

	// ErrInvalidCoordinate is returned for points outside projectable ranges.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// ElevationSampleError describes a failed sample for one point of a batch.
type ElevationSampleError struct {
	Index int
	Point GeoPoint
	Err   error
}

func (e *ElevationSampleError) Error() string {
	return fmt.Sprintf("sample elevation #%d (%.6f, %.6f): %v", e.Index, e.Point.Lat, e.Point.Lon, e.Err)
}

func (e *ElevationSampleError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed storage call. It is surfaced to the user and never retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
