package domain

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LineStringFeature is a GeoJSON Feature whose geometry is always a LineString.
// Decoding rejects any other geometry, fewer than two positions, and
// positions outside projectable coordinate ranges.
type LineStringFeature struct {
	Coordinates []GeoPoint
	Properties  map[string]any
}

// NewLineStringFeature validates coordinates and builds a feature with empty properties.
func NewLineStringFeature(coords []GeoPoint) (LineStringFeature, error) {
	f := LineStringFeature{Coordinates: coords, Properties: map[string]any{}}
	if err := f.Validate(); err != nil {
		return LineStringFeature{}, err
	}
	return f, nil
}

// Validate checks the invariants enforced at the decoding boundary.
func (f LineStringFeature) Validate() error {
	if len(f.Coordinates) < 2 {
		return fmt.Errorf("%w: line string needs at least 2 positions, got %d", ErrInvalidGeometry, len(f.Coordinates))
	}
	for i, p := range f.Coordinates {
		if !p.Valid() {
			return fmt.Errorf("%w: position %d [%v, %v] out of range", ErrInvalidGeometry, i, p.Lon, p.Lat)
		}
	}
	return nil
}

// LineString returns the coordinates as an orb geometry.
func (f LineStringFeature) LineString() orb.LineString {
	ls := make(orb.LineString, len(f.Coordinates))
	for i, p := range f.Coordinates {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}

// MarshalJSON encodes the feature as {"type":"Feature","geometry":{"type":"LineString",...},"properties":{...}}.
func (f LineStringFeature) MarshalJSON() ([]byte, error) {
	gf := geojson.NewFeature(f.LineString())
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	return gf.MarshalJSON()
}

// UnmarshalJSON decodes and validates a LineString feature.
func (f *LineStringFeature) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if head.Type != "Feature" {
		return fmt.Errorf("%w: expected Feature, got %q", ErrInvalidGeometry, head.Type)
	}

	gf, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	ls, ok := gf.Geometry.(orb.LineString)
	if !ok {
		if gf.Geometry == nil {
			return fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
		}
		return fmt.Errorf("%w: expected LineString, got %s", ErrInvalidGeometry, gf.Geometry.GeoJSONType())
	}

	out := LineStringFeature{
		Coordinates: make([]GeoPoint, len(ls)),
		Properties:  map[string]any(gf.Properties),
	}
	if out.Properties == nil {
		out.Properties = map[string]any{}
	}
	for i, p := range ls {
		out.Coordinates[i] = GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*f = out
	return nil
}
