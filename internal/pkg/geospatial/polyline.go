package geospatial

import (
	polyline "github.com/twpayne/go-polyline"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// EncodePolyline encodes points with the Google polyline algorithm (lat, lon order, 1e-5 precision).
func EncodePolyline(points []domain.GeoPoint) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline reverses EncodePolyline.
func DecodePolyline(s string) ([]domain.GeoPoint, error) {
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	out := make([]domain.GeoPoint, len(coords))
	for i, c := range coords {
		out[i] = domain.GeoPoint{Lat: c[0], Lon: c[1]}
	}
	return out, nil
}
