package geospatial

import (
	"math"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b domain.GeoPoint) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// PathLength sums the leg distances of an ordered path, in meters.
func PathLength(points []domain.GeoPoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// CumulativeKm returns, for each point, the distance from the first point in kilometers.
func CumulativeKm(points []domain.GeoPoint) []float64 {
	out := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		out[i] = out[i-1] + Distance(points[i-1], points[i])/1000
	}
	return out
}

// Densify inserts linearly interpolated points so no leg is longer than spacingMeters.
// Original vertices are kept.
func Densify(points []domain.GeoPoint, spacingMeters float64) []domain.GeoPoint {
	if len(points) < 2 || spacingMeters <= 0 {
		return append([]domain.GeoPoint(nil), points...)
	}

	out := []domain.GeoPoint{points[0]}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		steps := int(math.Ceil(Distance(a, b) / spacingMeters))
		for s := 1; s < steps; s++ {
			ratio := float64(s) / float64(steps)
			out = append(out, domain.GeoPoint{
				Lat: a.Lat + (b.Lat-a.Lat)*ratio,
				Lon: a.Lon + (b.Lon-a.Lon)*ratio,
			})
		}
		out = append(out, b)
	}
	return out
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
