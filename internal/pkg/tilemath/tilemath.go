// Package tilemath converts geographic coordinates to Web Mercator tile and
// pixel addresses and decodes terrain-RGB encoded elevations.
package tilemath

import (
	"math"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

const (
	// TileSize is the edge length of a raster tile in pixels.
	TileSize = 256

	// TerrainZoom gives roughly 10 m per pixel at mid latitudes.
	TerrainZoom = 14
)

// worldCoords returns the fractional tile coordinates of p at zoom.
func worldCoords(p domain.GeoPoint, zoom int) (x, y float64) {
	n := math.Exp2(float64(zoom))
	latRad := p.Lat * math.Pi / 180
	x = (p.Lon + 180) / 360 * n
	y = (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n
	return x, y
}

// PointToTile returns the tile containing p at the given zoom.
// Longitude 180 is folded into the last column.
func PointToTile(p domain.GeoPoint, zoom int) domain.TileAddress {
	x, y := worldCoords(p, zoom)
	n := 1 << zoom
	return domain.TileAddress{
		Z: zoom,
		X: clamp(int(math.Floor(x)), n-1),
		Y: clamp(int(math.Floor(y)), n-1),
	}
}

// PointToPixel returns the offset of p inside its tile, in [0, TileSize).
func PointToPixel(p domain.GeoPoint, zoom int) domain.PixelOffset {
	x, y := worldCoords(p, zoom)
	worldPx := float64(int(1)<<zoom) * TileSize
	px := clamp(int(math.Floor(x*TileSize)), int(worldPx)-1)
	py := clamp(int(math.Floor(y*TileSize)), int(worldPx)-1)
	return domain.PixelOffset{X: px % TileSize, Y: py % TileSize}
}

// DecodeElevation decodes a terrain-RGB pixel to meters:
// -10000 + (r*65536 + g*256 + b) * 0.1.
func DecodeElevation(r, g, b uint8) float64 {
	return -10000 + float64(int(r)*65536+int(g)*256+int(b))*0.1
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
