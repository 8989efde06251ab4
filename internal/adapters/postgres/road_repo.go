package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// RoadSnapper implements ports.RoadSnapper against the PostGIS roads table.
type RoadSnapper struct {
	db           *DB
	radiusMeters float64
}

func NewRoadSnapper(db *DB, radiusMeters float64) *RoadSnapper {
	return &RoadSnapper{db: db, radiusMeters: radiusMeters}
}

// Snap returns the closest point on the nearest road within the search radius.
func (r *RoadSnapper) Snap(ctx context.Context, p domain.GeoPoint) (domain.GeoPoint, error) {
	var out domain.GeoPoint
	err := r.db.Pool.QueryRow(ctx, `
		WITH pt AS (SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326) AS g)
		SELECT ST_Y(c), ST_X(c) FROM (
			SELECT ST_ClosestPoint(r.geom, pt.g) AS c
			FROM roads r, pt
			WHERE ST_DWithin(r.geom::geography, pt.g::geography, $3)
			ORDER BY r.geom <-> pt.g
			LIMIT 1
		) nearest
	`, p.Lon, p.Lat, r.radiusMeters).Scan(&out.Lat, &out.Lon)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GeoPoint{}, domain.ErrSnapUnavailable
	}
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return out, nil
}
