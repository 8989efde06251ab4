package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// SegmentRepo implements ports.SegmentRepository.
type SegmentRepo struct {
	db *DB
}

func NewSegmentRepo(db *DB) *SegmentRepo { return &SegmentRepo{db: db} }

const segmentColumns = `id, title, ST_AsBinary(geom), polyline, distance_m, gain_m, loss_m, profile, enriched, created_at, updated_at`

func (r *SegmentRepo) Create(ctx context.Context, seg *domain.Segment) error {
	profile, err := json.Marshal(seg.ElevationProfile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO segments (title, geom, polyline, distance_m, gain_m, loss_m, profile)
		VALUES ($1, ST_GeomFromText($2, 4326), $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, seg.Title, lineWKT(seg.Coordinates), seg.Polyline, seg.DistanceMeters,
		seg.ElevationGainMeters, seg.ElevationLossMeters, profile,
	).Scan(&seg.ID, &seg.CreatedAt, &seg.UpdatedAt)
}

func (r *SegmentRepo) GetByID(ctx context.Context, id string) (*domain.Segment, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
	seg, err := scanSegment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSegmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// List returns segments intersecting bounds, newest first.
func (r *SegmentRepo) List(ctx context.Context, bounds *domain.Bounds, offset, limit int) ([]domain.Segment, int, error) {
	var b domain.Bounds
	if bounds != nil {
		b = *bounds
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+segmentColumns+`, COUNT(*) OVER() AS total
		FROM segments
		WHERE NOT $1::boolean OR ST_Intersects(geom, ST_MakeEnvelope($2, $3, $4, $5, 4326))
		ORDER BY created_at DESC
		OFFSET $6 LIMIT $7
	`, bounds != nil, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		segments []domain.Segment
		total    int
	)
	for rows.Next() {
		seg, err := scanSegment(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		segments = append(segments, *seg)
	}
	return segments, total, rows.Err()
}

// SaveDenseProfile upserts the refined profile and flags the segment as enriched.
func (r *SegmentRepo) SaveDenseProfile(ctx context.Context, p *domain.DenseProfile) error {
	profile, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO segment_profiles (segment_id, spacing_m, gain_m, loss_m, profile)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (segment_id) DO UPDATE
		SET spacing_m = EXCLUDED.spacing_m, gain_m = EXCLUDED.gain_m,
		    loss_m = EXCLUDED.loss_m, profile = EXCLUDED.profile, created_at = now()
	`, p.SegmentID, p.SpacingMeters, p.ElevationGainMeters, p.ElevationLossMeters, profile)
	batch.Queue(`UPDATE segments SET enriched = true, updated_at = now() WHERE id = $1`, p.SegmentID)

	br := tx.SendBatch(ctx, batch)
	if _, err := br.Exec(); err != nil {
		br.Close()
		return fmt.Errorf("upsert dense profile: %w", err)
	}
	tag, err := br.Exec()
	if err != nil {
		br.Close()
		return fmt.Errorf("mark enriched: %w", err)
	}
	if err := br.Close(); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSegmentNotFound
	}
	return tx.Commit(ctx)
}

func scanSegment(row pgx.Row, extra ...any) (*domain.Segment, error) {
	var (
		seg     domain.Segment
		geom    []byte
		profile []byte
	)
	dest := append([]any{&seg.ID, &seg.Title, &geom, &seg.Polyline, &seg.DistanceMeters,
		&seg.ElevationGainMeters, &seg.ElevationLossMeters, &profile, &seg.Enriched,
		&seg.CreatedAt, &seg.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	coords, err := decodeLine(geom)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", seg.ID, err)
	}
	seg.Coordinates = coords
	if err := json.Unmarshal(profile, &seg.ElevationProfile); err != nil {
		return nil, fmt.Errorf("segment %s profile: %w", seg.ID, err)
	}
	return &seg, nil
}

func lineWKT(points []domain.GeoPoint) string {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return wkt.MarshalString(ls)
}

func decodeLine(b []byte) ([]domain.GeoPoint, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	ls, ok := g.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("expected LineString, got %s", g.GeoJSONType())
	}
	out := make([]domain.GeoPoint, len(ls))
	for i, p := range ls {
		out[i] = domain.GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
	}
	return out, nil
}
