//go:build integration

package http_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	handler "github.com/gravelatlas/atlas/internal/adapters/http"
	"github.com/gravelatlas/atlas/internal/adapters/postgres"
	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/usecases"
	"github.com/gravelatlas/atlas/internal/pkg/config"
)

// setupTestDB connects to the database configured for atlas-test. Migrations
// must already be applied (go run ./cmd/migrate up).
func setupTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	cfg, err := config.Load("atlas-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}
	return &postgres.DB{Pool: pool}
}

// setupTestDeps wires real repositories with a synthetic elevation source.
func setupTestDeps(t *testing.T, db *postgres.DB) *handler.Dependencies {
	t.Helper()
	segs := usecases.NewSegmentService(postgres.NewSegmentRepo(db), rampElevation{}, nil, nil)
	draw := usecases.NewDrawService(usecases.DrawServiceConfig{
		Elevations:    rampElevation{},
		Snapper:       postgres.NewRoadSnapper(db, 30),
		Segments:      segs,
		SettleTimeout: 2 * time.Second,
	})
	return &handler.Dependencies{Draw: draw, Segments: segs, DB: db}
}

// seedRoad inserts a north-south road along lon -2.9300 and removes it afterwards.
func seedRoad(t *testing.T, db *postgres.DB) {
	t.Helper()
	ctx := context.Background()
	var id int64
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO roads (name, surface, geom)
		VALUES ('test pista', 'gravel', ST_GeomFromText('LINESTRING(-2.9300 43.2500, -2.9300 43.2700)', 4326))
		RETURNING id
	`).Scan(&id); err != nil {
		t.Fatalf("seed road: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM roads WHERE id = $1`, id)
	})
}

func TestSegments_Integration_CreateGetList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupTestDB(t)
	app := setupApp(setupTestDeps(t, db))

	status, body, _ := do(t, app, "POST", "/v1/segments", lineFeature)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var created domain.Segment
	decode(t, body, &created)
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamps, got %+v", created)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM segments WHERE id = $1`, created.ID)
	})

	status, body, _ = do(t, app, "GET", "/v1/segments/"+created.ID, "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got domain.Segment
	decode(t, body, &got)
	if len(got.Coordinates) != 3 || math.Abs(got.Coordinates[2].Lat-43.262) > 1e-9 {
		t.Errorf("coordinates did not round-trip: %+v", got.Coordinates)
	}
	if len(got.ElevationProfile) != 3 || got.ElevationGainMeters != 20 {
		t.Errorf("profile did not round-trip: %+v", got)
	}

	status, body, _ = do(t, app, "GET", "/v1/segments?bbox=-2.94,43.25,-2.92,43.27", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var page struct {
		Data []domain.Segment `json:"data"`
	}
	decode(t, body, &page)
	found := false
	for _, s := range page.Data {
		found = found || s.ID == created.ID
	}
	if !found {
		t.Error("segment missing from bbox listing")
	}

	status, body, _ = do(t, app, "GET", "/v1/segments?bbox=10,50,11,51", "")
	decode(t, body, &page)
	for _, s := range page.Data {
		if s.ID == created.ID {
			t.Error("segment listed outside its bbox")
		}
	}
}

func TestDraw_Integration_SnapToRoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupTestDB(t)
	seedRoad(t, db)
	app := setupApp(setupTestDeps(t, db))

	_, body, _ := do(t, app, "POST", "/v1/draw/sessions", `{"snap_to_road":true}`)
	var snap snapshot
	decode(t, body, &snap)

	// ~8 m east of the road: snapped onto it.
	_, body, _ = do(t, app, "POST", "/v1/draw/sessions/"+snap.ID+"/points", `{"lon":-2.9299,"lat":43.26}`)
	decode(t, body, &snap)
	if len(snap.Points) != 1 || math.Abs(snap.Points[0].Lon+2.93) > 1e-6 {
		t.Errorf("expected point snapped to lon -2.93, got %+v", snap.Points)
	}

	// ~800 m away: no road in range, raw point kept.
	_, body, _ = do(t, app, "POST", "/v1/draw/sessions/"+snap.ID+"/points", `{"lon":-2.92,"lat":43.26}`)
	decode(t, body, &snap)
	if len(snap.Points) != 2 || snap.Points[1].Lon != -2.92 {
		t.Errorf("expected raw fallback point, got %+v", snap.Points)
	}

	status, body, _ := do(t, app, "POST", "/v1/draw/sessions/"+snap.ID+"/finish", `{"title":"snapped","wait":true}`)
	if status != 201 {
		t.Fatalf("finish: %d %s", status, body)
	}
	var seg domain.Segment
	if err := json.Unmarshal(body, &seg); err != nil {
		t.Fatal(err)
	}
	_, _ = db.Pool.Exec(context.Background(), `DELETE FROM segments WHERE id = $1`, seg.ID)
}
