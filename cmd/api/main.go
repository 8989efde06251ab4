package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/gravelatlas/atlas/internal/adapters/http"
	natsadapter "github.com/gravelatlas/atlas/internal/adapters/nats"
	"github.com/gravelatlas/atlas/internal/adapters/postgres"
	"github.com/gravelatlas/atlas/internal/adapters/terrain"
	"github.com/gravelatlas/atlas/internal/adapters/valkey"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/core/usecases"
	"github.com/gravelatlas/atlas/internal/pkg/config"
	"github.com/gravelatlas/atlas/internal/pkg/logging"
	"github.com/gravelatlas/atlas/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("atlas-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	deps := &http.Dependencies{DB: db}

	// Tile cache (optional)
	var tileCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "atlas:")
	if err != nil {
		slog.Warn("valkey unavailable, terrain tiles will not be shared", "error", err)
	} else {
		defer cache.Close()
		tileCache = cache
		deps.Cache = cache
	}

	// NATS: JetStream events plus core-NATS render messages
	var (
		events   ports.EventPublisher
		renderer ports.LineRenderer
	)
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, events and live rendering disabled", "error", err)
	} else {
		defer pub.Close()
		events = pub
		renderer = natsadapter.NewLineRenderer(pub.Conn())
		deps.NATS = pub.Conn()
	}

	// Elevation sampling
	tiles := terrain.New(terrain.Options{
		URLTemplate:     cfg.Terrain.URLTemplate,
		Timeout:         cfg.Terrain.Timeout(),
		Retries:         cfg.Terrain.Retries,
		Cache:           tileCache,
		CacheTTLSeconds: cfg.Terrain.CacheTTLSeconds,
		MemoryTiles:     cfg.Terrain.MemoryTiles,
	})
	sampler := usecases.NewElevationSampler(tiles, cfg.Terrain.Zoom, cfg.Terrain.Concurrency, nil)

	var snapper ports.RoadSnapper
	if cfg.Snap.Enabled {
		snapper = postgres.NewRoadSnapper(db, cfg.Snap.RadiusMeters)
	}

	// Use cases
	deps.Segments = usecases.NewSegmentService(postgres.NewSegmentRepo(db), sampler, events, nil)
	deps.Draw = usecases.NewDrawService(usecases.DrawServiceConfig{
		Elevations:    sampler,
		Snapper:       snapper,
		Renderer:      renderer,
		Segments:      deps.Segments,
		TTL:           cfg.Draw.SessionTTL(),
		SettleTimeout: cfg.Draw.SettleTimeout(),
	})
	go deps.Draw.RunJanitor(ctx, time.Minute)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // long routes carry thousands of positions
		AppName:      "Gravel Atlas API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, If-None-Match",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "snap_to_road", cfg.Snap.Enabled)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	// Stops the janitor, which closes every remaining draw session.
	cancel()
	slog.Info("server stopped")
}
