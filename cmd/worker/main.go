package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/gravelatlas/atlas/internal/adapters/nats"
	"github.com/gravelatlas/atlas/internal/adapters/postgres"
	"github.com/gravelatlas/atlas/internal/adapters/terrain"
	"github.com/gravelatlas/atlas/internal/adapters/valkey"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/core/usecases"
	"github.com/gravelatlas/atlas/internal/pkg/config"
	"github.com/gravelatlas/atlas/internal/pkg/logging"
	"github.com/gravelatlas/atlas/internal/pkg/telemetry"
	"github.com/gravelatlas/atlas/internal/workflows"
)

func main() {
	cfg, err := config.Load("atlas-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
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

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	var tileCache ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr, "atlas:"); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		tileCache = cache
	}

	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats publisher unavailable, enriched events disabled", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	tiles := terrain.New(terrain.Options{
		URLTemplate:     cfg.Terrain.URLTemplate,
		Timeout:         cfg.Terrain.Timeout(),
		Retries:         cfg.Terrain.Retries,
		Cache:           tileCache,
		CacheTTLSeconds: cfg.Terrain.CacheTTLSeconds,
		MemoryTiles:     cfg.Terrain.MemoryTiles,
	})
	sampler := usecases.NewElevationSampler(tiles, cfg.Terrain.Zoom, cfg.Terrain.Concurrency, nil)
	enrichment := usecases.NewEnrichmentService(postgres.NewSegmentRepo(db), sampler, events, nil)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SegmentEnrichmentWorkflow)
	w.RegisterActivity(&workflows.EnrichmentActivities{Enrichment: enrichment})

	// Saved-segment events start one enrichment workflow each.
	starter := workflows.NewStarter(c, cfg.Temporal.TaskQueue, cfg.Enrich.SpacingMeters, nil)
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()
	if err := workflows.EnrichOnSave(ctx, sub, starter); err != nil {
		log.Fatalf("subscribe %s: %v", natsadapter.SubjectSegmentSaved, err)
	}

	slog.Info("enrichment worker started", "task_queue", cfg.Temporal.TaskQueue, "spacing_meters", cfg.Enrich.SpacingMeters)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
	slog.Info("worker stopped")
}
