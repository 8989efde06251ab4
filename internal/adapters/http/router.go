package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/gravelatlas/atlas/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Clicks arrive in bursts while drawing, so the budget is generous.
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Draw sessions
	v1.Post("/draw/sessions", CreateDrawSessionHandler(deps))
	v1.Get("/draw/sessions/:id", GetDrawSessionHandler(deps))
	v1.Post("/draw/sessions/:id/start", StartDrawSessionHandler(deps))
	v1.Post("/draw/sessions/:id/points", timeout.NewWithContext(AddDrawPointHandler(deps), requestTimeout))
	v1.Delete("/draw/sessions/:id/points/last", UndoDrawPointHandler(deps))
	v1.Put("/draw/sessions/:id/snap", SetSnapToRoadHandler(deps))
	v1.Post("/draw/sessions/:id/finish", timeout.NewWithContext(FinishDrawSessionHandler(deps), requestTimeout))
	v1.Delete("/draw/sessions/:id", DeleteDrawSessionHandler(deps))

	// Segments
	v1.Post("/segments", timeout.NewWithContext(CreateSegmentHandler(deps), requestTimeout))
	v1.Get("/segments", timeout.NewWithContext(ListSegmentsHandler(deps), requestTimeout))
	v1.Get("/segments/:id", timeout.NewWithContext(GetSegmentHandler(deps), requestTimeout))
	v1.Get("/segments/:id/grades", timeout.NewWithContext(SegmentGradesHandler(deps), requestTimeout))

	// Stateless analysis
	v1.Post("/elevation/profile", timeout.NewWithContext(ElevationProfileHandler(deps), requestTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.OpenAPIPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
