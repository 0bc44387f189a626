package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestContextMiddleware())
	app.Use(AccessLogMiddleware())

	// Every search fans out into several oracle calls, so the per-IP budget
	// is well below what a read API would allow.
	app.Use(limiter.New(limiter.Config{
		Max:        deps.rateLimit(),
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/v1/health" || c.Path() == "/v1/ready" || c.Path() == "/metrics"
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

	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	rt := deps.requestTimeout()
	v1 := app.Group("/v1")
	v1.Post("/meeting-point", timeout.NewWithContext(FindMeetingPointHandler(deps), rt))
	v1.Post("/meeting-point/async", timeout.NewWithContext(SubmitMeetingPointHandler(deps), 10*time.Second))
	v1.Post("/evaluate", timeout.NewWithContext(EvaluateCandidatesHandler(deps), rt))
	v1.Get("/search/defaults", SearchDefaultsHandler(deps))

	// GraphQL
	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), rt))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.SpecPath)

	// WebSocket relay of result events
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
