package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/propagation"

	"github.com/samirrijal/meetpoint/internal/pkg/telemetry"
)

type ctxKey string

const loggerKey ctxKey = "logger"

// RequestContextMiddleware builds the request's Go context: it extracts any
// incoming trace context, starts the server span and stores a logger carrying
// the request id. Handlers read it back with c.UserContext().
func RequestContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		headers := propagation.MapCarrier{}
		c.Request().Header.VisitAll(func(k, v []byte) {
			headers.Set(string(k), string(v))
		})
		ctx := propagation.TraceContext{}.Extract(context.Background(), headers)

		ctx, span := telemetry.Tracer().Start(ctx, c.Method()+" "+c.Path())
		defer span.End()

		logger := slog.Default()
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			logger = logger.With("request_id", rid)
		}
		ctx = context.WithValue(ctx, loggerKey, logger)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// LoggerFromCtx extracts the per-request slog.Logger from a context.
// Falls back to the default logger if none is set.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
