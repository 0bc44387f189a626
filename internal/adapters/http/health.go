package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 3 * time.Second

var errNotConfigured = errors.New("not configured")

// probe is one readiness check. Optional probes report "not configured"
// without failing readiness.
type probe struct {
	name     string
	optional bool
	check    func(ctx context.Context) error
}

func readinessProbes(deps *Dependencies) []probe {
	return []probe{
		{name: "solver", check: func(context.Context) error {
			if deps.MeetingPoints == nil {
				return errNotConfigured
			}
			return nil
		}},
		{name: "nats", optional: true, check: func(context.Context) error {
			if deps.NATS == nil {
				return errNotConfigured
			}
			if !deps.NATS.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
		{name: "cache", optional: true, check: func(ctx context.Context) error {
			if deps.Cache == nil {
				return errNotConfigured
			}
			return deps.Cache.Ping(ctx)
		}},
	}
}

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// ReadyHandler runs the readiness probes. The cache and NATS are optional: a
// missing backend is reported but does not fail readiness, a broken one does.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	probes := readinessProbes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(probes))
		ready := true
		for _, p := range probes {
			err := p.check(ctx)
			switch {
			case err == nil:
				checks[p.name] = "ok"
			case errors.Is(err, errNotConfigured):
				checks[p.name] = err.Error()
				ready = ready && p.optional
			default:
				checks[p.name] = "error: " + err.Error()
				ready = false
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
