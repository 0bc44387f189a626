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
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/meetpoint/internal/adapters/http"
	natsadapter "github.com/samirrijal/meetpoint/internal/adapters/nats"
	"github.com/samirrijal/meetpoint/internal/bootstrap"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
	"github.com/samirrijal/meetpoint/internal/pkg/config"
	"github.com/samirrijal/meetpoint/internal/pkg/logging"
	"github.com/samirrijal/meetpoint/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("meetpoint-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Matrix cache
	cache, err := bootstrap.NewCache(cfg.Cache)
	if err != nil {
		slog.Warn("matrix cache unavailable", "backend", cfg.Cache.Backend, "error", err)
	} else if cache != nil {
		defer cache.Close()
	}

	// NATS: result events, async queue and the WebSocket relay
	var (
		events   ports.EventPublisher
		queue    http.RequestQueue
		natsConn *nats.Conn
	)
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			events = pub
			queue = pub
		}

		natsConn, err = natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			defer natsConn.Close()
		}
	}

	oracle := bootstrap.Oracle(cfg, cache)
	svc := usecases.NewMeetingPointService(oracle, events, bootstrap.SearchConfig(cfg))

	deps := &http.Dependencies{
		MeetingPoints: svc,
		Queue:         queue,
		NATS:          natsConn,
		Cache:         cache,
		Version:       version,
		SpecPath:      http.DefaultSpecPath,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Meetpoint API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, traceparent",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "oracle", cfg.Oracle.BaseURL, "cache", cfg.Cache.Backend)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Searches can take a while; give them up to 30s to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
