package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/meetpoint/internal/adapters/nats"
	"github.com/samirrijal/meetpoint/internal/bootstrap"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
	"github.com/samirrijal/meetpoint/internal/pkg/config"
	"github.com/samirrijal/meetpoint/internal/pkg/logging"
	"github.com/samirrijal/meetpoint/internal/pkg/telemetry"
	"github.com/samirrijal/meetpoint/internal/workflows"
)

func main() {
	cfg, err := config.Load("meetpoint-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	cache, err := bootstrap.NewCache(cfg.Cache)
	if err != nil {
		slog.Warn("matrix cache unavailable", "backend", cfg.Cache.Backend, "error", err)
	} else if cache != nil {
		defer cache.Close()
	}

	var events ports.EventPublisher
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, results will not be published", "error", err)
		} else {
			defer pub.Close()
			events = pub
		}
	}

	svc := usecases.NewMeetingPointService(bootstrap.Oracle(cfg, cache), events, bootstrap.SearchConfig(cfg))

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 8,
	})
	w.RegisterWorkflow(workflows.MeetingPointWorkflow)
	w.RegisterActivity(&workflows.MeetingPointActivities{Service: svc, Events: events})

	// Queued requests from the API become workflow executions
	if cfg.NATS.Enabled {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats request intake unavailable", "error", err)
		} else {
			defer sub.Close()
			starter := &workflows.Starter{Client: c, TaskQueue: cfg.Temporal.TaskQueue}
			if err := sub.SubscribeRequests(ctx, starter.Start); err != nil {
				log.Fatalf("subscribe requests: %v", err)
			}
		}
	}

	slog.Info("meeting-point worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
