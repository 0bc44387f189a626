package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
)

// RequestQueue accepts requests for asynchronous processing.
type RequestQueue interface {
	PublishRequest(ctx context.Context, req *domain.MeetingPointRequest) error
}

// Pinger is implemented by backends that take part in readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	MeetingPoints  *usecases.MeetingPointService
	Queue          RequestQueue
	NATS           *nats.Conn
	Cache          Pinger
	Version        string
	SpecPath       string
	RequestTimeout time.Duration

	// RateLimit is requests per minute per client IP; zero uses the default.
	RateLimit int
}

func (d *Dependencies) requestTimeout() time.Duration {
	if d.RequestTimeout > 0 {
		return d.RequestTimeout
	}
	return 90 * time.Second
}

func (d *Dependencies) rateLimit() int {
	if d.RateLimit > 0 {
		return d.RateLimit
	}
	return 60
}
