package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// Subjects and streams used by the meeting-point service.
const (
	SubjectResults  = "meetpoint.results."
	SubjectRequests = "meetpoint.requests."

	StreamResults  = "MEETPOINT_RESULTS"
	StreamRequests = "MEETPOINT_REQUESTS"
)

// ResultSubject is the subject a run's result is published on.
func ResultSubject(runID string) string { return SubjectResults + runID }

// RequestSubject is the subject a queued request is published on.
func RequestSubject(runID string) string { return SubjectRequests + runID }

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStreams(js); err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, js: js}, nil
}

func streamConfigs() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      StreamResults,
			Subjects:  []string{SubjectResults + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      StreamRequests,
			Subjects:  []string{SubjectRequests + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

func ensureStreams(js nats.JetStreamContext) error {
	for _, cfg := range streamConfigs() {
		if _, err := js.AddStream(&cfg); err != nil {
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

// PublishMeetingPoint publishes a run summary on meetpoint.results.<run_id>.
func (p *Publisher) PublishMeetingPoint(ctx context.Context, event *domain.MeetingPointEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ResultSubject(event.RunID), data, nats.Context(ctx))
	return err
}

// PublishMeetingPointFailure publishes a failed run on the same subject as its
// result would have used.
func (p *Publisher) PublishMeetingPointFailure(ctx context.Context, event *domain.MeetingPointFailure) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ResultSubject(event.RunID), data, nats.Context(ctx))
	return err
}

// PublishRequest queues a request for the worker. The request must carry a
// RunID so the submitter can match the result.
func (p *Publisher) PublishRequest(ctx context.Context, req *domain.MeetingPointRequest) error {
	if req.RunID == "" {
		return domain.Errorf(domain.CodeInvalidInput, "", "queued request has no run id")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(RequestSubject(req.RunID), data, nats.Context(ctx), nats.MsgId(req.RunID))
	return err
}

// Ping reports whether the connection is up.
func (p *Publisher) Ping() error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats: %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("meetpoint"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
