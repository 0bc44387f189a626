package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// Subscriber implements ports.RequestSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeRequests consumes queued meeting-point requests. Messages are acked
// on success, redelivered on retryable failures and terminated otherwise.
func (s *Subscriber) SubscribeRequests(ctx context.Context, handler func(ctx context.Context, req *domain.MeetingPointRequest) error) error {
	sub, err := s.js.Subscribe(SubjectRequests+">", func(msg *nats.Msg) {
		var req domain.MeetingPointRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Warn("dropping malformed meeting-point request", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if outcome := settle(msg, handler(ctx, &req)); outcome == "term" {
			slog.Warn("meeting-point request failed permanently", "run_id", req.RunID)
		}
	},
		nats.Durable("meetpoint-solver"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// acker is the subset of *nats.Msg used to settle a delivery.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// settle acks, naks or terminates m depending on the handler error. Transient
// oracle failures and untyped infrastructure errors are redelivered; any other
// engine error would fail the same way again.
func settle(m acker, err error) string {
	var derr *domain.Error
	switch {
	case err == nil:
		_ = m.Ack()
		return "ack"
	case !errors.As(err, &derr) || domain.IsRetryable(err):
		_ = m.Nak()
		return "nak"
	default:
		_ = m.Term()
		return "term"
	}
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
