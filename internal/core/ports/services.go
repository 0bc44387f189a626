package ports

import (
	"context"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// TravelTimeOracle computes an origins × destinations matrix of travel times
// in whole minutes. Unreachable cells are +Inf. Failures are *domain.Error
// values with an oracle code so callers can decide whether to retry.
type TravelTimeOracle interface {
	EvaluateMatrix(ctx context.Context, origins, destinations []domain.Coordinate, mode domain.TravelMode) ([][]float64, error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes domain events to a message broker. Success and
// failure events for a run share its result subject.
type EventPublisher interface {
	PublishMeetingPoint(ctx context.Context, event *domain.MeetingPointEvent) error
	PublishMeetingPointFailure(ctx context.Context, event *domain.MeetingPointFailure) error
}

// RequestSubscriber delivers queued meeting-point requests.
type RequestSubscriber interface {
	SubscribeRequests(ctx context.Context, handler func(ctx context.Context, req *domain.MeetingPointRequest) error) error
}
