package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
)

// MeetingPointFinder is the part of the meeting-point service the activity needs.
type MeetingPointFinder interface {
	FindMeetingPoint(ctx context.Context, req domain.MeetingPointRequest) (*domain.MeetingPointResult, error)
}

// MeetingPointActivities holds the activity implementations for the meeting-point workflow.
// Events may be nil, in which case failures are not announced.
type MeetingPointActivities struct {
	Service MeetingPointFinder
	Events  ports.EventPublisher
}

// FailureInput describes a failed run. Code is the engine error code.
type FailureInput struct {
	RunID   string
	Code    string
	Message string
}

// FindMeetingPoint runs one search. Engine errors become application errors
// typed by their code; only transient oracle failures are left retryable.
func (a *MeetingPointActivities) FindMeetingPoint(ctx context.Context, req domain.MeetingPointRequest) (*domain.MeetingPointResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Searching meeting point", "runID", req.RunID, "locations", len(req.Locations))

	res, err := a.Service.FindMeetingPoint(ctx, req)
	if err != nil {
		return nil, toApplicationError(err)
	}
	return res, nil
}

// PublishFailure announces a failed run on its result subject.
func (a *MeetingPointActivities) PublishFailure(ctx context.Context, in FailureInput) error {
	if a.Events == nil {
		return nil
	}
	event := domain.NewMeetingPointFailure(in.RunID, domain.ErrorCode(in.Code), in.Message, time.Now())
	if err := a.Events.PublishMeetingPointFailure(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish failure of run %s: %w", in.RunID, err)
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
	activity.GetLogger(ctx).Info("Published run failure", "runID", in.RunID, "code", event.Code)
	return nil
}

// toApplicationError carries the user-facing message as the error's detail.
func toApplicationError(err error) error {
	code := domain.CodeOf(err)
	msg := fmt.Sprintf("find meeting point: %s", domain.UserMessage(err))

	var derr *domain.Error
	if errors.As(err, &derr) && !domain.IsRetryable(err) {
		return temporal.NewNonRetryableApplicationError(msg, string(code), err, domain.UserMessage(err))
	}
	return temporal.NewApplicationErrorWithCause(msg, string(code), err, domain.UserMessage(err))
}
