package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// MeetingPointInput is the input for the meeting-point workflow.
type MeetingPointInput struct {
	Request domain.MeetingPointRequest
}

// nonRetryableCodes lists engine errors that fail the same way on every attempt.
var nonRetryableCodes = []string{
	string(domain.CodeInvalidInput),
	string(domain.CodeAnchorGenerationFailed),
	string(domain.CodeGridGenerationFailed),
	string(domain.CodeRefinementFailed),
	string(domain.CodeDeduplicationFailed),
	string(domain.CodeInvalidCoordinate),
	string(domain.CodeScoringFailed),
	string(domain.CodeVarianceUnavailable),
	string(domain.CodeNoOptimalPoint),
	string(domain.CodeNoReachablePoints),
	string(domain.CodeOracleAuth),
	string(domain.CodeOracleRequest),
}

// MeetingPointWorkflow runs a queued search. The service publishes the result
// itself; when the search fails for good the workflow publishes a failure
// event on the same subject so waiting clients learn the outcome.
func MeetingPointWorkflow(ctx workflow.Context, input MeetingPointInput) (*domain.MeetingPointResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting meeting-point workflow", "runID", input.Request.RunID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: nonRetryableCodes,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var result domain.MeetingPointResult
	if err := workflow.ExecuteActivity(ctx, "FindMeetingPoint", input.Request).Get(ctx, &result); err != nil {
		logger.Warn("meeting-point search failed", "error", err)
		publishFailure(ctx, input.Request.RunID, err)
		return nil, err
	}

	logger.Info("Meeting point found", "pointID", result.OptimalPoint.ID, "apiCalls", result.APICallCount)
	return &result, nil
}

// publishFailure reports err to result subscribers. It is best effort: the
// workflow fails with the search error either way.
func publishFailure(ctx workflow.Context, runID string, searchErr error) {
	in := FailureInput{RunID: runID, Code: string(domain.CodeInternal)}
	var appErr *temporal.ApplicationError
	if errors.As(searchErr, &appErr) {
		in.Code = appErr.Type()
		if appErr.HasDetails() {
			_ = appErr.Details(&in.Message)
		}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})
	if err := workflow.ExecuteActivity(ctx, "PublishFailure", in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to publish run failure", "runID", runID, "error", err)
	}
}

// Starter turns queued requests into workflow executions.
type Starter struct {
	Client    client.Client
	TaskQueue string
}

// WorkflowID is the execution id used for a run.
func WorkflowID(runID string) string { return "meetpoint-" + runID }

// Start launches MeetingPointWorkflow for req. Redelivered requests reuse the
// run id and attach to the existing execution.
func (s *Starter) Start(ctx context.Context, req *domain.MeetingPointRequest) error {
	if req.RunID == "" {
		return domain.Errorf(domain.CodeInvalidInput, "", "queued request has no run id")
	}
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(req.RunID),
		TaskQueue: s.TaskQueue,
	}
	if _, err := s.Client.ExecuteWorkflow(ctx, opts, MeetingPointWorkflow, MeetingPointInput{Request: *req}); err != nil {
		return fmt.Errorf("start workflow %s: %w", opts.ID, err)
	}
	return nil
}
