package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	natsadapter "github.com/samirrijal/meetpoint/internal/adapters/nats"
	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// SubmitResponse acknowledges a queued meeting-point request.
type SubmitResponse struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	ResultSubject string `json:"result_subject"`
}

// FindMeetingPointHandler runs a meeting-point search and returns the result.
func FindMeetingPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.MeetingPointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		req.RunID = ""

		ctx := c.UserContext()
		res, err := deps.MeetingPoints.FindMeetingPoint(ctx, req)
		if err != nil {
			LoggerFromCtx(ctx).Warn("meeting-point search failed", "code", domain.CodeOf(err), "error", err)
			return errFromDomain(c, err)
		}

		c.Locals("run_id", res.RunID)
		return c.JSON(res)
	}
}

// SubmitMeetingPointHandler queues a search for the worker and returns its
// run id. The request is validated first so malformed input gets a 400 instead
// of a run id that can only fail. The result, or a failure event, is published
// on the returned subject and relayed over /ws.
func SubmitMeetingPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Queue == nil {
			return errUnavailable(c, "asynchronous processing is not configured")
		}

		var req domain.MeetingPointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		ctx := c.UserContext()
		if err := deps.MeetingPoints.ValidateRequest(req); err != nil {
			LoggerFromCtx(ctx).Info("rejected queued request", "code", domain.CodeOf(err), "error", err)
			return errFromDomain(c, err)
		}
		req.RunID = uuid.NewString()

		if err := deps.Queue.PublishRequest(ctx, &req); err != nil {
			LoggerFromCtx(ctx).Error("queue meeting-point request", "run_id", req.RunID, "error", err)
			return errUnavailable(c, "could not queue request")
		}

		c.Locals("run_id", req.RunID)
		return c.Status(fiber.StatusAccepted).JSON(SubmitResponse{
			RunID:         req.RunID,
			Status:        "queued",
			ResultSubject: natsadapter.ResultSubject(req.RunID),
		})
	}
}

// EvaluateCandidatesHandler scores caller-supplied candidate points.
func EvaluateCandidatesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.EvaluationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		ctx := c.UserContext()
		res, err := deps.MeetingPoints.EvaluateCandidates(ctx, req)
		if err != nil {
			LoggerFromCtx(ctx).Warn("candidate evaluation failed", "code", domain.CodeOf(err), "error", err)
			return errFromDomain(c, err)
		}
		return c.JSON(res)
	}
}

// SearchDefaultsHandler exposes the configured search settings.
func SearchDefaultsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg := deps.MeetingPoints.Config()
		return c.JSON(fiber.Map{
			"grid_size":               cfg.GridSize,
			"padding_km":              cfg.PaddingKm,
			"top_m":                   cfg.TopM,
			"refinement_radius_km":    cfg.RefinementRadiusKm,
			"fine_grid_resolution":    cfg.FineGridResolution,
			"dedup_threshold_meters":  cfg.DedupThresholdMeters,
			"enable_local_refinement": cfg.EnableLocalRefinement,
			"include_variance":        cfg.IncludeVariance,
		})
	}
}
