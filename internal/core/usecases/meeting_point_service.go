package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
	"github.com/samirrijal/meetpoint/internal/core/hypothesis"
	"github.com/samirrijal/meetpoint/internal/core/optimizer"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
	"github.com/samirrijal/meetpoint/internal/pkg/telemetry"
)

// MeetingPointService runs the multi-phase meeting point search.
type MeetingPointService struct {
	oracle ports.TravelTimeOracle
	events ports.EventPublisher
	cfg    SearchConfig
	now    func() time.Time
}

// NewMeetingPointService creates a new MeetingPointService. events may be nil.
func NewMeetingPointService(oracle ports.TravelTimeOracle, events ports.EventPublisher, cfg SearchConfig) *MeetingPointService {
	return &MeetingPointService{oracle: oracle, events: events, cfg: cfg, now: time.Now}
}

// Config returns the service's base search configuration.
func (s *MeetingPointService) Config() SearchConfig { return s.cfg }

// ValidateRequest runs the checks FindMeetingPoint performs before any oracle
// call: locations, travel mode, goal and the overridden search settings.
func (s *MeetingPointService) ValidateRequest(req domain.MeetingPointRequest) error {
	_, err := s.prepare(req)
	return err
}

type preparedRequest struct {
	locs []domain.Location
	mode domain.TravelMode
	goal domain.OptimizationGoal
	cfg  SearchConfig
}

func (s *MeetingPointService) prepare(req domain.MeetingPointRequest) (*preparedRequest, error) {
	locs, mode, goal, err := normalizeRequest(req.Locations, req.TravelMode, req.OptimizationGoal)
	if err != nil {
		return nil, err
	}
	cfg := s.cfg.WithOverrides(req.Options)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &preparedRequest{locs: locs, mode: mode, goal: goal, cfg: cfg}, nil
}

func (s *MeetingPointService) newOrchestrator(cfg SearchConfig, logger *slog.Logger) *optimizer.Orchestrator {
	return optimizer.NewOrchestrator(s.oracle,
		optimizer.WithCallTimeout(cfg.OracleTimeout),
		optimizer.WithRetryDelay(cfg.RetryDelay),
		optimizer.WithMaxConcurrency(cfg.MaxConcurrency),
		optimizer.WithLogger(logger),
	)
}

// FindMeetingPoint searches for the fairest meeting point of the group.
//
// Anchors and the coarse grid are evaluated with a single oracle call, scored
// and deduplicated. The best survivors seed local refinement grids which are
// evaluated one call per group. All reachable points are then merged, ranked
// and the optimum selected: by minimax with tie-breaking for MINIMAX, by
// score otherwise.
func (s *MeetingPointService) FindMeetingPoint(ctx context.Context, req domain.MeetingPointRequest) (result *domain.MeetingPointResult, err error) {
	start := s.now()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := slog.Default().With("run_id", runID)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFindMeetingPoint,
		trace.WithAttributes(attribute.String("run_id", runID), attribute.Int("locations", len(req.Locations))))
	defer span.End()

	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	locs, mode, goal, cfg := p.locs, p.mode, p.goal, p.cfg

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logger.Error("meeting point search failed", "error", err)
		}
		metrics.SearchDuration.WithLabelValues(string(goal), outcome).Observe(time.Since(start).Seconds())
	}()

	ctx, hits := withCacheHits(ctx)
	orch := s.newOrchestrator(cfg, logger)
	scoring := optimizer.ScoringConfig{Goal: goal, IncludeVariance: cfg.IncludeVariance}

	// Phase 0 and 1
	anchors, err := hypothesis.GenerateAnchors(locs, logger)
	if err != nil {
		return nil, err
	}
	grid, err := hypothesis.GenerateCoarseGrid(locs, cfg.Grid())
	if err != nil {
		return nil, err
	}
	combined, err := orch.EvaluateCombined(ctx, locs, anchors, grid, mode)
	if err != nil {
		return nil, err
	}

	res := &domain.MeetingPointResult{
		RunID:                 runID,
		TravelMode:            mode,
		OptimizationGoal:      goal,
		TotalHypothesisPoints: combined.TotalHypothesisPoints,
		UnreachablePoints:     combined.UnreachableCount(),
	}
	res.Generated.Add(domain.PhaseAnchor, len(anchors))
	res.Generated.Add(domain.PhaseCoarseGrid, len(grid))
	res.Evaluated.Add(domain.PhaseAnchor, len(combined.Anchor.HypothesisPoints))
	res.Evaluated.Add(domain.PhaseCoarseGrid, len(combined.CoarseGrid.HypothesisPoints))

	phases := []domain.PhaseMatrixResult{combined.Anchor, combined.CoarseGrid}

	// Phase 2
	if cfg.EnableLocalRefinement {
		local, err := s.refine(ctx, orch, locs, combined, scoring, cfg, res, logger)
		if err != nil {
			return nil, err
		}
		phases = append(phases, local)
	}

	merged, phaseTags, err := optimizer.MergePhases(phases...)
	if err != nil {
		return nil, err
	}
	travelTimes := optimizer.TravelTimesFromMatrix(merged)
	scored, err := optimizer.ScorePoints(merged.Destinations, travelTimes, scoring)
	if err != nil {
		return nil, err
	}

	sel, err := selectOptimal(merged, phaseTags, scored, goal)
	if err != nil {
		return nil, err
	}
	ranked, err := hypothesis.Deduplicate(scored, cfg.DedupThresholdMeters, logger)
	if err != nil {
		return nil, err
	}

	res.Selection = *sel
	res.OptimalPoint = finalPoint(scored, merged.Destinations[sel.Index])
	res.TravelTimes = travelTimes[sel.Index]
	res.RankedPoints = ranked
	res.CacheHits = hits.Load()
	res.APICallCount = orch.APICallCount() - res.CacheHits
	res.CreatedAt = s.now().UTC()
	res.DurationMs = s.now().Sub(start).Milliseconds()

	metrics.HypothesisPoints.WithLabelValues(string(domain.PhaseAnchor)).Add(float64(res.Evaluated.Anchor))
	metrics.HypothesisPoints.WithLabelValues(string(domain.PhaseCoarseGrid)).Add(float64(res.Evaluated.CoarseGrid))
	metrics.HypothesisPoints.WithLabelValues(string(domain.PhaseLocalRefinement)).Add(float64(res.Evaluated.LocalRefinement))
	metrics.UnreachablePoints.Add(float64(res.UnreachablePoints))
	metrics.SearchAPICalls.Observe(float64(res.APICallCount))

	logger.Info("meeting point found",
		"point_id", res.Selection.PointID,
		"phase", res.Selection.Phase,
		"max_travel_time", res.Selection.MaxTravelTime,
		"tie_break", res.Selection.TieBreak,
		"api_calls", res.APICallCount,
		"cache_hits", res.CacheHits,
		"evaluated", res.Evaluated.Total(),
	)
	span.SetAttributes(attribute.Int64("api_calls", res.APICallCount))

	s.publish(ctx, res, len(locs), logger)
	return res, nil
}

// refine runs Phase 2 around the best Phase 0/1 survivors and returns the
// merged refinement evaluation.
func (s *MeetingPointService) refine(
	ctx context.Context,
	orch *optimizer.Orchestrator,
	locs []domain.Location,
	combined *optimizer.CombinedEvaluation,
	scoring optimizer.ScoringConfig,
	cfg SearchConfig,
	res *domain.MeetingPointResult,
	logger *slog.Logger,
) (domain.PhaseMatrixResult, error) {
	scored, err := optimizer.ScorePoints(combined.Points(), optimizer.TravelTimesFromMatrix(combined.Matrix), scoring)
	if err != nil {
		return domain.PhaseMatrixResult{}, err
	}
	survivors, err := hypothesis.Deduplicate(scored, cfg.DedupThresholdMeters, logger)
	if err != nil {
		return domain.PhaseMatrixResult{}, err
	}

	candidates := make([]domain.CandidatePoint, 0, len(survivors))
	for _, p := range survivors {
		if p.TravelTimeMetrics == nil {
			continue
		}
		candidates = append(candidates, domain.CandidatePoint{
			Coordinate:    p.Coordinate,
			MaxTravelTime: p.TravelTimeMetrics.Max,
			ID:            p.ID,
		})
	}

	refinement, err := hypothesis.GenerateLocalRefinement(candidates, cfg.Refinement(), logger)
	if err != nil {
		return domain.PhaseMatrixResult{}, err
	}
	res.RefinementGroupsFailed += refinement.Skipped
	if len(refinement.Groups) == 0 {
		return domain.PhaseMatrixResult{}, domain.Errorf(domain.CodeRefinementFailed, "",
			"no refinement grid could be built around %d candidates", len(candidates))
	}

	groups := make([][]domain.HypothesisPoint, len(refinement.Groups))
	for i, g := range refinement.Groups {
		groups[i] = g.Points
		res.Generated.Add(domain.PhaseLocalRefinement, len(g.Points))
	}
	logger.Debug("evaluating refinement groups", "groups", len(groups), "survivors", len(refinement.Survivors))

	ge, err := orch.EvaluateGroups(ctx, locs, groups, combined.Matrix.TravelMode)
	if err != nil {
		return domain.PhaseMatrixResult{}, err
	}
	local, err := optimizer.MergeGroups(ge.Results)
	if err != nil {
		return domain.PhaseMatrixResult{}, err
	}

	res.RefinementGroupsFailed += ge.Failed
	res.TotalHypothesisPoints += ge.TotalHypothesisPoints
	res.UnreachablePoints += ge.UnreachablePoints
	res.Evaluated.Add(domain.PhaseLocalRefinement, len(local.HypothesisPoints))
	return local, nil
}

// EvaluateCandidates scores caller-supplied candidate points with a single
// oracle call.
func (s *MeetingPointService) EvaluateCandidates(ctx context.Context, req domain.EvaluationRequest) (*domain.EvaluationResult, error) {
	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEvaluateCandidates,
		trace.WithAttributes(attribute.String("run_id", runID), attribute.Int("candidates", len(req.Candidates))))
	defer span.End()

	locs, mode, goal, err := normalizeRequest(req.Locations, req.TravelMode, req.OptimizationGoal)
	if err != nil {
		return nil, err
	}
	if len(req.Candidates) == 0 || len(req.Candidates) > MaxCandidates {
		return nil, domain.Errorf(domain.CodeInvalidInput,
			fmt.Sprintf("Between 1 and %d candidates are required.", MaxCandidates),
			"%d candidates outside [1, %d]", len(req.Candidates), MaxCandidates)
	}

	points := make([]domain.HypothesisPoint, len(req.Candidates))
	for i, c := range req.Candidates {
		if !geometry.ValidateCoordinate(c.Coordinate) {
			return nil, domain.Errorf(domain.CodeInvalidInput, "A candidate coordinate is out of range.",
				"candidate %d has invalid coordinate (%f, %f)", i, c.Coordinate.Latitude, c.Coordinate.Longitude)
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("candidate_%d", i)
		}
		points[i] = domain.HypothesisPoint{
			ID:         id,
			Coordinate: c.Coordinate,
			Type:       domain.TypeCandidate,
			Phase:      domain.PhaseCandidate,
		}
	}

	ctx, hits := withCacheHits(ctx)
	orch := s.newOrchestrator(s.cfg, logger)
	ev, err := orch.EvaluateAll(ctx, locs, points, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.CodeOf(err)))
		return nil, err
	}
	scored, err := optimizer.ScorePoints(ev.Points(), optimizer.TravelTimesFromMatrix(ev.Matrix),
		optimizer.ScoringConfig{Goal: goal, IncludeVariance: s.cfg.IncludeVariance})
	if err != nil {
		return nil, err
	}

	out := &domain.EvaluationResult{
		RunID:                 runID,
		RankedPoints:          scored,
		TotalHypothesisPoints: ev.TotalHypothesisPoints,
		UnreachablePoints:     ev.UnreachableCount(),
		CacheHits:             hits.Load(),
	}
	out.APICallCount = orch.APICallCount() - out.CacheHits
	if sel, err := selectOptimal(ev.Matrix, nil, scored, goal); err == nil {
		out.Selection = sel
	} else {
		logger.Warn("no candidate reachable by every participant", "error", err)
	}
	logger.Debug("candidates evaluated", "candidates", len(points), "api_calls", out.APICallCount, "cache_hits", out.CacheHits)
	return out, nil
}

// selectOptimal picks the winning column of m. MINIMAX uses the minimax
// cascade; other goals take the best-scored point.
func selectOptimal(m domain.TravelTimeMatrix, phases []domain.Phase, scored []domain.HypothesisPoint, goal domain.OptimizationGoal) (*domain.Selection, error) {
	if goal == domain.GoalMinimax {
		mm, err := optimizer.FindMinimaxOptimal(m, phases)
		if err != nil {
			return nil, err
		}
		return &domain.Selection{
			Index:             mm.Index,
			PointID:           mm.PointID,
			Phase:             mm.Phase,
			Goal:              goal,
			MaxTravelTime:     mm.Max,
			AverageTravelTime: mm.Average,
			TieBreak:          mm.TieBreak,
			TiedCount:         mm.TiedCount,
		}, nil
	}

	for _, p := range scored {
		if p.TravelTimeMetrics == nil || p.TravelTimeMetrics.ValidCount != len(m.Origins) {
			continue
		}
		for j, d := range m.Destinations {
			if d.ID != p.ID {
				continue
			}
			return &domain.Selection{
				Index:             j,
				PointID:           p.ID,
				Phase:             p.Phase,
				Goal:              goal,
				MaxTravelTime:     p.TravelTimeMetrics.Max,
				AverageTravelTime: p.TravelTimeMetrics.Average,
				TieBreak:          domain.TieBreakNone,
				TiedCount:         1,
			}, nil
		}
	}
	return nil, domain.Errorf(domain.CodeNoOptimalPoint, "", "no scored point is reachable by all %d origins", len(m.Origins))
}

// finalPoint returns the scored copy of p re-tagged as the final output.
func finalPoint(scored []domain.HypothesisPoint, p domain.HypothesisPoint) domain.HypothesisPoint {
	for _, sp := range scored {
		if sp.ID == p.ID {
			p = sp
			break
		}
	}
	p.Phase = domain.PhaseFinalOutput
	return p
}

func (s *MeetingPointService) publish(ctx context.Context, res *domain.MeetingPointResult, participants int, logger *slog.Logger) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMeetingPoint(ctx, res.Event(participants)); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		logger.Warn("failed to publish meeting point event", "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}

// normalizeRequest validates the shared request fields and fills defaults:
// DRIVING_CAR, MINIMAX and location_{i} ids.
func normalizeRequest(locations []domain.Location, mode domain.TravelMode, goal domain.OptimizationGoal) ([]domain.Location, domain.TravelMode, domain.OptimizationGoal, error) {
	if len(locations) == 0 {
		return nil, "", "", domain.Errorf(domain.CodeInvalidInput, "At least one location is required.",
			"no locations given")
	}
	if len(locations) > MaxLocations {
		return nil, "", "", domain.Errorf(domain.CodeInvalidInput,
			fmt.Sprintf("At most %d locations are supported.", MaxLocations),
			"%d locations exceed limit %d", len(locations), MaxLocations)
	}
	if mode == "" {
		mode = domain.ModeDrivingCar
	}
	if !mode.Valid() {
		return nil, "", "", domain.Errorf(domain.CodeInvalidInput, "Unknown travel mode.",
			"unknown travel mode %q", mode)
	}
	if goal == "" {
		goal = domain.GoalMinimax
	}
	if !goal.Valid() {
		return nil, "", "", domain.Errorf(domain.CodeInvalidInput, "Unknown optimization goal.",
			"unknown optimization goal %q", goal)
	}

	out := make([]domain.Location, len(locations))
	for i, l := range locations {
		if !geometry.ValidateCoordinate(l.Coordinate) {
			return nil, "", "", domain.Errorf(domain.CodeInvalidInput, "A location coordinate is out of range.",
				"location %d has invalid coordinate (%f, %f)", i, l.Coordinate.Latitude, l.Coordinate.Longitude)
		}
		if l.ID == "" {
			l.ID = fmt.Sprintf("location_%d", i)
		}
		out[i] = l
	}
	return out, mode, goal, nil
}
