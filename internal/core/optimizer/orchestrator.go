package optimizer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
	"github.com/samirrijal/meetpoint/internal/pkg/telemetry"
)

const (
	DefaultCallTimeout    = 30 * time.Second
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultMaxConcurrency = 4
)

// Orchestrator issues travel-time matrix requests for hypothesis points and
// filters out unreachable destinations. It owns the API-call counter of one
// search run; create one per run.
type Orchestrator struct {
	oracle         ports.TravelTimeOracle
	calls          atomic.Int64
	callTimeout    time.Duration
	retryDelay     time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCallTimeout bounds each oracle call. Zero disables the per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithRetryDelay sets the pause before the single retry of a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// WithMaxConcurrency limits how many refinement groups are evaluated at once.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator around oracle.
func NewOrchestrator(oracle ports.TravelTimeOracle, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		oracle:         oracle,
		callTimeout:    DefaultCallTimeout,
		retryDelay:     DefaultRetryDelay,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// APICallCount returns the number of oracle calls attempted so far,
// including retries and fallbacks.
func (o *Orchestrator) APICallCount() int64 { return o.calls.Load() }

// ResetAPICallCount zeroes the call counter.
func (o *Orchestrator) ResetAPICallCount() { o.calls.Store(0) }

// Evaluation is a reachability-filtered matrix. Matrix.Destinations lists the
// surviving points in their original relative order.
type Evaluation struct {
	Matrix                domain.TravelTimeMatrix
	TotalHypothesisPoints int
	UnreachableIDs        []string
}

// Points returns the reachable hypothesis points.
func (e *Evaluation) Points() []domain.HypothesisPoint { return e.Matrix.Destinations }

// UnreachableCount is the number of points filtered out.
func (e *Evaluation) UnreachableCount() int { return len(e.UnreachableIDs) }

// CombinedEvaluation is the single-call evaluation of anchors and coarse grid.
type CombinedEvaluation struct {
	Evaluation
	Anchor     domain.PhaseMatrixResult
	CoarseGrid domain.PhaseMatrixResult
	// AnchorsOnly is set when the combined call failed and only the anchors
	// could be evaluated.
	AnchorsOnly bool
}

// Phases returns the anchor and coarse-grid slices in column order.
func (c *CombinedEvaluation) Phases() []domain.PhaseMatrixResult {
	return []domain.PhaseMatrixResult{c.Anchor, c.CoarseGrid}
}

// GroupEvaluation collects the per-group refinement evaluations.
type GroupEvaluation struct {
	Results               []domain.PhaseMatrixResult
	GroupIndexes          []int
	Failed                int
	TotalHypothesisPoints int
	UnreachablePoints     int
}

// EvaluateCombined evaluates anchors and grid points with one oracle call. If
// that call fails for a reason other than auth or rate limiting, a single
// anchors-only call is tried before giving up.
func (o *Orchestrator) EvaluateCombined(ctx context.Context, origins []domain.Location, anchors, grid []domain.HypothesisPoint, mode domain.TravelMode) (*CombinedEvaluation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEvaluateCombined, trace.WithAttributes(
		attribute.Int("anchors", len(anchors)),
		attribute.Int("grid", len(grid)),
	))
	defer span.End()

	all := make([]domain.HypothesisPoint, 0, len(anchors)+len(grid))
	all = append(all, anchors...)
	all = append(all, grid...)
	if err := validateInputs(origins, all, mode); err != nil {
		return nil, err
	}

	ce := &CombinedEvaluation{}
	evaluated := all
	rows, err := o.fetch(ctx, origins, all, mode, true)
	if err != nil {
		if !fallbackAllowed(ctx, err) || len(anchors) == 0 || len(grid) == 0 {
			recordSpanError(span, err)
			return nil, err
		}
		o.logger.Warn("combined evaluation failed, falling back to anchors only",
			"error", err, "anchors", len(anchors), "grid", len(grid))
		metrics.OracleFallbacks.Inc()

		var ferr error
		rows, ferr = o.fetch(ctx, origins, anchors, mode, false)
		if ferr != nil {
			o.logger.Error("anchor fallback failed", "error", ferr)
			recordSpanError(span, err)
			return nil, err
		}
		evaluated = anchors
		ce.AnchorsOnly = true
	}

	ev := filterReachable(origins, evaluated, rows, mode)
	if len(ev.Matrix.Destinations) == 0 {
		err := domain.Errorf(domain.CodeNoReachablePoints, "",
			"all %d hypothesis points are unreachable", ev.TotalHypothesisPoints)
		recordSpanError(span, err)
		return nil, err
	}
	ce.Evaluation = *ev

	keptAnchors := 0
	for _, p := range ev.Matrix.Destinations {
		if p.Phase == domain.PhaseAnchor {
			keptAnchors++
		}
	}
	n := len(ev.Matrix.Destinations)
	ce.Anchor = phaseSlice(ev.Matrix, domain.PhaseAnchor, 0, keptAnchors)
	ce.CoarseGrid = phaseSlice(ev.Matrix, domain.PhaseCoarseGrid, keptAnchors, n)

	if len(anchors) > 0 && keptAnchors == 0 {
		o.logger.Warn("every anchor is unreachable, continuing with grid points")
	}
	if len(grid) > 0 && !ce.AnchorsOnly && n-keptAnchors == 0 {
		o.logger.Warn("every coarse grid point is unreachable, continuing with anchors")
	}
	if u := ev.UnreachableCount(); u > 0 {
		o.logger.Info("filtered unreachable hypothesis points",
			"unreachable", u, "total", ev.TotalHypothesisPoints)
	}

	span.SetAttributes(attribute.Int("reachable", n), attribute.Bool("anchors_only", ce.AnchorsOnly))
	return ce, nil
}

// EvaluateAll evaluates an arbitrary point set with a single oracle call.
func (o *Orchestrator) EvaluateAll(ctx context.Context, origins []domain.Location, points []domain.HypothesisPoint, mode domain.TravelMode) (*Evaluation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEvaluateAll,
		trace.WithAttributes(attribute.Int("points", len(points))))
	defer span.End()

	ev, err := o.evaluate(ctx, origins, points, mode)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return ev, nil
}

// EvaluateGroups evaluates each group with its own oracle call, concurrently.
// Failed groups are skipped. It fails only when every group fails.
func (o *Orchestrator) EvaluateGroups(ctx context.Context, origins []domain.Location, groups [][]domain.HypothesisPoint, mode domain.TravelMode) (*GroupEvaluation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEvaluateGroups,
		trace.WithAttributes(attribute.Int("groups", len(groups))))
	defer span.End()

	if len(groups) == 0 {
		err := domain.Errorf(domain.CodeAllGroupsFailed, "", "no refinement groups to evaluate")
		recordSpanError(span, err)
		return nil, err
	}

	type outcome struct {
		ev  *Evaluation
		err error
	}
	outcomes := make([]outcome, len(groups))

	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)
	for i, pts := range groups {
		g.Go(func() error {
			ev, err := o.evaluate(ctx, origins, pts, mode)
			outcomes[i] = outcome{ev: ev, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := &GroupEvaluation{}
	var lastErr error
	for i, oc := range outcomes {
		res.TotalHypothesisPoints += len(groups[i])
		if oc.err != nil {
			o.logger.Warn("refinement group failed, skipping", "group", i, "error", oc.err)
			metrics.RefinementGroupFailures.Inc()
			res.Failed++
			lastErr = oc.err
			continue
		}
		res.UnreachablePoints += oc.ev.UnreachableCount()
		res.GroupIndexes = append(res.GroupIndexes, i)
		res.Results = append(res.Results, phaseSlice(oc.ev.Matrix, domain.PhaseLocalRefinement, 0, len(oc.ev.Matrix.Destinations)))
	}

	if len(res.Results) == 0 {
		err := domain.Wrap(domain.CodeAllGroupsFailed, lastErr, "all %d refinement groups failed", len(groups))
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("failed", res.Failed))
	return res, nil
}

// MergeGroups concatenates group results column-wise into one result. All
// groups must share the same origin order.
func MergeGroups(results []domain.PhaseMatrixResult) (domain.PhaseMatrixResult, error) {
	if len(results) == 0 {
		return domain.PhaseMatrixResult{}, domain.Errorf(domain.CodeAllGroupsFailed, "", "no group results to merge")
	}
	m, _, err := MergePhases(results...)
	if err != nil {
		return domain.PhaseMatrixResult{}, err
	}
	return domain.PhaseMatrixResult{
		Phase:            results[0].Phase,
		Matrix:           m,
		HypothesisPoints: m.Destinations,
		StartIndex:       0,
		EndIndex:         len(m.Destinations),
	}, nil
}

// MergePhases concatenates phase results into one matrix and returns the phase
// of every resulting column. Empty results are skipped.
func MergePhases(results ...domain.PhaseMatrixResult) (domain.TravelTimeMatrix, []domain.Phase, error) {
	if len(results) == 0 {
		return domain.TravelTimeMatrix{}, nil, domain.Errorf(domain.CodeInvalidInput, "", "no phase results to merge")
	}

	base := results[0].Matrix
	out := domain.TravelTimeMatrix{
		Origins:     base.Origins,
		TravelMode:  base.TravelMode,
		TravelTimes: make([][]float64, len(base.Origins)),
	}
	var phases []domain.Phase

	for _, r := range results {
		if !sameOrigins(base.Origins, r.Matrix.Origins) {
			return domain.TravelTimeMatrix{}, nil, domain.Errorf(domain.CodeOriginMismatch, "",
				"phase %s origins differ from %s", r, results[0])
		}
		if len(r.Matrix.Destinations) == 0 {
			continue
		}
		if err := r.Matrix.Validate(); err != nil {
			return domain.TravelTimeMatrix{}, nil, err
		}
		out.Destinations = append(out.Destinations, r.Matrix.Destinations...)
		for i := range out.TravelTimes {
			out.TravelTimes[i] = append(out.TravelTimes[i], r.Matrix.TravelTimes[i]...)
		}
		for range r.Matrix.Destinations {
			phases = append(phases, r.Phase)
		}
	}
	return out, phases, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, origins []domain.Location, points []domain.HypothesisPoint, mode domain.TravelMode) (*Evaluation, error) {
	if err := validateInputs(origins, points, mode); err != nil {
		return nil, err
	}
	rows, err := o.fetch(ctx, origins, points, mode, true)
	if err != nil {
		return nil, err
	}
	ev := filterReachable(origins, points, rows, mode)
	if len(ev.Matrix.Destinations) == 0 {
		return nil, domain.Errorf(domain.CodeNoReachablePoints, "",
			"all %d hypothesis points are unreachable", ev.TotalHypothesisPoints)
	}
	if u := ev.UnreachableCount(); u > 0 {
		o.logger.Info("filtered unreachable hypothesis points",
			"unreachable", u, "total", ev.TotalHypothesisPoints)
	}
	return ev, nil
}

// fetch calls the oracle, retries once on a transient failure when retry is
// set, and checks the matrix dimensions.
func (o *Orchestrator) fetch(ctx context.Context, origins []domain.Location, points []domain.HypothesisPoint, mode domain.TravelMode, retry bool) ([][]float64, error) {
	originCoords := domain.Coordinates(origins)
	dests := make([]domain.Coordinate, len(points))
	for i, p := range points {
		dests[i] = p.Coordinate
	}

	rows, err := o.call(ctx, originCoords, dests, mode)
	if err != nil && retry && domain.IsRetryable(err) && ctx.Err() == nil {
		o.logger.Warn("oracle call failed, retrying once", "error", err, "delay", o.retryDelay)
		metrics.OracleRetries.Inc()

		timer := time.NewTimer(o.retryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, classifyOracleError(ctx.Err())
		}
		rows, err = o.call(ctx, originCoords, dests, mode)
	}
	if err != nil {
		return nil, err
	}

	if len(rows) != len(origins) {
		return nil, domain.Errorf(domain.CodeMatrixInvalid, "",
			"oracle returned %d rows for %d origins", len(rows), len(origins))
	}
	for i, row := range rows {
		if len(row) != len(points) {
			return nil, domain.Errorf(domain.CodeMatrixInvalid, "",
				"oracle row %d has %d columns for %d destinations", i, len(row), len(points))
		}
	}
	return rows, nil
}

func (o *Orchestrator) call(ctx context.Context, origins, dests []domain.Coordinate, mode domain.TravelMode) ([][]float64, error) {
	o.calls.Add(1)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanOracleCall, trace.WithAttributes(
		attribute.Int("origins", len(origins)),
		attribute.Int("destinations", len(dests)),
		attribute.String("mode", string(mode)),
	))
	defer span.End()

	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	rows, err := o.oracle.EvaluateMatrix(ctx, origins, dests, mode)
	if err != nil {
		err = classifyOracleError(err)
		recordSpanError(span, err)
		return nil, err
	}
	return rows, nil
}

// classifyOracleError maps untyped failures onto oracle codes. Typed errors
// pass through unchanged. Transport errors stay retryable.
func classifyOracleError(err error) error {
	var (
		de *domain.Error
		ne net.Error
	)
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Wrap(domain.CodeOracleTimeout, err, "travel-time request timed out")
	case errors.Is(err, context.Canceled):
		return domain.Wrap(domain.CodeInternal, err, "travel-time request canceled")
	case errors.As(err, &ne) && ne.Timeout():
		return domain.Wrap(domain.CodeOracleTimeout, err, "travel-time request timed out")
	case errors.As(err, &ne):
		return domain.Wrap(domain.CodeOracleNetwork, err, "travel-time service unreachable")
	default:
		return domain.Wrap(domain.CodeOracleRequest, err, "travel-time request failed")
	}
}

func fallbackAllowed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch domain.CodeOf(err) {
	case domain.CodeOracleAuth, domain.CodeOracleRateLimited, domain.CodeInvalidInput, domain.CodeInternal:
		return false
	}
	return true
}

func validateInputs(origins []domain.Location, points []domain.HypothesisPoint, mode domain.TravelMode) error {
	if len(origins) == 0 {
		return domain.Errorf(domain.CodeInvalidInput, "At least one location is required.", "no origins")
	}
	if len(points) == 0 {
		return domain.Errorf(domain.CodeInvalidInput, "", "no hypothesis points to evaluate")
	}
	if !mode.Valid() {
		return domain.Errorf(domain.CodeInvalidInput, "Unknown travel mode.", "unknown travel mode %q", mode)
	}
	return nil
}

// filterReachable drops every column with an unusable cell in any row.
func filterReachable(origins []domain.Location, points []domain.HypothesisPoint, rows [][]float64, mode domain.TravelMode) *Evaluation {
	ev := &Evaluation{
		TotalHypothesisPoints: len(points),
		Matrix: domain.TravelTimeMatrix{
			Origins:     origins,
			TravelMode:  mode,
			TravelTimes: make([][]float64, len(rows)),
		},
	}
	for i := range rows {
		ev.Matrix.TravelTimes[i] = make([]float64, 0, len(points))
	}

	for j, p := range points {
		reachable := true
		for _, row := range rows {
			if !domain.IsReachable(row[j]) {
				reachable = false
				break
			}
		}
		if !reachable {
			ev.UnreachableIDs = append(ev.UnreachableIDs, p.ID)
			continue
		}
		ev.Matrix.Destinations = append(ev.Matrix.Destinations, p)
		for i, row := range rows {
			ev.Matrix.TravelTimes[i] = append(ev.Matrix.TravelTimes[i], row[j])
		}
	}
	return ev
}

func phaseSlice(m domain.TravelTimeMatrix, phase domain.Phase, start, end int) domain.PhaseMatrixResult {
	sub := domain.TravelTimeMatrix{
		Origins:      m.Origins,
		Destinations: m.Destinations[start:end:end],
		TravelTimes:  make([][]float64, len(m.TravelTimes)),
		TravelMode:   m.TravelMode,
	}
	for i, row := range m.TravelTimes {
		sub.TravelTimes[i] = append([]float64(nil), row[start:end]...)
	}
	return domain.PhaseMatrixResult{
		Phase:            phase,
		Matrix:           sub,
		HypothesisPoints: sub.Destinations,
		StartIndex:       start,
		EndIndex:         end,
	}
}

func sameOrigins(a, b []domain.Location) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Coordinate != b[i].Coordinate {
			return false
		}
	}
	return true
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(domain.CodeOf(err)))
}
