package domain

import (
	"strings"
	"time"
)

// TieBreakRule names the rule that settled a minimax selection.
type TieBreakRule string

const (
	TieBreakNone             TieBreakRule = "NONE"
	TieBreakEarlierPhase     TieBreakRule = "EARLIER_PHASE"
	TieBreakLowerAverage     TieBreakRule = "LOWER_AVERAGE"
	TieBreakCentroidDistance TieBreakRule = "CENTROID_DISTANCE"
	// TieBreakFirstSeen means several candidates were indistinguishable and
	// the earliest column won. Another equally valid answer exists.
	TieBreakFirstSeen TieBreakRule = "FIRST_SEEN"
)

// SearchOverrides lets a single request adjust the configured search. Nil
// fields keep the configured value.
type SearchOverrides struct {
	GridSize              *int     `json:"grid_size,omitempty"`
	PaddingKm             *float64 `json:"padding_km,omitempty"`
	TopM                  *int     `json:"top_m,omitempty"`
	RefinementRadiusKm    *float64 `json:"refinement_radius_km,omitempty"`
	FineGridResolution    *int     `json:"fine_grid_resolution,omitempty"`
	DedupThresholdMeters  *float64 `json:"dedup_threshold_meters,omitempty"`
	EnableLocalRefinement *bool    `json:"enable_local_refinement,omitempty"`
}

// MeetingPointRequest asks for the fairest meeting point of a group.
type MeetingPointRequest struct {
	Locations        []Location       `json:"locations"`
	TravelMode       TravelMode       `json:"travel_mode"`
	OptimizationGoal OptimizationGoal `json:"optimization_goal"`
	Options          *SearchOverrides `json:"options,omitempty"`

	// RunID is assigned by the service when empty. Queued requests carry the
	// id handed back to the submitter.
	RunID string `json:"run_id,omitempty"`
}

// Selection records how the optimal point was chosen.
type Selection struct {
	Index             int              `json:"index"`
	PointID           string           `json:"point_id"`
	Phase             Phase            `json:"phase"`
	Goal              OptimizationGoal `json:"goal"`
	MaxTravelTime     float64          `json:"max_travel_time"`
	AverageTravelTime float64          `json:"average_travel_time"`
	TieBreak          TieBreakRule     `json:"tie_break"`
	TiedCount         int              `json:"tied_count"`
}

// PhaseCounts tallies hypothesis points per phase.
type PhaseCounts struct {
	Anchor          int `json:"anchor"`
	CoarseGrid      int `json:"coarse_grid"`
	LocalRefinement int `json:"local_refinement"`
}

// Total sums all phases.
func (p PhaseCounts) Total() int {
	return p.Anchor + p.CoarseGrid + p.LocalRefinement
}

// Add increments the counter for phase by n.
func (p *PhaseCounts) Add(phase Phase, n int) {
	switch phase {
	case PhaseAnchor:
		p.Anchor += n
	case PhaseCoarseGrid:
		p.CoarseGrid += n
	case PhaseLocalRefinement:
		p.LocalRefinement += n
	}
}

// MeetingPointResult is the full outcome of one search run.
type MeetingPointResult struct {
	RunID                  string                `json:"run_id"`
	OptimalPoint           HypothesisPoint       `json:"optimal_point"`
	TravelTimes            []PerPersonTravelTime `json:"travel_times"`
	RankedPoints           []HypothesisPoint     `json:"ranked_points"`
	Selection              Selection             `json:"selection"`
	Generated              PhaseCounts           `json:"generated"`
	Evaluated              PhaseCounts           `json:"evaluated"`
	TotalHypothesisPoints  int                   `json:"total_hypothesis_points"`
	UnreachablePoints      int                   `json:"unreachable_points"`
	RefinementGroupsFailed int                   `json:"refinement_groups_failed"`
	APICallCount           int64                 `json:"api_call_count"`
	CacheHits              int64                 `json:"cache_hits"`
	TravelMode             TravelMode            `json:"travel_mode"`
	OptimizationGoal       OptimizationGoal      `json:"optimization_goal"`
	DurationMs             int64                 `json:"duration_ms"`
	CreatedAt              time.Time             `json:"created_at"`
}

// Run statuses carried by result events.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// MeetingPointEvent is the summary broadcast after a successful run.
type MeetingPointEvent struct {
	RunID        string           `json:"run_id"`
	Status       string           `json:"status"`
	OptimalPoint HypothesisPoint  `json:"optimal_point"`
	Selection    Selection        `json:"selection"`
	TravelMode   TravelMode       `json:"travel_mode"`
	Goal         OptimizationGoal `json:"goal"`
	Participants int              `json:"participants"`
	APICallCount int64            `json:"api_call_count"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Event summarises r for publication.
func (r *MeetingPointResult) Event(participants int) *MeetingPointEvent {
	return &MeetingPointEvent{
		RunID:        r.RunID,
		Status:       StatusCompleted,
		OptimalPoint: r.OptimalPoint,
		Selection:    r.Selection,
		TravelMode:   r.TravelMode,
		Goal:         r.OptimizationGoal,
		Participants: participants,
		APICallCount: r.APICallCount,
		CreatedAt:    r.CreatedAt,
	}
}

// MeetingPointFailure is broadcast on the result subject when a queued run
// fails, so submitters waiting on the run id are not left hanging. Code is the
// lowercase error code used by the HTTP API.
type MeetingPointFailure struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMeetingPointFailure builds the failure event for runID. An empty message
// selects the code's default user message.
func NewMeetingPointFailure(runID string, code ErrorCode, message string, at time.Time) *MeetingPointFailure {
	if message == "" {
		message = defaultUserMessages[code]
	}
	if message == "" {
		message = defaultUserMessages[CodeInternal]
	}
	return &MeetingPointFailure{
		RunID:     runID,
		Status:    StatusFailed,
		Code:      strings.ToLower(string(code)),
		Message:   message,
		CreatedAt: at.UTC(),
	}
}

// EvaluationResult is the outcome of scoring caller-supplied candidates.
type EvaluationResult struct {
	RunID                 string            `json:"run_id"`
	RankedPoints          []HypothesisPoint `json:"ranked_points"`
	Selection             *Selection        `json:"selection,omitempty"`
	TotalHypothesisPoints int               `json:"total_hypothesis_points"`
	UnreachablePoints     int               `json:"unreachable_points"`
	APICallCount          int64             `json:"api_call_count"`
	CacheHits             int64             `json:"cache_hits"`
}

// EvaluationRequest asks for caller-supplied candidates to be scored.
type EvaluationRequest struct {
	Locations        []Location       `json:"locations"`
	Candidates       []Location       `json:"candidates"`
	TravelMode       TravelMode       `json:"travel_mode"`
	OptimizationGoal OptimizationGoal `json:"optimization_goal"`
}
