package domain

// HypothesisPointType identifies how a candidate was derived.
type HypothesisPointType string

const (
	TypeGeographicCentroid  HypothesisPointType = "GEOGRAPHIC_CENTROID"
	TypeMedianCoordinate    HypothesisPointType = "MEDIAN_COORDINATE"
	TypeParticipantLocation HypothesisPointType = "PARTICIPANT_LOCATION"
	TypePairwiseMidpoint    HypothesisPointType = "PAIRWISE_MIDPOINT"
	TypeCoarseGridCell      HypothesisPointType = "COARSE_GRID_CELL"
	TypeLocalRefinementCell HypothesisPointType = "LOCAL_REFINEMENT_CELL"
	TypeCandidate           HypothesisPointType = "CANDIDATE"
)

// Phase is the search stage that produced a candidate.
type Phase string

const (
	PhaseAnchor          Phase = "ANCHOR"
	PhaseCoarseGrid      Phase = "COARSE_GRID"
	PhaseLocalRefinement Phase = "LOCAL_REFINEMENT"
	PhaseFinalOutput     Phase = "FINAL_OUTPUT"

	// PhaseCandidate marks caller-supplied points scored outside a search.
	PhaseCandidate Phase = "CANDIDATE"
)

// Rank orders phases for tie-breaking: earlier phases rank lower.
// Unknown phases rank after every known phase.
func (p Phase) Rank() int {
	switch p {
	case PhaseAnchor:
		return 0
	case PhaseCoarseGrid:
		return 1
	case PhaseLocalRefinement:
		return 2
	case PhaseFinalOutput:
		return 3
	default:
		return 4
	}
}

// HypothesisMetadata carries provenance for a candidate. Every field is
// optional; which ones are set depends on the point type.
type HypothesisMetadata struct {
	// ParticipantIDs holds the source participant of a PARTICIPANT_LOCATION
	// point, or several after a merge.
	ParticipantIDs []string `json:"participant_ids,omitempty"`
	// PairIDs holds the two participants of a PAIRWISE_MIDPOINT point.
	PairIDs []string `json:"pair_ids,omitempty"`
	// MergedFrom is the audit trail of point ids folded into this one.
	MergedFrom []string `json:"merged_from,omitempty"`
}

// TravelTimeMetrics summarises the per-origin travel times of one candidate.
// All values are minutes.
type TravelTimeMetrics struct {
	Max        float64  `json:"max_travel_time"`
	Average    float64  `json:"average_travel_time"`
	Total      float64  `json:"total_travel_time"`
	Min        float64  `json:"min_travel_time"`
	Variance   *float64 `json:"variance,omitempty"`
	ValidCount int      `json:"valid_count"`
}

// HypothesisPoint is a candidate meeting point under evaluation.
type HypothesisPoint struct {
	ID                string              `json:"id"`
	Coordinate        Coordinate          `json:"coordinate"`
	Type              HypothesisPointType `json:"type"`
	Phase             Phase               `json:"phase"`
	Metadata          *HypothesisMetadata `json:"metadata,omitempty"`
	Score             *float64            `json:"score,omitempty"`
	TravelTimeMetrics *TravelTimeMetrics  `json:"travel_time_metrics,omitempty"`
}

// IsScored reports whether the point carries both a score and metrics.
func (h HypothesisPoint) IsScored() bool {
	return h.Score != nil && h.TravelTimeMetrics != nil
}

// CandidatePoint seeds local refinement.
type CandidatePoint struct {
	Coordinate    Coordinate `json:"coordinate"`
	MaxTravelTime float64    `json:"max_travel_time"`
	ID            string     `json:"id,omitempty"`
}

// PerPersonTravelTime is one origin's outbound travel time to a candidate.
type PerPersonTravelTime struct {
	LocationID        string  `json:"location_id"`
	TravelTimeMinutes float64 `json:"travel_time_minutes"`
}

// OptimizationGoal selects how candidates are scored.
type OptimizationGoal string

const (
	GoalMinimax          OptimizationGoal = "MINIMAX"
	GoalMinimizeVariance OptimizationGoal = "MINIMIZE_VARIANCE"
	GoalMinimizeTotal    OptimizationGoal = "MINIMIZE_TOTAL"
)

// Valid reports whether g is a known goal.
func (g OptimizationGoal) Valid() bool {
	switch g {
	case GoalMinimax, GoalMinimizeVariance, GoalMinimizeTotal:
		return true
	}
	return false
}

// Float64Ptr is a small helper for optional numeric fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
