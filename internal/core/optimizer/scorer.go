// Package optimizer evaluates hypothesis points against the travel-time
// oracle and selects the fairest one.
package optimizer

import (
	"log/slog"
	"math"
	"sort"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// ScoringConfig selects the score a point is ranked by.
type ScoringConfig struct {
	Goal            domain.OptimizationGoal
	IncludeVariance bool
}

// ScorePoints attaches travel-time metrics and a score to each point and
// returns the scorable points sorted best first. travelTimes[i] holds the
// per-origin times for points[i]. Points without a single usable time are
// dropped.
func ScorePoints(points []domain.HypothesisPoint, travelTimes [][]domain.PerPersonTravelTime, cfg ScoringConfig) ([]domain.HypothesisPoint, error) {
	if len(points) != len(travelTimes) {
		return nil, domain.Errorf(domain.CodeScoringFailed, "",
			"%d points but %d travel-time lists", len(points), len(travelTimes))
	}
	if !cfg.Goal.Valid() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "Unknown optimization goal.",
			"unknown optimization goal %q", cfg.Goal)
	}
	withVariance := cfg.IncludeVariance || cfg.Goal == domain.GoalMinimizeVariance

	scored := make([]domain.HypothesisPoint, 0, len(points))
	for i, p := range points {
		m, ok := computeMetrics(travelTimes[i], withVariance)
		if !ok {
			slog.Debug("skipping point with no valid travel times", "point_id", p.ID)
			continue
		}

		var score float64
		switch cfg.Goal {
		case domain.GoalMinimax:
			score = m.Max
		case domain.GoalMinimizeTotal:
			score = m.Total
		case domain.GoalMinimizeVariance:
			if m.Variance == nil {
				return nil, domain.Errorf(domain.CodeVarianceUnavailable, "",
					"variance missing for point %s", p.ID)
			}
			score = *m.Variance
		}

		p.TravelTimeMetrics = m
		p.Score = domain.Float64Ptr(score)
		scored = append(scored, p)
	}

	if len(scored) == 0 {
		return nil, domain.Errorf(domain.CodeScoringFailed, "",
			"none of %d points had a valid travel time", len(points))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Score < *scored[j].Score
	})
	return scored, nil
}

func computeMetrics(times []domain.PerPersonTravelTime, withVariance bool) (*domain.TravelTimeMetrics, bool) {
	valid := make([]float64, 0, len(times))
	for _, t := range times {
		if domain.IsReachable(t.TravelTimeMinutes) {
			valid = append(valid, t.TravelTimeMinutes)
		}
	}
	if len(valid) == 0 {
		return nil, false
	}

	m := &domain.TravelTimeMetrics{Max: valid[0], Min: valid[0], ValidCount: len(valid)}
	for _, v := range valid {
		m.Total += v
		m.Max = math.Max(m.Max, v)
		m.Min = math.Min(m.Min, v)
	}
	m.Average = m.Total / float64(len(valid))

	if withVariance {
		var sq float64
		for _, v := range valid {
			d := v - m.Average
			sq += d * d
		}
		m.Variance = domain.Float64Ptr(sq / float64(len(valid)))
	}
	return m, true
}

// TravelTimesFromMatrix turns matrix columns into per-point travel-time lists
// aligned with m.Destinations.
func TravelTimesFromMatrix(m domain.TravelTimeMatrix) [][]domain.PerPersonTravelTime {
	out := make([][]domain.PerPersonTravelTime, len(m.Destinations))
	for j := range m.Destinations {
		col := m.Column(j)
		times := make([]domain.PerPersonTravelTime, len(col))
		for i, v := range col {
			times[i] = domain.PerPersonTravelTime{LocationID: originID(m, i), TravelTimeMinutes: v}
		}
		out[j] = times
	}
	return out
}

func originID(m domain.TravelTimeMatrix, i int) string {
	if i < len(m.Origins) {
		return m.Origins[i].ID
	}
	return ""
}
