package optimizer

import (
	"math"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
)

const (
	maxTolerance     = 1e-9
	averageTolerance = 0.01
	distTolerance    = 1e-12
)

// MinimaxResult is the column chosen by FindMinimaxOptimal.
type MinimaxResult struct {
	Index    int                 `json:"index"`
	PointID  string              `json:"point_id,omitempty"`
	Max      float64             `json:"max_travel_time"`
	Average  float64             `json:"average_travel_time"`
	Phase    domain.Phase        `json:"phase,omitempty"`
	TieBreak domain.TieBreakRule `json:"tie_break"`
	// TiedCount is how many columns shared the minimum max before tie-breaking.
	TiedCount int `json:"tied_count"`
}

type column struct {
	index int
	max   float64
	avg   float64
}

// FindMinimaxOptimal returns the destination whose worst travel time over all
// origins is smallest. A column with any missing or unusable reading is never
// selected. phases, when it has one entry per column, lets an earlier phase
// win a tie. Remaining ties go to the lower average, then to the point
// closest (in degrees) to the origins' centroid. If that still ties the
// earliest column wins and TieBreak reports FIRST_SEEN: another column is an
// equally valid answer.
func FindMinimaxOptimal(m domain.TravelTimeMatrix, phases []domain.Phase) (*MinimaxResult, error) {
	ncols := len(m.Destinations)
	if ncols == 0 && len(m.TravelTimes) > 0 {
		ncols = len(m.TravelTimes[0])
	}
	if len(m.TravelTimes) == 0 || ncols == 0 {
		return nil, domain.Errorf(domain.CodeNoOptimalPoint, "", "empty travel-time matrix")
	}

	var cols []column
	for j := 0; j < ncols; j++ {
		c, ok := scoreColumn(m.TravelTimes, j)
		if ok {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return nil, domain.Errorf(domain.CodeNoOptimalPoint, "",
			"none of %d destinations is reachable from all %d origins", ncols, len(m.TravelTimes))
	}

	best := math.Inf(1)
	for _, c := range cols {
		best = math.Min(best, c.max)
	}
	var tied []column
	for _, c := range cols {
		if math.Abs(c.max-best) <= maxTolerance {
			tied = append(tied, c)
		}
	}

	res := &MinimaxResult{TieBreak: domain.TieBreakNone, TiedCount: len(tied)}

	if len(tied) > 1 && len(phases) == ncols {
		if next := keepMin(tied, func(c column) float64 { return float64(phases[c.index].Rank()) }, 0); len(next) < len(tied) {
			tied = next
			res.TieBreak = domain.TieBreakEarlierPhase
		}
	}
	if len(tied) > 1 {
		if next := keepMin(tied, func(c column) float64 { return c.avg }, averageTolerance); len(next) < len(tied) {
			tied = next
			res.TieBreak = domain.TieBreakLowerAverage
		}
	}
	if len(tied) > 1 && len(m.Destinations) == ncols && len(m.Origins) > 0 {
		centroid := geometry.MeanCoordinate(domain.Coordinates(m.Origins))
		dist := func(c column) float64 {
			return geometry.EuclideanDegrees(m.Destinations[c.index].Coordinate, centroid)
		}
		if next := keepMin(tied, dist, distTolerance); len(next) < len(tied) {
			tied = next
			res.TieBreak = domain.TieBreakCentroidDistance
		}
	}
	if len(tied) > 1 {
		res.TieBreak = domain.TieBreakFirstSeen
	}

	win := tied[0]
	res.Index = win.index
	res.Max = win.max
	res.Average = win.avg
	if len(phases) == ncols {
		res.Phase = phases[win.index]
	}
	if win.index < len(m.Destinations) {
		res.PointID = m.Destinations[win.index].ID
		if res.Phase == "" {
			res.Phase = m.Destinations[win.index].Phase
		}
	}
	return res, nil
}

func scoreColumn(rows [][]float64, j int) (column, bool) {
	c := column{index: j}
	var total float64
	for _, row := range rows {
		if j >= len(row) || !domain.IsReachable(row[j]) {
			return column{}, false
		}
		c.max = math.Max(c.max, row[j])
		total += row[j]
	}
	c.avg = total / float64(len(rows))
	return c, true
}

// keepMin keeps the columns whose key is within tol of the smallest key,
// preserving order.
func keepMin(cols []column, key func(column) float64, tol float64) []column {
	lowest := math.Inf(1)
	for _, c := range cols {
		lowest = math.Min(lowest, key(c))
	}
	var out []column
	for _, c := range cols {
		if key(c)-lowest <= tol {
			out = append(out, c)
		}
	}
	return out
}
