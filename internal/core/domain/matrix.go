package domain

import (
	"fmt"
	"math"
)

// TravelMode selects the routing profile used by the travel-time oracle.
type TravelMode string

const (
	ModeDrivingCar     TravelMode = "DRIVING_CAR"
	ModeCyclingRegular TravelMode = "CYCLING_REGULAR"
	ModeFootWalking    TravelMode = "FOOT_WALKING"
)

// Valid reports whether m is a known travel mode.
func (m TravelMode) Valid() bool {
	switch m {
	case ModeDrivingCar, ModeCyclingRegular, ModeFootWalking:
		return true
	}
	return false
}

// Unreachable marks a matrix cell with no route.
var Unreachable = math.Inf(1)

// IsReachable reports whether a single cell holds a usable travel time.
func IsReachable(minutes float64) bool {
	return !math.IsNaN(minutes) && !math.IsInf(minutes, 0) && minutes >= 0
}

// TravelTimeMatrix holds travel times in minutes, one row per origin and one
// column per destination.
type TravelTimeMatrix struct {
	Origins      []Location        `json:"origins"`
	Destinations []HypothesisPoint `json:"destinations"`
	TravelTimes  [][]float64       `json:"travel_times"`
	TravelMode   TravelMode        `json:"travel_mode"`
}

// Validate checks the row and column counts against origins and destinations.
func (m TravelTimeMatrix) Validate() error {
	if len(m.TravelTimes) != len(m.Origins) {
		return Errorf(CodeMatrixInvalid, "",
			"matrix has %d rows, expected %d origins", len(m.TravelTimes), len(m.Origins))
	}
	for i, row := range m.TravelTimes {
		if len(row) != len(m.Destinations) {
			return Errorf(CodeMatrixInvalid, "",
				"matrix row %d has %d columns, expected %d destinations", i, len(row), len(m.Destinations))
		}
	}
	return nil
}

// Column returns the travel times of destination j across all origins.
func (m TravelTimeMatrix) Column(j int) []float64 {
	col := make([]float64, len(m.TravelTimes))
	for i, row := range m.TravelTimes {
		if j < len(row) {
			col[i] = row[j]
		} else {
			col[i] = math.NaN()
		}
	}
	return col
}

// PhaseMatrixResult is the evaluation of one phase: either a contiguous
// column slice [StartIndex, EndIndex) of a combined matrix or its own matrix.
type PhaseMatrixResult struct {
	Phase            Phase             `json:"phase"`
	Matrix           TravelTimeMatrix  `json:"matrix"`
	HypothesisPoints []HypothesisPoint `json:"hypothesis_points"`
	StartIndex       int               `json:"start_index"`
	EndIndex         int               `json:"end_index"`
}

// String implements fmt.Stringer for log output.
func (p PhaseMatrixResult) String() string {
	return fmt.Sprintf("%s[%d:%d]", p.Phase, p.StartIndex, p.EndIndex)
}
