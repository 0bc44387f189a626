package hypothesis

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
	"github.com/samirrijal/meetpoint/internal/pkg/geospatial"
)

// RefinementConfig controls Phase 2 local refinement.
type RefinementConfig struct {
	TopM                 int     `json:"top_m"`
	DedupThresholdMeters float64 `json:"dedup_threshold_meters"`
	RefinementRadiusKm   float64 `json:"refinement_radius_km"`
	FineGridResolution   int     `json:"fine_grid_resolution"`
}

// Validate checks every field against its allowed range.
func (c RefinementConfig) Validate() error {
	switch {
	case c.TopM < 1 || c.TopM > 20:
		return domain.Errorf(domain.CodeInvalidInput, "Top-M must be between 1 and 20.",
			"top_m %d outside [1, 20]", c.TopM)
	case c.DedupThresholdMeters < 10 || c.DedupThresholdMeters > 10000:
		return domain.Errorf(domain.CodeInvalidInput, "Refinement dedup threshold must be between 10 and 10000 m.",
			"dedup_threshold_meters %.1f outside [10, 10000]", c.DedupThresholdMeters)
	case c.RefinementRadiusKm < 0.1 || c.RefinementRadiusKm > 10:
		return domain.Errorf(domain.CodeInvalidInput, "Refinement radius must be between 0.1 and 10 km.",
			"refinement_radius_km %.3f outside [0.1, 10]", c.RefinementRadiusKm)
	case c.FineGridResolution < 2 || c.FineGridResolution > 10:
		return domain.Errorf(domain.CodeInvalidInput, "Fine grid resolution must be between 2 and 10.",
			"fine_grid_resolution %d outside [2, 10]", c.FineGridResolution)
	}
	return nil
}

// RefinementGroup is the local grid around one surviving candidate. Each
// group is evaluated against the oracle on its own.
type RefinementGroup struct {
	CandidateIndex int                      `json:"candidate_index"`
	Candidate      domain.CandidatePoint    `json:"candidate"`
	Bounds         domain.Bounds            `json:"bounds"`
	Points         []domain.HypothesisPoint `json:"points"`
}

// RefinementResult is the outcome of GenerateLocalRefinement.
type RefinementResult struct {
	Survivors []domain.CandidatePoint `json:"survivors"`
	Groups    []RefinementGroup       `json:"groups"`
	Skipped   int                     `json:"skipped"`
}

// Points returns every refinement point across all groups, in group order.
func (r *RefinementResult) Points() []domain.HypothesisPoint {
	var out []domain.HypothesisPoint
	for _, g := range r.Groups {
		out = append(out, g.Points...)
	}
	return out
}

// GenerateLocalRefinement picks the TopM best candidates, merges those that
// sit within the dedup threshold of each other, and lays a fine grid around
// every survivor. A survivor whose grid cannot be built is logged and skipped.
func GenerateLocalRefinement(candidates []domain.CandidatePoint, cfg RefinementConfig, logger *slog.Logger) (*RefinementResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	survivors := SelectSurvivors(candidates, cfg.TopM, cfg.DedupThresholdMeters)
	res := &RefinementResult{Survivors: survivors}

	for ci, cand := range survivors {
		group, err := refineAround(ci, cand, cfg)
		if err != nil {
			orDefault(logger).Warn("skipping refinement candidate",
				"candidate_index", ci, "candidate_id", cand.ID, "error", err)
			res.Skipped++
			continue
		}
		res.Groups = append(res.Groups, group)
	}
	return res, nil
}

// SelectSurvivors sorts candidates by max travel time, keeps the first topM
// and folds together any that lie within thresholdMeters in planar degrees.
func SelectSurvivors(candidates []domain.CandidatePoint, topM int, thresholdMeters float64) []domain.CandidatePoint {
	sorted := make([]domain.CandidatePoint, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaxTravelTime < sorted[j].MaxTravelTime
	})
	if len(sorted) > topM {
		sorted = sorted[:topM]
	}

	threshold := thresholdMeters / geospatial.MetersPerDegree
	var survivors []domain.CandidatePoint
	for _, cand := range sorted {
		merged := false
		for i, s := range survivors {
			if geometry.EuclideanDegrees(cand.Coordinate, s.Coordinate) > threshold {
				continue
			}
			maxTT := s.MaxTravelTime
			if cand.MaxTravelTime < maxTT {
				maxTT = cand.MaxTravelTime
			}
			survivors[i] = domain.CandidatePoint{
				Coordinate:    geometry.MeanCoordinate([]domain.Coordinate{s.Coordinate, cand.Coordinate}),
				MaxTravelTime: maxTT,
				ID:            s.ID,
			}
			merged = true
			break
		}
		if !merged {
			survivors = append(survivors, cand)
		}
	}
	return survivors
}

func refineAround(ci int, cand domain.CandidatePoint, cfg RefinementConfig) (RefinementGroup, error) {
	if !geometry.ValidateCoordinate(cand.Coordinate) {
		return RefinementGroup{}, domain.Errorf(domain.CodeInvalidCoordinate, "",
			"candidate (%f, %f) out of bounds", cand.Coordinate.Latitude, cand.Coordinate.Longitude)
	}
	box := geometry.LocalBoundingBox(cand.Coordinate, cfg.RefinementRadiusKm)
	coords, err := geometry.GridPoints(box, cfg.FineGridResolution)
	if err != nil {
		return RefinementGroup{}, domain.Wrap(domain.CodeRefinementFailed, err, "local grid for candidate %d", ci)
	}

	points := make([]domain.HypothesisPoint, len(coords))
	for gi, c := range coords {
		points[gi] = domain.HypothesisPoint{
			ID:         fmt.Sprintf("local_refinement_%d_%d", ci, gi),
			Coordinate: c,
			Type:       domain.TypeLocalRefinementCell,
			Phase:      domain.PhaseLocalRefinement,
		}
	}
	return RefinementGroup{
		CandidateIndex: ci,
		Candidate:      cand,
		Bounds:         box,
		Points:         points,
	}, nil
}
