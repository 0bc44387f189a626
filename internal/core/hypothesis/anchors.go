// Package hypothesis generates candidate meeting points: Phase 0 anchors, the
// Phase 1 coarse grid and Phase 2 local refinement grids, plus the proximity
// deduplication applied between phases.
package hypothesis

import (
	"fmt"
	"log/slog"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
)

const (
	IDCentroid = "anchor_centroid"
	IDMedian   = "anchor_median"
)

// ExpectedAnchorCount returns how many anchors GenerateAnchors produces for n
// locations when no optional anchor is skipped.
func ExpectedAnchorCount(n int) int {
	switch {
	case n < 1:
		return 0
	case n == 1:
		return n + 2
	default:
		return 2 + n + n*(n-1)/2
	}
}

// GenerateAnchors builds the Phase 0 candidates: centroid, median, each
// participant and each pairwise midpoint, in that order. Centroid, median and
// midpoint failures are logged to logger and skipped. An invalid participant
// is fatal. A nil logger uses slog.Default().
func GenerateAnchors(locations []domain.Location, logger *slog.Logger) ([]domain.HypothesisPoint, error) {
	logger = orDefault(logger)
	if len(locations) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "At least one location is required.",
			"anchor generation needs at least one location")
	}

	points := make([]domain.HypothesisPoint, 0, ExpectedAnchorCount(len(locations)))

	if c, err := geometry.Centroid(locations); err != nil {
		logger.Warn("skipping centroid anchor", "error", err)
	} else {
		points = append(points, anchor(IDCentroid, c, domain.TypeGeographicCentroid, nil))
	}

	if m, err := geometry.Median(locations); err != nil {
		logger.Warn("skipping median anchor", "error", err)
	} else {
		points = append(points, anchor(IDMedian, m, domain.TypeMedianCoordinate, nil))
	}

	for i, l := range locations {
		if !geometry.ValidateCoordinate(l.Coordinate) {
			return nil, domain.Errorf(domain.CodeAnchorGenerationFailed, "",
				"participant %d (%q) has invalid coordinate (%f, %f)",
				i, l.ID, l.Coordinate.Latitude, l.Coordinate.Longitude)
		}
		points = append(points, anchor(
			fmt.Sprintf("anchor_participant_%d", i),
			l.Coordinate,
			domain.TypeParticipantLocation,
			&domain.HypothesisMetadata{ParticipantIDs: []string{l.ID}},
		))
	}

	for _, mid := range geometry.PairwiseMidpoints(locations) {
		if !geometry.ValidateCoordinate(mid.Coordinate) {
			logger.Warn("skipping pairwise anchor", "i", mid.I, "j", mid.J)
			continue
		}
		points = append(points, anchor(
			fmt.Sprintf("anchor_pairwise_%d_%d", mid.I, mid.J),
			mid.Coordinate,
			domain.TypePairwiseMidpoint,
			&domain.HypothesisMetadata{PairIDs: []string{locations[mid.I].ID, locations[mid.J].ID}},
		))
	}

	for _, p := range points {
		if !geometry.ValidateCoordinate(p.Coordinate) {
			return nil, domain.Errorf(domain.CodeAnchorGenerationFailed, "",
				"anchor %s has invalid coordinate (%f, %f)", p.ID, p.Coordinate.Latitude, p.Coordinate.Longitude)
		}
	}
	return points, nil
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func anchor(id string, c domain.Coordinate, t domain.HypothesisPointType, meta *domain.HypothesisMetadata) domain.HypothesisPoint {
	return domain.HypothesisPoint{
		ID:         id,
		Coordinate: c,
		Type:       t,
		Phase:      domain.PhaseAnchor,
		Metadata:   meta,
	}
}
