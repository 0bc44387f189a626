package hypothesis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
)

// MaxDedupThresholdMeters bounds the merge radius accepted by Deduplicate.
const MaxDedupThresholdMeters = 10000.0

const coordTolerance = 1e-6

// Deduplicate merges points whose great-circle distance is within
// thresholdMeters. The first pair found is merged and the scan restarts, so
// the earlier (better ranked) point absorbs the later one. The result is
// re-ranked deterministically. The input slice is not modified.
func Deduplicate(points []domain.HypothesisPoint, thresholdMeters float64, logger *slog.Logger) ([]domain.HypothesisPoint, error) {
	if math.IsNaN(thresholdMeters) || thresholdMeters < 0 || thresholdMeters > MaxDedupThresholdMeters {
		return nil, domain.Errorf(domain.CodeInvalidInput, "Deduplication threshold must be between 0 and 10000 m.",
			"dedup threshold %.1f m outside [0, %.0f]", thresholdMeters, MaxDedupThresholdMeters)
	}

	out := make([]domain.HypothesisPoint, len(points))
	copy(out, points)

	maxPasses := len(out)
	passes := 0
	for ; passes < maxPasses; passes++ {
		i, j, found := firstMergeablePair(out, thresholdMeters)
		if !found {
			break
		}
		merged, err := mergePoints(out[i], out[j])
		if err != nil {
			return nil, err
		}
		out[i] = merged
		out = append(out[:j], out[j+1:]...)
	}
	if passes == maxPasses && maxPasses > 0 {
		if _, _, found := firstMergeablePair(out, thresholdMeters); found {
			orDefault(logger).Warn("deduplication pass limit reached", "passes", passes, "remaining", len(out))
		}
	}

	Rank(out)
	return out, nil
}

func firstMergeablePair(points []domain.HypothesisPoint, thresholdMeters float64) (int, int, bool) {
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if geometry.Distance(points[i].Coordinate, points[j].Coordinate) <= thresholdMeters {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// mergePoints folds b into a. a keeps its type, phase, score and metrics.
func mergePoints(a, b domain.HypothesisPoint) (domain.HypothesisPoint, error) {
	c := geometry.MeanCoordinate([]domain.Coordinate{a.Coordinate, b.Coordinate})
	if !geometry.ValidateCoordinate(c) {
		return domain.HypothesisPoint{}, domain.Errorf(domain.CodeDeduplicationFailed, "",
			"merging %s and %s produced invalid coordinate (%f, %f)", a.ID, b.ID, c.Latitude, c.Longitude)
	}

	merged := a
	merged.ID = fmt.Sprintf("merged_%s_%s", a.ID, b.ID)
	merged.Coordinate = c
	merged.Metadata = mergeMetadata(a, b)
	return merged, nil
}

func mergeMetadata(a, b domain.HypothesisPoint) *domain.HypothesisMetadata {
	meta := &domain.HypothesisMetadata{}
	var am, bm domain.HypothesisMetadata
	if a.Metadata != nil {
		am = *a.Metadata
	}
	if b.Metadata != nil {
		bm = *b.Metadata
	}

	seen := make(map[string]bool)
	for _, id := range append(append([]string(nil), am.ParticipantIDs...), bm.ParticipantIDs...) {
		if !seen[id] {
			seen[id] = true
			meta.ParticipantIDs = append(meta.ParticipantIDs, id)
		}
	}
	meta.PairIDs = append(append([]string(nil), am.PairIDs...), bm.PairIDs...)
	meta.MergedFrom = append(auditTrail(a.ID, am), auditTrail(b.ID, bm)...)
	return meta
}

func auditTrail(id string, m domain.HypothesisMetadata) []string {
	if len(m.MergedFrom) > 0 {
		return append([]string(nil), m.MergedFrom...)
	}
	return []string{id}
}

// Rank sorts points in place: score ascending with unscored points last, then
// type, latitude, longitude and id.
func Rank(points []domain.HypothesisPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return less(points[i], points[j])
	})
}

func less(a, b domain.HypothesisPoint) bool {
	switch {
	case a.Score != nil && b.Score == nil:
		return true
	case a.Score == nil && b.Score != nil:
		return false
	case a.Score != nil && b.Score != nil && *a.Score != *b.Score:
		return *a.Score < *b.Score
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if d := a.Coordinate.Latitude - b.Coordinate.Latitude; math.Abs(d) > coordTolerance {
		return d < 0
	}
	if d := a.Coordinate.Longitude - b.Coordinate.Longitude; math.Abs(d) > coordTolerance {
		return d < 0
	}
	return a.ID < b.ID
}
