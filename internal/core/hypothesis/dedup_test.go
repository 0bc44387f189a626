package hypothesis

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

func point(id string, lat, lon float64, score *float64) domain.HypothesisPoint {
	return domain.HypothesisPoint{
		ID:         id,
		Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
		Type:       domain.TypeCoarseGridCell,
		Phase:      domain.PhaseCoarseGrid,
		Score:      score,
	}
}

func TestDeduplicate_MergesClosePair(t *testing.T) {
	pts := []domain.HypothesisPoint{
		point("p0", 43.2600, -2.9300, domain.Float64Ptr(10)),
		point("p1", 43.2601, -2.9301, domain.Float64Ptr(11)),
		point("p2", 43.3000, -2.9800, domain.Float64Ptr(12)),
	}
	got, err := Deduplicate(pts, 100, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	m := got[0]
	assert.True(t, strings.HasPrefix(m.ID, "merged_"))
	assert.Equal(t, "merged_p0_p1", m.ID)
	assert.InDelta(t, 43.26005, m.Coordinate.Latitude, 1e-9)
	assert.InDelta(t, -2.93005, m.Coordinate.Longitude, 1e-9)
	assert.Equal(t, 10.0, *m.Score)
	assert.Equal(t, []string{"p0", "p1"}, m.Metadata.MergedFrom)

	// input untouched
	assert.Equal(t, "p0", pts[0].ID)
	assert.Len(t, pts, 3)
}

func TestDeduplicate_Idempotent(t *testing.T) {
	pts := []domain.HypothesisPoint{
		point("a", 43.2600, -2.9300, domain.Float64Ptr(5)),
		point("b", 43.2603, -2.9300, domain.Float64Ptr(7)),
		point("c", 43.2606, -2.9300, nil),
		point("d", 43.2700, -2.9400, domain.Float64Ptr(5)),
		point("e", 43.2800, -2.9500, nil),
	}
	once, err := Deduplicate(pts, 50, nil)
	require.NoError(t, err)
	twice, err := Deduplicate(once, 50, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second pass changed output (-once +twice):\n%s", diff)
	}
}

func TestDeduplicate_MetadataCombination(t *testing.T) {
	a := point("anchor_participant_0", 43.26, -2.93, nil)
	a.Type = domain.TypeParticipantLocation
	a.Metadata = &domain.HypothesisMetadata{ParticipantIDs: []string{"ane"}}
	b := point("anchor_participant_1", 43.26, -2.93, nil)
	b.Metadata = &domain.HypothesisMetadata{ParticipantIDs: []string{"jon"}, PairIDs: []string{"x", "y"}}

	got, err := Deduplicate([]domain.HypothesisPoint{a, b}, 0, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TypeParticipantLocation, got[0].Type)
	assert.Equal(t, []string{"ane", "jon"}, got[0].Metadata.ParticipantIDs)
	assert.Equal(t, []string{"x", "y"}, got[0].Metadata.PairIDs)
}

func TestDeduplicate_RankOrder(t *testing.T) {
	pts := []domain.HypothesisPoint{
		point("unscored", 1, 1, nil),
		point("z", 2, 2, domain.Float64Ptr(3)),
		point("late", 3, 3, domain.Float64Ptr(9)),
		point("a", 2, 2, domain.Float64Ptr(3)),
		point("south", 0, 5, domain.Float64Ptr(3)),
	}
	pts[4].Type = domain.TypeGeographicCentroid

	got, err := Deduplicate(pts, 0, nil)
	require.NoError(t, err)

	// "a" and "z" share a coordinate and merge at threshold 0. Equal scores
	// fall back to type order, so the grid cell precedes the centroid.
	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"merged_z_a", "south", "late", "unscored"}, ids)
}

func TestDeduplicate_RejectsThreshold(t *testing.T) {
	for _, th := range []float64{-1, 10001} {
		_, err := Deduplicate(nil, th, nil)
		require.Error(t, err)
		assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
	}
}
