package hypothesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
)

func TestGenerateCoarseGrid_SizeAndIDs(t *testing.T) {
	locs := bilbaoGroup(4)
	for _, k := range []int{1, 3, 5, 20} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			cfg := GridConfig{GridSize: k, PaddingKm: 2}
			pts, err := GenerateCoarseGrid(locs, cfg)
			require.NoError(t, err)
			require.Len(t, pts, k*k)

			box, err := geometry.BoundingBox(locs, cfg.PaddingKm)
			require.NoError(t, err)

			seen := make(map[domain.Coordinate]bool)
			for i, p := range pts {
				assert.Equal(t, fmt.Sprintf("coarse_grid_%d", i), p.ID)
				assert.Equal(t, domain.TypeCoarseGridCell, p.Type)
				assert.Equal(t, domain.PhaseCoarseGrid, p.Phase)
				assert.True(t, box.Contains(p.Coordinate))
				assert.False(t, seen[p.Coordinate])
				seen[p.Coordinate] = true
			}
		})
	}
}

func TestGenerateCoarseGrid_RejectsConfig(t *testing.T) {
	locs := bilbaoGroup(2)
	for _, cfg := range []GridConfig{
		{GridSize: 0, PaddingKm: 1},
		{GridSize: 21, PaddingKm: 1},
		{GridSize: 5, PaddingKm: -1},
		{GridSize: 5, PaddingKm: 51},
	} {
		_, err := GenerateCoarseGrid(locs, cfg)
		require.Error(t, err, "%+v", cfg)
		assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
	}
}

func TestGenerateCoarseGrid_DegenerateBox(t *testing.T) {
	// One location and no padding leaves a zero-span box.
	_, err := GenerateCoarseGrid(bilbaoGroup(1), GridConfig{GridSize: 3, PaddingKm: 0})
	require.Error(t, err)
	assert.Equal(t, domain.CodeGridGenerationFailed, domain.CodeOf(err))
}
