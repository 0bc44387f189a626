package hypothesis

import (
	"fmt"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
)

// GridConfig controls the Phase 1 coarse grid.
type GridConfig struct {
	GridSize  int     `json:"grid_size"`
	PaddingKm float64 `json:"padding_km"`
}

// Validate checks GridSize in [1,20] and PaddingKm in [0,50].
func (c GridConfig) Validate() error {
	if c.GridSize < 1 || c.GridSize > 20 {
		return domain.Errorf(domain.CodeInvalidInput, "Grid size must be between 1 and 20.",
			"grid size %d outside [1, 20]", c.GridSize)
	}
	if c.PaddingKm < 0 || c.PaddingKm > 50 {
		return domain.Errorf(domain.CodeInvalidInput, "Grid padding must be between 0 and 50 km.",
			"grid padding %.3f km outside [0, 50]", c.PaddingKm)
	}
	return nil
}

// GenerateCoarseGrid covers the padded bounding box of the locations with
// GridSize² cell-centre points, ids coarse_grid_{index} in row-major order.
func GenerateCoarseGrid(locations []domain.Location, cfg GridConfig) ([]domain.HypothesisPoint, error) {
	if len(locations) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "At least one location is required.",
			"grid generation needs at least one location")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	box, err := geometry.BoundingBox(locations, cfg.PaddingKm)
	if err != nil {
		return nil, err
	}
	if err := geometry.ValidateBox(box); err != nil {
		return nil, err
	}

	coords, err := geometry.GridPoints(box, cfg.GridSize)
	if err != nil {
		return nil, domain.Wrap(domain.CodeGridGenerationFailed, err, "coarse grid")
	}

	points := make([]domain.HypothesisPoint, len(coords))
	for i, c := range coords {
		points[i] = domain.HypothesisPoint{
			ID:         fmt.Sprintf("coarse_grid_%d", i),
			Coordinate: c,
			Type:       domain.TypeCoarseGridCell,
			Phase:      domain.PhaseCoarseGrid,
		}
	}
	return points, nil
}
