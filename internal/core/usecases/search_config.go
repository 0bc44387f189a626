package usecases

import (
	"time"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/hypothesis"
)

const (
	// MaxLocations caps the participants of one request.
	MaxLocations = 50
	// MaxCandidates caps caller-supplied candidates in EvaluateCandidates.
	MaxCandidates = 500
)

// SearchConfig holds the tunables of the multi-phase search.
type SearchConfig struct {
	GridSize              int
	PaddingKm             float64
	TopM                  int
	RefinementDedupMeters float64
	RefinementRadiusKm    float64
	FineGridResolution    int
	DedupThresholdMeters  float64
	EnableLocalRefinement bool
	IncludeVariance       bool

	OracleTimeout  time.Duration
	RetryDelay     time.Duration
	MaxConcurrency int
}

// DefaultSearchConfig returns the settings used when nothing is configured.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		GridSize:              5,
		PaddingKm:             5,
		TopM:                  5,
		RefinementDedupMeters: 500,
		RefinementRadiusKm:    2,
		FineGridResolution:    5,
		DedupThresholdMeters:  100,
		EnableLocalRefinement: true,
		OracleTimeout:         30 * time.Second,
		RetryDelay:            500 * time.Millisecond,
		MaxConcurrency:        4,
	}
}

// Grid returns the coarse grid settings.
func (c SearchConfig) Grid() hypothesis.GridConfig {
	return hypothesis.GridConfig{GridSize: c.GridSize, PaddingKm: c.PaddingKm}
}

// Refinement returns the local refinement settings.
func (c SearchConfig) Refinement() hypothesis.RefinementConfig {
	return hypothesis.RefinementConfig{
		TopM:                 c.TopM,
		DedupThresholdMeters: c.RefinementDedupMeters,
		RefinementRadiusKm:   c.RefinementRadiusKm,
		FineGridResolution:   c.FineGridResolution,
	}
}

// Validate checks every range before any oracle call is made.
func (c SearchConfig) Validate() error {
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	if c.EnableLocalRefinement {
		if err := c.Refinement().Validate(); err != nil {
			return err
		}
	}
	if c.DedupThresholdMeters < 0 || c.DedupThresholdMeters > hypothesis.MaxDedupThresholdMeters {
		return domain.Errorf(domain.CodeInvalidInput, "Deduplication threshold must be between 0 and 10000 m.",
			"dedup threshold %.1f m outside [0, %.0f]", c.DedupThresholdMeters, hypothesis.MaxDedupThresholdMeters)
	}
	return nil
}

// WithOverrides returns a copy of c with the non-nil request overrides applied.
func (c SearchConfig) WithOverrides(o *domain.SearchOverrides) SearchConfig {
	if o == nil {
		return c
	}
	if o.GridSize != nil {
		c.GridSize = *o.GridSize
	}
	if o.PaddingKm != nil {
		c.PaddingKm = *o.PaddingKm
	}
	if o.TopM != nil {
		c.TopM = *o.TopM
	}
	if o.RefinementRadiusKm != nil {
		c.RefinementRadiusKm = *o.RefinementRadiusKm
	}
	if o.FineGridResolution != nil {
		c.FineGridResolution = *o.FineGridResolution
	}
	if o.DedupThresholdMeters != nil {
		c.DedupThresholdMeters = *o.DedupThresholdMeters
	}
	if o.EnableLocalRefinement != nil {
		c.EnableLocalRefinement = *o.EnableLocalRefinement
	}
	return c
}
