// Package bootstrap builds the travel-time stack shared by the API, the
// worker and the CLI from loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/meetpoint/internal/adapters/osrm"
	"github.com/samirrijal/meetpoint/internal/adapters/redis"
	"github.com/samirrijal/meetpoint/internal/adapters/valkey"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
	"github.com/samirrijal/meetpoint/internal/pkg/config"
)

// Cache is a matrix cache backend that can be health-checked and closed.
type Cache interface {
	ports.CacheService
	Ping(ctx context.Context) error
	Close()
}

// NewCache connects the configured backend. Backend "none" returns a nil
// Cache and no error.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "valkey":
		c, err := valkey.New(cfg.Addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		c, err := redis.New(cfg.Addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// SearchConfig maps configuration onto the search tunables.
func SearchConfig(cfg *config.Config) usecases.SearchConfig {
	s := usecases.DefaultSearchConfig()
	s.GridSize = cfg.Search.GridSize
	s.PaddingKm = cfg.Search.PaddingKm
	s.TopM = cfg.Search.TopM
	s.RefinementDedupMeters = cfg.Search.RefinementDedupMeters
	s.RefinementRadiusKm = cfg.Search.RefinementRadiusKm
	s.FineGridResolution = cfg.Search.FineGridResolution
	s.DedupThresholdMeters = cfg.Search.DedupThresholdMeters
	s.EnableLocalRefinement = cfg.Search.EnableLocalRefinement
	s.IncludeVariance = cfg.Search.IncludeVariance
	s.OracleTimeout = cfg.Oracle.Timeout
	s.RetryDelay = cfg.Oracle.RetryDelay
	s.MaxConcurrency = cfg.Oracle.MaxConcurrency
	return s
}

// Oracle builds the OSRM client, wrapped in the matrix cache when cache is
// not nil.
func Oracle(cfg *config.Config, cache ports.CacheService) ports.TravelTimeOracle {
	client := osrm.New(osrm.Config{
		BaseURL:           cfg.Oracle.BaseURL,
		Timeout:           cfg.Oracle.Timeout,
		RequestsPerSecond: cfg.Oracle.RequestsPerSecond,
		Burst:             cfg.Oracle.Burst,
		MaxCoordinates:    cfg.Oracle.MaxCoordinates,
	})
	if cache == nil {
		slog.Info("matrix cache disabled")
		return client
	}
	return usecases.NewCachedOracle(client, cache, usecases.CacheOptions{
		TTLSeconds:      cfg.Cache.TTLSeconds,
		PrecisionMeters: cfg.Cache.PrecisionMeters,
	})
}
