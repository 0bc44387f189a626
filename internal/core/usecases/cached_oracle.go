package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/ports"
	"github.com/samirrijal/meetpoint/internal/pkg/geospatial"
	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
)

const matrixKeyPrefix = "meetpoint:matrix:"

// CacheOptions controls the matrix cache.
type CacheOptions struct {
	TTLSeconds      int
	PrecisionMeters float64
}

// DefaultCacheOptions caches for a day on a 100 m grid.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{TTLSeconds: 86400, PrecisionMeters: 100}
}

// CachedOracle is a read-through cache in front of a TravelTimeOracle.
// Coordinates are snapped to a PrecisionMeters grid before keying, so nearby
// requests share entries. Cache failures never fail a request.
type CachedOracle struct {
	next  ports.TravelTimeOracle
	cache ports.CacheService
	opts  CacheOptions
}

// NewCachedOracle wraps next. A nil cache disables caching.
func NewCachedOracle(next ports.TravelTimeOracle, cache ports.CacheService, opts CacheOptions) *CachedOracle {
	if opts.PrecisionMeters <= 0 {
		opts.PrecisionMeters = DefaultCacheOptions().PrecisionMeters
	}
	if opts.TTLSeconds <= 0 {
		opts.TTLSeconds = DefaultCacheOptions().TTLSeconds
	}
	return &CachedOracle{next: next, cache: cache, opts: opts}
}

type cacheHitsKey struct{}

// withCacheHits returns a context under which matrix cache hits are counted
// into the returned counter.
func withCacheHits(ctx context.Context) (context.Context, *atomic.Int64) {
	n := new(atomic.Int64)
	return context.WithValue(ctx, cacheHitsKey{}, n), n
}

func countCacheHit(ctx context.Context) {
	if n, ok := ctx.Value(cacheHitsKey{}).(*atomic.Int64); ok {
		n.Add(1)
	}
}

// cachedMatrix stores unreachable cells as null.
type cachedMatrix struct {
	Rows [][]*float64 `json:"rows"`
}

// EvaluateMatrix implements ports.TravelTimeOracle.
func (c *CachedOracle) EvaluateMatrix(ctx context.Context, origins, dests []domain.Coordinate, mode domain.TravelMode) ([][]float64, error) {
	if c.cache == nil {
		return c.next.EvaluateMatrix(ctx, origins, dests, mode)
	}

	key := c.Key(origins, dests, mode)
	if data, err := c.cache.Get(ctx, key); err == nil && len(data) > 0 {
		if rows, ok := decodeMatrix(data, len(origins), len(dests)); ok {
			metrics.CacheHits.WithLabelValues("matrix").Inc()
			countCacheHit(ctx)
			return rows, nil
		}
		slog.Warn("discarding malformed cached matrix", "key", key)
	}
	metrics.CacheMisses.WithLabelValues("matrix").Inc()

	rows, err := c.next.EvaluateMatrix(ctx, origins, dests, mode)
	if err != nil {
		return nil, err
	}

	if data, err := encodeMatrix(rows); err == nil {
		if err := c.cache.Set(ctx, key, data, c.opts.TTLSeconds); err != nil {
			metrics.CacheErrors.WithLabelValues("set").Inc()
			slog.Warn("matrix cache write failed", "key", key, "error", err)
		}
	}
	return rows, nil
}

// Key derives the cache key for a request.
func (c *CachedOracle) Key(origins, dests []domain.Coordinate, mode domain.TravelMode) string {
	var b strings.Builder
	b.WriteString(string(mode))
	b.WriteByte('|')
	c.writeCoords(&b, origins)
	b.WriteByte('|')
	c.writeCoords(&b, dests)

	sum := sha256.Sum256([]byte(b.String()))
	return matrixKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedOracle) writeCoords(b *strings.Builder, coords []domain.Coordinate) {
	for _, p := range coords {
		fmt.Fprintf(b, "%d,%d;",
			geospatial.QuantizeDegrees(p.Latitude, c.opts.PrecisionMeters),
			geospatial.QuantizeDegrees(p.Longitude, c.opts.PrecisionMeters))
	}
}

func encodeMatrix(rows [][]float64) ([]byte, error) {
	m := cachedMatrix{Rows: make([][]*float64, len(rows))}
	for i, row := range rows {
		m.Rows[i] = make([]*float64, len(row))
		for j, v := range row {
			if domain.IsReachable(v) {
				m.Rows[i][j] = domain.Float64Ptr(v)
			}
		}
	}
	return json.Marshal(m)
}

func decodeMatrix(data []byte, nOrigins, nDests int) ([][]float64, bool) {
	var m cachedMatrix
	if err := json.Unmarshal(data, &m); err != nil || len(m.Rows) != nOrigins {
		return nil, false
	}
	rows := make([][]float64, nOrigins)
	for i, row := range m.Rows {
		if len(row) != nDests {
			return nil, false
		}
		rows[i] = make([]float64, nDests)
		for j, v := range row {
			if v == nil {
				rows[i][j] = math.Inf(1)
			} else {
				rows[i][j] = *v
			}
		}
	}
	return rows, true
}
