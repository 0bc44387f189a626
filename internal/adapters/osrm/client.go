// Package osrm implements the travel-time oracle on top of the OSRM table
// service.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
)

// Config holds the OSRM client settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string

	// MaxCoordinates caps origins plus destinations in one table request.
	// Wider matrices are split by destination.
	MaxCoordinates int
}

// DefaultConfig targets the public demo server.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://router.project-osrm.org",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		MaxCoordinates:    100,
		UserAgent:         "meetpoint/1.0",
	}
}

var profiles = map[domain.TravelMode]string{
	domain.ModeDrivingCar:     "driving",
	domain.ModeCyclingRegular: "cycling",
	domain.ModeFootWalking:    "foot",
}

// Client implements ports.TravelTimeOracle.
type Client struct {
	baseURL   string
	timeout   time.Duration
	maxCoords int
	userAgent string
	http      *fasthttp.Client
	limiter   *rate.Limiter
}

// New creates an OSRM client. A non-positive RequestsPerSecond disables
// client-side rate limiting.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxCoordinates <= 0 {
		cfg.MaxCoordinates = def.MaxCoordinates
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		maxCoords: cfg.MaxCoordinates,
		userAgent: cfg.UserAgent,
		http: &fasthttp.Client{
			Name:                cfg.UserAgent,
			MaxIdleConnDuration: 30 * time.Second,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
		},
		limiter: limiter,
	}
}

type tableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
}

// EvaluateMatrix requests travel durations from every origin to every
// destination and returns them in whole minutes. Unroutable pairs are +Inf.
// Destinations that do not fit in one table request alongside the origins are
// split across several requests and the columns stitched back in order.
func (c *Client) EvaluateMatrix(ctx context.Context, origins, dests []domain.Coordinate, mode domain.TravelMode) (rows [][]float64, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.CodeOf(err))
		}
		metrics.ObserveOracleCall(string(mode), outcome, time.Since(start))
	}()

	profile, ok := profiles[mode]
	if !ok {
		return nil, domain.Errorf(domain.CodeOracleRequest, "", "no OSRM profile for travel mode %q", mode)
	}
	chunk := c.maxCoords - len(origins)
	if chunk < 1 {
		return nil, domain.Errorf(domain.CodeOracleRequest, "",
			"%d origins leave no room for destinations under the OSRM table limit of %d", len(origins), c.maxCoords)
	}
	if len(dests) <= chunk {
		return c.table(ctx, profile, origins, dests)
	}

	rows = make([][]float64, len(origins))
	for i := range rows {
		rows[i] = make([]float64, 0, len(dests))
	}
	for lo := 0; lo < len(dests); lo += chunk {
		hi := min(lo+chunk, len(dests))
		part, err := c.table(ctx, profile, origins, dests[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("destinations %d-%d: %w", lo, hi-1, err)
		}
		for i := range rows {
			rows[i] = append(rows[i], part[i]...)
		}
	}
	return rows, nil
}

// table performs one rate-limited table request.
func (c *Client) table(ctx context.Context, profile string, origins, dests []domain.Coordinate) ([][]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.Wrap(domain.CodeOracleTimeout, err, "waiting for OSRM rate limiter")
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.tableURL(profile, origins, dests))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.SetUserAgent(c.userAgent)

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Wrap(domain.CodeOracleTimeout, err, "OSRM table request timed out")
		}
		return nil, domain.Wrap(domain.CodeOracleNetwork, err, "OSRM table request failed")
	}

	if err := classifyStatus(resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}

	var table tableResponse
	if err := json.Unmarshal(resp.Body(), &table); err != nil {
		return nil, domain.Wrap(domain.CodeMatrixInvalid, err, "decode OSRM table response")
	}
	if table.Code != "Ok" {
		return nil, domain.Errorf(domain.CodeOracleRequest, "", "OSRM returned %s: %s", table.Code, table.Message)
	}
	return toMinutes(table.Durations, len(origins), len(dests))
}

// tableURL builds {base}/table/v1/{profile}/{lon,lat;...} with origins first.
func (c *Client) tableURL(profile string, origins, dests []domain.Coordinate) string {
	coords := make([]string, 0, len(origins)+len(dests))
	for _, p := range origins {
		coords = append(coords, fmt.Sprintf("%.6f,%.6f", p.Longitude, p.Latitude))
	}
	for _, p := range dests {
		coords = append(coords, fmt.Sprintf("%.6f,%.6f", p.Longitude, p.Latitude))
	}

	sources := make([]string, len(origins))
	for i := range origins {
		sources[i] = fmt.Sprint(i)
	}
	destinations := make([]string, len(dests))
	for j := range dests {
		destinations[j] = fmt.Sprint(len(origins) + j)
	}

	return fmt.Sprintf("%s/table/v1/%s/%s?sources=%s&destinations=%s&annotations=duration",
		c.baseURL, profile, strings.Join(coords, ";"),
		strings.Join(sources, ";"), strings.Join(destinations, ";"))
}

func classifyStatus(status int, body []byte) error {
	if status == fasthttp.StatusOK {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case status == fasthttp.StatusTooManyRequests:
		return domain.Errorf(domain.CodeOracleRateLimited, "", "OSRM HTTP %d: %s", status, snippet)
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return domain.Errorf(domain.CodeOracleAuth, "", "OSRM HTTP %d: %s", status, snippet)
	case status >= 500:
		return domain.Errorf(domain.CodeOracleServer, "", "OSRM HTTP %d: %s", status, snippet)
	default:
		return domain.Errorf(domain.CodeOracleRequest, "", "OSRM HTTP %d: %s", status, snippet)
	}
}

func toMinutes(durations [][]*float64, nOrigins, nDests int) ([][]float64, error) {
	if len(durations) != nOrigins {
		return nil, domain.Errorf(domain.CodeMatrixInvalid, "",
			"OSRM returned %d rows for %d sources", len(durations), nOrigins)
	}
	rows := make([][]float64, nOrigins)
	for i, row := range durations {
		if len(row) != nDests {
			return nil, domain.Errorf(domain.CodeMatrixInvalid, "",
				"OSRM row %d has %d columns for %d destinations", i, len(row), nDests)
		}
		rows[i] = make([]float64, nDests)
		for j, secs := range row {
			if secs == nil {
				rows[i][j] = domain.Unreachable
				continue
			}
			rows[i][j] = math.Round(*secs / 60)
		}
	}
	return rows, nil
}
