package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/meetpoint/internal/adapters/http"
	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
)

// ---- Mocks ----

// distanceOracle answers with straight-line distance at 500 m per minute.
type distanceOracle struct {
	err error
}

func (o *distanceOracle) EvaluateMatrix(ctx context.Context, origins, dests []domain.Coordinate, mode domain.TravelMode) ([][]float64, error) {
	if o.err != nil {
		return nil, o.err
	}
	rows := make([][]float64, len(origins))
	for i, a := range origins {
		rows[i] = make([]float64, len(dests))
		for j, b := range dests {
			rows[i][j] = math.Round(geometry.Distance(a, b) / 500)
		}
	}
	return rows, nil
}

type mockQueue struct {
	mu   sync.Mutex
	reqs []*domain.MeetingPointRequest
	err  error
}

func (q *mockQueue) PublishRequest(ctx context.Context, req *domain.MeetingPointRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return q.err
}

type mockPinger struct{ err error }

func (p mockPinger) Ping(ctx context.Context) error { return p.err }

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	cfg := usecases.DefaultSearchConfig()
	cfg.RetryDelay = 0
	d := &handler.Dependencies{
		MeetingPoints: usecases.NewMeetingPointService(&distanceOracle{}, nil, cfg),
		RateLimit:     1000,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func withOracle(o *distanceOracle) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		cfg := usecases.DefaultSearchConfig()
		cfg.RetryDelay = 0
		d.MeetingPoints = usecases.NewMeetingPointService(o, nil, cfg)
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

const groupBody = `{
	"locations": [
		{"id": "ane",   "coordinate": {"latitude": 43.2614, "longitude": -2.9270}},
		{"id": "jon",   "coordinate": {"latitude": 43.2709, "longitude": -2.9482}},
		{"id": "leire", "coordinate": {"latitude": 43.3569, "longitude": -3.0117}}
	]
}`

// ---- Meeting point ----

func TestFindMeetingPoint_Success(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := postJSON(t, app, "/v1/meeting-point", groupBody)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var res domain.MeetingPointResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" {
		t.Error("expected run id")
	}
	if res.OptimalPoint.Phase != domain.PhaseFinalOutput {
		t.Errorf("expected FINAL_OUTPUT phase, got %s", res.OptimalPoint.Phase)
	}
	if len(res.TravelTimes) != 3 {
		t.Errorf("expected 3 travel times, got %d", len(res.TravelTimes))
	}
	if res.Selection.Goal != domain.GoalMinimax {
		t.Errorf("expected MINIMAX default, got %s", res.Selection.Goal)
	}
	if res.APICallCount < 2 {
		t.Errorf("expected combined call plus refinement calls, got %d", res.APICallCount)
	}
}

func TestFindMeetingPoint_NoStore(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/meeting-point", strings.NewReader(groupBody))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
}

func TestFindMeetingPoint_InvalidBody(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := postJSON(t, app, "/v1/meeting-point", `{"locations": [`)
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	var apiErr handler.APIError
	json.Unmarshal(body, &apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %s", apiErr.Code)
	}
}

func TestFindMeetingPoint_ValidationError(t *testing.T) {
	app := setupApp(makeDeps())

	tests := map[string]string{
		"no locations":  `{"locations": []}`,
		"bad latitude":  `{"locations": [{"coordinate": {"latitude": 91, "longitude": 0}}]}`,
		"unknown mode":  `{"locations": [{"coordinate": {"latitude": 1, "longitude": 1}}], "travel_mode": "JETPACK"}`,
		"bad grid size": `{"locations": [{"coordinate": {"latitude": 1, "longitude": 1}}], "options": {"grid_size": 0}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			status, resp := postJSON(t, app, "/v1/meeting-point", body)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, resp)
			}
			var apiErr handler.APIError
			json.Unmarshal(resp, &apiErr)
			if apiErr.Code != "invalid_input" {
				t.Errorf("expected invalid_input, got %s", apiErr.Code)
			}
			if apiErr.Message == "" {
				t.Error("expected user-facing message")
			}
		})
	}
}

func TestFindMeetingPoint_OracleErrors(t *testing.T) {
	tests := []struct {
		code   domain.ErrorCode
		status int
	}{
		{domain.CodeOracleTimeout, 504},
		{domain.CodeOracleRateLimited, 429},
		{domain.CodeOracleAuth, 502},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			app := setupApp(makeDeps(withOracle(&distanceOracle{err: domain.Errorf(tt.code, "", "upstream")})))
			status, body := postJSON(t, app, "/v1/meeting-point", groupBody)
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
			var apiErr handler.APIError
			json.Unmarshal(body, &apiErr)
			if apiErr.Code != strings.ToLower(string(tt.code)) {
				t.Errorf("expected %s, got %s", strings.ToLower(string(tt.code)), apiErr.Code)
			}
			if strings.Contains(apiErr.Message, "upstream") {
				t.Error("internal detail leaked into the response")
			}
		})
	}
}

// ---- Async submission ----

func TestSubmitMeetingPoint_Queued(t *testing.T) {
	q := &mockQueue{}
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Queue = q }))

	status, body := postJSON(t, app, "/v1/meeting-point/async", groupBody)
	if status != 202 {
		t.Fatalf("expected 202, got %d: %s", status, body)
	}

	var res handler.SubmitResponse
	json.Unmarshal(body, &res)
	if res.RunID == "" || res.Status != "queued" {
		t.Errorf("unexpected response %+v", res)
	}
	if res.ResultSubject != "meetpoint.results."+res.RunID {
		t.Errorf("unexpected subject %s", res.ResultSubject)
	}
	if len(q.reqs) != 1 || q.reqs[0].RunID != res.RunID {
		t.Fatalf("expected one queued request with run id %s", res.RunID)
	}
	if len(q.reqs[0].Locations) != 3 {
		t.Errorf("expected 3 locations, got %d", len(q.reqs[0].Locations))
	}
}

func TestSubmitMeetingPoint_RejectsInvalidRequests(t *testing.T) {
	var many strings.Builder
	many.WriteString(`{"locations": [`)
	for i := 0; i < usecases.MaxLocations+1; i++ {
		if i > 0 {
			many.WriteString(",")
		}
		fmt.Fprintf(&many, `{"coordinate": {"latitude": %.4f, "longitude": -2.93}}`, 43.20+float64(i)*0.002)
	}
	many.WriteString(`]}`)

	tests := map[string]string{
		"bad mode": `{"travel_mode": "HOVERCRAFT", "locations": [
			{"coordinate": {"latitude": 43.2614, "longitude": -2.9270}},
			{"coordinate": {"latitude": 43.2709, "longitude": -2.9482}}
		]}`,
		"too many locations": many.String(),
		"bad override": `{"options": {"grid_size": 0}, "locations": [
			{"coordinate": {"latitude": 43.2614, "longitude": -2.9270}}
		]}`,
		"no locations": `{"locations": []}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			q := &mockQueue{}
			app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Queue = q }))

			status, resp := postJSON(t, app, "/v1/meeting-point/async", body)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, resp)
			}
			var apiErr handler.APIError
			if err := json.Unmarshal(resp, &apiErr); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if apiErr.Code != "invalid_input" {
				t.Errorf("expected invalid_input, got %s", apiErr.Code)
			}
			if len(q.reqs) != 0 {
				t.Errorf("invalid request must not be queued, got %d", len(q.reqs))
			}
		})
	}
}

func TestSubmitMeetingPoint_NoQueue(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := postJSON(t, app, "/v1/meeting-point/async", groupBody)
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
}

func TestSubmitMeetingPoint_PublishFails(t *testing.T) {
	q := &mockQueue{err: errors.New("nats: no responders")}
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Queue = q }))

	status, _ := postJSON(t, app, "/v1/meeting-point/async", groupBody)
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
}

// ---- Candidate evaluation ----

func TestEvaluateCandidates_Success(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{
		"locations": [
			{"id": "a", "coordinate": {"latitude": 43.26, "longitude": -2.93}},
			{"id": "b", "coordinate": {"latitude": 43.30, "longitude": -2.98}}
		],
		"candidates": [
			{"id": "far",  "coordinate": {"latitude": 43.40, "longitude": -3.10}},
			{"id": "near", "coordinate": {"latitude": 43.28, "longitude": -2.955}}
		]
	}`
	status, resp := postJSON(t, app, "/v1/evaluate", body)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, resp)
	}

	var res domain.EvaluationResult
	json.Unmarshal(resp, &res)
	if len(res.RankedPoints) != 2 {
		t.Fatalf("expected 2 ranked points, got %d", len(res.RankedPoints))
	}
	if res.RankedPoints[0].ID != "near" {
		t.Errorf("expected near first, got %s", res.RankedPoints[0].ID)
	}
	if res.APICallCount != 1 {
		t.Errorf("expected 1 oracle call, got %d", res.APICallCount)
	}
}

func TestEvaluateCandidates_NoCandidates(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := postJSON(t, app, "/v1/evaluate", `{"locations": [{"coordinate": {"latitude": 1, "longitude": 1}}], "candidates": []}`)
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestSearchDefaults(t *testing.T) {
	app := setupApp(makeDeps())

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/search/defaults", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var defaults map[string]any
	json.NewDecoder(resp.Body).Decode(&defaults)
	if defaults["grid_size"] != float64(5) {
		t.Errorf("expected grid_size 5, got %v", defaults["grid_size"])
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("expected ETag on GET response")
	}
}

// ---- GraphQL ----

func TestGraphQL_MeetingPoint(t *testing.T) {
	app := setupApp(makeDeps())

	query := `{"query": "{ meetingPoint(locations: [{id: \"a\", latitude: 43.26, longitude: -2.93}, {id: \"b\", latitude: 43.30, longitude: -2.98}], enableRefinement: false) { run_id optimal_point { id phase coordinate { latitude longitude } } selection { tie_break } api_call_count } }"}`
	status, body := postJSON(t, app, "/graphql", query)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result struct {
		Data struct {
			MeetingPoint struct {
				RunID        string `json:"run_id"`
				OptimalPoint struct {
					ID    string `json:"id"`
					Phase string `json:"phase"`
				} `json:"optimal_point"`
				APICallCount int `json:"api_call_count"`
			} `json:"meetingPoint"`
		} `json:"data"`
		Errors []map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Data.MeetingPoint.OptimalPoint.Phase != "FINAL_OUTPUT" {
		t.Errorf("expected FINAL_OUTPUT, got %q", result.Data.MeetingPoint.OptimalPoint.Phase)
	}
	if result.Data.MeetingPoint.APICallCount != 1 {
		t.Errorf("expected a single call without refinement, got %d", result.Data.MeetingPoint.APICallCount)
	}
}

func TestGraphQL_ErrorCode(t *testing.T) {
	app := setupApp(makeDeps())

	query := `{"query": "{ meetingPoint(locations: [{latitude: 95, longitude: 0}]) { run_id } }"}`
	_, body := postJSON(t, app, "/graphql", query)

	var result struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	json.Unmarshal(body, &result)
	if len(result.Errors) == 0 {
		t.Fatal("expected a GraphQL error")
	}
	if !strings.HasPrefix(result.Errors[0].Message, "INVALID_INPUT") {
		t.Errorf("expected INVALID_INPUT, got %s", result.Errors[0].Message)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Version = "1.2.3" }))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var h map[string]string
	json.NewDecoder(resp.Body).Decode(&h)
	if h["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", h["version"])
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		cache  handler.Pinger
		status int
	}{
		{"no cache", nil, 200},
		{"cache ok", mockPinger{}, 200},
		{"cache down", mockPinger{err: errors.New("connection refused")}, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Cache = tt.cache }))
			resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/ws", nil), -1)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

// ---- Error mapping ----

func TestStatusForCode(t *testing.T) {
	tests := map[domain.ErrorCode]int{
		domain.CodeInvalidInput:      400,
		domain.CodeNoReachablePoints: 422,
		domain.CodeNoOptimalPoint:    422,
		domain.CodeOracleRateLimited: 429,
		domain.CodeOracleServer:      502,
		domain.CodeAllGroupsFailed:   502,
		domain.CodeOracleTimeout:     504,
		domain.CodeOriginMismatch:    500,
		domain.CodeInternal:          500,
	}
	for code, want := range tests {
		if got := handler.StatusForCode(code); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}
