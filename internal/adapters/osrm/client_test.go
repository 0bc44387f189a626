package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/core/geometry"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
)

func newTestClient(url string) *Client {
	return New(Config{BaseURL: url, Timeout: time.Second, RequestsPerSecond: 0})
}

var (
	testOrigins = []domain.Coordinate{{Latitude: 43.2614, Longitude: -2.9270}, {Latitude: 43.2709, Longitude: -2.9482}}
	testDests   = []domain.Coordinate{{Latitude: 43.3000, Longitude: -2.9800}, {Latitude: 43.2500, Longitude: -2.9100}}
)

func TestEvaluateMatrix_Success(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","durations":[[90,600],[null,29]]}`))
	}))
	defer server.Close()

	rows, err := newTestClient(server.URL).EvaluateMatrix(context.Background(), testOrigins, testDests, domain.ModeDrivingCar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(gotPath, "/table/v1/driving/-2.927000,43.261400;") {
		t.Errorf("unexpected path %s", gotPath)
	}
	if !strings.Contains(gotQuery, "sources=0;1") || !strings.Contains(gotQuery, "destinations=2;3") {
		t.Errorf("unexpected query %s", gotQuery)
	}

	if rows[0][0] != 2 || rows[0][1] != 10 {
		t.Errorf("expected [2 10], got %v", rows[0])
	}
	if !math.IsInf(rows[1][0], 1) {
		t.Errorf("expected null to map to +Inf, got %f", rows[1][0])
	}
	if rows[1][1] != 0 {
		t.Errorf("expected 29 s to round to 0 min, got %f", rows[1][1])
	}
}

func TestEvaluateMatrix_Profiles(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"code":"Ok","durations":[[60]]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	for mode, profile := range profiles {
		if _, err := c.EvaluateMatrix(context.Background(), testOrigins[:1], testDests[:1], mode); err != nil {
			t.Fatalf("%s: unexpected error: %v", mode, err)
		}
		if !strings.HasPrefix(gotPath, "/table/v1/"+profile+"/") {
			t.Errorf("%s: expected profile %s in %s", mode, profile, gotPath)
		}
	}
}

func TestEvaluateMatrix_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      domain.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, domain.CodeOracleRateLimited, false},
		{http.StatusUnauthorized, domain.CodeOracleAuth, false},
		{http.StatusForbidden, domain.CodeOracleAuth, false},
		{http.StatusBadRequest, domain.CodeOracleRequest, false},
		{http.StatusBadGateway, domain.CodeOracleServer, true},
		{http.StatusServiceUnavailable, domain.CodeOracleServer, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":"Error"}`))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).EvaluateMatrix(context.Background(), testOrigins, testDests, domain.ModeDrivingCar)
			if domain.CodeOf(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if domain.IsRetryable(err) != tt.retryable {
				t.Errorf("expected retryable=%v", tt.retryable)
			}
		})
	}
}

func TestEvaluateMatrix_BadBodies(t *testing.T) {
	tests := map[string]struct {
		body string
		code domain.ErrorCode
	}{
		"malformed":  {`{"code":`, domain.CodeMatrixInvalid},
		"not ok":     {`{"code":"NoTable","message":"no route"}`, domain.CodeOracleRequest},
		"short rows": {`{"code":"Ok","durations":[[1,2]]}`, domain.CodeMatrixInvalid},
		"short cols": {`{"code":"Ok","durations":[[1],[2]]}`, domain.CodeMatrixInvalid},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).EvaluateMatrix(context.Background(), testOrigins, testDests, domain.ModeDrivingCar)
			if domain.CodeOf(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestEvaluateMatrix_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"code":"Ok","durations":[[1]]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).EvaluateMatrix(ctx, testOrigins[:1], testDests[:1], domain.ModeDrivingCar)
	if domain.CodeOf(err) != domain.CodeOracleTimeout {
		t.Fatalf("expected ORACLE_TIMEOUT, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("timeouts must be retryable")
	}
}

func TestEvaluateMatrix_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).EvaluateMatrix(context.Background(), testOrigins, testDests, domain.ModeDrivingCar)
	if domain.CodeOf(err) != domain.CodeOracleNetwork {
		t.Fatalf("expected ORACLE_NETWORK, got %v", err)
	}
}

func TestEvaluateMatrix_OriginsFillTable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", MaxCoordinates: 2})
	_, err := c.EvaluateMatrix(context.Background(), testOrigins, testDests, domain.ModeDrivingCar)
	if domain.CodeOf(err) != domain.CodeOracleRequest {
		t.Fatalf("expected ORACLE_REQUEST, got %v", err)
	}
}

// fakeTable answers table requests with straight-line distance at 10 m/s and
// records the size of every request.
type fakeTable struct {
	mu     sync.Mutex
	sizes  []int
	failOn int
}

func (f *fakeTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, rest, _ := strings.Cut(r.URL.Path, "/table/v1/")
	_, list, _ := strings.Cut(rest, "/")
	var coords []domain.Coordinate
	for _, pair := range strings.Split(list, ";") {
		lon, lat, _ := strings.Cut(pair, ",")
		x, _ := strconv.ParseFloat(lon, 64)
		y, _ := strconv.ParseFloat(lat, 64)
		coords = append(coords, domain.Coordinate{Latitude: y, Longitude: x})
	}

	f.mu.Lock()
	f.sizes = append(f.sizes, len(coords))
	n := len(f.sizes)
	f.mu.Unlock()
	if n == f.failOn {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	var sources, destinations []int
	for _, kv := range strings.Split(r.URL.RawQuery, "&") {
		key, val, _ := strings.Cut(kv, "=")
		var into *[]int
		switch key {
		case "sources":
			into = &sources
		case "destinations":
			into = &destinations
		default:
			continue
		}
		for _, idx := range strings.Split(val, ";") {
			i, _ := strconv.Atoi(idx)
			*into = append(*into, i)
		}
	}

	durations := make([][]float64, len(sources))
	for i, si := range sources {
		durations[i] = make([]float64, len(destinations))
		for j, dj := range destinations {
			durations[i][j] = math.Round(geometry.Distance(coords[si], coords[dj]) / 10)
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"code": "Ok", "durations": durations})
}

func (f *fakeTable) requests() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.sizes...)
}

func gridDests(n int) []domain.Coordinate {
	out := make([]domain.Coordinate, n)
	for i := range out {
		out[i] = domain.Coordinate{Latitude: 43.20 + float64(i)*0.002, Longitude: -2.95 + float64(i%7)*0.003}
	}
	return out
}

func TestEvaluateMatrix_SplitsWideTables(t *testing.T) {
	table := &fakeTable{}
	server := httptest.NewServer(table)
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Timeout: time.Second, MaxCoordinates: 5})
	dests := gridDests(7)

	rows, err := c.EvaluateMatrix(context.Background(), testOrigins, dests, domain.ModeDrivingCar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.requests(); fmt.Sprint(got) != "[5 5 3]" {
		t.Errorf("expected requests of 5, 5 and 3 coordinates, got %v", got)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != len(dests) {
			t.Fatalf("row %d has %d columns, want %d", i, len(row), len(dests))
		}
		for j, got := range row {
			want := math.Round(math.Round(geometry.Distance(testOrigins[i], dests[j])/10) / 60)
			if got != want {
				t.Errorf("cell [%d][%d] = %.0f, want %.0f", i, j, got, want)
			}
		}
	}
}

func TestEvaluateMatrix_SplitFailureFailsCall(t *testing.T) {
	server := httptest.NewServer(&fakeTable{failOn: 2})
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Timeout: time.Second, MaxCoordinates: 5})
	_, err := c.EvaluateMatrix(context.Background(), testOrigins, gridDests(7), domain.ModeDrivingCar)
	if domain.CodeOf(err) != domain.CodeOracleServer {
		t.Fatalf("expected ORACLE_SERVER, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("a 5xx on one slice must stay retryable")
	}
}

func TestLargeGroupSearchWithinTableLimit(t *testing.T) {
	table := &fakeTable{}
	server := httptest.NewServer(table)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RequestsPerSecond = 0
	client := New(cfg)

	locs := make([]domain.Location, 13)
	for i := range locs {
		locs[i] = domain.Location{
			ID:         fmt.Sprintf("p%d", i),
			Coordinate: domain.Coordinate{Latitude: 43.20 + float64(i)*0.011, Longitude: -3.00 + float64((i*7)%13)*0.017},
		}
	}

	svc := usecases.NewMeetingPointService(client, nil, usecases.DefaultSearchConfig())
	res, err := svc.FindMeetingPoint(context.Background(), domain.MeetingPointRequest{Locations: locs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Evaluated.CoarseGrid != res.Generated.CoarseGrid || res.Generated.CoarseGrid == 0 {
		t.Errorf("coarse grid dropped: generated %d, evaluated %d", res.Generated.CoarseGrid, res.Evaluated.CoarseGrid)
	}
	if res.Evaluated.LocalRefinement == 0 {
		t.Error("expected refinement points to be evaluated")
	}

	sizes := table.requests()
	for i, n := range sizes {
		if n > cfg.MaxCoordinates {
			t.Errorf("request %d carried %d coordinates, limit %d", i, n, cfg.MaxCoordinates)
		}
	}
	// anchors and grid exceed one table, so the combined call is split
	if int64(len(sizes)) <= res.APICallCount {
		t.Errorf("expected more HTTP requests than oracle calls, got %d requests for %d calls", len(sizes), res.APICallCount)
	}
}
