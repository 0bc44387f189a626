package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{CodeOracleTimeout, true},
		{CodeOracleNetwork, true},
		{CodeOracleServer, true},
		{CodeOracleRateLimited, false},
		{CodeOracleAuth, false},
		{CodeOracleRequest, false},
		{CodeInvalidInput, false},
		{CodeNoReachablePoints, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("evaluate: %w", Errorf(tt.code, "", "boom"))
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := CodeOf(err); got != tt.code {
				t.Errorf("CodeOf = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestUntypedErrors(t *testing.T) {
	err := errors.New("plain")
	if CodeOf(err) != CodeInternal {
		t.Errorf("expected INTERNAL, got %s", CodeOf(err))
	}
	if IsRetryable(err) {
		t.Error("untyped errors must not be retried")
	}
	if UserMessage(err) != defaultUserMessages[CodeInternal] {
		t.Errorf("unexpected user message %q", UserMessage(err))
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(Errorf(CodeInvalidInput, "Grid size must be between 1 and 20.", "grid 0")); got != "Grid size must be between 1 and 20." {
		t.Errorf("explicit message lost: %q", got)
	}
	if got := UserMessage(Errorf(CodeOracleRateLimited, "", "429")); got != defaultUserMessages[CodeOracleRateLimited] {
		t.Errorf("expected default rate-limit message, got %q", got)
	}
	if defaultUserMessages[CodeOracleRateLimited] == defaultUserMessages[CodeOracleRequest] {
		t.Error("rate limiting must be reported distinctly")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeOracleNetwork, cause, "table call")
	if !errors.Is(err, cause) {
		t.Error("Wrap should keep the cause in the chain")
	}
	if err.Error() != "ORACLE_NETWORK: table call: connection refused" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTravelTimeMatrix_Validate(t *testing.T) {
	origins := []Location{{ID: "a"}, {ID: "b"}}
	dests := []HypothesisPoint{{ID: "p"}, {ID: "q"}}

	ok := TravelTimeMatrix{Origins: origins, Destinations: dests, TravelTimes: [][]float64{{1, 2}, {3, Unreachable}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []TravelTimeMatrix{
		{Origins: origins, Destinations: dests, TravelTimes: [][]float64{{1, 2}}},
		{Origins: origins, Destinations: dests, TravelTimes: [][]float64{{1, 2}, {3}}},
	}
	for i, m := range bad {
		if err := m.Validate(); CodeOf(err) != CodeMatrixInvalid {
			t.Errorf("case %d: expected MATRIX_INVALID, got %v", i, err)
		}
	}
}

func TestIsReachable(t *testing.T) {
	for _, v := range []float64{math.Inf(1), math.NaN(), -1} {
		if IsReachable(v) {
			t.Errorf("%v should be unreachable", v)
		}
	}
	if !IsReachable(0) || !IsReachable(42) {
		t.Error("finite non-negative times are reachable")
	}
}

func TestPhaseRank(t *testing.T) {
	phases := []Phase{PhaseAnchor, PhaseCoarseGrid, PhaseLocalRefinement, PhaseFinalOutput}
	for i, p := range phases {
		if p.Rank() != i {
			t.Errorf("%s rank = %d, want %d", p, p.Rank(), i)
		}
	}
}

func TestNewMeetingPointFailure(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	f := NewMeetingPointFailure("run-1", CodeNoReachablePoints, "", at)
	if f.Status != StatusFailed || f.Code != "no_reachable_points" {
		t.Errorf("unexpected failure event %+v", f)
	}
	if f.Message != defaultUserMessages[CodeNoReachablePoints] {
		t.Errorf("expected default user message, got %q", f.Message)
	}
	if f.CreatedAt.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", f.CreatedAt)
	}

	f = NewMeetingPointFailure("run-2", ErrorCode("SOMETHING_NEW"), "", at)
	if f.Message != defaultUserMessages[CodeInternal] {
		t.Errorf("unknown code should fall back to the internal message, got %q", f.Message)
	}
}
