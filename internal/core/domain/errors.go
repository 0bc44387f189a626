package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures. Callers branch on the code, never on
// the message text.
type ErrorCode string

const (
	// Validation: bad input shape or range, returned before any I/O.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Generation failures.
	CodeAnchorGenerationFailed ErrorCode = "ANCHOR_GENERATION_FAILED"
	CodeGridGenerationFailed   ErrorCode = "GRID_GENERATION_FAILED"
	CodeRefinementFailed       ErrorCode = "LOCAL_REFINEMENT_FAILED"
	CodeDeduplicationFailed    ErrorCode = "DEDUPLICATION_FAILED"
	CodeInvalidCoordinate      ErrorCode = "INVALID_COORDINATE"
	CodeScoringFailed          ErrorCode = "SCORING_FAILED"
	CodeVarianceUnavailable    ErrorCode = "VARIANCE_UNAVAILABLE"
	CodeNoOptimalPoint         ErrorCode = "NO_OPTIMAL_POINT"
	CodeMatrixInvalid          ErrorCode = "MATRIX_INVALID"
	CodeNoReachablePoints      ErrorCode = "NO_REACHABLE_POINTS"
	CodeAllGroupsFailed        ErrorCode = "ALL_GROUPS_FAILED"
	CodeOriginMismatch         ErrorCode = "ORIGIN_MISMATCH"

	// Upstream oracle failures.
	CodeOracleTimeout     ErrorCode = "ORACLE_TIMEOUT"
	CodeOracleNetwork     ErrorCode = "ORACLE_NETWORK"
	CodeOracleServer      ErrorCode = "ORACLE_SERVER"
	CodeOracleRateLimited ErrorCode = "ORACLE_RATE_LIMITED"
	CodeOracleAuth        ErrorCode = "ORACLE_AUTH"
	CodeOracleRequest     ErrorCode = "ORACLE_REQUEST"

	CodeInternal ErrorCode = "INTERNAL"
)

var defaultUserMessages = map[ErrorCode]string{
	CodeInvalidInput:           "The request is invalid. Check the locations and search settings.",
	CodeAnchorGenerationFailed: "Could not derive candidate points from the given locations.",
	CodeGridGenerationFailed:   "Could not build a search grid around the given locations.",
	CodeRefinementFailed:       "Could not refine the search around the best candidates.",
	CodeDeduplicationFailed:    "Could not merge nearby candidate points.",
	CodeInvalidCoordinate:      "A computed coordinate was out of range.",
	CodeScoringFailed:          "No candidate point could be scored.",
	CodeVarianceUnavailable:    "Variance was requested but could not be computed.",
	CodeNoOptimalPoint:         "No meeting point is reachable by every participant.",
	CodeMatrixInvalid:          "The travel-time service returned malformed data.",
	CodeNoReachablePoints:      "None of the candidate points is reachable by every participant.",
	CodeAllGroupsFailed:        "Refining the search failed for every candidate area.",
	CodeOriginMismatch:         "Travel-time results could not be combined.",
	CodeOracleTimeout:          "The travel-time service timed out. Please try again.",
	CodeOracleNetwork:          "The travel-time service could not be reached. Please try again.",
	CodeOracleServer:           "The travel-time service is temporarily unavailable.",
	CodeOracleRateLimited:      "Too many travel-time requests. Please wait a moment and retry.",
	CodeOracleAuth:             "The travel-time service rejected our credentials.",
	CodeOracleRequest:          "The travel-time service rejected the request.",
	CodeInternal:               "An unexpected error occurred.",
}

// Error is a fatal engine error carrying a technical message for logs and a
// user-facing message for API responses.
type Error struct {
	Code        ErrorCode
	Message     string
	UserMessage string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: timeout, network or
// 5xx-class. Rate limits and auth failures are not retried.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeOracleTimeout, CodeOracleNetwork, CodeOracleServer:
		return true
	}
	return false
}

// Errorf builds an *Error. An empty userMessage selects the code's default.
func Errorf(code ErrorCode, userMessage, format string, args ...any) *Error {
	if userMessage == "" {
		userMessage = defaultUserMessages[code]
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), UserMessage: userMessage}
}

// Wrap builds an *Error around a cause.
func Wrap(code ErrorCode, err error, format string, args ...any) *Error {
	e := Errorf(code, "", format, args...)
	e.Err = err
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err is a transient oracle failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// UserMessage returns the user-facing message for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.UserMessage != "" {
		return e.UserMessage
	}
	return defaultUserMessages[CodeInternal]
}
