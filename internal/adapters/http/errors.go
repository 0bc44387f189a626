package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, no_reachable_points, oracle_timeout, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// StatusForCode maps an engine error code to an HTTP status.
func StatusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput:
		return fiber.StatusBadRequest
	case domain.CodeAnchorGenerationFailed, domain.CodeGridGenerationFailed,
		domain.CodeRefinementFailed, domain.CodeInvalidCoordinate,
		domain.CodeDeduplicationFailed, domain.CodeScoringFailed, domain.CodeVarianceUnavailable,
		domain.CodeNoOptimalPoint, domain.CodeNoReachablePoints:
		return fiber.StatusUnprocessableEntity
	case domain.CodeOracleRateLimited:
		return fiber.StatusTooManyRequests
	case domain.CodeOracleTimeout:
		return fiber.StatusGatewayTimeout
	case domain.CodeOracleNetwork, domain.CodeOracleServer, domain.CodeOracleAuth,
		domain.CodeOracleRequest, domain.CodeMatrixInvalid, domain.CodeAllGroupsFailed:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// errFromDomain renders an engine error. Internal detail stays in the logs;
// clients only see the user-facing message.
func errFromDomain(c *fiber.Ctx, err error) error {
	code := domain.CodeOf(err)
	c.Locals("error_code", string(code))
	return newError(c, StatusForCode(code), strings.ToLower(string(code)), domain.UserMessage(err))
}
