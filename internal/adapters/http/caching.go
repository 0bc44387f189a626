package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers by endpoint and adds a weak
// ETag to successful GET responses, answering 304 when the client has it.
// Search results are never cacheable by intermediaries: they depend on live
// travel times.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}

		path := c.Path()
		if len(c.Response().Header.Peek(fiber.HeaderCacheControl)) == 0 {
			if ttl := cacheControlFor(c.Method(), path); ttl != "" {
				c.Set(fiber.HeaderCacheControl, ttl)
			}
		}

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		h := sha256.Sum256(body)
		etag := `W/"` + hex.EncodeToString(h[:8]) + `"`
		c.Set(fiber.HeaderETag, etag)

		if c.Get(fiber.HeaderIfNoneMatch) == etag {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

func cacheControlFor(method, path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=10"
	case path == "/metrics":
		return "no-cache"
	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=3600"
	case path == "/v1/search/defaults":
		return "public, max-age=300"
	case method == fiber.MethodPost:
		return "no-store"
	}
	return ""
}
