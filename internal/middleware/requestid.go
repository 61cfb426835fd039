package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestIDKey is the fiber locals key under which the request identifier is
// stored for handlers and access logging.
const RequestIDKey = "request_id"

// RequestID ensures each request carries a stable identifier for tracing.
// A caller-supplied X-Request-ID is honored; otherwise one is generated. The
// identifier is echoed on the response either way.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Set(requestIDHeader, reqID)
		c.Locals(RequestIDKey, reqID)

		return c.Next()
	}
}
