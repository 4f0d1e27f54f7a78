package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "requestid"

// RequestLogger logs every request with a generated request id, at a level
// chosen by the response status
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := uuid.NewString()
		c.Locals(requestIDKey, requestID)
		c.Set("X-Request-ID", requestID)

		err := c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("http_method", c.Method()),
			zap.String("uri", c.OriginalURL()),
			zap.Int("status_code", c.Response().StatusCode()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("client_ip", c.IP()),
		}

		status := c.Response().StatusCode()
		switch {
		case err != nil:
			logger.Error("request processing failed", append(fields, zap.Error(err))...)
		case status >= 500:
			logger.Error("request completed with server error", fields...)
		case status >= 400:
			logger.Warn("request completed with client error", fields...)
		default:
			logger.Debug("request completed", fields...)
		}

		// the app error handler still renders err
		return err
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}
