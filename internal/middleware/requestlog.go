package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// KeyRequestID is the context key holding the request id.
const KeyRequestID = "request_id"

// RequestLogger tags each request with an id (the caller's X-Request-ID
// or a fresh uuid), echoes it back and logs one line when the request
// completes.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(KeyRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			entry := log.WithFields(logrus.Fields{
				"request_id": id,
				"method":     req.Method,
				"path":       req.URL.Path,
				"route":      c.Path(),
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"user_id":    currentUserID(c),
				"remote_ip":  c.RealIP(),
			})
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request completed")
			}
			return nil
		}
	}
}
