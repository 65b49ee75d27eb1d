package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers load balancer probes. With a database configured it
// also pings it and answers 503 when the ping fails.
type Health struct {
	DB Pinger
}

// Check handles GET /healthz.
func (h Health) Check(c echo.Context) error {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": "database unreachable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
