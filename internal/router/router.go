// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/handler"
	"github.com/iliyamo/booking-engine/internal/middleware"
	"github.com/iliyamo/booking-engine/internal/model"
)

// Guards bundles the middleware every protected route group shares.
// RateLimit runs on mutating routes, Cache on reads, and Invalidate
// retires cached reads after a successful write. Nil entries are skipped.
type Guards struct {
	JWTSecret  string
	RateLimit  echo.MiddlewareFunc
	Cache      echo.MiddlewareFunc
	Invalidate echo.MiddlewareFunc
}

func (g Guards) writes(roles ...model.Role) []echo.MiddlewareFunc {
	return compact(middleware.RequireRole(roles...), g.RateLimit, g.Invalidate)
}

func (g Guards) reads(roles ...model.Role) []echo.MiddlewareFunc {
	return compact(middleware.RequireRole(roles...), g.Cache)
}

func compact(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := mws[:0]
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

var anyRole = []model.Role{model.RoleCustomer, model.RoleOperator, model.RoleAdmin}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, health handler.Health) {
	e.GET("/healthz", health.Check)
}
