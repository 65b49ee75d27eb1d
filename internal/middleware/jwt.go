package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/utils"
)

// Context keys set by JWTAuth.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the token's subject and role into the request context.
// Handlers read them back with c.Get("user_id") (uint64) and c.Get("role")
// (model.Role).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(KeyUserID, claims.UserID)
			c.Set(KeyRole, claims.Role)
			return next(c)
		}
	}
}
