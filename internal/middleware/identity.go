package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/model"
)

// currentUserID returns the authenticated subject, or "anon" before
// JWTAuth has run.
func currentUserID(c echo.Context) string {
	if id, ok := c.Get(KeyUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}

func currentRole(c echo.Context) string {
	if r, ok := c.Get(KeyRole).(model.Role); ok {
		return string(r)
	}
	return "guest"
}
