package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/handler"
	"github.com/iliyamo/booking-engine/internal/middleware"
	"github.com/iliyamo/booking-engine/internal/model"
)

// RegisterBookings mounts /bookings. Every route requires a valid JWT;
// ownership is checked by the service.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, g Guards) {
	grp := e.Group("/bookings", middleware.JWTAuth(g.JWTSecret))

	grp.POST("", h.Create, g.writes(model.RoleCustomer)...)
	grp.POST("/:id/cancel", h.Cancel, g.writes(anyRole...)...)

	grp.GET("/user/:customerId", h.ListByCustomer, g.reads(model.RoleCustomer, model.RoleAdmin)...)
	grp.GET("/operator/:operatorId", h.ListByOperator, g.reads(model.RoleOperator, model.RoleAdmin)...)
	grp.GET("/admin/all", h.ListAll, g.reads(model.RoleAdmin)...)
	grp.GET("/:id", h.Get, g.reads(anyRole...)...)
}
