package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/handler"
	"github.com/iliyamo/booking-engine/internal/middleware"
	"github.com/iliyamo/booking-engine/internal/model"
)

// RegisterReschedules mounts /reschedules. Review and the pending queue
// are admin only, payment is customer only.
func RegisterReschedules(e *echo.Echo, h *handler.RescheduleHandler, g Guards) {
	grp := e.Group("/reschedules", middleware.JWTAuth(g.JWTSecret))

	grp.POST("/initiate", h.Initiate, g.writes(anyRole...)...)
	grp.PUT("/:id/review", h.Review, g.writes(model.RoleAdmin)...)
	grp.POST("/:id/pay", h.Pay, g.writes(model.RoleCustomer)...)
	grp.POST("/:id/cancel", h.Cancel, g.writes(anyRole...)...)

	grp.GET("/pending", h.ListPending, g.reads(model.RoleAdmin)...)
	grp.GET("/booking/:bookingId", h.ListByBooking, g.reads(anyRole...)...)
	grp.GET("/:id", h.Get, g.reads(anyRole...)...)
}
