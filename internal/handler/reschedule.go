package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/service"
	"github.com/iliyamo/booking-engine/internal/store"
)

// RescheduleService is the part of service.RescheduleService the
// handlers use.
type RescheduleService interface {
	Initiate(ctx context.Context, actor service.Actor, in service.InitiateInput) (*model.Reschedule, error)
	Review(ctx context.Context, actor service.Actor, id uint64, in service.ReviewInput) (*model.Reschedule, error)
	CompletePayment(ctx context.Context, actor service.Actor, id uint64, in service.PayInput) (*model.Reschedule, error)
	Cancel(ctx context.Context, actor service.Actor, id uint64) (*model.Reschedule, error)
	Get(ctx context.Context, actor service.Actor, id uint64) (*model.Reschedule, error)
	ListByBooking(ctx context.Context, actor service.Actor, bookingID uint64) ([]model.Reschedule, error)
	ListPending(ctx context.Context, actor service.Actor, page store.Page) ([]model.Reschedule, error)
}

// RescheduleHandler serves /reschedules.
type RescheduleHandler struct {
	svc RescheduleService
}

func NewRescheduleHandler(svc RescheduleService) *RescheduleHandler {
	if svc == nil {
		panic("nil service passed to NewRescheduleHandler")
	}
	return &RescheduleHandler{svc: svc}
}

// Initiate handles POST /reschedules/initiate.
func (h *RescheduleHandler) Initiate(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	var req initiateRescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	start, err := parseDate(req.NewRentalStartDate, "newRentalStartDate")
	if err != nil {
		return writeError(c, err)
	}
	end, err := parseDate(req.NewRentalEndDate, "newRentalEndDate")
	if err != nil {
		return writeError(c, err)
	}
	rs, err := h.svc.Initiate(c.Request().Context(), actor, service.InitiateInput{
		BookingID:      req.BookingID,
		Reason:         req.RescheduleReason,
		NewBatchID:     req.NewBatchID,
		NewSlotID:      req.NewSlotID,
		NewDateRangeID: req.NewDateRangeID,
		NewStartDate:   start,
		NewEndDate:     end,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReschedule(*rs))
}

// Review handles PUT /reschedules/:id/review.
func (h *RescheduleHandler) Review(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req reviewRescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	rs, err := h.svc.Review(c.Request().Context(), actor, id, service.ReviewInput{
		Decision:   req.Decision,
		AdminNotes: req.AdminNotes,
		Fee:        req.RescheduleFeeAmount,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReschedule(*rs))
}

// Pay handles POST /reschedules/:id/pay.
func (h *RescheduleHandler) Pay(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req payRescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	rs, err := h.svc.CompletePayment(c.Request().Context(), actor, id, service.PayInput{PaymentReference: req.PaymentReference})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReschedule(*rs))
}

// Cancel handles POST /reschedules/:id/cancel.
func (h *RescheduleHandler) Cancel(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	rs, err := h.svc.Cancel(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReschedule(*rs))
}

// Get handles GET /reschedules/:id.
func (h *RescheduleHandler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	rs, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReschedule(*rs))
}

// ListByBooking handles GET /reschedules/booking/:bookingId.
func (h *RescheduleHandler) ListByBooking(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "bookingId")
	if err != nil {
		return writeError(c, err)
	}
	rows, err := h.svc.ListByBooking(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reschedules": toReschedules(rows), "count": len(rows)})
}

// ListPending handles GET /reschedules/pending.
func (h *RescheduleHandler) ListPending(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	page, err := pageFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	rows, err := h.svc.ListPending(c.Request().Context(), actor, page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reschedules": toReschedules(rows),
		"count":       len(rows),
		"limit":       page.Limit,
		"offset":      page.Offset,
	})
}
