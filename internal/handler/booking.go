package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/apperror"
	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/service"
	"github.com/iliyamo/booking-engine/internal/store"
)

// BookingService is the part of service.BookingService the handlers use.
type BookingService interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateBookingInput) (*service.BookingDetail, error)
	Cancel(ctx context.Context, actor service.Actor, bookingID uint64) (*model.Booking, error)
	Get(ctx context.Context, actor service.Actor, bookingID uint64) (*service.BookingDetail, error)
	ListByCustomer(ctx context.Context, actor service.Actor, customerID uint64, page store.Page) ([]service.BookingDetail, error)
	ListByOperator(ctx context.Context, actor service.Actor, operatorID uint64, page store.Page) ([]service.BookingDetail, error)
	ListAll(ctx context.Context, actor service.Actor, page store.Page) ([]service.BookingDetail, error)
}

// BookingHandler serves /bookings.
type BookingHandler struct {
	svc BookingService
}

// NewBookingHandler panics on a nil service, like every constructor in
// this package.
func NewBookingHandler(svc BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	var req createBookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	in, err := req.toInput()
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toDetail(*res, actor.IsAdmin()))
}

func (r createBookingRequest) toInput() (service.CreateBookingInput, error) {
	method, err := model.ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return service.CreateBookingInput{}, apperror.Validation("paymentMethod must be ONLINE, PARTIAL or PAY_AT_VENUE", "paymentMethod")
	}
	start, err := parseDate(r.BookingStartDate, "bookingStartDate")
	if err != nil {
		return service.CreateBookingInput{}, err
	}
	end, err := parseDate(r.BookingEndDate, "bookingEndDate")
	if err != nil {
		return service.CreateBookingInput{}, err
	}
	in := service.CreateBookingInput{
		CustomerID:       r.CustomerID,
		ListingID:        r.ListingID,
		SlotID:           r.SlotID,
		DateRangeID:      r.DateRangeID,
		StartDate:        start,
		EndDate:          end,
		ParticipantCount: r.ParticipantCount,
		Participants:     r.Participants,
		Contact:          r.ContactDetails,
		Addons:           r.SelectedAddons,
		AddonsTotal:      r.AddonsTotal,
		TotalAmount:      r.TotalAmount,
		AmountPaidNow:    r.AmountPaidNow,
		PaymentMethod:    method,
		PromoCode:        r.PromoCode,
	}
	if r.DiscountAmount != nil {
		in.DiscountAmount = *r.DiscountAmount
	}
	return in, nil
}

// Cancel handles POST /bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	b, err := h.svc.Cancel(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBooking(*b))
}

// Get handles GET /bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDetail(*res, actor.IsAdmin()))
}

// ListByCustomer handles GET /bookings/user/:customerId.
func (h *BookingHandler) ListByCustomer(c echo.Context) error {
	return h.list(c, func(ctx context.Context, actor service.Actor, page store.Page) ([]service.BookingDetail, error) {
		id, err := pathID(c, "customerId")
		if err != nil {
			return nil, err
		}
		return h.svc.ListByCustomer(ctx, actor, id, page)
	})
}

// ListByOperator handles GET /bookings/operator/:operatorId.
func (h *BookingHandler) ListByOperator(c echo.Context) error {
	return h.list(c, func(ctx context.Context, actor service.Actor, page store.Page) ([]service.BookingDetail, error) {
		id, err := pathID(c, "operatorId")
		if err != nil {
			return nil, err
		}
		return h.svc.ListByOperator(ctx, actor, id, page)
	})
}

// ListAll handles GET /bookings/admin/all.
func (h *BookingHandler) ListAll(c echo.Context) error {
	return h.list(c, h.svc.ListAll)
}

func (h *BookingHandler) list(c echo.Context, load func(context.Context, service.Actor, store.Page) ([]service.BookingDetail, error)) error {
	actor, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	page, err := pageFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	rows, err := load(c.Request().Context(), actor, page)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]bookingDetailResponse, len(rows))
	for i, d := range rows {
		out[i] = toDetail(d, actor.IsAdmin())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bookings": out,
		"count":    len(out),
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}
