package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/booking-engine/internal/apperror"
	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
	"github.com/iliyamo/booking-engine/internal/pricing"
	"github.com/iliyamo/booking-engine/internal/queue"
	"github.com/iliyamo/booking-engine/internal/store"
)

// referenceAttempts bounds how often a booking is retried after its
// generated reference collided with an existing one.
const referenceAttempts = 3

var errReferenceTaken = errors.New("booking reference already taken")

// BookingService creates, cancels and lists bookings.
type BookingService struct {
	base
	policy    PricingPolicy
	reference func(time.Time) (string, error)
}

// NewBookingService wires a BookingService. A nil publisher drops events.
func NewBookingService(st store.Store, pub EventPublisher, log *logrus.Logger, policy PricingPolicy) *BookingService {
	return &BookingService{base: newBase(st, pub, log), policy: policy, reference: NewReference}
}

// CreateBookingInput is a booking request after transport decoding.
// Exactly one of SlotID (batch and single-day slot listings) or
// DateRangeID (rental listings) is set. Rental bookings also carry the
// caller's dates. Client pricing fields are optional; TotalAmount, when
// present, must match the computed total.
type CreateBookingInput struct {
	CustomerID       uint64
	ListingID        uint64
	SlotID           uint64
	DateRangeID      uint64
	StartDate        *time.Time
	EndDate          *time.Time
	ParticipantCount int
	Participants     []model.Participant
	Contact          model.ContactDetails
	Addons           []model.SelectedAddon
	AddonsTotal      *money.Amount
	DiscountAmount   money.Amount
	TotalAmount      *money.Amount
	AmountPaidNow    *money.Amount
	PaymentMethod    model.PaymentMethod
	PromoCode        *string
}

// BookingDetail pairs a booking with its payment breakdown.
type BookingDetail struct {
	Booking model.Booking
	Payment *model.BookingPayment
}

func (in CreateBookingInput) missing() []string {
	var fields []string
	if in.CustomerID == 0 {
		fields = append(fields, "customerId")
	}
	if in.ListingID == 0 {
		fields = append(fields, "listingId")
	}
	if in.ParticipantCount <= 0 {
		fields = append(fields, "participantCount")
	}
	if in.SlotID == 0 && in.DateRangeID == 0 {
		fields = append(fields, "slotId", "dateRangeId")
	}
	return fields
}

// Create reserves capacity and records the booking with its payment
// breakdown. Capacity, booking and payment commit together or not at all.
func (s *BookingService) Create(ctx context.Context, actor Actor, in CreateBookingInput) (*BookingDetail, error) {
	ctx, span := s.start(ctx, "BookingService.Create")
	res, err := s.create(ctx, actor, in)
	if err := s.finish(span, "booking.create", err, logrus.Fields{"customer_id": in.CustomerID, "listing_id": in.ListingID}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"booking_id": res.Booking.ID,
		"reference":  res.Booking.Reference,
		"inventory":  res.Booking.Inventory.String(),
		"units":      res.Booking.ReservedUnits,
	}).Info("booking created")

	ev := queue.NewEvent(queue.BookingCreated, res.Booking.ID)
	ev.Reference = res.Booking.Reference
	ev.ActorID, ev.ActorRole = actor.UserID, string(actor.Role)
	ev.Data = map[string]any{
		"format":         string(res.Booking.Inventory.Format),
		"inventory_id":   res.Booking.Inventory.ID,
		"units":          res.Booking.ReservedUnits,
		"total_amount":   res.Booking.TotalAmount.String(),
		"start_date":     res.Booking.StartDate.Format(model.DateLayout),
		"end_date":       res.Booking.EndDate.Format(model.DateLayout),
		"payment_method": string(res.Booking.PaymentMethod),
	}
	s.publish(ctx, ev)
	return res, nil
}

func (s *BookingService) create(ctx context.Context, actor Actor, in CreateBookingInput) (*BookingDetail, error) {
	if missing := in.missing(); len(missing) > 0 {
		return nil, apperror.MissingFields(missing...)
	}
	if in.SlotID != 0 && in.DateRangeID != 0 {
		return nil, apperror.Validation("exactly one of slotId or dateRangeId must be set", "slotId", "dateRangeId")
	}
	if actor.Role != model.RoleCustomer {
		return nil, apperror.Forbidden("only customers can create bookings")
	}
	method := in.PaymentMethod
	if method == "" {
		method = model.PaymentOnline
	}

	for attempt := 1; ; attempt++ {
		var out *BookingDetail
		err := s.store.WithinTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = s.createTx(ctx, tx, actor, in, method)
			return err
		})
		if errors.Is(err, errReferenceTaken) && attempt < referenceAttempts {
			s.log.WithField("attempt", attempt).Warn("booking reference collision, retrying")
			continue
		}
		if errors.Is(err, errReferenceTaken) {
			return nil, apperror.Internal(err)
		}
		return out, mapStoreErr(err, "booking")
	}
}

func (s *BookingService) createTx(ctx context.Context, tx store.Tx, actor Actor, in CreateBookingInput, method model.PaymentMethod) (*BookingDetail, error) {
	customer, err := tx.Customers().Get(ctx, in.CustomerID)
	if err != nil {
		return nil, mapStoreErr(err, "customer")
	}
	if customer.UserID != actor.UserID {
		return nil, apperror.Forbidden("customers can only book for themselves")
	}
	listing, err := tx.Listings().Get(ctx, in.ListingID)
	if err != nil {
		return nil, mapStoreErr(err, "listing")
	}

	format := listing.Format
	id, field := in.SlotID, "slotId"
	if format.CallerDates() {
		id, field = in.DateRangeID, "dateRangeId"
	}
	if id == 0 {
		return nil, apperror.Validation(string(format)+" listings are booked by "+field, field)
	}
	ref := model.RefFor(format, id)
	rec, err := tx.Inventory().Get(ctx, ref)
	if err != nil {
		return nil, mapStoreErr(err, inventoryName(format))
	}
	if rec.ListingID != listing.ID {
		return nil, apperror.Validation(inventoryName(format)+" does not belong to the listing", field)
	}

	span := rec.FixedSpan()
	if format.CallerDates() {
		span, err = callerSpan(in.StartDate, in.EndDate, rec.Window, "bookingStartDate", "bookingEndDate")
		if err != nil {
			return nil, err
		}
	}

	units := format.Units(in.ParticipantCount)
	if !rec.HasCapacity(units, span) {
		return nil, apperror.InsufficientCapacity("not enough capacity left on " + inventoryName(format))
	}

	bd, basePrice, err := s.breakdown(listing, rec, span, in, method)
	if err != nil {
		return nil, err
	}

	if err := tx.Inventory().Reserve(ctx, ref, span, units); err != nil {
		return nil, mapStoreErr(err, inventoryName(format))
	}

	now := s.now()
	reference, err := s.reference(now)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	b := &model.Booking{
		Reference:        reference,
		CustomerID:       customer.ID,
		ListingID:        listing.ID,
		OperatorID:       listing.OperatorID,
		Inventory:        ref,
		StartDate:        span.Start,
		EndDate:          span.End,
		ParticipantCount: in.ParticipantCount,
		ReservedUnits:    units,
		TotalDays:        span.Days(),
		BasePrice:        basePrice,
		TotalAmount:      bd.TotalAmount,
		Status:           model.BookingConfirmed,
		PaymentMethod:    method,
		Pricing: model.PricingSnapshot{
			Subtotal:       bd.SubtotalAmount,
			AddonsTotal:    bd.AddonsAmount,
			TaxAmount:      bd.TaxAmount,
			DiscountAmount: bd.DiscountAmount,
			TotalAmount:    bd.TotalAmount,
			AmountPaidNow:  bd.AmountPaidOnline,
			PendingAtVenue: bd.AmountToCollectOffline,
		},
		Participants: in.Participants,
		Contact:      in.Contact,
		Addons:       in.Addons,
		PromoCode:    in.PromoCode,
	}
	if err := tx.Bookings().Create(ctx, b); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errReferenceTaken
		}
		return nil, err
	}
	p := paymentFrom(b.ID, method, bd)
	if err := tx.Payments().Create(ctx, p); err != nil {
		return nil, err
	}
	return &BookingDetail{Booking: *b, Payment: p}, nil
}

// callerSpan validates caller-chosen dates against the record's window.
func callerSpan(start, end *time.Time, window model.DateSpan, startField, endField string) (model.DateSpan, error) {
	var missing []string
	if start == nil {
		missing = append(missing, startField)
	}
	if end == nil {
		missing = append(missing, endField)
	}
	if len(missing) > 0 {
		return model.DateSpan{}, apperror.MissingFields(missing...)
	}
	span, err := model.NewDateSpan(*start, *end)
	if err != nil {
		return model.DateSpan{}, apperror.Validation(endField+" must not be before "+startField, startField, endField)
	}
	if !window.Includes(span) {
		return model.DateSpan{}, apperror.Validation("dates fall outside the availability window "+window.String(), startField, endField)
	}
	return span, nil
}

// breakdown prices the booking. Recurring slot rentals sum each day's
// effective price; other formats multiply one unit price.
func (s *BookingService) breakdown(listing *model.Listing, rec *model.InventoryRecord, span model.DateSpan, in CreateBookingInput, method model.PaymentMethod) (pricing.Breakdown, money.Amount, error) {
	basePrice := listing.BasePrice
	if rec.PricePaise != nil {
		basePrice = money.Amount(*rec.PricePaise)
	}
	addons, err := addonsAmount(in)
	if err != nil {
		return pricing.Breakdown{}, 0, err
	}
	input := pricing.Input{
		Format:           listing.Format,
		BasePrice:        basePrice,
		Quantity:         pricing.QuantityFor(listing.Format, in.ParticipantCount, span.Days()),
		AddonsAmount:     addons,
		DiscountAmount:   in.DiscountAmount,
		AmountPaidOnline: in.AmountPaidNow,
		Method:           method,
		TaxRateBP:        orDefault(listing.TaxRateBP, s.policy.DefaultTaxRateBP),
		AdvancePercent:   orDefault(listing.AdvancePercent, s.policy.DefaultAdvancePercent),
		Policy: pricing.Policy{
			CommissionRateBP: orDefault(listing.CommissionRateBP, s.policy.CommissionRateBP),
			TCSRateBP:        s.policy.TCSRateBP,
		},
	}
	if listing.Format == model.FormatRecurringSlotRental {
		for _, p := range rec.DayPrices(span, listing.BasePrice.Paise()) {
			input.DayPrices = append(input.DayPrices, money.Amount(p))
		}
	}
	bd, err := pricing.Calculate(input)
	if err != nil {
		var ie *pricing.InputError
		if errors.As(err, &ie) {
			return pricing.Breakdown{}, 0, apperror.Validation(ie.Error(), ie.Field)
		}
		return pricing.Breakdown{}, 0, apperror.Internal(err)
	}
	if in.TotalAmount != nil && *in.TotalAmount != bd.TotalAmount {
		return pricing.Breakdown{}, 0, apperror.Validation("totalAmount does not match the computed total "+bd.TotalAmount.String(), "totalAmount")
	}
	return bd, basePrice, nil
}

// addonsAmount sums the selected add-ons, falling back to the client's
// addonsTotal when no itemised add-ons were sent. Negative or oversized
// lines are rejected before any multiplication.
func addonsAmount(in CreateBookingInput) (money.Amount, error) {
	if len(in.Addons) == 0 {
		if in.AddonsTotal == nil {
			return 0, nil
		}
		if *in.AddonsTotal < 0 || *in.AddonsTotal > model.MaxAddonsTotal {
			return 0, apperror.Validation("addonsTotal must be between 0 and "+model.MaxAddonsTotal.String(), "addonsTotal")
		}
		return *in.AddonsTotal, nil
	}
	var sum money.Amount
	for i, a := range in.Addons {
		switch {
		case a.Price < 0 || a.Price > model.MaxAddonPrice:
			return 0, apperror.Validation(fmt.Sprintf("selectedAddons[%d].price must be between 0 and %s", i, model.MaxAddonPrice), "selectedAddons")
		case a.Quantity < 0 || a.Quantity > model.MaxAddonQuantity:
			return 0, apperror.Validation(fmt.Sprintf("selectedAddons[%d].quantity must be between 0 and %d", i, model.MaxAddonQuantity), "selectedAddons")
		}
		sum += a.Total()
		if sum > model.MaxAddonsTotal {
			return 0, apperror.Validation("selected add-ons exceed "+model.MaxAddonsTotal.String(), "selectedAddons")
		}
	}
	return sum, nil
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func paymentFrom(bookingID uint64, method model.PaymentMethod, bd pricing.Breakdown) *model.BookingPayment {
	return &model.BookingPayment{
		BookingID:              bookingID,
		BasePrice:              bd.BasePrice,
		Quantity:               bd.Quantity,
		SubtotalAmount:         bd.SubtotalAmount,
		AddonsAmount:           bd.AddonsAmount,
		DiscountAmount:         bd.DiscountAmount,
		TaxableAmount:          bd.TaxableAmount,
		TaxRateBP:              bd.TaxRateBP,
		TaxAmount:              bd.TaxAmount,
		TotalAmount:            bd.TotalAmount,
		AmountPaidOnline:       bd.AmountPaidOnline,
		AmountToCollectOffline: bd.AmountToCollectOffline,
		CommissionRateBP:       bd.CommissionRateBP,
		PlatformCommission:     bd.PlatformCommission,
		TCSRateBP:              bd.TCSRateBP,
		TCSAmount:              bd.TCSAmount,
		SellerGrossEarnings:    bd.SellerGrossEarnings,
		NetPayableToSeller:     bd.NetPayableToSeller,
		PaymentMethod:          method,
		SettlementStatus:       model.SettlementPending,
	}
}

// Cancel marks the booking cancelled, gives its units back to the
// inventory record and cancels a pending reschedule of it, atomically.
func (s *BookingService) Cancel(ctx context.Context, actor Actor, bookingID uint64) (*model.Booking, error) {
	ctx, span := s.start(ctx, "BookingService.Cancel")
	var (
		out       *model.Booking
		cancelled []uint64
	)
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return mapStoreErr(err, "booking")
		}
		if err := authorizeBooking(ctx, tx, actor, b); err != nil {
			return err
		}
		switch b.Status {
		case model.BookingCancelled:
			return apperror.Conflict("booking is already cancelled").WithStatus(http.StatusBadRequest)
		case model.BookingCompleted:
			return apperror.Conflict("completed bookings cannot be cancelled")
		}
		if err := tx.Inventory().Release(ctx, b.Inventory, b.Span(), b.ReservedUnits); err != nil {
			return apperror.Internal(err)
		}
		now := s.now()
		if err := tx.Bookings().MarkCancelled(ctx, b.ID, now); err != nil {
			return mapStoreErr(err, "booking")
		}
		cancelled, err = tx.Reschedules().CancelPendingForBooking(ctx, b.ID, now)
		if err != nil {
			return apperror.Internal(err)
		}
		b.Status, b.CancelledAt, b.UpdatedAt = model.BookingCancelled, &now, now
		out = b
		return nil
	})
	if err := s.finish(span, "booking.cancel", mapStoreErr(err, "booking"), logrus.Fields{"booking_id": bookingID}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": out.ID, "reschedules_cancelled": len(cancelled)}).Info("booking cancelled")

	ev := queue.NewEvent(queue.BookingCancelled, out.ID)
	ev.Reference = out.Reference
	ev.ActorID, ev.ActorRole = actor.UserID, string(actor.Role)
	ev.Data = map[string]any{"units_released": out.ReservedUnits, "inventory": out.Inventory.String()}
	events := []queue.Event{ev}
	for _, id := range cancelled {
		rev := queue.NewEvent(queue.RescheduleCancelled, out.ID)
		rev.RescheduleID = id
		rev.Data = map[string]any{"cause": "booking_cancelled"}
		events = append(events, rev)
	}
	s.publish(ctx, events...)
	return out, nil
}

// Get returns one booking with its payment, if the actor may see it.
func (s *BookingService) Get(ctx context.Context, actor Actor, bookingID uint64) (*BookingDetail, error) {
	ctx, span := s.start(ctx, "BookingService.Get")
	var out *BookingDetail
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		b, err := tx.Bookings().Get(ctx, bookingID)
		if err != nil {
			return mapStoreErr(err, "booking")
		}
		if err := authorizeBooking(ctx, tx, actor, b); err != nil {
			return err
		}
		out = &BookingDetail{Booking: *b}
		p, err := tx.Payments().GetByBooking(ctx, b.ID)
		switch {
		case err == nil:
			out.Payment = p
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return nil
	})
	if err := s.finish(span, "booking.get", mapStoreErr(err, "booking"), logrus.Fields{"booking_id": bookingID}); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCustomer lists a customer's bookings. Customers may only list
// their own; admins may list anyone's.
func (s *BookingService) ListByCustomer(ctx context.Context, actor Actor, customerID uint64, page store.Page) ([]BookingDetail, error) {
	ctx, span := s.start(ctx, "BookingService.ListByCustomer")
	out, err := s.list(ctx, func(tx store.Tx) ([]model.Booking, error) {
		switch actor.Role {
		case model.RoleAdmin:
		case model.RoleCustomer:
			c, err := tx.Customers().Get(ctx, customerID)
			if err != nil {
				return nil, mapStoreErr(err, "customer")
			}
			if c.UserID != actor.UserID {
				return nil, apperror.Forbidden("customers can only list their own bookings")
			}
		default:
			return nil, apperror.Forbidden("not allowed to list customer bookings")
		}
		return tx.Bookings().ListByCustomer(ctx, customerID, page)
	})
	return out, s.finish(span, "booking.list_customer", err, logrus.Fields{"customer_id": customerID})
}

// ListByOperator lists bookings on an operator's listings.
func (s *BookingService) ListByOperator(ctx context.Context, actor Actor, operatorID uint64, page store.Page) ([]BookingDetail, error) {
	ctx, span := s.start(ctx, "BookingService.ListByOperator")
	out, err := s.list(ctx, func(tx store.Tx) ([]model.Booking, error) {
		if !actor.IsAdmin() && !(actor.Role == model.RoleOperator && actor.UserID == operatorID) {
			return nil, apperror.Forbidden("operators can only list bookings on their own listings")
		}
		return tx.Bookings().ListByOperator(ctx, operatorID, page)
	})
	return out, s.finish(span, "booking.list_operator", err, logrus.Fields{"operator_id": operatorID})
}

// ListAll lists every booking; admins only.
func (s *BookingService) ListAll(ctx context.Context, actor Actor, page store.Page) ([]BookingDetail, error) {
	ctx, span := s.start(ctx, "BookingService.ListAll")
	out, err := s.list(ctx, func(tx store.Tx) ([]model.Booking, error) {
		if !actor.IsAdmin() {
			return nil, apperror.Forbidden("admin role required")
		}
		return tx.Bookings().ListAll(ctx, page)
	})
	return out, s.finish(span, "booking.list_all", err, nil)
}

func (s *BookingService) list(ctx context.Context, load func(tx store.Tx) ([]model.Booking, error)) ([]BookingDetail, error) {
	var out []BookingDetail
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		rows, err := load(tx)
		if err != nil {
			return err
		}
		ids := make([]uint64, len(rows))
		for i, b := range rows {
			ids[i] = b.ID
		}
		payments, err := tx.Payments().ListByBookings(ctx, ids)
		if err != nil {
			return err
		}
		out = make([]BookingDetail, len(rows))
		for i, b := range rows {
			out[i] = BookingDetail{Booking: b}
			if p, ok := payments[b.ID]; ok {
				out[i].Payment = &p
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err, "booking")
	}
	return out, nil
}
