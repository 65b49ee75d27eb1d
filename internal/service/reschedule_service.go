package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/booking-engine/internal/apperror"
	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
	"github.com/iliyamo/booking-engine/internal/queue"
	"github.com/iliyamo/booking-engine/internal/store"
)

// RescheduleService drives reschedule requests from pending through
// review and payment to the capacity swap.
//
//	pending ──reject──▶ rejected
//	pending ──cancel──▶ cancelled
//	pending ──approve─▶ approved (processed in the same transaction)
//	pending ──approve with charge─▶ approved_with_charge ──pay──▶ processed
type RescheduleService struct {
	base
}

// NewRescheduleService wires a RescheduleService. A nil publisher drops
// events.
func NewRescheduleService(st store.Store, pub EventPublisher, log *logrus.Logger) *RescheduleService {
	return &RescheduleService{base: newBase(st, pub, log)}
}

// InitiateInput names the new target of a reschedule. Which fields apply
// depends on the booking's format:
//
//	batch                 NewBatchID
//	single_day_slot       NewSlotID
//	day_wise_rental       NewStartDate, NewEndDate (NewDateRangeID optional)
//	recurring_slot_rental NewStartDate, NewEndDate (NewDateRangeID optional)
//
// An omitted NewDateRangeID keeps the booking's current record.
type InitiateInput struct {
	BookingID      uint64
	Reason         string
	NewBatchID     uint64
	NewSlotID      uint64
	NewDateRangeID uint64
	NewStartDate   *time.Time
	NewEndDate     *time.Time
}

// ReviewInput is an admin decision on a pending request.
type ReviewInput struct {
	Decision   string
	AdminNotes *string
	Fee        *money.Amount
}

// PayInput completes an approved_with_charge request. An empty
// PaymentReference gets a generated one.
type PayInput struct {
	PaymentReference string
}

// Initiate records a pending reschedule after checking that the new
// target can take the booking's units.
func (s *RescheduleService) Initiate(ctx context.Context, actor Actor, in InitiateInput) (*model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.Initiate")
	var missing []string
	if in.BookingID == 0 {
		missing = append(missing, "bookingId")
	}
	if strings.TrimSpace(in.Reason) == "" {
		missing = append(missing, "rescheduleReason")
	}
	if len(missing) > 0 {
		return nil, s.finish(span, "reschedule.initiate", apperror.MissingFields(missing...), nil)
	}

	var out *model.Reschedule
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, in.BookingID)
		if err != nil {
			return mapStoreErr(err, "booking")
		}
		if err := authorizeBooking(ctx, tx, actor, b); err != nil {
			return err
		}
		if b.Status != model.BookingConfirmed {
			return apperror.Conflict("only confirmed bookings can be rescheduled, booking is " + strings.ToLower(string(b.Status)))
		}
		pending, err := tx.Reschedules().HasPending(ctx, b.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperror.Conflict("a pending reschedule already exists for this booking")
		}

		ref, dates, field, err := s.resolveTarget(ctx, tx, b, in)
		if err != nil {
			return err
		}
		if ref == b.Inventory && dates.Equal(b.Span()) {
			return apperror.Validation("new target is the booking's current inventory and dates", field)
		}

		rs := &model.Reschedule{
			BookingID:        b.ID,
			Format:           b.Inventory.Format,
			OldInventoryID:   b.Inventory.ID,
			NewInventoryID:   ref.ID,
			OldStartDate:     b.StartDate,
			OldEndDate:       b.EndDate,
			NewStartDate:     dates.Start,
			NewEndDate:       dates.End,
			Units:            b.ReservedUnits,
			Reason:           strings.TrimSpace(in.Reason),
			Status:           model.ReschedulePending,
			PaymentStatus:    model.ReschedulePaymentNotRequired,
			InitiatedBy:      actor.UserID,
			InitiatorRole:    actor.Role,
			TargetOperatorID: b.OperatorID,
		}
		if err := tx.Reschedules().Create(ctx, rs); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperror.Conflict("a pending reschedule already exists for this booking")
			}
			return err
		}
		out = rs
		return nil
	})
	if err := s.finish(span, "reschedule.initiate", mapStoreErr(err, "reschedule"), logrus.Fields{"booking_id": in.BookingID}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"reschedule_id": out.ID, "booking_id": out.BookingID, "target": out.NewRef().String()}).Info("reschedule requested")

	ev := s.event(queue.RescheduleRequested, out, actor)
	ev.Data = map[string]any{
		"new_inventory": out.NewRef().String(),
		"new_dates":     out.NewSpan().String(),
	}
	s.publish(ctx, ev)
	return out, nil
}

// resolveTarget loads the new inventory record for the booking's format
// and checks its capacity. The units the booking already holds count as
// free when the target is the record it currently occupies.
func (s *RescheduleService) resolveTarget(ctx context.Context, tx store.Tx, b *model.Booking, in InitiateInput) (model.InventoryRef, model.DateSpan, string, error) {
	format := b.Inventory.Format
	var (
		id    uint64
		field string
	)
	switch format {
	case model.FormatBatch:
		id, field = in.NewBatchID, "newBatchId"
	case model.FormatSingleDaySlot:
		id, field = in.NewSlotID, "newSlotId"
	default:
		id, field = in.NewDateRangeID, "newDateRangeId"
		if id == 0 {
			id = b.Inventory.ID
		}
	}
	if id == 0 {
		return model.InventoryRef{}, model.DateSpan{}, field, apperror.MissingFields(field)
	}

	ref := model.RefFor(format, id)
	rec, err := tx.Inventory().Get(ctx, ref)
	if err != nil {
		return ref, model.DateSpan{}, field, mapStoreErr(err, inventoryName(format))
	}
	if rec.ListingID != b.ListingID {
		return ref, model.DateSpan{}, field, apperror.Validation("new "+inventoryName(format)+" belongs to a different listing", field)
	}

	span := rec.FixedSpan()
	if format.CallerDates() {
		span, err = callerSpan(in.NewStartDate, in.NewEndDate, rec.Window, "newRentalStartDate", "newRentalEndDate")
		if err != nil {
			return ref, model.DateSpan{}, field, err
		}
	}

	var held *model.DateSpan
	if ref == b.Inventory {
		old := b.Span()
		held = &old
	}
	if !rec.HasCapacityWithCredit(b.ReservedUnits, span, held) {
		return ref, span, field, apperror.InsufficientCapacity("not enough capacity left on the new " + inventoryName(format))
	}
	return ref, span, field, nil
}

// Review applies an admin decision. Approval runs the capacity swap in
// the same transaction, so a swap that fails leaves the request pending.
func (s *RescheduleService) Review(ctx context.Context, actor Actor, id uint64, in ReviewInput) (*model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.Review")
	if !actor.IsAdmin() {
		return nil, s.finish(span, "reschedule.review", apperror.Forbidden("admin role required"), nil)
	}
	if strings.TrimSpace(in.Decision) == "" {
		return nil, s.finish(span, "reschedule.review", apperror.MissingFields("decision"), nil)
	}
	decision, err := model.ParseDecision(in.Decision)
	if err != nil {
		return nil, s.finish(span, "reschedule.review",
			apperror.Validation("decision must be approved, approved_with_charge or rejected", "decision"), nil)
	}
	if decision == model.RescheduleApprovedWithCharge && (in.Fee == nil || *in.Fee <= 0) {
		return nil, s.finish(span, "reschedule.review",
			apperror.Validation("rescheduleFeeAmount must be positive for approved_with_charge", "rescheduleFeeAmount"), nil)
	}

	var out *model.Reschedule
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		rs, b, err := lockPair(ctx, tx, id)
		if err != nil {
			return err
		}
		if rs.Status != model.ReschedulePending {
			return apperror.Conflict("reschedule has already been reviewed")
		}
		now := s.now()
		rs.Status = decision
		rs.AdminNotes = in.AdminNotes
		rs.ReviewedBy = &actor.UserID
		rs.ReviewedAt = &now
		if decision == model.RescheduleApprovedWithCharge {
			rs.Fee = *in.Fee
			rs.IsPaymentRequired = true
			rs.PaymentStatus = model.ReschedulePaymentPending
		}
		if err := tx.Reschedules().Update(ctx, rs); err != nil {
			return err
		}
		if decision == model.RescheduleApproved {
			if err := s.process(ctx, tx, rs, b, now); err != nil {
				return err
			}
		}
		out = rs
		return nil
	})
	if err := s.finish(span, "reschedule.review", mapStoreErr(err, "reschedule"), logrus.Fields{"reschedule_id": id}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"reschedule_id": out.ID, "decision": out.Status, "fee": out.Fee.String()}).Info("reschedule reviewed")

	ev := s.event(queue.RescheduleReviewed, out, actor)
	ev.Data = map[string]any{"decision": string(out.Status), "fee": out.Fee.String()}
	events := []queue.Event{ev}
	if out.Processed() {
		events = append(events, s.processedEvent(out, actor))
	}
	s.publish(ctx, events...)
	return out, nil
}

// CompletePayment records the fee payment of an approved_with_charge
// request and runs the capacity swap. Only the booking's customer pays.
func (s *RescheduleService) CompletePayment(ctx context.Context, actor Actor, id uint64, in PayInput) (*model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.CompletePayment")
	if actor.Role != model.RoleCustomer {
		return nil, s.finish(span, "reschedule.pay", apperror.Forbidden("only the booking's customer can pay for a reschedule"), nil)
	}

	var out *model.Reschedule
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		rs, b, err := lockPair(ctx, tx, id)
		if err != nil {
			return err
		}
		c, err := tx.Customers().Get(ctx, b.CustomerID)
		if err != nil {
			return mapStoreErr(err, "customer")
		}
		if c.UserID != actor.UserID {
			return apperror.Forbidden("only the booking's customer can pay for a reschedule")
		}
		if rs.Status != model.RescheduleApprovedWithCharge || !rs.IsPaymentRequired {
			return apperror.Conflict("reschedule is not awaiting payment")
		}
		if rs.PaymentStatus == model.ReschedulePaymentPaid {
			return apperror.Conflict("reschedule fee has already been paid")
		}
		now := s.now()
		if err := s.process(ctx, tx, rs, b, now); err != nil {
			return err
		}
		ref := strings.TrimSpace(in.PaymentReference)
		if ref == "" {
			ref = "RSP-" + uuid.NewString()
		}
		note := fmt.Sprintf("reschedule fee %s paid on %s (ref %s)", rs.Fee, now.Format(time.RFC3339), ref)
		if rs.AdminNotes != nil && *rs.AdminNotes != "" {
			note = *rs.AdminNotes + "\n" + note
		}
		rs.PaymentStatus = model.ReschedulePaymentPaid
		rs.PaymentReference = &ref
		rs.PaidAt = &now
		rs.AdminNotes = &note
		if err := tx.Reschedules().Update(ctx, rs); err != nil {
			return err
		}
		out = rs
		return nil
	})
	if err := s.finish(span, "reschedule.pay", mapStoreErr(err, "reschedule"), logrus.Fields{"reschedule_id": id}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"reschedule_id": out.ID, "fee": out.Fee.String()}).Info("reschedule fee paid")
	s.publish(ctx, s.processedEvent(out, actor))
	return out, nil
}

// Cancel withdraws a pending request. Only its initiator or an admin may
// do so.
func (s *RescheduleService) Cancel(ctx context.Context, actor Actor, id uint64) (*model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.Cancel")
	var out *model.Reschedule
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		rs, _, err := lockPair(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !(rs.InitiatedBy == actor.UserID && rs.InitiatorRole == actor.Role) {
			return apperror.Forbidden("only the initiator or an admin can cancel a reschedule")
		}
		if rs.Status != model.ReschedulePending {
			return apperror.Conflict("only pending reschedules can be cancelled")
		}
		rs.Status = model.RescheduleCancelled
		if err := tx.Reschedules().Update(ctx, rs); err != nil {
			return err
		}
		out = rs
		return nil
	})
	if err := s.finish(span, "reschedule.cancel", mapStoreErr(err, "reschedule"), logrus.Fields{"reschedule_id": id}); err != nil {
		return nil, err
	}
	s.publish(ctx, s.event(queue.RescheduleCancelled, out, actor))
	return out, nil
}

// Get returns one request if the actor may see its booking.
func (s *RescheduleService) Get(ctx context.Context, actor Actor, id uint64) (*model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.Get")
	var out *model.Reschedule
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		rs, err := tx.Reschedules().Get(ctx, id)
		if err != nil {
			return mapStoreErr(err, "reschedule")
		}
		b, err := tx.Bookings().Get(ctx, rs.BookingID)
		if err != nil {
			return mapStoreErr(err, "booking")
		}
		if err := authorizeBooking(ctx, tx, actor, b); err != nil {
			return err
		}
		out = rs
		return nil
	})
	if err := s.finish(span, "reschedule.get", mapStoreErr(err, "reschedule"), logrus.Fields{"reschedule_id": id}); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByBooking returns every request made for a booking, newest first.
func (s *RescheduleService) ListByBooking(ctx context.Context, actor Actor, bookingID uint64) ([]model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.ListByBooking")
	var out []model.Reschedule
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		b, err := tx.Bookings().Get(ctx, bookingID)
		if err != nil {
			return mapStoreErr(err, "booking")
		}
		if err := authorizeBooking(ctx, tx, actor, b); err != nil {
			return err
		}
		out, err = tx.Reschedules().ListByBooking(ctx, bookingID)
		return err
	})
	if err := s.finish(span, "reschedule.list_booking", mapStoreErr(err, "reschedule"), logrus.Fields{"booking_id": bookingID}); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPending returns the admin review queue, oldest first.
func (s *RescheduleService) ListPending(ctx context.Context, actor Actor, page store.Page) ([]model.Reschedule, error) {
	ctx, span := s.start(ctx, "RescheduleService.ListPending")
	if !actor.IsAdmin() {
		return nil, s.finish(span, "reschedule.list_pending", apperror.Forbidden("admin role required"), nil)
	}
	var out []model.Reschedule
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Reschedules().ListPending(ctx, page)
		return err
	})
	if err := s.finish(span, "reschedule.list_pending", mapStoreErr(err, "reschedule"), nil); err != nil {
		return nil, err
	}
	return out, nil
}

// lockPair locks the booking first and the request second, the same
// order Initiate and booking cancellation take, so concurrent units of
// work queue up instead of deadlocking.
func lockPair(ctx context.Context, tx store.Tx, id uint64) (*model.Reschedule, *model.Booking, error) {
	peek, err := tx.Reschedules().Get(ctx, id)
	if err != nil {
		return nil, nil, mapStoreErr(err, "reschedule")
	}
	b, err := tx.Bookings().GetForUpdate(ctx, peek.BookingID)
	if err != nil {
		return nil, nil, mapStoreErr(err, "booking")
	}
	rs, err := tx.Reschedules().GetForUpdate(ctx, id)
	if err != nil {
		return nil, nil, mapStoreErr(err, "reschedule")
	}
	return rs, b, nil
}

// process swaps the booking's reservation from the old target to the new
// one. The processed marker is taken first, so a repeated call fails
// before any counter moves.
func (s *RescheduleService) process(ctx context.Context, tx store.Tx, rs *model.Reschedule, b *model.Booking, at time.Time) error {
	if b.Status != model.BookingConfirmed {
		return apperror.Conflict("booking is no longer active")
	}
	if b.Inventory != rs.OldRef() || !b.Span().Equal(rs.OldSpan()) {
		return apperror.Conflict("booking changed after the reschedule was requested")
	}
	if err := tx.Reschedules().MarkProcessed(ctx, rs.ID, at); err != nil {
		return mapStoreErr(err, "reschedule")
	}
	if err := tx.Inventory().Release(ctx, rs.OldRef(), rs.OldSpan(), rs.Units); err != nil {
		return apperror.Internal(fmt.Errorf("release %s: %w", rs.OldRef(), err))
	}
	if err := tx.Inventory().Reserve(ctx, rs.NewRef(), rs.NewSpan(), rs.Units); err != nil {
		return mapStoreErr(err, "the new "+inventoryName(rs.Format))
	}
	if err := tx.Bookings().Move(ctx, b.ID, rs.NewRef(), rs.NewSpan(), at); err != nil {
		return mapStoreErr(err, "booking")
	}
	rs.ProcessedAt = &at
	return nil
}

func (s *RescheduleService) event(typ string, rs *model.Reschedule, actor Actor) queue.Event {
	ev := queue.NewEvent(typ, rs.BookingID)
	ev.RescheduleID = rs.ID
	ev.ActorID, ev.ActorRole = actor.UserID, string(actor.Role)
	return ev
}

func (s *RescheduleService) processedEvent(rs *model.Reschedule, actor Actor) queue.Event {
	ev := s.event(queue.RescheduleProcessed, rs, actor)
	ev.Data = map[string]any{
		"old_inventory": rs.OldRef().String(),
		"new_inventory": rs.NewRef().String(),
		"new_dates":     rs.NewSpan().String(),
		"units":         rs.Units,
	}
	return ev
}
