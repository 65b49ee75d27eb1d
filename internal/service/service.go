// Package service holds the booking engine and the reschedule state
// machine. Every mutation runs as one store transaction; events are
// published only after the transaction has committed.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/booking-engine/internal/apperror"
	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/pricing"
	"github.com/iliyamo/booking-engine/internal/queue"
	"github.com/iliyamo/booking-engine/internal/store"
)

var tracer = otel.Tracer("github.com/iliyamo/booking-engine/internal/service")

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Role   model.Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// EventPublisher delivers domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// PricingPolicy holds the platform defaults applied when a listing does
// not carry its own rates.
type PricingPolicy struct {
	DefaultTaxRateBP      int
	CommissionRateBP      int
	TCSRateBP             int
	DefaultAdvancePercent int
}

// DefaultPricingPolicy is 18% tax, 10% commission, 1% TCS and full
// payment up front.
var DefaultPricingPolicy = PricingPolicy{
	DefaultTaxRateBP:      pricing.DefaultTaxRateBP,
	CommissionRateBP:      1000,
	TCSRateBP:             100,
	DefaultAdvancePercent: 100,
}

// base carries what both services share.
type base struct {
	store store.Store
	pub   EventPublisher
	log   *logrus.Logger
	now   func() time.Time
}

func newBase(st store.Store, pub EventPublisher, log *logrus.Logger) base {
	if pub == nil {
		pub = queue.Nop{}
	}
	return base{store: st, pub: pub, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (b base) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op)
}

// finish records err on the span, logs internal failures with their
// cause and returns err as an *apperror.Error.
func (b base) finish(span trace.Span, op string, err error, fields logrus.Fields) error {
	defer span.End()
	if err == nil {
		return nil
	}
	ae := apperror.From(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, ae.Message)
	if ae.Kind == apperror.KindInternal {
		b.log.WithFields(fields).WithField("op", op).WithError(err).Error("operation failed")
	}
	return ae
}

// publish sends events after commit. Delivery failures are logged and
// never reach the caller.
func (b base) publish(ctx context.Context, events ...queue.Event) {
	for _, ev := range events {
		if err := b.pub.Publish(ctx, ev); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"event":      ev.Type,
				"booking_id": ev.BookingID,
			}).Warn("event publish failed")
		}
	}
}

// mapStoreErr turns repository sentinels into domain errors. what names
// the entity for not-found messages.
func mapStoreErr(err error, what string) error {
	var ae *apperror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, store.ErrNotFound):
		return apperror.NotFound(what)
	case errors.Is(err, store.ErrInsufficientCapacity):
		return apperror.InsufficientCapacity("not enough capacity left on " + what)
	case errors.Is(err, store.ErrDuplicate):
		return apperror.Conflict(what + " already exists")
	case errors.Is(err, store.ErrAlreadyProcessed):
		return apperror.Conflict("reschedule has already been processed")
	}
	return apperror.Internal(err)
}

// authorizeBooking lets admins through, operators through for bookings on
// their listings and customers through for their own bookings.
func authorizeBooking(ctx context.Context, tx store.Tx, actor Actor, b *model.Booking) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleOperator:
		if b.OperatorID == actor.UserID {
			return nil
		}
	case model.RoleCustomer:
		c, err := tx.Customers().Get(ctx, b.CustomerID)
		if err != nil {
			return mapStoreErr(err, "customer")
		}
		if c.UserID == actor.UserID {
			return nil
		}
	}
	return apperror.Forbidden("not allowed to access this booking")
}

// inventoryName is the caller-facing name of a format's inventory record.
func inventoryName(f model.Format) string {
	switch f {
	case model.FormatBatch:
		return "batch slot"
	case model.FormatSingleDaySlot:
		return "slot"
	case model.FormatRecurringSlotRental:
		return "recurring slot"
	}
	return "date range"
}

// NewReference returns a booking reference of the form BOK-<year>-<6 digits>.
func NewReference(at time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BOK-%d-%06d", at.Year(), n.Int64()), nil
}
