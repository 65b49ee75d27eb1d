// Package store declares the persistence contracts the booking engine
// runs against. Every mutation happens inside Store.WithinTx; an error
// returned from the callback rolls the whole unit back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientCapacity is returned by a conditional decrement that
	// matched no row because too few units were left.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrCapacityOverflow is returned by a conditional increment that would
	// push the available count above the total capacity.
	ErrCapacityOverflow = errors.New("release exceeds total capacity")
	// ErrDuplicate is returned on a unique-key collision.
	ErrDuplicate = errors.New("duplicate key")
	// ErrAlreadyProcessed is returned when a reschedule's capacity swap has
	// already been applied.
	ErrAlreadyProcessed = errors.New("reschedule already processed")
)

// Store opens transactional units of work.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes repositories bound to one open transaction.
type Tx interface {
	Customers() CustomerRepository
	Listings() ListingRepository
	Inventory() InventoryRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Reschedules() RescheduleRepository
}

// Page bounds list queries. A zero Limit means DefaultLimit.
type Page struct {
	Limit  int
	Offset int
}

// DefaultLimit and MaxLimit cap list queries.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Normalize clamps the page into the allowed window.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// CustomerRepository reads customers.
type CustomerRepository interface {
	Get(ctx context.Context, id uint64) (*model.Customer, error)
}

// ListingRepository reads listings.
type ListingRepository interface {
	Get(ctx context.Context, id uint64) (*model.Listing, error)
}

// InventoryRepository resolves inventory records and moves their counters.
// Reserve and Release are single conditional statements per counter;
// implementations never read, compare and write back.
type InventoryRepository interface {
	Get(ctx context.Context, ref model.InventoryRef) (*model.InventoryRecord, error)
	// Reserve takes units over span or fails with ErrInsufficientCapacity.
	Reserve(ctx context.Context, ref model.InventoryRef, span model.DateSpan, units int) error
	// Release gives units back over span or fails with ErrCapacityOverflow.
	Release(ctx context.Context, ref model.InventoryRef, span model.DateSpan, units int) error
}

// BookingRepository persists bookings.
type BookingRepository interface {
	// Create inserts b and fills ID and timestamps. A reference collision
	// yields ErrDuplicate.
	Create(ctx context.Context, b *model.Booking) error
	Get(ctx context.Context, id uint64) (*model.Booking, error)
	// GetForUpdate reads and locks the booking until the transaction ends.
	GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	MarkCancelled(ctx context.Context, id uint64, at time.Time) error
	// Move points the booking at a new inventory record and dates.
	Move(ctx context.Context, id uint64, ref model.InventoryRef, span model.DateSpan, at time.Time) error
	ListByCustomer(ctx context.Context, customerID uint64, page Page) ([]model.Booking, error)
	ListByOperator(ctx context.Context, operatorID uint64, page Page) ([]model.Booking, error)
	ListAll(ctx context.Context, page Page) ([]model.Booking, error)
}

// PaymentRepository persists booking payment snapshots.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.BookingPayment) error
	GetByBooking(ctx context.Context, bookingID uint64) (*model.BookingPayment, error)
	ListByBookings(ctx context.Context, bookingIDs []uint64) (map[uint64]model.BookingPayment, error)
}

// RescheduleRepository persists reschedule requests.
type RescheduleRepository interface {
	// Create inserts r. A second pending row for the same booking yields
	// ErrDuplicate.
	Create(ctx context.Context, r *model.Reschedule) error
	Get(ctx context.Context, id uint64) (*model.Reschedule, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Reschedule, error)
	HasPending(ctx context.Context, bookingID uint64) (bool, error)
	// Update writes the mutable review and payment columns of r.
	Update(ctx context.Context, r *model.Reschedule) error
	// MarkProcessed sets processed_at only if it is still unset, failing
	// with ErrAlreadyProcessed otherwise.
	MarkProcessed(ctx context.Context, id uint64, at time.Time) error
	ListByBooking(ctx context.Context, bookingID uint64) ([]model.Reschedule, error)
	ListPending(ctx context.Context, page Page) ([]model.Reschedule, error)
	// CancelPendingForBooking cancels the booking's pending request, if any,
	// and returns the ids it cancelled.
	CancelPendingForBooking(ctx context.Context, bookingID uint64, at time.Time) ([]uint64, error)
}
