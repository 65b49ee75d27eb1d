package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/store"
)

// BookingRepo persists bookings. Pricing, participants, contact details
// and add-ons are JSON columns written once at creation.
type BookingRepo struct{ q queryer }

const bookingColumns = `id, booking_reference, customer_id, listing_id, operator_id,
       inventory_format, inventory_id, booking_start_date, booking_end_date,
       participant_count, reserved_units, total_days, base_price_paise, total_amount_paise,
       status, payment_method, pricing, participants, contact_details, selected_addons,
       promo_code, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b                               model.Booking
		pricing, parts, contact, addons []byte
		promo                           sql.NullString
		cancelled                       sql.NullTime
	)
	err := s.Scan(
		&b.ID, &b.Reference, &b.CustomerID, &b.ListingID, &b.OperatorID,
		&b.Inventory.Format, &b.Inventory.ID, &b.StartDate, &b.EndDate,
		&b.ParticipantCount, &b.ReservedUnits, &b.TotalDays, &b.BasePrice, &b.TotalAmount,
		&b.Status, &b.PaymentMethod, &pricing, &parts, &contact, &addons,
		&promo, &cancelled, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		raw  []byte
		dest any
	}{{pricing, &b.Pricing}, {parts, &b.Participants}, {contact, &b.Contact}, {addons, &b.Addons}} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return nil, fmt.Errorf("decode booking %d: %w", b.ID, err)
		}
	}
	b.StartDate, b.EndDate = model.DateOf(b.StartDate), model.DateOf(b.EndDate)
	b.PromoCode = stringFrom(promo)
	b.CancelledAt = timeFrom(cancelled)
	return &b, nil
}

// Create inserts b and fills in its id and timestamps.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	pricing, err := json.Marshal(b.Pricing)
	if err != nil {
		return err
	}
	if b.Participants == nil {
		b.Participants = []model.Participant{}
	}
	if b.Addons == nil {
		b.Addons = []model.SelectedAddon{}
	}
	parts, err := json.Marshal(b.Participants)
	if err != nil {
		return err
	}
	contact, err := json.Marshal(b.Contact)
	if err != nil {
		return err
	}
	addons, err := json.Marshal(b.Addons)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	const q = `INSERT INTO bookings (booking_reference, customer_id, listing_id, operator_id,
                   inventory_format, inventory_id, booking_start_date, booking_end_date,
                   participant_count, reserved_units, total_days, base_price_paise, total_amount_paise,
                   status, payment_method, pricing, participants, contact_details, selected_addons,
                   promo_code, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, q,
		b.Reference, b.CustomerID, b.ListingID, b.OperatorID,
		b.Inventory.Format, b.Inventory.ID, b.StartDate, b.EndDate,
		b.ParticipantCount, b.ReservedUnits, b.TotalDays, b.BasePrice, b.TotalAmount,
		b.Status, b.PaymentMethod, pricing, parts, contact, addons,
		nullString(b.PromoCode), now, now,
	)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// Get returns the booking or store.ErrNotFound.
func (r *BookingRepo) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

// GetForUpdate returns the booking and holds its row lock until the
// transaction ends.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

// MarkCancelled flips the booking to CANCELLED.
func (r *BookingRepo) MarkCancelled(ctx context.Context, id uint64, at time.Time) error {
	const q = `UPDATE bookings SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, q, model.BookingCancelled, at, at, id)
}

// Move repoints the booking at ref and span.
func (r *BookingRepo) Move(ctx context.Context, id uint64, ref model.InventoryRef, span model.DateSpan, at time.Time) error {
	const q = `UPDATE bookings
               SET inventory_format = ?, inventory_id = ?, booking_start_date = ?, booking_end_date = ?,
                   total_days = ?, updated_at = ?
               WHERE id = ?`
	return r.exec(ctx, q, ref.Format, ref.ID, span.Start, span.End, span.Days(), at, id)
}

func (r *BookingRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListByCustomer returns the customer's bookings, newest first.
func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID uint64, page store.Page) ([]model.Booking, error) {
	return r.list(ctx, `WHERE customer_id = ?`, page, customerID)
}

// ListByOperator returns bookings on the operator's listings, newest first.
func (r *BookingRepo) ListByOperator(ctx context.Context, operatorID uint64, page store.Page) ([]model.Booking, error) {
	return r.list(ctx, `WHERE operator_id = ?`, page, operatorID)
}

// ListAll returns every booking, newest first.
func (r *BookingRepo) ListAll(ctx context.Context, page store.Page) ([]model.Booking, error) {
	return r.list(ctx, ``, page)
}

func (r *BookingRepo) list(ctx context.Context, where string, page store.Page, args ...any) ([]model.Booking, error) {
	page = page.Normalize()
	q := `SELECT ` + bookingColumns + ` FROM bookings ` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := r.q.QueryContext(ctx, q, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
