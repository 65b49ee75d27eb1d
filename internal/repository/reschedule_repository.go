package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/store"
)

// RescheduleRepo persists reschedule requests. The generated
// pending_booking_id column carries a unique key, so the database itself
// refuses a second pending request for one booking.
type RescheduleRepo struct{ q queryer }

const rescheduleColumns = `id, booking_id, inventory_format, old_inventory_id, new_inventory_id,
       old_start_date, old_end_date, new_start_date, new_end_date, units, reason, status,
       fee_paise, is_payment_required, payment_status, payment_reference, paid_at, admin_notes,
       reviewed_by, reviewed_at, processed_at, initiated_by, initiator_role, target_operator_id,
       created_at, updated_at`

func scanReschedule(s rowScanner) (*model.Reschedule, error) {
	var (
		rs                         model.Reschedule
		payRef, notes              sql.NullString
		paidAt, reviewedAt, procAt sql.NullTime
		reviewedBy                 sql.NullInt64
	)
	err := s.Scan(
		&rs.ID, &rs.BookingID, &rs.Format, &rs.OldInventoryID, &rs.NewInventoryID,
		&rs.OldStartDate, &rs.OldEndDate, &rs.NewStartDate, &rs.NewEndDate, &rs.Units, &rs.Reason, &rs.Status,
		&rs.Fee, &rs.IsPaymentRequired, &rs.PaymentStatus, &payRef, &paidAt, &notes,
		&reviewedBy, &reviewedAt, &procAt, &rs.InitiatedBy, &rs.InitiatorRole, &rs.TargetOperatorID,
		&rs.CreatedAt, &rs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rs.OldStartDate, rs.OldEndDate = model.DateOf(rs.OldStartDate), model.DateOf(rs.OldEndDate)
	rs.NewStartDate, rs.NewEndDate = model.DateOf(rs.NewStartDate), model.DateOf(rs.NewEndDate)
	rs.PaymentReference, rs.AdminNotes = stringFrom(payRef), stringFrom(notes)
	rs.PaidAt, rs.ReviewedAt, rs.ProcessedAt = timeFrom(paidAt), timeFrom(reviewedAt), timeFrom(procAt)
	rs.ReviewedBy = uintFrom(reviewedBy)
	return &rs, nil
}

// Create inserts rs. A second pending request for the same booking
// yields store.ErrDuplicate.
func (r *RescheduleRepo) Create(ctx context.Context, rs *model.Reschedule) error {
	now := time.Now().UTC().Truncate(time.Second)
	const q = `INSERT INTO reschedules (booking_id, inventory_format, old_inventory_id, new_inventory_id,
                   old_start_date, old_end_date, new_start_date, new_end_date, units, reason, status,
                   fee_paise, is_payment_required, payment_status, initiated_by, initiator_role,
                   target_operator_id, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, q,
		rs.BookingID, rs.Format, rs.OldInventoryID, rs.NewInventoryID,
		rs.OldStartDate, rs.OldEndDate, rs.NewStartDate, rs.NewEndDate, rs.Units, rs.Reason, rs.Status,
		rs.Fee, rs.IsPaymentRequired, rs.PaymentStatus, rs.InitiatedBy, rs.InitiatorRole,
		rs.TargetOperatorID, now, now,
	)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rs.ID = uint64(id)
	rs.CreatedAt, rs.UpdatedAt = now, now
	return nil
}

// Get returns the request or store.ErrNotFound.
func (r *RescheduleRepo) Get(ctx context.Context, id uint64) (*model.Reschedule, error) {
	rs, err := scanReschedule(r.q.QueryRowContext(ctx, `SELECT `+rescheduleColumns+` FROM reschedules WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return rs, nil
}

// GetForUpdate returns the request and holds its row lock.
func (r *RescheduleRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Reschedule, error) {
	rs, err := scanReschedule(r.q.QueryRowContext(ctx, `SELECT `+rescheduleColumns+` FROM reschedules WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return rs, nil
}

// HasPending reports whether the booking has a pending request.
func (r *RescheduleRepo) HasPending(ctx context.Context, bookingID uint64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reschedules WHERE booking_id = ? AND status = ?)`,
		bookingID, model.ReschedulePending).Scan(&exists)
	return exists, err
}

// Update writes the review and payment columns.
func (r *RescheduleRepo) Update(ctx context.Context, rs *model.Reschedule) error {
	now := time.Now().UTC().Truncate(time.Second)
	const q = `UPDATE reschedules
               SET status = ?, fee_paise = ?, is_payment_required = ?, payment_status = ?,
                   payment_reference = ?, paid_at = ?, admin_notes = ?, reviewed_by = ?, reviewed_at = ?,
                   updated_at = ?
               WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q,
		rs.Status, rs.Fee, rs.IsPaymentRequired, rs.PaymentStatus,
		nullString(rs.PaymentReference), nullTime(rs.PaidAt), nullString(rs.AdminNotes), nullUint(rs.ReviewedBy), nullTime(rs.ReviewedAt),
		now, rs.ID,
	)
	if err != nil {
		return mapError(err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	rs.UpdatedAt = now
	return nil
}

// MarkProcessed stamps processed_at once. A second call finds the guard
// already taken and returns store.ErrAlreadyProcessed.
func (r *RescheduleRepo) MarkProcessed(ctx context.Context, id uint64, at time.Time) error {
	const q = `UPDATE reschedules SET processed_at = ?, updated_at = ? WHERE id = ? AND processed_at IS NULL`
	res, err := r.q.ExecContext(ctx, q, at, at, id)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	if err := r.q.QueryRowContext(ctx, `SELECT 1 FROM reschedules WHERE id = ?`, id).Scan(&one); err != nil {
		return mapError(err)
	}
	return store.ErrAlreadyProcessed
}

// ListByBooking returns the booking's requests, newest first.
func (r *RescheduleRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Reschedule, error) {
	return r.list(ctx, `SELECT `+rescheduleColumns+` FROM reschedules WHERE booking_id = ? ORDER BY id DESC`, bookingID)
}

// ListPending returns pending requests, oldest first, for the review queue.
func (r *RescheduleRepo) ListPending(ctx context.Context, page store.Page) ([]model.Reschedule, error) {
	page = page.Normalize()
	return r.list(ctx, `SELECT `+rescheduleColumns+` FROM reschedules WHERE status = ? ORDER BY id ASC LIMIT ? OFFSET ?`,
		model.ReschedulePending, page.Limit, page.Offset)
}

func (r *RescheduleRepo) list(ctx context.Context, q string, args ...any) ([]model.Reschedule, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reschedule, 0)
	for rows.Next() {
		rs, err := scanReschedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rs)
	}
	return out, rows.Err()
}

// CancelPendingForBooking cancels the booking's pending request and
// returns its id. The rows are locked before the update so the ids match
// what was changed.
func (r *RescheduleRepo) CancelPendingForBooking(ctx context.Context, bookingID uint64, at time.Time) ([]uint64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM reschedules WHERE booking_id = ? AND status = ? FOR UPDATE`,
		bookingID, model.ReschedulePending)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `UPDATE reschedules SET status = ?, updated_at = ? WHERE booking_id = ? AND status = ?`
	if _, err := r.q.ExecContext(ctx, q, model.RescheduleCancelled, at, bookingID, model.ReschedulePending); err != nil {
		return nil, err
	}
	return ids, nil
}
