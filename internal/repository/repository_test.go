package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/obs"
	"github.com/iliyamo/booking-engine/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewStore(db, obs.Discard())
	s.backoff = time.Millisecond
	return s, mock
}

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWithinTxCommitsAndRollsBack(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, user_id, name, email FROM customers WHERE id = \?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "email"}).AddRow(7, 70, "Asha", "asha@example.com"))
	mock.ExpectCommit()

	var got *model.Customer
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		got, err = tx.Customers().Get(ctx, 7)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(70), got.UserID)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM customers WHERE id = \?`).WithArgs(8).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.Customers().Get(ctx, 8)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesDeadlock(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	deadlock := &mysql.MySQLError{Number: errDeadlock, Message: "Deadlock found"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE batch_slots SET available_count = COALESCE\(available_count, total_capacity\) - \?`).
		WithArgs(2, 5, 2).WillReturnError(deadlock)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE batch_slots SET available_count = COALESCE\(available_count, total_capacity\) - \?`).
		WithArgs(2, 5, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		calls++
		return tx.Inventory().Reserve(ctx, model.BatchSlot(5), model.SingleDay(day("2026-03-01")), 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxGivesUpAfterAttempts(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	timeout := &mysql.MySQLError{Number: errLockWaitTimeout, Message: "Lock wait timeout exceeded"}
	for i := 0; i < DefaultAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE date_ranges`).WillReturnError(timeout)
		mock.ExpectRollback()
	}
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.Inventory().Release(ctx, model.DateRange(3), model.SingleDay(day("2026-03-01")), 1)
	})
	assert.ErrorIs(t, err, timeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSingleCounterOutcomes(t *testing.T) {
	ctx := context.Background()
	span := model.SingleDay(day("2026-04-10"))

	t.Run("insufficient", func(t *testing.T) {
		db, mock2, _ := sqlmock.New()
		defer db.Close()
		mock2.ExpectBegin()
		tx, err := db.Begin()
		require.NoError(t, err)
		mock2.ExpectExec(`UPDATE slot_instances SET available_count = COALESCE\(available_count, total_capacity\) - \?`).
			WithArgs(3, 11, 3).WillReturnResult(sqlmock.NewResult(0, 0))
		mock2.ExpectQuery(`SELECT total_capacity FROM slot_instances WHERE id = \?`).
			WithArgs(11).WillReturnRows(sqlmock.NewRows([]string{"total_capacity"}).AddRow(10))
		repo := &InventoryRepo{q: tx}
		assert.ErrorIs(t, repo.Reserve(ctx, model.SlotInstance(11), span, 3), store.ErrInsufficientCapacity)
		assert.NoError(t, mock2.ExpectationsWereMet())
	})

	t.Run("untracked", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		mock.ExpectBegin()
		tx, _ := db.Begin()
		mock.ExpectExec(`UPDATE date_ranges`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT total_capacity FROM date_ranges`).
			WillReturnRows(sqlmock.NewRows([]string{"total_capacity"}).AddRow(nil))
		repo := &InventoryRepo{q: tx}
		assert.NoError(t, repo.Reserve(ctx, model.DateRange(4), span, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		mock.ExpectBegin()
		tx, _ := db.Begin()
		mock.ExpectExec(`UPDATE batch_slots`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT total_capacity FROM batch_slots`).WillReturnError(sql.ErrNoRows)
		repo := &InventoryRepo{q: tx}
		assert.ErrorIs(t, repo.Reserve(ctx, model.BatchSlot(99), span, 1), store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overflow on release", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		mock.ExpectBegin()
		tx, _ := db.Begin()
		mock.ExpectExec(`UPDATE batch_slots SET available_count = COALESCE\(available_count, total_capacity\) \+ \?`).
			WithArgs(2, 1, 2).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT total_capacity FROM batch_slots`).
			WillReturnRows(sqlmock.NewRows([]string{"total_capacity"}).AddRow(5))
		repo := &InventoryRepo{q: tx}
		assert.ErrorIs(t, repo.Release(ctx, model.BatchSlot(1), span, 2), store.ErrCapacityOverflow)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCounterWithoutStoredCountUsesCapacity(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	repo := &InventoryRepo{q: tx}

	mock.ExpectQuery(`SELECT listing_id, start_date, end_date, price_paise, total_capacity,\s+COALESCE\(available_count, total_capacity\)\s+FROM date_ranges`).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"listing_id", "start_date", "end_date", "price_paise", "total_capacity", "available_count"}).
			AddRow(20, day("2026-04-01"), day("2026-04-30"), nil, 5, 5))
	rec, err := repo.Get(ctx, model.DateRange(4))
	require.NoError(t, err)
	require.NotNil(t, rec.Available)
	assert.Equal(t, 5, *rec.Available)
	span := model.SingleDay(day("2026-04-10"))
	assert.True(t, rec.HasCapacity(1, span))

	mock.ExpectExec(`UPDATE date_ranges SET available_count = COALESCE\(available_count, total_capacity\) - \?\s+WHERE id = \? AND total_capacity IS NOT NULL AND COALESCE\(available_count, total_capacity\) >= \?`).
		WithArgs(1, 4, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Reserve(ctx, model.DateRange(4), span, 1))

	mock.ExpectExec(`UPDATE date_ranges SET available_count = COALESCE\(available_count, total_capacity\) \+ \?\s+WHERE id = \? AND total_capacity IS NOT NULL AND COALESCE\(available_count, total_capacity\) \+ \? <= total_capacity`).
		WithArgs(1, 4, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Release(ctx, model.DateRange(4), span, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRecurringStopsAtFirstFullDay(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	d1, d2 := day("2026-05-01"), day("2026-05-02")
	mock.ExpectQuery(`SELECT total_capacity FROM recurring_slots WHERE id = \? FOR UPDATE`).
		WithArgs(21).WillReturnRows(sqlmock.NewRows([]string{"total_capacity"}).AddRow(4))
	mock.ExpectExec(`INSERT IGNORE INTO recurring_slot_days`).WithArgs(21, d1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE recurring_slot_days`).WithArgs(int64(4), 1, 21, d1, int64(4), int64(4), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT IGNORE INTO recurring_slot_days`).WithArgs(21, d2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE recurring_slot_days`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(total_capacity, \?\) FROM recurring_slot_days`).
		WithArgs(int64(4), 21, d2).WillReturnRows(sqlmock.NewRows([]string{"cap"}).AddRow(2))

	span, err := model.NewDateSpan(d1, d2)
	require.NoError(t, err)
	repo := &InventoryRepo{q: tx}
	assert.ErrorIs(t, repo.Reserve(ctx, model.RecurringSlot(21), span, 1), store.ErrInsufficientCapacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecurringLoadsDayOverrides(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery(`FROM recurring_slots rs`).WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"listing_id", "start_date", "end_date", "price_paise", "total_capacity", "sd_id", "name", "st", "et"}).
			AddRow(3, day("2026-05-01"), day("2026-05-31"), 150000, 4, 8, "Morning", "06:00", "09:00"))
	mock.ExpectQuery(`FROM recurring_slot_days WHERE recurring_slot_id = \?`).WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"slot_date", "price_paise", "total_capacity", "available_count"}).
			AddRow(day("2026-05-02"), 200000, 2, nil))

	rec, err := (&InventoryRepo{q: tx}).Get(ctx, model.RecurringSlot(21))
	require.NoError(t, err)
	assert.Equal(t, "Morning", rec.Slot.Name)
	require.NotNil(t, rec.TotalOn(day("2026-05-02")))
	assert.Equal(t, 2, *rec.TotalOn(day("2026-05-02")))
	assert.Equal(t, 4, *rec.TotalOn(day("2026-05-03")))
	assert.Equal(t, int64(200000), rec.PriceOn(day("2026-05-02"), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func bookingRow() *sqlmock.Rows {
	cols := []string{"id", "booking_reference", "customer_id", "listing_id", "operator_id",
		"inventory_format", "inventory_id", "booking_start_date", "booking_end_date",
		"participant_count", "reserved_units", "total_days", "base_price_paise", "total_amount_paise",
		"status", "payment_method", "pricing", "participants", "contact_details", "selected_addons",
		"promo_code", "cancelled_at", "created_at", "updated_at"}
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(cols).AddRow(
		12, "BOK-2026-123456", 7, 3, 40,
		"batch", 5, day("2026-03-01"), day("2026-03-03"),
		2, 2, 3, 500000, 1180000,
		"CONFIRMED", "ONLINE",
		[]byte(`{"subtotal":10000,"totalAmount":11800}`),
		[]byte(`[{"name":"Asha"},{"name":"Ravi"}]`),
		[]byte(`{"name":"Asha","email":"asha@example.com","phone":"999"}`),
		[]byte(`[]`),
		nil, nil, now, now,
	)
}

func TestBookingGetDecodesJSONColumns(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery(`FROM bookings WHERE id = \? FOR UPDATE`).WithArgs(12).WillReturnRows(bookingRow())

	b, err := (&BookingRepo{q: tx}).GetForUpdate(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, model.BatchSlot(5), b.Inventory)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Len(t, b.Participants, 2)
	assert.Equal(t, "asha@example.com", b.Contact.Email)
	assert.EqualValues(t, 1180000, b.TotalAmount)
	assert.EqualValues(t, 1000000, b.Pricing.Subtotal)
	assert.Nil(t, b.PromoCode)
	assert.Equal(t, uint64(5), b.SlotID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCreateDuplicateReference(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnError(&mysql.MySQLError{Number: errDupEntry, Message: "Duplicate entry"})
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(31, 1))

	repo := &BookingRepo{q: tx}
	b := &model.Booking{Reference: "BOK-2026-000001", Inventory: model.BatchSlot(5), Status: model.BookingConfirmed}
	assert.ErrorIs(t, repo.Create(ctx, b), store.ErrDuplicate)

	b.Reference = "BOK-2026-000002"
	require.NoError(t, repo.Create(ctx, b))
	assert.Equal(t, uint64(31), b.ID)
	assert.False(t, b.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingMoveAndMissingRow(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	span, _ := model.NewDateSpan(day("2026-06-01"), day("2026-06-03"))
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("batch", 9, span.Start, span.End, 3, at, 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings SET status = \?`).
		WithArgs("CANCELLED", at, at, 77).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &BookingRepo{q: tx}
	require.NoError(t, repo.Move(ctx, 12, model.BatchSlot(9), span, at))
	assert.ErrorIs(t, repo.MarkCancelled(ctx, 77, at), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingListAppliesPage(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery(`FROM bookings WHERE customer_id = \? ORDER BY id DESC LIMIT \? OFFSET \?`).
		WithArgs(7, store.MaxLimit, 0).
		WillReturnRows(bookingRow())

	got, err := (&BookingRepo{q: tx}).ListByCustomer(ctx, 7, store.Page{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BOK-2026-123456", got[0].Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentsListByBookingsBuildsInList(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	cols := []string{"id", "booking_id", "base_price_paise", "quantity", "subtotal_paise", "addons_paise", "discount_paise",
		"taxable_paise", "tax_rate_bp", "tax_paise", "total_paise", "paid_online_paise", "collect_offline_paise",
		"commission_rate_bp", "commission_paise", "tcs_rate_bp", "tcs_paise", "seller_gross_paise", "net_payable_paise",
		"payment_method", "settlement_status", "created_at"}
	mock.ExpectQuery(`WHERE booking_id IN \(\?,\?\)`).WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			5, 2, 500000, 2, 1000000, 0, 0, 1000000, 1800, 180000, 1180000, 1180000, 0,
			1000, 100000, 100, 11800, 1000000, 888200, "ONLINE", "PENDING", time.Now(),
		))

	repo := &PaymentRepo{q: tx}
	got, err := repo.ListByBookings(ctx, []uint64{1, 2})
	require.NoError(t, err)
	require.Contains(t, got, uint64(2))
	assert.NotContains(t, got, uint64(1))
	assert.EqualValues(t, 888200, got[2].NetPayableToSeller)

	empty, err := repo.ListByBookings(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleMarkProcessedOnce(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE reschedules SET processed_at = \?`).WithArgs(at, at, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE reschedules SET processed_at = \?`).WithArgs(at, at, 4).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM reschedules WHERE id = \?`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(`UPDATE reschedules SET processed_at = \?`).WithArgs(at, at, 5).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM reschedules WHERE id = \?`).WithArgs(5).WillReturnError(sql.ErrNoRows)

	repo := &RescheduleRepo{q: tx}
	require.NoError(t, repo.MarkProcessed(ctx, 4, at))
	assert.ErrorIs(t, repo.MarkProcessed(ctx, 4, at), store.ErrAlreadyProcessed)
	assert.ErrorIs(t, repo.MarkProcessed(ctx, 5, at), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleCreateSecondPendingIsDuplicate(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO reschedules`).
		WillReturnError(&mysql.MySQLError{Number: errDupEntry, Message: "Duplicate entry '12' for key 'uq_reschedules_one_pending'"})

	rs := &model.Reschedule{BookingID: 12, Format: model.FormatBatch, Status: model.ReschedulePending}
	err = (&RescheduleRepo{q: tx}).Create(ctx, rs)
	assert.True(t, errors.Is(err, store.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingForBooking(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id FROM reschedules WHERE booking_id = \? AND status = \? FOR UPDATE`).
		WithArgs(12, "pending").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(44))
	mock.ExpectExec(`UPDATE reschedules SET status = \?, updated_at = \? WHERE booking_id = \?`).
		WithArgs("cancelled", at, 12, "pending").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM reschedules`).WithArgs(13, "pending").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := &RescheduleRepo{q: tx}
	ids, err := repo.CancelPendingForBooking(ctx, 12, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{44}, ids)

	ids, err = repo.CancelPendingForBooking(ctx, 13, at)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(sql.ErrNoRows), store.ErrNotFound)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: errDupEntry}), store.ErrDuplicate)
	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
	assert.True(t, retryable(&mysql.MySQLError{Number: errDeadlock}))
	assert.False(t, retryable(&mysql.MySQLError{Number: errDupEntry}))
}
