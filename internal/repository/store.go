package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/booking-engine/internal/store"
)

// queryer is the subset of *sql.Tx the repositories use.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DefaultAttempts is how often a unit of work runs before a deadlock or
// lock wait timeout is surfaced.
const DefaultAttempts = 3

// Store runs units of work in MySQL transactions.
type Store struct {
	db       *sql.DB
	log      *logrus.Logger
	attempts int
	backoff  time.Duration
}

// NewStore returns a Store over db.
func NewStore(db *sql.DB, log *logrus.Logger) *Store {
	return &Store{db: db, log: log, attempts: DefaultAttempts, backoff: 25 * time.Millisecond}
}

// WithinTx runs fn inside a transaction and commits when it returns nil.
// A transaction that InnoDB aborts as a deadlock victim or after a lock
// wait timeout is replayed from the start, so fn must not keep state
// across calls.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !retryable(err) || attempt == s.attempts {
			return err
		}
		s.log.WithError(err).WithField("attempt", attempt).Warn("mysql: transaction aborted by lock conflict, retrying")
		t := time.NewTimer(s.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func (s *Store) runOnce(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&tx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type tx struct{ q queryer }

func (t *tx) Customers() store.CustomerRepository     { return &CustomerRepo{q: t.q} }
func (t *tx) Listings() store.ListingRepository       { return &ListingRepo{q: t.q} }
func (t *tx) Inventory() store.InventoryRepository    { return &InventoryRepo{q: t.q} }
func (t *tx) Bookings() store.BookingRepository       { return &BookingRepo{q: t.q} }
func (t *tx) Payments() store.PaymentRepository       { return &PaymentRepo{q: t.q} }
func (t *tx) Reschedules() store.RescheduleRepository { return &RescheduleRepo{q: t.q} }

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullUint(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func intFrom(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func int64From(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func uintFrom(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func stringFrom(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func timeFrom(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}

// affected returns RowsAffected; the DSN sets clientFoundRows so this is
// the number of matched rows.
func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
