package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/booking-engine/internal/model"
)

// CustomerRepo reads the customers table.
type CustomerRepo struct{ q queryer }

// Get returns the customer with the given id or store.ErrNotFound.
func (r *CustomerRepo) Get(ctx context.Context, id uint64) (*model.Customer, error) {
	const q = `SELECT id, user_id, name, email FROM customers WHERE id = ?`
	var c model.Customer
	if err := r.q.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.UserID, &c.Name, &c.Email); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

// ListingRepo reads the listings table.
type ListingRepo struct{ q queryer }

// Get returns the listing with the given id or store.ErrNotFound. The
// optional rate columns stay nil when unset so the pricing policy
// defaults apply.
func (r *ListingRepo) Get(ctx context.Context, id uint64) (*model.Listing, error) {
	const q = `SELECT id, operator_id, title, booking_format, base_price_paise,
                      tax_rate_bp, advance_percent, commission_rate_bp
               FROM listings WHERE id = ?`
	var (
		l                     model.Listing
		tax, advance, commiss sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx, q, id).Scan(
		&l.ID, &l.OperatorID, &l.Title, &l.Format, &l.BasePrice,
		&tax, &advance, &commiss,
	)
	if err != nil {
		return nil, mapError(err)
	}
	l.TaxRateBP = intFrom(tax)
	l.AdvancePercent = intFrom(advance)
	l.CommissionRateBP = intFrom(commiss)
	return &l, nil
}
