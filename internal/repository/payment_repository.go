package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
)

// PaymentRepo persists the payment breakdown stored next to each booking.
type PaymentRepo struct{ q queryer }

const paymentColumns = `id, booking_id, base_price_paise, quantity, subtotal_paise, addons_paise, discount_paise,
       taxable_paise, tax_rate_bp, tax_paise, total_paise, paid_online_paise, collect_offline_paise,
       commission_rate_bp, commission_paise, tcs_rate_bp, tcs_paise, seller_gross_paise, net_payable_paise,
       payment_method, settlement_status, created_at`

func scanPayment(s rowScanner) (*model.BookingPayment, error) {
	var p model.BookingPayment
	err := s.Scan(
		&p.ID, &p.BookingID, &p.BasePrice, &p.Quantity, &p.SubtotalAmount, &p.AddonsAmount, &p.DiscountAmount,
		&p.TaxableAmount, &p.TaxRateBP, &p.TaxAmount, &p.TotalAmount, &p.AmountPaidOnline, &p.AmountToCollectOffline,
		&p.CommissionRateBP, &p.PlatformCommission, &p.TCSRateBP, &p.TCSAmount, &p.SellerGrossEarnings, &p.NetPayableToSeller,
		&p.PaymentMethod, &p.SettlementStatus, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p. A second row for the same booking yields
// store.ErrDuplicate.
func (r *PaymentRepo) Create(ctx context.Context, p *model.BookingPayment) error {
	if p.SettlementStatus == "" {
		p.SettlementStatus = model.SettlementPending
	}
	now := time.Now().UTC().Truncate(time.Second)
	const q = `INSERT INTO booking_payments (booking_id, base_price_paise, quantity, subtotal_paise, addons_paise,
                   discount_paise, taxable_paise, tax_rate_bp, tax_paise, total_paise, paid_online_paise,
                   collect_offline_paise, commission_rate_bp, commission_paise, tcs_rate_bp, tcs_paise,
                   seller_gross_paise, net_payable_paise, payment_method, settlement_status, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, q,
		p.BookingID, p.BasePrice, p.Quantity, p.SubtotalAmount, p.AddonsAmount,
		p.DiscountAmount, p.TaxableAmount, p.TaxRateBP, p.TaxAmount, p.TotalAmount, p.AmountPaidOnline,
		p.AmountToCollectOffline, p.CommissionRateBP, p.PlatformCommission, p.TCSRateBP, p.TCSAmount,
		p.SellerGrossEarnings, p.NetPayableToSeller, p.PaymentMethod, p.SettlementStatus, now,
	)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = now
	return nil
}

// GetByBooking returns the payment row of a booking or store.ErrNotFound.
func (r *PaymentRepo) GetByBooking(ctx context.Context, bookingID uint64) (*model.BookingPayment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM booking_payments WHERE booking_id = ?`, bookingID))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// ListByBookings loads the payment rows of several bookings in one query,
// keyed by booking id. Bookings without a row are absent from the map.
func (r *PaymentRepo) ListByBookings(ctx context.Context, bookingIDs []uint64) (map[uint64]model.BookingPayment, error) {
	out := make(map[uint64]model.BookingPayment, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(bookingIDs)), ",")
	args := make([]any, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		args = append(args, id)
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+paymentColumns+` FROM booking_payments WHERE booking_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out[p.BookingID] = *p
	}
	return out, rows.Err()
}
