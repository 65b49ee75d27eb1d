package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/booking-engine/internal/money"
)

// PaymentMethod selects how much of the total is taken online.
type PaymentMethod string

const (
	// PaymentOnline takes the full total online.
	PaymentOnline PaymentMethod = "ONLINE"
	// PaymentPartial takes the listing's advance percentage online.
	PaymentPartial PaymentMethod = "PARTIAL"
	// PaymentAtVenue takes nothing online.
	PaymentAtVenue PaymentMethod = "PAY_AT_VENUE"
)

// ParsePaymentMethod accepts the method name in any case; an empty
// string defaults to ONLINE.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return PaymentOnline, nil
	case PaymentOnline, PaymentPartial, PaymentAtVenue:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// SettlementStatus is the payout state of a booking payment. Transitions
// after PENDING happen in the settlement system.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "PENDING"
	SettlementSettled SettlementStatus = "SETTLED"
)

// BookingPayment models the `booking_payments` table: the immutable
// accounting snapshot written together with its booking.
type BookingPayment struct {
	ID                     uint64           // booking_payments.id
	BookingID              uint64           // booking_payments.booking_id (unique)
	BasePrice              money.Amount     // base_price_paise
	Quantity               int              // quantity
	SubtotalAmount         money.Amount     // subtotal_paise
	AddonsAmount           money.Amount     // addons_paise
	DiscountAmount         money.Amount     // discount_paise
	TaxableAmount          money.Amount     // taxable_paise
	TaxRateBP              int              // tax_rate_bp
	TaxAmount              money.Amount     // tax_paise
	TotalAmount            money.Amount     // total_paise
	AmountPaidOnline       money.Amount     // paid_online_paise
	AmountToCollectOffline money.Amount     // collect_offline_paise
	CommissionRateBP       int              // commission_rate_bp
	PlatformCommission     money.Amount     // commission_paise
	TCSRateBP              int              // tcs_rate_bp
	TCSAmount              money.Amount     // tcs_paise
	SellerGrossEarnings    money.Amount     // seller_gross_paise
	NetPayableToSeller     money.Amount     // net_payable_paise
	PaymentMethod          PaymentMethod    // payment_method
	SettlementStatus       SettlementStatus // settlement_status
	CreatedAt              time.Time        // created_at
}
