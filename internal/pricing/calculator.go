// Package pricing computes the authoritative payment breakdown of a
// booking. Every figure is an integer number of paise and the only
// rounding step is round-half-up on basis-point rates.
package pricing

import (
	"errors"
	"fmt"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
)

// DefaultTaxRateBP applies when a listing has no tax rate of its own.
const DefaultTaxRateBP = 1800

// ErrInvalidInput is matched by every InputError.
var ErrInvalidInput = errors.New("invalid pricing input")

// InputError names the input field that made the breakdown impossible.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Reason) }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalid(field, reason string) error { return &InputError{Field: field, Reason: reason} }

// Policy carries the platform-wide rates that are not set per listing.
type Policy struct {
	CommissionRateBP int
	TCSRateBP        int
}

// Input is everything the calculator needs. DayPrices, when present,
// replaces BasePrice × Quantity with the sum of the per-day prices and
// must have exactly Quantity entries.
type Input struct {
	Format           model.Format
	BasePrice        money.Amount
	Quantity         int
	DayPrices        []money.Amount
	AddonsAmount     money.Amount
	DiscountAmount   money.Amount
	AmountPaidOnline *money.Amount
	Method           model.PaymentMethod
	TaxRateBP        int
	AdvancePercent   int
	Policy           Policy
}

// Breakdown is the computed split of one booking's money.
type Breakdown struct {
	BasePrice              money.Amount
	Quantity               int
	SubtotalAmount         money.Amount
	AddonsAmount           money.Amount
	DiscountAmount         money.Amount
	TaxableAmount          money.Amount
	TaxRateBP              int
	TaxAmount              money.Amount
	TotalAmount            money.Amount
	AmountPaidOnline       money.Amount
	AmountToCollectOffline money.Amount
	CommissionRateBP       int
	PlatformCommission     money.Amount
	TCSRateBP              int
	TCSAmount              money.Amount
	SellerGrossEarnings    money.Amount
	NetPayableToSeller     money.Amount
}

// QuantityFor derives the priced quantity: participants for batch and
// single-day slots, inclusive day count for the rental formats.
func QuantityFor(f model.Format, participants, days int) int {
	if f.PerParticipant() {
		return participants
	}
	if days < 1 {
		return 1
	}
	return days
}

// rateOf applies a basis-point rate with round-half-up. amount must be
// non-negative.
func rateOf(amount money.Amount, bp int) money.Amount {
	return money.Amount((int64(amount)*int64(bp) + 5000) / 10000)
}

func validRate(bp int) bool { return bp >= 0 && bp <= 10000 }

// Calculate produces the breakdown for in or an *InputError.
func Calculate(in Input) (Breakdown, error) {
	if in.BasePrice <= 0 {
		return Breakdown{}, invalid("basePrice", "must be positive")
	}
	if in.Quantity <= 0 {
		return Breakdown{}, invalid("quantity", "must be positive")
	}
	if !validRate(in.TaxRateBP) {
		return Breakdown{}, invalid("taxRate", "must be between 0 and 10000 basis points")
	}
	if !validRate(in.Policy.CommissionRateBP) {
		return Breakdown{}, invalid("commissionRate", "must be between 0 and 10000 basis points")
	}
	if !validRate(in.Policy.TCSRateBP) {
		return Breakdown{}, invalid("tcsRate", "must be between 0 and 10000 basis points")
	}
	if in.AddonsAmount < 0 {
		return Breakdown{}, invalid("addonsAmount", "must not be negative")
	}
	if in.DiscountAmount < 0 {
		return Breakdown{}, invalid("discountAmount", "must not be negative")
	}

	var subtotal money.Amount
	if len(in.DayPrices) > 0 {
		if len(in.DayPrices) != in.Quantity {
			return Breakdown{}, invalid("dayPrices", "must have one entry per day")
		}
		for _, p := range in.DayPrices {
			if p <= 0 {
				return Breakdown{}, invalid("dayPrices", "every day price must be positive")
			}
			subtotal += p
		}
	} else {
		subtotal = in.BasePrice * money.Amount(in.Quantity)
	}

	taxable := subtotal + in.AddonsAmount - in.DiscountAmount
	if taxable < 0 {
		return Breakdown{}, invalid("discountAmount", "exceeds subtotal plus addons")
	}
	tax := rateOf(taxable, in.TaxRateBP)
	total := taxable + tax

	online, err := paidOnline(in, total)
	if err != nil {
		return Breakdown{}, err
	}
	offline := total - online
	if offline < 0 {
		offline = 0
	}

	commission := rateOf(subtotal, in.Policy.CommissionRateBP)
	tcs := rateOf(total, in.Policy.TCSRateBP)
	gross := subtotal + in.AddonsAmount - in.DiscountAmount

	return Breakdown{
		BasePrice:              in.BasePrice,
		Quantity:               in.Quantity,
		SubtotalAmount:         subtotal,
		AddonsAmount:           in.AddonsAmount,
		DiscountAmount:         in.DiscountAmount,
		TaxableAmount:          taxable,
		TaxRateBP:              in.TaxRateBP,
		TaxAmount:              tax,
		TotalAmount:            total,
		AmountPaidOnline:       online,
		AmountToCollectOffline: offline,
		CommissionRateBP:       in.Policy.CommissionRateBP,
		PlatformCommission:     commission,
		TCSRateBP:              in.Policy.TCSRateBP,
		TCSAmount:              tcs,
		SellerGrossEarnings:    gross,
		NetPayableToSeller:     gross - commission - tcs,
	}, nil
}

func paidOnline(in Input, total money.Amount) (money.Amount, error) {
	if in.AmountPaidOnline != nil {
		v := *in.AmountPaidOnline
		if v < 0 {
			return 0, invalid("amountPaidNow", "must not be negative")
		}
		if v > total {
			return 0, invalid("amountPaidNow", "exceeds total amount")
		}
		return v, nil
	}
	switch in.Method {
	case model.PaymentAtVenue:
		return 0, nil
	case model.PaymentPartial:
		if in.AdvancePercent < 0 || in.AdvancePercent > 100 {
			return 0, invalid("advancePercent", "must be between 0 and 100")
		}
		return money.Amount((int64(total)*int64(in.AdvancePercent) + 50) / 100), nil
	default:
		return total, nil
	}
}
