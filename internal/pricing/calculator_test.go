package pricing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
)

var policy = Policy{CommissionRateBP: 1000, TCSRateBP: 100}

func TestBreakdownTwoParticipantsEighteenPercent(t *testing.T) {
	b, err := Calculate(Input{
		Format:    model.FormatBatch,
		BasePrice: 500000,
		Quantity:  2,
		TaxRateBP: DefaultTaxRateBP,
		Policy:    policy,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(1000000), b.SubtotalAmount)
	assert.Equal(t, money.Amount(180000), b.TaxAmount)
	assert.Equal(t, money.Amount(1180000), b.TotalAmount)
	assert.Equal(t, money.Amount(1180000), b.AmountPaidOnline)
	assert.Zero(t, b.AmountToCollectOffline)
	assert.Equal(t, money.Amount(100000), b.PlatformCommission)
	assert.Equal(t, money.Amount(11800), b.TCSAmount)
	assert.Equal(t, money.Amount(1000000), b.SellerGrossEarnings)
	assert.Equal(t, money.Amount(888200), b.NetPayableToSeller)
}

func TestTaxRoundsHalfUp(t *testing.T) {
	// 250 * 18% = 45.0, 25 * 18% = 4.5 -> 5, 24 * 18% = 4.32 -> 4
	for base, want := range map[money.Amount]money.Amount{250: 45, 25: 5, 24: 4} {
		b, err := Calculate(Input{BasePrice: base, Quantity: 1, TaxRateBP: 1800})
		require.NoError(t, err)
		assert.Equal(t, want, b.TaxAmount, "base %d", base)
	}
}

func TestPaymentMethods(t *testing.T) {
	in := Input{BasePrice: 10001, Quantity: 1, TaxRateBP: 0}

	in.Method = model.PaymentAtVenue
	b, err := Calculate(in)
	require.NoError(t, err)
	assert.Zero(t, b.AmountPaidOnline)
	assert.Equal(t, money.Amount(10001), b.AmountToCollectOffline)

	in.Method = model.PaymentPartial
	in.AdvancePercent = 25
	b, err = Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(2500), b.AmountPaidOnline)
	assert.Equal(t, money.Amount(7501), b.AmountToCollectOffline)

	paid := money.Amount(4000)
	in.AmountPaidOnline = &paid
	b, err = Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(4000), b.AmountPaidOnline)
	assert.Equal(t, money.Amount(6001), b.AmountToCollectOffline)
}

func TestDayPricesSum(t *testing.T) {
	b, err := Calculate(Input{
		Format:    model.FormatRecurringSlotRental,
		BasePrice: 1000,
		Quantity:  3,
		DayPrices: []money.Amount{1000, 1500, 1000},
		TaxRateBP: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(3500), b.SubtotalAmount)

	_, err = Calculate(Input{BasePrice: 1000, Quantity: 2, DayPrices: []money.Amount{1000}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInvalidInput(t *testing.T) {
	over := money.Amount(2000)
	cases := map[string]Input{
		"basePrice":      {BasePrice: 0, Quantity: 1},
		"quantity":       {BasePrice: 100, Quantity: 0},
		"taxRate":        {BasePrice: 100, Quantity: 1, TaxRateBP: 10001},
		"discountAmount": {BasePrice: 100, Quantity: 1, DiscountAmount: 101},
		"amountPaidNow":  {BasePrice: 100, Quantity: 1, AmountPaidOnline: &over},
	}
	for field, in := range cases {
		_, err := Calculate(in)
		require.ErrorIs(t, err, ErrInvalidInput, field)
		var ie *InputError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, field, ie.Field)
	}
	_, err := Calculate(Input{BasePrice: 100, Quantity: 1, TaxRateBP: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBreakdownExactness(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	methods := []model.PaymentMethod{model.PaymentOnline, model.PaymentPartial, model.PaymentAtVenue}
	for i := 0; i < 2000; i++ {
		base := money.Amount(r.Int63n(10_000_000) + 1)
		qty := r.Intn(20) + 1
		addons := money.Amount(r.Int63n(100_000))
		subtotal := base * money.Amount(qty)
		discount := money.Amount(r.Int63n(int64(subtotal+addons) + 1))
		in := Input{
			BasePrice:      base,
			Quantity:       qty,
			AddonsAmount:   addons,
			DiscountAmount: discount,
			TaxRateBP:      r.Intn(10001),
			Method:         methods[r.Intn(len(methods))],
			AdvancePercent: r.Intn(101),
			Policy:         policy,
		}
		b, err := Calculate(in)
		require.NoError(t, err)
		assert.Equal(t, b.TotalAmount, b.SubtotalAmount+b.AddonsAmount+b.TaxAmount-b.DiscountAmount)
		assert.Equal(t, b.TotalAmount, b.AmountPaidOnline+b.AmountToCollectOffline)
		assert.Equal(t, b.SellerGrossEarnings-b.PlatformCommission-b.TCSAmount, b.NetPayableToSeller)
		assert.GreaterOrEqual(t, int64(b.AmountToCollectOffline), int64(0))
	}
}

func TestQuantityFor(t *testing.T) {
	assert.Equal(t, 3, QuantityFor(model.FormatBatch, 3, 5))
	assert.Equal(t, 3, QuantityFor(model.FormatSingleDaySlot, 3, 1))
	assert.Equal(t, 5, QuantityFor(model.FormatDayWiseRental, 3, 5))
	assert.Equal(t, 1, QuantityFor(model.FormatRecurringSlotRental, 3, 0))
}
