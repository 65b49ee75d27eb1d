package model

import (
	"time"

	"github.com/iliyamo/booking-engine/internal/money"
)

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Participant is one attendee captured with the booking. Participants,
// contact details and addons are stored as JSON columns on the row.
type Participant struct {
	Name   string `json:"name"`
	Age    int    `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
}

// ContactDetails is the booker's contact block.
type ContactDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Add-on bounds accepted at checkout. Sums built within them stay inside
// the int64 paise range.
const (
	MaxAddonQuantity = 1000
	MaxAddonPrice    = money.Amount(1_000_000_000)  // ₹1 crore
	MaxAddonsTotal   = money.Amount(10_000_000_000) // ₹10 crore
)

// SelectedAddon is one optional extra chosen at checkout.
type SelectedAddon struct {
	ID       uint64       `json:"id"`
	Name     string       `json:"name" validate:"max=200"`
	Price    money.Amount `json:"price" validate:"gte=0,lte=1000000000"`
	Quantity int          `json:"quantity" validate:"gte=0,lte=1000"`
}

// Total returns price × quantity (quantity defaults to 1).
func (a SelectedAddon) Total() money.Amount {
	q := a.Quantity
	if q <= 0 {
		q = 1
	}
	return a.Price * money.Amount(q)
}

// PricingSnapshot is the customer-facing summary of the breakdown,
// embedded in the booking row.
type PricingSnapshot struct {
	Subtotal       money.Amount `json:"subtotal"`
	AddonsTotal    money.Amount `json:"addonsTotal"`
	TaxAmount      money.Amount `json:"taxAmount"`
	DiscountAmount money.Amount `json:"discountAmount"`
	TotalAmount    money.Amount `json:"totalAmount"`
	AmountPaidNow  money.Amount `json:"amountPaidNow"`
	PendingAtVenue money.Amount `json:"amountPendingAtVenue"`
}

// Booking represents a row in the `bookings` table.
//
// Fields:
//
//	ID            – primary key
//	Reference     – human readable BOK-<year>-<digits>, unique
//	CustomerID    – booking customer
//	ListingID     – listing the capacity belongs to
//	OperatorID    – listing operator, denormalised for operator listings
//	Inventory     – the one inventory record this booking consumes
//	StartDate     – first booked date
//	EndDate       – last booked date (inclusive)
//	ReservedUnits – units taken from the inventory record, mirrored on release
type Booking struct {
	ID               uint64          // bookings.id
	Reference        string          // bookings.booking_reference
	CustomerID       uint64          // bookings.customer_id
	ListingID        uint64          // bookings.listing_id
	OperatorID       uint64          // bookings.operator_id
	Inventory        InventoryRef    // bookings.inventory_format + inventory_id
	StartDate        time.Time       // bookings.booking_start_date
	EndDate          time.Time       // bookings.booking_end_date
	ParticipantCount int             // bookings.participant_count
	ReservedUnits    int             // bookings.reserved_units
	TotalDays        int             // bookings.total_days
	BasePrice        money.Amount    // bookings.base_price_paise
	TotalAmount      money.Amount    // bookings.total_amount_paise
	Status           BookingStatus   // bookings.status
	PaymentMethod    PaymentMethod   // bookings.payment_method
	Pricing          PricingSnapshot // bookings.pricing (JSON)
	Participants     []Participant   // bookings.participants (JSON)
	Contact          ContactDetails  // bookings.contact_details (JSON)
	Addons           []SelectedAddon // bookings.selected_addons (JSON)
	PromoCode        *string         // bookings.promo_code
	CancelledAt      *time.Time      // bookings.cancelled_at
	CreatedAt        time.Time       // bookings.created_at
	UpdatedAt        time.Time       // bookings.updated_at
}

// Span returns the booked dates.
func (b Booking) Span() DateSpan { return DateSpan{Start: b.StartDate, End: b.EndDate} }

// SlotID returns the inventory id when the booking consumes a slot
// (batch or single-day slot), otherwise 0.
func (b Booking) SlotID() uint64 {
	if b.Inventory.Format.PerParticipant() {
		return b.Inventory.ID
	}
	return 0
}

// DateRangeID returns the inventory id when the booking consumes a date
// range (either rental format), otherwise 0.
func (b Booking) DateRangeID() uint64 {
	if b.Inventory.Format.CallerDates() {
		return b.Inventory.ID
	}
	return 0
}
