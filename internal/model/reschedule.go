package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/booking-engine/internal/money"
)

// RescheduleStatus is the state of a reschedule request.
type RescheduleStatus string

const (
	ReschedulePending            RescheduleStatus = "pending"
	RescheduleApproved           RescheduleStatus = "approved"
	RescheduleApprovedWithCharge RescheduleStatus = "approved_with_charge"
	RescheduleRejected           RescheduleStatus = "rejected"
	RescheduleCancelled          RescheduleStatus = "cancelled"
)

// ParseDecision accepts the three review outcomes an admin may choose.
func ParseDecision(s string) (RescheduleStatus, error) {
	switch d := RescheduleStatus(strings.ToLower(strings.TrimSpace(s))); d {
	case RescheduleApproved, RescheduleApprovedWithCharge, RescheduleRejected:
		return d, nil
	}
	return "", fmt.Errorf("invalid decision %q", s)
}

// Reschedule payment states.
const (
	ReschedulePaymentNotRequired = "not_required"
	ReschedulePaymentPending     = "pending"
	ReschedulePaymentPaid        = "paid"
)

// Reschedule models a row of the `reschedules` table. Old and new
// inventory ids always belong to the booking's format, so a request can
// never be ambiguous about which table it moves capacity between.
//
// Fields:
//
//	BookingID        – booking being moved
//	Format           – format copied from the booking at creation
//	OldInventoryID   – record the booking held when the request was made
//	NewInventoryID   – requested record (may equal the old one for rentals)
//	Units            – capacity units moved, copied from the booking
//	FeePaise         – reschedule fee, set only for approved_with_charge
//	ProcessedAt      – set once the capacity swap has been committed
//	InitiatedBy      – user id of the requester
//	TargetOperatorID – operator of the booking's listing
type Reschedule struct {
	ID                uint64           // reschedules.id
	BookingID         uint64           // reschedules.booking_id
	Format            Format           // reschedules.inventory_format
	OldInventoryID    uint64           // reschedules.old_inventory_id
	NewInventoryID    uint64           // reschedules.new_inventory_id
	OldStartDate      time.Time        // reschedules.old_start_date
	OldEndDate        time.Time        // reschedules.old_end_date
	NewStartDate      time.Time        // reschedules.new_start_date
	NewEndDate        time.Time        // reschedules.new_end_date
	Units             int              // reschedules.units
	Reason            string           // reschedules.reason
	Status            RescheduleStatus // reschedules.status
	Fee               money.Amount     // reschedules.fee_paise
	IsPaymentRequired bool             // reschedules.is_payment_required
	PaymentStatus     string           // reschedules.payment_status
	PaymentReference  *string          // reschedules.payment_reference
	PaidAt            *time.Time       // reschedules.paid_at
	AdminNotes        *string          // reschedules.admin_notes
	ReviewedBy        *uint64          // reschedules.reviewed_by
	ReviewedAt        *time.Time       // reschedules.reviewed_at
	ProcessedAt       *time.Time       // reschedules.processed_at
	InitiatedBy       uint64           // reschedules.initiated_by
	InitiatorRole     Role             // reschedules.initiator_role
	TargetOperatorID  uint64           // reschedules.target_operator_id
	CreatedAt         time.Time        // reschedules.created_at
	UpdatedAt         time.Time        // reschedules.updated_at
}

// OldRef is the inventory record the booking is moved away from.
func (r Reschedule) OldRef() InventoryRef { return RefFor(r.Format, r.OldInventoryID) }

// NewRef is the inventory record the booking is moved to.
func (r Reschedule) NewRef() InventoryRef { return RefFor(r.Format, r.NewInventoryID) }

// OldSpan is the booking's dates before the move.
func (r Reschedule) OldSpan() DateSpan { return DateSpan{Start: r.OldStartDate, End: r.OldEndDate} }

// NewSpan is the booking's dates after the move.
func (r Reschedule) NewSpan() DateSpan { return DateSpan{Start: r.NewStartDate, End: r.NewEndDate} }

// Processed reports whether the capacity swap has been applied.
func (r Reschedule) Processed() bool { return r.ProcessedAt != nil }
