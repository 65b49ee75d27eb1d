package model

import (
	"fmt"
	"strings"
)

// Format is the booking shape a listing sells. It decides which
// inventory table holds the capacity for a booking and how the booked
// quantity is derived.
type Format string

const (
	// FormatBatch is a multi-day batch shared by many participants.
	FormatBatch Format = "batch"
	// FormatDayWiseRental is a rental over a caller-chosen sub-range of a
	// date-range record.
	FormatDayWiseRental Format = "day_wise_rental"
	// FormatSingleDaySlot is one slot definition on one date.
	FormatSingleDaySlot Format = "single_day_slot"
	// FormatRecurringSlotRental is a slot definition repeated over a date
	// range with per-date overrides.
	FormatRecurringSlotRental Format = "recurring_slot_rental"
)

// Formats lists every supported format in a stable order.
var Formats = []Format{FormatBatch, FormatDayWiseRental, FormatSingleDaySlot, FormatRecurringSlotRental}

// ParseFormat normalises s (case, spaces and dashes) and returns the
// matching Format.
func ParseFormat(s string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	switch Format(n) {
	case FormatBatch, FormatDayWiseRental, FormatSingleDaySlot, FormatRecurringSlotRental:
		return Format(n), nil
	}
	return "", fmt.Errorf("unknown booking format %q", s)
}

// Valid reports whether f is one of the four known formats.
func (f Format) Valid() bool {
	switch f {
	case FormatBatch, FormatDayWiseRental, FormatSingleDaySlot, FormatRecurringSlotRental:
		return true
	}
	return false
}

// PerParticipant reports whether capacity for f is consumed per
// participant. Rental formats reserve the whole unit once.
func (f Format) PerParticipant() bool {
	return f == FormatBatch || f == FormatSingleDaySlot
}

// CallerDates reports whether the booking dates for f are chosen by the
// caller rather than fixed by the inventory record.
func (f Format) CallerDates() bool {
	return f == FormatDayWiseRental || f == FormatRecurringSlotRental
}

// Units returns how many capacity units a booking of f with the given
// participant count consumes.
func (f Format) Units(participants int) int {
	if f.PerParticipant() {
		return participants
	}
	return 1
}

// InventoryRef points at exactly one capacity-bearing record. The
// format tag selects the table and ID is that table's primary key.
type InventoryRef struct {
	Format Format
	ID     uint64
}

// BatchSlot references a batch_slots row.
func BatchSlot(id uint64) InventoryRef { return InventoryRef{Format: FormatBatch, ID: id} }

// DateRange references a date_ranges row.
func DateRange(id uint64) InventoryRef { return InventoryRef{Format: FormatDayWiseRental, ID: id} }

// SlotInstance references a slot_instances row.
func SlotInstance(id uint64) InventoryRef { return InventoryRef{Format: FormatSingleDaySlot, ID: id} }

// RecurringSlot references a recurring_slots row.
func RecurringSlot(id uint64) InventoryRef {
	return InventoryRef{Format: FormatRecurringSlotRental, ID: id}
}

// RefFor builds the reference for id under format f.
func RefFor(f Format, id uint64) InventoryRef { return InventoryRef{Format: f, ID: id} }

// Valid reports whether the reference has a known format and a non-zero id.
func (r InventoryRef) Valid() bool { return r.ID != 0 && r.Format.Valid() }

func (r InventoryRef) String() string { return fmt.Sprintf("%s:%d", r.Format, r.ID) }
