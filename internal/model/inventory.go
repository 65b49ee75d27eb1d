package model

import "time"

// SlotDefinition is a named time-of-day window a listing sells, e.g.
// "Morning 06:00-09:00". Times are kept as HH:MM strings.
//
// Fields:
//
//	ID        – slot_definitions.id
//	ListingID – owning listing
//	Name      – display label
//	StartTime – HH:MM start
//	EndTime   – HH:MM end
type SlotDefinition struct {
	ID        uint64 // slot_definitions.id
	ListingID uint64 // slot_definitions.listing_id
	Name      string // slot_definitions.name
	StartTime string // slot_definitions.start_time
	EndTime   string // slot_definitions.end_time
}

// DayCapacity is the per-date layer of a recurring slot rental. A nil
// PricePaise or TotalCapacity inherits the range value; a nil Available
// means no reservation has touched that date yet.
type DayCapacity struct {
	Date          time.Time
	PricePaise    *int64
	TotalCapacity *int
	Available     *int
}

// InventoryRecord is the format-independent view of one capacity row.
// The four storage shapes map onto it as follows:
//
//	batch                 – Window is the batch dates, counters on the row
//	day_wise_rental       – Window is the availability window, optional counters
//	single_day_slot       – Window is the single date, Slot is its definition
//	recurring_slot_rental – Window is the range, Slot is the definition,
//	                        Days holds per-date overrides and counters
//
// TotalCapacity == nil means the record does not track capacity.
type InventoryRecord struct {
	Ref           InventoryRef
	ListingID     uint64
	Window        DateSpan
	PricePaise    *int64
	TotalCapacity *int
	Available     *int
	Slot          *SlotDefinition
	Days          map[string]DayCapacity
}

// Day returns the per-date layer for d, if present.
func (r InventoryRecord) Day(d time.Time) (DayCapacity, bool) {
	if r.Days == nil {
		return DayCapacity{}, false
	}
	dc, ok := r.Days[DateOf(d).Format(DateLayout)]
	return dc, ok
}

// TotalOn returns the effective capacity on d. An override wins over the
// range value for that date only.
func (r InventoryRecord) TotalOn(d time.Time) *int {
	if r.Ref.Format == FormatRecurringSlotRental {
		if dc, ok := r.Day(d); ok && dc.TotalCapacity != nil {
			return dc.TotalCapacity
		}
	}
	return r.TotalCapacity
}

// RemainingOn returns the units still available on d and whether the
// record tracks capacity on that date at all.
func (r InventoryRecord) RemainingOn(d time.Time) (int, bool) {
	total := r.TotalOn(d)
	if total == nil {
		return 0, false
	}
	if r.Ref.Format == FormatRecurringSlotRental {
		if dc, ok := r.Day(d); ok && dc.Available != nil {
			return *dc.Available, true
		}
		return *total, true
	}
	if r.Available == nil {
		return *total, true
	}
	return *r.Available, true
}

// HasCapacity reports whether units can be reserved over span. Untracked
// records always have capacity.
func (r InventoryRecord) HasCapacity(units int, span DateSpan) bool {
	return r.HasCapacityWithCredit(units, span, nil)
}

// HasCapacityWithCredit is HasCapacity for a booking that already holds
// units on this record over held. Those units count as free again, so a
// reschedule within the same record is judged against the capacity it
// would have after the old reservation is released.
func (r InventoryRecord) HasCapacityWithCredit(units int, span DateSpan, held *DateSpan) bool {
	if units <= 0 {
		return false
	}
	if r.Ref.Format != FormatRecurringSlotRental {
		remaining, tracked := r.RemainingOn(span.Start)
		if !tracked {
			return true
		}
		if held != nil {
			remaining += units
		}
		return remaining >= units
	}
	for _, d := range span.Dates() {
		remaining, tracked := r.RemainingOn(d)
		if !tracked {
			continue
		}
		if held != nil && held.Contains(d) {
			remaining += units
		}
		if remaining < units {
			return false
		}
	}
	return true
}

// PriceOn returns the per-unit price for d: the date override, then the
// record's own price, then fallback (the listing base price).
func (r InventoryRecord) PriceOn(d time.Time, fallback int64) int64 {
	if r.Ref.Format == FormatRecurringSlotRental {
		if dc, ok := r.Day(d); ok && dc.PricePaise != nil {
			return *dc.PricePaise
		}
	}
	if r.PricePaise != nil {
		return *r.PricePaise
	}
	return fallback
}

// DayPrices lists PriceOn for every date of span.
func (r InventoryRecord) DayPrices(span DateSpan, fallback int64) []int64 {
	dates := span.Dates()
	out := make([]int64, len(dates))
	for i, d := range dates {
		out[i] = r.PriceOn(d, fallback)
	}
	return out
}

// FixedSpan returns the dates a booking occupies when the format does not
// let the caller choose them.
func (r InventoryRecord) FixedSpan() DateSpan {
	if r.Ref.Format == FormatSingleDaySlot {
		return SingleDay(r.Window.Start)
	}
	return r.Window
}
