package memory

import (
	"context"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/store"
)

type inventory struct{ t *tables }

func (r inventory) Get(_ context.Context, ref model.InventoryRef) (*model.InventoryRecord, error) {
	rec, ok := r.t.inventory[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (r inventory) Reserve(_ context.Context, ref model.InventoryRef, span model.DateSpan, units int) error {
	return r.adjust(ref, span, -units)
}

func (r inventory) Release(_ context.Context, ref model.InventoryRef, span model.DateSpan, units int) error {
	return r.adjust(ref, span, units)
}

// adjust applies delta to every counter the span touches, or to none.
func (r inventory) adjust(ref model.InventoryRef, span model.DateSpan, delta int) error {
	rec, ok := r.t.inventory[ref]
	if !ok {
		return store.ErrNotFound
	}
	if ref.Format != model.FormatRecurringSlotRental {
		if rec.TotalCapacity == nil {
			return nil
		}
		avail := *rec.TotalCapacity
		if rec.Available != nil {
			avail = *rec.Available
		}
		if err := check(avail+delta, *rec.TotalCapacity); err != nil {
			return err
		}
		rec.Available = intPtr(avail + delta)
		r.t.inventory[ref] = rec
		return nil
	}

	days := make(map[string]model.DayCapacity, len(rec.Days)+span.Days())
	for k, v := range rec.Days {
		days[k] = v
	}
	for _, d := range span.Dates() {
		key := d.Format(model.DateLayout)
		dc, ok := days[key]
		if !ok {
			dc = model.DayCapacity{Date: d}
		}
		total := rec.TotalOn(d)
		if total == nil {
			continue
		}
		avail := *total
		if dc.Available != nil {
			avail = *dc.Available
		}
		if err := check(avail+delta, *total); err != nil {
			return err
		}
		dc.Available = intPtr(avail + delta)
		days[key] = dc
	}
	rec.Days = days
	r.t.inventory[ref] = rec
	return nil
}

func check(next, total int) error {
	if next < 0 {
		return store.ErrInsufficientCapacity
	}
	if next > total {
		return store.ErrCapacityOverflow
	}
	return nil
}
