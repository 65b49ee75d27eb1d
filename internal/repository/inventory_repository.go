package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/store"
)

// InventoryRepo reads and moves the capacity counters of the four
// inventory tables.
type InventoryRepo struct{ q queryer }

// counterTable names the table holding a single counter per record.
// Recurring slots keep per-date counters and are not listed.
func counterTable(f model.Format) (string, bool) {
	switch f {
	case model.FormatBatch:
		return "batch_slots", true
	case model.FormatDayWiseRental:
		return "date_ranges", true
	case model.FormatSingleDaySlot:
		return "slot_instances", true
	}
	return "", false
}

// Get loads the record ref points at.
func (r *InventoryRepo) Get(ctx context.Context, ref model.InventoryRef) (*model.InventoryRecord, error) {
	switch ref.Format {
	case model.FormatBatch:
		return r.getBatch(ctx, ref)
	case model.FormatDayWiseRental:
		return r.getDateRange(ctx, ref)
	case model.FormatSingleDaySlot:
		return r.getSlotInstance(ctx, ref)
	case model.FormatRecurringSlotRental:
		return r.getRecurring(ctx, ref)
	}
	return nil, fmt.Errorf("unknown inventory format %q", ref.Format)
}

func (r *InventoryRepo) getBatch(ctx context.Context, ref model.InventoryRef) (*model.InventoryRecord, error) {
	const q = `SELECT listing_id, start_date, end_date, total_capacity, available_count
               FROM batch_slots WHERE id = ?`
	rec := model.InventoryRecord{Ref: ref}
	var total, avail int
	err := r.q.QueryRowContext(ctx, q, ref.ID).Scan(&rec.ListingID, &rec.Window.Start, &rec.Window.End, &total, &avail)
	if err != nil {
		return nil, mapError(err)
	}
	rec.TotalCapacity, rec.Available = &total, &avail
	return &rec, nil
}

func (r *InventoryRepo) getDateRange(ctx context.Context, ref model.InventoryRef) (*model.InventoryRecord, error) {
	const q = `SELECT listing_id, start_date, end_date, price_paise, total_capacity,
                      COALESCE(available_count, total_capacity)
               FROM date_ranges WHERE id = ?`
	rec := model.InventoryRecord{Ref: ref}
	var price, total, avail sql.NullInt64
	err := r.q.QueryRowContext(ctx, q, ref.ID).Scan(&rec.ListingID, &rec.Window.Start, &rec.Window.End, &price, &total, &avail)
	if err != nil {
		return nil, mapError(err)
	}
	rec.PricePaise, rec.TotalCapacity, rec.Available = int64From(price), intFrom(total), intFrom(avail)
	return &rec, nil
}

func (r *InventoryRepo) getSlotInstance(ctx context.Context, ref model.InventoryRef) (*model.InventoryRecord, error) {
	const q = `SELECT si.listing_id, si.slot_date, si.price_paise, si.total_capacity, COALESCE(si.available_count, si.total_capacity),
                      sd.id, sd.name, TIME_FORMAT(sd.start_time, '%H:%i'), TIME_FORMAT(sd.end_time, '%H:%i')
               FROM slot_instances si
               JOIN slot_definitions sd ON sd.id = si.slot_definition_id
               WHERE si.id = ?`
	rec := model.InventoryRecord{Ref: ref, Slot: &model.SlotDefinition{}}
	var price, total, avail sql.NullInt64
	err := r.q.QueryRowContext(ctx, q, ref.ID).Scan(
		&rec.ListingID, &rec.Window.Start, &price, &total, &avail,
		&rec.Slot.ID, &rec.Slot.Name, &rec.Slot.StartTime, &rec.Slot.EndTime,
	)
	if err != nil {
		return nil, mapError(err)
	}
	rec.Window = model.SingleDay(rec.Window.Start)
	rec.Slot.ListingID = rec.ListingID
	rec.PricePaise, rec.TotalCapacity, rec.Available = int64From(price), intFrom(total), intFrom(avail)
	return &rec, nil
}

func (r *InventoryRepo) getRecurring(ctx context.Context, ref model.InventoryRef) (*model.InventoryRecord, error) {
	const q = `SELECT rs.listing_id, rs.start_date, rs.end_date, rs.price_paise, rs.total_capacity,
                      sd.id, sd.name, TIME_FORMAT(sd.start_time, '%H:%i'), TIME_FORMAT(sd.end_time, '%H:%i')
               FROM recurring_slots rs
               JOIN slot_definitions sd ON sd.id = rs.slot_definition_id
               WHERE rs.id = ?`
	rec := model.InventoryRecord{Ref: ref, Slot: &model.SlotDefinition{}}
	var price, total sql.NullInt64
	err := r.q.QueryRowContext(ctx, q, ref.ID).Scan(
		&rec.ListingID, &rec.Window.Start, &rec.Window.End, &price, &total,
		&rec.Slot.ID, &rec.Slot.Name, &rec.Slot.StartTime, &rec.Slot.EndTime,
	)
	if err != nil {
		return nil, mapError(err)
	}
	rec.Slot.ListingID = rec.ListingID
	rec.PricePaise, rec.TotalCapacity = int64From(price), intFrom(total)

	const qd = `SELECT slot_date, price_paise, total_capacity, available_count
                FROM recurring_slot_days WHERE recurring_slot_id = ? ORDER BY slot_date`
	rows, err := r.q.QueryContext(ctx, qd, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rec.Days = map[string]model.DayCapacity{}
	for rows.Next() {
		var (
			dc                   model.DayCapacity
			dPrice, dTot, dAvail sql.NullInt64
		)
		if err := rows.Scan(&dc.Date, &dPrice, &dTot, &dAvail); err != nil {
			return nil, err
		}
		dc.Date = model.DateOf(dc.Date)
		dc.PricePaise, dc.TotalCapacity, dc.Available = int64From(dPrice), intFrom(dTot), intFrom(dAvail)
		rec.Days[dc.Date.Format(model.DateLayout)] = dc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reserve takes units from every counter span touches. Records without
// a capacity are left alone; a capacity with no counter yet counts as
// fully available.
func (r *InventoryRepo) Reserve(ctx context.Context, ref model.InventoryRef, span model.DateSpan, units int) error {
	if table, ok := counterTable(ref.Format); ok {
		q := fmt.Sprintf(`UPDATE %s SET available_count = COALESCE(available_count, total_capacity) - ?
                          WHERE id = ? AND total_capacity IS NOT NULL AND COALESCE(available_count, total_capacity) >= ?`, table)
		return r.moveCounter(ctx, table, q, ref.ID, []any{units, ref.ID, units}, store.ErrInsufficientCapacity)
	}
	if ref.Format != model.FormatRecurringSlotRental {
		return fmt.Errorf("unknown inventory format %q", ref.Format)
	}
	const q = `UPDATE recurring_slot_days
               SET available_count = COALESCE(available_count, total_capacity, ?) - ?
               WHERE recurring_slot_id = ? AND slot_date = ?
                 AND COALESCE(total_capacity, ?) IS NOT NULL
                 AND COALESCE(available_count, total_capacity, ?) >= ?`
	return r.moveDays(ctx, ref, span, func(base sql.NullInt64, d time.Time) []any {
		return []any{base, units, ref.ID, d, base, base, units}
	}, q, store.ErrInsufficientCapacity)
}

// Release gives units back to every counter span touches. A counter
// never rises above its capacity.
func (r *InventoryRepo) Release(ctx context.Context, ref model.InventoryRef, span model.DateSpan, units int) error {
	if table, ok := counterTable(ref.Format); ok {
		q := fmt.Sprintf(`UPDATE %s SET available_count = COALESCE(available_count, total_capacity) + ?
                          WHERE id = ? AND total_capacity IS NOT NULL AND COALESCE(available_count, total_capacity) + ? <= total_capacity`, table)
		return r.moveCounter(ctx, table, q, ref.ID, []any{units, ref.ID, units}, store.ErrCapacityOverflow)
	}
	if ref.Format != model.FormatRecurringSlotRental {
		return fmt.Errorf("unknown inventory format %q", ref.Format)
	}
	const q = `UPDATE recurring_slot_days
               SET available_count = COALESCE(available_count, total_capacity, ?) + ?
               WHERE recurring_slot_id = ? AND slot_date = ?
                 AND COALESCE(total_capacity, ?) IS NOT NULL
                 AND COALESCE(available_count, total_capacity, ?) + ? <= COALESCE(total_capacity, ?)`
	return r.moveDays(ctx, ref, span, func(base sql.NullInt64, d time.Time) []any {
		return []any{base, units, ref.ID, d, base, base, units, base}
	}, q, store.ErrCapacityOverflow)
}

// moveCounter runs a conditional single-row update. When nothing matched
// it tells a missing row, an untracked row and a failed guard apart.
func (r *InventoryRepo) moveCounter(ctx context.Context, table, q string, id uint64, args []any, guardErr error) error {
	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var total sql.NullInt64
	err = r.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT total_capacity FROM %s WHERE id = ?`, table), id).Scan(&total)
	if err != nil {
		return mapError(err)
	}
	if !total.Valid {
		return nil
	}
	return guardErr
}

// moveDays applies the per-date update for every date of span. Missing
// day rows are created first so the counter can live on them; the base
// capacity of the slot fills in for a row without an override. Any
// failed date aborts the call and the caller's transaction undoes the
// dates already moved.
func (r *InventoryRepo) moveDays(ctx context.Context, ref model.InventoryRef, span model.DateSpan, argsFor func(base sql.NullInt64, d time.Time) []any, q string, guardErr error) error {
	var base sql.NullInt64
	err := r.q.QueryRowContext(ctx, `SELECT total_capacity FROM recurring_slots WHERE id = ? FOR UPDATE`, ref.ID).Scan(&base)
	if err != nil {
		return mapError(err)
	}
	const ensure = `INSERT IGNORE INTO recurring_slot_days (recurring_slot_id, slot_date) VALUES (?, ?)`
	const effective = `SELECT COALESCE(total_capacity, ?) FROM recurring_slot_days WHERE recurring_slot_id = ? AND slot_date = ?`
	for _, d := range span.Dates() {
		if _, err := r.q.ExecContext(ctx, ensure, ref.ID, d); err != nil {
			return err
		}
		res, err := r.q.ExecContext(ctx, q, argsFor(base, d)...)
		if err != nil {
			return err
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		var total sql.NullInt64
		if err := r.q.QueryRowContext(ctx, effective, base, ref.ID, d).Scan(&total); err != nil {
			return mapError(err)
		}
		if total.Valid {
			return guardErr
		}
	}
	return nil
}
