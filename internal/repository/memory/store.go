// Package memory is an in-process implementation of store.Store. A
// single mutex is held for the whole of each transaction, which makes
// every unit of work serializable; a failed unit is rolled back by
// restoring the snapshot taken when it began. Stored values are never
// mutated in place, so a shallow copy of each table is a full snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/store"
)

type tables struct {
	customers   map[uint64]model.Customer
	listings    map[uint64]model.Listing
	inventory   map[model.InventoryRef]model.InventoryRecord
	bookings    map[uint64]model.Booking
	references  map[string]uint64
	payments    map[uint64]model.BookingPayment // keyed by booking id
	reschedules map[uint64]model.Reschedule
	nextID      uint64
}

func (t *tables) clone() *tables {
	c := &tables{
		customers:   make(map[uint64]model.Customer, len(t.customers)),
		listings:    make(map[uint64]model.Listing, len(t.listings)),
		inventory:   make(map[model.InventoryRef]model.InventoryRecord, len(t.inventory)),
		bookings:    make(map[uint64]model.Booking, len(t.bookings)),
		references:  make(map[string]uint64, len(t.references)),
		payments:    make(map[uint64]model.BookingPayment, len(t.payments)),
		reschedules: make(map[uint64]model.Reschedule, len(t.reschedules)),
		nextID:      t.nextID,
	}
	for k, v := range t.customers {
		c.customers[k] = v
	}
	for k, v := range t.listings {
		c.listings[k] = v
	}
	for k, v := range t.inventory {
		c.inventory[k] = v
	}
	for k, v := range t.bookings {
		c.bookings[k] = v
	}
	for k, v := range t.references {
		c.references[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.reschedules {
		c.reschedules[k] = v
	}
	return c
}

// Store is the in-memory store. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex
	t  *tables
}

// New returns an empty store.
func New() *Store {
	return &Store{t: &tables{
		customers:   map[uint64]model.Customer{},
		listings:    map[uint64]model.Listing{},
		inventory:   map[model.InventoryRef]model.InventoryRecord{},
		bookings:    map[uint64]model.Booking{},
		references:  map[string]uint64{},
		payments:    map[uint64]model.BookingPayment{},
		reschedules: map[uint64]model.Reschedule{},
	}}
}

// WithinTx runs fn with exclusive access to the store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.t.clone()
	if err := fn(&tx{t: s.t}); err != nil {
		s.t = snapshot
		return err
	}
	return nil
}

// PutCustomer inserts or replaces a customer.
func (s *Store) PutCustomer(c model.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.customers[c.ID] = c
}

// PutListing inserts or replaces a listing.
func (s *Store) PutListing(l model.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.listings[l.ID] = l
}

// PutInventory inserts or replaces an inventory record. A tracked record
// without an available count starts fully available.
func (s *Store) PutInventory(r model.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.TotalCapacity != nil && r.Available == nil && r.Ref.Format != model.FormatRecurringSlotRental {
		r.Available = intPtr(*r.TotalCapacity)
	}
	s.t.inventory[r.Ref] = r
}

// InventoryOf returns a copy of the record stored under ref.
func (s *Store) InventoryOf(ref model.InventoryRef) (model.InventoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.t.inventory[ref]
	return r, ok
}

// PendingCount returns how many pending reschedules exist for bookingID.
func (s *Store) PendingCount(bookingID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.t.reschedules {
		if r.BookingID == bookingID && r.Status == model.ReschedulePending {
			n++
		}
	}
	return n
}

type tx struct{ t *tables }

func (x *tx) Customers() store.CustomerRepository     { return customers{x.t} }
func (x *tx) Listings() store.ListingRepository       { return listings{x.t} }
func (x *tx) Inventory() store.InventoryRepository    { return inventory{x.t} }
func (x *tx) Bookings() store.BookingRepository       { return bookings{x.t} }
func (x *tx) Payments() store.PaymentRepository       { return payments{x.t} }
func (x *tx) Reschedules() store.RescheduleRepository { return reschedules{x.t} }

func (t *tables) id() uint64 {
	t.nextID++
	return t.nextID
}

func intPtr(v int) *int { return &v }

func paginate[T any](rows []T, page store.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(rows) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[page.Offset:end]
}

type customers struct{ t *tables }

func (r customers) Get(_ context.Context, id uint64) (*model.Customer, error) {
	c, ok := r.t.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

type listings struct{ t *tables }

func (r listings) Get(_ context.Context, id uint64) (*model.Listing, error) {
	l, ok := r.t.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

type bookings struct{ t *tables }

func (r bookings) Create(_ context.Context, b *model.Booking) error {
	if _, dup := r.t.references[b.Reference]; dup {
		return store.ErrDuplicate
	}
	now := time.Now().UTC()
	b.ID = r.t.id()
	b.CreatedAt, b.UpdatedAt = now, now
	r.t.bookings[b.ID] = *b
	r.t.references[b.Reference] = b.ID
	return nil
}

func (r bookings) Get(_ context.Context, id uint64) (*model.Booking, error) {
	b, ok := r.t.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (r bookings) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.Get(ctx, id)
}

func (r bookings) MarkCancelled(_ context.Context, id uint64, at time.Time) error {
	b, ok := r.t.bookings[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = model.BookingCancelled
	b.CancelledAt = &at
	b.UpdatedAt = at
	r.t.bookings[id] = b
	return nil
}

func (r bookings) Move(_ context.Context, id uint64, ref model.InventoryRef, span model.DateSpan, at time.Time) error {
	b, ok := r.t.bookings[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Inventory = ref
	b.StartDate, b.EndDate = span.Start, span.End
	b.TotalDays = span.Days()
	b.UpdatedAt = at
	r.t.bookings[id] = b
	return nil
}

func (r bookings) list(match func(model.Booking) bool, page store.Page) []model.Booking {
	out := make([]model.Booking, 0)
	for _, b := range r.t.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, page)
}

func (r bookings) ListByCustomer(_ context.Context, customerID uint64, page store.Page) ([]model.Booking, error) {
	return r.list(func(b model.Booking) bool { return b.CustomerID == customerID }, page), nil
}

func (r bookings) ListByOperator(_ context.Context, operatorID uint64, page store.Page) ([]model.Booking, error) {
	return r.list(func(b model.Booking) bool { return b.OperatorID == operatorID }, page), nil
}

func (r bookings) ListAll(_ context.Context, page store.Page) ([]model.Booking, error) {
	return r.list(func(model.Booking) bool { return true }, page), nil
}

type payments struct{ t *tables }

func (r payments) Create(_ context.Context, p *model.BookingPayment) error {
	if _, dup := r.t.payments[p.BookingID]; dup {
		return store.ErrDuplicate
	}
	p.ID = r.t.id()
	p.CreatedAt = time.Now().UTC()
	r.t.payments[p.BookingID] = *p
	return nil
}

func (r payments) GetByBooking(_ context.Context, bookingID uint64) (*model.BookingPayment, error) {
	p, ok := r.t.payments[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r payments) ListByBookings(_ context.Context, ids []uint64) (map[uint64]model.BookingPayment, error) {
	out := make(map[uint64]model.BookingPayment, len(ids))
	for _, id := range ids {
		if p, ok := r.t.payments[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type reschedules struct{ t *tables }

func (r reschedules) Create(ctx context.Context, rs *model.Reschedule) error {
	if rs.Status == model.ReschedulePending {
		if pending, _ := r.HasPending(ctx, rs.BookingID); pending {
			return store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	rs.ID = r.t.id()
	rs.CreatedAt, rs.UpdatedAt = now, now
	r.t.reschedules[rs.ID] = *rs
	return nil
}

func (r reschedules) Get(_ context.Context, id uint64) (*model.Reschedule, error) {
	rs, ok := r.t.reschedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rs, nil
}

func (r reschedules) GetForUpdate(ctx context.Context, id uint64) (*model.Reschedule, error) {
	return r.Get(ctx, id)
}

func (r reschedules) HasPending(_ context.Context, bookingID uint64) (bool, error) {
	for _, rs := range r.t.reschedules {
		if rs.BookingID == bookingID && rs.Status == model.ReschedulePending {
			return true, nil
		}
	}
	return false, nil
}

func (r reschedules) Update(_ context.Context, rs *model.Reschedule) error {
	cur, ok := r.t.reschedules[rs.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Status = rs.Status
	cur.Fee = rs.Fee
	cur.IsPaymentRequired = rs.IsPaymentRequired
	cur.PaymentStatus = rs.PaymentStatus
	cur.PaymentReference = rs.PaymentReference
	cur.PaidAt = rs.PaidAt
	cur.AdminNotes = rs.AdminNotes
	cur.ReviewedBy = rs.ReviewedBy
	cur.ReviewedAt = rs.ReviewedAt
	cur.UpdatedAt = time.Now().UTC()
	r.t.reschedules[rs.ID] = cur
	rs.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r reschedules) MarkProcessed(_ context.Context, id uint64, at time.Time) error {
	cur, ok := r.t.reschedules[id]
	if !ok {
		return store.ErrNotFound
	}
	if cur.ProcessedAt != nil {
		return store.ErrAlreadyProcessed
	}
	cur.ProcessedAt = &at
	cur.UpdatedAt = at
	r.t.reschedules[id] = cur
	return nil
}

func (r reschedules) list(match func(model.Reschedule) bool, desc bool) []model.Reschedule {
	out := make([]model.Reschedule, 0)
	for _, rs := range r.t.reschedules {
		if match(rs) {
			out = append(out, rs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r reschedules) ListByBooking(_ context.Context, bookingID uint64) ([]model.Reschedule, error) {
	return r.list(func(rs model.Reschedule) bool { return rs.BookingID == bookingID }, true), nil
}

func (r reschedules) ListPending(_ context.Context, page store.Page) ([]model.Reschedule, error) {
	rows := r.list(func(rs model.Reschedule) bool { return rs.Status == model.ReschedulePending }, false)
	return paginate(rows, page), nil
}

func (r reschedules) CancelPendingForBooking(_ context.Context, bookingID uint64, at time.Time) ([]uint64, error) {
	var ids []uint64
	for id, rs := range r.t.reschedules {
		if rs.BookingID == bookingID && rs.Status == model.ReschedulePending {
			rs.Status = model.RescheduleCancelled
			rs.UpdatedAt = at
			r.t.reschedules[id] = rs
			ids = append(ids, id)
		}
	}
	return ids, nil
}
