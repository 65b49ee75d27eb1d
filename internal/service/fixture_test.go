package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
	"github.com/iliyamo/booking-engine/internal/obs"
	"github.com/iliyamo/booking-engine/internal/queue"
	"github.com/iliyamo/booking-engine/internal/repository/memory"
)

var (
	asha     = Actor{UserID: 100, Role: model.RoleCustomer}
	ravi     = Actor{UserID: 200, Role: model.RoleCustomer}
	operator = Actor{UserID: 500, Role: model.RoleOperator}
	admin    = Actor{UserID: 1, Role: model.RoleAdmin}
)

// Listing and inventory ids used across the tests.
const (
	trekListing      = 10
	cabinListing     = 20
	courtListing     = 30
	yogaListing      = 40
	batchMarch       = 1 // capacity 3
	batchApril       = 2 // capacity 5
	batchTiny        = 3 // capacity 1
	cabinRange       = 5 // untracked rental window
	courtSlot        = 7 // recurring, capacity 1
	yogaInstance     = 8 // single day slot, capacity 4
	yogaInstanceNext = 9 // single day slot, capacity 4
)

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
	fail   bool
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("broker down")
	}
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	st          *memory.Store
	pub         *recorder
	bookings    *BookingService
	reschedules *RescheduleService
}

func d(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func tp(t time.Time) *time.Time { return &t }

func intp(v int) *int { return &v }

func i64p(v int64) *int64 { return &v }

func window(from, to string) model.DateSpan {
	s, err := model.NewDateSpan(d(from), d(to))
	if err != nil {
		panic(err)
	}
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.PutCustomer(model.Customer{ID: 1, UserID: asha.UserID, Name: "Asha", Email: "asha@example.com"})
	st.PutCustomer(model.Customer{ID: 2, UserID: ravi.UserID, Name: "Ravi", Email: "ravi@example.com"})

	st.PutListing(model.Listing{ID: trekListing, OperatorID: operator.UserID, Title: "Hampta Pass trek", Format: model.FormatBatch, BasePrice: money.Rupees(5000)})
	st.PutListing(model.Listing{ID: cabinListing, OperatorID: operator.UserID, Title: "Lake cabin", Format: model.FormatDayWiseRental, BasePrice: money.Rupees(2000)})
	st.PutListing(model.Listing{ID: courtListing, OperatorID: 600, Title: "Clay court", Format: model.FormatRecurringSlotRental, BasePrice: money.Rupees(800)})
	st.PutListing(model.Listing{ID: yogaListing, OperatorID: operator.UserID, Title: "Sunrise yoga", Format: model.FormatSingleDaySlot, BasePrice: money.Rupees(300), TaxRateBP: intp(500)})

	st.PutInventory(model.InventoryRecord{Ref: model.BatchSlot(batchMarch), ListingID: trekListing, Window: window("2026-03-01", "2026-03-03"), TotalCapacity: intp(3)})
	st.PutInventory(model.InventoryRecord{Ref: model.BatchSlot(batchApril), ListingID: trekListing, Window: window("2026-04-01", "2026-04-03"), TotalCapacity: intp(5)})
	st.PutInventory(model.InventoryRecord{Ref: model.BatchSlot(batchTiny), ListingID: trekListing, Window: window("2026-05-01", "2026-05-03"), TotalCapacity: intp(1)})
	st.PutInventory(model.InventoryRecord{Ref: model.DateRange(cabinRange), ListingID: cabinListing, Window: window("2026-04-01", "2026-04-30")})
	st.PutInventory(model.InventoryRecord{
		Ref: model.RecurringSlot(courtSlot), ListingID: courtListing, Window: window("2026-05-01", "2026-05-31"),
		PricePaise: i64p(100000), TotalCapacity: intp(1),
		Slot: &model.SlotDefinition{ID: 3, ListingID: courtListing, Name: "Evening", StartTime: "18:00", EndTime: "19:00"},
		Days: map[string]model.DayCapacity{
			"2026-05-02": {Date: d("2026-05-02"), PricePaise: i64p(150000)},
		},
	})
	st.PutInventory(model.InventoryRecord{Ref: model.SlotInstance(yogaInstance), ListingID: yogaListing, Window: model.SingleDay(d("2026-06-01")), TotalCapacity: intp(4)})
	st.PutInventory(model.InventoryRecord{Ref: model.SlotInstance(yogaInstanceNext), ListingID: yogaListing, Window: model.SingleDay(d("2026-06-02")), TotalCapacity: intp(4)})

	pub := &recorder{}
	log := obs.Discard()
	return &fixture{
		st:          st,
		pub:         pub,
		bookings:    NewBookingService(st, pub, log, DefaultPricingPolicy),
		reschedules: NewRescheduleService(st, pub, log),
	}
}

func (f *fixture) available(t *testing.T, ref model.InventoryRef) int {
	t.Helper()
	rec, ok := f.st.InventoryOf(ref)
	require.True(t, ok)
	require.NotNil(t, rec.Available)
	return *rec.Available
}

func (f *fixture) dayAvailable(t *testing.T, ref model.InventoryRef, date string) *int {
	t.Helper()
	rec, ok := f.st.InventoryOf(ref)
	require.True(t, ok)
	dc, ok := rec.Days[date]
	if !ok {
		return nil
	}
	return dc.Available
}

func trekBooking(slot uint64, participants int) CreateBookingInput {
	people := make([]model.Participant, participants)
	for i := range people {
		people[i] = model.Participant{Name: "Guest"}
	}
	return CreateBookingInput{
		CustomerID:       1,
		ListingID:        trekListing,
		SlotID:           slot,
		ParticipantCount: participants,
		Participants:     people,
		Contact:          model.ContactDetails{Name: "Asha", Email: "asha@example.com", Phone: "9000000000"},
	}
}

func (f *fixture) book(t *testing.T, in CreateBookingInput) *BookingDetail {
	t.Helper()
	res, err := f.bookings.Create(context.Background(), asha, in)
	require.NoError(t, err)
	return res
}
