package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-engine/internal/config"
	"github.com/iliyamo/booking-engine/internal/handler"
	"github.com/iliyamo/booking-engine/internal/middleware"
	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
	"github.com/iliyamo/booking-engine/internal/obs"
	"github.com/iliyamo/booking-engine/internal/queue"
	"github.com/iliyamo/booking-engine/internal/repository/memory"
	"github.com/iliyamo/booking-engine/internal/service"
	"github.com/iliyamo/booking-engine/internal/utils"
)

const secret = "router-secret"

type api struct {
	t *testing.T
	e *echo.Echo
}

func intp(v int) *int { return &v }

func span(from, to string) model.DateSpan {
	a, _ := model.ParseDate(from)
	b, _ := model.ParseDate(to)
	s, err := model.NewDateSpan(a, b)
	if err != nil {
		panic(err)
	}
	return s
}

func newAPI(t *testing.T, g Guards) *api {
	t.Helper()
	st := memory.New()
	st.PutCustomer(model.Customer{ID: 1, UserID: 100, Name: "Asha"})
	st.PutListing(model.Listing{ID: 10, OperatorID: 500, Title: "Trek", Format: model.FormatBatch, BasePrice: money.Rupees(5000)})
	st.PutInventory(model.InventoryRecord{Ref: model.BatchSlot(1), ListingID: 10, Window: span("2026-03-01", "2026-03-03"), TotalCapacity: intp(3)})
	st.PutInventory(model.InventoryRecord{Ref: model.BatchSlot(2), ListingID: 10, Window: span("2026-04-01", "2026-04-03"), TotalCapacity: intp(5)})

	log := obs.Discard()
	bookings := service.NewBookingService(st, queue.Nop{}, log, service.DefaultPricingPolicy)
	reschedules := service.NewRescheduleService(st, queue.Nop{}, log)

	g.JWTSecret = secret
	e := echo.New()
	RegisterRoutes(e, handler.Health{})
	RegisterBookings(e, handler.NewBookingHandler(bookings), g)
	RegisterReschedules(e, handler.NewRescheduleHandler(reschedules), g)
	return &api{t: t, e: e}
}

var (
	customer = [2]any{uint64(100), model.RoleCustomer}
	stranger = [2]any{uint64(200), model.RoleCustomer}
	operator = [2]any{uint64(500), model.RoleOperator}
	admin    = [2]any{uint64(1), model.RoleAdmin}
)

func (a *api) call(who *[2]any, method, path, body string) (int, map[string]any) {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if who != nil {
		tok, err := utils.NewAccessToken(secret, who[0].(uint64), who[1].(model.Role), time.Hour)
		require.NoError(a.t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

const trekBody = `{
	"customerId": 1,
	"listingId": 10,
	"slotId": 1,
	"participantCount": 2,
	"participants": [{"name": "Asha"}, {"name": "Ravi"}],
	"contactDetails": {"name": "Asha", "email": "asha@example.com", "phone": "9000000000"},
	"totalAmount": 11800,
	"paymentMethod": "online"
}`

func bookingID(t *testing.T, body map[string]any) int {
	t.Helper()
	b, ok := body["booking"].(map[string]any)
	require.True(t, ok, body)
	return int(b["id"].(float64))
}

func TestHealthz(t *testing.T) {
	a := newAPI(t, Guards{})
	code, body := a.call(nil, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateBookingOverHTTP(t *testing.T) {
	a := newAPI(t, Guards{})

	code, body := a.call(&customer, http.MethodPost, "/bookings", trekBody)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Regexp(t, `^BOK-\d{4}-\d{6}$`, body["bookingReference"])
	b := body["booking"].(map[string]any)
	assert.Equal(t, "batch", b["bookingFormat"])
	assert.EqualValues(t, 1, b["slotId"])
	assert.NotContains(t, b, "dateRangeId")
	assert.Equal(t, "2026-03-01", b["bookingStartDate"])
	assert.Equal(t, "CONFIRMED", b["status"])

	p := body["bookingPayment"].(map[string]any)
	assert.EqualValues(t, 10000, p["subtotalAmount"])
	assert.EqualValues(t, 1800, p["taxAmount"])
	assert.EqualValues(t, 11800, p["totalAmount"])
	assert.NotContains(t, p, "platformCommission")
	assert.NotContains(t, p, "netPayableToSeller")

	code, body = a.call(&admin, http.MethodGet, "/bookings/"+strconv.Itoa(bookingID(t, body)), "")
	require.Equal(t, http.StatusOK, code)
	p = body["bookingPayment"].(map[string]any)
	assert.EqualValues(t, 1000, p["platformCommission"])
	assert.EqualValues(t, 118, p["tcsAmount"])
	assert.EqualValues(t, 8882, p["netPayableToSeller"])
}

func TestCreateBookingRejections(t *testing.T) {
	a := newAPI(t, Guards{})

	code, body := a.call(&customer, http.MethodPost, "/bookings", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing required fields", body["error"])
	assert.ElementsMatch(t, []any{"customerId", "listingId", "slotId", "dateRangeId", "participantCount"}, body["fields"])

	code, body = a.call(&customer, http.MethodPost, "/bookings", `{"customerId":1,"listingId":10,"slotId":1,"participantCount":1,"bookingStartDate":"01/03/2026"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"bookingStartDate"}, body["fields"])

	code, body = a.call(&customer, http.MethodPost, "/bookings", `{"customerId":1,"listingId":10,"slotId":1,"participantCount":1,"paymentMethod":"cheque"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"paymentMethod"}, body["fields"])

	code, _ = a.call(&customer, http.MethodPost, "/bookings", `{"customerId":1,"listingId":10,"slotId":1,"participantCount":1,"totalAmount":1.234}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.call(&customer, http.MethodPost, "/bookings", `{"customerId":1,"listingId":10,"slotId":99,"participantCount":1}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "batch slot not found", body["error"])

	code, _ = a.call(&customer, http.MethodPost, "/bookings", `{"customerId":1,"listingId":10,"slotId":1,"participantCount":4}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.call(&stranger, http.MethodPost, "/bookings", trekBody)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.call(&operator, http.MethodPost, "/bookings", trekBody)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.call(nil, http.MethodPost, "/bookings", trekBody)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCancelBookingOverHTTP(t *testing.T) {
	a := newAPI(t, Guards{})
	_, body := a.call(&customer, http.MethodPost, "/bookings", trekBody)
	path := "/bookings/" + strconv.Itoa(bookingID(t, body)) + "/cancel"

	code, _ := a.call(&stranger, http.MethodPost, path, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.call(&customer, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.NotEmpty(t, body["cancelledAt"])

	code, body = a.call(&customer, http.MethodPost, path, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "booking is already cancelled", body["error"])

	code, _ = a.call(&customer, http.MethodPost, "/bookings/abc/cancel", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.call(&customer, http.MethodPost, "/bookings/999/cancel", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListBookingsOverHTTP(t *testing.T) {
	a := newAPI(t, Guards{})
	a.call(&customer, http.MethodPost, "/bookings", trekBody)
	a.call(&customer, http.MethodPost, "/bookings", strings.Replace(trekBody, `"slotId": 1`, `"slotId": 2`, 1))

	code, body := a.call(&customer, http.MethodGet, "/bookings/user/1?limit=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 1, body["limit"])

	code, _ = a.call(&customer, http.MethodGet, "/bookings/user/1?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.call(&operator, http.MethodGet, "/bookings/user/1", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.call(&operator, http.MethodGet, "/bookings/operator/500", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])
	rows := body["bookings"].([]any)
	p := rows[0].(map[string]any)["bookingPayment"].(map[string]any)
	assert.NotContains(t, p, "platformCommission")

	code, _ = a.call(&operator, http.MethodGet, "/bookings/operator/501", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.call(&customer, http.MethodGet, "/bookings/admin/all", "")
	assert.Equal(t, http.StatusForbidden, code)
	code, body = a.call(&admin, http.MethodGet, "/bookings/admin/all", "")
	require.Equal(t, http.StatusOK, code)
	rows = body["bookings"].([]any)
	p = rows[0].(map[string]any)["bookingPayment"].(map[string]any)
	assert.Contains(t, p, "platformCommission")
}

func TestRescheduleFlowOverHTTP(t *testing.T) {
	a := newAPI(t, Guards{})
	_, body := a.call(&customer, http.MethodPost, "/bookings", trekBody)
	id := strconv.Itoa(bookingID(t, body))

	code, body := a.call(&customer, http.MethodPost, "/reschedules/initiate", `{"bookingId":`+id+`}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"rescheduleReason"}, body["fields"])

	code, body = a.call(&customer, http.MethodPost, "/reschedules/initiate", `{"bookingId":`+id+`,"rescheduleReason":"exams","newBatchId":2}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "2026-04-01", body["newStartDate"])
	rid := strconv.Itoa(int(body["id"].(float64)))

	code, _ = a.call(&customer, http.MethodPost, "/reschedules/initiate", `{"bookingId":`+id+`,"rescheduleReason":"again","newBatchId":2}`)
	assert.Equal(t, http.StatusConflict, code)

	code, body = a.call(&admin, http.MethodGet, "/reschedules/pending", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, _ = a.call(&customer, http.MethodPut, "/reschedules/"+rid+"/review", `{"decision":"approved"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.call(&admin, http.MethodPut, "/reschedules/"+rid+"/review", `{"decision":"approved_with_charge"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"rescheduleFeeAmount"}, body["fields"])

	code, body = a.call(&admin, http.MethodPut, "/reschedules/"+rid+"/review", `{"decision":"approved_with_charge","rescheduleFeeAmount":"250.50","adminNotes":"late change"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "approved_with_charge", body["status"])
	assert.EqualValues(t, 250.5, body["rescheduleFeeAmount"])
	assert.Equal(t, "pending", body["paymentStatus"])

	code, _ = a.call(&admin, http.MethodPost, "/reschedules/"+rid+"/pay", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.call(&customer, http.MethodPost, "/reschedules/"+rid+"/pay", `{"paymentReference":"pay_1"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "pay_1", body["paymentReference"])
	assert.NotEmpty(t, body["processedAt"])

	code, body = a.call(&customer, http.MethodGet, "/bookings/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["booking"].(map[string]any)["slotId"])

	code, body = a.call(&customer, http.MethodGet, "/reschedules/booking/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = a.call(&operator, http.MethodGet, "/reschedules/"+rid, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved_with_charge", body["status"])

	code, _ = a.call(&customer, http.MethodPost, "/reschedules/"+rid+"/pay", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestRescheduleCancelOverHTTP(t *testing.T) {
	a := newAPI(t, Guards{})
	_, body := a.call(&customer, http.MethodPost, "/bookings", trekBody)
	id := strconv.Itoa(bookingID(t, body))
	_, body = a.call(&customer, http.MethodPost, "/reschedules/initiate", `{"bookingId":`+id+`,"rescheduleReason":"r","newBatchId":2}`)
	rid := strconv.Itoa(int(body["id"].(float64)))

	code, _ := a.call(&operator, http.MethodPost, "/reschedules/"+rid+"/cancel", "")
	assert.Equal(t, http.StatusForbidden, code)
	code, body = a.call(&customer, http.MethodPost, "/reschedules/"+rid+"/cancel", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["status"])
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	rl := config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour,
		KeyStrategy: "user", Prefix: "rl",
	}
	a := newAPI(t, Guards{RateLimit: middleware.NewTokenBucket(rl, nil, obs.Discard())})

	code, _ := a.call(&customer, http.MethodPost, "/bookings", trekBody)
	assert.Equal(t, http.StatusCreated, code)
	code, body := a.call(&customer, http.MethodPost, "/bookings", trekBody)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "too_many_requests", body["error"])

	// reads are not limited
	for i := 0; i < 3; i++ {
		code, _ = a.call(&customer, http.MethodGet, "/bookings/user/1", "")
		assert.Equal(t, http.StatusOK, code)
	}
}
