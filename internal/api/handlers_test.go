package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groshare/groupbuy/internal/auth"
	"github.com/groshare/groupbuy/internal/domain/order"
	"github.com/groshare/groupbuy/internal/infrastructure/store"
	"github.com/groshare/groupbuy/internal/lock"
	"github.com/groshare/groupbuy/internal/payment"
	"github.com/groshare/groupbuy/internal/pubsub"
	"github.com/groshare/groupbuy/internal/service"
)

type testEnv struct {
	router http.Handler
	jwt    *auth.JWTService
}

func newTestEnv() *testEnv {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	hub := pubsub.NewHub(log)
	svc := service.New(service.Deps{
		Repo:      store.NewMemory(),
		Locks:     lock.NewKeyedMutex(),
		Publisher: hub,
		Gateway:   payment.NewSimulatedGateway(1.0, 1.0),
		Log:       log,
	})

	jwtService := auth.NewJWTService("test-secret", time.Hour)
	handlers := NewHandlers(svc, hub, log)
	return &testEnv{
		router: NewRouter(handlers, jwtService),
		jwt:    jwtService,
	}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, _, err := e.jwt.GenerateToken(userID, "Test User", userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func createPayload() map[string]any {
	return map[string]any{
		"item_name":         "Rice (Miniket)",
		"category":          "groceries",
		"unit":              "kg",
		"total_quantity":    100,
		"minimum_threshold": 50,
		"price_per_unit":    10,
		"location":          map[string]string{"city": "Dhaka", "area": "Mirpur"},
		"deadline":          time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}
}

func (e *testEnv) createOrder(t *testing.T, organizer string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/orders", organizer, createPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	return o["id"].(string)
}

// ============================================
// Auth Tests
// ============================================

func TestAPI_RequiresToken(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/orders", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RejectsGarbageToken(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_HealthzIsPublic(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================
// Order Endpoint Tests
// ============================================

func TestAPI_CreateOrder(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/orders", "user-org", createPayload())

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, "user-org", o["organizer"])
	assert.Equal(t, string(order.StatusActive), o["status"])
	assert.Equal(t, 0.0, o["progress_percentage"])
	assert.Equal(t, 100.0, o["remaining_quantity"])
	assert.Equal(t, false, o["is_threshold_reached"])
}

func TestAPI_CreateOrder_ValidationMapsTo400(t *testing.T) {
	env := newTestEnv()
	payload := createPayload()
	payload["minimum_threshold"] = 200 // above total

	rec := env.do(t, http.MethodPost, "/orders", "user-org", payload)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodGet, "/orders/"+id, "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, id, o["id"])
}

func TestAPI_GetOrder_UnknownMapsTo404(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/orders/no-such-order", "user-1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_JoinOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 30})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, 30.0, o["current_quantity"])
	assert.Equal(t, 30.0, o["progress_percentage"])
}

func TestAPI_JoinOrder_DuplicateMapsTo409(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")
	env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 10})

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 5})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_JoinOrder_ZeroQuantityMapsTo400(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 0})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_JoinCrossingThresholdLocksOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 30})
	rec := env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-2", map[string]any{"quantity": 25})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, string(order.StatusLocked), o["status"])

	// Further joins conflict.
	rec = env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-3", map[string]any{"quantity": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_LeaveOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")
	env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 10})

	rec := env.do(t, http.MethodDelete, "/orders/"+id+"/leave", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, 0.0, o["current_quantity"])
}

func TestAPI_LockOrder_NonOrganizerMapsTo403(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/lock", "user-1", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_CompleteOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")
	env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 55})

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/complete", "user-org", map[string]any{
		"delivery_time": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, string(order.StatusCompleted), o["status"])
}

func TestAPI_CancelOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/cancel", "user-org", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/orders/"+id, "user-org", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelOrder_WithParticipantsMapsTo409(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")
	env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 10})

	rec := env.do(t, http.MethodPost, "/orders/"+id+"/cancel", "user-org", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_UpdateOrder(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPut, "/orders/"+id, "user-org", map[string]any{
		"notes": "pickup at the community center",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, "pickup at the community center", o["notes"])
}

// ============================================
// Listing Tests
// ============================================

func TestAPI_ListOrders_PaginationEnvelope(t *testing.T) {
	env := newTestEnv()
	for i := 0; i < 15; i++ {
		env.createOrder(t, fmt.Sprintf("user-%d", i))
	}

	rec := env.do(t, http.MethodGet, "/orders?page=2&limit=10", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	orders := body["orders"].([]any)
	assert.Len(t, orders, 5)

	p := body["pagination"].(map[string]any)
	assert.Equal(t, 2.0, p["currentPage"])
	assert.Equal(t, 2.0, p["totalPages"])
	assert.Equal(t, 15.0, p["totalOrders"])
	assert.Equal(t, false, p["hasNext"])
	assert.Equal(t, true, p["hasPrev"])
}

func TestAPI_UserOrders_OnlyCallerInvolvement(t *testing.T) {
	env := newTestEnv()
	mine := env.createOrder(t, "user-a")
	env.createOrder(t, "user-b")
	joined := env.createOrder(t, "user-c")
	env.do(t, http.MethodPost, "/orders/"+joined+"/join", "user-a", map[string]any{"quantity": 5})

	rec := env.do(t, http.MethodGet, "/users/orders", "user-a", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	orders := body["orders"].([]any)
	require.Len(t, orders, 2)
	var ids []string
	for _, item := range orders {
		ids = append(ids, item.(map[string]any)["id"].(string))
	}
	assert.ElementsMatch(t, []string{mine, joined}, ids)
}

// ============================================
// Payment Endpoint Tests
// ============================================

func TestAPI_ProcessPayment(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPost, "/payments/process", "user-1", map[string]any{
		"order_id":       id,
		"quantity":       30,
		"payment_method": payment.MethodBkash,
		"payment_details": map[string]string{
			"mobile_number":  "01712345678",
			"transaction_id": "BKA123",
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	result := body["paymentResult"].(map[string]any)
	assert.Equal(t, true, result["success"])
	o := body["order"].(map[string]any)
	assert.Equal(t, 300.0, o["total_revenue"])
}

func TestAPI_ProcessPayment_BadDetailsMapsTo400(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodPost, "/payments/process", "user-1", map[string]any{
		"order_id":       id,
		"quantity":       30,
		"payment_method": payment.MethodBkash,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PaymentStatus(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")
	env.do(t, http.MethodPost, "/orders/"+id+"/join", "user-1", map[string]any{"quantity": 12})

	rec := env.do(t, http.MethodGet, "/payments/order/"+id, "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 12.0, body["quantity"])
	assert.Equal(t, string(order.PaymentPending), body["paymentStatus"])
}

func TestAPI_PaymentStatus_NotParticipantMapsTo409(t *testing.T) {
	env := newTestEnv()
	id := env.createOrder(t, "user-org")

	rec := env.do(t, http.MethodGet, "/payments/order/"+id, "user-ghost", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_PaymentMethods(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/payments/methods", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	methods := body["methods"].([]any)
	assert.Len(t, methods, 3)
}

func TestAPI_VerifyPayment(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/payments/verify", "user-1", map[string]any{
		"transaction_id": "TXN_42",
		"payment_method": payment.MethodNagad,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["verified"])
}
