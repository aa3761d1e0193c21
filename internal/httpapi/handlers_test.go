package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duckbunn/backend/internal/domain"
	"duckbunn/backend/internal/service"
	"duckbunn/backend/internal/store/memory"
)

type testEnv struct {
	server       *Server
	adminToken   string
	cashierToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, service.Options{})
	auth, err := NewAuthManager(repo, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if err := auth.Bootstrap(context.Background(), "admin-secret-pw", "cashier-secret-pw"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	env := &testEnv{server: NewServer(svc, auth)}
	env.adminToken = env.login(t, "admin", "admin-secret-pw")
	env.cashierToken = env.login(t, "cashier", "cashier-secret-pw")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) createOrder(t *testing.T, total int64, items ...domain.OrderLineRequest) domain.OrderCreateResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/orders", e.cashierToken, domain.OrderCreateRequest{
		UserID:     "cashier",
		ShiftID:    "shift-test",
		TotalCents: total,
		Items:      items,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: status %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.OrderCreateResponse](t, rec)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/orders", "/products", "/customers", "/goods", "/users"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without token: status %d, want 401", path, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/orders", "bogus-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token: status %d, want 401", rec.Code)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	resp := env.createOrder(t, 1800, domain.OrderLineRequest{ProductID: "prod-espresso", Quantity: 1})

	// Status polling is public.
	rec := env.do(t, http.MethodGet, "/orders/status/"+resp.OrderCode, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status poll: %d: %s", rec.Code, rec.Body.String())
	}
	status := decodeBody[domain.OrderStatus](t, rec)
	if status.Status != domain.OrderStatusPending {
		t.Fatalf("status = %q, want pending", status.Status)
	}

	rec = env.do(t, http.MethodPut, "/orders/paid/"+resp.OrderCode, env.cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid: %d: %s", rec.Code, rec.Body.String())
	}
	order := decodeBody[domain.Order](t, rec)
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("order status = %q, want paid", order.Status)
	}

	// Paid orders cannot be cancelled.
	rec = env.do(t, http.MethodPost, "/orders/cancel/"+resp.OrderCode, env.cashierToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel paid: %d, want 409", rec.Code)
	}
}

func TestCreateOrderHTTPErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/orders", env.cashierToken, domain.OrderCreateRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty request: %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/orders", env.cashierToken, domain.OrderCreateRequest{
		UserID:     "cashier",
		ShiftID:    "shift-test",
		TotalCents: 100,
		Items:      []domain.OrderLineRequest{{ProductID: "prod-croissant", Quantity: 9999}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell: %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/orders/ord-missing", env.cashierToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown order: %d, want 404", rec.Code)
	}
}

func TestPaymentWebhook(t *testing.T) {
	env := newTestEnv(t)
	resp := env.createOrder(t, 500, domain.OrderLineRequest{ProductID: "prod-water", Quantity: 1})

	rec := env.do(t, http.MethodPost, "/webhooks/payment", "", domain.PaymentWebhookRequest{
		Content: fmt.Sprintf("Transfer received for %s, thank you", resp.OrderCode),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/webhooks/payment", "", domain.PaymentWebhookRequest{Content: "nothing useful"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("webhook without code: %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/webhooks/payment", "", domain.PaymentWebhookRequest{Content: "paid DH42nobody"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("webhook unknown code: %d, want 404", rec.Code)
	}
}

func TestShiftEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/shifts/open", env.cashierToken, domain.ShiftOpenRequest{
		UserID:         "cashier",
		OpeningBalance: domain.DenominationCount{10000: 2},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open shift: %d: %s", rec.Code, rec.Body.String())
	}
	opened := decodeBody[domain.ShiftResponse](t, rec)
	if opened.Shift.OpeningTotalCents != 20000 {
		t.Fatalf("opening total = %d, want 20000", opened.Shift.OpeningTotalCents)
	}

	rec = env.do(t, http.MethodPost, "/shifts/open", env.cashierToken, domain.ShiftOpenRequest{
		UserID:         "cashier",
		OpeningBalance: domain.DenominationCount{1000: 1},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second open: %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/shifts/open/current/cashier", env.cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current shift: %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/shifts/"+opened.Shift.ID+"/close", env.cashierToken, domain.ShiftCloseRequest{
		ClosingBalance: domain.DenominationCount{10000: 2},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close shift: %d: %s", rec.Code, rec.Body.String())
	}
	closed := decodeBody[domain.ShiftResponse](t, rec)
	if closed.Shift.Status != domain.ShiftStatusClosed || closed.Shift.DifferenceCents != 0 {
		t.Fatalf("closed shift = %+v", closed.Shift)
	}

	rec = env.do(t, http.MethodGet, "/shifts/open/current/cashier", env.cashierToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("current after close: %d, want 409", rec.Code)
	}
}

func TestGoodsEndpointsRequireAdminForApproval(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/goods", env.cashierToken, domain.GoodsCreateRequest{
		Code:  "IM-2024-007",
		Type:  domain.GoodsTypeImport,
		Items: []domain.GoodsLineRequest{{ProductID: "prod-water", Quantity: 50}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create goods: %d: %s", rec.Code, rec.Body.String())
	}
	doc := decodeBody[domain.GoodsDocument](t, rec)

	rec = env.do(t, http.MethodPut, "/goods/"+doc.ID+"/approve", env.cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier approve: %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/goods/"+doc.ID+"/approve", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin approve: %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/goods/"+doc.ID+"/approve", env.adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double approve: %d, want 409", rec.Code)
	}
}

func TestProductCRUDOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/products", env.adminToken, domain.ProductCreateRequest{
		Name: "Green Tea", PriceCents: 1500, Category: "tea", Quantity: 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Product](t, rec)

	newPrice := int64(1600)
	rec = env.do(t, http.MethodPut, "/products/"+created.ID, env.adminToken, domain.ProductUpdateRequest{PriceCents: &newPrice})
	if rec.Code != http.StatusOK {
		t.Fatalf("update product: %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[domain.Product](t, rec)
	if updated.PriceCents != 1600 {
		t.Fatalf("price = %d, want 1600", updated.PriceCents)
	}

	// Delete is admin-only.
	rec = env.do(t, http.MethodDelete, "/products/"+created.ID, env.cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier delete: %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/products/"+created.ID, env.adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete: %d, want 204", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/products/"+created.ID, env.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d, want 404", rec.Code)
	}
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/users", env.cashierToken, domain.CashierCreateRequest{Username: "x", Password: "password123"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier creates user: %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/users", env.adminToken, domain.CashierCreateRequest{Username: "dina", Password: "password123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin creates user: %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/users", env.adminToken, domain.CashierCreateRequest{Username: "dina", Password: "password123"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate user: %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/users", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: %d", rec.Code)
	}
	users := decodeBody[[]domain.CashierUser](t, rec)
	if len(users) != 3 {
		t.Fatalf("user count = %d, want 3", len(users))
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"user_id": `))
	req.Header.Set("Authorization", "Bearer "+env.cashierToken)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d, want 400", rec.Code)
	}

	// Unknown fields are rejected too.
	req = httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"surprise": true}`))
	req.Header.Set("Authorization", "Bearer "+env.cashierToken)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d, want 400", rec.Code)
	}
}

func TestCancelPendingEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/orders/cancel-pending", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel-pending: %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[map[string]int](t, rec)
	if result["cancelled"] != 0 {
		t.Fatalf("cancelled = %d, want 0 on a fresh store", result["cancelled"])
	}
}
