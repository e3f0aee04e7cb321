package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
	"github.com/ssujit905/Inventory-sub001/internal/metrics"
	"github.com/ssujit905/Inventory-sub001/internal/service"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/store/memory"
)

const testSecret = "test-secret-key-with-enough-entropy-0123"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, nil)
	auth := NewAuthManager(testSecret, time.Hour, repo)

	return New(svc, auth, "*", nil, nil)
}

// doJSON sends an authenticated request. Mutating requests carry a fresh
// CSRF token.
func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (status %d)", err, rec.Code)
	}
}

func errorReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["reason"]
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id header")
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "staff",
		"password": "staff123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	decodeBody(t, rec, &body)
	if body.AccessToken == "" || body.Role != domain.RoleStaff {
		t.Fatalf("expected staff token in response, got %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if reason := errorReason(t, rec); reason != "unauthorized" {
		t.Fatalf("expected unauthorized reason, got %q", reason)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &body)
	if len(body.Products) != 2 {
		t.Fatalf("expected seeded products, got %+v", body.Products)
	}
}

func TestStaffIsForbiddenOnAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on audit logs, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/expenses", token, map[string]any{
		"category": "ads",
		"amount":   "15",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on expense create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if reason := errorReason(t, rec); reason != "forbidden" {
		t.Fatalf("expected forbidden reason, got %q", reason)
	}

	rec = doJSON(t, api, http.MethodPatch, "/api/v1/lots/lot-cap-1/cost", token, map[string]any{"cost_price": "3"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on cost correction, got %d", rec.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"order_date":    "2024-04-02",
		"customer_name": "Rita",
		"items":         []map[string]any{{"product_id": "prod-tee", "quantity": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleResponse
	decodeBody(t, rec, &created)
	if len(created.Transactions) != 1 || created.Transactions[0].LotID != "lot-tee-2" || created.Transactions[0].QuantityChanged != -2 {
		t.Fatalf("expected deduction from the first lot with stock, got %+v", created.Transactions)
	}
	saleID := created.Sale.ID

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/"+saleID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on sale lookup, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+saleID+"/status", token, map[string]any{"status": "delivered", "sold_amount": "30"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for processing -> delivered, got %d", rec.Code)
	}
	if reason := errorReason(t, rec); reason != "invalid_state_transition" {
		t.Fatalf("expected invalid_state_transition, got %q", reason)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+saleID+"/status", token, map[string]any{"status": "sent"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sent, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+saleID+"/status", token, map[string]any{"status": "delivered", "sold_amount": "30"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for delivered, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var delivered struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, rec, &delivered)
	if delivered.Sale.ParcelStatus != domain.ParcelDelivered || delivered.Sale.SoldAmount.String() != "30" {
		t.Fatalf("unexpected delivered sale %+v", delivered.Sale)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+saleID+"/status", token, map[string]any{"status": "delivered", "sold_amount": "35"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second amount write, got %d", rec.Code)
	}
	if reason := errorReason(t, rec); reason != "write_once" {
		t.Fatalf("expected write_once, got %q", reason)
	}
}

func TestSaleInsufficientStockReason(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{{"product_id": "prod-cap", "quantity": 5}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if reason := errorReason(t, rec); reason != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock, got %q", reason)
	}
}

func TestSalePlanAndUnknownSale(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales/plan", token, map[string]any{
		"items": []map[string]any{{"product_id": "prod-tee", "quantity": 3}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for plan, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var plan domain.SalePlanResponse
	decodeBody(t, rec, &plan)
	if len(plan.Plans) != 1 || len(plan.Plans[0].Steps) != 1 || plan.Plans[0].Steps[0].LotID != "lot-tee-2" {
		t.Fatalf("unexpected plan %+v", plan)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/sale-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if reason := errorReason(t, rec); reason != "not_found" {
		t.Fatalf("expected not_found, got %q", reason)
	}
}

func TestReportsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/reports/profit", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report domain.ProfitReport
	decodeBody(t, rec, &report)
	if report.Summary.Sales != 4 || len(report.SaleRows) == 0 {
		t.Fatalf("unexpected report %+v", report.Summary)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/stock-alerts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var alerts domain.StockAlertResponse
	decodeBody(t, rec, &alerts)
	if len(alerts.Alerts) != 1 || alerts.Alerts[0].ProductID != "prod-cap" {
		t.Fatalf("unexpected alerts %+v", alerts.Alerts)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/lots/status?product_id=prod-tee", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var lots domain.LotStatusListResponse
	decodeBody(t, rec, &lots)
	if len(lots.Lots) != 2 {
		t.Fatalf("expected two tee lots, got %+v", lots.Lots)
	}
}

func TestAdminLotCostCorrection(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPatch, "/api/v1/lots/lot-cap-1/cost", token, map[string]any{"cost_price": "3", "reason": "invoice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/audit-logs?limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		AuditLogs []domain.AuditLog `json:"audit_logs"`
	}
	decodeBody(t, rec, &body)
	found := false
	for _, entry := range body.AuditLogs {
		found = found || entry.Action == "lot_cost_correct"
	}
	if !found {
		t.Fatalf("expected cost correction audit entry, got %+v", body.AuditLogs)
	}
}

func TestAdminManagesStaff(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/users/staff", token, map[string]string{"username": "packer02", "password": "packing-pass"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if tok := loginAs(t, api, "packer02", "packing-pass"); tok == "" {
		t.Fatalf("expected new staff to log in")
	}
}

func TestMetricsEndpointExposesLedgerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, metrics.NewLedgerMetrics(reg))
	api := New(svc, NewAuthManager(testSecret, time.Hour, repo), "*", nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{{"product_id": "prod-tee", "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ledger_sales_committed_total 1") {
		t.Fatalf("expected committed sale counter, got:\n%s", rec.Body.String())
	}
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{&ledger.InsufficientStockError{ProductID: "p", Requested: 2, Available: 1}, http.StatusConflict, "insufficient_stock"},
		{store.ErrStockConflict, http.StatusConflict, "stock_conflict"},
		{store.ErrStatusConflict, http.StatusConflict, "conflict"},
		{fmt.Errorf("advance: %w", ledger.ErrInvalidStateTransition), http.StatusUnprocessableEntity, "invalid_state_transition"},
		{service.ErrWriteOnce, http.StatusConflict, "write_once"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{store.ErrNotFound, http.StatusNotFound, "not_found"},
		{ledger.ErrAmountRequired, http.StatusBadRequest, "invalid_request"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		status, reason := statusFor(tc.err)
		if status != tc.status || reason != tc.reason {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.reason, status, reason)
		}
	}
}
