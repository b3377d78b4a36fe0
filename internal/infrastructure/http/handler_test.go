package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appCheckout "github.com/ucp-labs/checkout-core/internal/application/checkout"
	appIdem "github.com/ucp-labs/checkout-core/internal/application/idempotency"
	appInventory "github.com/ucp-labs/checkout-core/internal/application/inventory"
	appOrder "github.com/ucp-labs/checkout-core/internal/application/order"
	domaudit "github.com/ucp-labs/checkout-core/internal/domain/audit"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/id"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/memory"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/staticcatalog"
	"github.com/ucp-labs/checkout-core/internal/observability"
)

type recordingAuditLog struct {
	mu      sync.Mutex
	entries []domaudit.Entry
}

func (l *recordingAuditLog) Log(_ context.Context, entry domaudit.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *recordingAuditLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type serverFixture struct {
	server *httptest.Server
	ledger *memory.InventoryRepository
	audit  *recordingAuditLog
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	catalog := staticcatalog.New()
	sessions := memory.NewCheckoutRepository()
	orders := memory.NewOrderRepository()
	ledger := memory.NewInventoryRepository()

	checkoutSvc := appCheckout.NewService(sessions, catalog, catalog, id.NewUUIDGenerator(), nil)
	placeOrder := appOrder.NewPlaceOrderUseCase(sessions, orders, ledger, catalog, observability.Nop())
	orderSvc := appOrder.NewService(orders, nil)
	inventorySvc := appInventory.NewService(ledger, nil)
	gate := appIdem.NewGate(memory.NewIdempotencyStore(), nil)
	auditLog := &recordingAuditLog{}

	handler := NewHandler(checkoutSvc, placeOrder, orderSvc, inventorySvc, catalog, gate, auditLog, nil, nil, nil)
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	return &serverFixture{server: server, ledger: ledger, audit: auditLog}
}

func (f *serverFixture) do(t *testing.T, method, path string, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func (f *serverFixture) createCheckout(t *testing.T, productID string, quantity int) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/checkouts",
		`{"product_id":"`+productID+`","quantity":`+jsonInt(quantity)+`}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session sessionResponse
	decodeBody(t, resp, &session)
	require.NotEmpty(t, session.ID)
	return session.ID
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", readBody(t, resp))
}

func TestCreateCheckout_ReplaysByteIdentical(t *testing.T) {
	f := newServerFixture(t)
	body := `{"product_id":"SKU-MUG","quantity":2}`
	headers := map[string]string{"Idempotency-Key": "create-1"}

	first := f.do(t, http.MethodPost, "/checkouts", body, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Empty(t, first.Header.Get("Idempotency-Replayed"))
	firstBody := readBody(t, first)

	second := f.do(t, http.MethodPost, "/checkouts", body, headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotency-Replayed"))
	assert.Equal(t, firstBody, readBody(t, second), "replay must return the stored response verbatim")
}

func TestCreateCheckout_ReplayDoesNotAuditTwice(t *testing.T) {
	f := newServerFixture(t)
	body := `{"product_id":"SKU-MUG","quantity":1}`
	headers := map[string]string{"Idempotency-Key": "create-1"}

	first := f.do(t, http.MethodPost, "/checkouts", body, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	first.Body.Close()

	second := f.do(t, http.MethodPost, "/checkouts", body, headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	require.Equal(t, "true", second.Header.Get("Idempotency-Replayed"))
	second.Body.Close()

	assert.Equal(t, 1, f.audit.count(), "a replayed response must not emit a second audit entry")
}

func TestCreateCheckout_KeyReuseWithDifferentBody(t *testing.T) {
	f := newServerFixture(t)
	headers := map[string]string{"Idempotency-Key": "create-1"}

	first := f.do(t, http.MethodPost, "/checkouts", `{"product_id":"SKU-MUG","quantity":1}`, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	first.Body.Close()

	second := f.do(t, http.MethodPost, "/checkouts", `{"product_id":"SKU-MUG","quantity":2}`, headers)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
	var errResp errorResponse
	decodeBody(t, second, &errResp)
	assert.Equal(t, "idempotency_key_conflict", errResp.Code)
}

func TestCheckoutFlow_EndToEnd(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.ledger.SetQuantity(context.Background(), "SKU-MUG", 10))

	checkoutID := f.createCheckout(t, "SKU-MUG", 2)

	resp := f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/customer", `{"email":"shopper@example.com"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/address",
		`{"first_name":"Ada","last_name":"Lovelace","street_address":"1 Analytical Way","locality":"London","postal_code":"EC1","country":"GB"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session sessionResponse
	decodeBody(t, resp, &session)
	require.NotNil(t, session.Payload.Fulfillment)
	assert.Equal(t, "standard", session.Payload.Fulfillment.SelectedOptionID)

	resp = f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/payment", `{"payment_ref":"tok_visa"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/checkouts/"+checkoutID+"/place-order", "",
		map[string]string{"Idempotency-Key": "place-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order orderResponse
	decodeBody(t, resp, &order)
	assert.Equal(t, "ORD-"+checkoutID, order.ID)
	assert.Equal(t, "placed", string(order.Status))
	assert.NotEmpty(t, order.Payload.ProviderOrderNo)

	available, err := f.ledger.GetAvailable(context.Background(), "SKU-MUG")
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	resp = f.do(t, http.MethodGet, "/orders/"+order.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The session is frozen after placement.
	resp = f.do(t, http.MethodPost, "/checkouts/"+checkoutID+"/items", `{"product_id":"SKU-MUG","quantity":1}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "checkout_completed", errResp.Code)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.ledger.SetQuantity(context.Background(), "SKU-MUG", 1))

	checkoutID := f.createCheckout(t, "SKU-MUG", 2)

	resp := f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/address",
		`{"first_name":"Ada","street_address":"1 Analytical Way","locality":"London","country":"GB"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/payment", `{"payment_ref":"tok_visa"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/checkouts/"+checkoutID+"/place-order", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "insufficient_stock", errResp.Code)

	available, err := f.ledger.GetAvailable(context.Background(), "SKU-MUG")
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}

func TestGetCheckout_NotFound(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodGet, "/checkouts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "not_found", errResp.Code)
}

func TestInventoryReadAndWrite(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPut, "/inventory/SKU-MUG", `{"quantity":7}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/inventory/SKU-MUG", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		ProductID string `json:"product_id"`
		Available int    `json:"available"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, "SKU-MUG", out.ProductID)
	assert.Equal(t, 7, out.Available)

	resp = f.do(t, http.MethodGet, "/inventory/SKU-GHOST", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSearchProducts(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodGet, "/products?q=mug", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Products []productResponse `json:"products"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Products, 1)
	assert.Equal(t, "SKU-MUG", out.Products[0].ID)
	assert.Equal(t, int64(1250), out.Products[0].Price)
}

func TestAddItem_ValidationError(t *testing.T) {
	f := newServerFixture(t)
	checkoutID := f.createCheckout(t, "SKU-MUG", 1)

	resp := f.do(t, http.MethodPost, "/checkouts/"+checkoutID+"/items", `{"product_id":"SKU-MUG","quantity":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "validation_error", errResp.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.ledger.SetQuantity(context.Background(), "SKU-MUG", 5))

	checkoutID := f.createCheckout(t, "SKU-MUG", 1)
	resp := f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/address",
		`{"street_address":"1 Analytical Way","locality":"London","country":"GB"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(t, http.MethodPut, "/checkouts/"+checkoutID+"/payment", `{"payment_ref":"tok_visa"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(t, http.MethodPost, "/checkouts/"+checkoutID+"/place-order", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPut, "/orders/ORD-"+checkoutID+"/status", `{"status":"shipped"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order orderResponse
	decodeBody(t, resp, &order)
	assert.Equal(t, "shipped", string(order.Status))

	resp = f.do(t, http.MethodPut, "/orders/ORD-"+checkoutID+"/status", `{"status":"teleported"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
