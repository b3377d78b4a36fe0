package scapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
	"github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

// fakeProvider emulates just enough of the shopper API for the client:
// token grants, product search, and the basket-to-order flow.
type fakeProvider struct {
	mu         sync.Mutex
	tokenHits  int
	calls      []string // "METHOD path" in arrival order
	bodies     map[string]json.RawMessage
	searchHits []map[string]any
	failSearch bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{bodies: make(map[string]json.RawMessage)}
}

func (f *fakeProvider) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies[r.Method+" "+r.URL.Path] = body
		f.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/oauth2/token"):
			f.mu.Lock()
			f.tokenHits++
			f.mu.Unlock()
			writeResponse(w, map[string]any{"access_token": "tok-123", "expires_in": 1800})
		case strings.HasSuffix(r.URL.Path, "/product-search"):
			if f.failSearch {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
				return
			}
			writeResponse(w, map[string]any{"hits": f.searchHits, "total": len(f.searchHits)})
		case strings.HasSuffix(r.URL.Path, "/baskets"):
			writeResponse(w, map[string]any{"basketId": "bsk-1"})
		case strings.HasSuffix(r.URL.Path, "/orders"):
			writeResponse(w, map[string]any{"orderNo": "00012345"})
		default:
			writeResponse(w, map[string]any{})
		}
	})
}

func writeResponse(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, fake *fakeProvider) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return NewClient(Config{
		Host:         server.URL,
		OrgID:        "org1",
		ClientID:     "client",
		ClientSecret: "secret",
		ChannelID:    "chan1",
		SiteID:       "SiteA",
	}, nil, nil)
}

func TestToken_FetchedOnceAndCached(t *testing.T) {
	ctx := context.Background()
	fake := newFakeProvider()
	client := newTestClient(t, fake)

	_, err := client.SearchProducts(ctx, "mug")
	require.NoError(t, err)
	_, err = client.SearchProducts(ctx, "mug")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.tokenHits, "a live token must be reused")
}

func TestSearchProducts_MapsHits(t *testing.T) {
	ctx := context.Background()
	fake := newFakeProvider()
	fake.searchHits = []map[string]any{
		{
			"productId":          "SKU-MUG",
			"productName":        "Ceramic Mug",
			"price":              12.50,
			"image":              map[string]any{"link": "https://cdn.example.com/mug.jpg"},
			"representedProduct": map[string]any{"categoryId": "home"},
		},
		{
			"productId":   "SKU-TSHIRT",
			"productName": "Classic Tee",
			"price":       19.99,
		},
	}
	client := newTestClient(t, fake)

	products, err := client.SearchProducts(ctx, "mug")
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "SKU-MUG", products[0].ID)
	assert.Equal(t, "Ceramic Mug", products[0].Title)
	assert.Equal(t, int64(1250), products[0].Price)
	assert.Equal(t, "https://cdn.example.com/mug.jpg", products[0].ImageURL)
	assert.Equal(t, "home", products[0].Category)

	assert.Equal(t, int64(1999), products[1].Price)
	assert.Empty(t, products[1].ImageURL)
}

func TestGetProduct_PrefersExactIDMatch(t *testing.T) {
	ctx := context.Background()
	fake := newFakeProvider()
	fake.searchHits = []map[string]any{
		{"productId": "SKU-MUG-XL", "productName": "Big Mug", "price": 15.00},
		{"productId": "SKU-MUG", "productName": "Ceramic Mug", "price": 12.50},
	}
	client := newTestClient(t, fake)

	product, err := client.GetProduct(ctx, "SKU-MUG")
	require.NoError(t, err)
	assert.Equal(t, "SKU-MUG", product.ID)
}

func TestGetProduct_NoHits(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newFakeProvider())

	_, err := client.GetProduct(ctx, "SKU-GHOST")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSubmitOrder_DrivesFullBasketFlow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeProvider()
	client := newTestClient(t, fake)

	session := checkout.New("chk-1")
	session.Payload.CustomerEmail = "shopper@example.com"
	session.Payload.LineItems = []checkout.LineItem{
		{ProductID: "SKU-MUG", Quantity: 2},
	}
	session.Payload.ShippingAddress = &checkout.Address{
		FirstName:     "Ada",
		StreetAddress: "1 Analytical Way",
		Locality:      "London",
		Country:       "GB",
	}
	session.Payload.PaymentRef = "CREDIT_CARD"
	session.Payload.CouponCodes = []string{"SAVE10"}
	session.Payload.Fulfillment = &checkout.Fulfillment{
		Options: []checkout.FulfillmentOption{
			{ID: checkout.FulfillmentStandard, Amount: 500},
			{ID: checkout.FulfillmentExpress, Amount: 1000},
		},
		SelectedOptionID: checkout.FulfillmentExpress,
	}

	orderNo, err := client.SubmitOrder(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "00012345", orderNo)

	base := "/checkout/shopper-baskets/v1/organizations/org1/baskets"
	want := []string{
		"POST /shopper/auth/v1/organizations/org1/oauth2/token",
		"POST " + base,
		"POST " + base + "/bsk-1/items",
		"PUT " + base + "/bsk-1/customer",
		"PUT " + base + "/bsk-1/billing-address",
		"PATCH " + base + "/bsk-1/shipments/me",
		"POST " + base + "/bsk-1/payment-instruments",
		"POST " + base + "/bsk-1/coupons",
		"POST /checkout/shopper-orders/v1/organizations/org1/orders",
	}
	assert.Equal(t, want, fake.calls)

	var shipment struct {
		ShippingMethod struct {
			ID string `json:"id"`
		} `json:"shippingMethod"`
	}
	require.NoError(t, json.Unmarshal(fake.bodies["PATCH "+base+"/bsk-1/shipments/me"], &shipment))
	assert.Equal(t, "002", shipment.ShippingMethod.ID, "express shipping maps to the provider's express method")

	var items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	require.NoError(t, json.Unmarshal(fake.bodies["POST "+base+"/bsk-1/items"], &items))
	require.Len(t, items, 1)
	assert.Equal(t, "SKU-MUG", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestSubmitOrder_SkipsOptionalStepsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	fake := newFakeProvider()
	client := newTestClient(t, fake)

	session := checkout.New("chk-1")
	session.Payload.LineItems = []checkout.LineItem{{ProductID: "SKU-MUG", Quantity: 1}}

	_, err := client.SubmitOrder(ctx, session)
	require.NoError(t, err)

	for _, call := range fake.calls {
		assert.NotContains(t, call, "/customer")
		assert.NotContains(t, call, "/billing-address")
		assert.NotContains(t, call, "/shipments")
		assert.NotContains(t, call, "/coupons")
	}
}

func TestCall_ErrorStatusYieldsProviderError(t *testing.T) {
	ctx := context.Background()
	fake := newFakeProvider()
	fake.failSearch = true
	client := newTestClient(t, fake)

	_, err := client.SearchProducts(ctx, "mug")
	var pe *catalog.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "product_search", pe.Op)
	assert.Contains(t, pe.Error(), "500")
}
