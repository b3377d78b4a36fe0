package scapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
	"github.com/ucp-labs/checkout-core/internal/domain/checkout"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

const componentClient = "scapi_client"

const searchLimit = 50

// Client talks to a Commerce-Cloud-style shopper API. It implements the
// catalog provider port and order submission for the finalizer.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  *tokenSource
	log     observability.Logger
	metrics observability.Metrics
}

func NewClient(cfg Config, logger observability.Logger, metrics observability.Metrics) *Client {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		tokens:  newTokenSource(cfg, httpClient),
		log:     logger.With(observability.F("component", componentClient)),
		metrics: metrics,
	}
}

type searchHit struct {
	ProductID   string   `json:"productId"`
	ProductName string   `json:"productName"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Image       *struct {
		Link string `json:"link"`
	} `json:"image"`
	RepresentedProduct map[string]any `json:"representedProduct"`
}

type searchResponse struct {
	Hits  []searchHit `json:"hits"`
	Total int         `json:"total"`
}

func (c *Client) SearchProducts(ctx context.Context, query string) ([]*catalog.Product, error) {
	u := c.cfg.productSearchURL() + "?" + url.Values{
		"siteId": {c.cfg.SiteID},
		"q":      {query},
		"limit":  {strconv.Itoa(searchLimit)},
		"offset": {"0"},
	}.Encode()

	var resp searchResponse
	if err := c.call(ctx, "product_search", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}

	products := make([]*catalog.Product, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		products = append(products, mapHit(hit))
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	products, err := c.SearchProducts(ctx, productID)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if p.ID == productID {
			return p, nil
		}
	}
	if len(products) > 0 {
		return products[0], nil
	}
	return nil, catalog.ErrNotFound
}

func mapHit(hit searchHit) *catalog.Product {
	p := &catalog.Product{
		ID:    hit.ProductID,
		Title: hit.ProductName,
		// Shopper API prices are major units; the core works in cents.
		Price: int64(math.Round(hit.Price * 100)),
	}
	if hit.Image != nil {
		p.ImageURL = hit.Image.Link
	}
	if cat, ok := hit.RepresentedProduct["categoryId"].(string); ok {
		p.Category = cat
	}
	return p
}

// SubmitOrder drives the provider's basket flow end to end and returns
// the provider order number. Any step failing yields a ProviderError;
// the abandoned basket is left for the provider to expire.
func (c *Client) SubmitOrder(ctx context.Context, session *checkout.Session) (string, error) {
	basketID, err := c.createBasket(ctx)
	if err != nil {
		return "", err
	}
	logger := logctx.FromOr(ctx, c.log).With(
		observability.F("basket_id", basketID),
		observability.F("checkout_id", session.ID),
	)
	logger.Info("provider_basket_created")

	if err := c.addItems(ctx, basketID, session.Payload.LineItems); err != nil {
		return "", err
	}
	if email := session.Payload.CustomerEmail; email != "" {
		if err := c.setCustomer(ctx, basketID, email); err != nil {
			return "", err
		}
	}
	if addr := session.Payload.ShippingAddress; addr != nil {
		if err := c.setBillingAddress(ctx, basketID, addr); err != nil {
			return "", err
		}
		if err := c.updateShipment(ctx, basketID, addr, shippingMethodID(session.Payload)); err != nil {
			return "", err
		}
	}
	if err := c.addPaymentInstrument(ctx, basketID, session.Payload.PaymentRef); err != nil {
		return "", err
	}
	for _, code := range session.Payload.CouponCodes {
		if err := c.addCoupon(ctx, basketID, code); err != nil {
			return "", err
		}
	}

	orderNo, err := c.createOrder(ctx, basketID)
	if err != nil {
		return "", err
	}
	logger.Info("provider_order_created", observability.F("order_no", orderNo))
	return orderNo, nil
}

func (c *Client) createBasket(ctx context.Context) (string, error) {
	var resp struct {
		BasketID string `json:"basketId"`
	}
	if err := c.call(ctx, "create_basket", http.MethodPost, c.cfg.basketsURL(), map[string]any{}, &resp); err != nil {
		return "", err
	}
	if resp.BasketID == "" {
		return "", &catalog.ProviderError{Op: "create_basket", Err: fmt.Errorf("response missing basketId")}
	}
	return resp.BasketID, nil
}

func (c *Client) addItems(ctx context.Context, basketID string, items []checkout.LineItem) error {
	body := make([]map[string]any, 0, len(items))
	for _, li := range items {
		body = append(body, map[string]any{
			"productId": li.ProductID,
			"quantity":  li.Quantity,
		})
	}
	return c.call(ctx, "add_items", http.MethodPost, c.cfg.basketItemsURL(basketID), body, nil)
}

func (c *Client) setCustomer(ctx context.Context, basketID, email string) error {
	return c.call(ctx, "set_customer", http.MethodPut, c.cfg.basketCustomerURL(basketID),
		map[string]any{"email": email}, nil)
}

func addressBody(addr *checkout.Address) map[string]any {
	return map[string]any{
		"firstName":   addr.FirstName,
		"lastName":    addr.LastName,
		"address1":    addr.StreetAddress,
		"city":        addr.Locality,
		"postalCode":  addr.PostalCode,
		"stateCode":   addr.Region,
		"countryCode": addr.Country,
	}
}

func (c *Client) setBillingAddress(ctx context.Context, basketID string, addr *checkout.Address) error {
	return c.call(ctx, "set_billing_address", http.MethodPut, c.cfg.basketBillingURL(basketID),
		addressBody(addr), nil)
}

func (c *Client) updateShipment(ctx context.Context, basketID string, addr *checkout.Address, methodID string) error {
	return c.call(ctx, "update_shipment", http.MethodPatch, c.cfg.basketShipmentURL(basketID),
		map[string]any{
			"shippingAddress": addressBody(addr),
			"shippingMethod":  map[string]any{"id": methodID},
		}, nil)
}

func (c *Client) addPaymentInstrument(ctx context.Context, basketID, paymentRef string) error {
	methodID := paymentRef
	if methodID == "" {
		methodID = "CREDIT_CARD"
	}
	return c.call(ctx, "add_payment_instrument", http.MethodPost, c.cfg.basketPaymentURL(basketID),
		map[string]any{
			"paymentMethodId": methodID,
			"paymentCard":     map[string]any{"cardType": "Visa"},
		}, nil)
}

func (c *Client) addCoupon(ctx context.Context, basketID, code string) error {
	return c.call(ctx, "add_coupon", http.MethodPost, c.cfg.basketCouponsURL(basketID),
		map[string]any{"code": code}, nil)
}

func (c *Client) createOrder(ctx context.Context, basketID string) (string, error) {
	var resp struct {
		OrderNo string `json:"orderNo"`
	}
	if err := c.call(ctx, "create_order", http.MethodPost, c.cfg.ordersURL(),
		map[string]any{"basketId": basketID}, &resp); err != nil {
		return "", err
	}
	if resp.OrderNo == "" {
		return "", &catalog.ProviderError{Op: "create_order", Err: fmt.Errorf("response missing orderNo")}
	}
	return resp.OrderNo, nil
}

// Provider shipment method ids are opaque codes, not the option ids the
// checkout exposes.
func shippingMethodID(payload checkout.Payload) string {
	if opt := payload.SelectedFulfillmentOption(); opt != nil && opt.ID == checkout.FulfillmentExpress {
		return "002"
	}
	return "001"
}

// call performs one provider request with bearer auth, JSON bodies both
// ways, and RED metrics per operation.
func (c *Client) call(ctx context.Context, op, method, rawURL string, body, out any) error {
	start := time.Now()
	err := c.doCall(ctx, method, rawURL, body, out)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.Counter(observability.MExternalRequests).Add(1,
		observability.L("peer", "scapi"),
		observability.L("endpoint", op),
		observability.L("outcome", outcome),
	)
	c.metrics.Histogram(observability.MExternalRequestDuration).Observe(time.Since(start).Seconds(),
		observability.L("peer", "scapi"),
		observability.L("endpoint", op),
	)

	if err != nil {
		logctx.FromOr(ctx, c.log).Warn("provider_call_failed",
			observability.F("op", op),
			observability.F("error", err.Error()),
		)
		return &catalog.ProviderError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) doCall(ctx context.Context, method, rawURL string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
