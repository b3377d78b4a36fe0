package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ucp-labs/checkout-core/internal/application"
	appCheckout "github.com/ucp-labs/checkout-core/internal/application/checkout"
	appIdem "github.com/ucp-labs/checkout-core/internal/application/idempotency"
	appInventory "github.com/ucp-labs/checkout-core/internal/application/inventory"
	appOrder "github.com/ucp-labs/checkout-core/internal/application/order"
	domAudit "github.com/ucp-labs/checkout-core/internal/domain/audit"
	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
	domCheckout "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	domIdem "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
	domInventory "github.com/ucp-labs/checkout-core/internal/domain/inventory"
	domOrder "github.com/ucp-labs/checkout-core/internal/domain/order"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerIdempotencyKey = "Idempotency-Key"
	headerIdemReplayed   = "Idempotency-Replayed"

	maxBodyBytes = 1 << 20
)

type Handler struct {
	checkouts  *appCheckout.Service
	placeOrder *appOrder.PlaceOrderUseCase
	orders     *appOrder.Service
	inventory  *appInventory.Service
	products   catalog.Provider
	gate       *appIdem.Gate
	audit      domAudit.Logger

	metricsHandler http.Handler
	log            observability.Logger
	metrics        observability.Metrics
}

func NewHandler(
	checkouts *appCheckout.Service,
	placeOrder *appOrder.PlaceOrderUseCase,
	orders *appOrder.Service,
	inventory *appInventory.Service,
	products catalog.Provider,
	gate *appIdem.Gate,
	auditLog domAudit.Logger,
	metricsHandler http.Handler,
	logger observability.Logger,
	metrics observability.Metrics,
) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Handler{
		checkouts:      checkouts,
		placeOrder:     placeOrder,
		orders:         orders,
		inventory:      inventory,
		products:       products,
		gate:           gate,
		audit:          auditLog,
		metricsHandler: metricsHandler,
		log:            logger.With(observability.F("component", componentHTTPHandler)),
		metrics:        metrics,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(observabilityMiddleware(h.log, h.metrics))

	r.Get("/healthz", h.handleHealth)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	r.Get("/products", h.handleSearchProducts)
	r.Get("/products/{productID}", h.handleGetProduct)

	r.Get("/inventory/{productID}", h.handleGetInventory)
	r.Put("/inventory/{productID}", h.handleSetInventory)

	r.Route("/checkouts", func(r chi.Router) {
		r.Post("/", h.handleCreateCheckout)
		r.Route("/{checkoutID}", func(r chi.Router) {
			r.Get("/", h.handleGetCheckout)
			r.Post("/items", h.handleAddItem)
			r.Put("/items/{productID}", h.handleUpdateItem)
			r.Delete("/items/{productID}", h.handleRemoveItem)
			r.Put("/customer", h.handleSetCustomer)
			r.Put("/address", h.handleSetAddress)
			r.Put("/fulfillment", h.handleSelectFulfillment)
			r.Put("/payment", h.handleSetPayment)
			r.Post("/coupons", h.handleApplyCoupon)
			r.Post("/place-order", h.handlePlaceOrder)
		})
	})

	r.Get("/orders/{orderID}", h.handleGetOrder)
	r.Put("/orders/{orderID}/status", h.handleUpdateOrderStatus)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// --- products

func (h *Handler) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// --- inventory

func (h *Handler) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	available, err := h.inventory.GetAvailable(r.Context(), productID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"available":  available,
	})
}

type setInventoryRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleSetInventory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	h.mutate(w, r, "", func(ctx context.Context, body []byte) (int, any, error) {
		var req setInventoryRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		if err := h.inventory.SetQuantity(ctx, productID, req.Quantity); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"product_id": productID,
			"available":  req.Quantity,
		}, nil
	})
}

// --- checkouts

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "", func(ctx context.Context, body []byte) (int, any, error) {
		var req addItemRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.AddItem(ctx, "", req.ProductID, req.Quantity)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, toSessionResponse(session), nil
	})
}

func (h *Handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	session, err := h.checkouts.Get(r.Context(), chi.URLParam(r, "checkoutID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req addItemRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.AddItem(ctx, checkoutID, req.ProductID, req.Quantity)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	productID := chi.URLParam(r, "productID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req updateItemRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.UpdateItemQuantity(ctx, checkoutID, productID, req.Quantity)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	productID := chi.URLParam(r, "productID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, _ []byte) (int, any, error) {
		session, err := h.checkouts.RemoveItem(ctx, checkoutID, productID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

type setCustomerRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req setCustomerRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.SetCustomer(ctx, checkoutID, req.Email)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

type setAddressRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	StreetAddress string `json:"street_address"`
	Locality      string `json:"locality"`
	Region        string `json:"region"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

func (h *Handler) handleSetAddress(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req setAddressRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.SetAddress(ctx, checkoutID, domCheckout.Address{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			StreetAddress: req.StreetAddress,
			Locality:      req.Locality,
			Region:        req.Region,
			PostalCode:    req.PostalCode,
			Country:       req.Country,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

type selectFulfillmentRequest struct {
	OptionID string `json:"option_id"`
}

func (h *Handler) handleSelectFulfillment(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req selectFulfillmentRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.SelectFulfillment(ctx, checkoutID, req.OptionID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

type setPaymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

func (h *Handler) handleSetPayment(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req setPaymentRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.SetPaymentInstrument(ctx, checkoutID, req.PaymentRef)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, body []byte) (int, any, error) {
		var req applyCouponRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		session, err := h.checkouts.ApplyCoupon(ctx, checkoutID, req.Code)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toSessionResponse(session), nil
	})
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	h.mutate(w, r, checkoutID, func(ctx context.Context, _ []byte) (int, any, error) {
		result, err := h.placeOrder.Execute(ctx, appOrder.PlaceOrderInput{CheckoutID: checkoutID})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, toOrderResponse(result.Order), nil
	})
}

// --- orders

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	h.mutate(w, r, "", func(ctx context.Context, body []byte) (int, any, error) {
		var req updateOrderStatusRequest
		if err := decodeJSON(body, &req); err != nil {
			return 0, nil, application.NewValidation("invalid request body: %v", err)
		}
		order, err := h.orders.UpdateStatus(ctx, orderID, domOrder.Status(req.Status))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toOrderResponse(order), nil
	})
}

// mutation runs the domain operation and reports the response to store.
type mutation func(ctx context.Context, body []byte) (status int, payload any, err error)

// mutate is the shared path for every mutating route: run the operation
// through the idempotency gate, snapshotting the request for the audit
// log when it actually executes, and replay stored responses
// byte-identical.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, checkoutID string, fn mutation) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "unreadable request body")
		return
	}

	outcome, err := h.gate.Execute(r.Context(), r.Header.Get(headerIdempotencyKey), body,
		func(ctx context.Context) (appIdem.Outcome, error) {
			// Audit only executions; a replayed response must not emit a
			// second entry.
			h.auditRequest(r, checkoutID, body)

			status, payload, opErr := fn(ctx, body)
			if opErr != nil {
				if retryable(opErr) {
					// No stored response; the claim is dropped so the
					// client can retry with the same key.
					return appIdem.Outcome{}, opErr
				}
				status, errBody := h.renderError(ctx, opErr)
				return appIdem.Outcome{Status: status, Body: errBody}, nil
			}

			encoded, encErr := json.Marshal(payload)
			if encErr != nil {
				return appIdem.Outcome{}, encErr
			}
			return appIdem.Outcome{Status: status, Body: encoded}, nil
		})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if outcome.Replayed {
		w.Header().Set(headerIdemReplayed, "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(outcome.Status)
	_, _ = w.Write(outcome.Body)
}

// auditRequest snapshots the mutation fire-and-forget. The audit logger
// owns buffering and never blocks this path.
func (h *Handler) auditRequest(r *http.Request, checkoutID string, body []byte) {
	if h.audit == nil {
		return
	}
	var payload json.RawMessage
	if len(body) > 0 && json.Valid(body) {
		payload = bytes.Clone(body)
	}
	h.audit.Log(r.Context(), domAudit.Entry{
		Method:     r.Method,
		URL:        r.URL.String(),
		CheckoutID: checkoutID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	})
}

// retryable reports errors that must not produce a stored idempotency
// record: transient provider and infrastructure failures.
func retryable(err error) bool {
	var pe *catalog.ProviderError
	if errors.As(err, &pe) {
		return true
	}
	switch {
	case application.IsValidation(err),
		errors.Is(err, domCheckout.ErrNotFound),
		errors.Is(err, domCheckout.ErrCompleted),
		errors.Is(err, domOrder.ErrNotFound),
		errors.Is(err, domOrder.ErrConflict),
		errors.Is(err, domInventory.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return false
	}
	var stockErr *domInventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		return false
	}
	return true
}

func (h *Handler) renderError(ctx context.Context, err error) (int, []byte) {
	status, code := errorStatus(err)
	if status >= 500 {
		logctx.FromOr(ctx, h.log).Error("request_failed",
			observability.F("code", code),
			observability.F("error", err.Error()),
		)
	}
	body, _ := json.Marshal(errorResponse{Error: err.Error(), Code: code})
	return status, body
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.renderError(r.Context(), err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errorStatus(err error) (int, string) {
	var stockErr *domInventory.InsufficientStockError
	var pe *catalog.ProviderError

	switch {
	case application.IsValidation(err),
		errors.Is(err, domCheckout.ErrInvalidQuantity),
		errors.Is(err, domInventory.ErrInvalidQuantity),
		errors.Is(err, domOrder.ErrInvalidStatus):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domCheckout.ErrNotFound),
		errors.Is(err, domOrder.ErrNotFound),
		errors.Is(err, domInventory.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &stockErr):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domCheckout.ErrCompleted):
		return http.StatusConflict, "checkout_completed"
	case errors.Is(err, domOrder.ErrConflict):
		return http.StatusConflict, "order_conflict"
	case errors.Is(err, domIdem.ErrKeyConflict):
		return http.StatusConflict, "idempotency_key_conflict"
	case errors.Is(err, domIdem.ErrInFlight):
		return http.StatusConflict, "request_in_flight"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(body []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// --- response DTOs

type productResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url,omitempty"`
	Category string `json:"category,omitempty"`
}

func toProductResponse(p *catalog.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price,
		ImageURL: p.ImageURL,
		Category: p.Category,
	}
}

type sessionResponse struct {
	ID        string              `json:"id"`
	Status    domCheckout.Status  `json:"status"`
	Payload   domCheckout.Payload `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toSessionResponse(s *domCheckout.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Status:    s.Status,
		Payload:   s.Payload,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type orderResponse struct {
	ID         string              `json:"id"`
	CheckoutID string              `json:"checkout_id"`
	Status     domOrder.Status     `json:"status"`
	Payload    domCheckout.Payload `json:"payload"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func toOrderResponse(o *domOrder.Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		CheckoutID: o.CheckoutID,
		Status:     o.Status,
		Payload:    o.Payload,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
