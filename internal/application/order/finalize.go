package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ucp-labs/checkout-core/internal/application"
	domcheckout "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	dominv "github.com/ucp-labs/checkout-core/internal/domain/inventory"
	domain "github.com/ucp-labs/checkout-core/internal/domain/order"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService     = "order-service"
	useCasePlace     = "order.place"
	spanPrefix       = "UC."
	providerPeer     = "scapi"
	providerEndpoint = "order.submit"
)

// PlaceOrderUseCase commits a checkout session: stock is reserved per
// line item, the order goes to the provider, and the session freezes.
// Each attempt compensates its own reservations on failure; the order
// row is the commit point.
type PlaceOrderUseCase struct {
	sessions domcheckout.Repository
	orders   domain.Repository
	ledger   dominv.Ledger
	provider OrderProvider

	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewPlaceOrderUseCase(
	sessions domcheckout.Repository,
	orders domain.Repository,
	ledger dominv.Ledger,
	provider OrderProvider,
	tel observability.Observability,
) *PlaceOrderUseCase {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	baseLog = baseLog.With(
		observability.F("service", orderService),
	)

	metricsProvider := observability.NopMetrics()
	if tel != nil {
		metricsProvider = tel.Metrics()
	}

	tracer := observability.NopTracer()
	if tel != nil {
		tracer = tel.Tracer()
	}

	return &PlaceOrderUseCase{
		sessions:     sessions,
		orders:       orders,
		ledger:       ledger,
		provider:     provider,
		tracer:       tracer,
		log:          baseLog,
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:   metricsProvider.Counter(observability.MExternalRequests),
		extHistogram: metricsProvider.Histogram(observability.MExternalRequestDuration),
	}
}

type PlaceOrderInput struct {
	CheckoutID string
}

type PlaceOrderResult struct {
	Order *domain.Order
}

// Execute runs the finalization flow.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCasePlace),
		observability.F("checkout_id", cmd.CheckoutID),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCasePlace),
		attribute.String("checkout.id", cmd.CheckoutID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		if uc.reqCounter != nil {
			uc.reqCounter.Add(1,
				observability.L("use_case", useCasePlace),
				observability.L("outcome", outcome),
			)
		}
		if uc.durHistogram != nil {
			uc.durHistogram.Observe(lat,
				observability.L("use_case", useCasePlace),
			)
		}

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if cmd.CheckoutID == "" {
		outcome, statusText = "error", "CHECKOUT_ID_REQUIRED"
		return nil, application.NewValidation("checkout id is required")
	}

	session, err := uc.sessions.Get(ctx, cmd.CheckoutID)
	if err != nil {
		outcome, statusText = "error", "SESSION_LOAD_FAILED"
		return nil, err
	}
	if !session.Mutable() {
		outcome, statusText = "error", "SESSION_NOT_IN_PROGRESS"
		return nil, domcheckout.ErrCompleted
	}
	if len(session.Payload.LineItems) == 0 {
		outcome, statusText = "error", "EMPTY_CHECKOUT"
		return nil, application.NewValidation("checkout has no line items")
	}
	if session.Payload.ShippingAddress == nil {
		outcome, statusText = "error", "ADDRESS_MISSING"
		return nil, application.NewValidation("shipping address is required")
	}
	if session.Payload.PaymentRef == "" {
		outcome, statusText = "error", "PAYMENT_MISSING"
		return nil, application.NewValidation("payment instrument is required")
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	reservations, err := uc.reserveAll(ctx, session)
	if err != nil {
		outcome, statusText = "error", "STOCK_RESERVATION_FAILED"
		return nil, err
	}

	providerOrderNo, err := uc.submitOrder(ctx, session)
	if err != nil {
		uc.releaseAll(ctx, reservations)
		outcome, statusText = "error", "PROVIDER_SUBMIT_FAILED"
		return nil, fmt.Errorf("order: submit to provider: %w", err)
	}
	span.AddEvent("order.provider_accepted",
		trace.WithAttributes(attribute.String("order.provider_no", providerOrderNo)),
	)

	payload := session.Payload.Clone()
	payload.ProviderOrderNo = providerOrderNo
	entity := domain.New("ORD-"+session.ID, session.ID, payload)

	if err := uc.orders.Insert(ctx, entity); err != nil {
		uc.releaseAll(ctx, reservations)
		if errors.Is(err, domain.ErrConflict) {
			outcome, statusText = "error", "ORDER_ALREADY_PLACED"
			return nil, domain.ErrConflict
		}
		outcome, statusText = "error", "ORDER_INSERT_FAILED"
		return nil, fmt.Errorf("order: insert: %w", err)
	}

	session.Payload = payload
	session.MarkCompleted()
	if saveErr := uc.sessions.Save(ctx, session); saveErr != nil {
		// The order is committed; the stale session is an inconsistency
		// an operator has to reconcile, not a reason to fail the caller.
		statusText = "SESSION_UPDATE_FAILED"
		logger.Error("order_persisted_session_update_failed",
			observability.F("order_id", entity.ID),
			observability.F("error", saveErr.Error()),
		)
	}

	span.SetAttributes(attribute.String("order.id", entity.ID))
	span.AddEvent("order.placed",
		trace.WithAttributes(attribute.String("order.id", entity.ID)),
	)

	return &PlaceOrderResult{Order: entity}, nil
}

// reserveAll decrements stock for every line item. The first failure
// releases already-acquired reservations in reverse order and reports
// the failing product.
func (uc *PlaceOrderUseCase) reserveAll(ctx context.Context, session *domcheckout.Session) ([]dominv.Reservation, error) {
	var acquired []dominv.Reservation
	for _, li := range session.Payload.LineItems {
		ok, err := uc.ledger.Reserve(ctx, li.ProductID, li.Quantity)
		if err != nil && !errors.Is(err, dominv.ErrNotFound) {
			uc.releaseAll(ctx, acquired)
			return nil, fmt.Errorf("order: reserve %s: %w", li.ProductID, err)
		}
		if err != nil || !ok {
			available := 0
			if err == nil {
				if qty, availErr := uc.ledger.GetAvailable(ctx, li.ProductID); availErr == nil {
					available = qty
				}
			}
			uc.releaseAll(ctx, acquired)
			return nil, &dominv.InsufficientStockError{
				ProductID: li.ProductID,
				Requested: li.Quantity,
				Available: available,
			}
		}
		acquired = append(acquired, dominv.Reservation{ProductID: li.ProductID, Quantity: li.Quantity})
	}
	return acquired, nil
}

func (uc *PlaceOrderUseCase) releaseAll(ctx context.Context, reservations []dominv.Reservation) {
	logger := logctx.FromOr(ctx, uc.log)
	for i := len(reservations) - 1; i >= 0; i-- {
		r := reservations[i]
		if err := uc.ledger.Release(ctx, r.ProductID, r.Quantity); err != nil {
			logger.Error("reservation_release_failed",
				observability.F("product_id", r.ProductID),
				observability.F("quantity", r.Quantity),
				observability.F("error", err.Error()),
			)
		}
	}
}

func (uc *PlaceOrderUseCase) submitOrder(ctx context.Context, session *domcheckout.Session) (string, error) {
	start := time.Now()
	providerOrderNo, err := uc.provider.SubmitOrder(ctx, session)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if uc.extCounter != nil {
		uc.extCounter.Add(1,
			observability.L("peer", providerPeer),
			observability.L("endpoint", providerEndpoint),
			observability.L("outcome", outcome),
		)
	}
	if uc.extHistogram != nil {
		uc.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", providerPeer),
			observability.L("endpoint", providerEndpoint),
		)
	}
	return providerOrderNo, err
}
