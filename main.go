package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appCheckout "github.com/ucp-labs/checkout-core/internal/application/checkout"
	appIdem "github.com/ucp-labs/checkout-core/internal/application/idempotency"
	appInventory "github.com/ucp-labs/checkout-core/internal/application/inventory"
	appOrder "github.com/ucp-labs/checkout-core/internal/application/order"
	"github.com/ucp-labs/checkout-core/internal/config"
	domAudit "github.com/ucp-labs/checkout-core/internal/domain/audit"
	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
	domCheckout "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	domIdem "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
	domInventory "github.com/ucp-labs/checkout-core/internal/domain/inventory"
	domOrder "github.com/ucp-labs/checkout-core/internal/domain/order"
	auditinfra "github.com/ucp-labs/checkout-core/internal/infrastructure/audit"
	httptransport "github.com/ucp-labs/checkout-core/internal/infrastructure/http"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/id"
	kafkainfra "github.com/ucp-labs/checkout-core/internal/infrastructure/kafka"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/memory"
	infraobs "github.com/ucp-labs/checkout-core/internal/infrastructure/observability"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/observability/oteltrace"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/observability/prometrics"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/observability/zaplogger"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/postgres"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/redisx"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/scapi"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/sqlite"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/staticcatalog"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zl := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)
	baseLog := zaplogger.Wrap(zl)

	tel := buildObservability(cfg, baseLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := buildStores(ctx, cfg, baseLog)
	if err != nil {
		baseLog.Error("store_init_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	defer closeStores()

	gate := appIdem.NewGate(stores.idempotency, baseLog)

	auditLogger := buildAudit(ctx, cfg, baseLog, tel.Metrics())

	products, orderProvider, coupons := buildProvider(cfg, baseLog, tel.Metrics())

	idGenerator := id.NewUUIDGenerator()
	checkoutService := appCheckout.NewService(stores.checkouts, products, coupons, idGenerator, baseLog)
	placeOrder := appOrder.NewPlaceOrderUseCase(stores.checkouts, stores.orders, stores.inventory, orderProvider, tel)
	orderService := appOrder.NewService(stores.orders, baseLog)
	inventoryService := appInventory.NewService(stores.inventory, baseLog)

	if cfg.InitialStock > 0 && !cfg.Provider.Enabled() {
		seedDevStock(ctx, products, inventoryService, cfg.InitialStock, baseLog)
	}

	handler := httptransport.NewHandler(
		checkoutService,
		placeOrder,
		orderService,
		inventoryService,
		products,
		gate,
		auditLogger,
		promhttp.Handler(),
		baseLog,
		tel.Metrics(),
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		baseLog.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLog.Error("http_server_error", observability.F("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		baseLog.Info("http_server_stopped")
	}
}

func buildObservability(cfg config.Config, logger observability.Logger) observability.Observability {
	reg := prometrics.New("checkout", "")

	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: reg.Counter(
			string(observability.MHTTPRequests),
			"Total number of handled HTTP requests.",
			"method", "route", "status",
		),
		observability.MExternalRequests: reg.Counter(
			string(observability.MExternalRequests),
			"Total number of calls to external collaborators.",
			"peer", "endpoint", "outcome",
		),
		observability.MAuditDropped: reg.Counter(
			string(observability.MAuditDropped),
			"Audit entries dropped because the sink buffer was full.",
			"sink",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			nil,
			"use_case",
		),
		observability.MHTTPRequestDuration: reg.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			nil,
			"method", "route",
		),
		observability.MExternalRequestDuration: reg.Histogram(
			string(observability.MExternalRequestDuration),
			"Duration of external calls in seconds.",
			nil,
			"peer", "endpoint",
		),
	}

	return infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)
}

type storeSet struct {
	inventory   domInventory.Ledger
	checkouts   domCheckout.Repository
	orders      domOrder.Repository
	idempotency domIdem.Store
}

func buildStores(ctx context.Context, cfg config.Config, logger observability.Logger) (storeSet, func(), error) {
	var (
		stores  storeSet
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		stores.inventory = memory.NewInventoryRepository()
		stores.checkouts = memory.NewCheckoutRepository()
		stores.orders = memory.NewOrderRepository()
		stores.idempotency = memory.NewIdempotencyStore()

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return storeSet{}, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		stores.inventory = sqlite.NewInventoryRepository(db)
		stores.checkouts = sqlite.NewCheckoutRepository(db, logger)
		stores.orders = sqlite.NewOrderRepository(db)
		stores.idempotency = sqlite.NewIdempotencyStore(db)

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return storeSet{}, nil, err
		}
		closers = append(closers, pool.Close)
		stores.inventory = postgres.NewInventoryRepository(pool)
		stores.checkouts = postgres.NewCheckoutRepository(pool, logger)
		stores.orders = postgres.NewOrderRepository(pool)
		stores.idempotency = postgres.NewIdempotencyStore(pool)
	}

	// Redis takes over idempotency regardless of the primary driver.
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		closers = append(closers, func() { _ = rdb.Close() })
		stores.idempotency = redisx.NewIdempotencyStore(rdb)
		logger.Info("idempotency_store_redis", observability.F("addr", cfg.RedisAddr))
	}

	return stores, closeAll, nil
}

func buildAudit(ctx context.Context, cfg config.Config, logger observability.Logger, metrics observability.Metrics) domAudit.Logger {
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkainfra.NewAuditPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic, 1024, logger, metrics)
		publisher.Start(ctx)
		return publisher
	}

	dispatcher := auditinfra.NewDispatcher(logger, metrics)
	dispatcher.AddSink(auditinfra.LogSink(logger))
	dispatcher.Start(ctx)
	return dispatcher
}

func buildProvider(cfg config.Config, logger observability.Logger, metrics observability.Metrics) (catalog.Provider, appOrder.OrderProvider, appCheckout.CouponValidator) {
	if cfg.Provider.Enabled() {
		client := scapi.NewClient(scapi.Config{
			Host:         cfg.Provider.Host,
			OrgID:        cfg.Provider.OrgID,
			ClientID:     cfg.Provider.ClientID,
			ClientSecret: cfg.Provider.ClientSecret,
			ChannelID:    cfg.Provider.ChannelID,
			SiteID:       cfg.Provider.SiteID,
		}, logger, metrics)
		logger.Info("provider_scapi", observability.F("host", cfg.Provider.Host))
		// Coupons are priced by the provider at order submission.
		return client, client, nil
	}

	stub := staticcatalog.New()
	logger.Info("provider_static_catalog")
	return stub, stub, stub
}

// seedDevStock gives every dev-catalog product an initial ledger row so
// a fresh instance can place orders immediately.
func seedDevStock(ctx context.Context, products catalog.Provider, inventory *appInventory.Service, quantity int, logger observability.Logger) {
	all, err := products.SearchProducts(ctx, "")
	if err != nil {
		logger.Warn("dev_stock_seed_skipped", observability.F("error", err.Error()))
		return
	}
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	if err := inventory.Seed(ctx, ids, quantity); err != nil {
		logger.Warn("dev_stock_seed_failed", observability.F("error", err.Error()))
	}
}
