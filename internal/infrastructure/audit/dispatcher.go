package audit

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	domaudit "github.com/ucp-labs/checkout-core/internal/domain/audit"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

const componentDispatcher = "audit_dispatcher"

// Sink consumes one audit entry. Sink errors are logged and swallowed;
// audit is best effort end to end.
type Sink func(ctx context.Context, entry domaudit.Entry) error

// Dispatcher is the in-process audit fallback used when no broker is
// configured. Entries go through a buffered queue and fan out to the
// registered sinks on a background goroutine; a full queue drops the
// entry and counts it.
type Dispatcher struct {
	mu        sync.RWMutex
	sinks     []Sink
	queue     chan domaudit.Entry
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	log       observability.Logger
	metrics   observability.Metrics
}

func NewDispatcher(logger observability.Logger, metrics observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Dispatcher{
		queue:   make(chan domaudit.Entry, 1024),
		log:     logger.With(observability.F("component", componentDispatcher)),
		metrics: metrics,
	}
}

func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		go d.dispatchLoop(bg)
		logctx.FromOr(ctx, d.log).Info("audit_dispatcher_started")
	})
}

func (d *Dispatcher) Stop(ctx context.Context) {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		close(d.queue)
		logctx.FromOr(ctx, d.log).Info("audit_dispatcher_stopped")
	})
}

// Log implements audit.Logger. It never blocks: a full queue drops the
// entry.
func (d *Dispatcher) Log(ctx context.Context, entry domaudit.Entry) {
	select {
	case d.queue <- entry:
	default:
		d.metrics.Counter(observability.MAuditDropped).Add(1,
			observability.L("sink", "dispatcher"),
		)
	}
}

func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-d.queue:
			if !ok {
				return
			}
			d.fanout(ctx, entry)
		}
	}
}

func (d *Dispatcher) fanout(ctx context.Context, entry domaudit.Entry) {
	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	if len(sinks) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("audit_sink_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
			}()

			sinkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := s(sinkCtx, entry); err != nil {
				d.log.Warn("audit_sink_error", observability.F("error", err.Error()))
			}
		}()
	}
}

// LogSink writes each entry as a structured log line.
func LogSink(logger observability.Logger) Sink {
	logger = logger.With(observability.F("component", "audit_log_sink"))
	return func(ctx context.Context, entry domaudit.Entry) error {
		logger.Info("request_audit",
			observability.F("method", entry.Method),
			observability.F("url", entry.URL),
			observability.F("checkout_id", entry.CheckoutID),
			observability.F("payload", string(entry.Payload)),
			observability.F("timestamp", entry.Timestamp.Format(time.RFC3339Nano)),
		)
		return nil
	}
}
