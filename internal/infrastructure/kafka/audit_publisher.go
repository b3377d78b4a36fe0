package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/ucp-labs/checkout-core/internal/domain/audit"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

const componentAuditPublisher = "kafka_audit_publisher"

// AuditPublisher ships request audit entries to a Kafka topic. Log never
// blocks the caller: entries go through a buffered inbox and a full inbox
// drops the entry, counted in the audit-dropped metric.
type AuditPublisher struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     observability.Logger
	metrics observability.Metrics
}

func NewAuditPublisher(brokers []string, topic string, buf int, logger observability.Logger, metrics observability.Metrics) *AuditPublisher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	if buf <= 0 {
		buf = 1024
	}
	return &AuditPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     logger.With(observability.F("component", componentAuditPublisher)),
		metrics: metrics,
	}
}

func (p *AuditPublisher) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				p.write(m)
			}
		}
	}()
	p.log.Info("audit_publisher_started")
}

// drain flushes whatever is buffered before closing the writer. Entries
// arriving after shutdown starts are lost, which audit tolerates.
func (p *AuditPublisher) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			_ = p.w.Close()
			return
		}
	}
}

func (p *AuditPublisher) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Warn("audit_publish_failed", observability.F("error", err.Error()))
	}
}

// Log implements audit.Logger.
func (p *AuditPublisher) Log(ctx context.Context, entry audit.Entry) {
	value, err := json.Marshal(entry)
	if err != nil {
		logctx.FromOr(ctx, p.log).Warn("audit_entry_encode_failed",
			observability.F("error", err.Error()),
		)
		return
	}

	msg := kafka.Message{
		Key:   []byte(entry.CheckoutID),
		Value: value,
		Time:  time.Now(),
	}
	select {
	case p.inbox <- msg:
	default:
		p.metrics.Counter(observability.MAuditDropped).Add(1,
			observability.L("sink", "kafka"),
		)
	}
}

// Close stops accepting entries; the run goroutine flushes the inbox.
func (p *AuditPublisher) Close() { close(p.inbox) }

func (p *AuditPublisher) WaitClosed() { <-p.closeCh }
