package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

var (
	publishedCounter    = metrics.GetOrCreateCounter(`payment_events_total{result="published"}`)
	publishErrorCounter = metrics.GetOrCreateCounter(`payment_events_total{result="publish_failed"}`)
)

// PaymentProcessed is emitted after a webhook notification has been fully
// handled, for downstream consumers (reporting, reconciliation).
type PaymentProcessed struct {
	OrderID     string    `json:"orderId"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome"`
	Reference   string    `json:"reference,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}

type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(writer *kafka.Writer, logger *slog.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

// PaymentProcessed publishes the event keyed by order id so events for the
// same order stay ordered. Publish failures are logged and counted, never
// surfaced to the webhook response.
func (p *Publisher) PaymentProcessed(ctx context.Context, evt PaymentProcessed) {
	if p == nil || p.writer == nil {
		return
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error marshalling payment event", "error", err)
		publishErrorCounter.Inc()
		return
	}

	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: raw,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Error publishing payment event", "orderId", evt.OrderID, "error", err)
		publishErrorCounter.Inc()
		return
	}
	publishedCounter.Inc()
}
