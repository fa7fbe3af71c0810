// Package events publishes domain events after the owning transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Event types. They double as routing keys.
const (
	OrderCreated       = "order.created"
	OrderUpdated       = "order.updated"
	OrderStatusChanged = "order.status_changed"
	OrderDeleted       = "order.deleted"
	PaymentInitiated   = "payment.initiated"
	PaymentFinalized   = "payment.finalized"
)

// Event is the JSON envelope put on the wire.
type Event struct {
	Type       string           `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	OrderID    string           `json:"order_id"`
	PaymentID  string           `json:"payment_id,omitempty"`
	Status     string           `json:"status,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

// Publisher is a message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
	Close() error
}

// Nop drops everything. It is used when EVENTS_DRIVER=none.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }

// Emitter encodes events and hands them to a Publisher. Publishing is best effort: state has
// already been committed, so failures are logged and never returned.
type Emitter struct {
	pub    Publisher
	logger *slog.Logger
}

// NewEmitter creates an Emitter. A nil publisher behaves like Nop.
func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, logger: logger}
}

// Emit publishes evt keyed by its order id.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		e.logger.Error("failed to encode event", "type", evt.Type, "err", err)
		return
	}
	if err := e.pub.Publish(ctx, evt.Type, body); err != nil {
		e.logger.Error("failed to publish event", "type", evt.Type, "order_id", evt.OrderID, "err", err)
		return
	}
	e.logger.Debug("event published", "type", evt.Type, "order_id", evt.OrderID)
}

// AuditHandler logs consumed events. It is what the broker consumers run in this service.
func AuditHandler(logger *slog.Logger) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		var evt Event
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		logger.Info("event received", "type", evt.Type, "order_id", evt.OrderID, "payment_id", evt.PaymentID, "status", evt.Status)
		return nil
	}
}
