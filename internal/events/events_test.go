package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"tokopay/internal/events"
	"tokopay/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, key string, body []byte) error {
	args := m.Called(ctx, key, body)
	return args.Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(mockPublisher)
	var sent []byte
	pub.On("Publish", mock.Anything, events.PaymentFinalized, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).([]byte) }).
		Return(nil)

	amount := money.MustParse("12.50")
	events.NewEmitter(pub, nil).Emit(context.Background(), events.Event{
		Type: events.PaymentFinalized, OrderID: "order-1", PaymentID: "pay-1", Status: "successful", Amount: &amount,
	})

	pub.AssertExpectations(t)
	var got map[string]any
	require.NoError(t, json.Unmarshal(sent, &got))
	assert.Equal(t, "payment.finalized", got["type"])
	assert.Equal(t, "order-1", got["order_id"])
	assert.Equal(t, "12.5", got["amount"])
	assert.NotEmpty(t, got["occurred_at"])
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	assert.NotPanics(t, func() {
		events.NewEmitter(pub, logger).Emit(context.Background(), events.Event{Type: events.OrderCreated, OrderID: "o"})
	})
	assert.Contains(t, logs.String(), "broker down")
}

func TestAuditHandler(t *testing.T) {
	var logs bytes.Buffer
	handle := events.AuditHandler(slog.New(slog.NewTextHandler(&logs, nil)))

	require.NoError(t, handle(context.Background(), []byte(`{"type":"order.created","order_id":"o-1"}`)))
	assert.Contains(t, logs.String(), "o-1")
	assert.Error(t, handle(context.Background(), []byte("not json")))
}
