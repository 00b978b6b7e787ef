package notify

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func newTestService() *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Service{Log: log, Name: "notifier-test"}
}

func envelopeMessage(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	env := orders.Envelope{
		EventID:      "evt-1",
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test",
		Payload:      raw,
	}
	val, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: val}
}

func TestHandleEventKnownTypes(t *testing.T) {
	svc := newTestService()

	msgs := []kafkago.Message{
		envelopeMessage(t, orders.EventOrderCreated, orders.OrderCreatedPayload{
			OrderNumber:  "ORD-1",
			CustomerName: "Ana",
			Items:        []orders.ItemSnapshot{{ProductName: "Vestido Rojo", Quantity: 1, Price: 45000}},
			Total:        45000,
		}),
		envelopeMessage(t, orders.EventPaymentConfirmed, orders.PaymentConfirmedPayload{
			OrderNumber: "ORD-1", Total: 45000,
		}),
		envelopeMessage(t, orders.EventOrderCancelled, orders.OrderCancelledPayload{
			OrderNumber: "ORD-1", Reason: "out of stock",
		}),
		// status change: valid, tapi tanpa notifikasi
		envelopeMessage(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
			OrderNumber: "ORD-1", From: orders.StatusPending, To: orders.StatusShipped,
		}),
	}
	for _, m := range msgs {
		assert.NoError(t, svc.HandleEvent(context.Background(), m))
	}
}

func TestHandleEventBadEnvelope(t *testing.T) {
	svc := newTestService()
	err := svc.HandleEvent(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

func TestHandleEventBadPayload(t *testing.T) {
	svc := newTestService()
	env := orders.Envelope{
		EventID:   "evt-2",
		EventType: orders.EventOrderCreated,
		Payload:   json.RawMessage(`"not an object"`),
	}
	val, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Error(t, svc.HandleEvent(context.Background(), kafkago.Message{Value: val}))
}

func TestComposeOrderMessage(t *testing.T) {
	text := ComposeOrderMessage(orders.OrderCreatedPayload{
		OrderNumber:   "ORD-42",
		CustomerName:  "Ana",
		CustomerPhone: "+573100000000",
		Items: []orders.ItemSnapshot{
			{ProductName: "Vestido Rojo", Quantity: 2, Price: 45000},
			{ProductName: "Blusa Blanca", Quantity: 1, Price: 60000},
		},
		Subtotal: 150000,
		Shipping: 15000,
		Total:    165000,
	})

	assert.Contains(t, text, "New order ORD-42")
	assert.Contains(t, text, "Ana (+573100000000)")
	assert.Contains(t, text, "2x Vestido Rojo @ 45000")
	assert.Contains(t, text, "1x Blusa Blanca @ 60000")
	assert.Contains(t, text, "Total: 165000")
	assert.Contains(t, text, "Awaiting payment confirmation.")
}

func TestComposePaymentAndCancelMessages(t *testing.T) {
	pay := ComposePaymentMessage(orders.PaymentConfirmedPayload{OrderNumber: "ORD-42", Total: 165000})
	assert.Contains(t, pay, "ORD-42")
	assert.Contains(t, pay, "165000")

	can := ComposeCancelMessage(orders.OrderCancelledPayload{OrderNumber: "ORD-42", Reason: "customer request"})
	assert.Contains(t, can, "ORD-42")
	assert.Contains(t, can, "customer request")
}
