package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

// Service turns lifecycle events into WhatsApp-ready text. Pengiriman
// pesan sendiri urusan collaborator; kita cuma siapkan isinya dan
// serahkan lewat log terstruktur.
type Service struct {
	Redis *redis.Client
	Log   *logrus.Logger
	Name  string // dedup namespace
}

// HandleEvent dipasang sebagai handler consumer untuk semua topic order.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup via Redis (pakai event_id); consumer group bisa redeliver
	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
		exists, _ := redisx.Exists(ctx, s.Redis, dkey)
		if exists {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.handoff(p.OrderNumber, ComposeOrderMessage(p))
	case orders.EventPaymentConfirmed:
		p, err := kafkax.UnwrapPayload[orders.PaymentConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.handoff(p.OrderNumber, ComposePaymentMessage(p))
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		s.handoff(p.OrderNumber, ComposeCancelMessage(p))
	default:
		// status changes etc. tidak perlu notifikasi
	}
	return nil
}

func (s *Service) handoff(orderNumber, text string) {
	s.Log.WithFields(logrus.Fields{
		"order_number": orderNumber,
		"message":      text,
	}).Info("whatsapp notification ready")
}

// ComposeOrderMessage builds the text an admin forwards to the customer
// after a new order lands.
func ComposeOrderMessage(p orders.OrderCreatedPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order %s\n", p.OrderNumber)
	fmt.Fprintf(&b, "Customer: %s (%s)\n", p.CustomerName, p.CustomerPhone)
	for _, it := range p.Items {
		fmt.Fprintf(&b, "- %dx %s @ %d\n", it.Quantity, it.ProductName, it.Price)
	}
	fmt.Fprintf(&b, "Subtotal: %d\nShipping: %d\nTotal: %d\n", p.Subtotal, p.Shipping, p.Total)
	b.WriteString("Awaiting payment confirmation.")
	return b.String()
}

func ComposePaymentMessage(p orders.PaymentConfirmedPayload) string {
	return fmt.Sprintf("Payment received for order %s (total %d). We are preparing your shipment.",
		p.OrderNumber, p.Total)
}

func ComposeCancelMessage(p orders.OrderCancelledPayload) string {
	return fmt.Sprintf("Order %s has been cancelled: %s", p.OrderNumber, p.Reason)
}
