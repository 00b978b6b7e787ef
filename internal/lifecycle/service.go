package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

// Publisher is the slice of the kafka producer the service needs.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Service is the order lifecycle state machine. Semua transisi lewat
// sini; presentation layer tidak pernah menyentuh order langsung.
// Redis dan Producer boleh nil (cache dan event stream jadi no-op).
type Service struct {
	Store    orders.Store
	Ledger   orders.Ledger
	Redis    *redis.Client
	Producer Publisher
	Log      *logrus.Logger
	Service  string           // producer name untuk envelope
	Now      func() time.Time // test seam
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func validateDraft(d orders.Draft) error {
	if len(d.Items) == 0 {
		return orders.Validationf("empty cart")
	}
	for _, it := range d.Items {
		if it.ProductID == "" {
			return orders.Validationf("item without product id")
		}
		if it.Quantity <= 0 {
			return orders.Validationf("quantity must be positive for product %s", it.ProductID)
		}
	}
	if d.Subtotal < 0 || d.Shipping < 0 {
		return orders.Validationf("amounts must be non-negative")
	}
	if d.Total != d.Subtotal+d.Shipping {
		return orders.Validationf("total %d does not equal subtotal %d + shipping %d",
			d.Total, d.Subtotal, d.Shipping)
	}
	if d.Customer.Name == "" || d.Customer.Email == "" {
		return orders.Validationf("customer name and email are required")
	}
	return nil
}

// CreateOrder: pre-flight cek stok (non-otoritatif), persist order +
// item snapshot di pending_payment. Stok TIDAK dipotong di sini.
// Guest checkout boleh: tidak ada syarat principal.
func (s *Service) CreateOrder(ctx context.Context, d orders.Draft) (*orders.Order, error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}
	for _, it := range d.Items {
		ok, err := s.Ledger.CheckAvailable(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			// satu item kurang -> tolak seluruh order, tidak ada partial
			return nil, &orders.InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
		}
	}

	number := orders.NewOrderNumber(s.now())
	o, err := s.Store.CreateOrder(ctx, d, number)
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, o.ID, o.Status)
	items := make([]orders.ItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.ItemSnapshot{
			ProductID: it.ProductID, ProductName: it.ProductName,
			Quantity: it.Quantity, Price: it.Price,
		})
	}
	s.emit(orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.Customer.Name,
		CustomerPhone: o.Customer.Phone,
		Items:         items,
		Subtotal:      o.Subtotal,
		Shipping:      o.Shipping,
		Total:         o.Total,
	})
	s.log().WithFields(logrus.Fields{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"total":        o.Total,
	}).Info("order created, awaiting payment confirmation")
	return o, nil
}

// ConfirmPayment: admin-only. Satu transaksi: potong stok semua item
// (all-or-nothing) + status -> pending. Order yang sudah diproses
// ditolak dengan ErrAlreadyProcessed, stok tidak terpotong dua kali.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, admin auth.Principal, notes string) (*orders.Order, error) {
	if !admin.IsAdmin() {
		return nil, orders.ErrForbidden
	}
	if notes == "" {
		notes = "payment confirmed by admin"
	}
	o, err := s.Store.ConfirmPayment(ctx, orderID, admin.ID, notes, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, o.ID, o.Status)
	s.emit(orders.TopicPaymentConfirmed, orders.EventPaymentConfirmed, o.ID, orders.PaymentConfirmedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		ConfirmedBy: admin.ID,
		PaidAt:      *o.PaidAt,
		Total:       o.Total,
	})
	s.log().WithFields(logrus.Fields{
		"order_id": o.ID,
		"admin_id": admin.ID,
	}).Info("payment confirmed, stock committed")
	return o, nil
}

// CancelOrder: admin-only. Kembalikan stok hanya jika sudah pernah
// dipotong (status bukan pending_payment). Cancel order yang sudah
// cancelled ditolak, bukan diam-diam no-op.
func (s *Service) CancelOrder(ctx context.Context, orderID string, admin auth.Principal, reason string) (*orders.Order, error) {
	if !admin.IsAdmin() {
		return nil, orders.ErrForbidden
	}
	if reason == "" {
		reason = "cancelled by admin"
	}
	o, restocked, err := s.Store.Cancel(ctx, orderID, reason)
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, o.ID, o.Status)
	s.emit(orders.TopicOrderCancelled, orders.EventOrderCancelled, o.ID, orders.OrderCancelledPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Reason:      reason,
		Restocked:   restocked,
	})
	s.log().WithFields(logrus.Fields{
		"order_id":  o.ID,
		"restocked": restocked,
	}).Info("order cancelled")
	return o, nil
}

// SetStatus: progresi fulfillment murni, tanpa efek stok. Hanya maju
// (pending -> processing -> shipped -> delivered, boleh loncat), tidak
// pernah masuk/keluar cancelled atau balik ke pending_payment.
func (s *Service) SetStatus(ctx context.Context, orderID string, admin auth.Principal, to orders.Status) (*orders.Order, error) {
	if !admin.IsAdmin() {
		return nil, orders.ErrForbidden
	}
	if _, ok := orders.ParseStatus(string(to)); !ok {
		return nil, orders.Validationf("unknown status %q", string(to))
	}
	if to == orders.StatusCancelled || to == orders.StatusPendingPayment {
		return nil, fmt.Errorf("%w: %s has a dedicated transition", orders.ErrInvalidTransition, to)
	}

	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !orders.CanAdvance(o.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
	}
	if err := s.Store.UpdateStatus(ctx, orderID, to); err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, orderID, to)
	s.emit(orders.TopicStatusChanged, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		From:        o.Status,
		To:          to,
	})
	s.log().WithFields(logrus.Fields{
		"order_id": o.ID,
		"from":     o.Status,
		"to":       to,
	}).Info("order status updated")
	o.Status = to
	return o, nil
}

// GetOrder: admin lihat semua; customer hanya order dengan snapshot
// email miliknya; anonim ditolak.
func (s *Service) GetOrder(ctx context.Context, orderID string, p auth.Principal) (*orders.Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return o, nil
	}
	if p.IsCustomer() && strings.EqualFold(p.Email, o.Customer.Email) {
		return o, nil
	}
	return nil, orders.ErrForbidden
}

// ListOrders is admin-only.
func (s *Service) ListOrders(ctx context.Context, f orders.ListFilter, admin auth.Principal) ([]orders.OrderSummary, error) {
	if !admin.IsAdmin() {
		return nil, orders.ErrForbidden
	}
	return s.Store.ListOrders(ctx, f)
}

func (s *Service) ListOrdersForCustomer(ctx context.Context, email string, p auth.Principal) ([]orders.OrderSummary, error) {
	if !p.IsAdmin() {
		if !p.IsCustomer() || !strings.EqualFold(p.Email, email) {
			return nil, orders.ErrForbidden
		}
	}
	return s.Store.ListOrdersByEmail(ctx, email)
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	if s.Redis == nil {
		return
	}
	b, _ := json.Marshal(map[string]any{
		"status":     st,
		"updated_at": s.now().UTC().Format(time.RFC3339),
	})
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := s.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		s.log().WithError(err).Warn("status cache write failed")
	}
}

// CachedStatus returns the Redis-cached status blob for cheap storefront
// polling, or nil on miss.
func (s *Service) CachedStatus(ctx context.Context, orderID string) json.RawMessage {
	if s.Redis == nil {
		return nil
	}
	raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Result()
	if err != nil || raw == "" {
		return nil
	}
	return json.RawMessage(raw)
}

// OrderStatus serves the polling path: cache dulu, store fallback.
// Sengaja tanpa principal: order id adalah uuid yang tidak bisa ditebak
// dan isinya cuma status + timestamp, bukan detail order.
func (s *Service) OrderStatus(ctx context.Context, orderID string) (json.RawMessage, error) {
	if cached := s.CachedStatus(ctx, orderID); cached != nil {
		return cached, nil
	}
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(map[string]any{
		"status":     o.Status,
		"updated_at": o.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) emit(topic, eventType, orderID string, payload any) {
	if s.Producer == nil {
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Producer.Publish(topic, orders.PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
