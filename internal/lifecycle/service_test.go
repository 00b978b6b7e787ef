package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type capturePublisher struct {
	mu        sync.Mutex
	topics    []string
	envelopes []orders.Envelope
}

func (c *capturePublisher) Publish(topic string, _, value []byte, _ ...kafkago.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err == nil {
		c.envelopes = append(c.envelopes, env)
	}
}

func (c *capturePublisher) topicCount(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.topics {
		if t == topic {
			n++
		}
	}
	return n
}

var (
	adminP    = auth.Principal{ID: "admin-1", Role: auth.RoleAdmin}
	customerP = auth.Principal{ID: "user-1", Role: auth.RoleCustomer, Email: "ana@example.com"}
)

func newService(t *testing.T) (*Service, *orders.MemStore, *capturePublisher) {
	t.Helper()
	mem := orders.NewMemStore()
	pub := &capturePublisher{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Service{Store: mem, Ledger: mem, Producer: pub, Log: log, Service: "test"}, mem, pub
}

func seedTwoProducts(mem *orders.MemStore) {
	mem.PutProduct(orders.Product{ID: "p1", Name: "Vestido Rojo", Price: 45000, Stock: 10})
	mem.PutProduct(orders.Product{ID: "p2", Name: "Blusa Blanca", Price: 60000, Stock: 10})
}

func twoItemDraft() orders.Draft {
	return orders.Draft{
		Customer: orders.Customer{Name: "Ana", Email: "ana@example.com", Phone: "+573100000000"},
		Items: []orders.ItemInput{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
		Subtotal: 165000,
		Shipping: 15000,
		Total:    180000,
	}
}

func TestCreateOrderTotalsAndNoStockTouch(t *testing.T) {
	svc, mem, pub := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPendingPayment, o.Status)
	assert.Equal(t, 180000, o.Total)
	assert.Equal(t, o.Subtotal+o.Shipping, o.Total)
	assert.NotEmpty(t, o.OrderNumber)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Vestido Rojo", o.Items[0].ProductName)
	assert.Equal(t, 45000, o.Items[0].Price)
	assert.Equal(t, 120000, o.Items[1].Subtotal)

	// pembuatan order tidak menyentuh stok
	assert.Equal(t, 10, mem.ProductStock("p1"))
	assert.Equal(t, 10, mem.ProductStock("p2"))

	assert.Equal(t, 1, pub.topicCount(orders.TopicOrderCreated))
}

func TestCreateOrderValidation(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	base := twoItemDraft()

	tests := []struct {
		name   string
		mutate func(*orders.Draft)
	}{
		{"empty cart", func(d *orders.Draft) { d.Items = nil }},
		{"zero quantity", func(d *orders.Draft) { d.Items[0].Quantity = 0 }},
		{"negative quantity", func(d *orders.Draft) { d.Items[0].Quantity = -3 }},
		{"total mismatch", func(d *orders.Draft) { d.Total = 999 }},
		{"negative shipping", func(d *orders.Draft) { d.Shipping = -1; d.Total = d.Subtotal - 1 }},
		{"missing customer email", func(d *orders.Draft) { d.Customer.Email = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			d.Items = append([]orders.ItemInput(nil), base.Items...)
			tc.mutate(&d)
			_, err := svc.CreateOrder(context.Background(), d)
			assert.ErrorIs(t, err, orders.ErrValidation)
		})
	}
}

func TestCreateOrderSubtotalMismatchRejected(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	d := twoItemDraft()
	d.Subtotal = 100 // tidak cocok dengan harga katalog
	d.Total = d.Subtotal + d.Shipping
	_, err := svc.CreateOrder(context.Background(), d)
	assert.ErrorIs(t, err, orders.ErrValidation)
}

func TestCreateOrderInsufficientStockRejectsWholeOrder(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.PutProduct(orders.Product{ID: "p1", Name: "Vestido Rojo", Price: 45000, Stock: 10})
	mem.PutProduct(orders.Product{ID: "p2", Name: "Blusa Blanca", Price: 60000, Stock: 1})

	_, err := svc.CreateOrder(context.Background(), twoItemDraft())
	var ise *orders.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "p2", ise.ProductID)

	// no partial order, no stock touched
	assert.Equal(t, 10, mem.ProductStock("p1"))
	assert.Equal(t, 1, mem.ProductStock("p2"))
}

func TestConfirmPaymentCommitsStockOnce(t *testing.T) {
	svc, mem, pub := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	got, err := svc.ConfirmPayment(context.Background(), o.ID, adminP, "transferencia recibida")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, got.Status)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.ConfirmedBy)
	assert.Equal(t, "admin-1", *got.ConfirmedBy)
	assert.Equal(t, "transferencia recibida", got.PaymentNotes)
	assert.Equal(t, 9, mem.ProductStock("p1"))
	assert.Equal(t, 8, mem.ProductStock("p2"))
	assert.Equal(t, 1, pub.topicCount(orders.TopicPaymentConfirmed))

	// idempotency: second confirm rejected, stock decremented exactly once
	_, err = svc.ConfirmPayment(context.Background(), o.ID, adminP, "")
	assert.ErrorIs(t, err, orders.ErrAlreadyProcessed)
	assert.Equal(t, 9, mem.ProductStock("p1"))
	assert.Equal(t, 8, mem.ProductStock("p2"))
	assert.Equal(t, 1, pub.topicCount(orders.TopicPaymentConfirmed))
}

func TestConfirmPaymentRequiresAdmin(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), o.ID, customerP, "")
	assert.ErrorIs(t, err, orders.ErrForbidden)
	_, err = svc.ConfirmPayment(context.Background(), o.ID, auth.Principal{}, "")
	assert.ErrorIs(t, err, orders.ErrForbidden)
	assert.Equal(t, 10, mem.ProductStock("p1"))
}

func TestConfirmPaymentAbortsWholeOrderOnOneEmptyLine(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	// stok p2 habis setelah order dibuat (mis. dijual offline)
	mem.PutProduct(orders.Product{ID: "p2", Name: "Blusa Blanca", Price: 60000, Stock: 0})

	_, err = svc.ConfirmPayment(context.Background(), o.ID, adminP, "")
	var ise *orders.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "p2", ise.ProductID)
	assert.Equal(t, "Blusa Blanca", ise.ProductName)

	// transaksi batal total: baris lain tidak tersentuh, order tetap pending_payment
	assert.Equal(t, 10, mem.ProductStock("p1"))
	cur, err := svc.GetOrder(context.Background(), o.ID, adminP)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPendingPayment, cur.Status)
}

func TestConcurrentConfirmNoOversell(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.PutProduct(orders.Product{ID: "p1", Name: "Vestido Rojo", Price: 45000, Stock: 5})

	draft := orders.Draft{
		Customer: orders.Customer{Name: "Ana", Email: "ana@example.com"},
		Items:    []orders.ItemInput{{ProductID: "p1", Quantity: 3}},
		Subtotal: 135000,
		Shipping: 0,
		Total:    135000,
	}
	o1, err := svc.CreateOrder(context.Background(), draft)
	require.NoError(t, err)
	o2, err := svc.CreateOrder(context.Background(), draft)
	require.NoError(t, err)

	var mu sync.Mutex
	var wins, losses int
	g := new(errgroup.Group)
	for _, id := range []string{o1.ID, o2.ID} {
		id := id
		g.Go(func() error {
			_, err := svc.ConfirmPayment(context.Background(), id, adminP, "")
			mu.Lock()
			defer mu.Unlock()
			var ise *orders.InsufficientStockError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &ise):
				losses++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// tepat satu menang per 3 unit; stok akhir 2, tidak pernah negatif
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
	assert.Equal(t, 2, mem.ProductStock("p1"))
}

func TestConfirmPaymentDuplicateLinesNeverOversell(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.PutProduct(orders.Product{ID: "p1", Name: "Vestido Rojo", Price: 45000, Stock: 5})

	// keranjang dengan dua baris produk sama lolos validasi
	d := orders.Draft{
		Customer: orders.Customer{Name: "Ana", Email: "ana@example.com"},
		Items: []orders.ItemInput{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p1", Quantity: 3},
		},
		Subtotal: 270000,
		Shipping: 0,
		Total:    270000,
	}
	o, err := svc.CreateOrder(context.Background(), d)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), o.ID, adminP, "")
	var ise *orders.InsufficientStockError
	require.ErrorAs(t, err, &ise)

	// stok tetap utuh, tidak pernah minus
	assert.Equal(t, 5, mem.ProductStock("p1"))
}

func TestOrderStatusPolling(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	// tanpa Redis jatuh ke store; tanpa principal juga boleh
	blob, err := svc.OrderStatus(context.Background(), o.ID)
	require.NoError(t, err)
	var got struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(blob, &got))
	assert.Equal(t, "pending_payment", got.Status)

	_, err = svc.OrderStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestCancelPendingPaymentLeavesStockAlone(t *testing.T) {
	svc, mem, pub := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	got, err := svc.CancelOrder(context.Background(), o.ID, adminP, "cliente no respondió")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, "cliente no respondió", got.PaymentNotes)
	assert.Equal(t, 10, mem.ProductStock("p1"))
	assert.Equal(t, 10, mem.ProductStock("p2"))

	require.Equal(t, 1, pub.topicCount(orders.TopicOrderCancelled))
	last := pub.envelopes[len(pub.envelopes)-1]
	var payload orders.OrderCancelledPayload
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.False(t, payload.Restocked)
}

func TestCancelAfterConfirmRestoresStock(t *testing.T) {
	svc, mem, pub := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), o.ID, adminP, "")
	require.NoError(t, err)
	require.Equal(t, 9, mem.ProductStock("p1"))
	require.Equal(t, 8, mem.ProductStock("p2"))

	_, err = svc.CancelOrder(context.Background(), o.ID, adminP, "pedido duplicado")
	require.NoError(t, err)

	// round-trip: stok kembali persis ke nilai sebelum konfirmasi
	assert.Equal(t, 10, mem.ProductStock("p1"))
	assert.Equal(t, 10, mem.ProductStock("p2"))

	last := pub.envelopes[len(pub.envelopes)-1]
	var payload orders.OrderCancelledPayload
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.True(t, payload.Restocked)
}

func TestCancelConflicts(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), o.ID, adminP, "x")
	require.NoError(t, err)
	_, err = svc.CancelOrder(context.Background(), o.ID, adminP, "x")
	assert.ErrorIs(t, err, orders.ErrAlreadyCancelled)

	// shipped orders can no longer be cancelled
	o2, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), o2.ID, adminP, "")
	require.NoError(t, err)
	require.NoError(t, mem.UpdateStatus(context.Background(), o2.ID, orders.StatusShipped))
	_, err = svc.CancelOrder(context.Background(), o2.ID, adminP, "x")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = svc.CancelOrder(context.Background(), "missing", adminP, "x")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestSetStatusTransitions(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	// pending_payment hanya keluar lewat ConfirmPayment
	_, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusProcessing)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = svc.ConfirmPayment(context.Background(), o.ID, adminP, "")
	require.NoError(t, err)

	// maju boleh, loncat boleh
	got, err := svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	// mundur tidak boleh
	_, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusPending)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// cancelled dan pending_payment punya jalur sendiri
	_, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusCancelled)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusPendingPayment)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// di luar enum ditolak, bukan dikoersi
	_, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.Status("refunded"))
	assert.ErrorIs(t, err, orders.ErrValidation)

	got, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, got.Status)

	// delivered terminal
	_, err = svc.SetStatus(context.Background(), o.ID, adminP, orders.StatusShipped)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// stok tidak pernah berubah lewat jalur ini
	assert.Equal(t, 9, mem.ProductStock("p1"))
	assert.Equal(t, 8, mem.ProductStock("p2"))
}

func TestGetOrderAuthorization(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	o, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), o.ID, adminP)
	assert.NoError(t, err)

	// pemilik cocok lewat email snapshot, case-insensitive
	owner := auth.Principal{ID: "user-1", Role: auth.RoleCustomer, Email: "ANA@example.com"}
	_, err = svc.GetOrder(context.Background(), o.ID, owner)
	assert.NoError(t, err)

	other := auth.Principal{ID: "user-2", Role: auth.RoleCustomer, Email: "otro@example.com"}
	_, err = svc.GetOrder(context.Background(), o.ID, other)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	_, err = svc.GetOrder(context.Background(), o.ID, auth.Principal{})
	assert.ErrorIs(t, err, orders.ErrForbidden)

	_, err = svc.GetOrder(context.Background(), "missing", adminP)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestListOrdersAccess(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	_, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	_, err = svc.ListOrders(context.Background(), orders.ListFilter{}, customerP)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	out, err := svc.ListOrders(context.Background(), orders.ListFilter{}, adminP)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	// customer hanya boleh lihat email miliknya
	_, err = svc.ListOrdersForCustomer(context.Background(), "otro@example.com", customerP)
	assert.ErrorIs(t, err, orders.ErrForbidden)
	mine, err := svc.ListOrdersForCustomer(context.Background(), "ana@example.com", customerP)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	all, err := svc.ListOrdersForCustomer(context.Background(), "ana@example.com", adminP)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListOrdersOperationalPriority(t *testing.T) {
	svc, mem, _ := newService(t)
	seedTwoProducts(mem)

	first, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)
	second, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)
	third, err := svc.CreateOrder(context.Background(), twoItemDraft())
	require.NoError(t, err)

	// first jadi shipped, second tetap pending_payment, third jadi pending
	_, err = svc.ConfirmPayment(context.Background(), first.ID, adminP, "")
	require.NoError(t, err)
	require.NoError(t, mem.UpdateStatus(context.Background(), first.ID, orders.StatusShipped))
	_, err = svc.ConfirmPayment(context.Background(), third.ID, adminP, "")
	require.NoError(t, err)

	out, err := svc.ListOrders(context.Background(), orders.ListFilter{}, adminP)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, second.ID, out[0].ID) // pending_payment paling atas
	assert.Equal(t, third.ID, out[1].ID)  // lalu pending
	assert.Equal(t, first.ID, out[2].ID)  // sisanya terakhir

	st := orders.StatusPendingPayment
	filtered, err := svc.ListOrders(context.Background(), orders.ListFilter{Status: &st}, adminP)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)
}
