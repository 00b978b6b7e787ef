package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store+Ledger with the same conditional
// decrement semantics as the Postgres repo, guarded by one mutex so
// every operation is atomic. Used by the lifecycle and handler tests.
type MemStore struct {
	mu       sync.Mutex
	products map[string]*Product
	orders   map[string]*Order
}

var (
	_ Store  = (*MemStore)(nil)
	_ Ledger = (*MemStore)(nil)
)

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[string]*Product{},
		orders:   map[string]*Order{},
	}
}

func (m *MemStore) PutProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.products[cp.ID] = &cp
}

// ProductStock is a test helper.
func (m *MemStore) ProductStock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		return p.Stock
	}
	return -1
}

func (m *MemStore) CheckAvailable(_ context.Context, productID string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return p.Stock >= qty, nil
}

// restock mengembalikan kuantitas item ke stok produk. Caller pegang mutex.
func (m *MemStore) restock(items []OrderItem) {
	for _, it := range items {
		if p, ok := m.products[it.ProductID]; ok {
			p.Stock += it.Quantity
		}
	}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.ConfirmedBy != nil {
		s := *o.ConfirmedBy
		cp.ConfirmedBy = &s
	}
	return &cp
}

func (m *MemStore) CreateOrder(_ context.Context, d Draft, orderNumber string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subtotal := 0
	for _, it := range d.Items {
		p, ok := m.products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if p.Stock < it.Quantity {
			return nil, &InsufficientStockError{
				ProductID: it.ProductID, ProductName: p.Name,
				Requested: it.Quantity, Available: p.Stock,
			}
		}
		subtotal += p.Price * it.Quantity
	}
	if subtotal != d.Subtotal {
		return nil, Validationf("subtotal mismatch: submitted %d, computed %d", d.Subtotal, subtotal)
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.NewString(),
		OrderNumber:   orderNumber,
		Customer:      d.Customer,
		Subtotal:      subtotal,
		Shipping:      d.Shipping,
		Total:         d.Total,
		Status:        StatusPendingPayment,
		PaymentMethod: PaymentMethodWhatsApp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range d.Items {
		p := m.products[it.ProductID]
		o.Items = append(o.Items, OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: p.Name,
			Price:       p.Price,
			Quantity:    it.Quantity,
			Subtotal:    p.Price * it.Quantity,
		})
	}
	m.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (m *MemStore) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func summarize(o *Order) OrderSummary {
	return OrderSummary{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		Total:         o.Total,
		Status:        o.Status,
		ItemsCount:    len(o.Items),
		CreatedAt:     o.CreatedAt,
	}
}

func (m *MemStore) ListOrders(_ context.Context, f ListFilter) ([]OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderSummary
	for _, o := range m.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, summarize(o))
	}
	sortSummaries(out)
	return out, nil
}

// sortSummaries mirrors the SQL listing order: priority CASE lalu
// created_at DESC. Stable, jadi tie di created_at tidak lompat-lompat
// antar panggilan.
func sortSummaries(out []OrderSummary) {
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := statusPriority(out[i].Status), statusPriority(out[j].Status)
		if pi != pj {
			return pi < pj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

func (m *MemStore) ListOrdersByEmail(_ context.Context, email string) ([]OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderSummary
	for _, o := range m.orders {
		if o.Customer.Email == email {
			out = append(out, summarize(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) UpdateStatus(_ context.Context, id string, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) ConfirmPayment(_ context.Context, id, adminID, notes string, paidAt time.Time) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != StatusPendingPayment {
		return nil, ErrAlreadyProcessed
	}

	// potong per baris seperti decrement kondisional di SQL; baris
	// duplikat untuk produk yang sama terhitung benar. Gagal di tengah ->
	// kembalikan baris yang sudah terpotong (rollback manual).
	for i, it := range o.Items {
		p, ok := m.products[it.ProductID]
		if !ok {
			m.restock(o.Items[:i])
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if p.Stock < it.Quantity {
			m.restock(o.Items[:i])
			return nil, &InsufficientStockError{
				ProductID: it.ProductID, ProductName: it.ProductName,
				Requested: it.Quantity, Available: p.Stock,
			}
		}
		p.Stock -= it.Quantity
	}

	o.Status = StatusPending
	o.PaidAt = &paidAt
	o.ConfirmedBy = &adminID
	o.PaymentNotes = notes
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), nil
}

func (m *MemStore) Cancel(_ context.Context, id, reason string) (*Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if o.Status == StatusCancelled {
		return nil, false, ErrAlreadyCancelled
	}
	if !CanCancel(o.Status) {
		return nil, false, fmt.Errorf("%w: cannot cancel %s order", ErrInvalidTransition, o.Status)
	}

	restocked := false
	if o.Status.StockCommitted() {
		m.restock(o.Items)
		restocked = true
	}

	o.Status = StatusCancelled
	o.PaymentNotes = reason
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), restocked, nil
}
