package orders

import (
	"context"
	"time"
)

// ListFilter selects which orders an admin listing returns. Nil Status
// means everything.
type ListFilter struct {
	Status *Status
}

// Store is the persistence contract the lifecycle service drives. The
// Postgres implementation lives in repo.go; MemStore mirrors it for
// tests. Every method executes as one atomic unit against the backing
// store: a failed ConfirmPayment or Cancel leaves no partial stock or
// status mutation behind.
type Store interface {
	// CreateOrder persists the order and its item snapshots in status
	// pending_payment. Prices and names are read from the products
	// table inside the same transaction; the submitted subtotal must
	// match the server-side computation. Stock is NOT touched, only
	// pre-flight checked.
	CreateOrder(ctx context.Context, d Draft, orderNumber string) (*Order, error)

	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]OrderSummary, error)
	ListOrdersByEmail(ctx context.Context, email string) ([]OrderSummary, error)

	// UpdateStatus is an unconditional single-row write used for pure
	// fulfillment progression; transition rules live in the lifecycle
	// service.
	UpdateStatus(ctx context.Context, id string, to Status) error

	// ConfirmPayment commits stock for every item (conditional
	// decrement, all-or-nothing) and advances the order to pending in
	// one transaction. Fails with ErrAlreadyProcessed when the order
	// left pending_payment, or *InsufficientStockError naming the
	// offending product.
	ConfirmPayment(ctx context.Context, id, adminID, notes string, paidAt time.Time) (*Order, error)

	// Cancel marks the order cancelled, restocking every item first if
	// stock had been committed. Reports whether stock was returned.
	Cancel(ctx context.Context, id, reason string) (*Order, bool, error)
}

// Ledger is the product stock read contract. CheckAvailable is a
// pre-flight only and not authoritative under concurrency; the
// authoritative decrement happens inside Store.ConfirmPayment.
type Ledger interface {
	CheckAvailable(ctx context.Context, productID string, qty int) (bool, error)
}
