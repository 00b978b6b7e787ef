package orders

// Status is the lifecycle state of a storefront order. pending_payment
// adalah state awal; stok belum dipotong sampai admin konfirmasi pembayaran.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// ParseStatus rejects anything outside the six-value enum. External
// callers sending other values must not be coerced.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPendingPayment, StatusPending, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// fulfillmentRank: urutan maju untuk update status biasa. pending_payment
// dan cancelled tidak pernah lewat jalur ini.
var fulfillmentRank = map[Status]int{
	StatusPending:    1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// CanAdvance reports whether an admin may move an order from -> to via
// the plain status update (no stock side effect). Skipping ahead is
// allowed, moving backwards is not.
func CanAdvance(from, to Status) bool {
	f, ok := fulfillmentRank[from]
	if !ok {
		return false
	}
	t, ok := fulfillmentRank[to]
	if !ok {
		return false
	}
	return t > f
}

// CanCancel: only before shipment. Cancellation of an already-cancelled
// order is reported separately as ErrAlreadyCancelled.
func CanCancel(from Status) bool {
	switch from {
	case StatusPendingPayment, StatusPending, StatusProcessing:
		return true
	}
	return false
}

// StockCommitted reports whether stock was already deducted for an order
// in this state. Orders migrated from the old five-state scheme start at
// pending, which also counts as committed.
func (s Status) StockCommitted() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// Terminal states accept no further transitions at all.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// statusPriority drives admin listings: unconfirmed payments surface
// first, then paid-but-unprocessed, then in-progress, then the rest.
// The SQL side mirrors this with a CASE expression.
func statusPriority(s Status) int {
	switch s {
	case StatusPendingPayment:
		return 1
	case StatusPending:
		return 2
	case StatusProcessing:
		return 3
	}
	return 4
}
