package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventPaymentConfirmed   = "PaymentConfirmed"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "storefront-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type ItemSnapshot struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int    `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	Items         []ItemSnapshot `json:"items"`
	Subtotal      int            `json:"subtotal"`
	Shipping      int            `json:"shipping"`
	Total         int            `json:"total"`
}

type PaymentConfirmedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ConfirmedBy string    `json:"confirmed_by"` // admin id
	PaidAt      time.Time `json:"paid_at"`
	Total       int       `json:"total"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
	Restocked   bool   `json:"restocked"` // true jika stok dikembalikan
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        Status `json:"from"`
	To          Status `json:"to"`
}
