package orders

import "time"

const PaymentMethodWhatsApp = "whatsapp"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"` // unit currency, non-negative
	Stock       int       `json:"stock"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Customer is the snapshot copied into an order at creation. Bukan
// referensi ke record user; edit profil tidak mengubah order lama.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type Order struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	Customer      Customer    `json:"customer"`
	Subtotal      int         `json:"subtotal"`
	Shipping      int         `json:"shipping"`
	Total         int         `json:"total"` // always subtotal + shipping
	Status        Status      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	PaidAt        *time.Time  `json:"paid_at,omitempty"`
	ConfirmedBy   *string     `json:"confirmed_by,omitempty"`
	PaymentNotes  string      `json:"payment_notes,omitempty"`
	Items         []OrderItem `json:"items,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem is a price/name snapshot, immutable after order creation and
// decoupled from later catalog edits.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int    `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int    `json:"subtotal"` // price * quantity
}

// OrderSummary is the listing shape (no items, just the count).
type OrderSummary struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Total         int       `json:"total"`
	Status        Status    `json:"status"`
	ItemsCount    int       `json:"items_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ItemInput is one cart line as submitted by the storefront. Harga dan
// nama produk diambil dari katalog, bukan dari client.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Draft is a create-order request before validation.
type Draft struct {
	Customer Customer    `json:"customer"`
	Items    []ItemInput `json:"items"`
	Subtotal int         `json:"subtotal"`
	Shipping int         `json:"shipping"`
	Total    int         `json:"total"`
}
