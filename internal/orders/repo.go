package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres-backed Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone,
	customer_address, customer_city, subtotal, shipping, total, status,
	payment_method, paid_at, confirmed_by, COALESCE(payment_notes, ''),
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.Customer.Name, &o.Customer.Email,
		&o.Customer.Phone, &o.Customer.Address, &o.Customer.City,
		&o.Subtotal, &o.Shipping, &o.Total, &status,
		&o.PaymentMethod, &o.PaidAt, &o.ConfirmedBy, &o.PaymentNotes,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadItems(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, product_name, product_price, quantity, subtotal
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Price, &it.Quantity, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CreateOrder: satu transaksi; harga & nama produk diambil dari tabel
// products (hindari trust dari client), stok hanya dicek, tidak dipotong.
func (r *Repo) CreateOrder(ctx context.Context, d Draft, orderNumber string) (*Order, error) {
	if len(d.Items) == 0 {
		return nil, Validationf("empty cart")
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	params := ""
	args := make([]any, 0, len(d.Items))
	for i, it := range d.Items {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, it.ProductID)
	}
	rows, err := tx.Query(ctx, `SELECT id, name, price, stock FROM products WHERE id IN (`+params+`)`, args...)
	if err != nil {
		return nil, err
	}
	type prodRow struct {
		name         string
		price, stock int
	}
	prods := map[string]prodRow{}
	for rows.Next() {
		var id string
		var p prodRow
		if err := rows.Scan(&id, &p.name, &p.price, &p.stock); err != nil {
			return nil, err
		}
		prods[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subtotal := 0
	for _, it := range d.Items {
		p, ok := prods[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if p.stock < it.Quantity {
			return nil, &InsufficientStockError{
				ProductID: it.ProductID, ProductName: p.name,
				Requested: it.Quantity, Available: p.stock,
			}
		}
		subtotal += p.price * it.Quantity
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
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, customer_name, customer_email, customer_phone,
			customer_address, customer_city, subtotal, shipping, total, status,
			payment_method, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.OrderNumber, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Customer.Address, o.Customer.City, o.Subtotal, o.Shipping, o.Total,
		string(o.Status), o.PaymentMethod, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, it := range d.Items {
		p := prods[it.ProductID]
		item := OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: p.name,
			Price:       p.price,
			Quantity:    it.Quantity,
			Subtotal:    p.price * it.Quantity,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, product_price, quantity, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			item.ID, item.OrderID, item.ProductID, item.ProductName,
			item.Price, item.Quantity, item.Subtotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = loadItems(ctx, r.DB, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

const summaryColumns = `o.id, o.order_number, o.customer_name, o.customer_email, o.total, o.status, o.created_at,
	(SELECT COUNT(*) FROM order_items WHERE order_id = o.id) AS items_count`

func scanSummaries(rows pgx.Rows) ([]OrderSummary, error) {
	defer rows.Close()
	var out []OrderSummary
	for rows.Next() {
		var s OrderSummary
		var status string
		if err := rows.Scan(&s.ID, &s.OrderNumber, &s.CustomerName, &s.CustomerEmail,
			&s.Total, &status, &s.CreatedAt, &s.ItemsCount); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListOrders: prioritas operasional dulu (pending_payment paling atas),
// baru kronologis terbaru.
func (r *Repo) ListOrders(ctx context.Context, f ListFilter) ([]OrderSummary, error) {
	q := `SELECT ` + summaryColumns + ` FROM orders o`
	args := []any{}
	if f.Status != nil {
		q += ` WHERE o.status = $1`
		args = append(args, string(*f.Status))
	}
	q += ` ORDER BY
		CASE o.status
			WHEN 'pending_payment' THEN 1
			WHEN 'pending' THEN 2
			WHEN 'processing' THEN 3
			ELSE 4
		END,
		o.created_at DESC`
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

func (r *Repo) ListOrdersByEmail(ctx context.Context, email string) ([]OrderSummary, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+summaryColumns+` FROM orders o
		WHERE o.customer_email = $1 ORDER BY o.created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(to))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmPayment: kunci baris order (FOR UPDATE) -> potong stok per item
// (kondisional) -> update status. Kalau satu item kurang, seluruh
// transaksi rollback: tidak ada potongan parsial.
func (r *Repo) ConfirmPayment(ctx context.Context, id, adminID, notes string, paidAt time.Time) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPendingPayment {
		return nil, ErrAlreadyProcessed
	}
	o.Items, err = loadItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	for _, it := range o.Items {
		if err := reserveAndCommit(ctx, tx, it.ProductID, it.Quantity); err != nil {
			var ise *InsufficientStockError
			if errors.As(err, &ise) && ise.ProductName == "" {
				ise.ProductName = it.ProductName
			}
			return nil, err // rollback via defer
		}
	}

	_, err = tx.Exec(ctx, `UPDATE orders
		SET status=$2, paid_at=$3, confirmed_by=$4, payment_notes=$5, updated_at=NOW()
		WHERE id=$1`,
		id, string(StatusPending), paidAt, adminID, notes)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	o.Status = StatusPending
	o.PaidAt = &paidAt
	o.ConfirmedBy = &adminID
	o.PaymentNotes = notes
	return o, nil
}

// Cancel: kembalikan stok hanya jika sudah pernah dipotong, lalu tandai
// cancelled. Order yang sudah cancelled ditolak, bukan no-op.
func (r *Repo) Cancel(ctx context.Context, id, reason string) (*Order, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, false, err
	}
	if o.Status == StatusCancelled {
		return nil, false, ErrAlreadyCancelled
	}
	if !CanCancel(o.Status) {
		return nil, false, fmt.Errorf("%w: cannot cancel %s order", ErrInvalidTransition, o.Status)
	}
	o.Items, err = loadItems(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	restocked := false
	if o.Status.StockCommitted() {
		for _, it := range o.Items {
			if err := release(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return nil, false, err
			}
		}
		restocked = true
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, payment_notes=$3, updated_at=NOW() WHERE id=$1`,
		id, string(StatusCancelled), reason)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	o.Status = StatusCancelled
	o.PaymentNotes = reason
	return o, restocked, nil
}
