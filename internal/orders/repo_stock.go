package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockLedger reads product stock for pre-flight checks. The
// authoritative mutations (reserveAndCommit/release) run on the
// transaction of the order status change, so stock and status land or
// roll back together.
type StockLedger struct{ DB *pgxpool.Pool }

var _ Ledger = (*StockLedger)(nil)

func (l *StockLedger) CheckAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	var stock int
	err := l.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return false, err
	}
	return stock >= qty, nil
}

// reserveAndCommit: decrement kondisional, bukan read-then-write. Nol
// baris berarti kalah rebutan stok dan caller wajib rollback transaksi.
func reserveAndCommit(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var available int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&available)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
	}
	return nil
}

// release: increment tanpa syarat, dipakai saat cancel order yang
// stoknya sudah dipotong.
func release(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
		productID, qty)
	return err
}
