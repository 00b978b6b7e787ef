package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// Repo is the product catalog the order engine's pre-flight reads.
// Admin CRUD only; stock mutations from the lifecycle side go through
// the ledger, not here.
type Repo struct{ DB *pgxpool.Pool }

type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	Stock       int    `json:"stock"`
	Image       string `json:"image"`
}

func (in ProductInput) validate() error {
	if in.Name == "" {
		return orders.Validationf("product name is required")
	}
	if in.Price < 0 {
		return orders.Validationf("price must be non-negative")
	}
	if in.Stock < 0 {
		return orders.Validationf("stock must be non-negative")
	}
	return nil
}

const productColumns = `id, name, description, price, stock, image, created_at, updated_at`

func scanProduct(row pgx.Row) (*orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) List(ctx context.Context) ([]orders.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (*orders.Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *Repo) Create(ctx context.Context, in ProductInput) (*orders.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, stock, image)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+productColumns,
		id, in.Name, in.Description, in.Price, in.Stock, in.Image))
}

func (r *Repo) Update(ctx context.Context, id string, in ProductInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$2, description=$3, price=$4, stock=$5, image=$6, updated_at=NOW()
		WHERE id=$1`,
		id, in.Name, in.Description, in.Price, in.Stock, in.Image)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrProductNotFound
	}
	return nil
}

// Delete is a hard delete; order item snapshots keep their own copy of
// name and price so history survives.
func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrProductNotFound
	}
	return nil
}
