package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/catalog"
)

func (s *Store) Product(ctx context.Context, productID string) (catalog.Product, error) {
	var p catalog.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price, created_at, updated_at FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, cart.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, cart.WrapStoreError("get product", err)
	}
	return p, nil
}

// Price implements cart.Catalog from the products table.
func (s *Store) Price(ctx context.Context, productID string) (decimal.Decimal, error) {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p catalog.Product, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO products (id, name, price, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE
SET name = excluded.name, price = excluded.price, updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Price.String(), now, now)
	return cart.WrapStoreError("upsert product", err)
}
