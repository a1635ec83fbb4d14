package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/catalog"
)

func (s *Store) Product(ctx context.Context, productID string) (catalog.Product, error) {
	var (
		p     catalog.Product
		price string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, price::text, created_at, updated_at FROM products WHERE id = $1`, productID,
	).Scan(&p.ID, &p.Name, &price, &p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return catalog.Product{}, cart.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, cart.WrapStoreError("get product", err)
	}
	if p.Price, err = parsePrice(price); err != nil {
		return catalog.Product{}, cart.WrapStoreError("get product", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
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
	_, err := s.pool.Exec(ctx, `
INSERT INTO products (id, name, price, created_at, updated_at)
VALUES ($1, $2, $3::text::numeric, $4, $4)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Price.String(), now)
	return cart.WrapStoreError("upsert product", err)
}
