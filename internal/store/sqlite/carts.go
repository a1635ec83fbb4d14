package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

const cartColumns = `id, customer_email, status, finalized_at, created_at, updated_at`

func scanCart(row rowScanner) (cart.Cart, error) {
	var (
		c         cart.Cart
		status    string
		finalized sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CustomerEmail, &status, &finalized, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return cart.Cart{}, err
	}
	c.Status = cart.Status(status)
	c.FinalizedAt = nullTime(finalized)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// GetOrCreateActiveCart relies on the partial unique index over active carts:
// the insert is skipped when the customer already has one, and the existing
// cart is read instead.
func (q queries) GetOrCreateActiveCart(ctx context.Context, customerEmail string, now time.Time) (cart.Cart, bool, error) {
	res, err := q.q.ExecContext(ctx, `
INSERT INTO carts (id, customer_email, status, created_at, updated_at)
VALUES (?, ?, 'active', ?, ?)
ON CONFLICT (customer_email) WHERE status = 'active' DO NOTHING`,
		uuid.NewString(), customerEmail, now, now)
	if err != nil {
		return cart.Cart{}, false, cart.WrapStoreError("insert cart", err)
	}
	n, err := affected(res)
	if err != nil {
		return cart.Cart{}, false, cart.WrapStoreError("insert cart", err)
	}

	c, err := q.GetActiveCart(ctx, customerEmail)
	if err != nil {
		return cart.Cart{}, false, err
	}
	return c, n == 1, nil
}

func (q queries) GetCart(ctx context.Context, cartID string) (cart.Cart, error) {
	c, err := scanCart(q.q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = ?`, cartID))
	if errors.Is(err, sql.ErrNoRows) {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	if err != nil {
		return cart.Cart{}, cart.WrapStoreError("get cart", err)
	}
	return c, nil
}

// LockCart is a plain read: the single connection already serializes
// transactions.
func (q queries) LockCart(ctx context.Context, cartID string) (cart.Cart, error) {
	return q.GetCart(ctx, cartID)
}

func (q queries) GetActiveCart(ctx context.Context, customerEmail string) (cart.Cart, error) {
	c, err := scanCart(q.q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE customer_email = ? AND status = 'active'`, customerEmail))
	if errors.Is(err, sql.ErrNoRows) {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	if err != nil {
		return cart.Cart{}, cart.WrapStoreError("get active cart", err)
	}
	return c, nil
}

func (q queries) FinalizeCart(ctx context.Context, cartID string, at time.Time) error {
	res, err := q.q.ExecContext(ctx, `
UPDATE carts SET status = 'finalized', finalized_at = ?, updated_at = ?
WHERE id = ? AND status = 'active'`, at, at, cartID)
	if err != nil {
		return cart.WrapStoreError("finalize cart", err)
	}
	n, err := affected(res)
	if err != nil {
		return cart.WrapStoreError("finalize cart", err)
	}
	if n == 0 {
		return cart.ErrAlreadyFinalized
	}
	return nil
}

const itemColumns = `id, cart_id, product_id, quantity, price, created_at, updated_at`

func scanItem(row rowScanner) (cart.Item, error) {
	var it cart.Item
	if err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.Price, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return cart.Item{}, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, nil
}

func (q queries) ListItems(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM cart_items WHERE cart_id = ? ORDER BY created_at, product_id`, cartID)
	if err != nil {
		return nil, cart.WrapStoreError("list items", err)
	}
	defer rows.Close()

	items := []cart.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, cart.WrapStoreError("scan item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, cart.WrapStoreError("list items", err)
	}
	return items, nil
}

func (q queries) AddItem(ctx context.Context, cartID, productID string, quantity int, price decimal.Decimal, now time.Time) (cart.Item, error) {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO cart_items (id, cart_id, product_id, quantity, price, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cart_id, product_id) DO UPDATE
SET quantity = cart_items.quantity + excluded.quantity,
    updated_at = excluded.updated_at`,
		uuid.NewString(), cartID, productID, quantity, price.String(), now, now)
	if err != nil {
		return cart.Item{}, cart.WrapStoreError("upsert item", err)
	}

	it, err := scanItem(q.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID))
	if err != nil {
		return cart.Item{}, cart.WrapStoreError("reload item", err)
	}
	return it, nil
}
