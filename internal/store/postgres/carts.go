package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

const cartColumns = `id, customer_email, status, finalized_at, created_at, updated_at`

// getOrCreateAttempts bounds the insert-or-fetch loop. A second pass is only
// needed when the conflicting cart left the active state between the two
// statements.
const getOrCreateAttempts = 3

var errCartContended = errors.New("active cart kept changing state")

func scanCart(row rowScanner) (cart.Cart, error) {
	var (
		c      cart.Cart
		status string
	)
	if err := row.Scan(&c.ID, &c.CustomerEmail, &status, &c.FinalizedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return cart.Cart{}, err
	}
	c.Status = cart.Status(status)
	c.FinalizedAt = utcPtr(c.FinalizedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// GetOrCreateActiveCart inserts against the partial unique index on active
// carts. A concurrent insert for the same customer blocks on the index until
// the other transaction finishes; the loser gets no row back and re-reads the
// winner's cart. The re-read holds a row lock, so a concurrent finalize waits
// for this transaction's item writes, or finishes first and the row no longer
// matches.
func (q queries) GetOrCreateActiveCart(ctx context.Context, customerEmail string, now time.Time) (cart.Cart, bool, error) {
	for attempt := 0; attempt < getOrCreateAttempts; attempt++ {
		c, err := scanCart(q.q.QueryRow(ctx, `
INSERT INTO carts (id, customer_email, status, created_at, updated_at)
VALUES ($1, $2, 'active', $3, $3)
ON CONFLICT (customer_email) WHERE status = 'active' DO NOTHING
RETURNING `+cartColumns, uuid.NewString(), customerEmail, now))
		if err == nil {
			return c, true, nil
		}
		if !isNoRows(err) {
			return cart.Cart{}, false, cart.WrapStoreError("insert cart", err)
		}

		c, err = q.getCart(ctx, "lock active cart",
			`SELECT `+cartColumns+` FROM carts WHERE customer_email = $1 AND status = 'active' FOR UPDATE`, customerEmail)
		if err == nil {
			return c, false, nil
		}
		if !errors.Is(err, cart.ErrCartNotFound) {
			return cart.Cart{}, false, err
		}
	}
	return cart.Cart{}, false, cart.WrapStoreError("get or create active cart", errCartContended)
}

func (q queries) GetCart(ctx context.Context, cartID string) (cart.Cart, error) {
	return q.getCart(ctx, "get cart", `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID)
}

func (q queries) LockCart(ctx context.Context, cartID string) (cart.Cart, error) {
	return q.getCart(ctx, "lock cart", `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, cartID)
}

func (q queries) GetActiveCart(ctx context.Context, customerEmail string) (cart.Cart, error) {
	return q.getCart(ctx, "get active cart",
		`SELECT `+cartColumns+` FROM carts WHERE customer_email = $1 AND status = 'active'`, customerEmail)
}

func (q queries) getCart(ctx context.Context, op, query string, arg string) (cart.Cart, error) {
	c, err := scanCart(q.q.QueryRow(ctx, query, arg))
	if isNoRows(err) {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	if err != nil {
		return cart.Cart{}, cart.WrapStoreError(op, err)
	}
	return c, nil
}

func (q queries) FinalizeCart(ctx context.Context, cartID string, at time.Time) error {
	tag, err := q.q.Exec(ctx, `
UPDATE carts SET status = 'finalized', finalized_at = $2, updated_at = $2
WHERE id = $1 AND status = 'active'`, cartID, at)
	if err != nil {
		return cart.WrapStoreError("finalize cart", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrAlreadyFinalized
	}
	return nil
}

const itemColumns = `id, cart_id, product_id, quantity, price::text, created_at, updated_at`

func scanItem(row rowScanner) (cart.Item, error) {
	var (
		it    cart.Item
		price string
	)
	if err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &price, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return cart.Item{}, err
	}
	p, err := parsePrice(price)
	if err != nil {
		return cart.Item{}, err
	}
	it.Price = p
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, nil
}

func (q queries) ListItems(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+itemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at, product_id`, cartID)
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

// AddItem inserts the line or adds to its quantity in one statement. On
// conflict only quantity and updated_at change, so the first captured price
// stays.
func (q queries) AddItem(ctx context.Context, cartID, productID string, quantity int, price decimal.Decimal, now time.Time) (cart.Item, error) {
	it, err := scanItem(q.q.QueryRow(ctx, `
INSERT INTO cart_items (id, cart_id, product_id, quantity, price, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $6)
ON CONFLICT (cart_id, product_id) DO UPDATE
SET quantity = cart_items.quantity + EXCLUDED.quantity,
    updated_at = EXCLUDED.updated_at
RETURNING `+itemColumns,
		uuid.NewString(), cartID, productID, quantity, price.String(), now))
	if err != nil {
		return cart.Item{}, cart.WrapStoreError("upsert item", err)
	}
	return it, nil
}
