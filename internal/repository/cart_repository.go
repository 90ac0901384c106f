package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

func (r *Repository) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	return r.getCart(ctx, userID, false)
}

func (r *Repository) GetCartForUpdate(ctx context.Context, userID int64) (*domain.Cart, error) {
	return r.getCart(ctx, userID, true)
}

func (r *Repository) getCart(ctx context.Context, userID int64, lock bool) (*domain.Cart, error) {
	query := `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart by user id: %w", err)
	}

	items, err := r.cartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *Repository) cartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	query := `SELECT product_id, quantity, added_at
	          FROM cart_items WHERE cart_id = $1 ORDER BY added_at, product_id`

	rows, err := r.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// CreateCart is idempotent: an existing cart for the user is returned as is.
func (r *Repository) CreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	query := `INSERT INTO carts (user_id, created_at, updated_at)
	          VALUES ($1, NOW(), NOW())
	          ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.q.ExecContext(ctx, query, userID); err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}
	return r.GetCart(ctx, userID)
}

func (r *Repository) AddItem(ctx context.Context, cartID, productID int64, quantity int) error {
	query := `INSERT INTO cart_items (cart_id, product_id, quantity, added_at)
	          VALUES ($1, $2, $3, NOW())
	          ON CONFLICT (cart_id, product_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	if _, err := r.q.ExecContext(ctx, query, cartID, productID, quantity); err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, cartID, productID int64, quantity int) error {
	query := `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`

	result, err := r.q.ExecContext(ctx, query, cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("update item quantity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) RemoveItem(ctx context.Context, cartID, productID int64) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	if _, err := r.q.ExecContext(ctx, query, cartID, productID); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return r.touchCart(ctx, cartID)
}

func (r *Repository) touchCart(ctx context.Context, cartID int64) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
