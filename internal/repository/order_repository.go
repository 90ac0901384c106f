package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, total_amount, status, created_at, updated_at, shipped_at, delivered_at, cancelled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.ShippedAt,
		&order.DeliveredAt,
		&order.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	return r.InTx(ctx, func(tx Store) error {
		return tx.(*Repository).createOrder(ctx, order)
	})
}

func (r *Repository) createOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, user_id, total_amount, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, product_name, quantity, price_at_purchase)
	              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	for i := range order.Items {
		item := &order.Items[i]
		err := r.q.QueryRowContext(ctx, itemQuery,
			order.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.PriceAtPurchase).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item for product %d: %w", item.ProductID, err)
		}
	}

	return r.appendHistory(ctx, domain.StatusChange{
		OrderID:   order.ID,
		To:        order.Status,
		ChangedAt: order.CreatedAt,
	})
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, id, false)
}

func (r *Repository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, id, true)
}

func (r *Repository) getOrder(ctx context.Context, id uuid.UUID, lock bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.listOrders(ctx, query, userID)
}

func (r *Repository) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	return r.listOrders(ctx, query, status)
}

func (r *Repository) listOrders(ctx context.Context, query string, arg any) ([]*domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all orders with a single query.
func (r *Repository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID.String()
		o.Items = make([]domain.OrderItem, 0)
		byID[o.ID] = o
	}

	query := `SELECT id, order_id, product_id, product_name, quantity, price_at_purchase
	          FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var orderID uuid.UUID
		if err := rows.Scan(
			&item.ID,
			&orderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.PriceAtPurchase,
		); err != nil {
			return fmt.Errorf("scan order item row: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	return r.InTx(ctx, func(tx Store) error {
		return tx.(*Repository).updateOrderStatus(ctx, order, from)
	})
}

func (r *Repository) updateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	query := `UPDATE orders
	          SET status = $2, updated_at = $3, shipped_at = $4, delivered_at = $5, cancelled_at = $6
	          WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.Status,
		order.UpdatedAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}

	return r.appendHistory(ctx, domain.StatusChange{
		OrderID:   order.ID,
		From:      &from,
		To:        order.Status,
		ChangedAt: order.UpdatedAt,
	})
}

func (r *Repository) appendHistory(ctx context.Context, change domain.StatusChange) error {
	query := `INSERT INTO order_status_history (order_id, from_status, to_status, changed_at)
	          VALUES ($1, $2, $3, $4)`

	if _, err := r.q.ExecContext(ctx, query, change.OrderID, change.From, change.To, change.ChangedAt); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *Repository) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	query := `SELECT order_id, from_status, to_status, changed_at
	          FROM order_status_history WHERE order_id = $1 ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.StatusChange, 0)
	for rows.Next() {
		var change domain.StatusChange
		if err := rows.Scan(&change.OrderID, &change.From, &change.To, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history row: %w", err)
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return history, nil
}
