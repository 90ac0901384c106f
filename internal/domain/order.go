package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// MoneyScale is the number of decimal places amounts are stored and shown with.
const MoneyScale = 2

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type alias OrderItem
	return json.Marshal(struct {
		alias
		PriceAtPurchase string `json:"price_at_purchase"`
	}{alias(i), i.PriceAtPurchase.StringFixed(MoneyScale)})
}

// Subtotal is the line's contribution to the order total.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	Items       []OrderItem     `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ShippedAt   *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		TotalAmount string `json:"total_amount"`
	}{alias(o), o.TotalAmount.StringFixed(MoneyScale)})
}

// NewOrder freezes items into a pending order. The total is computed once here
// and is never derived from live catalog prices again.
func NewOrder(userID int64, items []OrderItem, now time.Time) *Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	total = total.Round(MoneyScale)

	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		TotalAmount: total,
		Status:      OrderStatusPending,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ApplyStatus moves the order to next and stamps the matching timestamp.
// It does not check the transition; callers decide the policy.
func (o *Order) ApplyStatus(next OrderStatus, now time.Time) {
	o.Status = next
	o.UpdatedAt = now

	switch next {
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	}
}

// StatusChange is one row of an order's status history. From is nil for the
// initial pending entry.
type StatusChange struct {
	OrderID   uuid.UUID    `json:"order_id"`
	From      *OrderStatus `json:"from,omitempty"`
	To        OrderStatus  `json:"to"`
	ChangedAt time.Time    `json:"changed_at"`
}
