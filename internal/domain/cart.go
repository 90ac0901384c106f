package domain

import "time"

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Item returns the line for productID, if any.
func (c *Cart) Item(productID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}
