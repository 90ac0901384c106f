package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{alias(p), p.Price.StringFixed(MoneyScale)})
}
