package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product entity
type Product struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitID    int64           `json:"unit_id"`
	Rate      decimal.Decimal `json:"rate"`
	IsActive  bool            `json:"is_active"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RateLine carries the latest purchase terms for one item.
type RateLine struct {
	ItemID int64
	Rate   decimal.Decimal
	UnitID int64
}
