package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// Movement is one signed stock row tagged with its originating transaction.
type Movement struct {
	ID                int64
	ItemID            int64
	Qty               decimal.Decimal
	NetRate           decimal.Decimal
	Kind              shared.Kind
	TransactionID     int64
	TransactionNumber string
	Date              time.Time
	CreatedAt         time.Time
}

// MovementLine is the unsigned input for one movement.
type MovementLine struct {
	ItemID  int64
	Qty     decimal.Decimal
	NetRate decimal.Decimal
}

// Ref identifies the originating transaction.
type Ref struct {
	ID     int64
	Number string
	Date   time.Time
}

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrMissingItem indicates a line without an item.
var ErrMissingItem = errors.New("inventory: item required")

// ErrMissingRef indicates a replace call without a transaction id.
var ErrMissingRef = errors.New("inventory: transaction reference required")
