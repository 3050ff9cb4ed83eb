package products

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/platform/db"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// MasterStore updates item master fields.
type MasterStore interface {
	UpdateRate(ctx context.Context, id int64, rate decimal.Decimal, at time.Time) error
	UpdateUnit(ctx context.Context, id int64, unitID int64, at time.Time) error
}

type repository struct {
	db db.DBTX
}

// NewRepository binds a MasterStore to a connection or transaction.
func NewRepository(conn db.DBTX) MasterStore {
	return &repository{db: conn}
}

func (r *repository) UpdateRate(ctx context.Context, id int64, rate decimal.Decimal, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE products SET rate = $2, updated_at = $3 WHERE id = $1`, id, rate, at)
	if err != nil {
		return fmt.Errorf("products: update rate: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.MissingReference("product", id)
	}
	return nil
}

func (r *repository) UpdateUnit(ctx context.Context, id int64, unitID int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE products SET unit_id = $2, updated_at = $3 WHERE id = $1`, id, unitID, at)
	if err != nil {
		return fmt.Errorf("products: update unit: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.MissingReference("product", id)
	}
	return nil
}
