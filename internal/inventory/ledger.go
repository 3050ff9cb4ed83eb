package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// Ledger replaces the stock movements of a transaction.
type Ledger struct {
	store MovementStore
	now   func() time.Time
}

// NewLedger constructs a Ledger. A nil clock defaults to time.Now.
func NewLedger(store MovementStore, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// ReplaceMovements deletes every movement tagged (kind, ref.ID) and inserts one
// row per line, signed by the kind's direction. An empty line set only deletes.
func (l *Ledger) ReplaceMovements(ctx context.Context, kind shared.Kind, ref Ref, lines []MovementLine) ([]Movement, error) {
	profile, err := kind.Profile()
	if err != nil {
		return nil, err
	}
	if ref.ID == 0 {
		return nil, ErrMissingRef
	}
	for idx, line := range lines {
		if line.ItemID == 0 {
			return nil, fmt.Errorf("%w: line %d", ErrMissingItem, idx)
		}
		if !line.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: line %d qty %s", ErrInvalidQuantity, idx, line.Qty.String())
		}
	}

	if _, err := l.store.DeleteByRef(ctx, kind, ref.ID); err != nil {
		return nil, err
	}

	sign := decimal.NewFromInt(profile.Sign())
	created := l.now().UTC()
	movements := make([]Movement, 0, len(lines))
	for _, line := range lines {
		m := Movement{
			ItemID:            line.ItemID,
			Qty:               line.Qty.Mul(sign),
			NetRate:           line.NetRate,
			Kind:              kind,
			TransactionID:     ref.ID,
			TransactionNumber: ref.Number,
			Date:              ref.Date,
			CreatedAt:         created,
		}
		id, err := l.store.Insert(ctx, m)
		if err != nil {
			return nil, err
		}
		m.ID = id
		movements = append(movements, m)
	}
	return movements, nil
}

// Movements lists the current rows for a transaction.
func (l *Ledger) Movements(ctx context.Context, kind shared.Kind, transactionID int64) ([]Movement, error) {
	return l.store.ListByRef(ctx, kind, transactionID)
}
