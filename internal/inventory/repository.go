package inventory

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/ledgersync/internal/platform/db"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// MovementStore persists stock movements.
type MovementStore interface {
	DeleteByRef(ctx context.Context, kind shared.Kind, transactionID int64) (int64, error)
	Insert(ctx context.Context, movement Movement) (int64, error)
	ListByRef(ctx context.Context, kind shared.Kind, transactionID int64) ([]Movement, error)
}

// PGStore implements MovementStore over stock_movements.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

// DeleteByRef removes every movement tagged (kind, transactionID).
func (s *PGStore) DeleteByRef(ctx context.Context, kind shared.Kind, transactionID int64) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM stock_movements WHERE kind=$1 AND transaction_id=$2`, string(kind), transactionID)
	if err != nil {
		return 0, fmt.Errorf("inventory: delete movements: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// Insert writes one movement.
func (s *PGStore) Insert(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO stock_movements (item_id, qty, net_rate, kind, transaction_id, transaction_number, movement_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		m.ItemID, m.Qty, m.NetRate, string(m.Kind), m.TransactionID, m.TransactionNumber, m.Date, m.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return id, nil
}

// ListByRef returns the movements tagged (kind, transactionID) in insertion order.
func (s *PGStore) ListByRef(ctx context.Context, kind shared.Kind, transactionID int64) ([]Movement, error) {
	rows, err := s.db.Query(ctx, `SELECT id, item_id, qty, net_rate, kind, transaction_id, transaction_number, movement_date, created_at
FROM stock_movements WHERE kind=$1 AND transaction_id=$2 ORDER BY id ASC`, string(kind), transactionID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var kindRaw string
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Qty, &m.NetRate, &kindRaw, &m.TransactionID, &m.TransactionNumber, &m.Date, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = shared.Kind(kindRaw)
		out = append(out, m)
	}
	return out, rows.Err()
}
