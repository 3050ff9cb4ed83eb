package periods

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledgersync/internal/platform/db"
)

// ErrNotFound indicates the period row is absent.
var ErrNotFound = errors.New("periods: not found")

// Reader loads periods by id.
type Reader interface {
	Get(ctx context.Context, id int64) (Period, error)
}

// PGStore reads financial_periods. Inside a transaction the row is read FOR SHARE
// so an administrator cannot lock the period until the writer commits.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

// Get returns the period or ErrNotFound.
func (s *PGStore) Get(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := s.db.QueryRow(ctx, `SELECT id, code, start_date, end_date, locked, active, created_at, updated_at
FROM financial_periods WHERE id=$1 FOR SHARE`, id).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Locked, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, fmt.Errorf("periods: get %d: %w", id, err)
	}
	return p, nil
}
