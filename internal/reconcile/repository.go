package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
	"github.com/odyssey-erp/ledgersync/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgersync/internal/accounting/periods"
	"github.com/odyssey-erp/ledgersync/internal/inventory"
	"github.com/odyssey-erp/ledgersync/internal/masterdata/products"
	"github.com/odyssey-erp/ledgersync/internal/platform/db"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// ErrDuplicateNumber indicates another transaction of the same kind already uses the number.
var ErrDuplicateNumber = errors.New("reconcile: transaction number already exists")

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Periods() periods.Reader            { return periods.NewPGStore(t.tx) }
func (t *txRepo) Headers() HeaderRepository          { return &headerRepo{db: t.tx} }
func (t *txRepo) Lines() LineRepository              { return &lineRepo{db: t.tx} }
func (t *txRepo) Movements() inventory.MovementStore { return inventory.NewPGStore(t.tx) }
func (t *txRepo) Postings() journals.PostingStore    { return journals.NewPGStore(t.tx) }
func (t *txRepo) Products() products.MasterStore     { return products.NewRepository(t.tx) }
func (t *txRepo) Mappings() mappings.Repository      { return mappings.NewRepository(t.tx) }

type headerRepo struct {
	db db.DBTX
}

const headerColumns = `id, kind, counterparty_id, period_id, number, txn_date, active, created_by, created_at, modified_by, modified_at, platform`

func scanHeader(row pgx.Row) (Header, error) {
	var h Header
	var kind string
	err := row.Scan(&h.ID, &kind, &h.CounterpartyID, &h.PeriodID, &h.Number, &h.Date, &h.Active,
		&h.CreatedBy, &h.CreatedAt, &h.ModifiedBy, &h.ModifiedAt, &h.Platform)
	h.Kind = shared.Kind(kind)
	return h, err
}

func (r *headerRepo) Insert(ctx context.Context, h Header) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO transactions (kind, counterparty_id, period_id, number, txn_date, active, created_by, created_at, modified_by, modified_at, platform)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		string(h.Kind), h.CounterpartyID, h.PeriodID, h.Number, h.Date, h.Active, h.CreatedBy, h.CreatedAt, h.ModifiedBy, h.ModifiedAt, h.Platform).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (r *headerRepo) Update(ctx context.Context, h Header) error {
	cmd, err := r.db.Exec(ctx, `UPDATE transactions SET counterparty_id=$3, period_id=$4, number=$5, txn_date=$6, active=$7,
modified_by=$8, modified_at=$9, platform=$10 WHERE id=$1 AND kind=$2`,
		h.ID, string(h.Kind), h.CounterpartyID, h.PeriodID, h.Number, h.Date, h.Active, h.ModifiedBy, h.ModifiedAt, h.Platform)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateNumber
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.MissingReference("transaction", fmt.Sprintf("%s/%d", h.Kind, h.ID))
	}
	return nil
}

func (r *headerRepo) get(ctx context.Context, kind shared.Kind, id int64, lock bool) (Header, error) {
	query := `SELECT ` + headerColumns + ` FROM transactions WHERE id=$1 AND kind=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	h, err := scanHeader(r.db.QueryRow(ctx, query, id, string(kind)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Header{}, shared.MissingReference("transaction", fmt.Sprintf("%s/%d", kind, id))
		}
		return Header{}, fmt.Errorf("reconcile: load header: %w", err)
	}
	return h, nil
}

func (r *headerRepo) GetForUpdate(ctx context.Context, kind shared.Kind, id int64) (Header, error) {
	return r.get(ctx, kind, id, true)
}

func (r *headerRepo) Get(ctx context.Context, kind shared.Kind, id int64) (Header, error) {
	return r.get(ctx, kind, id, false)
}

func (r *headerRepo) SetActive(ctx context.Context, kind shared.Kind, id int64, active bool, actorID int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE transactions SET active=$3, modified_by=$4, modified_at=$5 WHERE id=$1 AND kind=$2`,
		id, string(kind), active, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.MissingReference("transaction", fmt.Sprintf("%s/%d", kind, id))
	}
	return nil
}

func (r *headerRepo) ListIDs(ctx context.Context, kind shared.Kind, since time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM transactions WHERE kind=$1 AND modified_at >= $2 ORDER BY id ASC LIMIT $3`,
		string(kind), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type lineRepo struct {
	db db.DBTX
}

func (r *lineRepo) ListActive(ctx context.Context, parentID int64) ([]DetailLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, parent_id, item_id, unit_id, qty, rate,
tax1_percent, tax1_amount, tax2_percent, tax2_amount, tax3_percent, tax3_amount,
discount_percent, discount_amount, total, net_rate, active
FROM transaction_lines WHERE parent_id=$1 AND active ORDER BY id ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DetailLine
	for rows.Next() {
		var l DetailLine
		if err := rows.Scan(&l.ID, &l.ParentID, &l.ItemID, &l.UnitID, &l.Qty, &l.Rate,
			&l.Taxes[0].Percent, &l.Taxes[0].Amount, &l.Taxes[1].Percent, &l.Taxes[1].Amount, &l.Taxes[2].Percent, &l.Taxes[2].Amount,
			&l.DiscountPercent, &l.DiscountAmount, &l.Total, &l.NetRate, &l.Active); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *lineRepo) DeactivateActive(ctx context.Context, parentID int64) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE transaction_lines SET active=FALSE WHERE parent_id=$1 AND active`, parentID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *lineRepo) Insert(ctx context.Context, l DetailLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO transaction_lines (parent_id, item_id, unit_id, qty, rate,
tax1_percent, tax1_amount, tax2_percent, tax2_amount, tax3_percent, tax3_amount,
discount_percent, discount_amount, total, net_rate, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		l.ParentID, l.ItemID, l.UnitID, l.Qty, l.Rate,
		l.Taxes[0].Percent, l.Taxes[0].Amount, l.Taxes[1].Percent, l.Taxes[1].Amount, l.Taxes[2].Percent, l.Taxes[2].Amount,
		l.DiscountPercent, l.DiscountAmount, l.Total, l.NetRate, l.Active).Scan(&id)
	return id, err
}
