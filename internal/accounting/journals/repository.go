package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledgersync/internal/accounting/shared"
	"github.com/odyssey-erp/ledgersync/internal/platform/db"
)

// PostingStore persists postings.
type PostingStore interface {
	FindActive(ctx context.Context, loc Locator) (Posting, error)
	Insert(ctx context.Context, posting Posting) (int64, error)
	Deactivate(ctx context.Context, id int64, actorID int64, at time.Time) error
}

// PGStore implements PostingStore over ledger_postings and ledger_posting_lines.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

// FindActive loads the active posting and its lines, or ErrPostingNotFound.
func (s *PGStore) FindActive(ctx context.Context, loc Locator) (Posting, error) {
	var p Posting
	err := s.db.QueryRow(ctx, `SELECT id, voucher_id, reference_id, reference_number, posting_date, total_debit, total_credit,
debit_count, credit_count, active, created_by, created_at, modified_by, modified_at, platform
FROM ledger_postings WHERE voucher_id=$1 AND reference_id=$2 AND reference_number=$3 AND active
FOR UPDATE`, loc.VoucherID, loc.ReferenceID, loc.ReferenceNumber).
		Scan(&p.ID, &p.VoucherID, &p.ReferenceID, &p.ReferenceNumber, &p.Date, &p.TotalDebit, &p.TotalCredit,
			&p.DebitCount, &p.CreditCount, &p.Active, &p.CreatedBy, &p.CreatedAt, &p.ModifiedBy, &p.ModifiedAt, &p.Platform)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, shared.ErrPostingNotFound
		}
		return Posting{}, fmt.Errorf("journals: find posting: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT id, posting_id, ledger_id, debit, credit, remarks
FROM ledger_posting_lines WHERE posting_id=$1 ORDER BY id ASC`, p.ID)
	if err != nil {
		return Posting{}, fmt.Errorf("journals: posting lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line PostingLine
		if err := rows.Scan(&line.ID, &line.PostingID, &line.LedgerID, &line.Debit, &line.Credit, &line.Remarks); err != nil {
			return Posting{}, err
		}
		p.Lines = append(p.Lines, line)
	}
	return p, rows.Err()
}

// Insert writes the header and its lines.
func (s *PGStore) Insert(ctx context.Context, p Posting) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO ledger_postings (voucher_id, reference_id, reference_number, posting_date, total_debit, total_credit,
debit_count, credit_count, active, created_by, created_at, modified_by, modified_at, platform)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,$9,$10,$9,$10,$11) RETURNING id`,
		p.VoucherID, p.ReferenceID, p.ReferenceNumber, p.Date, p.TotalDebit, p.TotalCredit,
		p.DebitCount, p.CreditCount, p.CreatedBy, p.CreatedAt, p.Platform).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("journals: insert posting: %w", err)
	}
	for _, line := range p.Lines {
		if _, err := s.db.Exec(ctx, `INSERT INTO ledger_posting_lines (posting_id, ledger_id, debit, credit, remarks)
VALUES ($1,$2,$3,$4,$5)`, id, line.LedgerID, line.Debit, line.Credit, line.Remarks); err != nil {
			return 0, fmt.Errorf("journals: insert posting line: %w", err)
		}
	}
	return id, nil
}

// Deactivate flips the active flag and stamps the mutator.
func (s *PGStore) Deactivate(ctx context.Context, id int64, actorID int64, at time.Time) error {
	cmd, err := s.db.Exec(ctx, `UPDATE ledger_postings SET active=FALSE, modified_by=$2, modified_at=$3 WHERE id=$1`, id, actorID, at)
	if err != nil {
		return fmt.Errorf("journals: deactivate posting: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPostingNotFound
	}
	return nil
}
