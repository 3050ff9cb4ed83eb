package journals

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/shared"
)

// Posting is a balanced voucher recorded for one business transaction.
type Posting struct {
	ID              int64
	VoucherID       int64
	ReferenceID     int64
	ReferenceNumber string
	Date            time.Time
	TotalDebit      decimal.Decimal
	TotalCredit     decimal.Decimal
	DebitCount      int
	CreditCount     int
	Active          bool
	CreatedBy       int64
	CreatedAt       time.Time
	ModifiedBy      int64
	ModifiedAt      time.Time
	Platform        string
	Lines           []PostingLine
}

// PostingLine stores a debit or a credit against one ledger.
type PostingLine struct {
	ID        int64
	PostingID int64
	LedgerID  int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Remarks   string
}

// Locator identifies a posting.
type Locator struct {
	VoucherID       int64
	ReferenceID     int64
	ReferenceNumber string
}

// Locator returns the posting's natural key.
func (p Posting) Locator() Locator {
	return Locator{VoucherID: p.VoucherID, ReferenceID: p.ReferenceID, ReferenceNumber: p.ReferenceNumber}
}

// Validate checks line shape and the balance invariant, then fills totals and counts.
func (p *Posting) Validate() error {
	if len(p.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	debitCount, creditCount := 0, 0
	for idx, line := range p.Lines {
		if line.LedgerID == 0 {
			return fmt.Errorf("%w: line %d missing ledger", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d must carry exactly one of debit or credit", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsPositive() {
			debit = debit.Add(line.Debit)
			debitCount++
		} else {
			credit = credit.Add(line.Credit)
			creditCount++
		}
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	p.TotalDebit = debit
	p.TotalCredit = credit
	p.DebitCount = debitCount
	p.CreditCount = creditCount
	return nil
}
