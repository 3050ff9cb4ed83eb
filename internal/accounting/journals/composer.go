package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/shared"
)

// Re-exported for callers that only import journals.
var (
	ErrUnbalanced      = shared.ErrUnbalanced
	ErrNegativeTotal   = shared.ErrNegativeTotal
	ErrPostingNotFound = shared.ErrPostingNotFound
	ErrTooFewLines     = shared.ErrTooFewLines
	ErrInvalidLine     = shared.ErrInvalidLine
)

// Composer builds and retires postings for business transactions.
type Composer struct {
	store PostingStore
	now   func() time.Time
}

// NewComposer constructs a Composer. A nil clock defaults to time.Now.
func NewComposer(store PostingStore, now func() time.Time) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{store: store, now: now}
}

// Compose writes a balanced posting for the overview. It reports false when the
// gross total is zero and nothing was written.
func (c *Composer) Compose(ctx context.Context, input ComposeInput) (Posting, bool, error) {
	gross := input.Overview.Gross.Round(2)
	extraTax := input.Overview.ExtraTax.Round(2)
	if gross.IsZero() {
		return Posting{}, false, nil
	}
	if gross.IsNegative() {
		return Posting{}, false, ErrNegativeTotal
	}
	if extraTax.IsNegative() || extraTax.GreaterThan(gross) {
		return Posting{}, false, fmt.Errorf("%w: extra tax %s out of range", shared.ErrInvalidLine, extraTax.StringFixed(2))
	}

	party := PostingLine{LedgerID: input.PartyLedgerID, Remarks: remark(input.Label, "party")}
	nominal := PostingLine{LedgerID: input.Accounts.Nominal, Remarks: remark(input.Label, "nominal")}
	tax := PostingLine{LedgerID: input.Accounts.Tax, Remarks: remark(input.Label, "tax")}
	net := gross.Sub(extraTax)
	if input.PartyCredit {
		party.Credit = gross
		nominal.Debit = net
		tax.Debit = extraTax
	} else {
		party.Debit = gross
		nominal.Credit = net
		tax.Credit = extraTax
	}

	lines := []PostingLine{party}
	if !net.IsZero() {
		lines = append(lines, nominal)
	}
	if !extraTax.IsZero() {
		lines = append(lines, tax)
	}

	now := c.now().UTC()
	posting := Posting{
		VoucherID:       input.VoucherID,
		ReferenceID:     input.ReferenceID,
		ReferenceNumber: input.ReferenceNumber,
		Date:            input.Date,
		Active:          true,
		CreatedBy:       input.ActorID,
		CreatedAt:       now,
		ModifiedBy:      input.ActorID,
		ModifiedAt:      now,
		Platform:        input.Platform,
		Lines:           lines,
	}
	if err := posting.Validate(); err != nil {
		return Posting{}, false, err
	}
	id, err := c.store.Insert(ctx, posting)
	if err != nil {
		return Posting{}, false, err
	}
	posting.ID = id
	return posting, true, nil
}

// Reverse deactivates the active posting at the locator. Missing postings are
// not an error; the boolean reports whether one was retired.
func (c *Composer) Reverse(ctx context.Context, input ReverseInput) (Posting, bool, error) {
	posting, err := c.store.FindActive(ctx, input.Locator)
	if err != nil {
		if errors.Is(err, ErrPostingNotFound) {
			return Posting{}, false, nil
		}
		return Posting{}, false, err
	}
	at := c.now().UTC()
	if err := c.store.Deactivate(ctx, posting.ID, input.ActorID, at); err != nil {
		return Posting{}, false, err
	}
	posting.Active = false
	posting.ModifiedBy = input.ActorID
	posting.ModifiedAt = at
	return posting, true, nil
}

func remark(label, role string) string {
	if label == "" {
		return role
	}
	return label + " " + role
}

// Sum returns total debit and credit across lines.
func Sum(lines []PostingLine) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
