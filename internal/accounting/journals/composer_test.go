package journals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersync/internal/accounting/mappings"
)

type memoryStore struct {
	seq      int64
	postings map[int64]Posting
}

func newMemoryStore() *memoryStore {
	return &memoryStore{postings: make(map[int64]Posting)}
}

func (m *memoryStore) FindActive(_ context.Context, loc Locator) (Posting, error) {
	for _, p := range m.postings {
		if p.Active && p.Locator() == loc {
			return p, nil
		}
	}
	return Posting{}, ErrPostingNotFound
}

func (m *memoryStore) Insert(_ context.Context, p Posting) (int64, error) {
	m.seq++
	p.ID = m.seq
	m.postings[p.ID] = p
	return p.ID, nil
}

func (m *memoryStore) Deactivate(_ context.Context, id int64, actorID int64, at time.Time) error {
	p, ok := m.postings[id]
	if !ok {
		return ErrPostingNotFound
	}
	p.Active = false
	p.ModifiedBy = actorID
	p.ModifiedAt = at
	m.postings[id] = p
	return nil
}

func fixedClock() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }

func purchaseInput(gross, taxable, tax string) ComposeInput {
	return ComposeInput{
		Locator:       Locator{VoucherID: 1, ReferenceID: 42, ReferenceNumber: "PB-0042"},
		Date:          fixedClock(),
		PartyLedgerID: 500,
		PartyCredit:   true,
		Accounts:      mappings.Accounts{Nominal: 600, Tax: 700},
		Overview: Overview{
			Gross:        decimal.RequireFromString(gross),
			TaxExclusive: decimal.RequireFromString(taxable),
			ExtraTax:     decimal.RequireFromString(tax),
		},
		ActorID:  9,
		Platform: "api",
	}
}

func TestComposePurchaseBalances(t *testing.T) {
	store := newMemoryStore()
	composer := NewComposer(store, fixedClock)

	posting, written, err := composer.Compose(context.Background(), purchaseInput("1090", "1000", "90"))
	require.NoError(t, err)
	require.True(t, written)
	require.Len(t, posting.Lines, 3)

	require.Equal(t, int64(500), posting.Lines[0].LedgerID)
	require.True(t, posting.Lines[0].Credit.Equal(decimal.NewFromInt(1090)))
	require.Equal(t, int64(600), posting.Lines[1].LedgerID)
	require.True(t, posting.Lines[1].Debit.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, int64(700), posting.Lines[2].LedgerID)
	require.True(t, posting.Lines[2].Debit.Equal(decimal.NewFromInt(90)))

	require.True(t, posting.TotalDebit.Equal(posting.TotalCredit))
	require.True(t, posting.TotalDebit.Equal(decimal.NewFromInt(1090)))
	require.Equal(t, 2, posting.DebitCount)
	require.Equal(t, 1, posting.CreditCount)
	require.Len(t, store.postings, 1)
}

func TestComposeReturnFlipsSides(t *testing.T) {
	store := newMemoryStore()
	composer := NewComposer(store, fixedClock)
	input := purchaseInput("545", "500", "45")
	input.PartyCredit = false
	input.VoucherID = 2

	posting, written, err := composer.Compose(context.Background(), input)
	require.NoError(t, err)
	require.True(t, written)
	require.True(t, posting.Lines[0].Debit.Equal(decimal.NewFromInt(545)))
	require.True(t, posting.Lines[1].Credit.Equal(decimal.NewFromInt(500)))
	require.True(t, posting.Lines[2].Credit.Equal(decimal.NewFromInt(45)))
	debit, credit := Sum(posting.Lines)
	require.True(t, debit.Equal(credit))
}

func TestComposeOmitsZeroTaxLine(t *testing.T) {
	composer := NewComposer(newMemoryStore(), fixedClock)
	posting, written, err := composer.Compose(context.Background(), purchaseInput("250.50", "250.50", "0"))
	require.NoError(t, err)
	require.True(t, written)
	require.Len(t, posting.Lines, 2)
	for _, line := range posting.Lines {
		require.NotEqual(t, int64(700), line.LedgerID)
	}
}

func TestComposeZeroGrossIsNoop(t *testing.T) {
	store := newMemoryStore()
	composer := NewComposer(store, fixedClock)
	_, written, err := composer.Compose(context.Background(), purchaseInput("0", "0", "0"))
	require.NoError(t, err)
	require.False(t, written)
	require.Empty(t, store.postings)
}

func TestComposeRejectsNegativeGross(t *testing.T) {
	store := newMemoryStore()
	composer := NewComposer(store, fixedClock)
	_, _, err := composer.Compose(context.Background(), purchaseInput("-10", "-10", "0"))
	require.ErrorIs(t, err, ErrNegativeTotal)
	require.Empty(t, store.postings)
}

func TestComposeBalancesAwkwardFractions(t *testing.T) {
	composer := NewComposer(newMemoryStore(), fixedClock)
	posting, _, err := composer.Compose(context.Background(), purchaseInput("333.33", "305.80", "27.53"))
	require.NoError(t, err)
	debit, credit := Sum(posting.Lines)
	require.True(t, debit.Equal(credit), "debit %s credit %s", debit, credit)
}

func TestReverseDeactivatesActivePosting(t *testing.T) {
	store := newMemoryStore()
	composer := NewComposer(store, fixedClock)
	created, _, err := composer.Compose(context.Background(), purchaseInput("1090", "1000", "90"))
	require.NoError(t, err)

	reversed, ok, err := composer.Reverse(context.Background(), ReverseInput{Locator: created.Locator(), ActorID: 11})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, reversed.ID)
	require.False(t, store.postings[created.ID].Active)
	require.Equal(t, int64(11), store.postings[created.ID].ModifiedBy)

	_, ok, err = composer.Reverse(context.Background(), ReverseInput{Locator: created.Locator(), ActorID: 11})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPostingValidate(t *testing.T) {
	one := decimal.NewFromInt(1)
	cases := map[string]struct {
		lines []PostingLine
		want  error
	}{
		"too few":    {lines: []PostingLine{{LedgerID: 1, Debit: one}}, want: ErrTooFewLines},
		"unbalanced": {lines: []PostingLine{{LedgerID: 1, Debit: one}, {LedgerID: 2, Credit: decimal.NewFromInt(2)}}, want: ErrUnbalanced},
		"both sides": {lines: []PostingLine{{LedgerID: 1, Debit: one, Credit: one}, {LedgerID: 2, Credit: one}}, want: ErrInvalidLine},
		"no ledger":  {lines: []PostingLine{{Debit: one}, {LedgerID: 2, Credit: one}}, want: ErrInvalidLine},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := Posting{Lines: tc.lines}
			err := p.Validate()
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}
