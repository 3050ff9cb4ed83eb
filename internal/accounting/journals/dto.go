package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/mappings"
)

// Overview carries the computed totals of a transaction.
type Overview struct {
	Gross        decimal.Decimal
	TaxExclusive decimal.Decimal
	ExtraTax     decimal.Decimal
}

// ComposeInput groups everything needed to build a posting.
type ComposeInput struct {
	Locator
	Date     time.Time
	Overview Overview
	// PartyLedgerID is the counterparty's ledger.
	PartyLedgerID int64
	// PartyCredit puts the gross total on the credit side of the party ledger.
	PartyCredit bool
	Accounts    mappings.Accounts
	Label       string
	ActorID     int64
	Platform    string
}

// ReverseInput identifies a posting to retire.
type ReverseInput struct {
	Locator
	ActorID int64
}
