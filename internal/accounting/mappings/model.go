package mappings

import "time"

// Mapping keys resolved per transaction kind.
const (
	KeyNominal = "nominal"
	KeyTax     = "tax"
)

// AccountMapping links a transaction kind and role to a ledger.
type AccountMapping struct {
	Module    string
	Key       string
	LedgerID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
