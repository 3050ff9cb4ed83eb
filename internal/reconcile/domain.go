package reconcile

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
	"github.com/odyssey-erp/ledgersync/internal/inventory"
	"github.com/odyssey-erp/ledgersync/internal/masterdata/products"
	"github.com/odyssey-erp/ledgersync/internal/notify"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// Header is the persisted head of a business transaction.
type Header struct {
	ID             int64
	Kind           shared.Kind
	CounterpartyID int64
	PeriodID       int64
	Number         string
	Date           time.Time
	Active         bool
	CreatedBy      int64
	CreatedAt      time.Time
	ModifiedBy     int64
	ModifiedAt     time.Time
	Platform       string
}

// TaxComponent is one of the three tax slots of a line.
type TaxComponent struct {
	Percent decimal.Decimal
	Amount  decimal.Decimal
}

// TaxSlots is the fixed number of tax components per line.
const TaxSlots = 3

// DetailLine is one cart line. Replaced lines are deactivated, never edited.
type DetailLine struct {
	ID              int64
	ParentID        int64
	ItemID          int64
	UnitID          int64
	Qty             decimal.Decimal
	Rate            decimal.Decimal
	Taxes           [TaxSlots]TaxComponent
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	NetRate         decimal.Decimal
	Active          bool
}

// Mode selects the guard targets, state precondition and event of a reconcile pass.
type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeUpdate
	ModeRecover
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	case ModeRecover:
		return "recover"
	}
	return "unknown"
}

// Event maps the mode to its lifecycle notification.
func (m Mode) Event() notify.Event {
	switch m {
	case ModeUpdate:
		return notify.EventUpdated
	case ModeRecover:
		return notify.EventRecovered
	}
	return notify.EventCreated
}

// SaveInput carries a header and its full cart.
type SaveInput struct {
	Header   Header
	Lines    []DetailLine
	ActorID  int64
	Platform string
}

// DeleteInput identifies a transaction to soft-delete.
type DeleteInput struct {
	Kind     shared.Kind
	ID       int64
	ActorID  int64
	Platform string
}

// RecoverInput identifies a soft-deleted transaction to restore.
type RecoverInput struct {
	Kind     shared.Kind
	ID       int64
	ActorID  int64
	Platform string
}

// Result describes the state written by one operation.
type Result struct {
	Header    Header
	Lines     []DetailLine
	Overview  journals.Overview
	Movements []inventory.Movement
	// Posting is nil when the gross total was zero or the transaction was deleted.
	Posting  *journals.Posting
	Reversed *journals.Posting
	RateSync products.SyncResult
}

// Report is the outcome of a consistency check.
type Report struct {
	Kind       shared.Kind `json:"kind"`
	ID         int64       `json:"id"`
	Number     string      `json:"number"`
	Active     bool        `json:"active"`
	Consistent bool        `json:"consistent"`
	Issues     []string    `json:"issues,omitempty"`
}

var (
	// ErrInvalidState occurs when an operation does not fit the header's active flag.
	ErrInvalidState = errors.New("reconcile: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("reconcile: invalid input")
)
