package reconcile

import (
	"context"
	"time"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
	"github.com/odyssey-erp/ledgersync/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgersync/internal/accounting/periods"
	"github.com/odyssey-erp/ledgersync/internal/inventory"
	"github.com/odyssey-erp/ledgersync/internal/masterdata/products"
	"github.com/odyssey-erp/ledgersync/internal/notify"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// Store opens the unit of work every operation runs in.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes the repositories bound to one database transaction.
type Tx interface {
	Periods() periods.Reader
	Headers() HeaderRepository
	Lines() LineRepository
	Movements() inventory.MovementStore
	Postings() journals.PostingStore
	Products() products.MasterStore
	Mappings() mappings.Repository
}

// HeaderRepository persists transaction headers.
type HeaderRepository interface {
	Insert(ctx context.Context, header Header) (int64, error)
	Update(ctx context.Context, header Header) error
	// GetForUpdate loads and row-locks the header; missing rows yield a MissingReferenceError.
	GetForUpdate(ctx context.Context, kind shared.Kind, id int64) (Header, error)
	Get(ctx context.Context, kind shared.Kind, id int64) (Header, error)
	SetActive(ctx context.Context, kind shared.Kind, id int64, active bool, actorID int64, at time.Time) error
	ListIDs(ctx context.Context, kind shared.Kind, modifiedSince time.Time, limit int) ([]int64, error)
}

// LineRepository persists the versioned detail-line log.
type LineRepository interface {
	ListActive(ctx context.Context, parentID int64) ([]DetailLine, error)
	DeactivateActive(ctx context.Context, parentID int64) (int64, error)
	Insert(ctx context.Context, line DetailLine) (int64, error)
}

// Locker serialises writers per transaction.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Notifier delivers lifecycle notifications on a best-effort basis.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
