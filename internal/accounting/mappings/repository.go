package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledgersync/internal/platform/db"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// Repository resolves ledger mappings.
type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("mappings: module and key required")
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, key, ledger_id, created_at, updated_at FROM ledger_mappings WHERE module=$1 AND key=$2`, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.LedgerID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.MissingReference("ledger mapping", normalized+"/"+key)
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Accounts are the ledgers a posting for one kind is written against.
type Accounts struct {
	Nominal int64
	Tax     int64
}

// Resolve loads the nominal and tax ledgers for kind.
func Resolve(ctx context.Context, repo Repository, kind shared.Kind) (Accounts, error) {
	nominal, err := repo.Get(ctx, string(kind), KeyNominal)
	if err != nil {
		return Accounts{}, err
	}
	tax, err := repo.Get(ctx, string(kind), KeyTax)
	if err != nil {
		return Accounts{}, err
	}
	return Accounts{Nominal: nominal.LedgerID, Tax: tax.LedgerID}, nil
}
