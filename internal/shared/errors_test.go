package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingReference(t *testing.T) {
	err := fmt.Errorf("reconcile: resolve ledgers: %w", MissingReference("ledger mapping", "SALE/tax"))
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.EqualError(t, err, "reconcile: resolve ledgers: missing reference: ledger mapping SALE/tax")

	var typed *MissingReferenceError
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "ledger mapping", typed.Entity)
	assert.Equal(t, "SALE/tax", typed.Key)

	assert.NotErrorIs(t, errors.New("missing reference"), ErrMissingReference)
}
