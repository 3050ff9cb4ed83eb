package shared

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	sql  string
	args []any
}

func (r *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (r *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }

func TestAuditLoggerRecord(t *testing.T) {
	rec := &execRecorder{}
	at := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	err := NewAuditLogger(rec).Record(context.Background(), AuditLog{
		ActorID:  9,
		Action:   "PURCHASE_CREATE",
		Entity:   "transaction",
		EntityID: "12",
		Meta:     map[string]any{"gross": "1090.00"},
		At:       at,
	})
	require.NoError(t, err)
	assert.Contains(t, rec.sql, "INSERT INTO audit_logs")
	require.Len(t, rec.args, 6)
	assert.Equal(t, int64(9), rec.args[0])
	assert.Equal(t, "PURCHASE_CREATE", rec.args[1])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(rec.args[4].([]byte), &meta))
	assert.Equal(t, "1090.00", meta["gross"])
	assert.Equal(t, at, rec.args[5])
}

func TestAuditLoggerRejectsIncompleteEntries(t *testing.T) {
	rec := &execRecorder{}
	err := NewAuditLogger(rec).Record(context.Background(), AuditLog{Action: "SALE_DELETE"})
	assert.Error(t, err)
	assert.Empty(t, rec.sql)

	var nilLogger *AuditLogger
	assert.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}
