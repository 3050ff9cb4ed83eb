package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/ledgersync/internal/jobs"
	"github.com/odyssey-erp/ledgersync/internal/reconcile"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

type fakeVerifier struct {
	mu       sync.Mutex
	ids      map[shared.Kind][]int64
	broken   map[int64]bool
	failing  map[int64]bool
	since    []time.Time
	verified int
}

func (f *fakeVerifier) RecentIDs(_ context.Context, kind shared.Kind, since time.Time, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	ids := f.ids[kind]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeVerifier) Verify(_ context.Context, kind shared.Kind, id int64) (reconcile.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified++
	if f.failing[id] {
		return reconcile.Report{}, errors.New("db down")
	}
	report := reconcile.Report{Kind: kind, ID: id, Active: true, Consistent: true}
	if f.broken[id] {
		report.Consistent = false
		report.Issues = []string{"active posting missing"}
	}
	return report, nil
}

func TestVerifyJobRun(t *testing.T) {
	verifier := &fakeVerifier{
		ids: map[shared.Kind][]int64{
			shared.KindPurchase: {1, 2, 3},
			shared.KindSale:     {4, 5},
		},
		broken:  map[int64]bool{2: true, 5: true},
		failing: map[int64]bool{3: true},
	}
	job := NewVerifyJob(verifier, time.Hour, 3, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	summary, err := job.Run(context.Background(), []shared.Kind{shared.KindPurchase, shared.KindSale}, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Checked)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Inconsistent, 2)
	ids := []int64{summary.Inconsistent[0].ID, summary.Inconsistent[1].ID}
	assert.ElementsMatch(t, []int64{2, 5}, ids)
}

func TestVerifyJobLogsDurationFromClock(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	verifier := &fakeVerifier{ids: map[shared.Kind][]int64{shared.KindPurchase: {1}}}
	job := NewVerifyJob(verifier, time.Hour, 1, logger, nil)
	tick := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	job.clock = func() time.Time {
		now := tick
		tick = tick.Add(90 * time.Second)
		return now
	}

	_, err := job.Run(context.Background(), []shared.Kind{shared.KindPurchase}, tick, 10)
	require.NoError(t, err)

	var completed map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		if entry["msg"] == "completed verify sweep" {
			completed = entry
		}
	}
	require.NotNil(t, completed)
	assert.EqualValues(t, (90 * time.Second).Nanoseconds(), completed["duration"])
}

func TestVerifyJobHandleAppliesPayload(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := &fakeVerifier{ids: map[shared.Kind][]int64{shared.KindSalesReturn: {9}}}
	job := NewVerifyJob(verifier, 24*time.Hour, 2, nil, nil)
	job.clock = func() time.Time { return now }

	task, err := NewVerifyTask(VerifyPayload{Kinds: []string{"sales-return"}, LookbackHours: 2})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, verifier.since, 1)
	assert.Equal(t, now.Add(-2*time.Hour), verifier.since[0])
	assert.Equal(t, 1, verifier.verified)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReconcileVerify, nil)))
	assert.Len(t, verifier.since, 1+len(shared.Kinds()))
	assert.Equal(t, now.Add(-24*time.Hour), verifier.since[1])
}

func TestVerifyJobRejectsBadPayload(t *testing.T) {
	job := NewVerifyJob(&fakeVerifier{}, time.Hour, 1, nil, nil)

	body, _ := json.Marshal(VerifyPayload{Kinds: []string{"barter"}})
	err := job.Handle(context.Background(), asynq.NewTask(TaskReconcileVerify, body))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskReconcileVerify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	var nilJob *VerifyJob
	assert.Error(t, nilJob.Handle(context.Background(), asynq.NewTask(TaskReconcileVerify, nil)))
}
