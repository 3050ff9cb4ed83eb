package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/ledgersync/internal/jobs"
	"github.com/odyssey-erp/ledgersync/internal/reconcile"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

const (
	// TaskReconcileVerify sweeps recently modified transactions for drift.
	TaskReconcileVerify = "reconcile:verify"

	defaultVerifyLimit = 500
)

// VerifyPayload narrows a sweep. Empty fields fall back to job defaults.
type VerifyPayload struct {
	Kinds         []string `json:"kinds,omitempty"`
	LookbackHours int      `json:"lookback_hours,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// NewVerifyTask builds a verify task on the default queue.
func NewVerifyTask(payload VerifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileVerify, body, asynq.Queue(QueueDefault), asynq.MaxRetry(2)), nil
}

// Verifier is implemented by *reconcile.Service.
type Verifier interface {
	RecentIDs(ctx context.Context, kind shared.Kind, since time.Time, limit int) ([]int64, error)
	Verify(ctx context.Context, kind shared.Kind, id int64) (reconcile.Report, error)
}

// VerifySummary reports one sweep.
type VerifySummary struct {
	Checked      int
	Failed       int
	Inconsistent []reconcile.Report
}

// VerifyJob checks that stock movements and postings still mirror active lines.
type VerifyJob struct {
	Verifier Verifier
	Lookback time.Duration
	Parallel int
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewVerifyJob initialises the verify handler.
func NewVerifyJob(verifier Verifier, lookback time.Duration, parallel int, logger *slog.Logger, metrics *jobmetrics.Metrics) *VerifyJob {
	return &VerifyJob{
		Verifier: verifier,
		Lookback: lookback,
		Parallel: parallel,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes a sweep from a task payload.
func (j *VerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("verify: handler not configured")
	}
	var payload VerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode verify payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	kinds, err := parseKinds(payload.Kinds)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	lookback := j.Lookback
	if payload.LookbackHours > 0 {
		lookback = time.Duration(payload.LookbackHours) * time.Hour
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultVerifyLimit
	}
	_, err = j.Run(ctx, kinds, j.now().Add(-lookback), limit)
	return err
}

// Run verifies every transaction of kinds modified since the cut-off.
func (j *VerifyJob) Run(ctx context.Context, kinds []shared.Kind, since time.Time, limit int) (summary VerifySummary, err error) {
	tracker := j.Metrics.Track(TaskReconcileVerify)
	defer func() { err = tracker.End(err) }()

	start := j.now()
	logger := j.logger().With(slog.Time("since", since))
	logger.Info("starting verify sweep", slog.Int("kinds", len(kinds)))

	var mu sync.Mutex
	for _, kind := range kinds {
		ids, err := j.Verifier.RecentIDs(ctx, kind, since, limit)
		if err != nil {
			return summary, fmt.Errorf("list %s: %w", kind, err)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.parallel())
		inconsistent := 0
		for _, id := range ids {
			g.Go(func() error {
				report, err := j.Verifier.Verify(gctx, kind, id)
				mu.Lock()
				defer mu.Unlock()
				summary.Checked++
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					summary.Failed++
					logger.Error("verify transaction", slog.String("kind", string(kind)), slog.Int64("id", id), slog.Any("error", err))
					return nil
				}
				if !report.Consistent {
					inconsistent++
					summary.Inconsistent = append(summary.Inconsistent, report)
					logger.Warn("transaction out of sync",
						slog.String("kind", string(kind)),
						slog.Int64("id", id),
						slog.String("number", report.Number),
						slog.Any("issues", report.Issues))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return summary, err
		}
		j.Metrics.AddInconsistencies(string(kind), inconsistent)
	}

	logger.Info("completed verify sweep",
		slog.Int("checked", summary.Checked),
		slog.Int("inconsistent", len(summary.Inconsistent)),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", j.now().Sub(start)))
	return summary, nil
}

func parseKinds(raw []string) ([]shared.Kind, error) {
	if len(raw) == 0 {
		return shared.Kinds(), nil
	}
	kinds := make([]shared.Kind, 0, len(raw))
	for _, r := range raw {
		k, err := shared.ParseKind(r)
		if err != nil {
			return nil, fmt.Errorf("verify kind %q: %w", r, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (j *VerifyJob) parallel() int {
	if j.Parallel > 0 {
		return j.Parallel
	}
	return 1
}

func (j *VerifyJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *VerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
