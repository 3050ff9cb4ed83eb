package periods

import (
	"context"
	"errors"
	"fmt"
)

// ErrPeriodLocked is matched by every LockedError.
var ErrPeriodLocked = errors.New("periods: period does not accept writes")

// LockReason explains why a period rejected a write.
type LockReason string

const (
	ReasonMissing  LockReason = "missing"
	ReasonLocked   LockReason = "locked"
	ReasonInactive LockReason = "inactive"
)

// LockedError is returned when a transaction targets a missing, locked or inactive period.
type LockedError struct {
	PeriodID int64
	Reason   LockReason
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("periods: period %d is %s", e.PeriodID, e.Reason)
}

// Is lets errors.Is(err, ErrPeriodLocked) match.
func (e *LockedError) Is(target error) bool {
	return target == ErrPeriodLocked
}

// Guard checks that a financial period accepts writes. It never writes.
type Guard struct {
	periods Reader
}

// NewGuard constructs a Guard.
func NewGuard(periods Reader) *Guard {
	return &Guard{periods: periods}
}

// Check fails with *LockedError when the period cannot take writes.
func (g *Guard) Check(ctx context.Context, periodID int64) error {
	if periodID == 0 {
		return &LockedError{PeriodID: periodID, Reason: ReasonMissing}
	}
	period, err := g.periods.Get(ctx, periodID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &LockedError{PeriodID: periodID, Reason: ReasonMissing}
		}
		return err
	}
	if period.AcceptsWrites() {
		return nil
	}
	reason := ReasonInactive
	if period.Locked {
		reason = ReasonLocked
	}
	return &LockedError{PeriodID: periodID, Reason: reason}
}
