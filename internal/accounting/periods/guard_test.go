package periods

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubReader struct {
	periods map[int64]Period
	err     error
	calls   int
}

func (r *stubReader) Get(ctx context.Context, id int64) (Period, error) {
	r.calls++
	if r.err != nil {
		return Period{}, r.err
	}
	p, ok := r.periods[id]
	if !ok {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func TestGuardCheck(t *testing.T) {
	reader := &stubReader{periods: map[int64]Period{
		1: {ID: 1, Active: true},
		2: {ID: 2, Active: true, Locked: true},
		3: {ID: 3, Active: false},
		4: {ID: 4, Active: false, Locked: true},
	}}
	guard := NewGuard(reader)
	ctx := context.Background()

	require.NoError(t, guard.Check(ctx, 1))

	cases := map[int64]LockReason{2: ReasonLocked, 3: ReasonInactive, 4: ReasonLocked, 9: ReasonMissing, 0: ReasonMissing}
	for id, reason := range cases {
		err := guard.Check(ctx, id)
		require.ErrorIs(t, err, ErrPeriodLocked)
		var locked *LockedError
		require.True(t, errors.As(err, &locked))
		require.Equal(t, reason, locked.Reason)
		require.Equal(t, id, locked.PeriodID)
	}
}

func TestGuardPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	guard := NewGuard(&stubReader{err: boom})
	err := guard.Check(context.Background(), 1)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrPeriodLocked)
}

func TestAcceptsWrites(t *testing.T) {
	require.True(t, Period{Active: true}.AcceptsWrites())
	require.False(t, Period{Active: true, Locked: true}.AcceptsWrites())
	require.False(t, Period{}.AcceptsWrites())
}
