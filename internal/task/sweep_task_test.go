package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	n     int
	err   error
}

func (s *countingSweeper) Sweep(context.Context) (int, error) {
	s.calls.Add(1)
	return s.n, s.err
}

func TestSweepTask_RunOnce(t *testing.T) {
	task := NewSweepTask(&countingSweeper{n: 3}, "", nil)
	require.Equal(t, 3, task.RunOnce(context.Background()))
	require.Equal(t, DefaultSweepSchedule, task.schedule)

	failing := NewSweepTask(&countingSweeper{n: 3, err: errors.New("storage unavailable")}, "", nil)
	require.Zero(t, failing.RunOnce(context.Background()))
}

func TestSweepTask_RunsOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	task := NewSweepTask(sweeper, "* * * * * *", nil)
	require.NoError(t, task.Start())

	require.Eventually(t, func() bool {
		return sweeper.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task.Stop(ctx)
}

func TestSweepTask_RejectsBadSchedule(t *testing.T) {
	task := NewSweepTask(&countingSweeper{}, "every hour", nil)
	require.ErrorContains(t, task.Start(), "every hour")
}
