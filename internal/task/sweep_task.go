package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep at the top of every hour.
const DefaultSweepSchedule = "0 0 * * * *"

// Sweeper marks listings past their expiry as expired and reports how many changed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepTask periodically persists expiry transitions so the stored status catches
// up with the clock even when nobody is browsing listings.
type SweepTask struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweepTask creates a task running sweeper on schedule, a cron expression with a seconds field.
func NewSweepTask(sweeper Sweeper, schedule string, logger *slog.Logger) *SweepTask {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &SweepTask{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
	}
}

// Start registers the job and starts the scheduler.
func (t *SweepTask) Start() error {
	if _, err := t.cron.AddFunc(t.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", t.schedule, err)
	}

	t.cron.Start()
	t.logger.Info("sweep task started", "schedule", t.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx to end.
func (t *SweepTask) Stop(ctx context.Context) {
	select {
	case <-t.cron.Stop().Done():
	case <-ctx.Done():
	}
	t.logger.Info("sweep task stopped")
}

// RunOnce performs one sweep and logs its outcome.
func (t *SweepTask) RunOnce(ctx context.Context) int {
	start := time.Now()
	n, err := t.sweeper.Sweep(ctx)
	if err != nil {
		t.logger.Error("sweep failed", "error", err, "duration", time.Since(start))
		return 0
	}
	t.logger.Debug("sweep finished", "expired", n, "duration", time.Since(start))
	return n
}
