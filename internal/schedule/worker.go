// Package schedule runs the period rollup on a timer.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/lnsync/internal/period"
	"github.com/kalambet/lnsync/internal/rollup"
)

// Runner aggregates one period.
type Runner interface {
	Run(ctx context.Context, anchor time.Time) (rollup.Summary, error)
}

// Worker runs the rollup every interval while inside the Friday to Monday
// window, retrying a failed run with linear backoff.
type Worker struct {
	runner      Runner
	interval    time.Duration
	maxAttempts int
	backoffUnit time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// Non-positive values default to a 1h interval, 3 attempts and a 30s
// backoff unit.
func NewWorker(runner Runner, interval time.Duration, maxAttempts int, backoffUnit time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffUnit <= 0 {
		backoffUnit = 30 * time.Second
	}
	return &Worker{
		runner:      runner,
		interval:    interval,
		maxAttempts: maxAttempts,
		backoffUnit: backoffUnit,
		now:         time.Now,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("scheduled rollup failed", "error", err)
		}

		if err := w.sleep(ctx, w.interval); err != nil {
			return
		}
	}
}

// RunOnce performs one scheduled tick. It returns false without running when
// the current day is outside the rollup window.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	now := w.now()
	if !period.InRollupWindow(now) {
		w.logger.Debug("outside rollup window", "weekday", now.Weekday())
		return false, nil
	}
	anchor := period.WeekEnding(now)

	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		var sum rollup.Summary
		sum, err = w.runner.Run(ctx, anchor)
		if err == nil {
			w.logger.Info("scheduled rollup complete", "anchor", sum.Anchor,
				"records", sum.Records, "attempt", attempt)
			return true, nil
		}
		if errors.Is(err, context.Canceled) || attempt == w.maxAttempts {
			break
		}

		wait := time.Duration(attempt) * w.backoffUnit
		w.logger.Warn("rollup attempt failed, retrying", "anchor", period.Format(anchor),
			"attempt", attempt, "retry_in", wait, "error", err)
		if serr := w.sleep(ctx, wait); serr != nil {
			return true, serr
		}
	}
	return true, fmt.Errorf("rollup for %s: %w", period.Format(anchor), err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
