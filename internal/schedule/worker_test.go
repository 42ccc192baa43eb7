package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/lnsync/internal/period"
	"github.com/kalambet/lnsync/internal/rollup"
)

type mockRunner struct {
	mu      sync.Mutex
	anchors []time.Time
	runFn   func(call int) error
}

func (m *mockRunner) Run(ctx context.Context, anchor time.Time) (rollup.Summary, error) {
	m.mu.Lock()
	m.anchors = append(m.anchors, anchor)
	call := len(m.anchors)
	m.mu.Unlock()
	if m.runFn != nil {
		if err := m.runFn(call); err != nil {
			return rollup.Summary{}, err
		}
	}
	return rollup.Summary{Anchor: period.Format(anchor)}, nil
}

func (m *mockRunner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.anchors)
}

// fakeClock records requested sleeps instead of waiting.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

func newTestWorker(r Runner, now time.Time) (*Worker, *fakeClock) {
	clock := &fakeClock{now: now}
	w := NewWorker(r, time.Hour, 3, 30*time.Second)
	w.now = func() time.Time { return clock.now }
	w.sleep = clock.sleep
	w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return w, clock
}

func TestRunOnce_Window(t *testing.T) {
	tests := []struct {
		day  time.Time
		runs bool
	}{
		{time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC), false},  // Tuesday
		{time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC), false},  // Thursday
		{time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC), true},  // Friday
		{time.Date(2025, 1, 12, 9, 0, 0, 0, time.UTC), true},  // Sunday
		{time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC), true}, // Monday
	}
	for _, tt := range tests {
		t.Run(tt.day.Weekday().String(), func(t *testing.T) {
			r := &mockRunner{}
			w, _ := newTestWorker(r, tt.day)
			ran, err := w.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if ran != tt.runs || (r.calls() > 0) != tt.runs {
				t.Errorf("ran = %v, calls = %d, want runs = %v", ran, r.calls(), tt.runs)
			}
			if tt.runs && period.Format(r.anchors[0]) != "2025-01-10" {
				t.Errorf("anchor = %s, want 2025-01-10", period.Format(r.anchors[0]))
			}
		})
	}
}

func TestRunOnce_LinearBackoff(t *testing.T) {
	r := &mockRunner{runFn: func(call int) error {
		if call < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}}
	w, clock := newTestWorker(r, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))

	ran, err := w.RunOnce(context.Background())
	if !ran || err != nil {
		t.Fatalf("RunOnce = %v, %v", ran, err)
	}
	want := []time.Duration{30 * time.Second, 60 * time.Second}
	if !reflect.DeepEqual(clock.sleeps, want) {
		t.Errorf("sleeps = %v, want %v", clock.sleeps, want)
	}
}

func TestRunOnce_GivesUpAfterMaxAttempts(t *testing.T) {
	failure := errors.New("store unavailable")
	r := &mockRunner{runFn: func(int) error { return failure }}
	w, clock := newTestWorker(r, time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC))

	_, err := w.RunOnce(context.Background())
	if !errors.Is(err, failure) {
		t.Errorf("err = %v, want wrapped failure", err)
	}
	if r.calls() != 3 || len(clock.sleeps) != 2 {
		t.Errorf("calls = %d, sleeps = %v", r.calls(), clock.sleeps)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := &mockRunner{}
	w, _ := newTestWorker(r, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	w.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if r.calls() != 1 {
		t.Errorf("calls = %d, want 1", r.calls())
	}
}
