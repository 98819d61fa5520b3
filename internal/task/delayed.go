package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Delayed runs a single function after a delay.
// Only one run can be pending at a time; Schedule while pending is ignored.
type Delayed struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDelayed creates an idle Delayed task
func NewDelayed(name string, logger *slog.Logger) *Delayed {
	return &Delayed{
		logger: logger.With(slog.String("task", name)),
	}
}

// Schedule arranges for fn to run after delay.
// Returns false without scheduling if a run is already pending.
func (d *Delayed) Schedule(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	d.pending = true
	d.cancel = cancel
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer d.clear()
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("delayed task panicked", slog.Any("panic", rec))
			}
		}()
		fn(ctx)
	}()

	return true
}

// Pending reports whether a run is scheduled or in progress
func (d *Delayed) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops a pending run and waits for any in-progress run to return.
// Safe to call when nothing is pending.
func (d *Delayed) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Delayed) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	d.cancel = nil
}
