package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recurring runs fn on a fixed interval until stopped.
// Start while running is a no-op. Stop is idempotent and safe before Start.
type Recurring struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecurring creates a stopped task
func NewRecurring(name string, interval time.Duration, fn func(ctx context.Context), logger *slog.Logger) *Recurring {
	return &Recurring{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With(slog.String("task", name)),
	}
}

// Start begins ticking. The first run happens one interval after Start.
// Returns false if the task was already running.
func (r *Recurring) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.loop(ctx, done)
	r.logger.Debug("recurring task started", slog.Duration("interval", r.interval))
	return true
}

// Stop cancels the task and waits for an in-progress run to finish
func (r *Recurring) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Debug("recurring task stopped")
}

// Running reports whether the task holds a live handle
func (r *Recurring) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Recurring) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Recurring) run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recurring task panicked", slog.Any("panic", rec))
		}
	}()
	r.fn(ctx)
}
