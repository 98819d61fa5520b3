package factory

import (
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/mocks"
	"github.com/mcoot/tagmatch/internal/services/registry"
	"github.com/mcoot/tagmatch/internal/storage/memory"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an in-memory App with mocked clock and random.
// Background loops tick every few milliseconds of real time while match
// time only moves when MockClock is advanced.
func NewTestApp() *TestApp {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	cfg := DefaultConfig()
	cfg.Host.RetryUnit = time.Millisecond
	cfg.Host.Match.Selection.SelectionDelay = 10 * time.Millisecond
	cfg.Host.Match.Selection.ValidationInterval = 20 * time.Millisecond
	cfg.Host.Match.Tagging.TickInterval = 5 * time.Millisecond
	cfg.Host.Match.Timer.TickInterval = 5 * time.Millisecond

	reg := registry.NewMemory(cfg.Registry, mockClock, logger)
	app := newWithDependencies(cfg, memory.NewWithClock(mockClock.Now), reg, mockClock, mockRandom, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
