package matchtimer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/task"
)

// Config holds match clock settings
type Config struct {
	MatchDuration     time.Duration
	CountdownDuration time.Duration
	TickInterval      time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MatchDuration:     120 * time.Second,
		CountdownDuration: 3 * time.Second,
		TickInterval:      100 * time.Millisecond,
	}
}

// Status is what one tick observed
type Status struct {
	Phase            model.MatchPhase `json:"phase"`
	Remaining        time.Duration    `json:"remaining"`
	CountdownSeconds int              `json:"countdown_seconds,omitempty"`
	Display          string           `json:"display"`
}

// Timer is the match clock. The authority starts it; every role ticks it
// against the authoritative session clock.
type Timer struct {
	config Config
	role   replication.Role
	clock  clock.Clock
	bus    *events.Bus
	logger *slog.Logger

	state *replication.Value[model.MatchTimerState]

	// startMu makes the running check and the write in Start one step
	startMu sync.Mutex

	mu             sync.Mutex
	phase          model.MatchPhase
	runEnd         time.Time
	runActive      bool
	countdownFired bool
	startedFired   bool
	endedFired     bool

	ticker *task.Recurring
}

// New creates a stopped Timer
func New(config Config, role replication.Role, clk clock.Clock, bus *events.Bus, logger *slog.Logger) *Timer {
	t := &Timer{
		config: config,
		role:   role,
		clock:  clk,
		bus:    bus,
		logger: logger.With(slog.String("component", "match-timer"), slog.String("role", role.String())),
		state:  replication.NewValue(model.MatchTimerState{}, role),
		phase:  model.PhaseStopped,
	}
	t.state.OnChange(t.onStateChange)
	t.ticker = task.NewRecurring("match-timer", config.TickInterval, func(context.Context) {
		t.Tick()
	}, t.logger)
	return t
}

// Start sets the end time to now + countdown + match duration and marks the clock running.
// Authority only.
func (t *Timer) Start() error {
	if !t.role.IsAuthority() {
		return model.ErrNotAuthority
	}

	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.state.Get().IsRunning {
		return model.ErrTimerRunning
	}

	end := t.clock.Now().Add(t.config.CountdownDuration + t.config.MatchDuration)
	t.logger.Info("match timer started", slog.Time("end_time", end))
	return t.state.Set(model.MatchTimerState{EndTime: end, IsRunning: true})
}

// Apply mirrors timer state received from the authority
func (t *Timer) Apply(state model.MatchTimerState) {
	t.state.Apply(state)
}

// State returns the replicated timer state
func (t *Timer) State() model.MatchTimerState {
	return t.state.Get()
}

// Phase returns the phase observed on the last tick
func (t *Timer) Phase() model.MatchPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Timer) onStateChange(_, cur model.MatchTimerState) {
	t.mu.Lock()
	t.beginRunLocked(cur)
	t.mu.Unlock()

	t.bus.Publish(model.Event{
		Type:      model.EventTimerChanged,
		Timestamp: t.clock.Now(),
		Payload:   model.TimerChangedPayload{State: cur},
	})
}

// beginRunLocked resets the signal guards the first time a run is seen.
// Runs are told apart by their end time, so the state callback and a
// tick that both notice the same run reset it once.
func (t *Timer) beginRunLocked(state model.MatchTimerState) {
	if !state.IsRunning || state.EndTime.Equal(t.runEnd) {
		return
	}
	t.runEnd = state.EndTime
	t.runActive = true
	t.countdownFired = false
	t.startedFired = false
	t.endedFired = false
}

// Tick evaluates the clock once and fires any due signals
func (t *Timer) Tick() Status {
	t.mu.Lock()
	now := t.clock.Now()
	state := t.state.Get()
	status := Describe(state, now, t.config.MatchDuration)
	t.beginRunLocked(state)

	var fire []model.EventType
	clearRunning := false

	switch {
	case !state.IsRunning:
		// Observers can see running fall before their own tick passed zero
		if t.runActive && !t.endedFired {
			t.endedFired = true
			fire = append(fire, model.EventMatchEnded)
		}
		t.runActive = false
	case status.Phase == model.PhaseCountdown:
		if !t.countdownFired {
			t.countdownFired = true
			fire = append(fire, model.EventCountdownBegan)
		}
	case status.Phase == model.PhaseRunning:
		if !t.startedFired {
			t.startedFired = true
			fire = append(fire, model.EventMatchStarted)
		}
	default:
		if !t.endedFired {
			t.endedFired = true
			fire = append(fire, model.EventMatchEnded)
		}
		t.runActive = false
		clearRunning = t.role.IsAuthority()
	}

	prevPhase := t.phase
	t.phase = status.Phase
	t.mu.Unlock()

	if prevPhase != status.Phase {
		t.publish(now, model.EventPhaseChanged, model.PhaseChangedPayload{Previous: prevPhase, Current: status.Phase})
	}
	for _, evt := range fire {
		t.logger.Info("match signal", slog.String("event", string(evt)))
		t.publish(now, evt, nil)
	}
	if clearRunning {
		t.clearRun(state)
	}

	return status
}

// clearRun marks the finished run stopped unless a new run replaced it
func (t *Timer) clearRun(finished model.MatchTimerState) {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.state.Get() != finished {
		return
	}
	_ = t.state.Set(model.MatchTimerState{EndTime: finished.EndTime, IsRunning: false})
}

// MatchDuration returns the configured running length of a match
func (t *Timer) MatchDuration() time.Duration {
	return t.config.MatchDuration
}

// Describe derives the clock phase and display at now without side effects
func Describe(state model.MatchTimerState, now time.Time, matchDuration time.Duration) Status {
	status := Status{Phase: model.PhaseStopped, Display: "0:00"}
	if !state.IsRunning {
		return status
	}

	remaining := state.Remaining(now)
	switch {
	case remaining > matchDuration:
		status.Phase = model.PhaseCountdown
		status.Remaining = remaining
		status.CountdownSeconds = ceilSeconds(remaining - matchDuration)
		status.Display = fmt.Sprintf("%d", status.CountdownSeconds)
	case remaining > 0:
		status.Phase = model.PhaseRunning
		status.Remaining = remaining
		status.Display = formatClock(remaining)
	}
	return status
}

func (t *Timer) publish(now time.Time, eventType model.EventType, payload any) {
	t.bus.Publish(model.Event{
		Type:      eventType,
		Timestamp: now,
		Payload:   payload,
	})
}

// StartTicking begins evaluating the clock on the configured interval
func (t *Timer) StartTicking(ctx context.Context) {
	t.ticker.Start(ctx)
}

// StopTicking halts background evaluation
func (t *Timer) StopTicking() {
	t.ticker.Stop()
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func formatClock(d time.Duration) string {
	secs := ceilSeconds(d)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
