package selection

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/random"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/task"
)

// Config holds selection settings
type Config struct {
	SelectionDelay     time.Duration // Wait between the trigger and the pick
	ValidationInterval time.Duration // How often the "someone is tagged" check runs
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		SelectionDelay:     3 * time.Second,
		ValidationInterval: 5 * time.Second,
	}
}

// Tagger is the view of the tag state machine the coordinator needs
type Tagger interface {
	ConnectedIDs() []model.ConnectionID
	HasTagged() bool
	Tag(connID model.ConnectionID) (bool, error)
}

// Coordinator picks the initial tagged participant and keeps at least one
// participant tagged while anyone is connected
type Coordinator struct {
	config Config
	role   replication.Role
	tagger Tagger
	random random.Random
	logger *slog.Logger

	selection   *task.Delayed
	validation  *task.Recurring
	unsubscribe func()
}

// New creates a Coordinator listening for CountdownBegan on bus
func New(
	config Config,
	role replication.Role,
	tagger Tagger,
	rng random.Random,
	bus *events.Bus,
	logger *slog.Logger,
) *Coordinator {
	c := &Coordinator{
		config: config,
		role:   role,
		tagger: tagger,
		random: rng,
		logger: logger.With(slog.String("component", "tag-selection")),
	}
	c.selection = task.NewDelayed("tag-selection", c.logger)
	c.validation = task.NewRecurring("tag-validation", config.ValidationInterval, func(context.Context) {
		c.Validate()
	}, c.logger)
	c.unsubscribe = bus.Subscribe(func(evt model.Event) {
		switch evt.Type {
		case model.EventCountdownBegan:
			c.OnMatchCountdownBegan()
		case model.EventMatchEnded:
			c.StopValidation()
		}
	}, model.EventCountdownBegan, model.EventMatchEnded)
	return c
}

// OnMatchCountdownBegan schedules the initial selection and starts validation.
// Returns false if this is not the authority or a selection is already pending.
func (c *Coordinator) OnMatchCountdownBegan() bool {
	if !c.role.IsAuthority() {
		return false
	}
	c.logger.Info("countdown began, scheduling initial selection")
	scheduled := c.SelectRandom()
	c.StartValidation(context.Background())
	return scheduled
}

// SelectRandom schedules a delayed pick of one connected participant.
// A request while one is pending is ignored.
func (c *Coordinator) SelectRandom() bool {
	if !c.role.IsAuthority() {
		return false
	}
	scheduled := c.selection.Schedule(context.Background(), c.config.SelectionDelay, func(context.Context) {
		c.selectNow()
	})
	if !scheduled {
		c.logger.Debug("selection already pending, ignoring request")
	}
	return scheduled
}

// Pending reports whether a selection is scheduled
func (c *Coordinator) Pending() bool {
	return c.selection.Pending()
}

func (c *Coordinator) selectNow() {
	ids := c.tagger.ConnectedIDs()
	if len(ids) == 0 {
		c.logger.Info("no participants to select from")
		return
	}

	chosen := ids[c.random.Intn(len(ids))]
	tagged, err := c.tagger.Tag(chosen)
	switch {
	case err != nil:
		c.logger.Warn("selected participant could not be tagged",
			slog.Uint64("connection_id", uint64(chosen)),
			slog.String("error", err.Error()),
		)
	case !tagged:
		c.logger.Info("a participant was tagged before selection completed")
	default:
		c.logger.Info("participant selected", slog.Uint64("connection_id", uint64(chosen)))
	}
}

// Validate checks that someone is tagged while participants are connected,
// scheduling a selection if not. Returns true if the check passed.
func (c *Coordinator) Validate() bool {
	if !c.role.IsAuthority() {
		return true
	}
	if len(c.tagger.ConnectedIDs()) == 0 {
		return true
	}
	if c.tagger.HasTagged() {
		return true
	}

	c.logger.Info("no participant is tagged, reselecting")
	c.SelectRandom()
	return false
}

// StartValidation begins the recurring check. A no-op for observers or when running.
func (c *Coordinator) StartValidation(ctx context.Context) {
	if !c.role.IsAuthority() {
		return
	}
	c.validation.Start(ctx)
}

// StopValidation halts the recurring check. Safe to call repeatedly.
func (c *Coordinator) StopValidation() {
	c.validation.Stop()
}

// Validating reports whether the recurring check is running
func (c *Coordinator) Validating() bool {
	return c.validation.Running()
}

// Close stops all tasks and detaches from the bus
func (c *Coordinator) Close() {
	c.validation.Stop()
	c.selection.Cancel()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
