package leaderboard

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/task"
)

// Config holds leaderboard settings
type Config struct {
	SweepInterval time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		SweepInterval: 2 * time.Second,
	}
}

// ActiveSet reports which connections are live
type ActiveSet interface {
	IsConnected(connID model.ConnectionID) bool
}

// Replicator maintains the replicated standings collection
type Replicator struct {
	config Config
	role   replication.Role
	active ActiveSet
	bus    *events.Bus
	clock  clock.Clock
	logger *slog.Logger

	entries *replication.List[model.ConnectionID, model.LeaderboardEntry]
	sweeper *task.Recurring

	unsubscribe []func()
}

func entryKey(e model.LeaderboardEntry) model.ConnectionID {
	return e.ConnectionID
}

// New creates a Replicator. The authority follows participant and tag-time
// events on bus; observers are fed through Apply. active may be nil for observers.
func New(
	config Config,
	role replication.Role,
	active ActiveSet,
	bus *events.Bus,
	clk clock.Clock,
	logger *slog.Logger,
) *Replicator {
	r := &Replicator{
		config:  config,
		role:    role,
		active:  active,
		bus:     bus,
		clock:   clk,
		logger:  logger.With(slog.String("component", "leaderboard"), slog.String("role", role.String())),
		entries: replication.NewList(role, entryKey),
	}
	r.sweeper = task.NewRecurring("leaderboard-sweep", config.SweepInterval, func(context.Context) {
		r.Sweep()
	}, r.logger)

	r.unsubscribe = append(r.unsubscribe, r.entries.OnChange(r.publishChange))
	if role.IsAuthority() {
		r.unsubscribe = append(r.unsubscribe, bus.Subscribe(r.handleEvent,
			model.EventParticipantJoined,
			model.EventParticipantLeft,
			model.EventTaggedTimeChanged,
		))
	}
	return r
}

func (r *Replicator) handleEvent(evt model.Event) {
	var err error
	switch evt.Type {
	case model.EventParticipantJoined:
		err = r.UpsertStanding(evt.ConnectionID, evt.Username, 0)
	case model.EventParticipantLeft:
		err = r.RemoveStanding(evt.ConnectionID)
	case model.EventTaggedTimeChanged:
		payload, ok := evt.Payload.(model.TaggedTimeChangedPayload)
		if !ok {
			return
		}
		// Only live entries are updated so a flush after leaving cannot resurrect one
		if !r.entries.Contains(evt.ConnectionID) {
			return
		}
		err = r.UpsertStanding(evt.ConnectionID, evt.Username, int(math.Floor(payload.Seconds)))
	}
	if err != nil {
		r.logger.Warn("failed to update standings",
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Replicator) publishChange(change replication.Change[model.ConnectionID, model.LeaderboardEntry]) {
	r.bus.Publish(model.Event{
		Type:         model.EventStandingChanged,
		Timestamp:    r.clock.Now(),
		ConnectionID: change.Key,
		Username:     change.Value.Username,
		Payload: model.StandingChangePayload{
			Change: string(change.Type),
			Index:  change.Index,
			Entry:  change.Value,
		},
	})
}

// UpsertStanding inserts or overwrites the standing for a connection.
// Writing an identical entry is a no-op.
func (r *Replicator) UpsertStanding(connID model.ConnectionID, username string, taggedSeconds int) error {
	entry := model.LeaderboardEntry{
		ConnectionID:  connID,
		Username:      username,
		TaggedSeconds: taggedSeconds,
	}
	if existing, ok := r.entries.Get(connID); ok && existing == entry {
		if !r.role.IsAuthority() {
			return model.ErrNotAuthority
		}
		return nil
	}
	_, err := r.entries.Upsert(entry)
	return err
}

// RemoveStanding removes the standing for a connection if present
func (r *Replicator) RemoveStanding(connID model.ConnectionID) error {
	_, err := r.entries.Remove(connID)
	return err
}

// Apply mirrors a change received from the authority
func (r *Replicator) Apply(payload model.StandingChangePayload) {
	r.entries.Apply(replication.Change[model.ConnectionID, model.LeaderboardEntry]{
		Type:  replication.ChangeType(payload.Change),
		Key:   payload.Entry.ConnectionID,
		Index: payload.Index,
		Value: payload.Entry,
	})
}

// Entries returns standings in insertion order
func (r *Replicator) Entries() []model.LeaderboardEntry {
	return r.entries.Items()
}

// Standings returns entries sorted by tagged seconds descending, ties by insertion order
func (r *Replicator) Standings() []model.LeaderboardEntry {
	items := r.entries.Items()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].TaggedSeconds > items[j].TaggedSeconds
	})
	return items
}

// Top returns at most n leading standings
func (r *Replicator) Top(n int) []model.LeaderboardEntry {
	standings := r.Standings()
	if n >= 0 && n < len(standings) {
		return standings[:n]
	}
	return standings
}

// Len returns the number of entries
func (r *Replicator) Len() int {
	return r.entries.Len()
}

// Sweep removes entries whose connection is no longer live.
// Returns the number removed. A no-op for observers.
func (r *Replicator) Sweep() int {
	if !r.role.IsAuthority() || r.active == nil {
		return 0
	}
	removed, err := r.entries.RemoveIf(func(e model.LeaderboardEntry) bool {
		return !r.active.IsConnected(e.ConnectionID)
	})
	if err != nil {
		r.logger.Warn("sweep failed", slog.String("error", err.Error()))
		return 0
	}
	if removed > 0 {
		r.logger.Info("swept stale standings", slog.Int("removed", removed))
	}
	return removed
}

// StartSweep begins the recurring liveness sweep (authority only)
func (r *Replicator) StartSweep(ctx context.Context) {
	if !r.role.IsAuthority() {
		return
	}
	r.sweeper.Start(ctx)
}

// StopSweep halts the liveness sweep
func (r *Replicator) StopSweep() {
	r.sweeper.Stop()
}

// Close stops the sweep and detaches every subscription
func (r *Replicator) Close() {
	r.sweeper.Stop()
	for _, unsubscribe := range r.unsubscribe {
		unsubscribe()
	}
	r.unsubscribe = nil
}
