package tagging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/task"
)

// Config holds tag state machine settings
type Config struct {
	Cooldown     time.Duration // Time in None before becoming Taggable
	SyncInterval time.Duration // How often running tag time is flushed
	TickInterval time.Duration // Background tick rate
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Cooldown:     2 * time.Second,
		SyncInterval: time.Second,
		TickInterval: 100 * time.Millisecond,
	}
}

type participant struct {
	connID   model.ConnectionID
	identity model.UserIdentity

	status      *replication.Value[model.TagStatus]
	accumulated *replication.Value[float64]

	tagStart      *time.Time
	accruedUntil  time.Time
	cooldownUntil time.Time
}

// Machine is the authoritative per-participant tag state machine.
// All transitions are serialized by one mutation lock.
type Machine struct {
	config Config
	bus    *events.Bus
	clock  clock.Clock
	logger *slog.Logger

	// publishMu is held across mutate+publish so events leave in mutation order
	publishMu sync.Mutex

	mu           sync.RWMutex
	participants map[model.ConnectionID]*participant
	order        []model.ConnectionID
	lastSync     time.Time
	pending      []model.Event

	ticker      *task.Recurring
	unsubscribe func()
}

// New creates a Machine and subscribes it to participant join/leave events
func New(config Config, bus *events.Bus, clk clock.Clock, logger *slog.Logger) *Machine {
	m := &Machine{
		config:       config,
		bus:          bus,
		clock:        clk,
		logger:       logger.With(slog.String("component", "tag-state-machine")),
		participants: make(map[model.ConnectionID]*participant),
		lastSync:     clk.Now(),
	}
	m.ticker = task.NewRecurring("tag-tick", config.TickInterval, func(context.Context) {
		m.Tick(m.clock.Now())
	}, m.logger)
	m.unsubscribe = bus.Subscribe(m.handleEvent, model.EventParticipantJoined, model.EventParticipantLeft)
	return m
}

func (m *Machine) handleEvent(evt model.Event) {
	switch evt.Type {
	case model.EventParticipantJoined:
		identity := model.UserIdentity{AuthID: evt.AuthID, Username: evt.Username}
		if err := m.Spawn(evt.ConnectionID, identity); err != nil {
			m.logger.Warn("failed to spawn participant",
				slog.Uint64("connection_id", uint64(evt.ConnectionID)),
				slog.String("error", err.Error()),
			)
		}
	case model.EventParticipantLeft:
		m.Despawn(evt.ConnectionID)
	}
}

// Start begins background ticking
func (m *Machine) Start(ctx context.Context) {
	m.ticker.Start(ctx)
}

// Stop halts background ticking
func (m *Machine) Stop() {
	m.ticker.Stop()
}

// Close stops ticking and detaches from the bus
func (m *Machine) Close() {
	m.ticker.Stop()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Spawn creates a participant in None with a fresh cooldown
func (m *Machine) Spawn(connID model.ConnectionID, identity model.UserIdentity) error {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	if _, exists := m.participants[connID]; exists {
		m.mu.Unlock()
		return model.ErrParticipantExists
	}

	now := m.clock.Now()
	p := &participant{
		connID:        connID,
		identity:      identity,
		status:        replication.NewValue(model.TagStatusNone, replication.RoleAuthority),
		accumulated:   replication.NewValue(0.0, replication.RoleAuthority),
		cooldownUntil: now.Add(m.config.Cooldown),
	}
	m.watch(p)
	m.participants[connID] = p
	m.order = append(m.order, connID)
	m.mu.Unlock()

	m.logger.Debug("participant spawned", slog.Uint64("connection_id", uint64(connID)))
	return nil
}

// Despawn removes a participant, flushing any running tag time first.
// Returns false if the participant did not exist.
func (m *Machine) Despawn(connID model.ConnectionID) bool {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	p, ok := m.participants[connID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if p.status.Get() == model.TagStatusTagged {
		m.flushLocked(p, m.clock.Now())
	}
	delete(m.participants, connID)
	for i, id := range m.order {
		if id == connID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	pending := m.takePendingLocked()
	m.mu.Unlock()

	m.publish(pending)
	m.logger.Debug("participant despawned", slog.Uint64("connection_id", uint64(connID)))
	return true
}

// Contact resolves a contact from initiator to target.
// The tag moves only when the initiator is Taggable and the target is Tagged.
// Returns true if the tag was transferred.
func (m *Machine) Contact(initiator, target model.ConnectionID) (bool, error) {
	if initiator == target {
		return false, nil
	}

	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	from, ok := m.participants[initiator]
	if !ok {
		m.mu.Unlock()
		return false, model.ErrParticipantNotFound
	}
	to, ok := m.participants[target]
	if !ok {
		m.mu.Unlock()
		return false, model.ErrParticipantNotFound
	}
	if from.status.Get() != model.TagStatusTaggable || to.status.Get() != model.TagStatusTagged {
		m.mu.Unlock()
		return false, nil
	}

	now := m.clock.Now()
	m.untagLocked(to, now)
	m.tagLocked(from, now)
	pending := m.takePendingLocked()
	m.mu.Unlock()

	m.publish(pending)
	m.logger.Info("tag transferred",
		slog.Uint64("from", uint64(target)),
		slog.Uint64("to", uint64(initiator)),
	)
	return true, nil
}

// Tag makes the participant Tagged, unless any participant already is.
// This is the selection path; Contact is the transfer path.
// Returns true if the participant became Tagged.
func (m *Machine) Tag(connID model.ConnectionID) (bool, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	p, ok := m.participants[connID]
	if !ok {
		m.mu.Unlock()
		return false, model.ErrParticipantNotFound
	}
	if m.hasTaggedLocked() {
		m.mu.Unlock()
		return false, nil
	}

	m.tagLocked(p, m.clock.Now())
	pending := m.takePendingLocked()
	m.mu.Unlock()

	m.publish(pending)
	m.logger.Info("participant selected as tagged", slog.Uint64("connection_id", uint64(connID)))
	return true, nil
}

// Tick advances cooldowns and flushes running tag time on the sync interval
func (m *Machine) Tick(now time.Time) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	flushDue := now.Sub(m.lastSync) >= m.config.SyncInterval
	if flushDue {
		m.lastSync = now
	}
	for _, id := range m.order {
		p := m.participants[id]
		switch p.status.Get() {
		case model.TagStatusNone:
			if !now.Before(p.cooldownUntil) {
				_ = p.status.Set(model.TagStatusTaggable)
			}
		case model.TagStatusTagged:
			if flushDue {
				m.flushLocked(p, now)
			}
		}
	}
	pending := m.takePendingLocked()
	m.mu.Unlock()

	m.publish(pending)
}

// Participant returns a snapshot of one participant
func (m *Machine) Participant(connID model.ConnectionID) (model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[connID]
	if !ok {
		return model.Participant{}, model.ErrParticipantNotFound
	}
	return m.snapshotLocked(p, m.clock.Now()), nil
}

// Participants returns snapshots of all participants in spawn order
func (m *Machine) Participants() []model.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	out := make([]model.Participant, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.snapshotLocked(m.participants[id], now))
	}
	return out
}

// ConnectedIDs returns participant connection ids in spawn order
func (m *Machine) ConnectedIDs() []model.ConnectionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ConnectionID, len(m.order))
	copy(out, m.order)
	return out
}

// HasTagged reports whether any participant is Tagged
func (m *Machine) HasTagged() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasTaggedLocked()
}

// Count returns the number of participants
func (m *Machine) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Machine) hasTaggedLocked() bool {
	for _, p := range m.participants {
		if p.status.Get() == model.TagStatusTagged {
			return true
		}
	}
	return false
}

func (m *Machine) tagLocked(p *participant, now time.Time) {
	start := now
	p.tagStart = &start
	p.accruedUntil = now
	_ = p.status.Set(model.TagStatusTagged)
}

func (m *Machine) untagLocked(p *participant, now time.Time) {
	m.flushLocked(p, now)
	p.tagStart = nil
	p.cooldownUntil = now.Add(m.config.Cooldown)
	_ = p.status.Set(model.TagStatusNone)
}

// flushLocked rolls tag time since the last flush into the accumulated total
func (m *Machine) flushLocked(p *participant, now time.Time) {
	if p.tagStart == nil {
		return
	}
	elapsed := now.Sub(p.accruedUntil)
	if elapsed <= 0 {
		return
	}
	p.accruedUntil = now
	_ = p.accumulated.Set(p.accumulated.Get() + elapsed.Seconds())
}

// watch turns replicated field changes into pending bus events.
// Callbacks run inside Set, which is only called with mu held.
func (m *Machine) watch(p *participant) {
	p.status.OnChange(func(prev, cur model.TagStatus) {
		m.pending = append(m.pending, model.Event{
			Type:         model.EventTagStatusChanged,
			Timestamp:    m.clock.Now(),
			ConnectionID: p.connID,
			AuthID:       p.identity.AuthID,
			Username:     p.identity.DisplayName(),
			Payload:      model.TagStatusChangedPayload{Previous: prev, Current: cur},
		})
	})
	p.accumulated.OnChange(func(_, cur float64) {
		m.pending = append(m.pending, model.Event{
			Type:         model.EventTaggedTimeChanged,
			Timestamp:    m.clock.Now(),
			ConnectionID: p.connID,
			AuthID:       p.identity.AuthID,
			Username:     p.identity.DisplayName(),
			Payload:      model.TaggedTimeChangedPayload{Seconds: cur},
		})
	})
}

func (m *Machine) takePendingLocked() []model.Event {
	pending := m.pending
	m.pending = nil
	return pending
}

func (m *Machine) publish(pending []model.Event) {
	for _, evt := range pending {
		m.bus.Publish(evt)
	}
}

func (m *Machine) snapshotLocked(p *participant, now time.Time) model.Participant {
	status := p.status.Get()
	snapshot := model.Participant{
		ConnectionID:             p.connID,
		Identity:                 p.identity,
		TagStatus:                status,
		AccumulatedTaggedSeconds: p.accumulated.Get(),
	}
	if p.tagStart != nil {
		start := *p.tagStart
		snapshot.TagStartedAt = &start
	}
	if status == model.TagStatusNone && now.Before(p.cooldownUntil) {
		snapshot.CooldownRemaining = p.cooldownUntil.Sub(now)
	}
	return snapshot
}
