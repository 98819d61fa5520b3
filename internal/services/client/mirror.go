package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/services/leaderboard"
	"github.com/mcoot/tagmatch/internal/services/match"
	"github.com/mcoot/tagmatch/internal/services/matchtimer"
)

// Mirror is the observer-side copy of one match. It applies replicated
// changes from the host and republishes them on the local bus. Clock
// signals are not forwarded: the observer timer derives them against
// the host clock.
type Mirror struct {
	self   model.ConnectionID
	bus    *events.Bus
	clock  *clock.OffsetClock
	logger *slog.Logger

	participants *replication.List[model.ConnectionID, model.Participant]
	standings    *leaderboard.Replicator
	timer        *matchtimer.Timer
}

func participantKey(p model.Participant) model.ConnectionID {
	return p.ConnectionID
}

// NewMirror builds a mirror from the snapshot sent on connect
func NewMirror(
	self model.ConnectionID,
	serverTime time.Time,
	snapshot match.Snapshot,
	tickInterval time.Duration,
	local clock.Clock,
	bus *events.Bus,
	logger *slog.Logger,
) *Mirror {
	offset := clock.NewOffsetClock(local)
	offset.Sync(serverTime)

	m := &Mirror{
		self:         self,
		bus:          bus,
		clock:        offset,
		logger:       logger.With(slog.String("component", "mirror")),
		participants: replication.NewList(replication.RoleObserver, participantKey),
		standings:    leaderboard.New(leaderboard.DefaultConfig(), replication.RoleObserver, nil, bus, offset, logger),
		timer: matchtimer.New(matchtimer.Config{
			MatchDuration: snapshot.MatchDuration,
			TickInterval:  tickInterval,
		}, replication.RoleObserver, offset, bus, logger),
	}

	for _, p := range snapshot.Participants {
		m.participants.Apply(replication.Change[model.ConnectionID, model.Participant]{
			Type:  replication.ChangeAdd,
			Key:   p.ConnectionID,
			Value: p,
		})
	}
	for i, entry := range snapshot.Standings {
		m.standings.Apply(model.StandingChangePayload{Change: string(replication.ChangeAdd), Index: i, Entry: entry})
	}
	m.timer.Apply(snapshot.Timer)
	m.timer.Tick()
	return m
}

// Start ticks the observer clock in the background
func (m *Mirror) Start(ctx context.Context) {
	m.timer.StartTicking(ctx)
}

// Close stops the observer clock
func (m *Mirror) Close() {
	m.timer.StopTicking()
	m.standings.Close()
}

// Self returns the local connection id
func (m *Mirror) Self() model.ConnectionID {
	return m.self
}

// Handle applies one event received from the host
func (m *Mirror) Handle(evt model.Event) {
	switch evt.Type {
	case model.EventTimerChanged:
		if payload, ok := evt.Payload.(model.TimerChangedPayload); ok {
			m.timer.Apply(payload.State)
			m.timer.Tick()
		}
		return
	case model.EventStandingChanged:
		if payload, ok := evt.Payload.(model.StandingChangePayload); ok {
			m.standings.Apply(payload)
		}
		return
	case model.EventCountdownBegan, model.EventMatchStarted, model.EventMatchEnded, model.EventPhaseChanged:
		return
	case model.EventParticipantJoined:
		// The snapshot may already hold the joiner
		if m.participants.Contains(evt.ConnectionID) {
			break
		}
		m.participants.Apply(replication.Change[model.ConnectionID, model.Participant]{
			Type: replication.ChangeAdd,
			Key:  evt.ConnectionID,
			Value: model.Participant{
				ConnectionID: evt.ConnectionID,
				Identity:     model.UserIdentity{AuthID: evt.AuthID, Username: evt.Username},
				TagStatus:    model.TagStatusNone,
			},
		})
	case model.EventParticipantLeft:
		m.participants.Apply(replication.Change[model.ConnectionID, model.Participant]{
			Type: replication.ChangeRemove,
			Key:  evt.ConnectionID,
		})
	case model.EventTagStatusChanged:
		if payload, ok := evt.Payload.(model.TagStatusChangedPayload); ok {
			m.updateParticipant(evt.ConnectionID, func(p *model.Participant) {
				p.TagStatus = payload.Current
				if payload.Current == model.TagStatusTagged {
					started := evt.Timestamp
					p.TagStartedAt = &started
				} else {
					p.TagStartedAt = nil
				}
			})
		}
	case model.EventTaggedTimeChanged:
		if payload, ok := evt.Payload.(model.TaggedTimeChangedPayload); ok {
			m.updateParticipant(evt.ConnectionID, func(p *model.Participant) {
				p.AccumulatedTaggedSeconds = payload.Seconds
			})
		}
	}

	m.bus.Publish(evt)
}

func (m *Mirror) updateParticipant(connID model.ConnectionID, fn func(*model.Participant)) {
	p, ok := m.participants.Get(connID)
	if !ok {
		m.logger.Debug("change for unknown participant", slog.Uint64("connection_id", uint64(connID)))
		return
	}
	fn(&p)
	m.participants.Apply(replication.Change[model.ConnectionID, model.Participant]{
		Type:  replication.ChangeUpdate,
		Key:   connID,
		Value: p,
	})
}

// Participants returns every known participant in join order
func (m *Mirror) Participants() []model.Participant {
	return m.participants.Items()
}

// Participant returns one participant
func (m *Mirror) Participant(connID model.ConnectionID) (model.Participant, bool) {
	return m.participants.Get(connID)
}

// Standings returns the mirrored leaderboard in rank order
func (m *Mirror) Standings() []model.LeaderboardEntry {
	return m.standings.Standings()
}

// Status evaluates the observer clock now
func (m *Mirror) Status() matchtimer.Status {
	return matchtimer.Describe(m.timer.State(), m.clock.Now(), m.timer.MatchDuration())
}

// Tick evaluates the observer clock once, firing any due signals locally
func (m *Mirror) Tick() matchtimer.Status {
	return m.timer.Tick()
}
