package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/dependencies/random"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/replication"
	"github.com/mcoot/tagmatch/internal/services/gateway"
	"github.com/mcoot/tagmatch/internal/services/leaderboard"
	"github.com/mcoot/tagmatch/internal/services/matchtimer"
	"github.com/mcoot/tagmatch/internal/services/selection"
	"github.com/mcoot/tagmatch/internal/services/tagging"
)

// Config bundles the settings of every component in a hosted match
type Config struct {
	Gateway     gateway.Config
	Tagging     tagging.Config
	Selection   selection.Config
	Timer       matchtimer.Config
	Leaderboard leaderboard.Config

	// SpawnPoints handed to approved connections. Empty uses a default ring.
	SpawnPoints []model.SpawnPoint
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Gateway:     gateway.DefaultConfig(),
		Tagging:     tagging.DefaultConfig(),
		Selection:   selection.DefaultConfig(),
		Timer:       matchtimer.DefaultConfig(),
		Leaderboard: leaderboard.DefaultConfig(),
	}
}

// Snapshot is the full replicated state of a match at one instant
type Snapshot struct {
	ServerTime    time.Time                `json:"server_time"`
	MatchDuration time.Duration            `json:"match_duration"`
	Timer         model.MatchTimerState    `json:"timer"`
	Status        matchtimer.Status        `json:"status"`
	Participants  []model.Participant      `json:"participants"`
	Standings     []model.LeaderboardEntry `json:"standings"`
}

// Session is one authoritative hosted match. Every component shares a bus
// that lives exactly as long as the session.
type Session struct {
	bus         *events.Bus
	gateway     *gateway.Gateway
	tagging     *tagging.Machine
	selection   *selection.Coordinator
	timer       *matchtimer.Timer
	leaderboard *leaderboard.Replicator
	clock       clock.Clock
	logger      *slog.Logger

	closeOnce sync.Once
}

// New wires a session. verifier may be nil.
func New(
	config Config,
	verifier gateway.IdentityVerifier,
	clk clock.Clock,
	rng random.Random,
	logger *slog.Logger,
) *Session {
	logger = logger.With(slog.String("component", "match-session"))
	bus := events.NewBus(logger)

	gw := gateway.New(config.Gateway, gateway.NewBagSpawnProvider(config.SpawnPoints, rng), verifier, bus, clk, logger)
	machine := tagging.New(config.Tagging, bus, clk, logger)

	return &Session{
		bus:         bus,
		gateway:     gw,
		tagging:     machine,
		selection:   selection.New(config.Selection, replication.RoleAuthority, machine, rng, bus, logger),
		timer:       matchtimer.New(config.Timer, replication.RoleAuthority, clk, bus, logger),
		leaderboard: leaderboard.New(config.Leaderboard, replication.RoleAuthority, gw, bus, clk, logger),
		clock:       clk,
		logger:      logger,
	}
}

// Start launches the background tasks: tag ticking, the match clock and the leaderboard sweep
func (s *Session) Start(ctx context.Context) {
	s.tagging.Start(ctx)
	s.timer.StartTicking(ctx)
	s.leaderboard.StartSweep(ctx)
	s.logger.Info("match session started")
}

// Close disconnects everyone, stops every task and drops all subscriptions.
// Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.gateway.Close()
		s.selection.Close()
		s.timer.StopTicking()
		s.tagging.Close()
		s.leaderboard.Close()
		s.bus.Close()
		s.logger.Info("match session closed")
	})
}

// Approve runs the connection gateway for an inbound connection
func (s *Session) Approve(connID model.ConnectionID, payload []byte) gateway.Decision {
	return s.gateway.Approve(connID, payload)
}

// Disconnect removes a connection from the match
func (s *Session) Disconnect(connID model.ConnectionID) bool {
	return s.gateway.Disconnect(connID)
}

// Contact resolves a contact reported for a connected participant
func (s *Session) Contact(initiator, target model.ConnectionID) (bool, error) {
	return s.tagging.Contact(initiator, target)
}

// StartMatch starts the match clock
func (s *Session) StartMatch() error {
	return s.timer.Start()
}

// Subscribe registers a handler for match events. With no types it receives everything.
func (s *Session) Subscribe(handler events.Handler, types ...model.EventType) func() {
	return s.bus.Subscribe(handler, types...)
}

// Snapshot captures the current match state
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ServerTime:    s.clock.Now(),
		MatchDuration: s.timer.MatchDuration(),
		Timer:         s.timer.State(),
		Status:        s.status(),
		Participants:  s.tagging.Participants(),
		Standings:     s.leaderboard.Standings(),
	}
}

// status describes the clock without firing any signals
func (s *Session) status() matchtimer.Status {
	return matchtimer.Describe(s.timer.State(), s.clock.Now(), s.timer.MatchDuration())
}

// Standings returns the leaderboard in rank order
func (s *Session) Standings() []model.LeaderboardEntry {
	return s.leaderboard.Standings()
}

// Participants returns every participant in join order
func (s *Session) Participants() []model.Participant {
	return s.tagging.Participants()
}

// Identity returns the identity bound to a connection
func (s *Session) Identity(connID model.ConnectionID) (model.UserIdentity, error) {
	return s.gateway.GetIdentity(connID)
}

// ConnectionCount returns the number of approved connections
func (s *Session) ConnectionCount() int {
	return s.gateway.Count()
}
