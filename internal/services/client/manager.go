// Package client drives a player's side of a match: signing in, resolving
// a join code, connecting to the host and mirroring what it replicates.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/tagmatch/internal/api/response"
	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
)

// Backend is the subset of the API a client needs to join a match
type Backend interface {
	GuestLogin(ctx context.Context, displayName string) (*response.AuthResponse, error)
	JoinAllocation(ctx context.Context, joinCode string) (*response.Allocation, error)
	JoinEntry(ctx context.Context, entryID string) (*response.Entry, error)
}

// Config holds client session settings
type Config struct {
	// Username is shown to other players
	Username string
	// TickInterval is how often the mirrored match clock is evaluated
	TickInterval time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Username:     "Player",
		TickInterval: 100 * time.Millisecond,
	}
}

// Manager owns one player's connection to a hosted match
type Manager struct {
	config    Config
	backend   Backend
	connector Connector
	clock     clock.Clock
	bus       *events.Bus
	logger    *slog.Logger

	mu            sync.Mutex
	identity      *model.UserIdentity
	conn          Connection
	mirror        *Mirror
	pumpDone      chan struct{}
	screen        model.Screen
	disconnecting bool
	lastReason    string
}

// New creates a Manager on the pre-match screen
func New(config Config, backend Backend, connector Connector, clk clock.Clock, logger *slog.Logger) *Manager {
	logger = logger.With(slog.String("component", "client-session"))
	return &Manager{
		config:    config,
		backend:   backend,
		connector: connector,
		clock:     clk,
		bus:       events.NewBus(logger),
		logger:    logger,
		screen:    model.ScreenPreMatch,
	}
}

// Authenticate signs in as a guest under the configured username
func (m *Manager) Authenticate(ctx context.Context) (model.UserIdentity, error) {
	auth, err := m.backend.GuestLogin(ctx, m.config.Username)
	if err != nil {
		m.logger.Error("authentication failed", slog.String("error", err.Error()))
		return model.UserIdentity{}, fmt.Errorf("%w: %v", model.ErrAuthenticationFailure, err)
	}

	identity := model.UserIdentity{
		AuthID:        model.AuthID(auth.Player.ID),
		Username:      m.config.Username,
		IdentityToken: auth.IdentityToken,
	}

	m.mu.Lock()
	m.identity = &identity
	m.mu.Unlock()

	m.logger.Info("authenticated", slog.String("auth_id", string(identity.AuthID)))
	return identity, nil
}

// Identity returns the authenticated identity, if any
func (m *Manager) Identity() (model.UserIdentity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return model.UserIdentity{}, false
	}
	return *m.identity, true
}

// Join resolves joinCode to an allocation and connects to it.
// There is no retry: a join code is either valid or not.
func (m *Manager) Join(ctx context.Context, joinCode string) error {
	m.mu.Lock()
	if m.identity == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: not signed in", model.ErrAuthenticationFailure)
	}
	if m.conn != nil {
		m.mu.Unlock()
		return model.ErrSessionAlreadyActive
	}
	identity := *m.identity
	m.mu.Unlock()

	alloc, err := m.backend.JoinAllocation(ctx, joinCode)
	if err != nil {
		m.logger.Warn("join code rejected",
			slog.String("join_code", joinCode),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, model.ErrInvalidJoinCode) {
			return err
		}
		return fmt.Errorf("%w: %v", model.ErrJoinCodeFailure, err)
	}

	conn, err := m.connector.Connect(ctx, alloc.Endpoint, identity)
	if err != nil {
		m.logger.Warn("connection failed",
			slog.String("allocation_id", alloc.AllocationID),
			slog.String("error", err.Error()),
		)
		return err
	}

	welcome := conn.Welcome()
	mirror := NewMirror(welcome.ConnectionID, welcome.ServerTime, welcome.Snapshot, m.config.TickInterval, m.clock, m.bus, m.logger)

	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		mirror.Close()
		_ = conn.Close()
		return model.ErrSessionAlreadyActive
	}
	done := make(chan struct{})
	m.conn = conn
	m.mirror = mirror
	m.pumpDone = done
	m.screen = model.ScreenInMatch
	m.lastReason = ""
	m.mu.Unlock()

	mirror.Start(context.WithoutCancel(ctx))
	go m.pump(conn, mirror, done)

	m.logger.Info("joined match",
		slog.String("allocation_id", alloc.AllocationID),
		slog.Uint64("connection_id", uint64(welcome.ConnectionID)),
	)
	return nil
}

// JoinEntry joins a listed match through its registry entry
func (m *Manager) JoinEntry(ctx context.Context, entryID string) error {
	entry, err := m.backend.JoinEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrRegistryFailure, err)
	}
	joinCode := entry.Data["joinCode"]
	if joinCode == "" {
		return fmt.Errorf("%w: entry %s has no join code", model.ErrRegistryFailure, entryID)
	}
	return m.Join(ctx, joinCode)
}

func (m *Manager) pump(conn Connection, mirror *Mirror, done chan struct{}) {
	defer close(done)

	for evt := range conn.Events() {
		mirror.Handle(evt)
	}
	mirror.Close()

	if conn.Closed() {
		return
	}
	m.mu.Lock()
	current := m.conn == conn
	m.mu.Unlock()
	if current {
		m.HandleForcedDisconnect(conn.Reason())
	}
}

// Disconnect leaves the current match. A no-op when not connected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.conn == nil || m.disconnecting {
		m.mu.Unlock()
		return nil
	}
	m.disconnecting = true
	conn := m.conn
	m.mu.Unlock()

	err := conn.Close()
	m.finish("")
	m.logger.Info("left match")
	return err
}

// HandleForcedDisconnect returns to the pre-match screen after the host
// ends the connection, closing it if it is still open. Repeated or
// re-entrant calls are ignored.
func (m *Manager) HandleForcedDisconnect(reason string) {
	m.mu.Lock()
	if m.screen == model.ScreenPreMatch || m.disconnecting {
		m.mu.Unlock()
		return
	}
	m.disconnecting = true
	conn := m.conn
	m.mu.Unlock()

	m.logger.Warn("disconnected by host", slog.String("reason", reason))

	if conn != nil && !conn.Closed() {
		if err := conn.Close(); err != nil {
			m.logger.Debug("close after forced disconnect", slog.String("error", err.Error()))
		}
	}
	m.finish(reason)
}

func (m *Manager) finish(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = nil
	m.mirror = nil
	m.screen = model.ScreenPreMatch
	m.disconnecting = false
	m.lastReason = reason
}

// Wait blocks until the current connection ends and returns the close reason
func (m *Manager) Wait(ctx context.Context) (string, error) {
	m.mu.Lock()
	done := m.pumpDone
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.LastReason(), nil
}

// LastReason returns why the last connection ended, empty if the player left
func (m *Manager) LastReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReason
}

// Screen returns the current presentation state
func (m *Manager) Screen() model.Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen
}

// Mirror returns the mirrored match, nil when not connected
func (m *Manager) Mirror() *Mirror {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirror
}

// Contact reports touching another participant
func (m *Manager) Contact(target model.ConnectionID) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return model.ErrNotConnected
	}
	return conn.SendContact(target)
}

// Subscribe registers a handler for mirrored match events
func (m *Manager) Subscribe(handler events.Handler, types ...model.EventType) func() {
	return m.bus.Subscribe(handler, types...)
}

// Close leaves any match and stops event delivery
func (m *Manager) Close() error {
	err := m.Disconnect()
	m.bus.Close()
	return err
}
