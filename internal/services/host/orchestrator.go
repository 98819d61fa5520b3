package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/dependencies/random"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/gateway"
	"github.com/mcoot/tagmatch/internal/services/match"
	"github.com/mcoot/tagmatch/internal/services/registry"
	"github.com/mcoot/tagmatch/internal/services/relay"
	"github.com/mcoot/tagmatch/internal/task"
)

// Config holds session orchestration settings
type Config struct {
	MaxConnections    int
	RetryAttempts     int
	RetryUnit         time.Duration // Backoff before retry n is n*RetryUnit
	KeepaliveInterval time.Duration
	// CleanupTimeout bounds each registry/relay call made during shutdown
	CleanupTimeout time.Duration
	Match          match.Config
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConnections:    20,
		RetryAttempts:     3,
		RetryUnit:         time.Second,
		KeepaliveInterval: 15 * time.Second,
		CleanupTimeout:    5 * time.Second,
		Match:             match.DefaultConfig(),
	}
}

// Transport carries client connections for a running match
type Transport interface {
	// Attach routes connections for allocationID into session
	Attach(allocationID string, session *match.Session) error
	// Detach kicks every client of allocationID
	Detach(allocationID string)
}

// Orchestrator drives the host session lifecycle:
// Idle -> AcquiringAllocation -> AcquiringJoinCode -> RegisteringMatch -> Running -> ShuttingDown -> Idle
type Orchestrator struct {
	config    Config
	relay     relay.Service
	registry  registry.Service
	transport Transport
	verifier  gateway.IdentityVerifier
	clock     clock.Clock
	random    random.Random
	logger    *slog.Logger

	// opMu serializes Start and Shutdown
	opMu sync.Mutex

	mu          sync.RWMutex
	state       model.SessionState
	info        model.SessionInfo
	host        model.UserIdentity
	session     *match.Session
	cancel      context.CancelFunc
	keepalive   *task.Recurring
	unsubscribe func()

	removals sync.WaitGroup
}

// New creates an idle Orchestrator. transport and verifier may be nil.
func New(
	config Config,
	relaySvc relay.Service,
	registrySvc registry.Service,
	transport Transport,
	verifier gateway.IdentityVerifier,
	clk clock.Clock,
	rng random.Random,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		config:    config,
		relay:     relaySvc,
		registry:  registrySvc,
		transport: transport,
		verifier:  verifier,
		clock:     clk,
		random:    rng,
		logger:    logger.With(slog.String("component", "session-orchestrator")),
		state:     model.SessionIdle,
	}
}

// State returns the current lifecycle state
func (o *Orchestrator) State() model.SessionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Info returns the external resources held by the running session
func (o *Orchestrator) Info() model.SessionInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.info
}

// Session returns the running match, or nil when no session is running
func (o *Orchestrator) Session() *match.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state != model.SessionRunning {
		return nil
	}
	return o.session
}

// Host returns the identity the running session was started for
func (o *Orchestrator) Host() model.UserIdentity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.host
}

func (o *Orchestrator) setState(state model.SessionState) {
	o.mu.Lock()
	prev := o.state
	o.state = state
	o.mu.Unlock()
	o.logger.Info("session state changed",
		slog.String("from", string(prev)),
		slog.String("to", string(state)),
	)
}

// Start acquires a relay allocation and join code, registers the match and
// brings the hosted match up. Allocation and join code requests are retried;
// a registry failure is fatal. On failure every acquired resource is released
// and the orchestrator returns to Idle.
func (o *Orchestrator) Start(ctx context.Context, host model.UserIdentity) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.State() != model.SessionIdle {
		return model.ErrSessionAlreadyActive
	}
	if host.AuthID == "" {
		return fmt.Errorf("%w: host is not signed in", model.ErrAuthenticationFailure)
	}

	logger := o.logger.With(slog.String("host_auth_id", string(host.AuthID)))

	o.setState(model.SessionAcquiringAllocation)
	var allocation *relay.Allocation
	err := task.Retry(ctx, o.config.RetryAttempts, o.config.RetryUnit, func(ctx context.Context) error {
		alloc, err := o.relay.CreateAllocation(ctx, o.config.MaxConnections)
		if err != nil {
			logger.Warn("relay allocation attempt failed", slog.String("error", err.Error()))
			return err
		}
		allocation = alloc
		return nil
	})
	if err != nil {
		logger.Error("relay allocation failed", slog.String("error", err.Error()))
		o.setState(model.SessionIdle)
		return fmt.Errorf("%w: %w", model.ErrSessionStartFailed, err)
	}

	o.setState(model.SessionAcquiringJoinCode)
	var joinCode string
	err = task.Retry(ctx, o.config.RetryAttempts, o.config.RetryUnit, func(ctx context.Context) error {
		code, err := o.relay.GetJoinCode(ctx, allocation.ID)
		if err != nil {
			logger.Warn("join code attempt failed", slog.String("error", err.Error()))
			return err
		}
		joinCode = code
		return nil
	})
	if err != nil {
		logger.Error("join code request failed", slog.String("error", err.Error()))
		o.releaseAllocation(ctx, allocation.ID)
		o.setState(model.SessionIdle)
		return fmt.Errorf("%w: %w", model.ErrSessionStartFailed, err)
	}
	logger.Info("join code acquired", slog.String("join_code", joinCode))

	o.setState(model.SessionRegisteringMatch)
	entry, err := o.registry.CreateEntry(ctx, host.AuthID, lobbyName(host), o.config.MaxConnections, map[string]registry.DataValue{
		registry.DataKeyJoinCode: {Value: joinCode, Visibility: registry.VisibilityMember},
	})
	if err != nil {
		logger.Error("match registration failed", slog.String("error", err.Error()))
		o.releaseAllocation(ctx, allocation.ID)
		o.setState(model.SessionIdle)
		return fmt.Errorf("%w: %w", model.ErrSessionStartFailed, err)
	}

	info := model.SessionInfo{
		AllocationID:    allocation.ID,
		JoinCode:        joinCode,
		RegistryEntryID: entry.ID,
	}
	matchConfig := o.config.Match
	matchConfig.Gateway.MaxConnections = allocation.MaxConnections
	session := match.New(matchConfig, o.verifier, o.clock, o.random, o.logger)

	if o.transport != nil {
		if err := o.transport.Attach(allocation.ID, session); err != nil {
			logger.Error("transport attach failed", slog.String("error", err.Error()))
			session.Close()
			o.deleteEntry(ctx, entry.ID)
			o.releaseAllocation(ctx, allocation.ID)
			o.setState(model.SessionIdle)
			return fmt.Errorf("%w: %w", model.ErrSessionStartFailed, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	session.Start(runCtx)

	keepalive := task.NewRecurring("registry-keepalive", o.config.KeepaliveInterval, func(ctx context.Context) {
		if err := o.registry.Heartbeat(ctx, entry.ID); err != nil {
			o.logger.Warn("registry heartbeat failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}, o.logger)
	keepalive.Start(runCtx)

	unsubscribe := session.Subscribe(func(evt model.Event) {
		o.removeMember(entry.ID, evt.AuthID)
	}, model.EventParticipantLeft)

	o.mu.Lock()
	o.info = info
	o.host = host
	o.session = session
	o.cancel = cancel
	o.keepalive = keepalive
	o.unsubscribe = unsubscribe
	o.mu.Unlock()

	o.setState(model.SessionRunning)
	logger.Info("session running",
		slog.String("allocation_id", info.AllocationID),
		slog.String("join_code", info.JoinCode),
		slog.String("entry_id", info.RegistryEntryID),
	)
	return nil
}

// removeMember drops a departed participant from the registry entry without blocking the caller
func (o *Orchestrator) removeMember(entryID string, authID model.AuthID) {
	if authID == "" {
		return
	}
	o.mu.RLock()
	if o.state != model.SessionRunning {
		o.mu.RUnlock()
		return
	}
	o.removals.Add(1)
	o.mu.RUnlock()

	go func() {
		defer o.removals.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.config.CleanupTimeout)
		defer cancel()

		err := o.registry.RemoveMember(ctx, entryID, authID)
		if err != nil && !errors.Is(err, model.ErrEntryNotFound) {
			o.logger.Warn("failed to remove registry member",
				slog.String("entry_id", entryID),
				slog.String("auth_id", string(authID)),
				slog.String("error", err.Error()),
			)
			return
		}
		o.logger.Debug("registry member removed",
			slog.String("entry_id", entryID),
			slog.String("auth_id", string(authID)),
		)
	}()
}

// Shutdown tears the running session down. Cleanup failures are logged, never
// returned. Calling it when idle is a no-op.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.State() == model.SessionIdle {
		return nil
	}
	o.setState(model.SessionShuttingDown)

	o.mu.Lock()
	info := o.info
	session := o.session
	cancel := o.cancel
	keepalive := o.keepalive
	unsubscribe := o.unsubscribe
	o.mu.Unlock()

	if keepalive != nil {
		keepalive.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	o.removals.Wait()

	if info.RegistryEntryID != "" {
		o.deleteEntry(ctx, info.RegistryEntryID)
	}
	if info.AllocationID != "" {
		o.releaseAllocation(ctx, info.AllocationID)
	}
	if o.transport != nil && info.AllocationID != "" {
		o.transport.Detach(info.AllocationID)
	}
	if session != nil {
		session.Close()
	}
	if cancel != nil {
		cancel()
	}

	o.mu.Lock()
	o.info = model.SessionInfo{}
	o.host = model.UserIdentity{}
	o.session = nil
	o.cancel = nil
	o.keepalive = nil
	o.unsubscribe = nil
	o.mu.Unlock()

	o.setState(model.SessionIdle)
	return nil
}

// Cleanup calls outlive cancellation of the caller's context
func (o *Orchestrator) deleteEntry(ctx context.Context, entryID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.CleanupTimeout)
	defer cancel()
	if err := o.registry.DeleteEntry(ctx, entryID); err != nil {
		o.logger.Warn("failed to delete registry entry",
			slog.String("entry_id", entryID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) releaseAllocation(ctx context.Context, allocationID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.CleanupTimeout)
	defer cancel()
	if err := o.relay.ReleaseAllocation(ctx, allocationID); err != nil {
		o.logger.Warn("failed to release relay allocation",
			slog.String("allocation_id", allocationID),
			slog.String("error", err.Error()),
		)
	}
}

func lobbyName(host model.UserIdentity) string {
	return host.DisplayName() + "'s Lobby"
}
