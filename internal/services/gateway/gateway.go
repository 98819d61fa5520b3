package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/events"
	"github.com/mcoot/tagmatch/internal/model"
)

// IdentityVerifier checks a signed identity token and returns the auth id it was issued for
type IdentityVerifier interface {
	VerifyIdentityToken(token string) (model.AuthID, error)
}

// Config holds gateway settings
type Config struct {
	// RequireIdentityToken denies payloads without a token when a verifier is set
	RequireIdentityToken bool
	// MaxConnections caps bound identities, zero means no cap
	MaxConnections int
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{MaxConnections: 20}
}

// Decision is the outcome of an approval request
type Decision struct {
	Approved bool
	Spawn    model.SpawnPoint
	Reason   model.DenyReason
}

// Err returns a RejectionError for denied decisions and nil otherwise
func (d Decision) Err() error {
	if d.Approved {
		return nil
	}
	return &model.RejectionError{Reason: d.Reason}
}

func deny(reason model.DenyReason) Decision {
	return Decision{Reason: reason}
}

// Gateway approves inbound connections and owns their identity bindings
type Gateway struct {
	config   Config
	bindings *Bindings
	spawns   SpawnProvider
	verifier IdentityVerifier
	bus      *events.Bus
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Gateway. verifier may be nil.
func New(
	config Config,
	spawns SpawnProvider,
	verifier IdentityVerifier,
	bus *events.Bus,
	clk clock.Clock,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		config:   config,
		bindings: NewBindings(),
		spawns:   spawns,
		verifier: verifier,
		bus:      bus,
		clock:    clk,
		logger:   logger.With(slog.String("component", "connection-gateway")),
	}
}

// Approve decides whether a connection may join, binding its identity on success
func (g *Gateway) Approve(connID model.ConnectionID, payload []byte) Decision {
	logger := g.logger.With(slog.Uint64("connection_id", uint64(connID)))

	var identity model.UserIdentity
	if err := json.Unmarshal(payload, &identity); err != nil {
		logger.Warn("denied connection with malformed payload", slog.String("error", err.Error()))
		return deny(model.DenyInvalidPayload)
	}
	if identity.AuthID == "" {
		logger.Warn("denied connection without auth id")
		return deny(model.DenyInvalidPayload)
	}
	if !g.verifyToken(identity, logger) {
		return deny(model.DenyInvalidPayload)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return deny(model.DenySessionClosed)
	}
	if limit := g.config.MaxConnections; limit > 0 && g.bindings.Len() >= limit {
		g.mu.Unlock()
		logger.Warn("denied connection to full match", slog.Int("max_connections", limit))
		return deny(model.DenyMatchFull)
	}
	if err := g.bindings.Bind(connID, identity); err != nil {
		g.mu.Unlock()
		logger.Warn("denied duplicate identity", slog.String("auth_id", string(identity.AuthID)))
		return deny(model.DenyDuplicateIdentity)
	}
	spawn := g.spawns.Next()
	g.mu.Unlock()

	logger.Info("approved connection",
		slog.String("auth_id", string(identity.AuthID)),
		slog.String("username", identity.Username),
	)

	g.bus.Publish(model.Event{
		Type:         model.EventParticipantJoined,
		Timestamp:    g.clock.Now(),
		ConnectionID: connID,
		AuthID:       identity.AuthID,
		Username:     identity.DisplayName(),
		Payload:      model.ParticipantJoinedPayload{Spawn: spawn},
	})

	return Decision{Approved: true, Spawn: spawn}
}

func (g *Gateway) verifyToken(identity model.UserIdentity, logger *slog.Logger) bool {
	if g.verifier == nil {
		return true
	}
	if identity.IdentityToken == "" {
		if g.config.RequireIdentityToken {
			logger.Warn("denied connection without identity token")
			return false
		}
		return true
	}

	subject, err := g.verifier.VerifyIdentityToken(identity.IdentityToken)
	if err != nil {
		logger.Warn("denied connection with invalid identity token", slog.String("error", err.Error()))
		return false
	}
	if subject != identity.AuthID {
		logger.Warn("denied connection whose token belongs to another identity",
			slog.String("auth_id", string(identity.AuthID)),
			slog.String("token_subject", string(subject)),
		)
		return false
	}
	return true
}

// Disconnect removes the binding for a connection and announces the departure.
// Returns false if the connection was not bound; repeated calls are no-ops.
func (g *Gateway) Disconnect(connID model.ConnectionID) bool {
	identity, ok := g.bindings.Unbind(connID)
	if !ok {
		return false
	}

	g.logger.Info("participant left",
		slog.Uint64("connection_id", uint64(connID)),
		slog.String("auth_id", string(identity.AuthID)),
	)

	g.bus.Publish(model.Event{
		Type:         model.EventParticipantLeft,
		Timestamp:    g.clock.Now(),
		ConnectionID: connID,
		AuthID:       identity.AuthID,
		Username:     identity.DisplayName(),
	})
	return true
}

// GetIdentity returns the identity bound to a connection
func (g *Gateway) GetIdentity(connID model.ConnectionID) (model.UserIdentity, error) {
	identity, ok := g.bindings.Lookup(connID)
	if !ok {
		return model.UserIdentity{}, model.ErrIdentityNotFound
	}
	return identity, nil
}

// IsConnected reports whether the connection is bound
func (g *Gateway) IsConnected(connID model.ConnectionID) bool {
	_, ok := g.bindings.Lookup(connID)
	return ok
}

// ConnectedIDs returns every bound connection id
func (g *Gateway) ConnectedIDs() []model.ConnectionID {
	return g.bindings.ConnectionIDs()
}

// Count returns the number of bound connections
func (g *Gateway) Count() int {
	return g.bindings.Len()
}

// Close denies all further connections and drops every binding.
// ParticipantLeft is published for each binding that was still live.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	for _, id := range g.bindings.ConnectionIDs() {
		g.Disconnect(id)
	}
	g.logger.Info("gateway closed")
}
