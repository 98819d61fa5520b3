package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/dependencies/random"
	"github.com/mcoot/tagmatch/internal/model"
)

// Config holds in-process relay settings
type Config struct {
	// PublicURL is the externally reachable base URL of the host's HTTP server
	PublicURL string
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		PublicURL: "http://localhost:8080",
	}
}

// Memory is an in-process relay. Allocations point clients at the host's
// own websocket endpoint.
type Memory struct {
	cfg    Config
	clock  clock.Clock
	random random.Random
	logger *slog.Logger

	mu          sync.RWMutex
	allocations map[string]*Allocation
	byJoinCode  map[string]string
}

// Ensure Memory implements Service
var _ Service = (*Memory)(nil)

// NewMemory creates an empty in-process relay
func NewMemory(cfg Config, clk clock.Clock, rng random.Random, logger *slog.Logger) *Memory {
	return &Memory{
		cfg:         cfg,
		clock:       clk,
		random:      rng,
		logger:      logger.With(slog.String("component", "relay")),
		allocations: make(map[string]*Allocation),
		byJoinCode:  make(map[string]string),
	}
}

// CreateAllocation reserves a relay path for up to maxConnections clients
func (m *Memory) CreateAllocation(ctx context.Context, maxConnections int) (*Allocation, error) {
	if maxConnections <= 0 {
		return nil, fmt.Errorf("%w: max connections must be positive", model.ErrAllocationFailure)
	}

	id := uuid.NewString()
	endpoint, err := websocketEndpoint(m.cfg.PublicURL, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAllocationFailure, err)
	}

	alloc := &Allocation{
		ID:             id,
		MaxConnections: maxConnections,
		Endpoint:       endpoint,
		CreatedAt:      m.clock.Now(),
	}

	m.mu.Lock()
	m.allocations[id] = alloc
	m.mu.Unlock()

	m.logger.Info("allocation created", slog.String("allocation_id", id), slog.Int("max_connections", maxConnections))
	return copyAllocation(alloc), nil
}

// GetJoinCode returns the allocation's join code, generating one on first request
func (m *Memory) GetJoinCode(ctx context.Context, allocationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, ok := m.allocations[allocationID]
	if !ok {
		return "", fmt.Errorf("%w: %w", model.ErrJoinCodeFailure, model.ErrAllocationNotFound)
	}
	if alloc.JoinCode != "" {
		return alloc.JoinCode, nil
	}

	var code string
	for {
		code = m.random.String(JoinCodeLength, JoinCodeAlphabet)
		if _, taken := m.byJoinCode[code]; !taken && code != "" {
			break
		}
	}

	alloc.JoinCode = code
	m.byJoinCode[code] = allocationID
	return code, nil
}

// JoinAllocation resolves a join code to its allocation
func (m *Memory) JoinAllocation(ctx context.Context, joinCode string) (*Allocation, error) {
	code := strings.ToUpper(strings.TrimSpace(joinCode))

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byJoinCode[code]
	if !ok {
		return nil, model.ErrInvalidJoinCode
	}
	return copyAllocation(m.allocations[id]), nil
}

// ReleaseAllocation frees an allocation and its join code. Releasing twice is a no-op.
func (m *Memory) ReleaseAllocation(ctx context.Context, allocationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, ok := m.allocations[allocationID]
	if !ok {
		return nil
	}
	delete(m.allocations, allocationID)
	if alloc.JoinCode != "" {
		delete(m.byJoinCode, alloc.JoinCode)
	}

	m.logger.Info("allocation released", slog.String("allocation_id", allocationID))
	return nil
}

// Get returns the allocation with the given id
func (m *Memory) Get(allocationID string) (*Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alloc, ok := m.allocations[allocationID]
	if !ok {
		return nil, model.ErrAllocationNotFound
	}
	return copyAllocation(alloc), nil
}

func copyAllocation(a *Allocation) *Allocation {
	out := *a
	return &out
}

// websocketEndpoint converts an http(s) base URL into the relay websocket URL
func websocketEndpoint(publicURL, allocationID string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/relay/" + allocationID
	return u.String(), nil
}
