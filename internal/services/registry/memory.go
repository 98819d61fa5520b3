package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/model"
)

type memoryEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// Memory is an in-process registry. Entries expire EntryTTL after their last heartbeat.
type Memory struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// Ensure Memory implements Service
var _ Service = (*Memory)(nil)

// NewMemory creates an empty registry
func NewMemory(cfg Config, clk clock.Clock, logger *slog.Logger) *Memory {
	return &Memory{
		cfg:     cfg,
		clock:   clk,
		logger:  logger.With(slog.String("component", "registry")),
		entries: make(map[string]*memoryEntry),
	}
}

func (m *Memory) CreateEntry(ctx context.Context, host model.AuthID, name string, maxSize int, data map[string]DataValue) (*Entry, error) {
	if err := validateCreate(host, name, maxSize); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	entry := &Entry{
		ID:            uuid.NewString(),
		Name:          name,
		HostID:        host,
		MaxSize:       maxSize,
		Members:       []model.AuthID{host},
		Data:          copyData(data),
		CreatedAt:     now,
		LastHeartbeat: now,
	}

	m.mu.Lock()
	m.entries[entry.ID] = &memoryEntry{entry: entry, expiresAt: now.Add(m.cfg.EntryTTL)}
	m.mu.Unlock()

	m.logger.Info("entry created", slog.String("entry_id", entry.ID), slog.String("name", name))
	return entry.VisibleTo(host), nil
}

func (m *Memory) Heartbeat(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.liveLocked(entryID)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	e.entry.LastHeartbeat = now
	e.expiresAt = now.Add(m.cfg.EntryTTL)
	return nil
}

func (m *Memory) DeleteEntry(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.liveLocked(entryID); err != nil {
		return err
	}
	delete(m.entries, entryID)
	m.logger.Info("entry deleted", slog.String("entry_id", entryID))
	return nil
}

func (m *Memory) AddMember(ctx context.Context, entryID string, authID model.AuthID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.liveLocked(entryID)
	if err != nil {
		return nil, err
	}
	if !e.entry.IsMember(authID) {
		if len(e.entry.Members) >= e.entry.MaxSize {
			return nil, model.ErrEntryFull
		}
		e.entry.Members = append(e.entry.Members, authID)
	}
	return e.entry.VisibleTo(authID), nil
}

func (m *Memory) RemoveMember(ctx context.Context, entryID string, authID model.AuthID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.liveLocked(entryID)
	if err != nil {
		return err
	}
	for i, member := range e.entry.Members {
		if member == authID {
			e.entry.Members = append(e.entry.Members[:i:i], e.entry.Members[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) GetEntry(ctx context.Context, entryID string, viewer model.AuthID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.liveLocked(entryID)
	if err != nil {
		return nil, err
	}
	return e.entry.VisibleTo(viewer), nil
}

func (m *Memory) ListEntries(ctx context.Context, viewer model.AuthID) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	out := make([]*Entry, 0, len(m.entries))
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
			continue
		}
		out = append(out, e.entry.VisibleTo(viewer))
	}
	sortEntries(out)
	return out, nil
}

// liveLocked returns the entry, dropping it if it has expired
func (m *Memory) liveLocked(entryID string) (*memoryEntry, error) {
	e, ok := m.entries[entryID]
	if !ok {
		return nil, model.ErrEntryNotFound
	}
	if m.clock.Now().After(e.expiresAt) {
		delete(m.entries, entryID)
		return nil, model.ErrEntryNotFound
	}
	return e, nil
}

func validateCreate(host model.AuthID, name string, maxSize int) error {
	if host == "" || name == "" || maxSize <= 0 {
		return fmt.Errorf("%w: host, name and a positive max size are required", model.ErrRegistryFailure)
	}
	return nil
}

func copyData(data map[string]DataValue) map[string]DataValue {
	out := make(map[string]DataValue, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
