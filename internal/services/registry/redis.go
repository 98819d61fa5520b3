package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/model"
)

const keyPrefix = "tagmatch:registry"

func entryKey(id string) string {
	return fmt.Sprintf("%s:entry:%s", keyPrefix, id)
}

// membersKey holds the SET of member auth ids of an entry
func membersKey(id string) string {
	return fmt.Sprintf("%s:members:%s", keyPrefix, id)
}

// indexKey holds the SET of all entry ids; stale ids are pruned on list
func indexKey() string {
	return keyPrefix + ":entries"
}

// Redis is a registry backed by Redis. Entry and member keys carry the
// entry TTL, which Heartbeat refreshes.
type Redis struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// Ensure Redis implements Service
var _ Service = (*Redis)(nil)

// NewRedis creates a Redis-backed registry over an existing client
func NewRedis(client *redis.Client, cfg Config, clk clock.Clock, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		cfg:    cfg,
		clock:  clk,
		logger: logger.With(slog.String("component", "registry")),
	}
}

func (r *Redis) CreateEntry(ctx context.Context, host model.AuthID, name string, maxSize int, data map[string]DataValue) (*Entry, error) {
	if err := validateCreate(host, name, maxSize); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	entry := &Entry{
		ID:            uuid.NewString(),
		Name:          name,
		HostID:        host,
		MaxSize:       maxSize,
		Data:          copyData(data),
		CreatedAt:     now,
		LastHeartbeat: now,
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, entryKey(entry.ID), payload, r.cfg.EntryTTL)
	pipe.SAdd(ctx, membersKey(entry.ID), string(host))
	pipe.Expire(ctx, membersKey(entry.ID), r.cfg.EntryTTL)
	pipe.SAdd(ctx, indexKey(), entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRegistryFailure, err)
	}

	r.logger.Info("entry created", slog.String("entry_id", entry.ID), slog.String("name", name))
	entry.Members = []model.AuthID{host}
	return entry.VisibleTo(host), nil
}

func (r *Redis) Heartbeat(ctx context.Context, entryID string) error {
	entry, err := r.load(ctx, entryID)
	if err != nil {
		return err
	}
	entry.LastHeartbeat = r.clock.Now()
	entry.Members = nil

	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, entryKey(entryID), payload, r.cfg.EntryTTL)
	pipe.Expire(ctx, membersKey(entryID), r.cfg.EntryTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) DeleteEntry(ctx context.Context, entryID string) error {
	removed, err := r.client.Del(ctx, entryKey(entryID), membersKey(entryID)).Result()
	if err != nil {
		return err
	}
	_ = r.client.SRem(ctx, indexKey(), entryID).Err()
	if removed == 0 {
		return model.ErrEntryNotFound
	}
	r.logger.Info("entry deleted", slog.String("entry_id", entryID))
	return nil
}

func (r *Redis) AddMember(ctx context.Context, entryID string, authID model.AuthID) (*Entry, error) {
	entry, err := r.load(ctx, entryID)
	if err != nil {
		return nil, err
	}

	added, err := r.client.SAdd(ctx, membersKey(entryID), string(authID)).Result()
	if err != nil {
		return nil, err
	}
	if added > 0 {
		count, err := r.client.SCard(ctx, membersKey(entryID)).Result()
		if err != nil {
			return nil, err
		}
		if int(count) > entry.MaxSize {
			_ = r.client.SRem(ctx, membersKey(entryID), string(authID)).Err()
			return nil, model.ErrEntryFull
		}
		_ = r.client.Expire(ctx, membersKey(entryID), r.cfg.EntryTTL).Err()
	}

	if entry.Members, err = r.members(ctx, entry); err != nil {
		return nil, err
	}
	return entry.VisibleTo(authID), nil
}

func (r *Redis) RemoveMember(ctx context.Context, entryID string, authID model.AuthID) error {
	if _, err := r.load(ctx, entryID); err != nil {
		return err
	}
	return r.client.SRem(ctx, membersKey(entryID), string(authID)).Err()
}

func (r *Redis) GetEntry(ctx context.Context, entryID string, viewer model.AuthID) (*Entry, error) {
	entry, err := r.load(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Members, err = r.members(ctx, entry); err != nil {
		return nil, err
	}
	return entry.VisibleTo(viewer), nil
}

func (r *Redis) ListEntries(ctx context.Context, viewer model.AuthID) ([]*Entry, error) {
	ids, err := r.client.SMembers(ctx, indexKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := r.GetEntry(ctx, id, viewer)
		if errors.Is(err, model.ErrEntryNotFound) {
			// Expired entries leave their id behind in the index
			_ = r.client.SRem(ctx, indexKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	sortEntries(out)
	return out, nil
}

func (r *Redis) load(ctx context.Context, entryID string) (*Entry, error) {
	data, err := r.client.Get(ctx, entryKey(entryID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrEntryNotFound
		}
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// members returns the entry's members with the host first, the rest sorted
func (r *Redis) members(ctx context.Context, entry *Entry) ([]model.AuthID, error) {
	raw, err := r.client.SMembers(ctx, membersKey(entry.ID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Slice(raw, func(i, j int) bool {
		hostI, hostJ := raw[i] == string(entry.HostID), raw[j] == string(entry.HostID)
		if hostI != hostJ {
			return hostI
		}
		return raw[i] < raw[j]
	})

	out := make([]model.AuthID, 0, len(raw))
	for _, m := range raw {
		out = append(out, model.AuthID(m))
	}
	return out, nil
}
