package registry

import (
	"context"
	"time"

	"github.com/mcoot/tagmatch/internal/model"
)

// Visibility controls who can read an entry data value
type Visibility string

const (
	VisibilityPublic Visibility = "public" // Anyone listing entries
	VisibilityMember Visibility = "member" // Only members of the entry
)

// DataKeyJoinCode is the entry data key carrying the relay join code
const DataKeyJoinCode = "joinCode"

// DataValue is one piece of entry metadata
type DataValue struct {
	Value      string     `json:"value"`
	Visibility Visibility `json:"visibility"`
}

// Entry advertises one joinable match
type Entry struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	HostID        model.AuthID         `json:"host_id"`
	MaxSize       int                  `json:"max_size"`
	Members       []model.AuthID       `json:"members"`
	Data          map[string]DataValue `json:"data"`
	CreatedAt     time.Time            `json:"created_at"`
	LastHeartbeat time.Time            `json:"last_heartbeat"`
}

// IsMember reports whether authID is a member of the entry
func (e *Entry) IsMember(authID model.AuthID) bool {
	for _, m := range e.Members {
		if m == authID {
			return true
		}
	}
	return false
}

// VisibleTo returns a copy of the entry with member-only data removed
// unless viewer is a member
func (e *Entry) VisibleTo(viewer model.AuthID) *Entry {
	out := *e
	out.Members = append([]model.AuthID(nil), e.Members...)
	out.Data = make(map[string]DataValue, len(e.Data))

	member := viewer != "" && e.IsMember(viewer)
	for k, v := range e.Data {
		if v.Visibility == VisibilityMember && !member {
			continue
		}
		out.Data[k] = v
	}
	return &out
}

// Service is the matchmaking registry collaborator
type Service interface {
	// CreateEntry registers a match with host as its first member
	CreateEntry(ctx context.Context, host model.AuthID, name string, maxSize int, data map[string]DataValue) (*Entry, error)
	// Heartbeat keeps an entry alive
	Heartbeat(ctx context.Context, entryID string) error
	DeleteEntry(ctx context.Context, entryID string) error
	// AddMember joins authID to the entry and returns the member view
	AddMember(ctx context.Context, entryID string, authID model.AuthID) (*Entry, error)
	RemoveMember(ctx context.Context, entryID string, authID model.AuthID) error
	// GetEntry returns the entry as seen by viewer
	GetEntry(ctx context.Context, entryID string, viewer model.AuthID) (*Entry, error)
	// ListEntries returns live entries as seen by viewer, oldest first
	ListEntries(ctx context.Context, viewer model.AuthID) ([]*Entry, error)
}

// Config holds registry settings
type Config struct {
	// EntryTTL is how long an entry lives without a heartbeat
	EntryTTL time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		EntryTTL: 30 * time.Second,
	}
}
