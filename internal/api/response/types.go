package response

import (
	"time"

	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/match"
	"github.com/mcoot/tagmatch/internal/services/registry"
)

// Player represents a player in API responses
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsGuest     bool   `json:"is_guest"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		ID:          string(p.ID),
		DisplayName: p.DisplayName,
		IsGuest:     p.IsGuest,
	}
}

// AuthResponse is the response for authentication endpoints.
// IdentityToken is only present when the server signs identity tokens.
type AuthResponse struct {
	Player        Player `json:"player"`
	SessionToken  string `json:"session_token"`
	IdentityToken string `json:"identity_token,omitempty"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *model.Session, identityToken string) AuthResponse {
	return AuthResponse{
		Player:        PlayerFromModel(&s.Player),
		SessionToken:  s.Token,
		IdentityToken: identityToken,
	}
}

// Allocation is a relay allocation resolved from a join code
type Allocation struct {
	AllocationID   string `json:"allocation_id"`
	Endpoint       string `json:"endpoint"`
	MaxConnections int    `json:"max_connections"`
}

// Entry is a registry entry as seen by the requesting player
type Entry struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	HostID     string            `json:"host_id"`
	MaxSize    int               `json:"max_size"`
	MemberSize int               `json:"member_size"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// EntryFromModel flattens entry data to its visible values
func EntryFromModel(e *registry.Entry) Entry {
	var data map[string]string
	if len(e.Data) > 0 {
		data = make(map[string]string, len(e.Data))
		for k, v := range e.Data {
			data[k] = v.Value
		}
	}
	return Entry{
		ID:         e.ID,
		Name:       e.Name,
		HostID:     string(e.HostID),
		MaxSize:    e.MaxSize,
		MemberSize: len(e.Members),
		Data:       data,
		CreatedAt:  e.CreatedAt,
	}
}

// EntryList is the response for listing registry entries
type EntryList struct {
	Entries []Entry `json:"entries"`
}

// MatchState describes the hosted match. Session is only shown to the host.
type MatchState struct {
	State       string             `json:"state"`
	Host        string             `json:"host,omitempty"`
	Session     *model.SessionInfo `json:"session,omitempty"`
	Connections int                `json:"connections"`
	Match       *match.Snapshot    `json:"match,omitempty"`
}

// Leaderboard is the response for match standings
type Leaderboard struct {
	Standings []model.LeaderboardEntry `json:"standings"`
}

// ContactResult reports whether an injected contact transferred the tag
type ContactResult struct {
	Transferred bool `json:"transferred"`
}
