package model

import "time"

// PlayerID uniquely identifies a player account.
// The player id doubles as the AuthID presented on connection.
type PlayerID string

// AuthID returns the durable identity for this player id
func (id PlayerID) AuthID() AuthID {
	return AuthID(id)
}

// Player represents an authenticated account
type Player struct {
	ID          PlayerID
	DisplayName string
	IsGuest     bool // true for unregistered players
	CreatedAt   time.Time
}

// RegisteredPlayer extends Player with authentication data
// Stored separately for security (password never in memory with session)
type RegisteredPlayer struct {
	PlayerID     PlayerID
	Username     string // login username (immutable)
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an authenticated API session
type Session struct {
	Token     string    `json:"token"`
	PlayerID  PlayerID  `json:"player_id"`
	Player    Player    `json:"player"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
