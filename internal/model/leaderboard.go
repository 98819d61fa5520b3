package model

// LeaderboardEntry is one participant's standing
type LeaderboardEntry struct {
	ConnectionID  ConnectionID `json:"connection_id"`
	Username      string       `json:"username"`
	TaggedSeconds int          `json:"tagged_seconds"`
}
