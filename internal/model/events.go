package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Connection events
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"

	// Tag events
	EventTagStatusChanged  EventType = "tag_status_changed"
	EventTaggedTimeChanged EventType = "tagged_time_changed"

	// Match clock events
	EventTimerChanged   EventType = "timer_changed"
	EventCountdownBegan EventType = "countdown_began"
	EventMatchStarted   EventType = "match_started"
	EventMatchEnded     EventType = "match_ended"
	EventPhaseChanged   EventType = "phase_changed"

	// Leaderboard events
	EventStandingChanged EventType = "standing_changed"
)

// Event is the base structure for all events
type Event struct {
	Type         EventType
	Timestamp    time.Time
	ConnectionID ConnectionID // Zero for match-wide events
	AuthID       AuthID
	Username     string
	Payload      any // Type-specific data
}

// ParticipantJoinedPayload contains data for participant joined events
type ParticipantJoinedPayload struct {
	Spawn SpawnPoint `json:"spawn"`
}

// TagStatusChangedPayload contains data for tag status events
type TagStatusChangedPayload struct {
	Previous TagStatus `json:"previous"`
	Current  TagStatus `json:"current"`
}

// TaggedTimeChangedPayload contains data for tagged time events
type TaggedTimeChangedPayload struct {
	Seconds float64 `json:"seconds"`
}

// TimerChangedPayload carries the replicated timer state
type TimerChangedPayload struct {
	State MatchTimerState `json:"state"`
}

// PhaseChangedPayload contains data for phase change events
type PhaseChangedPayload struct {
	Previous MatchPhase `json:"previous"`
	Current  MatchPhase `json:"current"`
}

// StandingChangePayload carries one leaderboard structural change
type StandingChangePayload struct {
	Change string           `json:"change"` // add, remove or update
	Index  int              `json:"index"`
	Entry  LeaderboardEntry `json:"entry"`
}
