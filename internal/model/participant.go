package model

import "time"

// TagStatus is the replicated tag state of a participant
type TagStatus string

const (
	TagStatusNone     TagStatus = "none"     // Cooling down after losing the tag
	TagStatusTaggable TagStatus = "taggable" // May take the tag on contact
	TagStatusTagged   TagStatus = "tagged"   // Currently "it"
)

// Participant is one connected player's in-match state
type Participant struct {
	ConnectionID ConnectionID `json:"connection_id"`
	Identity     UserIdentity `json:"identity"`
	TagStatus    TagStatus    `json:"tag_status"`

	// CooldownRemaining is how long until a None participant becomes Taggable
	CooldownRemaining time.Duration `json:"cooldown_remaining"`

	// AccumulatedTaggedSeconds includes only flushed time
	AccumulatedTaggedSeconds float64 `json:"accumulated_tagged_seconds"`

	// TagStartedAt is set if and only if TagStatus is Tagged
	TagStartedAt *time.Time `json:"tag_started_at,omitempty"`
}

// IsTagged returns true if the participant is currently tagged
func (p Participant) IsTagged() bool {
	return p.TagStatus == TagStatusTagged
}
