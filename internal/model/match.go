package model

import "time"

// MatchPhase is the phase of the match clock
type MatchPhase string

const (
	PhaseStopped   MatchPhase = "stopped"
	PhaseCountdown MatchPhase = "countdown"
	PhaseRunning   MatchPhase = "running"
)

// MatchTimerState is the replicated state of the match clock
type MatchTimerState struct {
	EndTime   time.Time `json:"end_time"`
	IsRunning bool      `json:"is_running"`
}

// Remaining returns the time left on the clock at now
func (s MatchTimerState) Remaining(now time.Time) time.Duration {
	return s.EndTime.Sub(now)
}
