package model

import (
	"time"
)

// SessionState represents the lifecycle state of the shared terminal session.
type SessionState string

const (
	SessionStateNotStarted SessionState = "not_started"
	SessionStateRunning    SessionState = "running"
	SessionStateExited     SessionState = "exited"
	SessionStateRestarting SessionState = "restarting"
	SessionStateClosed     SessionState = "closed"
)

// SessionStatus is a point-in-time view of the session.
type SessionStatus struct {
	State     SessionState `json:"state"`
	ExitCode  *int         `json:"exitCode,omitempty"`
	PID       *int         `json:"pid,omitempty"`
	Rows      uint16       `json:"rows"`
	Cols      uint16       `json:"cols"`
	Clients   int          `json:"clients"`
	Restarts  int          `json:"restarts"`
	StartedAt *time.Time   `json:"startedAt,omitempty"`
}

// Duration returns how long the current program has been running.
func (s *SessionStatus) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	return time.Since(*s.StartedAt)
}

// EndReason records why a run ended.
type EndReason string

const (
	EndReasonExit     EndReason = "exit"
	EndReasonRestart  EndReason = "restart"
	EndReasonShutdown EndReason = "shutdown"
)

// Run is one spawned instance of the program.
type Run struct {
	ID        string     `json:"id"`
	PID       int        `json:"pid"`
	Command   string     `json:"command"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	EndReason EndReason  `json:"endReason,omitempty"`
}
