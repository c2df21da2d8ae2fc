package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	TurnProcessed     EventType = "flow.turn.processed"
	StateTransition   EventType = "flow.state.transition"
	TransitionRefused EventType = "flow.transition.refused"
	Escalated         EventType = "flow.escalated"
	SessionReset      EventType = "flow.session.reset"
	SessionForced     EventType = "flow.session.forced"
	SessionsCleaned   EventType = "flow.sessions.cleaned"
	PhrasesReloaded   EventType = "phrases.reloaded"
	SystemError       EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TurnProcessedData is the payload for flow.turn.processed events.
type TurnProcessedData struct {
	UserID       string `json:"user_id"`
	Platform     string `json:"platform"`
	Intent       string `json:"intent,omitempty"`
	State        string `json:"state"`
	MessageCount int    `json:"message_count"`
}

// StateTransitionData is the payload for flow.state.transition and
// flow.session.forced events.
type StateTransitionData struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Requested string `json:"requested,omitempty"`
	Forced    bool   `json:"forced,omitempty"`
}

// TransitionRefusedData is the payload for flow.transition.refused events.
type TransitionRefusedData struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
}

// EscalationData is the payload for flow.escalated events.
type EscalationData struct {
	UserID          string          `json:"user_id"`
	Platform        string          `json:"platform"`
	Reason          string          `json:"reason"`
	Priority        string          `json:"priority"`
	State           string          `json:"state"`
	Response        string          `json:"response"`
	OperatorContext json.RawMessage `json:"operator_context,omitempty"`
}

// SessionsCleanedData is the payload for flow.sessions.cleaned events.
type SessionsCleanedData struct {
	MaxInactiveMinutes int `json:"max_inactive_minutes"`
	Removed            int `json:"removed"`
}

// PhrasesReloadedData is the payload for phrases.reloaded events.
type PhrasesReloadedData struct {
	Catalog string `json:"catalog"`
	Version string `json:"version"`
	Keys    int    `json:"keys"`
}

// SystemErrorData is the payload for error events.
type SystemErrorData struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}
