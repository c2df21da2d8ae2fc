package api

import "encoding/json"

// TicketResponse is the API view of a hand-off ticket.
type TicketResponse struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	UserID          string          `json:"user_id"`
	Platform        string          `json:"platform"`
	Reason          string          `json:"reason"`
	Priority        string          `json:"priority"`
	State           string          `json:"state"`
	Status          string          `json:"status"`
	Response        string          `json:"response,omitempty"`
	OperatorContext json.RawMessage `json:"operator_context,omitempty"`
	NotifyAttempts  int             `json:"notify_attempts"`
	NotifyError     string          `json:"notify_error,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
