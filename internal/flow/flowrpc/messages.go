// Package flowrpc defines the FlowService Connect API: procedure names,
// request and response messages, the handler mount and a typed client.
// Messages travel as JSON using connectutil.JSONCodec.
package flowrpc

import (
	"time"

	"github.com/voicetyped/supportflow/pkg/flow"
)

type ProcessTurnRequest struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Platform  string         `json:"platform"`
	Message   string         `json:"message"`
	Intent    string         `json:"intent,omitempty"`
	Entities  map[string]any `json:"entities,omitempty"`
}

type ProcessTurnResponse struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	Response         string   `json:"response"`
	RequiresHuman    bool     `json:"requires_human"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	NextQuestions    []string `json:"next_questions,omitempty"`
	EscalationReason string   `json:"escalation_reason,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	CurrentState     string   `json:"current_state,omitempty"`
	ShouldContinue   bool     `json:"should_continue"`
}

type GetSessionStateRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionStateResponse struct {
	Session flow.SessionSnapshot `json:"session"`
}

type ResetSessionRequest struct {
	SessionID string `json:"session_id"`
}

type ResetSessionResponse struct {
	Reset bool `json:"reset"`
}

type ForceStateTransitionRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

type ForceStateTransitionResponse struct {
	Applied bool `json:"applied"`
}

type CleanupInactiveSessionsRequest struct {
	MaxInactiveMinutes int `json:"max_inactive_minutes"`
}

type CleanupInactiveSessionsResponse struct {
	Removed int `json:"removed"`
}

type GetFlowMetricsRequest struct{}

type GetFlowMetricsResponse struct {
	Metrics flow.FlowMetrics `json:"metrics"`
}

type GetSessionMetricsRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionMetricsResponse struct {
	Metrics flow.SessionMetrics `json:"metrics"`
}

type ListOpenTicketsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// TicketSummary is the operator-facing view of a hand-off ticket.
type TicketSummary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Platform  string    `json:"platform"`
	Reason    string    `json:"reason"`
	Priority  string    `json:"priority"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type ListOpenTicketsResponse struct {
	Tickets []TicketSummary `json:"tickets"`
}

type CloseTicketRequest struct {
	TicketID string `json:"ticket_id"`
}

type CloseTicketResponse struct{}
