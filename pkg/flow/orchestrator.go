package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicetyped/supportflow/pkg/events"
)

const (
	serviceFallbackText = "Извините, произошла ошибка. Попробуйте переформулировать вопрос."
	nextQuestionSources = 3
	reasonLoopWindow    = 8
)

// Outcome is the caller-facing verdict for one turn.
type Outcome struct {
	Response         string
	RequiresHuman    bool
	SuggestedActions []string
	NextQuestions    []string
	EscalationReason string
	Priority         string
	CurrentState     string
	ShouldContinue   bool
	Failure          FailureReason
}

// OK reports whether the turn was handled without an internal fault.
func (o Outcome) OK() bool { return o.Failure == FailureNone }

// FallbackOutcome is the universal answer when a turn cannot be handled.
func FallbackOutcome(reason FailureReason) Outcome {
	return Outcome{
		Response:         serviceFallbackText,
		RequiresHuman:    true,
		EscalationReason: ReasonSystemError,
		Priority:         PriorityHigh,
		ShouldContinue:   true,
		Failure:          reason,
	}
}

var urgentTerminalReasons = map[string]bool{
	ReasonComplaint:      true,
	ReasonComplexIssue:   true,
	ReasonTechnicalIssue: true,
}

var humanIntents = map[string]bool{
	ReasonComplaint:      true,
	ReasonRefundRequest:  true,
	ReasonTechnicalIssue: true,
}

var nextQuestionRules = []struct{ verb, question string }{
	{"создать", "Хотите создать новый заказ?"},
	{"проверить", "Нужно проверить статус заказа?"},
	{"изменить", "Требуется что-то изменить?"},
	{"связаться", "Нужна помощь оператора?"},
}

// Orchestrator turns engine results into outcomes and exposes the admin
// surface over the engine.
type Orchestrator struct {
	engine    *Engine
	publisher *events.Publisher
}

// NewOrchestrator wraps engine. pub may be nil.
func NewOrchestrator(engine *Engine, pub *events.Publisher) *Orchestrator {
	return &Orchestrator{engine: engine, publisher: pub}
}

// Engine returns the wrapped engine.
func (o *Orchestrator) Engine() *Engine { return o.engine }

// ProcessTurn routes one turn and derives the escalation verdict. It never
// returns an error; failures become FallbackOutcome.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "flow orchestrator fault recovered",
				slog.String("session_id", req.SessionID), slog.String("error", fmt.Sprint(r)))
			out = FallbackOutcome(FailureInternal)
		}
	}()

	step := o.engine.Process(ctx, req)
	res, snap := step.Result, step.Session
	if !res.OK() {
		return FallbackOutcome(res.Failure)
	}

	out = Outcome{
		Response:         res.Response,
		SuggestedActions: res.SuggestedActions,
		NextQuestions:    nextQuestions(snap.AvailableActions),
		CurrentState:     snap.CurrentState,
		ShouldContinue:   res.ShouldContinue,
	}
	out.RequiresHuman = requiresHuman(res, snap)
	if out.RequiresHuman {
		out.EscalationReason = escalationReason(res, snap)
		out.Priority, _ = res.Metadata[MetaPriority].(string)
		if out.Priority == "" {
			out.Priority = snapshotPriority(snap, out.EscalationReason)
		}
		// One escalation event per hand-off; later turns still report
		// RequiresHuman but open no new ticket.
		if o.engine.MarkHandedOff(req.SessionID) {
			o.emitEscalation(ctx, req, res, out)
		}
	}

	slog.DebugContext(ctx, "turn processed",
		slog.String("session_id", req.SessionID),
		slog.String("state", out.CurrentState),
		slog.Bool("requires_human", out.RequiresHuman),
		slog.String("escalation_reason", out.EscalationReason))
	return out
}

// requiresHuman: an explicit hand-off, the session predicate, or a
// terminal result carrying an urgent reason.
func requiresHuman(res StateResult, snap SessionSnapshot) bool {
	if res.EscalatedToHuman() {
		return true
	}
	if snap.ShouldEscalate {
		return true
	}
	return !res.ShouldContinue && urgentTerminalReasons[res.Reason()]
}

func escalationReason(res StateResult, snap SessionSnapshot) string {
	if r := res.Reason(); r != "" {
		return r
	}
	if snap.MessageCount > escalateAfterMessages {
		return ReasonLongConversation
	}
	if len(snap.StateHistory) > reasonLoopWindow && distinctNames(snap.StateHistory, reasonLoopWindow) <= loopMaxDistinct {
		return ReasonLoop
	}
	if humanIntents[snap.CurrentIntent] {
		return snap.CurrentIntent
	}
	return ReasonGeneral
}

func snapshotPriority(snap SessionSnapshot, reason string) string {
	switch {
	case highPriorityReasons[reason]:
		return PriorityHigh
	case snap.MessageCount > mediumAfterMessages:
		return PriorityMedium
	}
	return PriorityNormal
}

func distinctNames(history []string, n int) int {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	seen := make(map[string]struct{}, len(history))
	for _, s := range history {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// nextQuestions maps the first few available actions to follow-up
// questions. It returns nil when none apply.
func nextQuestions(actions []string) []string {
	if len(actions) > nextQuestionSources {
		actions = actions[:nextQuestionSources]
	}
	var out []string
	for _, a := range actions {
		a = strings.ToLower(a)
		for _, rule := range nextQuestionRules {
			if strings.Contains(a, rule.verb) {
				out = append(out, rule.question)
				break
			}
		}
	}
	return out
}

func (o *Orchestrator) emitEscalation(ctx context.Context, req TurnRequest, res StateResult, out Outcome) {
	data := events.EscalationData{
		UserID:   req.UserID,
		Platform: string(req.Platform),
		Reason:   out.EscalationReason,
		Priority: out.Priority,
		State:    out.CurrentState,
		Response: out.Response,
	}
	if oc, ok := res.Metadata[MetaOperatorContext]; ok {
		raw, err := json.Marshal(oc)
		if err == nil {
			data.OperatorContext = raw
		}
	}
	if err := o.publisher.Emit(ctx, events.Escalated, req.SessionID, data); err != nil {
		slog.WarnContext(ctx, "escalation publish failed",
			slog.String("session_id", req.SessionID), slog.String("error", err.Error()))
	}
}

// GetSessionState returns a snapshot of the session.
func (o *Orchestrator) GetSessionState(sessionID string) (SessionSnapshot, bool) {
	return o.engine.Snapshot(sessionID)
}

// ResetSession starts the session over. It reports false for unknown ids.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) bool {
	if err := o.engine.ResetContext(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "reset session", slog.String("error", err.Error()))
		return false
	}
	return true
}

// ForceStateTransition moves a session into stateName for operator use.
func (o *Orchestrator) ForceStateTransition(ctx context.Context, sessionID, stateName string) bool {
	if err := o.engine.ForceTransition(ctx, sessionID, stateName); err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			slog.ErrorContext(ctx, "force state transition", slog.String("error", err.Error()))
		}
		return false
	}
	return true
}

// CleanupInactiveSessions removes sessions idle for longer than
// maxInactiveMinutes.
func (o *Orchestrator) CleanupInactiveSessions(ctx context.Context, maxInactiveMinutes int) int {
	return o.engine.CleanupInactive(ctx, maxInactiveMinutes)
}

// FlowMetrics aggregates the live session table.
type FlowMetrics struct {
	ActiveSessions              int            `json:"active_sessions"`
	StateDistribution           map[string]int `json:"state_distribution"`
	SessionsRequiringEscalation int            `json:"sessions_requiring_escalation"`
	AvailableStates             []string       `json:"available_states"`
}

// GetFlowMetrics counts sessions per current state and those currently
// satisfying the escalation predicate.
func (o *Orchestrator) GetFlowMetrics() FlowMetrics {
	m := FlowMetrics{
		StateDistribution: make(map[string]int),
		AvailableStates:   o.engine.AvailableStates(),
	}
	for _, snap := range o.engine.Sessions() {
		m.ActiveSessions++
		if !snap.HasState() {
			continue
		}
		m.StateDistribution[snap.CurrentState]++
		if snap.ShouldEscalate {
			m.SessionsRequiringEscalation++
		}
	}
	return m
}

// SessionMetrics describes a single session.
type SessionMetrics struct {
	SessionID       string        `json:"session_id"`
	CurrentState    string        `json:"current_state,omitempty"`
	MessageCount    int           `json:"message_count"`
	TransitionCount int           `json:"transition_count"`
	EntityCount     int           `json:"entity_count"`
	Duration        time.Duration `json:"duration"`
	ShouldEscalate  bool          `json:"should_escalate"`
}

// GetSessionMetrics summarises one session, or false if it does not exist.
func (o *Orchestrator) GetSessionMetrics(sessionID string) (SessionMetrics, bool) {
	snap, ok := o.engine.Snapshot(sessionID)
	if !ok {
		return SessionMetrics{}, false
	}
	return SessionMetrics{
		SessionID:       snap.SessionID,
		CurrentState:    snap.CurrentState,
		MessageCount:    snap.MessageCount,
		TransitionCount: snap.TransitionCount,
		EntityCount:     len(snap.Entities),
		Duration:        snap.LastActivityAt.Sub(snap.CreatedAt),
		ShouldEscalate:  snap.ShouldEscalate,
	}, true
}
