package flow

import "maps"

// Metadata keys understood by the engine and the orchestrator.
const (
	MetaEscalatedToHuman      = "escalated_to_human"
	MetaEscalationReason      = "escalation_reason"
	MetaOperatorContext       = "operator_context"
	MetaPriority              = "priority"
	MetaConversationCompleted = "conversation_completed"
	MetaSatisfactionSurvey    = "satisfaction_survey"
)

// Escalation reasons.
const (
	ReasonComplaint        = "complaint"
	ReasonComplexIssue     = "complex_issue"
	ReasonTechnicalIssue   = "technical_issue"
	ReasonBillingDispute   = "billing_dispute"
	ReasonRefundRequest    = "refund_request"
	ReasonUserRequest      = "user_request"
	ReasonLongConversation = "long_conversation"
	ReasonLoop             = "conversation_loop"
	ReasonGeneral          = "general"
	ReasonSystemError      = "system_error"
)

// FailureReason classifies why a turn could not be handled.
type FailureReason string

const (
	FailureNone     FailureReason = ""
	FailureInternal FailureReason = "internal_error"
	FailureNoTurn   FailureReason = "invalid_turn"
)

const engineFallbackText = "Извините, произошла ошибка. Попробуйте еще раз."

// StateResult is what a dialogue state returns from Enter or HandleInput.
// It is built fresh for every call and never mutated after return.
type StateResult struct {
	Response         string
	NextState        string
	ShouldContinue   bool
	RequiresInput    bool
	SuggestedActions []string
	Metadata         map[string]any
	Failure          FailureReason
}

// OK reports whether the result was produced without an internal fault.
func (r StateResult) OK() bool { return r.Failure == FailureNone }

// Reason returns the escalation reason carried in metadata, if any.
func (r StateResult) Reason() string {
	s, _ := r.Metadata[MetaEscalationReason].(string)
	return s
}

// EscalatedToHuman reports whether the state explicitly handed off.
func (r StateResult) EscalatedToHuman() bool {
	b, _ := r.Metadata[MetaEscalatedToHuman].(bool)
	return b
}

func reply(text string, actions ...string) StateResult {
	return StateResult{
		Response:         text,
		ShouldContinue:   true,
		RequiresInput:    true,
		SuggestedActions: actions,
	}
}

func route(text string, next State) StateResult {
	return StateResult{
		Response:       text,
		NextState:      next.String(),
		ShouldContinue: true,
		RequiresInput:  true,
	}
}

func fallbackResult(reason FailureReason) StateResult {
	return StateResult{
		Response:       engineFallbackText,
		NextState:      StateHello.String(),
		ShouldContinue: true,
		RequiresInput:  true,
		Failure:        reason,
	}
}

// compose joins the reply that requested a transition with the reply of
// the state that was entered.
func compose(handled, entered StateResult) StateResult {
	out := StateResult{
		Response:         handled.Response,
		NextState:        handled.NextState,
		ShouldContinue:   handled.ShouldContinue && entered.ShouldContinue,
		RequiresInput:    entered.RequiresInput,
		SuggestedActions: entered.SuggestedActions,
		Failure:          handled.Failure,
	}
	if entered.Response != "" {
		if out.Response != "" {
			out.Response += "\n\n"
		}
		out.Response += entered.Response
	}
	if len(out.SuggestedActions) == 0 {
		out.SuggestedActions = handled.SuggestedActions
	}
	if len(handled.Metadata) > 0 || len(entered.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(handled.Metadata)+len(entered.Metadata))
		maps.Copy(out.Metadata, handled.Metadata)
		maps.Copy(out.Metadata, entered.Metadata)
	}
	if out.Failure == FailureNone {
		out.Failure = entered.Failure
	}
	return out
}
