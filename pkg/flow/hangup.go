package flow

import (
	"maps"
	"strings"
	"time"

	"github.com/rs/xid"
)

const (
	summaryAfterMessages  = 6
	mediumAfterMessages   = 12
	operatorRecentTurns   = 6
	priorityScanUserTurns = 3
)

// Ticket priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityNormal = "normal"
)

var (
	continueWords  = []string{"подожди", "постой", "еще вопрос", "ещё вопрос", "еще один вопрос"}
	operatorWords  = []string{"оператор", "человек", "менеджер", "специалист"}
	farewellWords  = []string{"до свидания", "всего доброго", "до встречи", "прощай"}
	hangupThanks   = []string{"спасибо", "благодарю", "thanks"}
	hangupComplain = []string{"жалоба", "проблема", "не помогли", "плохо"}
	urgentWords    = []string{"срочно", "urgent", "critical", "не работает"}

	highPriorityReasons = map[string]bool{
		ReasonComplaint:      true,
		ReasonBillingDispute: true,
		ReasonTechnicalIssue: true,
	}

	escalationPhrases = map[string]string{
		ReasonComplaint:      "hangup.escalation_complaint",
		ReasonComplexIssue:   "hangup.escalation_complex",
		ReasonTechnicalIssue: "hangup.escalation_technical",
	}

	intentSummaries = map[string]string{
		"order_inquiry":    "обсуждали заказ",
		"payment_inquiry":  "разбирали вопросы оплаты",
		"shipping_inquiry": "говорили о доставке",
		"complaint":        "рассматривали жалобу",
		"product_info":     "изучали информацию о товаре",
	}
)

// leaveRequest routes a topic state to hangup when the user says goodbye
// or asks for a person.
func (d *dialogue) leaveRequest(_ *SessionContext, msg string) (StateResult, bool) {
	switch {
	case containsAny(msg, operatorWords):
		return StateResult{
			Response:       d.text("common.operator", nil),
			NextState:      StateHangup.String(),
			ShouldContinue: false,
			RequiresInput:  true,
			Metadata:       map[string]any{MetaEscalationReason: ReasonUserRequest},
		}, true
	case containsAny(msg, farewellWords):
		return route(d.text("common.farewell", nil), StateHangup), true
	}
	return StateResult{}, false
}

func (d *dialogue) hangupEnter(sc *SessionContext) StateResult {
	reason, _ := sc.Data[MetaEscalationReason].(string)
	if reason != "" || sc.ShouldEscalate() {
		return d.escalate(sc, reason)
	}
	return d.goodbye(sc)
}

func (d *dialogue) hangupInput(sc *SessionContext, in Input) StateResult {
	if blank(in.Message) {
		return StateResult{Response: d.text("hangup.invalid", nil)}
	}
	msg := normalize(in.Message)

	switch {
	case containsAny(msg, continueWords):
		return route(d.text("hangup.continue", nil), StateHello)
	case containsAny(msg, operatorWords):
		return d.escalate(sc, ReasonUserRequest)
	case containsAny(msg, hangupThanks):
		return StateResult{Response: d.text("hangup.thanks", nil)}
	case containsAny(msg, hangupComplain):
		return d.escalate(sc, ReasonComplaint)
	}
	return d.goodbye(sc)
}

func (d *dialogue) goodbye(sc *SessionContext) StateResult {
	text := d.text("hangup.goodbye", nil)
	if name, _ := sc.UserData["name"].(string); name != "" {
		text = name + ", " + strings.ToLower(text)
	}
	if sc.MessageCount > summaryAfterMessages {
		if summary := d.summary(sc); summary != "" {
			text = summary + "\n\n" + text
		}
	}

	return StateResult{
		Response: text,
		Metadata: map[string]any{
			MetaConversationCompleted: true,
			MetaSatisfactionSurvey:    true,
		},
	}
}

func (d *dialogue) summary(sc *SessionContext) string {
	var points []string
	if s, ok := intentSummaries[sc.TurnIntent]; ok {
		points = append(points, s)
	}
	if n := sc.Entity("order_number"); n != "" {
		points = append(points, "работали с заказом №"+n)
	}
	if len(points) == 0 {
		return ""
	}
	return d.text("hangup.summary", map[string]any{"Points": points})
}

func (d *dialogue) escalate(sc *SessionContext, reason string) StateResult {
	key, ok := escalationPhrases[reason]
	if !ok {
		key = "hangup.escalation"
	}
	text := d.text(key, nil) + "\n\n" + d.waitInfo()

	meta := map[string]any{
		MetaEscalatedToHuman: true,
		MetaOperatorContext:  operatorContext(sc, reason),
		MetaPriority:         priority(sc, reason),
	}
	if reason != "" {
		meta[MetaEscalationReason] = reason
		sc.Data[MetaEscalationReason] = reason
	}
	return StateResult{Response: text, Metadata: meta}
}

func (d *dialogue) waitInfo() string {
	switch h := d.now().Hour(); {
	case h >= 9 && h <= 18:
		return d.text("hangup.wait_day", nil)
	case h > 18 && h <= 22:
		return d.text("hangup.wait_evening", nil)
	default:
		return d.text("hangup.wait_night", nil)
	}
}

// priority ranks a hand-off: high for sensitive reasons or urgent words in
// recent user turns, medium for long conversations.
func priority(sc *SessionContext, reason string) string {
	if highPriorityReasons[reason] {
		return PriorityHigh
	}
	for _, t := range sc.lastUserTurns(priorityScanUserTurns) {
		if containsAny(strings.ToLower(t.Content), urgentWords) {
			return PriorityHigh
		}
	}
	if sc.MessageCount > mediumAfterMessages {
		return PriorityMedium
	}
	return PriorityNormal
}

// operatorContext packages what a human needs to pick the session up.
func operatorContext(sc *SessionContext, reason string) map[string]any {
	history := make([]string, len(sc.StateHistory))
	for i, s := range sc.StateHistory {
		history[i] = s.String()
	}

	recent := sc.Turns
	if len(recent) > operatorRecentTurns {
		recent = recent[len(recent)-operatorRecentTurns:]
	}
	messages := make([]map[string]any, 0, len(recent))
	for _, t := range recent {
		messages = append(messages, map[string]any{
			"content":   t.Content,
			"role":      string(t.Role),
			"timestamp": t.At.Format(time.RFC3339),
		})
	}

	return map[string]any{
		"context_id":          xid.New().String(),
		"user_id":             sc.UserID,
		"session_id":          sc.SessionID,
		"platform":            string(sc.Platform),
		"escalation_reason":   reason,
		"conversation_length": len(sc.Turns),
		"last_intent":         sc.TurnIntent,
		"extracted_entities":  maps.Clone(sc.Entities),
		"user_preferences":    maps.Clone(sc.UserData),
		"state_history":       history,
		"recent_messages":     messages,
	}
}

func hangupActions(sc *SessionContext) []string {
	if reason, _ := sc.Data[MetaEscalationReason].(string); reason != "" {
		return []string{
			"Ожидать оператора",
			"Оставить сообщение",
			"Перезвонить позже",
		}
	}
	return []string{
		"Завершить диалог",
		"Задать еще вопрос",
		"Оценить общение",
	}
}
