package flow

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/voicetyped/supportflow/pkg/events"
	"github.com/voicetyped/supportflow/pkg/phrases"
)

func TestGreetingStaysInHello(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	out := o.ProcessTurn(t.Context(), turn("s-a", "Привет"))
	if !out.OK() {
		t.Fatalf("unexpected failure %q", out.Failure)
	}
	if out.CurrentState != "hello" {
		t.Errorf("state = %q, want hello", out.CurrentState)
	}
	if out.RequiresHuman {
		t.Error("greeting should not require a human")
	}
	if want := phrases.DefaultCatalog().Pool("hello.small_talk")[0]; out.Response != want {
		t.Errorf("response = %q, want %q", out.Response, want)
	}

	snap, ok := o.GetSessionState("s-a")
	if !ok {
		t.Fatal("session not created")
	}
	if snap.MessageCount != 1 || snap.TransitionCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", snap.MessageCount, snap.TransitionCount)
	}
	if len(snap.StateHistory) != 0 {
		t.Errorf("history = %v, want empty", snap.StateHistory)
	}
}

func TestOrderStatusLookup(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	o.ProcessTurn(ctx, turn("s-b", "Привет"))
	req := turn("s-b", "Где мой заказ №12345?")
	req.Intent = "order_status"
	req.Entities = map[string]any{"order_number": "12345"}
	out := o.ProcessTurn(ctx, req)

	if out.CurrentState != "order" {
		t.Fatalf("state = %q, want order", out.CurrentState)
	}
	if !strings.Contains(out.Response, "12345") || !strings.Contains(out.Response, "Статус") {
		t.Errorf("response lacks order status: %q", out.Response)
	}
	if out.RequiresHuman {
		t.Error("status lookup should not require a human")
	}

	snap, _ := o.GetSessionState("s-b")
	if got := snap.Entities["order_number"]; got != "12345" {
		t.Errorf("order_number = %v, want 12345", got)
	}
	if !slices.Equal(snap.StateHistory, []string{"hello"}) {
		t.Errorf("history = %v, want [hello]", snap.StateHistory)
	}
	if snap.PreviousState != "hello" {
		t.Errorf("previous = %q, want hello", snap.PreviousState)
	}
}

func TestComplaintEscalates(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	ch := pub.Subscribe("complaint", 64, events.Escalated)
	defer pub.Unsubscribe("complaint")

	out := o.ProcessTurn(t.Context(), turn("s-c", "жалоба"))

	if out.CurrentState != "hangup" {
		t.Errorf("state = %q, want hangup", out.CurrentState)
	}
	if !out.RequiresHuman {
		t.Fatal("complaint must require a human")
	}
	if out.EscalationReason != ReasonComplaint {
		t.Errorf("reason = %q, want complaint", out.EscalationReason)
	}
	if out.Priority != PriorityHigh {
		t.Errorf("priority = %q, want high", out.Priority)
	}
	if out.ShouldContinue {
		t.Error("complaint hand-off should stop the automated flow")
	}

	got := drain(ch)
	if len(got) != 1 {
		t.Fatalf("escalation events = %d, want 1", len(got))
	}
	escalated := got[0]
	var data events.EscalationData
	if err := json.Unmarshal(escalated.Data, &data); err != nil {
		t.Fatalf("unmarshal escalation: %v", err)
	}
	if data.Reason != ReasonComplaint || data.State != "hangup" {
		t.Errorf("unexpected escalation data %+v", data)
	}
	var oc map[string]any
	if err := json.Unmarshal(data.OperatorContext, &oc); err != nil {
		t.Fatalf("operator context: %v", err)
	}
	if oc["session_id"] != "s-c" || oc["context_id"] == "" {
		t.Errorf("operator context = %v", oc)
	}
}

func TestForcedPaymentMethod(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	o.ProcessTurn(ctx, turn("s-d", "Привет"))
	if !o.ForceStateTransition(ctx, "s-d", "payment") {
		t.Fatal("force transition failed")
	}
	snap, _ := o.GetSessionState("s-d")
	if snap.CurrentState != "payment" {
		t.Fatalf("state = %q, want payment", snap.CurrentState)
	}

	out := o.ProcessTurn(ctx, turn("s-d", "карта"))
	if !strings.Contains(out.Response, "Банковская карта") {
		t.Errorf("response = %q, want the card method", out.Response)
	}
	if out.CurrentState != "payment" {
		t.Errorf("state = %q, want payment", out.CurrentState)
	}
}

func TestLongConversationEscalates(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	for i := 1; i <= 15; i++ {
		if out := o.ProcessTurn(ctx, turn("s-e", "ммм")); out.RequiresHuman {
			t.Fatalf("turn %d escalated early (%s)", i, out.EscalationReason)
		}
	}
	out := o.ProcessTurn(ctx, turn("s-e", "ммм"))
	if !out.RequiresHuman {
		t.Fatal("turn 16 should require a human")
	}
	if out.EscalationReason != ReasonLongConversation {
		t.Errorf("reason = %q, want long_conversation", out.EscalationReason)
	}
	if out.Priority != PriorityMedium {
		t.Errorf("priority = %q, want medium", out.Priority)
	}
}

func TestConversationLoopEscalates(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	messages := []string{"заказ", "доставка"}
	for i := 1; i <= 10; i++ {
		out := o.ProcessTurn(ctx, turn("s-loop", messages[(i+1)%2]))
		if out.RequiresHuman {
			t.Fatalf("turn %d escalated early (%s)", i, out.EscalationReason)
		}
	}

	out := o.ProcessTurn(ctx, turn("s-loop", "заказ"))
	if !out.RequiresHuman {
		t.Fatal("bouncing between two states should require a human")
	}
	if out.EscalationReason != ReasonLoop {
		t.Errorf("reason = %q, want conversation_loop", out.EscalationReason)
	}
}

func TestOperatorRequestFromTopic(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	o.ProcessTurn(ctx, turn("s-op", "заказ"))
	out := o.ProcessTurn(ctx, turn("s-op", "позовите оператора"))

	if out.CurrentState != "hangup" {
		t.Fatalf("state = %q, want hangup", out.CurrentState)
	}
	if !out.RequiresHuman || out.EscalationReason != ReasonUserRequest {
		t.Errorf("requires=%v reason=%q, want user_request hand-off", out.RequiresHuman, out.EscalationReason)
	}
}

func TestMissingSessionIDFallsBack(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	out := o.ProcessTurn(t.Context(), TurnRequest{Message: "Привет"})
	if out.OK() {
		t.Fatal("expected a failure")
	}
	if out.Response != serviceFallbackText || !out.RequiresHuman || out.EscalationReason != ReasonSystemError {
		t.Errorf("unexpected fallback %+v", out)
	}
	if n := o.Engine().ActiveSessionCount(); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

// panicSource fails every phrase lookup.
type panicSource struct{}

func (panicSource) Catalog() *phrases.Catalog { panic("catalog unavailable") }

func TestStateFaultFallsBack(t *testing.T) {
	engine := NewEngine(phrases.NewSpeaker(panicSource{}, nil))
	o := NewOrchestrator(engine, nil)

	out := o.ProcessTurn(t.Context(), turn("s-panic", "Привет"))
	if out.Failure != FailureInternal {
		t.Fatalf("failure = %q, want internal_error", out.Failure)
	}
	if out.Response != serviceFallbackText {
		t.Errorf("response = %q", out.Response)
	}

	// The session survives the fault and keeps accepting turns.
	if _, ok := o.GetSessionState("s-panic"); !ok {
		t.Error("session should survive a fault")
	}
}

func TestNextQuestions(t *testing.T) {
	tests := []struct {
		name    string
		actions []string
		want    []string
	}{
		{"none", nil, nil},
		{"hello", helloActions(), []string{"Нужно проверить статус заказа?"}},
		{"order", []string{"Создать новый заказ", "Проверить статус заказа", "Изменить заказ"},
			[]string{"Хотите создать новый заказ?", "Нужно проверить статус заказа?", "Требуется что-то изменить?"}},
		{"only first three", []string{"a", "b", "c", "Связаться с оператором"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextQuestions(tt.actions); !slices.Equal(got, tt.want) {
				t.Errorf("nextQuestions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlowMetrics(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	o.ProcessTurn(ctx, turn("m-1", "Привет"))
	o.ProcessTurn(ctx, turn("m-2", "заказ"))
	o.ProcessTurn(ctx, turn("m-3", "доставка"))
	o.ProcessTurn(ctx, turn("m-4", "заказ"))

	m := o.GetFlowMetrics()
	if m.ActiveSessions != 4 {
		t.Errorf("active = %d, want 4", m.ActiveSessions)
	}
	want := map[string]int{"hello": 1, "order": 2, "shipping": 1}
	for state, n := range want {
		if m.StateDistribution[state] != n {
			t.Errorf("distribution[%s] = %d, want %d", state, m.StateDistribution[state], n)
		}
	}
	if !slices.Equal(m.AvailableStates, []string{"hello", "order", "payment", "shipping", "hangup"}) {
		t.Errorf("available states = %v", m.AvailableStates)
	}

	sm, ok := o.GetSessionMetrics("m-2")
	if !ok || sm.MessageCount != 1 || sm.TransitionCount != 2 || sm.CurrentState != "order" {
		t.Errorf("session metrics = %+v", sm)
	}
	if _, ok := o.GetSessionMetrics("missing"); ok {
		t.Error("metrics for unknown session")
	}
}

func TestAdminOperationsOnUnknownSession(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := t.Context()

	if o.ResetSession(ctx, "nope") {
		t.Error("reset of unknown session reported success")
	}
	if o.ForceStateTransition(ctx, "nope", "order") {
		t.Error("force of unknown session reported success")
	}
	if _, ok := o.GetSessionState("nope"); ok {
		t.Error("state for unknown session")
	}
}

func TestEscalationPublishedOncePerHandOff(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	ctx := t.Context()
	ch := pub.Subscribe("handoff", 64, events.Escalated)
	defer pub.Unsubscribe("handoff")

	for i := 1; i <= 20; i++ {
		out := o.ProcessTurn(ctx, turn("s-once", "ммм"))
		if i > 15 && !out.RequiresHuman {
			t.Fatalf("turn %d should still require a human", i)
		}
	}
	if n := len(drain(ch)); n != 1 {
		t.Fatalf("escalation events = %d, want 1", n)
	}
	if snap, _ := o.GetSessionState("s-once"); !snap.HandedOff {
		t.Error("session should be marked as handed off")
	}

	// A reset starts a new episode.
	if !o.ResetSession(ctx, "s-once") {
		t.Fatal("reset failed")
	}
	if snap, _ := o.GetSessionState("s-once"); snap.HandedOff {
		t.Error("reset should clear the hand-off mark")
	}
	for range 18 {
		o.ProcessTurn(ctx, turn("s-once", "ммм"))
	}
	if n := len(drain(ch)); n != 1 {
		t.Errorf("escalation events after reset = %d, want 1", n)
	}
}

func TestOrderNeedsNumber(t *testing.T) {
	tests := []struct {
		name    string
		opening string
		message string
		want    string
		exact   bool
	}{
		{"modify without number", "заказ", "изменить", phrase("order.modify_need_number"), true},
		{"cancel without number", "заказ", "отменить", phrase("order.cancel_need_number"), true},
		{"modify items with number", "заказ 12345678", "изменить товар", "изменить состав заказа №12345678", false},
		{"cancel with number", "заказ 12345678", "отменить", "Заказ №12345678 может быть отменен", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(t)
			ctx := t.Context()

			o.ProcessTurn(ctx, turn("s-ord", tt.opening))
			out := o.ProcessTurn(ctx, turn("s-ord", tt.message))

			if out.CurrentState != "order" || out.RequiresHuman {
				t.Errorf("state = %q requires_human = %v, want order without hand-off", out.CurrentState, out.RequiresHuman)
			}
			if tt.exact && out.Response != tt.want {
				t.Errorf("response = %q, want %q", out.Response, tt.want)
			}
			if !tt.exact && !strings.Contains(out.Response, tt.want) {
				t.Errorf("response = %q, want it to contain %q", out.Response, tt.want)
			}
		})
	}
}

func TestPaymentProblemRemediation(t *testing.T) {
	tests := []struct {
		message  string
		wantKey  string
		wantType string
	}{
		{"оплата не прошла", "payment.declined", "declined"},
		{"ошибка на сайте", "payment.error", "error"},
		{"проблема с платежом", "payment.problem_general", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(t)
			ctx := t.Context()

			o.ProcessTurn(ctx, turn("s-pay", "оплата"))
			out := o.ProcessTurn(ctx, turn("s-pay", tt.message))

			if out.Response != phrase(tt.wantKey) {
				t.Errorf("response = %q, want %s", out.Response, tt.wantKey)
			}
			snap, _ := o.GetSessionState("s-pay")
			if got := snap.Entities["payment_problem_type"]; got != tt.wantType {
				t.Errorf("payment_problem_type = %v, want %s", got, tt.wantType)
			}
		})
	}
}

func TestPaymentRefund(t *testing.T) {
	tests := []struct {
		name     string
		entities map[string]any
		want     string
	}{
		{"without order number", nil, phrase("payment.refund_need_number")},
		{"with order number", map[string]any{"order_number": "555777"}, "Возврат средств по заказу №555777"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(t)
			ctx := t.Context()

			o.ProcessTurn(ctx, turn("s-ref", "оплата"))
			req := turn("s-ref", "хочу возврат")
			req.Entities = tt.entities
			out := o.ProcessTurn(ctx, req)

			if !strings.HasPrefix(out.Response, tt.want) {
				t.Errorf("response = %q, want prefix %q", out.Response, tt.want)
			}
			if out.CurrentState != "payment" {
				t.Errorf("state = %q, want payment", out.CurrentState)
			}
		})
	}
}

func TestShippingTimeByDeliveryMethod(t *testing.T) {
	tests := []struct {
		message    string
		wantKey    string
		wantMethod any
	}{
		{"сроки", "shipping.time_general", nil},
		{"когда привезут курьером", "shipping.time_courier", "courier"},
		{"сроки экспресс доставки", "shipping.time_express", "express"},
	}

	for _, tt := range tests {
		t.Run(tt.wantKey, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(t)
			ctx := t.Context()

			o.ProcessTurn(ctx, turn("s-ship", "доставка"))
			out := o.ProcessTurn(ctx, turn("s-ship", tt.message))

			if out.Response != phrase(tt.wantKey) {
				t.Errorf("response = %q, want %s", out.Response, tt.wantKey)
			}
			snap, _ := o.GetSessionState("s-ship")
			if got := snap.Entities["delivery_method"]; got != tt.wantMethod {
				t.Errorf("delivery_method = %v, want %v", got, tt.wantMethod)
			}
		})
	}
}

func TestHangupPriority(t *testing.T) {
	long := make([]string, 13)
	for i := range long {
		long[i] = "ммм"
	}

	tests := []struct {
		name     string
		reason   string
		messages []string
		want     string
	}{
		{"sensitive reason", ReasonComplaint, []string{"ммм"}, PriorityHigh},
		{"urgent word in recent turns", "", []string{"ммм", "это срочно", "ммм", "ммм"}, PriorityHigh},
		{"broken service", "", []string{"у меня не работает оплата"}, PriorityHigh},
		{"urgent word too old", "", []string{"срочно", "ммм", "ммм", "ммм"}, PriorityNormal},
		{"long conversation", "", long, PriorityMedium},
		{"short and calm", ReasonUserRequest, []string{"ммм"}, PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := sessionWith("", tt.messages...)
			// Assistant replies between user turns do not count towards the window.
			sc.addReply("ответ", sc.LastActivityAt)
			if got := priority(sc, tt.reason); got != tt.want {
				t.Errorf("priority = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGoodbye(t *testing.T) {
	d := newTestDialogue(newTestClock())
	goodbye := phrase("hangup.goodbye")

	long := sessionWith("order_inquiry", "1", "2", "3", "4", "5", "6", "7")
	long.SetEntity("order_number", "12345")

	named := sessionWith("", "привет", "пока")
	named.UserData["name"] = "Ольга"

	tests := []struct {
		name string
		sc   *SessionContext
		want string
	}{
		{"short", sessionWith("order_inquiry", "1", "2", "3", "4", "5", "6"), goodbye},
		{"summary after six messages", long, "Сегодня мы обсуждали заказ, работали с заказом №12345.\n\n" + goodbye},
		{"personalised", named, "Ольга, " + strings.ToLower(goodbye)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.goodbye(tt.sc)
			if res.Response != tt.want {
				t.Errorf("response = %q, want %q", res.Response, tt.want)
			}
			if done, _ := res.Metadata[MetaConversationCompleted].(bool); !done {
				t.Error("goodbye should mark the conversation completed")
			}
		})
	}
}

func TestWaitInfoByHour(t *testing.T) {
	tests := []struct {
		hour int
		key  string
	}{
		{3, "hangup.wait_night"},
		{8, "hangup.wait_night"},
		{9, "hangup.wait_day"},
		{18, "hangup.wait_day"},
		{19, "hangup.wait_evening"},
		{22, "hangup.wait_evening"},
		{23, "hangup.wait_night"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clock := &testClock{now: time.Date(2025, 3, 14, tt.hour, 30, 0, 0, time.UTC)}
			if got := newTestDialogue(clock).waitInfo(); got != phrase(tt.key) {
				t.Errorf("hour %d: wait info = %q, want %s", tt.hour, got, tt.key)
			}
		})
	}
}

func TestHangupReplies(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantState   string
		wantHuman   bool
		wantReason  string
		wantContain string
	}{
		{"wait returns to hello", "подожди", "hello", false, "", phrase("hangup.continue")},
		{"not helped is a complaint", "вы мне не помогли", "hangup", true, ReasonComplaint, phrase("hangup.escalation_complaint")},
		{"thanks stays in hangup", "спасибо", "hangup", false, "", phrase("hangup.thanks")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(t)
			ctx := t.Context()

			if out := o.ProcessTurn(ctx, turn("s-bye", "до свидания")); out.CurrentState != "hangup" {
				t.Fatalf("farewell state = %q, want hangup", out.CurrentState)
			}
			out := o.ProcessTurn(ctx, turn("s-bye", tt.message))

			if out.CurrentState != tt.wantState {
				t.Errorf("state = %q, want %q", out.CurrentState, tt.wantState)
			}
			if out.RequiresHuman != tt.wantHuman || out.EscalationReason != tt.wantReason {
				t.Errorf("requires_human = %v reason = %q, want %v %q",
					out.RequiresHuman, out.EscalationReason, tt.wantHuman, tt.wantReason)
			}
			if !strings.Contains(out.Response, tt.wantContain) {
				t.Errorf("response = %q, want it to contain %q", out.Response, tt.wantContain)
			}
		})
	}
}

func TestEscalationReasonOrder(t *testing.T) {
	loop := []string{"hello", "order", "shipping", "order", "shipping", "order", "shipping", "order", "shipping"}
	withReason := StateResult{Metadata: map[string]any{MetaEscalationReason: ReasonUserRequest}}

	tests := []struct {
		name string
		res  StateResult
		snap SessionSnapshot
		want string
	}{
		{"result reason wins", withReason, SessionSnapshot{MessageCount: 20, StateHistory: loop}, ReasonUserRequest},
		{"long conversation", StateResult{}, SessionSnapshot{MessageCount: 16, StateHistory: loop}, ReasonLongConversation},
		{"loop", StateResult{}, SessionSnapshot{MessageCount: 9, StateHistory: loop, CurrentIntent: "complaint"}, ReasonLoop},
		{"short history is no loop", StateResult{}, SessionSnapshot{MessageCount: 8, StateHistory: loop[:8]}, ReasonGeneral},
		{"complaint intent", StateResult{}, SessionSnapshot{MessageCount: 3, CurrentIntent: "complaint"}, ReasonComplaint},
		{"refund intent", StateResult{}, SessionSnapshot{MessageCount: 3, CurrentIntent: "refund_request"}, ReasonRefundRequest},
		{"technical intent", StateResult{}, SessionSnapshot{MessageCount: 3, CurrentIntent: "technical_issue"}, ReasonTechnicalIssue},
		{"other intent", StateResult{}, SessionSnapshot{MessageCount: 3, CurrentIntent: "order_inquiry"}, ReasonGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escalationReason(tt.res, tt.snap); got != tt.want {
				t.Errorf("escalationReason = %q, want %q", got, tt.want)
			}
		})
	}
}
