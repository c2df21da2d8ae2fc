package flow

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/voicetyped/supportflow/pkg/events"
)

func TestStateTransitionAllowList(t *testing.T) {
	allowed := map[State][]State{
		StateHello:    {StateOrder, StateShipping, StatePayment, StateHangup},
		StateOrder:    {StateShipping, StatePayment, StateHello, StateHangup},
		StatePayment:  {StateOrder, StateShipping, StateHello, StateHangup},
		StateShipping: {StateOrder, StatePayment, StateHello, StateHangup},
		StateHangup:   {StateHello},
	}

	for _, from := range States {
		for _, to := range States {
			want := slices.Contains(allowed[from], to)
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestParseState(t *testing.T) {
	for _, s := range States {
		got, ok := ParseState(s.String())
		if !ok || got != s {
			t.Errorf("ParseState(%q) = %v, %v", s.String(), got, ok)
		}
	}
	for _, name := range []string{"", "HELLO", "checkout"} {
		if _, ok := ParseState(name); ok {
			t.Errorf("ParseState(%q) should fail", name)
		}
	}
}

func TestFirstTurnEntersHello(t *testing.T) {
	e, _ := newTestEngine(t)

	step := e.Process(t.Context(), turn("s-1", "заказ"))
	if step.Session.CurrentState != "order" {
		t.Fatalf("state = %q, want order", step.Session.CurrentState)
	}
	if !slices.Equal(step.Session.StateHistory, []string{"hello"}) {
		t.Errorf("history = %v, want [hello]", step.Session.StateHistory)
	}
	if step.Session.TransitionCount != 2 {
		t.Errorf("transitions = %d, want 2", step.Session.TransitionCount)
	}
	if returning, _ := step.Session.UserData[userReturning].(bool); !returning {
		t.Error("hello entry should mark the user as returning")
	}
}

func TestRefusedTransitionKeepsState(t *testing.T) {
	e, clock := newTestEngine(t)
	sc := newSessionContext("u", "s", PlatformWeb, clock.Now())
	sc.setState(StateHello, clock.Now())
	sc.setState(StateHangup, clock.Now())

	in := StateResult{Response: "bye", NextState: "order", ShouldContinue: true}
	res, pending := e.transition(t.Context(), sc, in, nil)

	if sc.Current != StateHangup {
		t.Errorf("state = %s, want hangup", sc.Current)
	}
	if res.Response != "bye" {
		t.Errorf("response = %q, want unchanged", res.Response)
	}
	if len(pending) != 1 || pending[0].typ != events.TransitionRefused {
		t.Errorf("pending = %+v, want one refusal", pending)
	}
}

func TestUnknownTargetBecomesHello(t *testing.T) {
	e, clock := newTestEngine(t)
	sc := newSessionContext("u", "s", PlatformWeb, clock.Now())
	sc.setState(StateHello, clock.Now())
	sc.setState(StateOrder, clock.Now())

	res, _ := e.transition(t.Context(), sc, StateResult{Response: "x", NextState: "checkout", ShouldContinue: true}, nil)
	if sc.Current != StateHello {
		t.Errorf("state = %s, want hello", sc.Current)
	}
	if res.Response == "x" {
		t.Error("hello entry reply should be composed onto the result")
	}
}

func TestCountersAreMonotonic(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := t.Context()
	messages := []string{"Привет", "заказ", "доставка", "оплата", "ммм", "", "спасибо", "заказ", "до свидания", "подожди"}

	var prevMessages, prevTransitions int
	var prevActivity time.Time
	for i, msg := range messages {
		clock.Advance(time.Second)
		step := e.Process(ctx, turn("mono", msg))
		s := step.Session

		if s.MessageCount != i+1 {
			t.Errorf("turn %d: messages = %d, want %d", i, s.MessageCount, i+1)
		}
		if s.TransitionCount < prevTransitions {
			t.Errorf("turn %d: transitions went backwards", i)
		}
		if !s.LastActivityAt.After(prevActivity) {
			t.Errorf("turn %d: activity not advanced", i)
		}
		if _, ok := ParseState(s.CurrentState); !ok {
			t.Errorf("turn %d: state %q outside the registry", i, s.CurrentState)
		}
		if len(s.StateHistory) != s.TransitionCount-1 {
			t.Errorf("turn %d: history %d vs transitions %d", i, len(s.StateHistory), s.TransitionCount)
		}
		prevMessages, prevTransitions, prevActivity = s.MessageCount, s.TransitionCount, s.LastActivityAt
	}
	if prevMessages != len(messages) {
		t.Errorf("final messages = %d", prevMessages)
	}
}

func TestResetContext(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := t.Context()

	req := turn("r-1", "заказ 12345678")
	e.Process(ctx, req)
	if err := e.ResetContext(ctx, "r-1"); err != nil {
		t.Fatalf("ResetContext: %v", err)
	}

	snap, ok := e.Snapshot("r-1")
	if !ok {
		t.Fatal("reset should keep the session")
	}
	if snap.CurrentState != "" || snap.MessageCount != 0 || snap.TransitionCount != 0 ||
		len(snap.Entities) != 0 || len(snap.Turns) != 0 || len(snap.StateHistory) != 0 {
		t.Errorf("session not cleared: %+v", snap)
	}
	if snap.UserID != req.UserID || snap.Platform != req.Platform {
		t.Errorf("identity lost: %+v", snap)
	}

	step := e.Process(ctx, turn("r-1", "Привет"))
	if step.Session.CurrentState != "hello" || step.Session.TransitionCount != 1 {
		t.Errorf("next turn should re-enter hello: %+v", step.Session)
	}
}

func TestForceTransition(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := t.Context()

	e.Process(ctx, turn("f-1", "Привет"))
	if err := e.ForceTransition(ctx, "f-1", "hangup"); err != nil {
		t.Fatalf("ForceTransition: %v", err)
	}
	snap, _ := e.Snapshot("f-1")
	if snap.CurrentState != "hangup" {
		t.Fatalf("state = %q, want hangup", snap.CurrentState)
	}
	if last := snap.Turns[len(snap.Turns)-1]; last.Role != RoleAssistant || last.Content == "" {
		t.Errorf("entry reply not recorded: %+v", last)
	}

	// Forcing ignores the allow-list and falls back to hello for unknown names.
	if err := e.ForceTransition(ctx, "f-1", "order"); err != nil {
		t.Fatalf("ForceTransition: %v", err)
	}
	if err := e.ForceTransition(ctx, "f-1", "nowhere"); err != nil {
		t.Fatalf("ForceTransition: %v", err)
	}
	snap, _ = e.Snapshot("f-1")
	if snap.CurrentState != "hello" {
		t.Errorf("state = %q, want hello", snap.CurrentState)
	}
	if !slices.Equal(snap.StateHistory, []string{"hello", "hangup", "order"}) {
		t.Errorf("history = %v", snap.StateHistory)
	}
}

func TestCleanupInactive(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := t.Context()

	e.Process(ctx, turn("old", "Привет"))
	clock.Advance(31 * time.Minute)
	e.Process(ctx, turn("fresh", "Привет"))

	if removed := e.CleanupInactive(ctx, 30); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := e.Snapshot("old"); ok {
		t.Error("old session should be gone")
	}
	if _, ok := e.Snapshot("fresh"); !ok {
		t.Error("fresh session should remain")
	}

	// A removed session starts over on its next turn.
	step := e.Process(ctx, turn("old", "Привет"))
	if step.Session.MessageCount != 1 {
		t.Errorf("messages = %d, want 1", step.Session.MessageCount)
	}
}

func TestConcurrentTurns(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := t.Context()

	const sessions, turnsPerSession = 8, 25
	messages := []string{"Привет", "заказ", "доставка", "оплата", "ммм"}

	var wg sync.WaitGroup
	for s := range sessions {
		// Two writers per session exercise the per-session lock.
		for w := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := fmt.Sprintf("c-%d", s)
				for i := range turnsPerSession {
					e.Process(ctx, turn(id, messages[(i+w)%len(messages)]))
				}
			}()
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range turnsPerSession {
			e.CleanupInactive(ctx, 30)
			e.Sessions()
		}
	}()
	wg.Wait()

	if n := e.ActiveSessionCount(); n != sessions {
		t.Fatalf("sessions = %d, want %d", n, sessions)
	}
	for s := range sessions {
		snap, _ := e.Snapshot(fmt.Sprintf("c-%d", s))
		if snap.MessageCount != 2*turnsPerSession {
			t.Errorf("session %d: messages = %d, want %d", s, snap.MessageCount, 2*turnsPerSession)
		}
		if len(snap.StateHistory) != snap.TransitionCount-1 {
			t.Errorf("session %d: history %d vs transitions %d", s, len(snap.StateHistory), snap.TransitionCount)
		}
	}
}

func TestShouldEscalatePredicate(t *testing.T) {
	loop := []State{StateHello}
	for range 5 {
		loop = append(loop, StateOrder, StateShipping)
	}

	tests := []struct {
		name     string
		messages int
		history  []State
		want     bool
	}{
		{"fresh", 1, nil, false},
		{"at threshold", 15, nil, false},
		{"over threshold", 16, nil, true},
		{"short loop", 3, loop[:9], false},
		{"long loop", 3, loop, true},
		{"long varied", 3, []State{StateHello, StateOrder, StatePayment, StateShipping, StateHello, StateOrder,
			StatePayment, StateShipping, StateHello, StateOrder, StatePayment}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldEscalate(tt.messages, tt.history); got != tt.want {
				t.Errorf("shouldEscalate = %v, want %v", got, tt.want)
			}
		})
	}
}
