package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/voicetyped/supportflow/pkg/phrases"
)

// State is one of the closed set of dialogue states.
type State uint8

const (
	StateNone State = iota
	StateHello
	StateOrder
	StatePayment
	StateShipping
	StateHangup
)

var stateNames = [...]string{
	StateNone:     "",
	StateHello:    "hello",
	StateOrder:    "order",
	StatePayment:  "payment",
	StateShipping: "shipping",
	StateHangup:   "hangup",
}

// States lists every registered state in a stable order.
var States = []State{StateHello, StateOrder, StatePayment, StateShipping, StateHangup}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// ParseState resolves a registered state name.
func ParseState(name string) (State, bool) {
	for _, s := range States {
		if stateNames[s] == name {
			return s, true
		}
	}
	return StateNone, false
}

// CanTransitionTo reports whether next is on s's allow-list.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateHello:
		return next == StateOrder || next == StateShipping || next == StatePayment || next == StateHangup
	case StateOrder:
		return next == StateShipping || next == StatePayment || next == StateHello || next == StateHangup
	case StatePayment:
		return next == StateOrder || next == StateShipping || next == StateHello || next == StateHangup
	case StateShipping:
		return next == StateOrder || next == StatePayment || next == StateHello || next == StateHangup
	case StateHangup:
		return next == StateHello
	}
	return false
}

// Input is the classified user turn handed to a state.
type Input struct {
	Message  string
	Intent   string
	Entities map[string]any
}

// dialogue carries what the state behaviours need: phrasing and a clock.
type dialogue struct {
	say *phrases.Speaker
	now func() time.Time
}

func (d *dialogue) text(key string, data map[string]any) string {
	return d.say.Say(key, data)
}

func (d *dialogue) enter(s State, sc *SessionContext) StateResult {
	slog.Debug("entering state", slog.String("session_id", sc.SessionID), slog.String("state", s.String()))
	switch s {
	case StateHello:
		return d.helloEnter(sc)
	case StateOrder:
		return d.orderEnter(sc)
	case StatePayment:
		return d.paymentEnter(sc)
	case StateShipping:
		return d.shippingEnter(sc)
	case StateHangup:
		return d.hangupEnter(sc)
	}
	panic(fmt.Sprintf("flow: enter on unregistered state %v", s))
}

func (d *dialogue) handleInput(s State, sc *SessionContext, in Input) StateResult {
	switch s {
	case StateHello:
		return d.helloInput(sc, in)
	case StateOrder:
		return d.orderInput(sc, in)
	case StatePayment:
		return d.paymentInput(sc, in)
	case StateShipping:
		return d.shippingInput(sc, in)
	case StateHangup:
		return d.hangupInput(sc, in)
	}
	panic(fmt.Sprintf("flow: input on unregistered state %v", s))
}

// exit is best effort and never fails a transition.
func (d *dialogue) exit(s State, sc *SessionContext) {
	slog.Debug("leaving state", slog.String("session_id", sc.SessionID), slog.String("state", s.String()))
}

func (d *dialogue) availableActions(s State, sc *SessionContext) []string {
	switch s {
	case StateHello:
		return helloActions()
	case StateOrder:
		return orderActions(sc)
	case StatePayment:
		return paymentActions(sc)
	case StateShipping:
		return shippingActions(sc)
	case StateHangup:
		return hangupActions(sc)
	}
	return nil
}
