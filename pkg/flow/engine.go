package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicetyped/supportflow/pkg/events"
	"github.com/voicetyped/supportflow/pkg/phrases"
)

// TurnRequest is one classified user message.
type TurnRequest struct {
	UserID    string
	SessionID string
	Platform  Platform
	Message   string
	Intent    string
	Entities  map[string]any
}

// Step is the result of one processed turn together with the session as
// it stood after the turn.
type Step struct {
	Result  StateResult
	Session SessionSnapshot
}

// Engine owns the session table and is the only code that mutates
// sessions. Turns for one session are serialised; turns for different
// sessions run in parallel.
type Engine struct {
	table     *sessionTable
	dlg       *dialogue
	publisher *events.Publisher
	now       func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithPublisher emits flow events to pub.
func WithPublisher(pub *events.Publisher) EngineOption {
	return func(e *Engine) { e.publisher = pub }
}

// WithShards sets the session table shard count.
func WithShards(n int) EngineOption {
	return func(e *Engine) { e.table = newSessionTable(n) }
}

// NewEngine creates an engine that phrases replies with speaker.
func NewEngine(speaker *phrases.Speaker, opts ...EngineOption) *Engine {
	e := &Engine{
		table: newSessionTable(defaultShards),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.dlg = &dialogue{say: speaker, now: e.now}
	return e
}

type emission struct {
	typ  events.EventType
	data any
}

// Process runs one turn: it finds or creates the session, forces entry
// into hello on the first turn, lets the current state handle the input
// and applies at most one transition. Internal faults produce the
// fallback result instead of an error.
func (e *Engine) Process(ctx context.Context, req TurnRequest) Step {
	if req.SessionID == "" {
		slog.WarnContext(ctx, "turn without session id", slog.String("user_id", req.UserID))
		return Step{Result: fallbackResult(FailureNoTurn)}
	}

	now := e.now()
	ent, created := e.table.getOrCreate(req.SessionID, now.UnixNano(), func() *SessionContext {
		return newSessionContext(req.UserID, req.SessionID, req.Platform, now)
	})
	if created {
		slog.InfoContext(ctx, "session created",
			slog.String("session_id", req.SessionID),
			slog.String("user_id", req.UserID),
			slog.String("platform", string(req.Platform)))
	}

	step, pending := e.processLocked(ctx, ent, req, now)
	e.publish(ctx, req.SessionID, pending)
	return step
}

func (e *Engine) processLocked(ctx context.Context, ent *entry, req TurnRequest, now time.Time) (step Step, pending []emission) {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	sc := ent.sc

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in dialogue state %s: %v", sc.Current, r)
			slog.ErrorContext(ctx, "dialogue fault recovered",
				slog.String("session_id", sc.SessionID), slog.String("error", err.Error()))
			step = Step{Result: fallbackResult(FailureInternal), Session: sc.snapshot()}
			pending = append(pending, emission{events.SystemError, events.SystemErrorData{
				Operation: "process", Error: err.Error(),
			}})
		}
		ent.touched.Store(sc.LastActivityAt.UnixNano())
	}()

	sc.beginTurn(req.Message, req.Intent, req.Entities, now)

	if sc.Current == StateNone {
		sc.setState(StateHello, now)
		e.dlg.enter(StateHello, sc)
	}

	res := e.dlg.handleInput(sc.Current, sc, Input{
		Message:  req.Message,
		Intent:   req.Intent,
		Entities: req.Entities,
	})
	if res.NextState != "" {
		res, pending = e.transition(ctx, sc, res, pending)
	}

	sc.addReply(res.Response, now)
	snap := sc.snapshot()
	snap.AvailableActions = e.dlg.availableActions(sc.Current, sc)

	pending = append(pending, emission{events.TurnProcessed, events.TurnProcessedData{
		UserID:       sc.UserID,
		Platform:     string(sc.Platform),
		Intent:       req.Intent,
		State:        sc.Current.String(),
		MessageCount: sc.MessageCount,
	}})
	return Step{Result: res, Session: snap}, pending
}

// transition applies the state change requested by res. Unknown targets
// become hello; targets off the allow-list leave the session where it is.
func (e *Engine) transition(ctx context.Context, sc *SessionContext, res StateResult, pending []emission) (StateResult, []emission) {
	target, ok := ParseState(res.NextState)
	if !ok {
		slog.WarnContext(ctx, "unknown target state, using hello",
			slog.String("session_id", sc.SessionID), slog.String("requested", res.NextState))
		target = StateHello
	}

	from := sc.Current
	if !from.CanTransitionTo(target) {
		slog.WarnContext(ctx, "transition refused",
			slog.String("session_id", sc.SessionID),
			slog.String("from", from.String()), slog.String("to", target.String()))
		pending = append(pending, emission{events.TransitionRefused, events.TransitionRefusedData{
			FromState: from.String(), ToState: target.String(),
		}})
		return res, pending
	}

	if reason := res.Reason(); reason != "" {
		sc.Data[MetaEscalationReason] = reason
	}

	now := e.now()
	e.dlg.exit(from, sc)
	sc.setState(target, now)
	entered := e.dlg.enter(target, sc)

	slog.InfoContext(ctx, "state transition",
		slog.String("session_id", sc.SessionID),
		slog.String("from", from.String()), slog.String("to", target.String()))
	pending = append(pending, emission{events.StateTransition, events.StateTransitionData{
		FromState: from.String(), ToState: target.String(), Requested: res.NextState,
	}})

	return compose(res, entered), pending
}

// Snapshot returns a copy of the session, or false if it does not exist.
func (e *Engine) Snapshot(sessionID string) (SessionSnapshot, bool) {
	ent, ok := e.table.get(sessionID)
	if !ok {
		return SessionSnapshot{}, false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	snap := ent.sc.snapshot()
	if ent.sc.Current != StateNone {
		snap.AvailableActions = e.dlg.availableActions(ent.sc.Current, ent.sc)
	}
	return snap, true
}

// MarkHandedOff records that the session has been passed to a human. It
// reports true only for the call that set the mark, so concurrent turns
// publish one escalation between them.
func (e *Engine) MarkHandedOff(sessionID string) bool {
	ent, ok := e.table.get(sessionID)
	if !ok {
		return false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.sc.HandedOff {
		return false
	}
	ent.sc.HandedOff = true
	return true
}

// ResetContext clears everything a session has accumulated, keeping only
// its identity.
func (e *Engine) ResetContext(ctx context.Context, sessionID string) error {
	ent, ok := e.table.get(sessionID)
	if !ok {
		return fmt.Errorf("reset %q: %w", sessionID, ErrSessionNotFound)
	}

	ent.mu.Lock()
	ent.sc.reset(e.now())
	ent.touched.Store(ent.sc.LastActivityAt.UnixNano())
	ent.mu.Unlock()

	slog.InfoContext(ctx, "session reset", slog.String("session_id", sessionID))
	e.publish(ctx, sessionID, []emission{{events.SessionReset, struct{}{}}})
	return nil
}

// ForceTransition moves a session into stateName without consulting the
// allow-list. Unknown names become hello.
func (e *Engine) ForceTransition(ctx context.Context, sessionID, stateName string) (err error) {
	ent, ok := e.table.get(sessionID)
	if !ok {
		return fmt.Errorf("force %q: %w", sessionID, ErrSessionNotFound)
	}

	target, known := ParseState(stateName)
	if !known {
		slog.WarnContext(ctx, "unknown forced state, using hello",
			slog.String("session_id", sessionID), slog.String("requested", stateName))
		target = StateHello
	}

	var from State
	func() {
		ent.mu.Lock()
		defer ent.mu.Unlock()
		sc := ent.sc
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("force %q into %s: %v", sessionID, target, r)
			}
			ent.touched.Store(sc.LastActivityAt.UnixNano())
		}()

		from = sc.Current
		sc.TurnMessage = ""
		sc.TurnEntities = nil
		if from != StateNone {
			e.dlg.exit(from, sc)
		}
		sc.setState(target, e.now())
		entered := e.dlg.enter(target, sc)
		sc.addReply(entered.Response, sc.LastActivityAt)
	}()
	if err != nil {
		slog.ErrorContext(ctx, "forced transition failed", slog.String("error", err.Error()))
		e.publish(ctx, sessionID, []emission{{events.SystemError, events.SystemErrorData{
			Operation: "force_transition", Error: err.Error(),
		}}})
		return err
	}

	slog.InfoContext(ctx, "forced transition",
		slog.String("session_id", sessionID),
		slog.String("from", from.String()), slog.String("to", target.String()))
	e.publish(ctx, sessionID, []emission{{events.SessionForced, events.StateTransitionData{
		FromState: from.String(), ToState: target.String(), Requested: stateName, Forced: true,
	}}})
	return nil
}

// CleanupInactive removes sessions idle for longer than maxInactiveMinutes
// and returns how many were removed. The table is locked only to snapshot
// candidates and to delete each one; session locks are never taken.
func (e *Engine) CleanupInactive(ctx context.Context, maxInactiveMinutes int) int {
	cutoff := e.now().Add(-time.Duration(maxInactiveMinutes) * time.Minute).UnixNano()

	removed := 0
	for _, id := range e.table.staleKeys(cutoff) {
		if e.table.removeIfStale(id, cutoff) {
			removed++
		}
	}

	if removed > 0 {
		slog.InfoContext(ctx, "inactive sessions removed",
			slog.Int("removed", removed), slog.Int("max_inactive_minutes", maxInactiveMinutes))
		e.publish(ctx, "", []emission{{events.SessionsCleaned, events.SessionsCleanedData{
			MaxInactiveMinutes: maxInactiveMinutes, Removed: removed,
		}}})
	}
	return removed
}

// ActiveSessionCount returns the number of sessions in the table.
func (e *Engine) ActiveSessionCount() int {
	return e.table.len()
}

// AvailableStates returns the registered state names.
func (e *Engine) AvailableStates() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = s.String()
	}
	return out
}

// Sessions snapshots every session. Each session is locked briefly in turn.
func (e *Engine) Sessions() []SessionSnapshot {
	ents := e.table.entries()
	out := make([]SessionSnapshot, 0, len(ents))
	for _, ent := range ents {
		ent.mu.Lock()
		out = append(out, ent.sc.snapshot())
		ent.mu.Unlock()
	}
	return out
}

func (e *Engine) publish(ctx context.Context, sessionID string, pending []emission) {
	for _, em := range pending {
		if err := e.publisher.Emit(ctx, em.typ, sessionID, em.data); err != nil {
			slog.WarnContext(ctx, "event publish failed",
				slog.String("event_type", string(em.typ)), slog.String("error", err.Error()))
		}
	}
}
