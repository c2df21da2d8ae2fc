package flow

import (
	"maps"
	"time"
)

// Platform is the messaging surface a session arrived from. The engine
// stores it but does not interpret it.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformVK       Platform = "vk"
	PlatformAlice    Platform = "alice"
	PlatformViber    Platform = "viber"
)

// Known reports whether p is one of the supported platforms.
func (p Platform) Known() bool {
	switch p {
	case PlatformWeb, PlatformTelegram, PlatformWhatsApp, PlatformVK, PlatformAlice, PlatformViber:
		return true
	}
	return false
}

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Content string    `json:"content"`
	Role    Role      `json:"role"`
	At      time.Time `json:"at"`
}

// Session escalation thresholds.
const (
	escalateAfterMessages = 15
	loopHistoryMin        = 10
	loopWindow            = 6
	loopMaxDistinct       = 2
)

// SessionContext is the per-session record mutated by the engine. All
// access goes through the owning table entry's lock.
type SessionContext struct {
	UserID    string
	SessionID string
	Platform  Platform

	Current      State
	Previous     State
	StateHistory []State

	Turns      []Turn
	UserData   map[string]any
	Data       map[string]any
	Entities   map[string]any
	TurnIntent string
	// TurnEntities holds the entities supplied with the turn in progress.
	TurnEntities map[string]any
	// TurnMessage is the raw message of the turn in progress.
	TurnMessage string

	MessageCount    int
	TransitionCount int
	CreatedAt       time.Time
	LastActivityAt  time.Time

	// HandedOff is set once an escalation has been published for the
	// session. Only a reset clears it.
	HandedOff bool
}

func newSessionContext(userID, sessionID string, platform Platform, now time.Time) *SessionContext {
	return &SessionContext{
		UserID:         userID,
		SessionID:      sessionID,
		Platform:       platform,
		UserData:       make(map[string]any),
		Data:           make(map[string]any),
		Entities:       make(map[string]any),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// beginTurn records an inbound user message.
func (sc *SessionContext) beginTurn(message, intent string, entities map[string]any, now time.Time) {
	sc.Turns = append(sc.Turns, Turn{Content: message, Role: RoleUser, At: now})
	sc.MessageCount++
	sc.TurnMessage = message
	sc.TurnIntent = intent
	sc.TurnEntities = entities
	maps.Copy(sc.Entities, entities)
	sc.LastActivityAt = now
}

func (sc *SessionContext) addReply(text string, now time.Time) {
	if text == "" {
		return
	}
	sc.Turns = append(sc.Turns, Turn{Content: text, Role: RoleAssistant, At: now})
}

// setState makes s current, recording the outgoing state in the history.
func (sc *SessionContext) setState(s State, now time.Time) {
	if sc.Current != StateNone {
		sc.Previous = sc.Current
		sc.StateHistory = append(sc.StateHistory, sc.Current)
	}
	sc.Current = s
	sc.TransitionCount++
	sc.LastActivityAt = now
}

// reset clears everything except identity and creation time.
func (sc *SessionContext) reset(now time.Time) {
	*sc = SessionContext{
		UserID:         sc.UserID,
		SessionID:      sc.SessionID,
		Platform:       sc.Platform,
		UserData:       make(map[string]any),
		Data:           make(map[string]any),
		Entities:       make(map[string]any),
		CreatedAt:      sc.CreatedAt,
		LastActivityAt: now,
	}
}

// Entity returns an accumulated entity as a string.
func (sc *SessionContext) Entity(key string) string {
	switch v := sc.Entities[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return toString(v)
	}
}

// HasEntity reports whether key has been extracted in this session.
func (sc *SessionContext) HasEntity(key string) bool {
	v, ok := sc.Entities[key]
	return ok && v != nil && v != ""
}

// SetEntity stores an extracted fact for later turns.
func (sc *SessionContext) SetEntity(key string, v any) {
	sc.Entities[key] = v
}

// TurnEntity returns an entity supplied with the current turn.
func (sc *SessionContext) TurnEntity(key string) string {
	if v, ok := sc.TurnEntities[key]; ok && v != nil {
		return toString(v)
	}
	return ""
}

// ShouldEscalate is the session-level escalation predicate: too many
// messages, or a long history cycling between at most two states.
func (sc *SessionContext) ShouldEscalate() bool {
	return shouldEscalate(sc.MessageCount, sc.StateHistory)
}

func shouldEscalate(messages int, history []State) bool {
	if messages > escalateAfterMessages {
		return true
	}
	return len(history) > loopHistoryMin && distinct(history, loopWindow) <= loopMaxDistinct
}

// distinct counts the distinct states among the last n entries.
func distinct(history []State, n int) int {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	seen := make(map[State]struct{}, len(history))
	for _, s := range history {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// lastUserTurns returns up to n of the most recent user turns.
func (sc *SessionContext) lastUserTurns(n int) []Turn {
	var out []Turn
	for i := len(sc.Turns) - 1; i >= 0 && len(out) < n; i-- {
		if sc.Turns[i].Role == RoleUser {
			out = append(out, sc.Turns[i])
		}
	}
	return out
}

// SessionSnapshot is a detached copy of a session for inspection.
type SessionSnapshot struct {
	UserID           string         `json:"user_id"`
	SessionID        string         `json:"session_id"`
	Platform         Platform       `json:"platform"`
	CurrentState     string         `json:"current_state,omitempty"`
	PreviousState    string         `json:"previous_state,omitempty"`
	StateHistory     []string       `json:"state_history"`
	Turns            []Turn         `json:"turns"`
	UserData         map[string]any `json:"user_data"`
	SessionData      map[string]any `json:"session_data"`
	Entities         map[string]any `json:"extracted_entities"`
	CurrentIntent    string         `json:"current_intent,omitempty"`
	MessageCount     int            `json:"message_count"`
	TransitionCount  int            `json:"transition_count"`
	ShouldEscalate   bool           `json:"should_escalate"`
	HandedOff        bool           `json:"handed_off"`
	AvailableActions []string       `json:"available_actions"`
	CreatedAt        time.Time      `json:"created_at"`
	LastActivityAt   time.Time      `json:"last_activity_at"`
}

// HasState reports whether the session has a current state.
func (s SessionSnapshot) HasState() bool { return s.CurrentState != "" }

func (sc *SessionContext) snapshot() SessionSnapshot {
	history := make([]string, len(sc.StateHistory))
	for i, s := range sc.StateHistory {
		history[i] = s.String()
	}
	snap := SessionSnapshot{
		UserID:          sc.UserID,
		SessionID:       sc.SessionID,
		Platform:        sc.Platform,
		StateHistory:    history,
		Turns:           append([]Turn(nil), sc.Turns...),
		UserData:        maps.Clone(sc.UserData),
		SessionData:     maps.Clone(sc.Data),
		Entities:        maps.Clone(sc.Entities),
		CurrentIntent:   sc.TurnIntent,
		MessageCount:    sc.MessageCount,
		TransitionCount: sc.TransitionCount,
		ShouldEscalate:  sc.ShouldEscalate(),
		HandedOff:       sc.HandedOff,
		CreatedAt:       sc.CreatedAt,
		LastActivityAt:  sc.LastActivityAt,
	}
	if sc.Current != StateNone {
		snap.CurrentState = sc.Current.String()
	}
	if sc.Previous != StateNone {
		snap.PreviousState = sc.Previous.String()
	}
	return snap
}
