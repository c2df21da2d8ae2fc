package handoff

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pitabwire/frame/data"
)

// Ticket statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Ticket is a request for a human operator to pick up a session.
type Ticket struct {
	data.BaseModel

	EventID         string       `gorm:"type:varchar(50);not null;uniqueIndex:idx_ticket_event" json:"event_id"`
	SessionID       string       `gorm:"type:varchar(255);not null;index:idx_ticket_session"    json:"session_id"`
	UserID          string       `gorm:"type:varchar(255)"                                      json:"user_id"`
	Platform        string       `gorm:"type:varchar(20)"                                       json:"platform"`
	Reason          string       `gorm:"type:varchar(50);not null"                              json:"reason"`
	Priority        string       `gorm:"type:varchar(20);not null;index:idx_ticket_priority"    json:"priority"`
	State           string       `gorm:"type:varchar(20)"                                       json:"state"`
	Response        string       `gorm:"type:text"                                              json:"response"`
	OperatorContext ContextJSON  `gorm:"type:jsonb;default:'{}'"                                json:"operator_context"`
	Status          string       `gorm:"type:varchar(20);not null;default:'open';index:idx_ticket_status" json:"status"`
	NotifyAttempts  int          `gorm:"default:0"                                              json:"notify_attempts"`
	NotifyError     string       `gorm:"type:text"                                              json:"notify_error,omitempty"`
	NotifiedAt      sql.NullTime `json:"notified_at,omitempty"`
	ClosedAt        sql.NullTime `json:"closed_at,omitempty"`
}

func (Ticket) TableName() string { return "handoff_tickets" }

// ContextJSON stores the operator context as a JSON document.
type ContextJSON json.RawMessage

func (c ContextJSON) Value() (interface{}, error) {
	if len(c) == 0 {
		return "{}", nil
	}
	return string(c), nil
}

func (c *ContextJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		*c = append((*c)[:0], v...)
	case string:
		*c = ContextJSON(v)
	case nil:
		*c = nil
	default:
		return fmt.Errorf("operator context: unsupported type %T", src)
	}
	return nil
}

// MarshalJSON embeds the stored document as-is.
func (c ContextJSON) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("{}"), nil
	}
	return c, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (c *ContextJSON) UnmarshalJSON(b []byte) error {
	*c = append((*c)[:0], b...)
	return nil
}
