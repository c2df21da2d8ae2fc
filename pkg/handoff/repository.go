package handoff

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/frame/datastore/pool"
)

// TicketStore is what the subscriber and the API need from ticket storage.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *Ticket) (bool, error)
	GetByID(ctx context.Context, id string) (*Ticket, error)
	ListOpen(ctx context.Context, limit int) ([]Ticket, error)
	MarkNotified(ctx context.Context, id string, attempts int, notifyErr string) error
	Close(ctx context.Context, id string) error
}

// Repository stores tickets through frame's datastore pool.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a new ticket repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the ticket table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db(ctx, false).AutoMigrate(&Ticket{})
}

// CreateTicket inserts t unless a ticket for the same event already
// exists. It reports whether a row was written.
func (r *Repository) CreateTicket(ctx context.Context, t *Ticket) (bool, error) {
	res := r.db(ctx, false).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(t)
	return res.RowsAffected > 0, res.Error
}

// GetByID returns a ticket by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Ticket, error) {
	var t Ticket
	err := r.db(ctx, true).Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListOpen returns open tickets, most urgent and oldest first.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]Ticket, error) {
	var tickets []Ticket
	q := r.db(ctx, true).
		Where("status = ?", StatusOpen).
		Order("CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tickets).Error
	return tickets, err
}

// MarkNotified records the outcome of delivering a ticket to the operator desk.
func (r *Repository) MarkNotified(ctx context.Context, id string, attempts int, notifyErr string) error {
	updates := map[string]any{
		"notify_attempts": attempts,
		"notify_error":    notifyErr,
	}
	if notifyErr == "" {
		updates["notified_at"] = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	return r.db(ctx, false).Model(&Ticket{}).Where("id = ?", id).Updates(updates).Error
}

// Close marks a ticket as handled.
func (r *Repository) Close(ctx context.Context, id string) error {
	res := r.db(ctx, false).
		Model(&Ticket{}).
		Where("id = ? AND status = ?", id, StatusOpen).
		Updates(map[string]any{
			"status":    StatusClosed,
			"closed_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
