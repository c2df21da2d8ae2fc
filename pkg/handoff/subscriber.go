package handoff

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/voicetyped/supportflow/pkg/events"
)

// Subscriber implements queue.SubscribeWorker. It turns escalation events
// into tickets and hands new tickets to the notifier.
type Subscriber struct {
	Store    TicketStore
	Notifier *Notifier
	Pool     workerpool.WorkerPool
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("handoff subscriber: unmarshal envelope")
		return err
	}
	if env.Type != events.Escalated {
		return nil
	}

	var esc events.EscalationData
	if err := json.Unmarshal(env.Data, &esc); err != nil {
		util.Log(ctx).WithError(err).Error("handoff subscriber: unmarshal escalation")
		return err
	}

	t := TicketFromEscalation(env, esc)
	created, err := s.Store.CreateTicket(ctx, t)
	if err != nil {
		util.Log(ctx).WithError(err).Error("handoff subscriber: create ticket")
		return err
	}
	if !created {
		slog.DebugContext(ctx, "escalation already ticketed", slog.String("event_id", env.ID))
		return nil
	}
	slog.InfoContext(ctx, "handoff ticket opened",
		slog.String("ticket_id", t.ID),
		slog.String("session_id", t.SessionID),
		slog.String("reason", t.Reason),
		slog.String("priority", t.Priority))

	if s.Notifier == nil {
		return nil
	}
	ticket := *t
	notify := func() {
		if err := s.Notifier.Notify(ctx, ticket); err != nil {
			slog.WarnContext(ctx, "desk notification failed",
				slog.String("ticket_id", ticket.ID), slog.String("error", err.Error()))
		}
	}
	if s.Pool != nil {
		if err := s.Pool.Submit(ctx, notify); err != nil {
			slog.WarnContext(ctx, "handoff pool full", slog.String("ticket_id", t.ID))
		}
	} else {
		go notify()
	}
	return nil
}

// TicketFromEscalation builds an open ticket from an escalation event.
func TicketFromEscalation(env events.Envelope, esc events.EscalationData) *Ticket {
	return &Ticket{
		EventID:         env.ID,
		SessionID:       env.SessionID,
		UserID:          esc.UserID,
		Platform:        esc.Platform,
		Reason:          esc.Reason,
		Priority:        esc.Priority,
		State:           esc.State,
		Response:        esc.Response,
		OperatorContext: ContextJSON(esc.OperatorContext),
		Status:          StatusOpen,
	}
}
