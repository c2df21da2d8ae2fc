package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/workerpool"
	"gorm.io/gorm"

	"github.com/voicetyped/supportflow/internal/flow/flowrpc"
	"github.com/voicetyped/supportflow/pkg/flow"
	"github.com/voicetyped/supportflow/pkg/handoff"
)

const defaultTicketLimit = 50

// Ensure we implement the interface.
var _ flowrpc.FlowServiceHandler = (*FlowHandler)(nil)

// FlowHandler implements flowrpc.FlowServiceHandler over an orchestrator.
type FlowHandler struct {
	orch    *flow.Orchestrator
	tickets handoff.TicketStore
	pool    workerpool.WorkerPool
}

// NewFlowHandler creates a flow service handler. tickets may be nil when
// hand-off storage is disabled.
func NewFlowHandler(orch *flow.Orchestrator, tickets handoff.TicketStore, pool workerpool.WorkerPool) *FlowHandler {
	return &FlowHandler{orch: orch, tickets: tickets, pool: pool}
}

// StartReaper removes sessions idle for longer than maxInactive every
// interval until ctx is done.
func (h *FlowHandler) StartReaper(ctx context.Context, interval, maxInactive time.Duration) {
	minutes := int(maxInactive / time.Minute)
	reap := func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.orch.CleanupInactiveSessions(ctx, minutes); n > 0 {
					slog.InfoContext(ctx, "reaped idle sessions", slog.Int("removed", n))
				}
			}
		}
	}
	if h.pool != nil {
		if err := h.pool.Submit(ctx, reap); err == nil {
			return
		}
		slog.WarnContext(ctx, "reaper not accepted by pool, running standalone")
	}
	go reap()
}

func (h *FlowHandler) ProcessTurn(ctx context.Context, req *connect.Request[flowrpc.ProcessTurnRequest]) (*connect.Response[flowrpc.ProcessTurnResponse], error) {
	msg := req.Msg
	platform := flow.Platform(msg.Platform)
	if platform == "" {
		platform = flow.PlatformWeb
	}
	if !platform.Known() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown platform %q", msg.Platform))
	}

	out := h.orch.ProcessTurn(ctx, flow.TurnRequest{
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Platform:  platform,
		Message:   msg.Message,
		Intent:    msg.Intent,
		Entities:  msg.Entities,
	})

	return connect.NewResponse(&flowrpc.ProcessTurnResponse{
		Success:          out.OK(),
		Error:            string(out.Failure),
		Response:         out.Response,
		RequiresHuman:    out.RequiresHuman,
		SuggestedActions: out.SuggestedActions,
		NextQuestions:    out.NextQuestions,
		EscalationReason: out.EscalationReason,
		Priority:         out.Priority,
		CurrentState:     out.CurrentState,
		ShouldContinue:   out.ShouldContinue,
	}), nil
}

func (h *FlowHandler) GetSessionState(ctx context.Context, req *connect.Request[flowrpc.GetSessionStateRequest]) (*connect.Response[flowrpc.GetSessionStateResponse], error) {
	snap, ok := h.orch.GetSessionState(req.Msg.SessionID)
	if !ok {
		return nil, sessionNotFound(req.Msg.SessionID)
	}
	return connect.NewResponse(&flowrpc.GetSessionStateResponse{Session: snap}), nil
}

func (h *FlowHandler) ResetSession(ctx context.Context, req *connect.Request[flowrpc.ResetSessionRequest]) (*connect.Response[flowrpc.ResetSessionResponse], error) {
	return connect.NewResponse(&flowrpc.ResetSessionResponse{
		Reset: h.orch.ResetSession(ctx, req.Msg.SessionID),
	}), nil
}

func (h *FlowHandler) ForceStateTransition(ctx context.Context, req *connect.Request[flowrpc.ForceStateTransitionRequest]) (*connect.Response[flowrpc.ForceStateTransitionResponse], error) {
	return connect.NewResponse(&flowrpc.ForceStateTransitionResponse{
		Applied: h.orch.ForceStateTransition(ctx, req.Msg.SessionID, req.Msg.State),
	}), nil
}

func (h *FlowHandler) CleanupInactiveSessions(ctx context.Context, req *connect.Request[flowrpc.CleanupInactiveSessionsRequest]) (*connect.Response[flowrpc.CleanupInactiveSessionsResponse], error) {
	if req.Msg.MaxInactiveMinutes < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("max_inactive_minutes must not be negative"))
	}
	return connect.NewResponse(&flowrpc.CleanupInactiveSessionsResponse{
		Removed: h.orch.CleanupInactiveSessions(ctx, req.Msg.MaxInactiveMinutes),
	}), nil
}

func (h *FlowHandler) GetFlowMetrics(ctx context.Context, req *connect.Request[flowrpc.GetFlowMetricsRequest]) (*connect.Response[flowrpc.GetFlowMetricsResponse], error) {
	return connect.NewResponse(&flowrpc.GetFlowMetricsResponse{Metrics: h.orch.GetFlowMetrics()}), nil
}

func (h *FlowHandler) GetSessionMetrics(ctx context.Context, req *connect.Request[flowrpc.GetSessionMetricsRequest]) (*connect.Response[flowrpc.GetSessionMetricsResponse], error) {
	m, ok := h.orch.GetSessionMetrics(req.Msg.SessionID)
	if !ok {
		return nil, sessionNotFound(req.Msg.SessionID)
	}
	return connect.NewResponse(&flowrpc.GetSessionMetricsResponse{Metrics: m}), nil
}

func (h *FlowHandler) ListOpenTickets(ctx context.Context, req *connect.Request[flowrpc.ListOpenTicketsRequest]) (*connect.Response[flowrpc.ListOpenTicketsResponse], error) {
	if h.tickets == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("hand-off tickets are disabled"))
	}
	limit := req.Msg.Limit
	if limit <= 0 {
		limit = defaultTicketLimit
	}

	tickets, err := h.tickets.ListOpen(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "list open tickets", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to list tickets"))
	}

	resp := &flowrpc.ListOpenTicketsResponse{Tickets: make([]flowrpc.TicketSummary, 0, len(tickets))}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, flowrpc.TicketSummary{
			ID:        t.ID,
			SessionID: t.SessionID,
			UserID:    t.UserID,
			Platform:  t.Platform,
			Reason:    t.Reason,
			Priority:  t.Priority,
			State:     t.State,
			Status:    t.Status,
			CreatedAt: t.CreatedAt,
		})
	}
	return connect.NewResponse(resp), nil
}

func (h *FlowHandler) CloseTicket(ctx context.Context, req *connect.Request[flowrpc.CloseTicketRequest]) (*connect.Response[flowrpc.CloseTicketResponse], error) {
	if h.tickets == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("hand-off tickets are disabled"))
	}
	if req.Msg.TicketID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("ticket_id is required"))
	}

	if err := h.tickets.Close(ctx, req.Msg.TicketID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("open ticket %q not found", req.Msg.TicketID))
		}
		slog.ErrorContext(ctx, "close ticket", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to close ticket"))
	}
	return connect.NewResponse(&flowrpc.CloseTicketResponse{}), nil
}

func sessionNotFound(id string) error {
	return connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q: %w", id, flow.ErrSessionNotFound))
}
