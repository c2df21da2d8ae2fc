package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/voicetyped/supportflow/pkg/handoff"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handler provides REST endpoints for operators working the ticket queue.
type Handler struct {
	store    handoff.TicketStore
	notifier *handoff.Notifier
}

// NewHandler creates a ticket API handler. notifier may be nil.
func NewHandler(store handoff.TicketStore, notifier *handoff.Notifier) *Handler {
	return &Handler{store: store, notifier: notifier}
}

// RegisterRoutes registers all ticket API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/tickets", h.List)
	mux.HandleFunc("GET /api/v1/tickets/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/tickets/{id}/close", h.Close)
	mux.HandleFunc("POST /api/v1/tickets/{id}/renotify", h.Renotify)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func toTicketResponse(t *handoff.Ticket, full bool) TicketResponse {
	resp := TicketResponse{
		ID:             t.ID,
		SessionID:      t.SessionID,
		UserID:         t.UserID,
		Platform:       t.Platform,
		Reason:         t.Reason,
		Priority:       t.Priority,
		State:          t.State,
		Status:         t.Status,
		NotifyAttempts: t.NotifyAttempts,
		NotifyError:    t.NotifyError,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
	if full {
		resp.Response = t.Response
		resp.OperatorContext = json.RawMessage(t.OperatorContext)
	}
	return resp
}

// List handles GET /api/v1/tickets
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	tickets, err := h.store.ListOpen(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}

	resp := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, toTicketResponse(&tickets[i], false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/tickets/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t, true))
}

// Close handles POST /api/v1/tickets/{id}/close
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	err := h.store.Close(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "open ticket not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to close ticket")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Renotify handles POST /api/v1/tickets/{id}/renotify
func (h *Handler) Renotify(w http.ResponseWriter, r *http.Request) {
	if h.notifier == nil {
		writeError(w, http.StatusNotImplemented, "operator desk is not configured")
		return
	}
	t, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if t.Status != handoff.StatusOpen {
		writeError(w, http.StatusConflict, "ticket is closed")
		return
	}

	if err := h.notifier.Notify(r.Context(), *t); err != nil {
		writeError(w, http.StatusBadGateway, "operator desk delivery failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delivered"})
}
