package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrBreakerOpen is returned while the desk circuit breaker rejects calls.
var ErrBreakerOpen = errors.New("operator desk circuit open")

// NotifierConfig holds operator desk delivery settings.
type NotifierConfig struct {
	URL              string
	Secret           string
	MaxAttempts      int
	Timeout          time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
	AllowPrivate     bool
}

// Notifier posts new tickets to the operator desk.
type Notifier struct {
	cfg        NotifierConfig
	store      TicketStore
	httpClient *http.Client
	breaker    *breaker
}

// NewNotifier validates the desk URL and builds a notifier. store may be
// nil, in which case delivery outcomes are only logged.
func NewNotifier(cfg NotifierConfig, store TicketStore) (*Notifier, error) {
	if err := ValidateDeskURL(cfg.URL, cfg.AllowPrivate); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:   cfg,
		store: store,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerReset),
	}, nil
}

// BreakerState reports the desk circuit breaker state.
func (n *Notifier) BreakerState() BreakerState { return n.breaker.State() }

// Notify delivers t, retrying with exponential backoff, and records the
// outcome on the ticket.
func (n *Notifier) Notify(ctx context.Context, t Ticket) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal ticket %s: %w", t.ID, err)
	}

	var lastErr error
	attempt := 1
	for ; attempt <= n.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && !sleepCtx(ctx, n.backoff(attempt-1)) {
			lastErr = ctx.Err()
			break
		}
		lastErr = n.send(ctx, t.ID, body, attempt)
		if lastErr == nil {
			break
		}
		slog.WarnContext(ctx, "operator desk delivery failed",
			slog.String("ticket_id", t.ID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
	}
	if attempt > n.cfg.MaxAttempts {
		attempt = n.cfg.MaxAttempts
	}

	n.record(ctx, t.ID, attempt, lastErr)
	return lastErr
}

func (n *Notifier) send(ctx context.Context, ticketID string, body []byte, attempt int) error {
	if !n.breaker.allow() {
		return ErrBreakerOpen
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(n.cfg.Secret, body))
	req.Header.Set(TicketHeader, ticketID)
	req.Header.Set(AttemptHeader, attemptValue(attempt))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.breaker.failure()
		return err
	}
	defer resp.Body.Close()
	// Drain for connection reuse.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.breaker.failure()
		return fmt.Errorf("operator desk returned HTTP %d", resp.StatusCode)
	}
	n.breaker.success()
	return nil
}

func (n *Notifier) backoff(retry int) time.Duration {
	d := n.cfg.BackoffInitial << (retry - 1)
	if n.cfg.BackoffMax > 0 && (d > n.cfg.BackoffMax || d <= 0) {
		d = n.cfg.BackoffMax
	}
	return d
}

func (n *Notifier) record(ctx context.Context, ticketID string, attempts int, err error) {
	if n.store == nil || ticketID == "" {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if err := n.store.MarkNotified(ctx, ticketID, attempts, msg); err != nil {
		slog.ErrorContext(ctx, "record desk delivery failed",
			slog.String("ticket_id", ticketID), slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
