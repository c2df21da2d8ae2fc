package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/rs/xid"
)

// Publisher emits flow events to frame's event queue and to in-process
// subscribers. Without a queue manager it only fans out locally, and a nil
// *Publisher discards everything, so callers never need a guard.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string
	now      func() time.Time

	subMu       sync.RWMutex
	subscribers map[string]*subscription
}

type subscription struct {
	ch    chan Envelope
	types []EventType
}

func (s *subscription) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithClock sets the time source used to stamp envelopes.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a publisher that emits events to queueRef. source
// names the emitting component in every envelope.
func NewPublisher(queueMgr queue.Manager, source string, queueRef string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		queueMgr:    queueMgr,
		source:      source,
		queueRef:    queueRef,
		now:         time.Now,
		subscribers: make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit wraps data in an Envelope, hands it to matching local subscribers
// without blocking and publishes it to the queue.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, sessionID string, data any) error {
	if p == nil {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	envelope := Envelope{
		ID:        xid.New().String(),
		Type:      eventType,
		Source:    p.source,
		SessionID: sessionID,
		Timestamp: p.now().UTC(),
		Data:      raw,
	}

	p.subMu.RLock()
	for id, sub := range p.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- envelope:
		default:
			slog.WarnContext(ctx, "event dropped: subscriber buffer full",
				slog.String("subscriber", id), slog.String("event_type", string(eventType)))
		}
	}
	p.subMu.RUnlock()

	if p.queueMgr == nil {
		return nil
	}
	return p.queueMgr.Publish(ctx, p.queueRef, envelope)
}

// Subscribe registers a local subscription. With no types every event is
// delivered; otherwise only the listed types are. Re-subscribing an id
// replaces and closes the previous channel. Call Unsubscribe to release it.
func (p *Publisher) Subscribe(id string, bufSize int, types ...EventType) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = 64
	}
	sub := &subscription{ch: make(chan Envelope, bufSize), types: types}

	p.subMu.Lock()
	if old, ok := p.subscribers[id]; ok {
		close(old.ch)
	}
	p.subscribers[id] = sub
	p.subMu.Unlock()
	return sub.ch
}

// Unsubscribe removes a local subscription and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.subMu.Lock()
	if sub, ok := p.subscribers[id]; ok {
		close(sub.ch)
		delete(p.subscribers, id)
	}
	p.subMu.Unlock()
}
