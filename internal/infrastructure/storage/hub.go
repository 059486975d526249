package storage

import (
	"sync"

	"go.uber.org/zap"
)

const defaultWatchBuffer = 16

// Subscription is a stream of change events from other writers
type Subscription struct {
	events <-chan ChangeEvent
	cancel func()
	once   sync.Once
}

// Events returns the event channel. It is closed after Close.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.events
}

// Close stops delivery and closes the event channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

type subscriber struct {
	exclude string
	ch      chan ChangeEvent
}

// ChangeHub fans change events out to in-process subscribers. Sends never
// block: a subscriber whose buffer is full misses the event.
type ChangeHub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *zap.Logger
}

// NewChangeHub creates an empty hub
func NewChangeHub(logger *zap.Logger) *ChangeHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeHub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber that skips events whose Source equals exclude
func (h *ChangeHub) Subscribe(exclude string, buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = defaultWatchBuffer
	}
	sub := &subscriber{exclude: exclude, ch: make(chan ChangeEvent, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrBackendClosed
	}
	h.subs[sub] = struct{}{}

	return &Subscription{
		events: sub.ch,
		cancel: func() { h.unsubscribe(sub) },
	}, nil
}

func (h *ChangeHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Broadcast delivers event to every subscriber except its writer
func (h *ChangeHub) Broadcast(event ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.exclude != "" && sub.exclude == event.Source {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("Dropped storage change event, subscriber buffer full",
				zap.String("key", event.Key),
				zap.String("source", event.Source),
				zap.String("subscriber", sub.exclude))
		}
	}
}

// Len returns the number of active subscribers
func (h *ChangeHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription and rejects new ones
func (h *ChangeHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
