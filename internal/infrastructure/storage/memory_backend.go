package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryBackend keeps an origin's storage in process memory. Useful for
// development and tests; contents are lost on restart.
type MemoryBackend struct {
	origin string
	mu     sync.RWMutex
	data   map[string][]byte
	hub    *ChangeHub
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend(origin string, logger *zap.Logger) *MemoryBackend {
	return &MemoryBackend{
		origin: origin,
		data:   make(map[string][]byte),
		hub:    NewChangeHub(logger),
	}
}

func (m *MemoryBackend) Origin() string {
	return m.origin
}

func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Store(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Publish(_ context.Context, event ChangeEvent) error {
	m.hub.Broadcast(event)
	return nil
}

func (m *MemoryBackend) Subscribe(exclude string, buffer int) (*Subscription, error) {
	return m.hub.Subscribe(exclude, buffer)
}

// Close drops all subscriptions
func (m *MemoryBackend) Close() error {
	m.hub.Close()
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
