// Package storage provides the origin-scoped key/value areas that carts are
// persisted to, plus object storage for exported carts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Storage errors
var (
	ErrKeyNotFound   = errors.New("storage: key not found")
	ErrQuotaExceeded = shared.NewDomainError("STORAGE_QUOTA_EXCEEDED", "Storage quota exceeded")
	ErrBackendClosed = errors.New("storage: backend closed")
)

// ChangeEvent describes a write to a key by some writer. Removals carry a nil
// NewValue and Removed=true.
type ChangeEvent struct {
	Key      string    `json:"key"`
	NewValue []byte    `json:"newValue,omitempty"`
	Removed  bool      `json:"removed,omitempty"`
	Source   string    `json:"source"`
	Origin   string    `json:"origin"`
	At       time.Time `json:"at"`
}

// Area is one writer's (tab's) view of a shared key/value area.
// Change events are delivered at most once, without ordering guarantees, and a
// writer never receives events for its own writes.
type Area interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Watch(buffer int) (*Subscription, error)
	WriterID() string
}

// Backend is the shared storage behind every Area of one origin
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(exclude string, buffer int) (*Subscription, error)
	Origin() string
}

// Storage operations reported to an Observer
const (
	OpGet    = "get"
	OpSet    = "set"
	OpRemove = "remove"
)

// Observer is told how long each backend call of an Area took. A missing key
// on Get is reported with a nil error.
type Observer interface {
	ObserveStorage(ctx context.Context, op string, d time.Duration, err error)
}

// AreaOption configures a writer area
type AreaOption func(*writerArea)

// WithMaxValueBytes caps the size of a single stored value. 0 disables the check.
func WithMaxValueBytes(n int) AreaOption {
	return func(a *writerArea) {
		a.maxValueBytes = n
	}
}

// WithAreaLogger sets the logger
func WithAreaLogger(logger *zap.Logger) AreaOption {
	return func(a *writerArea) {
		a.logger = logger
	}
}

// WithAreaObserver reports backend call latency to o
func WithAreaObserver(o Observer) AreaOption {
	return func(a *writerArea) {
		a.observer = o
	}
}

// WithAreaClock overrides the event timestamp source
func WithAreaClock(now func() time.Time) AreaOption {
	return func(a *writerArea) {
		a.now = now
	}
}

type writerArea struct {
	backend       Backend
	writerID      string
	maxValueBytes int
	logger        *zap.Logger
	observer      Observer
	now           func() time.Time
}

// NewArea returns the Area of writerID over backend
func NewArea(backend Backend, writerID string, opts ...AreaOption) Area {
	a := &writerArea{
		backend:  backend,
		writerID: writerID,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *writerArea) WriterID() string {
	return a.writerID
}

func (a *writerArea) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := a.backend.Load(ctx, key)
	observed := err
	if errors.Is(err, ErrKeyNotFound) {
		observed = nil
	}
	a.observe(ctx, OpGet, start, observed)
	return value, err
}

func (a *writerArea) Set(ctx context.Context, key string, value []byte) error {
	if a.maxValueBytes > 0 && len(value) > a.maxValueBytes {
		return fmt.Errorf("set %q (%d bytes, limit %d): %w", key, len(value), a.maxValueBytes, ErrQuotaExceeded)
	}
	start := time.Now()
	err := a.backend.Store(ctx, key, value)
	a.observe(ctx, OpSet, start, err)
	if err != nil {
		return err
	}
	a.publish(ctx, ChangeEvent{Key: key, NewValue: value})
	return nil
}

func (a *writerArea) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := a.backend.Delete(ctx, key)
	a.observe(ctx, OpRemove, start, err)
	if err != nil {
		return err
	}
	a.publish(ctx, ChangeEvent{Key: key, Removed: true})
	return nil
}

func (a *writerArea) Watch(buffer int) (*Subscription, error) {
	return a.backend.Subscribe(a.writerID, buffer)
}

func (a *writerArea) observe(ctx context.Context, op string, start time.Time, err error) {
	if a.observer != nil {
		a.observer.ObserveStorage(ctx, op, time.Since(start), err)
	}
}

// publish failures never fail the write; other tabs simply miss the event.
func (a *writerArea) publish(ctx context.Context, event ChangeEvent) {
	event.Source = a.writerID
	event.Origin = a.backend.Origin()
	event.At = a.now()
	if err := a.backend.Publish(ctx, event); err != nil {
		a.logger.Warn("Failed to publish storage change",
			zap.String("key", event.Key),
			zap.String("writer_id", a.writerID),
			zap.Error(err))
	}
}

const probeKey = "__probe__"

// Probe reports whether backend answers reads. A missing key counts as healthy.
func Probe(ctx context.Context, backend Backend) error {
	_, err := backend.Load(ctx, probeKey)
	if err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	return nil
}
