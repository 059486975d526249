package event

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// ErrSyncAlreadyRunning is returned by Start on a manager that is already listening
var ErrSyncAlreadyRunning = shared.NewDomainError("SYNC_ALREADY_RUNNING", "Cart sync is already listening")

// SyncCallback receives the items another tab persisted
type SyncCallback = func(items []cart.CartItem)

// CartSyncManager watches the shared storage area for cart writes made by
// other tabs and reports the ones that diverge from this tab's items.
type CartSyncManager struct {
	area       storage.Area
	codec      *persistence.CartCodec
	key        string
	localItems func() []cart.CartItem
	buffer     int
	logger     *zap.Logger

	mu          sync.Mutex
	listening   bool
	sub         *storage.Subscription
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastApplied time.Time
}

// CartSyncOption configures a CartSyncManager
type CartSyncOption func(*CartSyncManager)

// WithSyncKey sets the storage key to watch
func WithSyncKey(key string) CartSyncOption {
	return func(m *CartSyncManager) {
		if key != "" {
			m.key = key
		}
	}
}

// WithSyncBuffer sets the event buffer size
func WithSyncBuffer(n int) CartSyncOption {
	return func(m *CartSyncManager) {
		m.buffer = n
	}
}

// WithSyncLogger sets the logger
func WithSyncLogger(logger *zap.Logger) CartSyncOption {
	return func(m *CartSyncManager) {
		m.logger = logger
	}
}

// NewCartSyncManager creates an idle manager for the tab owning area.
// localItems reports the tab's current items and is called from the
// manager's goroutine.
func NewCartSyncManager(
	area storage.Area,
	codec *persistence.CartCodec,
	localItems func() []cart.CartItem,
	opts ...CartSyncOption,
) *CartSyncManager {
	m := &CartSyncManager{
		area:       area,
		codec:      codec,
		key:        persistence.DefaultCartKey,
		localItems: localItems,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("tab_id", area.WriterID()))
	return m
}

// Start subscribes to storage changes and calls callback for every foreign
// cart write whose items differ from the local ones. The subscription ends
// on Stop or when ctx is cancelled.
func (m *CartSyncManager) Start(ctx context.Context, callback SyncCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listening {
		return ErrSyncAlreadyRunning
	}
	sub, err := m.area.Watch(m.buffer)
	if err != nil {
		return err
	}

	m.sub = sub
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.listening = true

	go m.run(ctx, sub, m.stopCh, m.doneCh, callback)

	m.logger.Debug("Cart sync listening", zap.String("key", m.key))
	return nil
}

// Stop ends the subscription and waits for an in-flight callback to return.
// It must not be called from inside the callback.
func (m *CartSyncManager) Stop() {
	m.mu.Lock()
	if !m.listening {
		m.mu.Unlock()
		return
	}
	m.listening = false
	close(m.stopCh)
	m.sub.Close()
	done := m.doneCh
	m.mu.Unlock()

	<-done
	m.logger.Debug("Cart sync stopped")
}

// IsListening reports whether the manager is subscribed
func (m *CartSyncManager) IsListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *CartSyncManager) run(ctx context.Context, sub *storage.Subscription, stopCh, doneCh chan struct{}, callback SyncCallback) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			m.detach(stopCh)
			return
		case ev, ok := <-sub.Events():
			if !ok {
				m.detach(stopCh)
				return
			}
			// Stop may have raced the receive.
			select {
			case <-stopCh:
				return
			default:
			}
			if items, ok := m.accept(ev); ok {
				m.invoke(callback, items)
			}
		}
	}
}

// detach marks the manager idle when the loop ends without Stop
func (m *CartSyncManager) detach(stopCh chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening && m.stopCh == stopCh {
		m.listening = false
		close(m.stopCh)
		m.sub.Close()
	}
}

// accept decodes ev and decides whether it should reach the callback
func (m *CartSyncManager) accept(ev storage.ChangeEvent) ([]cart.CartItem, bool) {
	if ev.Key != m.key || ev.Source == m.area.WriterID() {
		return nil, false
	}

	var incoming []cart.CartItem
	if !ev.Removed && len(ev.NewValue) > 0 {
		env, err := m.codec.DecodeEnvelope(ev.NewValue)
		if err != nil {
			m.logger.Warn("Ignoring malformed cart change",
				zap.String("source", ev.Source),
				zap.Error(err))
			return nil, false
		}
		if meta := env.Metadata; meta != nil {
			if meta.TabID == m.area.WriterID() {
				return nil, false
			}
			if !meta.UpdatedAt.IsZero() {
				if meta.UpdatedAt.Before(m.lastApplied) {
					m.logger.Debug("Ignoring out-of-order cart change",
						zap.String("source", ev.Source),
						zap.Time("updated_at", meta.UpdatedAt),
						zap.Time("last_applied", m.lastApplied))
					return nil, false
				}
				m.lastApplied = meta.UpdatedAt
			}
		}
		incoming = env.Items
	}

	if cart.Fingerprint(incoming) == cart.Fingerprint(m.localItems()) {
		return nil, false
	}
	return incoming, true
}

func (m *CartSyncManager) invoke(callback SyncCallback, items []cart.CartItem) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Cart sync callback panicked", zap.Any("panic", r))
		}
	}()
	callback(items)
}
