package cart

import (
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/cart"
	"go.uber.org/zap"
)

// NoticeKind identifies a notice shown to the user of a tab
type NoticeKind string

// Notice kinds
const (
	NoticeStorageUnavailable NoticeKind = "storage_unavailable"
	NoticeCartSynced         NoticeKind = "cart_synced"
	NoticeRecoveryAvailable  NoticeKind = "recovery_available"
	NoticeCartRestored       NoticeKind = "cart_restored"
	NoticeImportRejected     NoticeKind = "import_rejected"
)

// Notice levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice is a non-fatal message for the UI, optionally carrying the cart it refers to
type Notice struct {
	Kind      NoticeKind
	Level     string
	Message   string
	State     *cart.State
	Abandoned *cart.AbandonedCart
	At        time.Time
}

const defaultNoticeBuffer = 16

// NoticeBroker fans notices out to the subscribers of each tab. A subscriber
// that does not keep up loses notices rather than blocking the tab.
type NoticeBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*noticeSub]struct{}
	buffer int
	logger *zap.Logger
}

type noticeSub struct {
	ch   chan Notice
	once sync.Once
}

// NewNoticeBroker creates a broker. buffer <= 0 uses the default.
func NewNoticeBroker(buffer int, logger *zap.Logger) *NoticeBroker {
	if buffer <= 0 {
		buffer = defaultNoticeBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeBroker{
		subs:   make(map[string]map[*noticeSub]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns the notice stream of tabID and a function that ends it
func (b *NoticeBroker) Subscribe(tabID string) (<-chan Notice, func()) {
	sub := &noticeSub{ch: make(chan Notice, b.buffer)}

	b.mu.Lock()
	if b.subs[tabID] == nil {
		b.subs[tabID] = make(map[*noticeSub]struct{})
	}
	b.subs[tabID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs[tabID], sub)
		if len(b.subs[tabID]) == 0 {
			delete(b.subs, tabID)
		}
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

// Notify implements Notifier
func (b *NoticeBroker) Notify(tabID string, notice Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[tabID] {
		select {
		case sub.ch <- notice:
		default:
			b.logger.Warn("Dropping notice for slow subscriber",
				zap.String("tab_id", tabID),
				zap.String("kind", string(notice.Kind)))
		}
	}
}

// Subscribers returns the number of open streams for tabID
func (b *NoticeBroker) Subscribers(tabID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[tabID])
}
