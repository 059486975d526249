package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ServiceFactory builds the unmounted Service of a tab
type ServiceFactory func(tabID string) (*Service, error)

// TabRegistry owns the mounted Service of every open tab. Tabs are mounted on
// first use and unmounted explicitly, when idle for too long, or on Close.
type TabRegistry struct {
	factory     ServiceFactory
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
	idleTimeout time.Duration

	// ctx outlives requests; tabs listen for other tabs' writes until unmounted
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	tabs map[string]*tabEntry
}

type tabEntry struct {
	svc      *Service
	lastSeen time.Time
}

// TabRegistryOption configures a TabRegistry
type TabRegistryOption func(*TabRegistry)

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *zap.Logger) TabRegistryOption {
	return func(r *TabRegistry) {
		r.logger = logger
	}
}

// WithRegistryMetrics sets the metrics sink for the active tab gauge
func WithRegistryMetrics(m Metrics) TabRegistryOption {
	return func(r *TabRegistry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithIdleTimeout unmounts tabs not seen for d. 0 keeps tabs until removed.
func WithIdleTimeout(d time.Duration) TabRegistryOption {
	return func(r *TabRegistry) {
		r.idleTimeout = d
	}
}

// WithRegistryClock overrides the clock
func WithRegistryClock(now func() time.Time) TabRegistryOption {
	return func(r *TabRegistry) {
		r.now = now
	}
}

// NewTabRegistry creates an empty registry
func NewTabRegistry(factory ServiceFactory, opts ...TabRegistryOption) *TabRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &TabRegistry{
		factory: factory,
		metrics: nopMetrics{},
		logger:  zap.NewNop(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		tabs:    make(map[string]*tabEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the mounted Service of tabID, mounting it on first use
func (r *TabRegistry) Get(tabID string) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.tabs[tabID]; ok {
		entry.lastSeen = r.now()
		return entry.svc, nil
	}

	svc, err := r.factory(tabID)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(r.ctx); err != nil {
		return nil, err
	}
	r.tabs[tabID] = &tabEntry{svc: svc, lastSeen: r.now()}
	r.metrics.RecordActiveTabs(r.ctx, len(r.tabs))
	r.logger.Debug("Tab mounted", zap.String("tab_id", tabID), zap.Int("active_tabs", len(r.tabs)))
	return svc, nil
}

// Lookup returns the Service of tabID without mounting it
func (r *TabRegistry) Lookup(tabID string) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tabs[tabID]
	if !ok {
		return nil, false
	}
	return entry.svc, true
}

// Remove unmounts tabID and reports whether it was mounted
func (r *TabRegistry) Remove(ctx context.Context, tabID string) bool {
	r.mu.Lock()
	entry, ok := r.tabs[tabID]
	if ok {
		delete(r.tabs, tabID)
		r.metrics.RecordActiveTabs(ctx, len(r.tabs))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	entry.svc.Stop(ctx)
	return true
}

// Tabs returns the mounted tab ids, sorted
func (r *TabRegistry) Tabs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tabs))
	for id := range r.tabs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of mounted tabs
func (r *TabRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// SweepIdle unmounts tabs idle for longer than the idle timeout and returns
// how many were unmounted. Each unmounted tab gets its staleness check.
func (r *TabRegistry) SweepIdle(ctx context.Context) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	var idle []*tabEntry
	for id, entry := range r.tabs {
		if now.Sub(entry.lastSeen) > r.idleTimeout {
			idle = append(idle, entry)
			delete(r.tabs, id)
		}
	}
	if len(idle) > 0 {
		r.metrics.RecordActiveTabs(ctx, len(r.tabs))
	}
	r.mu.Unlock()

	for _, entry := range idle {
		entry.svc.Stop(ctx)
	}
	if len(idle) > 0 {
		r.logger.Info("Unmounted idle tabs", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle tabs every interval until ctx is done
func (r *TabRegistry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.SweepIdle(ctx)
		}
	}
}

// Close unmounts every tab
func (r *TabRegistry) Close(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*tabEntry, 0, len(r.tabs))
	for _, entry := range r.tabs {
		entries = append(entries, entry)
	}
	r.tabs = make(map[string]*tabEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.svc.Stop(ctx)
	}
	r.cancel()
	r.metrics.RecordActiveTabs(ctx, 0)
	r.logger.Info("Cart tabs closed", zap.Int("count", len(entries)))
}
