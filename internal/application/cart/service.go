package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service errors
var (
	ErrTabAlreadyStarted = shared.NewDomainError("TAB_ALREADY_STARTED", "Cart is already mounted for this tab")
	ErrCartEmpty         = shared.NewDomainError("CART_EMPTY", "Cart is empty")
	ErrArchiveDisabled   = shared.NewDomainError("ARCHIVE_DISABLED", "Cart export archive is not configured")
)

// Config holds per-tab settings
type Config struct {
	TabID     string
	SessionID string

	// StaleAfter is the inactivity after which a non-empty cart counts as
	// abandoned when the tab is hidden or closed. 0 treats every close as stale.
	StaleAfter time.Duration

	// RecoveryWindow bounds how old an abandoned cart may be to be offered
	// for recovery on mount. 0 offers any retained snapshot.
	RecoveryWindow time.Duration
}

// Dependencies are the collaborators of a Service. Gateway, Tracker and Codec
// are required, the rest fall back to no-ops.
type Dependencies struct {
	Gateway  Gateway
	Tracker  Tracker
	Codec    Codec
	Sync     SyncFactory
	Devices  DeviceIdentity
	Catalog  Catalog
	Notifier Notifier
	Metrics  Metrics
	Archiver *ExportArchiver
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service owns the live cart of one tab. Actions are applied one at a time in
// dispatch order, every change is persisted, and writes made by other tabs
// replace the local cart.
type Service struct {
	cfg      Config
	gateway  Gateway
	tracker  Tracker
	codec    Codec
	newSync  SyncFactory
	devices  DeviceIdentity
	catalog  Catalog
	notifier Notifier
	metrics  Metrics
	archiver *ExportArchiver
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    cart.State
	meta     cart.Metadata
	syncer   SyncManager
	started  bool
	recovery *cart.AbandonedCart
}

// NewService creates an unmounted Service for cfg.TabID
func NewService(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Gateway == nil || deps.Tracker == nil || deps.Codec == nil {
		return nil, errors.New("cart service requires a gateway, tracker and codec")
	}
	if cfg.TabID == "" {
		cfg.TabID = uuid.NewString()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	s := &Service{
		cfg:      cfg,
		gateway:  deps.Gateway,
		tracker:  deps.Tracker,
		codec:    deps.Codec,
		newSync:  deps.Sync,
		devices:  deps.Devices,
		catalog:  deps.Catalog,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		archiver: deps.Archiver,
		logger:   deps.Logger,
		now:      deps.Now,
		state:    cart.NewState(),
	}
	if s.newSync == nil {
		s.newSync = func(func() []cart.CartItem) SyncManager { return nopSync{} }
	}
	if s.devices == nil {
		s.devices = staticDevice(uuid.NewString())
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// log returns the tab logger enriched with the identifiers in ctx
func (s *Service) log(ctx context.Context) *logger.ContextLogger {
	if logger.GetTabID(ctx) != s.cfg.TabID {
		ctx, _ = logger.WithTabID(ctx, s.logger, s.cfg.TabID)
	}
	return logger.WithLogger(ctx, s.logger)
}

func (s *Service) startSpan(ctx context.Context, method string, opts ...telemetry.SpanOption) (context.Context, trace.Span) {
	opts = append([]telemetry.SpanOption{telemetry.WithAttribute(telemetry.SpanAttrTabID, s.cfg.TabID)}, opts...)
	return telemetry.StartServiceSpan(ctx, "cart", method, opts...)
}

// TabID returns the tab this service belongs to
func (s *Service) TabID() string {
	return s.cfg.TabID
}

// Start mounts the cart: it loads the persisted cart, offers recovery of a
// recent abandoned cart when there is none, and starts listening for writes
// from other tabs. The sync manager stays attached until Stop or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrTabAlreadyStarted
	}

	now := s.now()
	s.meta = cart.Metadata{
		SessionID: s.cfg.SessionID,
		DeviceID:  s.devices.DeviceID(ctx),
		TabID:     s.cfg.TabID,
		Version:   s.codec.Version(),
		CreatedAt: now,
	}

	var recovery *cart.AbandonedCart
	if snap := s.gateway.Load(ctx); snap != nil {
		next, err := cart.Reduce(s.state, cart.Load{Items: snap.Items}, now)
		if err != nil {
			s.log(ctx).Warn("Ignoring persisted cart", zap.Error(err))
		} else {
			s.state = next
		}
		if snap.Metadata != nil && !snap.Metadata.CreatedAt.IsZero() {
			s.meta.CreatedAt = snap.Metadata.CreatedAt
		}
	} else if abandoned, ok := s.tracker.MostRecent(ctx, s.cfg.RecoveryWindow); ok {
		recovery = &abandoned
		s.recovery = recovery
	}

	s.syncer = s.newSync(s.localItems)
	s.started = true
	sm := s.syncer
	items := len(s.state.Items)
	s.mu.Unlock()

	if err := sm.Start(ctx, s.applyRemote); err != nil {
		s.log(ctx).Warn("Cart sync unavailable", zap.Error(err))
	}

	s.log(ctx).Info("Cart mounted",
		zap.Int("items", items),
		zap.Bool("recovery_offered", recovery != nil))

	if recovery != nil {
		s.notifier.Notify(s.cfg.TabID, Notice{
			Kind:      NoticeRecoveryAvailable,
			Level:     LevelInfo,
			Message:   "You have items from a previous visit",
			Abandoned: recovery,
			At:        now,
		})
	}
	return nil
}

// Stop unmounts the cart. Sync is always stopped; a non-empty cart that has
// gone stale is recorded as abandoned.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	sm := s.syncer
	s.syncer = nil
	items, stale := s.staleItemsLocked()
	s.mu.Unlock()

	// The sync callback takes s.mu, so the manager is stopped without holding it.
	defer sm.Stop()

	if stale {
		s.recordAbandonment(ctx, items)
	}
	s.log(ctx).Info("Cart unmounted", zap.Bool("abandoned", stale))
}

// IsStarted reports whether the cart is mounted
func (s *Service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// CheckStale records the cart as abandoned when it is non-empty and has not
// changed for StaleAfter. Used when a tab becomes hidden.
func (s *Service) CheckStale(ctx context.Context) bool {
	s.mu.Lock()
	items, stale := s.staleItemsLocked()
	s.mu.Unlock()

	if !stale {
		return false
	}
	return s.recordAbandonment(ctx, items)
}

// State returns a copy of the current cart
func (s *Service) State() cart.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Metadata returns the tab's cart metadata as of the last successful save
func (s *Service) Metadata() cart.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// PendingRecovery returns the abandoned cart offered on mount, if it is still pending
func (s *Service) PendingRecovery() *cart.AbandonedCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recovery == nil {
		return nil
	}
	rec := *s.recovery
	rec.Items = cart.CloneItems(rec.Items)
	return &rec
}

// AddToCart adds quantity units of product. A nil finalPrice uses the
// variant-adjusted catalog price.
func (s *Service) AddToCart(
	ctx context.Context,
	product cart.Product,
	quantity int,
	variants cart.Variants,
	finalPrice *decimal.Decimal,
) (cart.State, error) {
	return s.dispatch(ctx, cart.AddItem{
		Product:    product,
		Quantity:   quantity,
		Variants:   variants,
		FinalPrice: finalPrice,
	})
}

// AddProductByID looks productID up in the catalog and adds it
func (s *Service) AddProductByID(ctx context.Context, productID string, quantity int, variants cart.Variants) (cart.State, error) {
	if s.catalog == nil {
		return cart.State{}, fmt.Errorf("no catalog configured: %w", cart.ErrProductNotFound)
	}
	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return cart.State{}, err
	}
	return s.AddToCart(ctx, product, quantity, variants, nil)
}

// RemoveFromCart removes an item. Unknown ids leave the cart unchanged.
func (s *Service) RemoveFromCart(ctx context.Context, itemID string) (cart.State, error) {
	return s.dispatch(ctx, cart.RemoveItem{ItemID: itemID})
}

// UpdateQuantity sets an item's quantity; quantity <= 0 removes it
func (s *Service) UpdateQuantity(ctx context.Context, itemID string, quantity int) (cart.State, error) {
	return s.dispatch(ctx, cart.UpdateQuantity{ItemID: itemID, Quantity: quantity})
}

// UpdateVariants changes an item's variant selection
func (s *Service) UpdateVariants(
	ctx context.Context,
	itemID string,
	variants cart.Variants,
	finalPrice *decimal.Decimal,
) (cart.State, error) {
	s.mu.Lock()
	_, ok := s.state.Item(itemID)
	s.mu.Unlock()
	if !ok {
		return cart.State{}, cart.ErrItemNotFound
	}
	return s.dispatch(ctx, cart.UpdateVariants{ItemID: itemID, Variants: variants, FinalPrice: finalPrice})
}

// ClearCart empties the cart. A non-empty cart is recorded as abandoned from
// the items it held when cleared.
func (s *Service) ClearCart(ctx context.Context) cart.State {
	ctx, span := s.startSpan(ctx, "clear")
	defer span.End()

	s.mu.Lock()
	items := cart.CloneItems(s.state.Items)
	state := s.clearLocked(ctx)
	s.mu.Unlock()

	s.metrics.RecordAction(ctx, cart.ActionName(cart.Clear{}))
	telemetry.SetAttributes(span, telemetry.SpanAttrItems, len(items))
	if len(items) > 0 {
		s.recordAbandonment(ctx, items)
	}
	return state
}

// CompleteCheckout empties the cart without recording abandonment and drops
// any abandoned snapshot of this tab. It returns the checked-out cart.
func (s *Service) CompleteCheckout(ctx context.Context) (cart.State, error) {
	ctx, span := s.startSpan(ctx, "checkout")
	defer span.End()

	s.mu.Lock()
	checkedOut := cloneState(s.state)
	if checkedOut.IsEmpty() {
		s.mu.Unlock()
		telemetry.RecordError(span, ErrCartEmpty)
		return cart.State{}, ErrCartEmpty
	}
	s.clearLocked(ctx)
	s.mu.Unlock()

	s.metrics.RecordAction(ctx, cart.ActionName(cart.Clear{}))
	s.tracker.Remove(ctx, s.cfg.TabID)
	telemetry.SetAttributes(span, telemetry.SpanAttrItems, len(checkedOut.Items))

	s.log(ctx).Info("Checkout completed",
		zap.Int("total_items", checkedOut.TotalItems),
		zap.String("total_price", checkedOut.TotalPrice.String()))
	return checkedOut, nil
}

// ImportCart replaces the cart with an exported envelope. A version mismatch
// or unreadable payload is rejected without touching the cart.
func (s *Service) ImportCart(ctx context.Context, data []byte) (cart.State, error) {
	ctx, span := s.startSpan(ctx, "import", telemetry.WithAttribute(telemetry.SpanAttrBytes, len(data)))
	defer span.End()

	items, err := s.codec.Decode(data)
	if err != nil {
		outcome, message := OutcomeCorrupt, "The cart file could not be read"
		if errors.Is(err, cart.ErrVersionMismatch) {
			outcome, message = OutcomeVersionMismatch, "The cart file was exported by an incompatible version"
		}
		telemetry.RecordError(span, err)
		s.metrics.RecordImport(ctx, outcome)
		s.log(ctx).Warn("Cart import rejected", zap.String("outcome", outcome), zap.Error(err))
		s.notifier.Notify(s.cfg.TabID, Notice{Kind: NoticeImportRejected, Level: LevelError, Message: message, At: s.now()})
		return cart.State{}, err
	}

	state, err := s.dispatch(ctx, cart.Load{Items: items})
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordImport(ctx, OutcomeCorrupt)
		return cart.State{}, err
	}
	s.metrics.RecordImport(ctx, OutcomeAccepted)
	return state, nil
}

// ExportCart encodes the current items as a versioned envelope
func (s *Service) ExportCart(ctx context.Context) (string, error) {
	_, span := s.startSpan(ctx, "export")
	defer span.End()

	s.mu.Lock()
	items := cart.CloneItems(s.state.Items)
	s.mu.Unlock()

	data, err := s.codec.Encode(items)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("failed to export cart: %w", err)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrItems, len(items),
		telemetry.SpanAttrBytes, len(data),
	)
	return string(data), nil
}

// ArchiveExport uploads the export and returns a shareable download link
func (s *Service) ArchiveExport(ctx context.Context) (*ArchivedExport, error) {
	if s.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	ctx, span := s.startSpan(ctx, "archive_export")
	defer span.End()

	data, err := s.ExportCart(ctx)
	if err != nil {
		return nil, err
	}
	archived, err := s.archiver.Archive(ctx, s.cfg.TabID, []byte(data))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrExportID, archived.ExportID,
		telemetry.SpanAttrKey, archived.StorageKey,
	)
	return archived, nil
}

// DeleteArchivedExport removes an export previously archived by this tab
func (s *Service) DeleteArchivedExport(ctx context.Context, exportID string) error {
	if s.archiver == nil {
		return ErrArchiveDisabled
	}
	return s.archiver.Delete(ctx, s.cfg.TabID, exportID)
}

// RestoreAbandonedCart loads the snapshot abandoned by tabID. The snapshot is
// removed only once the restored cart has been saved, so a failed restore can
// be retried.
func (s *Service) RestoreAbandonedCart(ctx context.Context, tabID string) (cart.State, error) {
	ctx, span := s.startSpan(ctx, "restore", telemetry.WithAttribute(telemetry.SpanAttrSourceTabID, tabID))
	defer span.End()

	items, err := s.tracker.Restore(ctx, tabID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordRecovery(ctx, OutcomeFailed)
		return cart.State{}, err
	}

	s.mu.Lock()
	next, err := cart.Reduce(s.state, cart.Load{Items: items}, s.now())
	if err != nil {
		s.mu.Unlock()
		telemetry.RecordError(span, err)
		s.metrics.RecordRecovery(ctx, OutcomeFailed)
		return cart.State{}, err
	}
	s.state = next
	saved := s.saveLocked(ctx)
	if saved && s.recovery != nil && s.recovery.Metadata.TabID == tabID {
		s.recovery = nil
	}
	state := cloneState(s.state)
	s.mu.Unlock()

	s.metrics.RecordAction(ctx, cart.ActionName(cart.Load{}))
	if !saved {
		telemetry.RecordError(span, cart.ErrStorageUnavailable)
		s.metrics.RecordRecovery(ctx, OutcomeFailed)
		s.storageUnavailable(ctx)
		return state, cart.ErrStorageUnavailable
	}

	s.tracker.Remove(ctx, tabID)
	telemetry.SetAttributes(span, telemetry.SpanAttrItems, len(state.Items))
	s.metrics.RecordRecovery(ctx, OutcomeRestored)
	s.log(ctx).Info("Abandoned cart restored", zap.String("source_tab_id", tabID), zap.Int("total_items", state.TotalItems))
	s.notifier.Notify(s.cfg.TabID, Notice{
		Kind:    NoticeCartRestored,
		Level:   LevelInfo,
		Message: "Your previous cart has been restored",
		State:   &state,
		At:      s.now(),
	})
	return state, nil
}

// DismissAbandonedCart deletes the snapshot abandoned by tabID
func (s *Service) DismissAbandonedCart(ctx context.Context, tabID string) error {
	if !s.tracker.Remove(ctx, tabID) {
		return cart.ErrAbandonedCartNotFound
	}

	s.mu.Lock()
	if s.recovery != nil && s.recovery.Metadata.TabID == tabID {
		s.recovery = nil
	}
	s.mu.Unlock()

	s.metrics.RecordRecovery(ctx, OutcomeDismissed)
	return nil
}

// GetAbandonedCartsList returns the abandoned carts of this browser, newest first
func (s *Service) GetAbandonedCartsList(ctx context.Context) []cart.AbandonedCart {
	return s.tracker.List(ctx)
}

// dispatch applies action and persists the result when the cart changed
func (s *Service) dispatch(ctx context.Context, action cart.Action) (cart.State, error) {
	name := cart.ActionName(action)
	ctx, span := s.startSpan(ctx, "dispatch", telemetry.WithAttribute(telemetry.SpanAttrAction, name))
	defer span.End()

	s.mu.Lock()
	prev := s.state
	next, err := cart.Reduce(prev, action, s.now())
	if err != nil {
		s.mu.Unlock()
		telemetry.RecordError(span, err)
		return cart.State{}, err
	}
	s.state = next

	saved := true
	if next.LastUpdated != nil && next.LastUpdated != prev.LastUpdated {
		saved = s.saveLocked(ctx)
	}
	state := cloneState(s.state)
	s.mu.Unlock()

	s.metrics.RecordAction(ctx, name)
	telemetry.SetAttributes(span, telemetry.SpanAttrItems, len(state.Items))
	if !saved {
		telemetry.AddEvent(span, "save_failed")
		s.storageUnavailable(ctx)
	}
	return state, nil
}

// clearLocked applies CLEAR and removes the stored envelope instead of saving
// an empty cart. s.mu must be held.
func (s *Service) clearLocked(ctx context.Context) cart.State {
	next, _ := cart.Reduce(s.state, cart.Clear{}, s.now())
	s.state = next
	s.gateway.Clear(ctx)
	return cloneState(s.state)
}

// saveLocked writes the cart; s.meta.UpdatedAt only moves on success
func (s *Service) saveLocked(ctx context.Context) bool {
	meta := s.meta
	if !s.gateway.Save(ctx, s.state.Items, &meta) {
		return false
	}
	s.meta = meta
	return true
}

func (s *Service) storageUnavailable(ctx context.Context) {
	s.metrics.RecordSaveFailure(ctx)
	s.notifier.Notify(s.cfg.TabID, Notice{
		Kind:    NoticeStorageUnavailable,
		Level:   LevelWarning,
		Message: "Your cart could not be saved and will be lost when this tab closes",
		At:      s.now(),
	})
}

// applyRemote replaces the cart with items another tab persisted. The items
// are already in storage, so they are not saved again.
func (s *Service) applyRemote(items []cart.CartItem) {
	ctx, span := s.startSpan(context.Background(), "sync_apply",
		telemetry.WithSpanKind(trace.SpanKindConsumer),
		telemetry.WithAttribute(telemetry.SpanAttrItems, len(items)),
	)
	defer span.End()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	next, err := cart.Reduce(s.state, cart.Load{Items: items}, s.now())
	if err != nil {
		s.mu.Unlock()
		telemetry.RecordError(span, err)
		s.log(ctx).Warn("Ignoring synced cart", zap.Error(err))
		return
	}
	s.state = next
	state := cloneState(s.state)
	s.mu.Unlock()

	s.metrics.RecordSyncApplied(ctx)
	s.log(ctx).Debug("Cart updated from another tab", zap.Int("total_items", state.TotalItems))
	s.notifier.Notify(s.cfg.TabID, Notice{
		Kind:    NoticeCartSynced,
		Level:   LevelInfo,
		Message: "Your cart was updated in another tab",
		State:   &state,
		At:      s.now(),
	})
}

func (s *Service) localItems() []cart.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cart.CloneItems(s.state.Items)
}

func (s *Service) staleItemsLocked() ([]cart.CartItem, bool) {
	if s.state.IsEmpty() || s.state.LastUpdated == nil {
		return nil, false
	}
	if s.now().Sub(*s.state.LastUpdated) < s.cfg.StaleAfter {
		return nil, false
	}
	return cart.CloneItems(s.state.Items), true
}

func (s *Service) recordAbandonment(ctx context.Context, items []cart.CartItem) bool {
	s.mu.Lock()
	deviceID := s.meta.DeviceID
	s.mu.Unlock()
	if deviceID == "" {
		deviceID = s.devices.DeviceID(ctx)
	}

	if !s.tracker.RecordAbandonment(ctx, items, deviceID, s.cfg.TabID) {
		return false
	}
	totalItems, value := cart.Recompute(items)
	s.metrics.RecordAbandoned(ctx, totalItems, value)
	s.log(ctx).Info("Cart abandoned", zap.Int("total_items", totalItems), zap.String("total_value", value.String()))
	return true
}

func cloneState(st cart.State) cart.State {
	out := st
	out.Items = cart.CloneItems(st.Items)
	if st.LastUpdated != nil {
		ts := *st.LastUpdated
		out.LastUpdated = &ts
	}
	return out
}
