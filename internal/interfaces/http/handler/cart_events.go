package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	appcart "github.com/storefront/backend/internal/application/cart"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// SSEMessage is one server-sent event
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// Cart event names besides the notice kinds
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
)

// CartEventsHandler streams the notices of a tab as server-sent events:
// carts synced from other tabs, save failures, recovery offers and restores.
type CartEventsHandler struct {
	BaseHandler
	tabs       *appcart.TabRegistry
	broker     *appcart.NoticeBroker
	logger     *zap.Logger
	heartbeat  time.Duration
	maxClients int64
	clients    atomic.Int64
	ctx        context.Context
	cancel     context.CancelFunc
}

// CartEventsOption configures a CartEventsHandler
type CartEventsOption func(*CartEventsHandler)

// WithEventsLogger sets the logger
func WithEventsLogger(l *zap.Logger) CartEventsOption {
	return func(h *CartEventsHandler) {
		h.logger = l
	}
}

// WithEventsHeartbeat sets the heartbeat interval
func WithEventsHeartbeat(interval time.Duration) CartEventsOption {
	return func(h *CartEventsHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithEventsMaxClients caps concurrent streams; 0 means unlimited
func WithEventsMaxClients(n int) CartEventsOption {
	return func(h *CartEventsHandler) {
		h.maxClients = int64(n)
	}
}

// NewCartEventsHandler creates a new CartEventsHandler
func NewCartEventsHandler(tabs *appcart.TabRegistry, broker *appcart.NoticeBroker, opts ...CartEventsOption) *CartEventsHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &CartEventsHandler{
		tabs:       tabs,
		broker:     broker,
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxClients: 10000,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stop disconnects every stream
func (h *CartEventsHandler) Stop() {
	h.cancel()
}

// ClientCount returns the number of open streams
func (h *CartEventsHandler) ClientCount() int {
	return int(h.clients.Load())
}

// Stream godoc
// @ID           streamCartEvents
// @Summary      Stream cart events of the calling tab
// @Description  Server-sent events. The first event is "connected" with the current
// @Description  cart; later events are named after the notice kind.
// @Tags         cart
// @Produce      text/event-stream
// @Success      200 {string} string "Event stream"
// @Failure      503 {object} ErrorResponse
// @Router       /cart/events [get]
func (h *CartEventsHandler) Stream(c *gin.Context) {
	if n := h.clients.Add(1); h.maxClients > 0 && n > h.maxClients {
		h.clients.Add(-1)
		h.ServiceUnavailable(c, "Maximum number of event streams reached")
		return
	}
	defer h.clients.Add(-1)

	tabID := middleware.GetTabID(c)
	svc, err := h.tabs.Get(tabID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	notices, unsubscribe := h.broker.Subscribe(tabID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	tagDevice(c, svc.Metadata().DeviceID)
	log := requestLog(c, h.logger)
	log.Info("Cart event stream opened")

	var seq uint64
	send := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error("Failed to marshal cart event", zap.String("event", event), zap.Error(err))
			return
		}
		seq++
		h.sendEvent(c.Writer, SSEMessage{Event: event, Data: string(data), ID: strconv.FormatUint(seq, 10)})
		c.Writer.Flush()
	}

	connected := dto.CartEvent{Kind: EventConnected, At: time.Now()}
	st := dto.NewCartResponse(tabID, svc.State())
	connected.Cart = &st
	if pending := svc.PendingRecovery(); pending != nil {
		abandoned := dto.NewAbandonedCartResponse(*pending)
		connected.Abandoned = &abandoned
	}
	send(EventConnected, connected)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			log.Info("Cart event stream closed by client")
			return
		case <-h.ctx.Done():
			log.Info("Cart event stream closed by server")
			return
		case <-ticker.C:
			h.sendEvent(c.Writer, SSEMessage{
				Event: EventHeartbeat,
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
			c.Writer.Flush()
		case notice, ok := <-notices:
			if !ok {
				return
			}
			send(string(notice.Kind), noticeEvent(tabID, notice))
		}
	}
}

func noticeEvent(tabID string, n appcart.Notice) dto.CartEvent {
	event := dto.CartEvent{
		Kind:    string(n.Kind),
		Level:   n.Level,
		Message: n.Message,
		At:      n.At,
	}
	if n.State != nil {
		st := dto.NewCartResponse(tabID, *n.State)
		event.Cart = &st
	}
	if n.Abandoned != nil {
		abandoned := dto.NewAbandonedCartResponse(*n.Abandoned)
		event.Abandoned = &abandoned
	}
	return event
}

// sendEvent writes an SSE event to the response writer
func (h *CartEventsHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
