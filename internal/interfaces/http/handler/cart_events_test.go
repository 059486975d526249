package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appcart "github.com/storefront/backend/internal/application/cart"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	name string
	id   string
	data string
}

func (e sseEvent) cartEvent(t *testing.T) dto.CartEvent {
	t.Helper()
	var out dto.CartEvent
	require.NoError(t, json.Unmarshal([]byte(e.data), &out), e.data)
	return out
}

// openStream connects tabID to the event stream and returns its parsed events
func openStream(t *testing.T, srv *httptest.Server, tabID string) (<-chan sseEvent, *http.Response) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/cart/events", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.HeaderTabID, tabID)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				events <- ev
				ev = sseEvent{}
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "id: "):
				ev.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return events, resp
}

// nextEvent returns the next event named name, skipping heartbeats
func nextEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed before %q", name)
			if ev.name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %q event", name)
		}
	}
}

func TestCartEventsHandler_Defaults(t *testing.T) {
	h := NewCartEventsHandler(nil, nil)
	defer h.Stop()

	assert.Equal(t, 30*time.Second, h.heartbeat)
	assert.Equal(t, int64(10000), h.maxClients)
	assert.Zero(t, h.ClientCount())
}

func TestCartEventsHandler_Connected(t *testing.T) {
	s := newCartServer(t)
	s.do("tab-a", http.MethodPost, "/cart/items", `{"product_id":"lamp","quantity":2}`)
	srv := s.serve()

	events, resp := openStream(t, srv, "tab-a")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	ev := nextEvent(t, events, EventConnected)
	assert.Equal(t, "1", ev.id)
	connected := ev.cartEvent(t)
	assert.Equal(t, EventConnected, connected.Kind)
	require.NotNil(t, connected.Cart)
	assert.Equal(t, "tab-a", connected.Cart.TabID)
	assert.Equal(t, 2, connected.Cart.TotalItems)
	assert.Nil(t, connected.Abandoned)
	assert.Equal(t, 1, s.events.ClientCount())
}

func TestCartEventsHandler_ConnectedOffersRecovery(t *testing.T) {
	s := newCartServer(t)
	s.do("tab-a", http.MethodPost, "/cart/items", `{"product_id":"lamp","quantity":1}`)
	s.do("tab-a", http.MethodDelete, "/cart", "")
	srv := s.serve()

	events, _ := openStream(t, srv, "tab-b")

	connected := nextEvent(t, events, EventConnected).cartEvent(t)
	require.NotNil(t, connected.Abandoned)
	assert.Equal(t, "tab-a", connected.Abandoned.TabID)
	assert.Equal(t, 1, connected.Abandoned.TotalItems)
}

func TestCartEventsHandler_StreamsSyncedCart(t *testing.T) {
	s := newCartServer(t)
	srv := s.serve()

	events, _ := openStream(t, srv, "tab-a")
	nextEvent(t, events, EventConnected)

	s.do("tab-b", http.MethodPost, "/cart/items", `{"product_id":"lamp","quantity":3}`)

	ev := nextEvent(t, events, string(appcart.NoticeCartSynced))
	assert.Equal(t, "2", ev.id)
	synced := ev.cartEvent(t)
	assert.Equal(t, appcart.LevelInfo, synced.Level)
	assert.NotEmpty(t, synced.Message)
	require.NotNil(t, synced.Cart)
	assert.Equal(t, "tab-a", synced.Cart.TabID)
	assert.Equal(t, 3, synced.Cart.TotalItems)
}

func TestCartEventsHandler_StreamsImportRejected(t *testing.T) {
	s := newCartServer(t)
	srv := s.serve()

	events, _ := openStream(t, srv, "tab-a")
	nextEvent(t, events, EventConnected)

	s.do("tab-a", http.MethodPost, "/cart/import", `{"version":"0.1.0","items":[]}`)

	rejected := nextEvent(t, events, string(appcart.NoticeImportRejected)).cartEvent(t)
	assert.Equal(t, appcart.LevelError, rejected.Level)
	assert.Nil(t, rejected.Cart)
}

func TestCartEventsHandler_Heartbeat(t *testing.T) {
	s := newCartServer(t, WithEventsHeartbeat(20*time.Millisecond))
	srv := s.serve()

	events, _ := openStream(t, srv, "tab-a")
	nextEvent(t, events, EventConnected)

	ev := nextEvent(t, events, EventHeartbeat)
	assert.Contains(t, ev.data, `"timestamp":`)
	assert.Empty(t, ev.id)
}

func TestCartEventsHandler_MaxClients(t *testing.T) {
	s := newCartServer(t, WithEventsMaxClients(1))
	srv := s.serve()

	events, _ := openStream(t, srv, "tab-a")
	nextEvent(t, events, EventConnected)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/cart/events", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.HeaderTabID, "tab-b")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, s.events.ClientCount())
}

func TestCartEventsHandler_StopClosesStreams(t *testing.T) {
	s := newCartServer(t)
	srv := s.serve()

	events, _ := openStream(t, srv, "tab-a")
	nextEvent(t, events, EventConnected)

	s.events.Stop()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.events.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCartEventsHandler_SendEventFormat(t *testing.T) {
	h := &CartEventsHandler{}
	var buf bytes.Buffer

	h.sendEvent(&buf, SSEMessage{Event: "cart_synced", ID: "7", Data: `{"kind":"cart_synced"}`})
	h.sendEvent(&buf, SSEMessage{Data: "{}"})

	assert.Equal(t, "event: cart_synced\nid: 7\ndata: {\"kind\":\"cart_synced\"}\n\ndata: {}\n\n", buf.String())
}

func TestNoticeEvent(t *testing.T) {
	st := cart.NewState()
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	ev := noticeEvent("tab-a", appcart.Notice{
		Kind:    appcart.NoticeCartRestored,
		Level:   appcart.LevelInfo,
		Message: "restored",
		State:   &st,
		At:      at,
	})

	assert.Equal(t, string(appcart.NoticeCartRestored), ev.Kind)
	assert.Equal(t, "restored", ev.Message)
	assert.Equal(t, at, ev.At)
	require.NotNil(t, ev.Cart)
	assert.Equal(t, "tab-a", ev.Cart.TabID)
	assert.Nil(t, ev.Abandoned)
}
