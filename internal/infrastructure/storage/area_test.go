package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func receive(t *testing.T, sub *Subscription) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArea_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend("https://shop.example.com", zaptest.NewLogger(t))
	defer backend.Close()

	tabA := NewArea(backend, "tab-a")
	tabB := NewArea(backend, "tab-b")

	subA, err := tabA.Watch(4)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := tabB.Watch(4)
	require.NoError(t, err)
	defer subB.Close()

	t.Run("missing key", func(t *testing.T) {
		_, err := tabA.Get(ctx, "cart")
		assert.True(t, errors.Is(err, ErrKeyNotFound))
	})

	t.Run("other tabs see writes, the writer does not", func(t *testing.T) {
		require.NoError(t, tabA.Set(ctx, "cart", []byte(`{"v":1}`)))

		ev := receive(t, subB)
		assert.Equal(t, "cart", ev.Key)
		assert.Equal(t, `{"v":1}`, string(ev.NewValue))
		assert.Equal(t, "tab-a", ev.Source)
		assert.Equal(t, "https://shop.example.com", ev.Origin)
		assertNoEvent(t, subA)

		got, err := tabB.Get(ctx, "cart")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(got))
	})

	t.Run("removal event", func(t *testing.T) {
		require.NoError(t, tabB.Remove(ctx, "cart"))

		ev := receive(t, subA)
		assert.True(t, ev.Removed)
		assert.Nil(t, ev.NewValue)
		_, err := tabA.Get(ctx, "cart")
		assert.True(t, errors.Is(err, ErrKeyNotFound))
	})

	t.Run("stored values are copies", func(t *testing.T) {
		value := []byte("abc")
		require.NoError(t, tabA.Set(ctx, "k", value))
		value[0] = 'x'
		got, err := tabA.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
		receive(t, subB)
	})
}

func TestArea_Quota(t *testing.T) {
	backend := NewMemoryBackend("o", nil)
	area := NewArea(backend, "tab", WithMaxValueBytes(8))

	err := area.Set(context.Background(), "cart", []byte("0123456789"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	_, err = area.Get(context.Background(), "cart")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

type observedCall struct {
	op  string
	err error
}

type recordingObserver struct {
	calls []observedCall
}

func (o *recordingObserver) ObserveStorage(_ context.Context, op string, d time.Duration, err error) {
	if d < 0 {
		panic("negative duration")
	}
	o.calls = append(o.calls, observedCall{op: op, err: err})
}

func TestArea_ObserverSeesBackendCalls(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend("https://shop.example", zaptest.NewLogger(t))
	defer backend.Close()
	obs := &recordingObserver{}
	area := NewArea(backend, "tab", WithMaxValueBytes(8), WithAreaObserver(obs))

	_, err := area.Get(ctx, "cart")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, area.Set(ctx, "cart", []byte("1")))
	require.Error(t, area.Set(ctx, "cart", []byte("0123456789")))
	require.NoError(t, area.Remove(ctx, "cart"))

	assert.Equal(t, []observedCall{{op: OpGet}, {op: OpSet}, {op: OpRemove}}, obs.calls)

	failing := &recordingObserver{}
	_, err = NewArea(unreachableBackend{}, "tab", WithAreaObserver(failing)).Get(ctx, "cart")
	require.Error(t, err)
	require.Len(t, failing.calls, 1)
	assert.EqualError(t, failing.calls[0].err, "connection refused")
}

func TestChangeHub(t *testing.T) {
	t.Run("full buffer drops events instead of blocking", func(t *testing.T) {
		hub := NewChangeHub(zaptest.NewLogger(t))
		sub, err := hub.Subscribe("reader", 1)
		require.NoError(t, err)

		hub.Broadcast(ChangeEvent{Key: "a", Source: "writer"})
		hub.Broadcast(ChangeEvent{Key: "b", Source: "writer"})

		assert.Equal(t, "a", receive(t, sub).Key)
		assertNoEvent(t, sub)
	})

	t.Run("close is idempotent and closes the channel", func(t *testing.T) {
		hub := NewChangeHub(nil)
		sub, err := hub.Subscribe("reader", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, hub.Len())

		sub.Close()
		sub.Close()
		assert.Equal(t, 0, hub.Len())
		_, ok := <-sub.Events()
		assert.False(t, ok)

		hub.Broadcast(ChangeEvent{Key: "late"})
	})

	t.Run("closed hub rejects subscribers", func(t *testing.T) {
		hub := NewChangeHub(nil)
		sub, err := hub.Subscribe("reader", 1)
		require.NoError(t, err)
		hub.Close()

		_, ok := <-sub.Events()
		assert.False(t, ok)
		sub.Close()

		_, err = hub.Subscribe("other", 1)
		assert.True(t, errors.Is(err, ErrBackendClosed))
	})
}

type unreachableBackend struct {
	Backend
}

func (unreachableBackend) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend("https://shop.example", zaptest.NewLogger(t))
	defer backend.Close()

	assert.NoError(t, Probe(ctx, backend))
	require.NoError(t, backend.Store(ctx, probeKey, []byte("x")))
	assert.NoError(t, Probe(ctx, backend))
	assert.EqualError(t, Probe(ctx, unreachableBackend{}), "connection refused")
}
