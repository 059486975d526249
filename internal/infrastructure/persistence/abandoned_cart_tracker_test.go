package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time { return c.now }

func (c *steppingClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T, opts ...AbandonedCartTrackerOption) (*AbandonedCartTracker, *steppingClock) {
	t.Helper()
	clock := &steppingClock{now: codecNow.Truncate(time.Millisecond)}
	area, _ := newTestArea(t, "tab-1")
	opts = append([]AbandonedCartTrackerOption{WithTrackerClock(clock.Now)}, opts...)
	return NewAbandonedCartTracker(area, opts...), clock
}

func TestAbandonedCartTracker_RecordAndList(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(t)

	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-a"))
	clock.Advance(time.Minute)
	require.True(t, tracker.RecordAbandonment(ctx, sampleItems()[1:], "device-1", "tab-b"))

	list := tracker.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "tab-b", list[0].Metadata.TabID, "newest first")
	assert.Equal(t, "tab-a", list[1].Metadata.TabID)
	assert.Equal(t, 3, list[1].TotalItems)
	assert.Equal(t, "102.3", list[1].TotalValue.String())
	assert.Equal(t, "device-1", list[1].Metadata.DeviceID)
}

func TestAbandonedCartTracker_IgnoresEmptyCart(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	assert.False(t, tracker.RecordAbandonment(ctx, nil, "device-1", "tab-a"))
	assert.Empty(t, tracker.List(ctx))
}

func TestAbandonedCartTracker_UpsertsByTab(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(t)

	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-a"))
	clock.Advance(time.Minute)
	require.True(t, tracker.RecordAbandonment(ctx, sampleItems()[1:], "device-1", "tab-a"))

	list := tracker.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].TotalItems)
	assert.True(t, list[0].AbandonedAt.Equal(clock.Now()))
}

func TestAbandonedCartTracker_CapsEntries(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(t, WithMaxEntries(3))

	for i := 0; i < 5; i++ {
		require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", fmt.Sprintf("tab-%d", i)))
		clock.Advance(time.Second)
	}

	list := tracker.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "tab-4", list[0].Metadata.TabID)
	assert.Equal(t, "tab-2", list[2].Metadata.TabID)
}

func TestAbandonedCartTracker_PrunesExpired(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(t, WithRetention(24*time.Hour))

	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-old"))
	clock.Advance(25 * time.Hour)
	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-new"))

	list := tracker.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "tab-new", list[0].Metadata.TabID)

	clock.Advance(25 * time.Hour)
	assert.Empty(t, tracker.List(ctx))
}

func TestAbandonedCartTracker_RestoreKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)
	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-a"))

	first, err := tracker.Restore(ctx, "tab-a")
	require.NoError(t, err)
	assertItemsEqual(t, sampleItems(), first)

	second, err := tracker.Restore(ctx, "tab-a")
	require.NoError(t, err)
	assertItemsEqual(t, first, second)

	_, err = tracker.Restore(ctx, "tab-missing")
	assert.ErrorIs(t, err, cart.ErrAbandonedCartNotFound)
}

func TestAbandonedCartTracker_Remove(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)
	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-a"))

	assert.True(t, tracker.Remove(ctx, "tab-a"))
	assert.False(t, tracker.Remove(ctx, "tab-a"))
	assert.Empty(t, tracker.List(ctx))
}

func TestAbandonedCartTracker_MostRecent(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(t)

	_, ok := tracker.MostRecent(ctx, time.Hour)
	assert.False(t, ok)

	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-a"))
	recent, ok := tracker.MostRecent(ctx, time.Hour)
	require.True(t, ok)
	assert.Equal(t, "tab-a", recent.Metadata.TabID)

	clock.Advance(2 * time.Hour)
	_, ok = tracker.MostRecent(ctx, time.Hour)
	assert.False(t, ok)
}

func TestAbandonedCartTracker_CorruptListIsEmpty(t *testing.T) {
	ctx := context.Background()
	clock := &steppingClock{now: codecNow.Truncate(time.Millisecond)}
	area, _ := newTestArea(t, "tab-1")
	tracker := NewAbandonedCartTracker(area, WithTrackerClock(clock.Now))

	require.NoError(t, area.Set(ctx, DefaultAbandonedKey, []byte("not json")))
	assert.Empty(t, tracker.List(ctx))

	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-a"))
	assert.Len(t, tracker.List(ctx), 1)
}

func TestAbandonedCartTracker_IndependentOfLiveCart(t *testing.T) {
	ctx := context.Background()
	area, _ := newTestArea(t, "tab-1")
	gw := NewCartGateway(area, NewCartCodec(""))
	tracker := NewAbandonedCartTracker(area)

	require.True(t, gw.Save(ctx, sampleItems(), nil))
	require.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", "tab-1"))
	gw.Clear(ctx)

	assert.Len(t, tracker.List(ctx), 1)
}

func TestAbandonedCartTracker_ConcurrentTabsKeepEverySnapshot(t *testing.T) {
	ctx := context.Background()
	const tabs = 5

	for round := 0; round < 50; round++ {
		area, _ := newTestArea(t, AbandonedWriterID)
		tracker := NewAbandonedCartTracker(area, WithMaxEntries(tabs))

		var wg sync.WaitGroup
		for i := 0; i < tabs; i++ {
			wg.Add(1)
			go func(tabID string) {
				defer wg.Done()
				assert.True(t, tracker.RecordAbandonment(ctx, sampleItems(), "device-1", tabID))
			}(fmt.Sprintf("tab-%d", i))
		}
		wg.Wait()

		require.Len(t, tracker.List(ctx), tabs, "round %d", round)
	}
}
