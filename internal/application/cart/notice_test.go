package cart_test

import (
	"testing"

	appcart "github.com/storefront/backend/internal/application/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoticeBroker_DeliversPerTab(t *testing.T) {
	b := appcart.NewNoticeBroker(4, zap.NewNop())
	chA, cancelA := b.Subscribe("tab-a")
	defer cancelA()
	chB, cancelB := b.Subscribe("tab-b")
	defer cancelB()

	b.Notify("tab-a", appcart.Notice{Kind: appcart.NoticeCartSynced})

	require.Len(t, chA, 1)
	assert.Equal(t, appcart.NoticeCartSynced, (<-chA).Kind)
	assert.Empty(t, chB)
}

func TestNoticeBroker_DropsWhenFull(t *testing.T) {
	b := appcart.NewNoticeBroker(1, zap.NewNop())
	ch, cancel := b.Subscribe("tab-a")
	defer cancel()

	b.Notify("tab-a", appcart.Notice{Kind: appcart.NoticeCartSynced})
	b.Notify("tab-a", appcart.Notice{Kind: appcart.NoticeStorageUnavailable})

	require.Len(t, ch, 1)
	assert.Equal(t, appcart.NoticeCartSynced, (<-ch).Kind)
}

func TestNoticeBroker_CancelClosesStream(t *testing.T) {
	b := appcart.NewNoticeBroker(0, nil)
	ch, cancel := b.Subscribe("tab-a")
	assert.Equal(t, 1, b.Subscribers("tab-a"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers("tab-a"))
	assert.NotPanics(t, func() { b.Notify("tab-a", appcart.Notice{}) })
}
