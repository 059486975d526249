package cart

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testShirt() Product {
	return Product{
		ID:    "shirt",
		Name:  "T-Shirt",
		Price: decimal.NewFromInt(20),
		Variants: []ProductVariant{
			{Name: "size", Options: []VariantOption{
				{Value: "M", PriceAdjustment: decimal.Zero},
				{Value: "XL", PriceAdjustment: decimal.NewFromInt(5)},
			}},
			{Name: "color", Options: []VariantOption{
				{Value: "red", PriceAdjustment: decimal.Zero},
				{Value: "gold", PriceAdjustment: decimal.NewFromInt(10)},
			}},
		},
	}
}

func testMug() Product {
	return Product{ID: "mug", Name: "Mug", Price: decimal.RequireFromString("7.50")}
}

func mustReduce(t *testing.T, state State, action Action) State {
	t.Helper()
	next, err := Reduce(state, action, testNow)
	require.NoError(t, err)
	return next
}

func assertTotals(t *testing.T, state State) {
	t.Helper()
	items, price := Recompute(state.Items)
	assert.Equal(t, items, state.TotalItems)
	assert.True(t, price.Equal(state.TotalPrice), "total price %s != %s", state.TotalPrice, price)
}

// ============================================
// Item identity
// ============================================

func TestItemID(t *testing.T) {
	tests := []struct {
		name     string
		variants Variants
		expected string
	}{
		{"no variants", nil, "shirt-"},
		{"single variant", Variants{"size": "M"}, "shirt-size:M"},
		{"sorted by name", Variants{"size": "M", "color": "red"}, "shirt-color:red|size:M"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ItemID("shirt", tt.variants))
		})
	}
}

func TestFinalPriceFor(t *testing.T) {
	t.Run("adds adjustments", func(t *testing.T) {
		price, err := FinalPriceFor(testShirt(), Variants{"size": "XL", "color": "gold"})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(35).Equal(price))
	})

	t.Run("unknown option", func(t *testing.T) {
		_, err := FinalPriceFor(testShirt(), Variants{"size": "XXS"})
		assert.True(t, errors.Is(err, ErrInvalidAction))
	})

	t.Run("unknown variant", func(t *testing.T) {
		_, err := FinalPriceFor(testShirt(), Variants{"fabric": "silk"})
		assert.True(t, errors.Is(err, ErrInvalidAction))
	})
}

// ============================================
// ADD_ITEM
// ============================================

func TestReduce_AddItem(t *testing.T) {
	t.Run("appends new item", func(t *testing.T) {
		state := mustReduce(t, NewState(), AddItem{Product: testMug(), Quantity: 2})

		require.Len(t, state.Items, 1)
		assert.Equal(t, "mug-", state.Items[0].ID)
		assert.Equal(t, 2, state.TotalItems)
		assert.True(t, decimal.NewFromInt(15).Equal(state.TotalPrice))
		require.NotNil(t, state.LastUpdated)
		assert.Equal(t, testNow, *state.LastUpdated)
	})

	t.Run("merges same product and variants", func(t *testing.T) {
		state := mustReduce(t, NewState(), AddItem{Product: testShirt(), Quantity: 2, Variants: Variants{"size": "M"}})
		state = mustReduce(t, state, AddItem{Product: testShirt(), Quantity: 3, Variants: Variants{"size": "M"}})

		require.Len(t, state.Items, 1)
		assert.Equal(t, 5, state.Items[0].Quantity)
		assertTotals(t, state)
	})

	t.Run("different variants stay distinct", func(t *testing.T) {
		state := mustReduce(t, NewState(), AddItem{Product: testShirt(), Quantity: 1, Variants: Variants{"size": "M"}})
		state = mustReduce(t, state, AddItem{Product: testShirt(), Quantity: 1, Variants: Variants{"size": "XL"}})

		require.Len(t, state.Items, 2)
		assert.Equal(t, "shirt-size:M", state.Items[0].ID)
		assert.Equal(t, "shirt-size:XL", state.Items[1].ID)
		assert.True(t, decimal.NewFromInt(45).Equal(state.TotalPrice))
	})

	t.Run("repeat add overwrites final price", func(t *testing.T) {
		first := decimal.NewFromInt(10)
		second := decimal.NewFromInt(12)
		state := mustReduce(t, NewState(), AddItem{Product: testMug(), Quantity: 1, FinalPrice: &first})
		state = mustReduce(t, state, AddItem{Product: testMug(), Quantity: 1, FinalPrice: &second})

		require.Len(t, state.Items, 1)
		assert.True(t, second.Equal(state.Items[0].FinalPrice))
		assert.True(t, decimal.NewFromInt(24).Equal(state.TotalPrice))
	})

	t.Run("does not alias caller variants", func(t *testing.T) {
		variants := Variants{"size": "M"}
		state := mustReduce(t, NewState(), AddItem{Product: testShirt(), Quantity: 1, Variants: variants})
		variants["size"] = "XL"
		assert.Equal(t, "M", state.Items[0].SelectedVariants["size"])
	})

	t.Run("invalid payloads", func(t *testing.T) {
		negative := decimal.NewFromInt(-1)
		tests := []struct {
			name   string
			action AddItem
		}{
			{"empty product id", AddItem{Product: Product{}, Quantity: 1}},
			{"zero quantity", AddItem{Product: testMug(), Quantity: 0}},
			{"negative quantity", AddItem{Product: testMug(), Quantity: -2}},
			{"negative price", AddItem{Product: testMug(), Quantity: 1, FinalPrice: &negative}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				before := NewState()
				after, err := Reduce(before, tt.action, testNow)
				assert.True(t, errors.Is(err, ErrInvalidAction))
				assert.Equal(t, before, after)
			})
		}
	})
}

// ============================================
// REMOVE_ITEM / UPDATE_QUANTITY
// ============================================

func TestReduce_RemoveItem(t *testing.T) {
	state := mustReduce(t, NewState(), AddItem{Product: testMug(), Quantity: 1})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		later := testNow.Add(time.Hour)
		next, err := Reduce(state, RemoveItem{ItemID: "missing"}, later)
		require.NoError(t, err)
		assert.Equal(t, state, next)
		assert.Equal(t, testNow, *next.LastUpdated)
	})

	t.Run("removes existing", func(t *testing.T) {
		next := mustReduce(t, state, RemoveItem{ItemID: "mug-"})
		assert.Empty(t, next.Items)
		assert.Equal(t, 0, next.TotalItems)
		assert.True(t, next.TotalPrice.IsZero())
		require.Len(t, state.Items, 1, "input state must not be modified")
	})
}

func TestReduce_UpdateQuantity(t *testing.T) {
	state := mustReduce(t, NewState(), AddItem{Product: testMug(), Quantity: 1})
	state = mustReduce(t, state, AddItem{Product: testShirt(), Quantity: 1, Variants: Variants{"size": "M"}})

	t.Run("sets quantity", func(t *testing.T) {
		next := mustReduce(t, state, UpdateQuantity{ItemID: "mug-", Quantity: 4})
		item, ok := next.Item("mug-")
		require.True(t, ok)
		assert.Equal(t, 4, item.Quantity)
		assertTotals(t, next)
	})

	for _, qty := range []int{0, -5} {
		t.Run("quantity floor removes item", func(t *testing.T) {
			next := mustReduce(t, state, UpdateQuantity{ItemID: "mug-", Quantity: qty})
			_, ok := next.Item("mug-")
			assert.False(t, ok)
			require.Len(t, next.Items, 1)
			for _, item := range next.Items {
				assert.GreaterOrEqual(t, item.Quantity, 1)
			}
		})
	}
}

// ============================================
// UPDATE_VARIANTS
// ============================================

func TestReduce_UpdateVariants(t *testing.T) {
	t.Run("re-keys item and recomputes price", func(t *testing.T) {
		state := mustReduce(t, NewState(), AddItem{Product: testShirt(), Quantity: 2, Variants: Variants{"size": "M"}})
		next := mustReduce(t, state, UpdateVariants{ItemID: "shirt-size:M", Variants: Variants{"size": "XL"}})

		require.Len(t, next.Items, 1)
		assert.Equal(t, "shirt-size:XL", next.Items[0].ID)
		assert.True(t, decimal.NewFromInt(25).Equal(next.Items[0].FinalPrice))
		assert.True(t, decimal.NewFromInt(50).Equal(next.TotalPrice))
	})

	t.Run("collision merges rows", func(t *testing.T) {
		state := mustReduce(t, NewState(), AddItem{Product: testShirt(), Quantity: 1, Variants: Variants{"size": "XL"}})
		state = mustReduce(t, state, AddItem{Product: testMug(), Quantity: 1})
		state = mustReduce(t, state, AddItem{Product: testShirt(), Quantity: 2, Variants: Variants{"size": "M"}})

		next := mustReduce(t, state, UpdateVariants{ItemID: "shirt-size:M", Variants: Variants{"size": "XL"}})

		require.Len(t, next.Items, 2)
		assert.Equal(t, "mug-", next.Items[0].ID)
		assert.Equal(t, "shirt-size:XL", next.Items[1].ID)
		assert.Equal(t, 3, next.Items[1].Quantity)
		assertTotals(t, next)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		state := mustReduce(t, NewState(), AddItem{Product: testMug(), Quantity: 1})
		next := mustReduce(t, state, UpdateVariants{ItemID: "nope", Variants: Variants{"size": "M"}})
		assert.Equal(t, state, next)
	})
}

// ============================================
// CLEAR / LOAD
// ============================================

func TestReduce_ClearAndLoad(t *testing.T) {
	state := mustReduce(t, NewState(), AddItem{Product: testMug(), Quantity: 3})

	t.Run("clear empties the cart", func(t *testing.T) {
		next := mustReduce(t, state, Clear{})
		assert.True(t, next.IsEmpty())
		assert.Equal(t, 0, next.TotalItems)
		require.NotNil(t, next.LastUpdated)
	})

	t.Run("load replaces items", func(t *testing.T) {
		loaded := []CartItem{
			{ID: "a", Product: Product{ID: "a"}, Quantity: 2, FinalPrice: decimal.NewFromInt(3), AddedAt: testNow},
			{ID: "b", Product: Product{ID: "b"}, Quantity: 1, FinalPrice: decimal.NewFromInt(4), AddedAt: testNow},
		}
		next := mustReduce(t, state, Load{Items: loaded})
		require.Len(t, next.Items, 2)
		assert.Equal(t, 3, next.TotalItems)
		assert.True(t, decimal.NewFromInt(10).Equal(next.TotalPrice))
	})

	t.Run("load sanitises input", func(t *testing.T) {
		loaded := []CartItem{
			{ID: "a", Product: Product{ID: "a"}, Quantity: 2, FinalPrice: decimal.NewFromInt(3)},
			{ID: "zero", Product: Product{ID: "zero"}, Quantity: 0, FinalPrice: decimal.NewFromInt(3)},
			{ID: "a", Product: Product{ID: "a"}, Quantity: 1, FinalPrice: decimal.NewFromInt(3)},
			{Product: Product{ID: "c"}, Quantity: 1, SelectedVariants: Variants{"size": "M"}, FinalPrice: decimal.NewFromInt(1)},
		}
		next := mustReduce(t, state, Load{Items: loaded})
		require.Len(t, next.Items, 2)
		assert.Equal(t, 3, next.Items[0].Quantity)
		assert.Equal(t, "c-size:M", next.Items[1].ID)
		assertTotals(t, next)
	})

	t.Run("load rejects negative price", func(t *testing.T) {
		_, err := Reduce(state, Load{Items: []CartItem{{ID: "a", Quantity: 1, FinalPrice: decimal.NewFromInt(-1)}}}, testNow)
		assert.True(t, errors.Is(err, ErrInvalidAction))
	})

	t.Run("nil action", func(t *testing.T) {
		_, err := Reduce(state, nil, testNow)
		assert.True(t, errors.Is(err, ErrInvalidAction))
	})
}

func TestReduce_TotalsInvariant(t *testing.T) {
	gold := decimal.RequireFromString("31.99")
	actions := []Action{
		AddItem{Product: testShirt(), Quantity: 2, Variants: Variants{"size": "M", "color": "red"}},
		AddItem{Product: testMug(), Quantity: 4},
		AddItem{Product: testShirt(), Quantity: 1, Variants: Variants{"size": "XL"}, FinalPrice: &gold},
		UpdateQuantity{ItemID: "mug-", Quantity: 1},
		RemoveItem{ItemID: "does-not-exist"},
		UpdateVariants{ItemID: "shirt-color:red|size:M", Variants: Variants{"size": "XL"}},
		AddItem{Product: testMug(), Quantity: 2},
		UpdateQuantity{ItemID: "mug-", Quantity: -1},
		Clear{},
		AddItem{Product: testMug(), Quantity: 1},
	}

	state := NewState()
	for _, action := range actions {
		state = mustReduce(t, state, action)
		assertTotals(t, state)
		for _, item := range state.Items {
			assert.GreaterOrEqual(t, item.Quantity, 1, "after %s", ActionName(action))
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := CartItem{ID: "a", Quantity: 1, FinalPrice: decimal.NewFromInt(2)}
	b := CartItem{ID: "b", Quantity: 3, FinalPrice: decimal.NewFromInt(4)}

	assert.Equal(t, Fingerprint([]CartItem{a, b}), Fingerprint([]CartItem{b, a}))
	assert.Equal(t, Fingerprint(nil), Fingerprint([]CartItem{}))

	changed := b
	changed.Quantity = 4
	assert.NotEqual(t, Fingerprint([]CartItem{a, b}), Fingerprint([]CartItem{a, changed}))

	repriced := b
	repriced.FinalPrice = decimal.RequireFromString("4.01")
	assert.NotEqual(t, Fingerprint([]CartItem{a, b}), Fingerprint([]CartItem{a, repriced}))
}

func TestNewAbandonedCart(t *testing.T) {
	items := []CartItem{
		{ID: "a", Quantity: 1, FinalPrice: decimal.NewFromInt(40)},
		{ID: "b", Quantity: 1, FinalPrice: decimal.NewFromInt(60)},
	}
	snapshot := NewAbandonedCart(items, "device-1", "tab-1", testNow)

	assert.Equal(t, 2, snapshot.TotalItems)
	assert.True(t, decimal.NewFromInt(100).Equal(snapshot.TotalValue))
	assert.Equal(t, "tab-1", snapshot.Metadata.TabID)

	items[0].Quantity = 9
	assert.Equal(t, 1, snapshot.Items[0].Quantity)

	assert.False(t, snapshot.IsExpired(testNow.Add(24*time.Hour), 7*24*time.Hour))
	assert.True(t, snapshot.IsExpired(testNow.Add(8*24*time.Hour), 7*24*time.Hour))
}
