package middleware

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
)

func TestTabID(t *testing.T) {
	router := gin.New()
	router.Use(TabID())
	router.GET("/", func(c *gin.Context) {
		assert.Equal(t, GetTabID(c), logger.GetTabID(c.Request.Context()))
		c.String(http.StatusOK, GetTabID(c))
	})

	t.Run("echoes valid tab id", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/", map[string]string{HeaderTabID: "tab_A-1"})
		assert.Equal(t, "tab_A-1", w.Header().Get(HeaderTabID))
		assert.Equal(t, "tab_A-1", w.Body.String())
	})

	t.Run("creates tab id when absent", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/", nil)
		id := w.Header().Get(HeaderTabID)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("replaces malformed tab id", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/", map[string]string{HeaderTabID: "../etc/passwd"})
		assert.NotEqual(t, "../etc/passwd", w.Header().Get(HeaderTabID))
		assert.True(t, IsValidTabID(w.Header().Get(HeaderTabID)))
	})
}

func TestIsValidTabID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"tab-1", true},
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"", false},
		{"tab 1", false},
		{"tab/1", false},
		{strings.Repeat("a", MaxTabIDLength), true},
		{strings.Repeat("a", MaxTabIDLength+1), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidTabID(tt.id), tt.id)
	}
}
