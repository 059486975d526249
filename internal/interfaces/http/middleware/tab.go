package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/infrastructure/logger"
)

// MaxTabIDLength bounds client supplied tab ids
const MaxTabIDLength = 64

var tabIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TabID resolves the tab a request belongs to from the X-Tab-ID header.
// Requests without a usable header get a fresh tab id. The id is echoed back
// so the client can keep sending it.
func TabID() gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.GetHeader(HeaderTabID)
		if !IsValidTabID(tabID) {
			tabID = uuid.NewString()
		}

		c.Set(TabIDKey, tabID)
		c.Writer.Header().Set(HeaderTabID, tabID)

		ctx, reqLogger := logger.WithTabID(c.Request.Context(), logger.GetGinLogger(c), tabID)
		if _, ok := c.Get(logger.GinLoggerKey); ok {
			c.Set(logger.GinLoggerKey, reqLogger)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetTabID returns the tab id resolved by TabID
func GetTabID(c *gin.Context) string {
	return c.GetString(TabIDKey)
}

// IsValidTabID reports whether id can be used as a tab id
func IsValidTabID(id string) bool {
	return tabIDPattern.MatchString(id)
}
