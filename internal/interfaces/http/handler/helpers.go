package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

var errBodyTooLarge = errors.New("request body too large")

// readBody reads the raw request body, failing once it exceeds limit bytes
func readBody(c *gin.Context, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// exportFilename names a downloaded cart export
func exportFilename(at time.Time) string {
	return fmt.Sprintf("cart-export-%s.json", at.UTC().Format("20060102-150405"))
}

// tabIDParam returns the :tab_id path parameter when it is a usable tab id
func tabIDParam(c *gin.Context) (string, bool) {
	id := c.Param("tab_id")
	return id, middleware.IsValidTabID(id)
}

// requestLog logs through the request logger when logger.GinMiddleware ran,
// otherwise through fallback. Either way the context identifiers are added.
func requestLog(c *gin.Context, fallback *zap.Logger) *logger.ContextLogger {
	if _, ok := c.Get(logger.GinLoggerKey); ok {
		return logger.L(c.Request.Context())
	}
	return logger.WithLogger(c.Request.Context(), fallback)
}

// tagDevice records the cart's device id on the request context
func tagDevice(c *gin.Context, deviceID string) {
	if deviceID == "" {
		return
	}
	ctx, tagged := logger.WithDeviceID(c.Request.Context(), logger.GetGinLogger(c), deviceID)
	if _, ok := c.Get(logger.GinLoggerKey); ok {
		c.Set(logger.GinLoggerKey, tagged)
	}
	c.Request = c.Request.WithContext(ctx)
}
