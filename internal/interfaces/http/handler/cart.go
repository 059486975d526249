package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	appcart "github.com/storefront/backend/internal/application/cart"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

const defaultImportLimit = 1 << 20

// CartHandler serves the cart of the calling tab. The tab is identified by
// the X-Tab-ID header resolved by middleware.TabID.
type CartHandler struct {
	BaseHandler
	tabs        *appcart.TabRegistry
	logger      *zap.Logger
	importLimit int64
	now         func() time.Time
}

// CartHandlerOption configures a CartHandler
type CartHandlerOption func(*CartHandler)

// WithCartLogger sets the logger
func WithCartLogger(l *zap.Logger) CartHandlerOption {
	return func(h *CartHandler) {
		h.logger = l
	}
}

// WithImportLimit caps the size of an imported cart
func WithImportLimit(n int64) CartHandlerOption {
	return func(h *CartHandler) {
		if n > 0 {
			h.importLimit = n
		}
	}
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(tabs *appcart.TabRegistry, opts ...CartHandlerOption) *CartHandler {
	h := &CartHandler{
		tabs:        tabs,
		logger:      zap.NewNop(),
		importLimit: defaultImportLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// service returns the mounted cart of the calling tab. On failure the error
// response has been written.
func (h *CartHandler) service(c *gin.Context) (*appcart.Service, bool) {
	svc, err := h.tabs.Get(middleware.GetTabID(c))
	if err != nil {
		requestLog(c, h.logger).Error("Failed to mount cart tab", zap.Error(err))
		h.HandleError(c, err)
		return nil, false
	}
	tagDevice(c, svc.Metadata().DeviceID)
	return svc, true
}

func (h *CartHandler) respondCart(c *gin.Context, svc *appcart.Service, st cart.State, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewCartResponse(svc.TabID(), st))
}

// GetCart godoc
// @ID           getCart
// @Summary      Get the cart of the calling tab
// @Tags         cart
// @Produce      json
// @Param        X-Tab-ID header string false "Tab id; created when absent"
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Router       /cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	h.Success(c, dto.NewCartResponse(svc.TabID(), svc.State()))
}

// GetMetadata returns who last persisted the cart
// @ID           getCartMetadata
// @Tags         cart
// @Produce      json
// @Success      200 {object} APIResponse[dto.CartMetadataResponse]
// @Router       /cart/metadata [get]
func (h *CartHandler) GetMetadata(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	h.Success(c, dto.NewCartMetadataResponse(svc.Metadata()))
}

// AddItem godoc
// @ID           addCartItem
// @Summary      Add a product to the cart
// @Description  Adds a catalog product by id, or a full product snapshot. Adding
// @Description  the same product with the same variants increases its quantity.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        request body dto.AddItemRequest true "Item"
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	svc, ok := h.service(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	variants := cart.Variants(req.Variants)
	var (
		st  cart.State
		err error
	)
	if req.Product != nil {
		st, err = svc.AddToCart(ctx, req.Product.ToDomain(), req.Quantity, variants, req.FinalPrice)
	} else {
		st, err = svc.AddProductByID(ctx, req.ProductID, req.Quantity, variants)
	}
	h.respondCart(c, svc, st, err)
}

// UpdateQuantity godoc
// @ID           updateCartItemQuantity
// @Summary      Set the quantity of a cart item
// @Description  A quantity of zero or less removes the item.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        item_id path string true "Item id"
// @Param        request body dto.UpdateQuantityRequest true "Quantity"
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /cart/items/{item_id} [put]
func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	var req dto.UpdateQuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	svc, ok := h.service(c)
	if !ok {
		return
	}

	itemID := c.Param("item_id")
	if _, found := svc.State().Item(itemID); !found {
		h.HandleError(c, cart.ErrItemNotFound)
		return
	}
	st, err := svc.UpdateQuantity(c.Request.Context(), itemID, *req.Quantity)
	h.respondCart(c, svc, st, err)
}

// UpdateVariants godoc
// @ID           updateCartItemVariants
// @Summary      Change the variant selection of a cart item
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        item_id path string true "Item id"
// @Param        request body dto.UpdateVariantsRequest true "Variants"
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /cart/items/{item_id}/variants [put]
func (h *CartHandler) UpdateVariants(c *gin.Context) {
	var req dto.UpdateVariantsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	svc, ok := h.service(c)
	if !ok {
		return
	}
	st, err := svc.UpdateVariants(c.Request.Context(), c.Param("item_id"), cart.Variants(req.Variants), req.FinalPrice)
	h.respondCart(c, svc, st, err)
}

// RemoveItem godoc
// @ID           removeCartItem
// @Summary      Remove an item from the cart
// @Description  Removing an unknown item leaves the cart unchanged.
// @Tags         cart
// @Produce      json
// @Param        item_id path string true "Item id"
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Router       /cart/items/{item_id} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	st, err := svc.RemoveFromCart(c.Request.Context(), c.Param("item_id"))
	h.respondCart(c, svc, st, err)
}

// ClearCart godoc
// @ID           clearCart
// @Summary      Empty the cart
// @Description  A non-empty cart is kept as an abandoned cart that can be restored later.
// @Tags         cart
// @Produce      json
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Router       /cart [delete]
func (h *CartHandler) ClearCart(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	h.Success(c, dto.NewCartResponse(svc.TabID(), svc.ClearCart(c.Request.Context())))
}

// Checkout godoc
// @ID           checkoutCart
// @Summary      Complete checkout
// @Description  Empties the cart without keeping it as abandoned.
// @Tags         cart
// @Produce      json
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Failure      422 {object} ErrorResponse
// @Router       /cart/checkout [post]
func (h *CartHandler) Checkout(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	st, err := svc.CompleteCheckout(c.Request.Context())
	h.respondCart(c, svc, st, err)
}

// ImportCart godoc
// @ID           importCart
// @Summary      Replace the cart with an exported cart
// @Description  The body is a cart export as returned by GET /cart/export. Exports
// @Description  written by another format version are rejected.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[dto.ImportCartResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /cart/import [post]
func (h *CartHandler) ImportCart(c *gin.Context) {
	data, err := readBody(c, h.importLimit)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Cart export is too large")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		h.BadRequest(c, "Request body is empty")
		return
	}
	svc, ok := h.service(c)
	if !ok {
		return
	}

	st, err := svc.ImportCart(c.Request.Context(), data)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ImportCartResponse{
		ImportedItems: len(st.Items),
		Cart:          dto.NewCartResponse(svc.TabID(), st),
	})
}

// ExportCart godoc
// @ID           exportCart
// @Summary      Download the cart as a versioned JSON export
// @Tags         cart
// @Produce      json
// @Success      200 {string} string "Cart export"
// @Router       /cart/export [get]
func (h *CartHandler) ExportCart(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	data, err := svc.ExportCart(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportFilename(h.now())+`"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(data))
}

// ArchiveExport godoc
// @ID           archiveCartExport
// @Summary      Upload the cart export and return a shareable link
// @Tags         cart
// @Produce      json
// @Success      201 {object} APIResponse[dto.ArchivedExportResponse]
// @Failure      501 {object} ErrorResponse
// @Router       /cart/export/archive [post]
func (h *CartHandler) ArchiveExport(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	archived, err := svc.ArchiveExport(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ArchivedExportResponse{
		ExportID:   archived.ExportID,
		StorageKey: archived.StorageKey,
		URL:        archived.URL,
		ExpiresAt:  archived.ExpiresAt,
		Size:       archived.Size,
	})
}

// DeleteArchivedExport godoc
// @ID           deleteCartExport
// @Summary      Delete an archived cart export
// @Tags         cart
// @Param        export_id path string true "Export id"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /cart/export/archive/{export_id} [delete]
func (h *CartHandler) DeleteArchivedExport(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	if err := svc.DeleteArchivedExport(c.Request.Context(), c.Param("export_id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListAbandoned godoc
// @ID           listAbandonedCarts
// @Summary      List abandoned carts, newest first
// @Tags         cart
// @Produce      json
// @Success      200 {object} APIResponse[[]dto.AbandonedCartResponse]
// @Router       /cart/abandoned [get]
func (h *CartHandler) ListAbandoned(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	list := svc.GetAbandonedCartsList(c.Request.Context())
	out := make([]dto.AbandonedCartResponse, 0, len(list))
	for _, a := range list {
		out = append(out, dto.NewAbandonedCartResponse(a))
	}
	h.Success(c, out)
}

// RestoreAbandoned godoc
// @ID           restoreAbandonedCart
// @Summary      Restore an abandoned cart into the calling tab
// @Tags         cart
// @Produce      json
// @Param        tab_id path string true "Tab id the cart was abandoned in"
// @Success      200 {object} APIResponse[dto.CartResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /cart/abandoned/{tab_id}/restore [post]
func (h *CartHandler) RestoreAbandoned(c *gin.Context) {
	source, valid := tabIDParam(c)
	if !valid {
		h.HandleError(c, cart.ErrAbandonedCartNotFound)
		return
	}
	svc, ok := h.service(c)
	if !ok {
		return
	}
	st, err := svc.RestoreAbandonedCart(c.Request.Context(), source)
	h.respondCart(c, svc, st, err)
}

// DismissAbandoned godoc
// @ID           dismissAbandonedCart
// @Summary      Discard an abandoned cart
// @Tags         cart
// @Param        tab_id path string true "Tab id the cart was abandoned in"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /cart/abandoned/{tab_id} [delete]
func (h *CartHandler) DismissAbandoned(c *gin.Context) {
	source, valid := tabIDParam(c)
	if !valid {
		h.HandleError(c, cart.ErrAbandonedCartNotFound)
		return
	}
	svc, ok := h.service(c)
	if !ok {
		return
	}
	if err := svc.DismissAbandonedCart(c.Request.Context(), source); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// GetRecovery godoc
// @ID           getCartRecovery
// @Summary      Recent abandoned cart offered to a tab that opened empty
// @Tags         cart
// @Produce      json
// @Success      200 {object} APIResponse[dto.RecoveryResponse]
// @Router       /cart/recovery [get]
func (h *CartHandler) GetRecovery(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	resp := dto.RecoveryResponse{}
	if pending := svc.PendingRecovery(); pending != nil {
		abandoned := dto.NewAbandonedCartResponse(*pending)
		resp.Available = true
		resp.Cart = &abandoned
	}
	h.Success(c, resp)
}

// TabHidden godoc
// @ID           hideCartTab
// @Summary      Report that the tab went to the background
// @Description  A stale non-empty cart is kept as abandoned.
// @Tags         cart
// @Produce      json
// @Success      200 {object} APIResponse[StaleCheckData]
// @Router       /cart/tab/hidden [post]
func (h *CartHandler) TabHidden(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	h.Success(c, StaleCheckData{Abandoned: svc.CheckStale(c.Request.Context())})
}

// CloseTab godoc
// @ID           closeCartTab
// @Summary      Unmount the calling tab
// @Description  Stops cross-tab sync for the tab. A stale non-empty cart is kept as abandoned.
// @Tags         cart
// @Success      204
// @Router       /cart/tab [delete]
func (h *CartHandler) CloseTab(c *gin.Context) {
	tabID := middleware.GetTabID(c)
	if h.tabs.Remove(c.Request.Context(), tabID) {
		requestLog(c, h.logger).Debug("Tab closed")
	}
	h.NoContent(c)
}
