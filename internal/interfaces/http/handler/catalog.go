package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// ProductCatalog is the product store behind the catalog endpoints
type ProductCatalog interface {
	FindByID(ctx context.Context, id string) (cart.Product, error)
	List(ctx context.Context, filter persistence.ProductFilter) ([]cart.Product, int64, error)
	Save(ctx context.Context, p cart.Product) error
	Deactivate(ctx context.Context, id string) error
}

// CatalogHandler serves the products that can be added to a cart
type CatalogHandler struct {
	BaseHandler
	catalog ProductCatalog
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog ProductCatalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List godoc
// @ID           listCatalogProducts
// @Summary      List active products
// @Tags         catalog
// @Produce      json
// @Param        page      query int    false "Page"      default(1)
// @Param        page_size query int    false "Page size" default(20)
// @Param        category  query string false "Category"
// @Success      200 {object} APIResponse[[]dto.ProductPayload]
// @Router       /catalog/products [get]
func (h *CatalogHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	products, total, err := h.catalog.List(c.Request.Context(), persistence.ProductFilter{
		Category: req.Category,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Limit:    req.PageSize,
		Offset:   req.Offset(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]dto.ProductPayload, 0, len(products))
	for _, p := range products {
		out = append(out, dto.ProductPayloadFrom(p))
	}
	h.SuccessWithMeta(c, out, total, req.Page, req.PageSize)
}

// Get godoc
// @ID           getCatalogProduct
// @Summary      Get a product
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Product id"
// @Success      200 {object} APIResponse[dto.ProductPayload]
// @Failure      404 {object} ErrorResponse
// @Router       /catalog/products/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	product, err := h.catalog.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ProductPayloadFrom(product))
}

// Upsert godoc
// @ID           upsertCatalogProduct
// @Summary      Create or replace a product
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        id path string true "Product id"
// @Param        request body dto.UpsertProductRequest true "Product"
// @Success      200 {object} APIResponse[dto.ProductPayload]
// @Failure      400 {object} ErrorResponse
// @Router       /catalog/products/{id} [put]
func (h *CatalogHandler) Upsert(c *gin.Context) {
	var req dto.UpsertProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.Price.IsNegative() {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationRange, "price cannot be negative")
		return
	}

	product := req.ToDomain(c.Param("id"))
	if err := h.catalog.Save(c.Request.Context(), product); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ProductPayloadFrom(product))
}

// Deactivate godoc
// @ID           deactivateCatalogProduct
// @Summary      Hide a product from the catalog
// @Description  Carts already holding the product keep their snapshot.
// @Tags         catalog
// @Param        id path string true "Product id"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /catalog/products/{id} [delete]
func (h *CatalogHandler) Deactivate(c *gin.Context) {
	if err := h.catalog.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
