package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

// CartRoutes creates the route group for the cart of the calling tab
func CartRoutes(h *CartHandler, events *CartEventsHandler, mw ...gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("cart", "/cart")
	group.Use(mw...)

	group.Handle(http.MethodGet, "", "Get the cart", h.GetCart)
	group.Handle(http.MethodDelete, "", "Empty the cart, keeping it as abandoned", h.ClearCart)
	group.Handle(http.MethodGet, "/metadata", "Who last saved the cart", h.GetMetadata)
	group.Handle(http.MethodPost, "/checkout", "Complete checkout", h.Checkout)

	// Items
	group.Handle(http.MethodPost, "/items", "Add a product", h.AddItem)
	group.Handle(http.MethodPut, "/items/:item_id", "Set item quantity", h.UpdateQuantity)
	group.Handle(http.MethodPut, "/items/:item_id/variants", "Change item variants", h.UpdateVariants)
	group.Handle(http.MethodDelete, "/items/:item_id", "Remove an item", h.RemoveItem)

	// Import and export
	group.Handle(http.MethodGet, "/export", "Download the cart export", h.ExportCart)
	group.Handle(http.MethodPost, "/import", "Replace the cart with an export", h.ImportCart)
	group.Handle(http.MethodPost, "/export/archive", "Upload the cart export", h.ArchiveExport)
	group.Handle(http.MethodDelete, "/export/archive/:export_id", "Delete an uploaded export", h.DeleteArchivedExport)

	// Abandoned carts
	group.Handle(http.MethodGet, "/abandoned", "List abandoned carts", h.ListAbandoned)
	group.Handle(http.MethodPost, "/abandoned/:tab_id/restore", "Restore an abandoned cart", h.RestoreAbandoned)
	group.Handle(http.MethodDelete, "/abandoned/:tab_id", "Discard an abandoned cart", h.DismissAbandoned)
	group.Handle(http.MethodGet, "/recovery", "Pending recovery prompt", h.GetRecovery)

	// Tab lifecycle
	group.Handle(http.MethodPost, "/tab/hidden", "Tab went to the background", h.TabHidden)
	group.Handle(http.MethodDelete, "/tab", "Unmount the tab", h.CloseTab)
	if events != nil {
		group.Handle(http.MethodGet, "/events", "Cart event stream", events.Stream)
	}

	return group
}

// CatalogRoutes creates the route group for catalog products
func CatalogRoutes(h *CatalogHandler, mw ...gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("catalog", "/catalog")
	group.Use(mw...)

	products := group.Group("products", "/products")
	products.Handle(http.MethodGet, "", "List active products", h.List)
	products.Handle(http.MethodGet, "/:id", "Get a product", h.Get)
	products.Handle(http.MethodPut, "/:id", "Create or replace a product", h.Upsert)
	products.Handle(http.MethodDelete, "/:id", "Hide a product", h.Deactivate)

	return group
}

// SystemRoutes creates the route group for system endpoints
func SystemRoutes(h *SystemHandler) *router.DomainGroup {
	return router.NewDomainGroup("system", "/system").
		Handle(http.MethodGet, "/info", "System information", h.GetSystemInfo).
		Handle(http.MethodGet, "/ping", "Liveness probe", h.Ping)
}

// HealthRoutes creates the root-level health check route
func HealthRoutes(h *SystemHandler) *router.DomainGroup {
	return router.NewDomainGroup("health", "/health").
		Handle(http.MethodGet, "", "Dependency health", h.Health)
}
