package transport

import (
	"errors"
	"net/http"

	"parts-shop/internal/domain"
	"parts-shop/internal/middleware"
	"parts-shop/internal/repository"
	"parts-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductRequest is the admin payload for creating or replacing a product
type ProductRequest struct {
	Category          string  `json:"category" validate:"required,category"`
	Name              string  `json:"name" validate:"required,max=200"`
	Description       string  `json:"description" validate:"max=2000"`
	Price             float64 `json:"price" validate:"gte=0"`
	QuantityAvailable int     `json:"quantity_available" validate:"gte=0"`
	ImageRef          string  `json:"image_ref" validate:"max=500"`
}

func (p ProductRequest) product() *domain.Product {
	return &domain.Product{
		Category:          domain.Category(p.Category),
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		QuantityAvailable: p.QuantityAvailable,
		ImageRef:          p.ImageRef,
	}
}

// ProductHandler serves the public catalog and its admin mutations
type ProductHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalogService service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// RegisterRoutes registers catalog routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, requireAuth, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})

	r.Route("/api/admin/products", func(r chi.Router) {
		r.Use(requireAuth, requireAdmin)
		r.Post("/", h.CreateProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{category}/{id}", h.DeleteProduct)
	})
}

// ListProducts handles catalog listing, optionally filtered by ?category=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var category *domain.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, ok := domain.ParseCategory(raw)
		if !ok {
			middleware.RespondWithError(w, http.StatusBadRequest, "category must be part or service")
			return
		}
		category = &c
	}

	products, err := h.catalogService.ListProducts(r.Context(), category)
	if err != nil {
		h.respondCatalogError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.catalogService.GetProduct(r.Context(), id)
	if err != nil {
		h.respondCatalogError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	principal, _ := middleware.GetPrincipal(r.Context())
	product, err := h.catalogService.AddProduct(r.Context(), principal, req.product())
	if err != nil {
		h.respondCatalogError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// UpdateProduct replaces every editable attribute, including the stock count
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product := req.product()
	product.ID = id

	principal, _ := middleware.GetPrincipal(r.Context())
	updated, err := h.catalogService.UpdateProduct(r.Context(), principal, product)
	if err != nil {
		h.respondCatalogError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	category, ok := domain.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "category must be part or service")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	principal, _ := middleware.GetPrincipal(r.Context())
	if err := h.catalogService.RemoveProduct(r.Context(), principal, category, id); err != nil {
		h.respondCatalogError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (ProductRequest, bool) {
	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return req, false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (h *ProductHandler) respondCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrForbidden):
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrInvalidProduct):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrProductAlreadyExists):
		middleware.RespondWithError(w, http.StatusConflict, "a product with this name already exists in the category")
	default:
		h.logger.Error("Catalog operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "catalog unavailable")
	}
}
