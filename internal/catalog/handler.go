package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/trendstore/commerce-core/internal/domain"
	"github.com/trendstore/commerce-core/internal/tenant"
)

type Handler struct {
	repo     *Repository
	tenants  *tenant.Repository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(repo *Repository, tenants *tenant.Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		tenants:  tenants,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// HandleList is the unauthenticated storefront read: published products
// with active variants only.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	products, err := h.repo.ListPublished(r.Context(), t.ID)
	if err != nil {
		h.writeDomainError(w, err, "list products")
		return
	}

	h.writeJSON(w, http.StatusOK, products)
}

type createProductRequest struct {
	Title       string `json:"title" validate:"required"`
	Handle      string `json:"handle" validate:"required"`
	Description string `json:"description,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Price       int64  `json:"price" validate:"min=0"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	product, err := h.repo.CreateProduct(r.Context(), t.ID, CreateProductInput{
		Title:       req.Title,
		Handle:      req.Handle,
		Description: req.Description,
		SKU:         req.SKU,
		Price:       req.Price,
		Currency:    req.Currency,
	})
	if err != nil {
		h.writeDomainError(w, err, "create product")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "tenant", t.Slug)
	h.writeJSON(w, http.StatusCreated, product)
}

type updateProductRequest struct {
	Title       *string               `json:"title,omitempty"`
	Handle      *string               `json:"handle,omitempty"`
	Description *string               `json:"description,omitempty"`
	Status      *domain.ProductStatus `json:"status,omitempty"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.ProductStatusDraft, domain.ProductStatusPublished, domain.ProductStatusArchived:
		default:
			h.writeError(w, http.StatusBadRequest, "unknown product status")
			return
		}
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	product, err := h.repo.UpdateProduct(r.Context(), t.ID, id, UpdateProductInput{
		Title:       req.Title,
		Handle:      req.Handle,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.writeDomainError(w, err, "update product")
		return
	}

	h.logger.Info("product updated", "product_id", product.ID)
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	if err := h.repo.DeleteProduct(r.Context(), t.ID, id); err != nil {
		h.writeDomainError(w, err, "delete product")
		return
	}

	h.logger.Info("product deleted", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, operation string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("failed to "+operation, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
