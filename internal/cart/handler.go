package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/trendstore/commerce-core/internal/domain"
	"github.com/trendstore/commerce-core/internal/pricing"
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

// cartResponse adds the running subtotal computed from the snapshotted
// line prices.
type cartResponse struct {
	*domain.Cart
	Subtotal int64 `json:"subtotal"`
}

type seedItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type createCartRequest struct {
	CustomerID string            `json:"customer_id,omitempty"`
	Items      []seedItemRequest `json:"items" validate:"dive"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
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

	items := make([]SeedItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = SeedItem{VariantID: item.VariantID, Quantity: item.Quantity}
	}

	cart, err := h.repo.Create(r.Context(), t.ID, req.CustomerID, items)
	if err != nil {
		h.writeDomainError(w, err, "create cart")
		return
	}

	h.logger.Info("cart created", "cart_id", cart.ID, "tenant", t.Slug, "items", len(cart.Items))
	h.writeCart(w, http.StatusCreated, cart)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart id")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	cart, err := h.repo.Get(r.Context(), t.ID, id)
	if err != nil {
		h.writeDomainError(w, err, "get cart")
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

type addItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart id")
		return
	}

	var req addItemRequest
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

	cart, err := h.repo.AddItem(r.Context(), t.ID, id, req.VariantID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err, "add cart item")
		return
	}

	h.logger.Info("cart item added", "cart_id", id, "variant_id", req.VariantID, "quantity", req.Quantity)
	h.writeCart(w, http.StatusOK, cart)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	variantID := r.PathValue("variantId")
	if id == "" || variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart or variant id")
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	cart, err := h.repo.SetQuantity(r.Context(), t.ID, id, variantID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err, "set cart item quantity")
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	variantID := r.PathValue("variantId")
	if id == "" || variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart or variant id")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	cart, err := h.repo.RemoveItem(r.Context(), t.ID, id, variantID)
	if err != nil {
		h.writeDomainError(w, err, "remove cart item")
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, cart *domain.Cart) {
	h.writeJSON(w, status, cartResponse{Cart: cart, Subtotal: pricing.CartSubtotal(cart.Items)})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, operation string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
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
