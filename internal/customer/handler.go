package customer

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

// HandleList is the admin console's customer directory.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	customers, err := h.repo.List(r.Context(), t.ID)
	if err != nil {
		h.writeDomainError(w, err, "list customers")
		return
	}

	h.writeJSON(w, http.StatusOK, customers)
}

type createCustomerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty"`
}

// HandleCreate is the storefront signup path.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
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

	customer, err := h.repo.Create(r.Context(), t.ID, req.Email, req.Name)
	if err != nil {
		h.writeDomainError(w, err, "create customer")
		return
	}

	h.logger.Info("customer registered", "customer_id", customer.ID, "tenant", t.Slug)
	h.writeJSON(w, http.StatusCreated, customer)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, operation string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
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
