package inventory

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
	ledger   *Ledger
	tenants  *tenant.Repository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(ledger *Ledger, tenants *tenant.Repository, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:   ledger,
		tenants:  tenants,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	stock, err := h.ledger.GetStock(r.Context(), t.ID, variantID)
	if err != nil {
		h.writeDomainError(w, err, "get stock")
		return
	}

	h.writeJSON(w, http.StatusOK, newStockResponse(stock))
}

// stockResponse adds the derived sellable quantity to the raw counters.
type stockResponse struct {
	*domain.StockLevel
	Available int `json:"available"`
}

func newStockResponse(stock *domain.StockLevel) stockResponse {
	return stockResponse{StockLevel: stock, Available: stock.Available()}
}

type adjustStockRequest struct {
	StockOnHand       int  `json:"stock_on_hand" validate:"min=0"`
	LowStockThreshold int  `json:"low_stock_threshold" validate:"min=0"`
	AllowBackorder    bool `json:"allow_backorder"`
}

func (h *Handler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	var req adjustStockRequest
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

	stock, err := h.ledger.AdjustStock(r.Context(), t.ID, variantID, req.StockOnHand, req.LowStockThreshold, req.AllowBackorder)
	if err != nil {
		h.writeDomainError(w, err, "adjust stock")
		return
	}

	h.logger.Info("stock adjusted", "variant_id", variantID, "stock_on_hand", req.StockOnHand)
	h.writeJSON(w, http.StatusOK, newStockResponse(stock))
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
