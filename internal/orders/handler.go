package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trendstore/commerce-core/internal/domain"
	"github.com/trendstore/commerce-core/internal/messaging"
	"github.com/trendstore/commerce-core/internal/tenant"
)

type Handler struct {
	workflow      *Workflow
	tenants       *tenant.Repository
	createdEvents *messaging.Producer
	statusEvents  *messaging.Producer
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewHandler wires the order HTTP surface. Either producer may be nil, in
// which case events are skipped.
func NewHandler(workflow *Workflow, tenants *tenant.Repository, createdEvents, statusEvents *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		workflow:      workflow,
		tenants:       tenants,
		createdEvents: createdEvents,
		statusEvents:  statusEvents,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
	}
}

type orderItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UnitPrice *int64 `json:"unit_price,omitempty" validate:"omitempty,min=0"`
}

type createOrderRequest struct {
	CustomerID    string             `json:"customer_id,omitempty"`
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxTotal      int64              `json:"tax_total" validate:"min=0"`
	ShippingTotal int64              `json:"shipping_total" validate:"min=0"`
	DiscountTotal int64              `json:"discount_total" validate:"min=0"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		h.writeError(w, http.StatusBadRequest, "missing Idempotency-Key header")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	input := CreateInput{
		CustomerID:     req.CustomerID,
		Items:          make([]ItemInput, len(req.Items)),
		TaxTotal:       req.TaxTotal,
		ShippingTotal:  req.ShippingTotal,
		DiscountTotal:  req.DiscountTotal,
		IdempotencyKey: idempotencyKey,
	}
	for i, item := range req.Items {
		input.Items[i] = ItemInput{VariantID: item.VariantID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}

	order, created, err := h.workflow.Create(r.Context(), t.ID, input)
	if err != nil {
		h.writeDomainError(w, err, "create order")
		return
	}

	if created {
		ordersCreated.Add(r.Context(), 1)
		h.publishCreated(r, order)
		h.logger.Info("order created", "order_id", order.ID, "tenant", t.Slug, "total", order.Total)
		h.writeJSON(w, http.StatusCreated, order)
		return
	}

	h.logger.Info("order creation replayed", "order_id", order.ID, "idempotency_key", idempotencyKey)
	h.writeJSON(w, http.StatusOK, order)
}

type checkoutRequest struct {
	CustomerID    string `json:"customer_id,omitempty"`
	TaxTotal      int64  `json:"tax_total" validate:"min=0"`
	ShippingTotal int64  `json:"shipping_total" validate:"min=0"`
	DiscountTotal int64  `json:"discount_total" validate:"min=0"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")
	if cartID == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart id")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		h.writeError(w, http.StatusBadRequest, "missing Idempotency-Key header")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	input := CreateInput{
		CustomerID:     req.CustomerID,
		TaxTotal:       req.TaxTotal,
		ShippingTotal:  req.ShippingTotal,
		DiscountTotal:  req.DiscountTotal,
		IdempotencyKey: idempotencyKey,
	}

	order, created, err := h.workflow.CreateFromCart(r.Context(), t.ID, cartID, input)
	if err != nil {
		h.writeDomainError(w, err, "checkout cart")
		return
	}

	if created {
		ordersCreated.Add(r.Context(), 1)
		h.publishCreated(r, order)
		h.logger.Info("cart checked out", "cart_id", cartID, "order_id", order.ID)
		h.writeJSON(w, http.StatusCreated, order)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	order, err := h.workflow.GetByID(r.Context(), t.ID, id)
	if err != nil {
		h.writeDomainError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Resolve(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.writeDomainError(w, err, "resolve tenant")
		return
	}

	orders, err := h.workflow.List(r.Context(), t.ID)
	if err != nil {
		h.writeDomainError(w, err, "list orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type transitionRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req transitionRequest
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

	order, from, err := h.workflow.Transition(r.Context(), t.ID, id, req.Status)
	if err != nil {
		h.writeDomainError(w, err, "transition order")
		return
	}

	if from != order.Status {
		orderTransitions.Add(r.Context(), 1)
	}

	if from != order.Status && h.statusEvents != nil {
		event := domain.OrderStatusChangedEvent{
			OrderID:    order.ID,
			TenantID:   order.TenantID,
			CustomerID: order.CustomerID,
			From:       from,
			To:         order.Status,
			Timestamp:  time.Now().UTC(),
		}
		if err := h.statusEvents.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish status changed event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("order status updated", "order_id", order.ID, "from", from, "to", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) publishCreated(r *http.Request, order *domain.Order) {
	if h.createdEvents == nil {
		return
	}
	event := domain.OrderCreatedEvent{
		OrderID:    order.ID,
		TenantID:   order.TenantID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		Total:      order.Total,
		Currency:   order.Currency,
		Timestamp:  order.CreatedAt,
	}
	if err := h.createdEvents.Publish(r.Context(), order.ID, event); err != nil {
		h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, operation string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		checkoutsOutOfStock.Add(context.Background(), 1)
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
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
