// Package worker consumes order lifecycle events and sends customer
// notifications. Stock accounting happens synchronously inside order
// creation, so the worker's only job is messaging the customer.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/trendstore/commerce-core/internal/domain"
)

type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

// HandleOrderCreated sends the order confirmation email.
func (h *NotificationHandler) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	if event.CustomerID == "" {
		h.logger.Info("skipping confirmation for guest order", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "customer_id", event.CustomerID)

	body := map[string]string{
		"to":      event.CustomerID + "@example.com",
		"subject": "Order Confirmation: " + event.OrderID,
		"body":    fmt.Sprintf("Your order %s with %d items has been received. Total: %d %s (minor units).", event.OrderID, len(event.Items), event.Total, event.Currency),
	}

	if err := h.sendEmail(ctx, body); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	return nil
}

// HandleStatusChanged notifies the customer on the transitions they care
// about; intermediate warehouse states are ignored.
func (h *NotificationHandler) HandleStatusChanged(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal status changed event: %w", err)
	}

	if event.CustomerID == "" {
		return nil
	}

	var subject, text string
	switch event.To {
	case domain.OrderStatusCanceled:
		subject = "Order Cancelled: " + event.OrderID
		text = fmt.Sprintf("Your order %s has been cancelled.", event.OrderID)
	case domain.OrderStatusFulfilled:
		subject = "Order Shipped: " + event.OrderID
		text = fmt.Sprintf("Your order %s is on its way.", event.OrderID)
	case domain.OrderStatusRefunded:
		subject = "Order Refunded: " + event.OrderID
		text = fmt.Sprintf("Your order %s has been refunded.", event.OrderID)
	default:
		return nil
	}

	h.logger.Info("processing status changed event", "order_id", event.OrderID, "from", event.From, "to", event.To)

	body := map[string]string{
		"to":      event.CustomerID + "@example.com",
		"subject": subject,
		"body":    text,
	}

	if err := h.sendEmail(ctx, body); err != nil {
		h.logger.Error("failed to send status email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send status email: %w", err)
	}

	return nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
