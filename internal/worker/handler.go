package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"log/slog"

	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/identity"
)

// NotificationHandler consumes order.created events and sends the customer
// the message matching how they chose to pay: cash orders get a review
// notice, wallet orders get transfer instructions and a proof reminder.
type NotificationHandler struct {
	emailServiceURL string
	walletNumber    string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL, walletNumber string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		walletNumber:    walletNumber,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.Info("processing order created event",
		"order_id", event.OrderID,
		"order_number", event.OrderNumber,
		"customer_id", event.CustomerID,
	)

	// Guests have no mailbox to notify; their confirmation lives on the
	// order status page.
	if identity.IsGuest(event.CustomerID) {
		h.logger.Info("skipping notification for guest order", "order_id", event.OrderID)
		return nil
	}

	var subject, body string
	switch event.PaymentMethod {
	case domain.PaymentMethodCash:
		subject = fmt.Sprintf("Order #%d received", event.OrderNumber)
		body = fmt.Sprintf(
			"Your order #%d (%s EGP total) is in review. We will call to confirm before shipping.",
			event.OrderNumber, formatPiasters(event.Total),
		)
	case domain.PaymentMethodWallet, domain.PaymentMethodInstapay:
		amount := event.Total
		if event.Deposit > 0 {
			amount = event.Deposit
		}
		subject = fmt.Sprintf("Order #%d awaiting payment", event.OrderNumber)
		body = fmt.Sprintf(
			"Please transfer %s EGP to wallet %s for order #%d, then upload a screenshot of the transfer on the order page.",
			formatPiasters(amount), h.walletNumber, event.OrderNumber,
		)
	default:
		h.logger.Warn("unknown payment method on event, skipping notification",
			"order_id", event.OrderID, "payment_method", event.PaymentMethod)
		return nil
	}

	if err := h.sendEmail(ctx, event.CustomerID, subject, body); err != nil {
		h.logger.Error("failed to send order notification", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send order notification: %w", err)
	}

	h.logger.Info("order notification sent", "order_id", event.OrderID, "order_number", event.OrderNumber)
	return nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, customerID, subject, body string) error {
	payload := map[string]string{
		"to":      customerID + "@example.com",
		"subject": subject,
		"body":    body,
	}

	data, err := json.Marshal(payload)
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

// formatPiasters renders an amount held in piasters as pounds with two
// decimal places.
func formatPiasters(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
