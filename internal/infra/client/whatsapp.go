// Package client holds outbound HTTP clients.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// whatsAppMessage is the webhook payload.
type whatsAppMessage struct {
	To         string `json:"to"`
	Text       string `json:"text"`
	OrderID    int64  `json:"orderId"`
	CustomerID int64  `json:"customerId"`
}

// WhatsAppClient posts order updates to a WhatsApp gateway webhook.
// Notifications for other channels are ignored.
type WhatsAppClient struct {
	httpClient *http.Client
	url        string
	guard      *resilience.Guard
}

// NewWhatsAppClient creates a new WhatsAppClient.
func NewWhatsAppClient(httpClient *http.Client, url string, guard *resilience.Guard) *WhatsAppClient {
	return &WhatsAppClient{
		httpClient: httpClient,
		url:        url,
		guard:      guard,
	}
}

// Notify sends n when its channel is WhatsApp.
func (c *WhatsAppClient) Notify(ctx context.Context, n domain.Notification) error {
	if n.Channel != domain.ChannelWhatsApp {
		return nil
	}
	ctx, span := tracer.Start(ctx, "WhatsAppClient.Notify")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", n.OrderID))

	if n.Phone == "" {
		return &domain.ErrValidation{Field: "phone", Message: "customer has no phone for whatsapp"}
	}

	body, err := json.Marshal(whatsAppMessage{
		To:         n.Phone,
		Text:       n.Message,
		OrderID:    n.OrderID,
		CustomerID: n.CustomerID,
	})
	if err != nil {
		return err
	}

	return c.guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("whatsapp webhook returned status %d", resp.StatusCode)
		default:
			return resilience.Permanent(fmt.Errorf("whatsapp webhook returned status %d", resp.StatusCode))
		}
	})
}
