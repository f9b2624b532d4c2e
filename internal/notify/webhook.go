package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier POSTs order events to a warehouse endpoint.
type WebhookNotifier struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier creates a notifier for the given endpoint. The API key
// is optional and sent as X-API-Key when set.
func NewWebhookNotifier(url, apiKey string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NotifyOrderCreated implements FulfillmentNotifier.
func (n *WebhookNotifier) NotifyOrderCreated(ctx context.Context, event OrderCreatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("X-API-Key", n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: webhook status %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info("fulfillment webhook delivered", "order_id", event.OrderID, "status", resp.StatusCode)
	return nil
}

// LogNotifier records order events to the log instead of a real endpoint.
// Used in development when no webhook URL is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyOrderCreated implements FulfillmentNotifier.
func (n *LogNotifier) NotifyOrderCreated(_ context.Context, event OrderCreatedEvent) error {
	n.logger.Info("fulfillment webhook (log only)",
		"event", event.Event,
		"order_id", event.OrderID,
		"customer_id", event.CustomerID,
		"items", len(event.Medicines),
		"priority", event.Priority)
	return nil
}
