// Package notifications delivers reconciliation alerts for orders that were
// accepted by the broker but have no local trade record.
package notifications

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"vuoksi-trader/config"
	"vuoksi-trader/helpers"
	"vuoksi-trader/logging"
	"vuoksi-trader/trading"
)

// Webhook is one delivery target
type Webhook struct {
	URL        string
	AuthHeader string
	AuthValue  string
}

// WebhookManager handles reconciliation webhook notifications
type WebhookManager struct {
	hooks  []Webhook
	client *resty.Client
	log    *logging.Logger
	wg     sync.WaitGroup
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	AlertType     string                 `json:"alert_type"`
	DetectedAt    time.Time              `json:"detected_at"`
	UserID        int64                  `json:"user_id"`
	Symbol        string                 `json:"symbol"`
	Side          string                 `json:"side"`
	Quantity      float64                `json:"quantity"`
	Price         float64                `json:"price"`
	OrderID       string                 `json:"order_id"`
	ClientOrderID string                 `json:"client_order_id"`
	OrderStatus   string                 `json:"order_status,omitempty"`
	Reason        string                 `json:"reason"`
	Message       string                 `json:"message"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// AlertPartialFailure marks an order placed without a local record
const AlertPartialFailure = "TRADE_RECONCILIATION"

// NewWebhookManager creates a manager delivering to cfg.WebhookURLs.
// RetryCount is the total number of attempts per webhook.
func NewWebhookManager(cfg config.NotificationsConfig, logger *logging.Logger) *WebhookManager {
	attempts := cfg.RetryCount
	if attempts <= 0 {
		attempts = 1
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "vuoksi-trader-reconciliation/1.0").
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(4 * cfg.RetryDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	hooks := make([]Webhook, 0, len(cfg.WebhookURLs))
	for _, url := range cfg.WebhookURLs {
		hooks = append(hooks, Webhook{URL: url, AuthHeader: cfg.AuthHeader, AuthValue: cfg.AuthValue})
	}

	return &WebhookManager{
		hooks:  hooks,
		client: client,
		log:    logger.Component("notifications"),
	}
}

// NotifyPartialFailure sends the reconciliation alert to every webhook in
// the background. Delivery outlives ctx cancellation.
func (wm *WebhookManager) NotifyPartialFailure(ctx context.Context, res trading.ExecutionResult) {
	if len(wm.hooks) == 0 {
		wm.log.Warn().
			Str("order_id", res.OrderID).
			Str("client_order_id", res.ClientOrderID).
			Msg("no reconciliation webhook configured")
		return
	}

	payload := CreatePayload(res)
	ctx = context.WithoutCancel(ctx)
	for _, hook := range wm.hooks {
		wm.wg.Add(1)
		go func(hook Webhook) {
			defer wm.wg.Done()
			wm.deliverWebhook(ctx, hook, payload)
		}(hook)
	}
}

// Wait blocks until in-flight deliveries finish
func (wm *WebhookManager) Wait() {
	wm.wg.Wait()
}

// CreatePayload generates the webhook payload from a partial-failure result
func CreatePayload(res trading.ExecutionResult) WebhookPayload {
	notional := res.Quantity * res.Price
	message := fmt.Sprintf("RECONCILE %s %s %g @ %s (%s) | order %s | user %d | %s",
		res.Symbol,
		res.Side,
		res.Quantity,
		helpers.FormatUSD(res.Price),
		helpers.FormatUSD(notional),
		res.OrderID,
		res.UserID,
		res.Message,
	)

	return WebhookPayload{
		AlertType:     AlertPartialFailure,
		DetectedAt:    res.CompletedAt,
		UserID:        res.UserID,
		Symbol:        res.Symbol,
		Side:          string(res.Side),
		Quantity:      res.Quantity,
		Price:         res.Price,
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		OrderStatus:   res.OrderStatus,
		Reason:        res.Reason,
		Message:       message,
		Metadata: map[string]interface{}{
			"model_type":      res.ModelType,
			"predicted_price": res.PredictedPrice,
			"confidence":      res.Confidence,
		},
	}
}

func (wm *WebhookManager) deliverWebhook(ctx context.Context, hook Webhook, payload WebhookPayload) {
	req := wm.client.R().
		SetContext(ctx).
		SetBody(payload)

	switch {
	case hook.AuthHeader != "":
		req.SetHeader(hook.AuthHeader, hook.AuthValue)
	case hook.AuthValue != "":
		req.SetAuthToken(hook.AuthValue)
	}

	resp, err := req.Post(hook.URL)
	attempts := 0
	if resp != nil && resp.Request != nil {
		attempts = resp.Request.Attempt
	}

	event := wm.log.Info()
	status := "SUCCESS"
	if err != nil || resp.IsError() {
		event = wm.log.Error().Err(err)
		status = "FAILED"
	}
	if resp != nil {
		event = event.Int("status_code", resp.StatusCode())
	}
	event.
		Str("url", hook.URL).
		Str("status", status).
		Int("attempts", attempts).
		Str("order_id", payload.OrderID).
		Str("client_order_id", payload.ClientOrderID).
		Msg("reconciliation webhook delivery")
}
