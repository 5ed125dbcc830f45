package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// maxResponseBody bounds how much of a receiver's response body is kept on
// the audit row.
const maxResponseBody = 1000

// WebhookStore is the slice of the repository the delivery engine reads
// subscriptions from and writes audit rows to.
type WebhookStore interface {
	GetWebhook(ctx context.Context, id int64) (*models.Webhook, error)
	ListEnabledWebhooksForEvent(ctx context.Context, eventType string) ([]models.Webhook, error)
	CreateDelivery(ctx context.Context, webhookID int64, eventType, payload string) (*models.WebhookDelivery, error)
	FinalizeDelivery(ctx context.Context, deliveryID int64, status string, responseCode *int, responseBody *string, responseTimeMs *int64) error
}

// DeliveryResult captures the outcome of one HTTP delivery attempt.
type DeliveryResult struct {
	Success        bool    `json:"success"`
	ResponseCode   *int    `json:"response_code"`
	ResponseTimeMs *int64  `json:"response_time_ms"`
	ResponseBody   *string `json:"response_body,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// WebhookService fans events out to subscribed endpoints. Event publication
// is fire-and-forget: a slow or failing receiver never blocks the caller and
// never fails the job that raised the event.
type WebhookService struct {
	store  WebhookStore
	client *http.Client
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewWebhookService creates the delivery engine. The timeout bounds each
// HTTP attempt end to end, including reading the response body.
func NewWebhookService(store WebhookStore, timeout time.Duration) *WebhookService {
	return &WebhookService{
		store:  store,
		client: &http.Client{Timeout: timeout},
		logger: util.GetLogger(),
	}
}

// PublishEvent delivers an event to every enabled, subscribed webhook. It
// returns immediately; deliveries run in background goroutines tracked by
// Close.
func (s *WebhookService) PublishEvent(eventType string, data interface{}) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fanOut(context.Background(), eventType, data)
	}()
}

// TestWebhook synchronously delivers a webhook.test event to one endpoint and
// returns the result. Test deliveries are audited like real ones.
func (s *WebhookService) TestWebhook(ctx context.Context, id int64) (*DeliveryResult, error) {
	webhook, err := s.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := models.EventEnvelope{
		Event: models.EventWebhookTest,
		Data: map[string]interface{}{
			"webhook_id": webhook.ID,
			"message":    "This is a test delivery",
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}
	result := s.deliver(ctx, webhook, models.EventWebhookTest, payload)
	return &result, nil
}

// Close waits for all in-flight deliveries to drain.
func (s *WebhookService) Close() {
	s.wg.Wait()
}

func (s *WebhookService) fanOut(ctx context.Context, eventType string, data interface{}) {
	webhooks, err := s.store.ListEnabledWebhooksForEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("Failed to list webhooks for event",
			zap.String("event", eventType), zap.Error(err))
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payload := models.EventEnvelope{Event: eventType, Data: data}

	var wg sync.WaitGroup
	for i := range webhooks {
		webhook := webhooks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deliver(ctx, &webhook, eventType, payload)
		}()
	}
	wg.Wait()
}

// deliver runs one audited delivery: pending row first, then the HTTP
// attempt, then finalize.
func (s *WebhookService) deliver(ctx context.Context, webhook *models.Webhook, eventType string, payload models.EventEnvelope) DeliveryResult {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal webhook payload",
			zap.String("event", eventType), zap.Error(err))
		return DeliveryResult{Success: false, Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	delivery, err := s.store.CreateDelivery(ctx, webhook.ID, eventType, string(body))
	if err != nil {
		s.logger.Error("Failed to create delivery log",
			zap.Int64("webhook_id", webhook.ID),
			zap.String("event", eventType),
			zap.Error(err))
		return DeliveryResult{Success: false, Error: fmt.Sprintf("create delivery log: %v", err)}
	}

	result := s.post(ctx, webhook.URL, body)

	status := models.DeliveryStatusFailed
	if result.Success {
		status = models.DeliveryStatusSuccess
	}
	if err := s.store.FinalizeDelivery(ctx, delivery.ID, status, result.ResponseCode, result.ResponseBody, result.ResponseTimeMs); err != nil {
		s.logger.Error("Failed to finalize delivery",
			zap.Int64("delivery_id", delivery.ID), zap.Error(err))
	}

	util.WebhookDeliveriesTotal.WithLabelValues(eventType, status).Inc()
	if result.ResponseTimeMs != nil {
		util.WebhookDeliveryLatency.Observe(float64(*result.ResponseTimeMs) / 1000)
	}

	if !result.Success {
		s.logger.Warn("Webhook delivery failed",
			zap.Int64("webhook_id", webhook.ID),
			zap.String("url", webhook.URL),
			zap.String("event", eventType),
			zap.String("error", result.Error))
	}
	return result
}

// post performs the HTTP attempt. Transport failures and timeouts produce a
// failed result with no response code; any 2xx is success.
func (s *WebhookService) post(ctx context.Context, url string, body []byte) DeliveryResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		return DeliveryResult{Success: false, ResponseTimeMs: &elapsed, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "catalog-service-webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		return DeliveryResult{Success: false, ResponseTimeMs: &elapsed, Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		code := resp.StatusCode
		return DeliveryResult{
			Success:        false,
			ResponseCode:   &code,
			ResponseTimeMs: &elapsed,
			Error:          fmt.Sprintf("read response body: %v", err),
		}
	}

	truncated := truncateBody(string(raw))
	code := resp.StatusCode
	result := DeliveryResult{
		ResponseCode:   &code,
		ResponseTimeMs: &elapsed,
		ResponseBody:   &truncated,
		Success:        code >= 200 && code < 300,
	}
	if !result.Success {
		result.Error = fmt.Sprintf("non-2xx response: %d", code)
	}
	return result
}

func truncateBody(body string) string {
	if len(body) <= maxResponseBody {
		return body
	}
	return body[:maxResponseBody] + "... (truncated)"
}
