package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catalog-service/internal/models"
)

// CreateWebhook registers a new webhook endpoint.
func (s *Store) CreateWebhook(ctx context.Context, url string, events []string, enabled bool) (*models.Webhook, error) {
	webhook := &models.Webhook{}
	err := s.db.GetContext(ctx, webhook, `
		INSERT INTO webhooks (url, events, enabled)
		VALUES ($1, $2, $3)
		RETURNING *`,
		url, models.StringList(events), enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return webhook, nil
}

// GetWebhook retrieves a webhook by id.
func (s *Store) GetWebhook(ctx context.Context, id int64) (*models.Webhook, error) {
	var webhook models.Webhook
	err := s.db.GetContext(ctx, &webhook, "SELECT * FROM webhooks WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &webhook, nil
}

// ListWebhooks retrieves all webhooks, newest first.
func (s *Store) ListWebhooks(ctx context.Context) ([]models.Webhook, error) {
	webhooks := []models.Webhook{}
	err := s.db.SelectContext(ctx, &webhooks, "SELECT * FROM webhooks ORDER BY created_at DESC")
	return webhooks, err
}

// UpdateWebhook overwrites a webhook's configuration.
func (s *Store) UpdateWebhook(ctx context.Context, id int64, url string, events []string, enabled bool) (*models.Webhook, error) {
	webhook := &models.Webhook{}
	err := s.db.GetContext(ctx, webhook, `
		UPDATE webhooks SET url = $1, events = $2, enabled = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING *`,
		url, models.StringList(events), enabled, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}
	return webhook, nil
}

// DeleteWebhook removes a webhook and (via FK cascade) its delivery history.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEnabledWebhooksForEvent returns every enabled webhook subscribed to the
// event type. The events column is a small JSON array, so filtering happens
// in Go rather than with JSON operators.
func (s *Store) ListEnabledWebhooksForEvent(ctx context.Context, eventType string) ([]models.Webhook, error) {
	enabled := []models.Webhook{}
	err := s.db.SelectContext(ctx, &enabled, "SELECT * FROM webhooks WHERE enabled = TRUE")
	if err != nil {
		return nil, err
	}

	matched := make([]models.Webhook, 0, len(enabled))
	for _, w := range enabled {
		if w.SubscribedTo(eventType) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

// CreateDelivery appends a pending delivery audit row.
func (s *Store) CreateDelivery(ctx context.Context, webhookID int64, eventType, payload string) (*models.WebhookDelivery, error) {
	delivery := &models.WebhookDelivery{}
	err := s.db.GetContext(ctx, delivery, `
		INSERT INTO webhook_deliveries (webhook_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		webhookID, eventType, payload, models.DeliveryStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery log: %w", err)
	}
	return delivery, nil
}

// FinalizeDelivery records the outcome of a delivery attempt. A delivery is
// finalized once; later calls against a non-pending row are rejected by the
// status guard.
func (s *Store) FinalizeDelivery(ctx context.Context, deliveryID int64, status string, responseCode *int, responseBody *string, responseTimeMs *int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, response_code = $2, response_body = $3, response_time_ms = $4, completed_at = $5
		WHERE id = $6 AND status = $7`,
		status, responseCode, responseBody, responseTimeMs, time.Now().UTC(), deliveryID, models.DeliveryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to finalize delivery %d: %w", deliveryID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("delivery %d not pending", deliveryID)
	}
	return nil
}

// ListDeliveries returns a webhook's delivery history, newest first, plus the
// total count for pagination.
func (s *Store) ListDeliveries(ctx context.Context, webhookID int64, limit, offset int) ([]models.WebhookDelivery, int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id = $1", webhookID)
	if err != nil {
		return nil, 0, err
	}

	deliveries := []models.WebhookDelivery{}
	err = s.db.SelectContext(ctx, &deliveries, `
		SELECT * FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY attempted_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		webhookID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}
