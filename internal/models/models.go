package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product represents a catalog product imported from CSV or created via the API.
// SKU uniqueness is enforced case-insensitively (unique index on lower(sku)).
type Product struct {
	ID          int64     `db:"id" json:"id"`
	SKU         string    `db:"sku" json:"sku"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProductUpsert is the write payload for the batch upsert primitive.
// All product mutations (CSV batches and direct CRUD) go through it.
type ProductUpsert struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Active      bool    `json:"active"`
}

// Job kinds
const (
	JobKindImport     = "import"
	JobKindBulkDelete = "bulk_delete"
)

// ImportJob tracks one asynchronous unit of work (CSV import or bulk delete).
// The row is created once per request; all later state flows through
// UpdateJobStatus and the progress store.
type ImportJob struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Filename      string    `db:"filename" json:"filename"`
	JobType       string    `db:"job_type" json:"job_type"`
	Status        JobStatus `db:"status" json:"status"`
	TotalRows     *int64    `db:"total_rows" json:"total_rows"`
	ProcessedRows int64     `db:"processed_rows" json:"processed_rows"`
	ErrorMessage  *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the job has reached an absorbing state.
func (j *ImportJob) Terminal() bool {
	return j.Status.Terminal()
}

// Webhook represents a registered webhook endpoint and its event subscriptions.
type Webhook struct {
	ID        int64      `db:"id" json:"id"`
	URL       string     `db:"url" json:"url"`
	Events    StringList `db:"events" json:"events"`
	Enabled   bool       `db:"enabled" json:"enabled"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// SubscribedTo reports whether the webhook subscribes to the given event type.
func (w *Webhook) SubscribedTo(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Webhook delivery statuses
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailed  = "failed"
)

// WebhookDelivery is one delivery attempt against a webhook URL. Rows are
// append-only: created as pending, finalized exactly once to success or failed.
type WebhookDelivery struct {
	ID             int64      `db:"id" json:"id"`
	WebhookID      int64      `db:"webhook_id" json:"webhook_id"`
	EventType      string     `db:"event_type" json:"event_type"`
	Payload        string     `db:"payload" json:"payload"`
	Status         string     `db:"status" json:"status"`
	ResponseCode   *int       `db:"response_code" json:"response_code"`
	ResponseBody   *string    `db:"response_body" json:"response_body,omitempty"`
	ResponseTimeMs *int64     `db:"response_time_ms" json:"response_time_ms"`
	AttemptedAt    time.Time  `db:"attempted_at" json:"attempted_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at"`
}

// StringList stores a JSON string array in a text column.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}
