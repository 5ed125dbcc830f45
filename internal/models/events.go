package models

// Webhook event types
const (
	EventProductCreated     = "product.created"
	EventProductUpdated     = "product.updated"
	EventProductDeleted     = "product.deleted"
	EventProductBulkDeleted = "product.bulk_deleted"
	EventImportCompleted    = "import.completed"
	EventImportFailed       = "import.failed"
	EventWebhookTest        = "webhook.test"
)

// KnownEventTypes lists every event type a webhook may subscribe to.
var KnownEventTypes = []string{
	EventProductCreated,
	EventProductUpdated,
	EventProductDeleted,
	EventProductBulkDeleted,
	EventImportCompleted,
	EventImportFailed,
}

// EventEnvelope is the wire format delivered to webhook endpoints.
type EventEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ImportCompletedData is the payload for import.completed events.
type ImportCompletedData struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	ProcessedRows int64  `json:"processed_rows"`
	TotalRows     *int64 `json:"total_rows"`
}

// ImportFailedData is the payload for import.failed events.
type ImportFailedData struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message"`
	ProcessedRows int64  `json:"processed_rows"`
}

// BulkDeletedData is the payload for product.bulk_deleted events.
type BulkDeletedData struct {
	JobID        string `json:"job_id"`
	DeletedCount int64  `json:"deleted_count"`
}
