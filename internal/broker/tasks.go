package broker

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/google/uuid"
)

// TaskEnvelope is the message placed on a queue for one job. Exactly one
// task message exists per job; redeliveries and retries carry the same job id
// with a bumped attempt counter.
type TaskEnvelope struct {
	TaskID     string    `json:"task_id"`
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	FilePath   string    `json:"file_path,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the message outlived its TTL. Stale tasks are
// dropped by workers instead of processed.
func (t TaskEnvelope) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// DeadLetter wraps an exhausted task for the dead-letter queue, preserving
// the original envelope alongside the terminating error for manual
// inspection.
type DeadLetter struct {
	Task     TaskEnvelope `json:"task"`
	Error    string       `json:"error"`
	ParkedAt time.Time    `json:"parked_at"`
}

// Enqueuer publishes job tasks onto their workload-specific queues.
type Enqueuer struct {
	producer        *Producer
	importTopic     string
	bulkDeleteTopic string
	importTTL       time.Duration
	bulkTTL         time.Duration
}

// NewEnqueuer creates a task enqueuer.
func NewEnqueuer(producer *Producer, importTopic, bulkDeleteTopic string, importTTL, bulkTTL time.Duration) *Enqueuer {
	return &Enqueuer{
		producer:        producer,
		importTopic:     importTopic,
		bulkDeleteTopic: bulkDeleteTopic,
		importTTL:       importTTL,
		bulkTTL:         bulkTTL,
	}
}

// EnqueueImport places an import task on the import queue. The task id
// doubles as the job id for easier correlation.
func (e *Enqueuer) EnqueueImport(ctx context.Context, jobID uuid.UUID, filePath string) error {
	now := time.Now()
	task := TaskEnvelope{
		TaskID:     jobID.String(),
		JobID:      jobID.String(),
		Kind:       models.JobKindImport,
		FilePath:   filePath,
		Attempt:    1,
		EnqueuedAt: now,
		ExpiresAt:  now.Add(e.importTTL),
	}
	if err := e.producer.Publish(ctx, e.importTopic, task.JobID, task); err != nil {
		return fmt.Errorf("failed to enqueue import task: %w", err)
	}
	return nil
}

// EnqueueBulkDelete places a bulk-delete task on the bulk-delete queue.
func (e *Enqueuer) EnqueueBulkDelete(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now()
	task := TaskEnvelope{
		TaskID:     jobID.String(),
		JobID:      jobID.String(),
		Kind:       models.JobKindBulkDelete,
		Attempt:    1,
		EnqueuedAt: now,
		ExpiresAt:  now.Add(e.bulkTTL),
	}
	if err := e.producer.Publish(ctx, e.bulkDeleteTopic, task.JobID, task); err != nil {
		return fmt.Errorf("failed to enqueue bulk delete task: %w", err)
	}
	return nil
}
