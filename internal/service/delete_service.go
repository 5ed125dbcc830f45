package service

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/progress"
	"catalog-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BulkDeleteService removes the whole catalog in fixed-size batches so no
// single transaction holds locks for the full table.
type BulkDeleteService struct {
	products         ProductStore
	jobs             JobStore
	progress         *progress.Store
	webhooks         *WebhookService
	batchSize        int
	progressInterval time.Duration
	logger           *zap.Logger
}

// NewBulkDeleteService creates the bulk deletion engine.
func NewBulkDeleteService(
	products ProductStore,
	jobs JobStore,
	progressStore *progress.Store,
	webhooks *WebhookService,
	batchSize int,
	progressInterval time.Duration,
) *BulkDeleteService {
	return &BulkDeleteService{
		products:         products,
		jobs:             jobs,
		progress:         progressStore,
		webhooks:         webhooks,
		batchSize:        batchSize,
		progressInterval: progressInterval,
		logger:           util.GetLogger(),
	}
}

// Run processes one bulk delete task: count the catalog, then delete in
// batches until a round removes nothing. Same return contract as the import
// engine: nil acks, ErrValidation fails without retry, anything else retries.
func (s *BulkDeleteService) Run(ctx context.Context, task broker.TaskEnvelope) error {
	ctx, span := util.StartSpan(ctx, "BulkDeleteService.Run")
	defer span.End()

	if task.Kind != models.JobKindBulkDelete {
		return fmt.Errorf("%w: unexpected task kind %q on bulk delete queue", ErrValidation, task.Kind)
	}

	jobID, err := uuid.Parse(task.JobID)
	if err != nil {
		return fmt.Errorf("%w: malformed job id %q", ErrValidation, task.JobID)
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Terminal() {
		s.logger.Info("Skipping redelivered task for terminal job",
			zap.String("job_id", task.JobID),
			zap.String("status", string(job.Status)))
		return nil
	}

	s.logger.Info("Starting bulk delete",
		zap.String("job_id", task.JobID),
		zap.Int("attempt", task.Attempt))

	if err := s.advance(ctx, job, models.StatusPreparing); err != nil {
		return err
	}

	// The total is the catalog size snapshotted at the preparing stage. A
	// redelivered task resumes against the recorded total instead of
	// re-counting the shrunken catalog.
	if job.TotalRows == nil {
		count, err := s.products.CountProducts(ctx)
		if err != nil {
			return fmt.Errorf("failed to count products: %w", err)
		}
		if err := s.jobs.SetJobTotalRows(ctx, jobID, count); err != nil {
			return fmt.Errorf("failed to record total for job %s: %w", jobID, err)
		}
		job.TotalRows = &count
	}
	total := *job.TotalRows

	tracker := progress.NewTracker(s.progress, task.JobID, job.TotalRows, s.progressInterval)
	s.trackProgress(ctx, tracker, job.Status, "counting", job.ProcessedRows, true)

	if err := s.advance(ctx, job, models.StatusDeleting); err != nil {
		return err
	}
	s.trackProgress(ctx, tracker, models.StatusDeleting, "batch_0", job.ProcessedRows, true)

	deleted := job.ProcessedRows
	batchNum := 0
	for {
		start := time.Now()
		n, err := s.products.DeleteProductBatch(ctx, s.batchSize)
		if err != nil {
			return fmt.Errorf("batch delete failed: %w", err)
		}
		if n == 0 {
			break
		}
		util.BatchCommitLatency.Observe(time.Since(start).Seconds())
		util.BatchesProcessedTotal.WithLabelValues(models.JobKindBulkDelete).Inc()

		batchNum++
		deleted += n
		if deleted > total {
			deleted = total
		}
		if err := s.jobs.UpdateJobProgress(ctx, jobID, models.StatusDeleting, deleted); err != nil {
			return fmt.Errorf("failed to record progress for job %s: %w", jobID, err)
		}
		s.trackProgress(ctx, tracker, models.StatusDeleting, fmt.Sprintf("batch_%d", batchNum), deleted, false)
		s.logger.Info("Delete batch committed",
			zap.String("job_id", task.JobID),
			zap.Int("batch", batchNum),
			zap.Int64("deleted", deleted))
	}

	if err := s.jobs.UpdateJobProgress(ctx, jobID, models.StatusDone, deleted); err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", jobID, err)
	}
	s.trackProgress(ctx, tracker, models.StatusDone, "completed", deleted, true)

	s.webhooks.PublishEvent(models.EventProductBulkDeleted, models.BulkDeletedData{
		JobID:        task.JobID,
		DeletedCount: deleted,
	})

	s.logger.Info("Bulk delete completed",
		zap.String("job_id", task.JobID),
		zap.Int64("deleted", deleted))
	return nil
}

// Fail records the terminal failure of a bulk delete task.
func (s *BulkDeleteService) Fail(ctx context.Context, task broker.TaskEnvelope, errorMessage string) {
	jobID, err := uuid.Parse(task.JobID)
	if err != nil {
		s.logger.Error("Cannot fail job with malformed id", zap.String("job_id", task.JobID))
		return
	}

	if err := s.jobs.FailJob(ctx, jobID, errorMessage); err != nil {
		s.logger.Error("Failed to mark job failed",
			zap.String("job_id", task.JobID), zap.Error(err))
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	var totalRows *int64
	var processed int64
	if err == nil {
		totalRows = job.TotalRows
		processed = job.ProcessedRows
	}

	tracker := progress.NewTracker(s.progress, task.JobID, totalRows, s.progressInterval)
	if err := tracker.Update(ctx, models.StatusFailed, "failed", processed, errorMessage, true); err != nil {
		s.logger.Warn("Failed to publish terminal progress",
			zap.String("job_id", task.JobID), zap.Error(err))
	}
}

func (s *BulkDeleteService) advance(ctx context.Context, job *models.ImportJob, to models.JobStatus) error {
	if job.Status == to {
		return nil
	}
	if !models.CanTransition(job.Status, to) {
		s.logger.Debug("Skipping backwards transition on redelivered task",
			zap.String("job_id", job.ID.String()),
			zap.String("from", string(job.Status)),
			zap.String("to", string(to)))
		return nil
	}
	if err := s.jobs.UpdateJobStatus(ctx, job.ID, to); err != nil {
		return fmt.Errorf("failed to transition job %s to %s: %w", job.ID, to, err)
	}
	job.Status = to
	return nil
}

func (s *BulkDeleteService) trackProgress(ctx context.Context, tracker *progress.Tracker, status models.JobStatus, stage string, processed int64, force bool) {
	if err := tracker.Update(ctx, status, stage, processed, "", force); err != nil {
		s.logger.Warn("Failed to publish progress update",
			zap.String("stage", stage), zap.Error(err))
	}
}
