package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/progress"
	"catalog-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxRowErrors is the soft limit on collected row-level errors; rows keep
// flowing after it, their errors are just no longer recorded.
const maxRowErrors = 100

// ProductStore is the slice of the repository the batch engines mutate
// products through.
type ProductStore interface {
	BatchUpsertProducts(ctx context.Context, products []models.ProductUpsert) (int64, error)
	DeleteProductBatch(ctx context.Context, limit int) (int64, error)
	CountProducts(ctx context.Context) (int64, error)
}

// JobStore is the slice of the repository the engines track job state through.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, status models.JobStatus, processedRows int64) error
	SetJobTotalRows(ctx context.Context, id uuid.UUID, totalRows int64) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// ImportService is the batch ingestion engine: it streams a CSV file,
// validates headers, upserts rows in fixed-size idempotent batches and pushes
// progress after every committed batch.
type ImportService struct {
	products         ProductStore
	jobs             JobStore
	progress         *progress.Store
	webhooks         *WebhookService
	batchSize        int
	progressInterval time.Duration
	logger           *zap.Logger
}

// NewImportService creates the ingestion engine.
func NewImportService(
	products ProductStore,
	jobs JobStore,
	progressStore *progress.Store,
	webhooks *WebhookService,
	batchSize int,
	progressInterval time.Duration,
) *ImportService {
	return &ImportService{
		products:         products,
		jobs:             jobs,
		progress:         progressStore,
		webhooks:         webhooks,
		batchSize:        batchSize,
		progressInterval: progressInterval,
		logger:           util.GetLogger(),
	}
}

// Run processes one import task to completion. Returning nil means the job
// is terminal and the task may be acknowledged; a wrapped ErrValidation means
// terminal failure without retry; anything else is transient and retryable.
func (s *ImportService) Run(ctx context.Context, task broker.TaskEnvelope) error {
	ctx, span := util.StartSpan(ctx, "ImportService.Run")
	defer span.End()

	if task.Kind != models.JobKindImport {
		return fmt.Errorf("%w: unexpected task kind %q on import queue", ErrValidation, task.Kind)
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
		// Redelivery of a finished job whose ack was lost.
		s.logger.Info("Skipping redelivered task for terminal job",
			zap.String("job_id", task.JobID),
			zap.String("status", string(job.Status)))
		return nil
	}

	s.logger.Info("Starting CSV import",
		zap.String("job_id", task.JobID),
		zap.Int("attempt", task.Attempt),
		zap.String("file", task.FilePath))

	f, err := os.Open(task.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: CSV file not found at %s", ErrValidation, task.FilePath)
		}
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	tracker := progress.NewTracker(s.progress, task.JobID, job.TotalRows, s.progressInterval)

	if err := s.advance(ctx, job, models.StatusParsing); err != nil {
		return err
	}
	s.trackProgress(ctx, tracker, job.Status, "starting", job.ProcessedRows, true)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: CSV file is empty or has no headers", ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("%w: CSV parsing error: %v", ErrValidation, err)
	}

	columns := headerIndex(header)
	if missing := missingHeaders(columns); len(missing) > 0 {
		return fmt.Errorf("%w: missing required headers: %s", ErrValidation, strings.Join(missing, ", "))
	}

	if err := s.advance(ctx, job, models.StatusImporting); err != nil {
		return err
	}
	s.trackProgress(ctx, tracker, models.StatusImporting, "batch_0", 0, true)

	batch := make([]models.ProductUpsert, 0, s.batchSize)
	// Index into batch by lowercased SKU: a later row colliding
	// case-insensitively within the same batch replaces the earlier one, as
	// ON CONFLICT cannot touch the same row twice in one statement.
	seen := make(map[string]int, s.batchSize)

	var processed int64
	var rowErrors []string
	batchNum := 0
	rowNum := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchNum++
		if err := s.commitBatch(ctx, job, batch, batchNum); err != nil {
			return err
		}
		processed += int64(len(batch))
		if job.TotalRows != nil && processed > *job.TotalRows {
			processed = *job.TotalRows
		}
		if err := s.jobs.UpdateJobProgress(ctx, jobID, models.StatusImporting, processed); err != nil {
			return fmt.Errorf("failed to record progress for job %s: %w", jobID, err)
		}
		s.trackProgress(ctx, tracker, models.StatusImporting, fmt.Sprintf("batch_%d", batchNum), processed, false)
		s.logger.Info("Batch committed",
			zap.String("job_id", task.JobID),
			zap.Int("batch", batchNum),
			zap.Int("rows", len(batch)),
			zap.Int64("processed", processed))
		batch = batch[:0]
		seen = make(map[string]int, s.batchSize)
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: row %d: CSV parsing error: %v", ErrValidation, rowNum+1, err)
		}
		rowNum++

		product, err := parseProductRow(rowMap(columns, record))
		if err != nil {
			util.RowErrorsTotal.Inc()
			if len(rowErrors) < maxRowErrors {
				rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", rowNum, err))
			}
			continue
		}

		key := strings.ToLower(product.SKU)
		if idx, ok := seen[key]; ok {
			batch[idx] = *product
		} else {
			seen[key] = len(batch)
			batch = append(batch, *product)
		}

		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	if len(rowErrors) > 0 {
		s.logger.Warn("Import finished with row-level errors",
			zap.String("job_id", task.JobID),
			zap.Int("count", len(rowErrors)),
			zap.Strings("errors", rowErrors))
	}

	if err := s.jobs.UpdateJobProgress(ctx, jobID, models.StatusDone, processed); err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", jobID, err)
	}
	s.trackProgress(ctx, tracker, models.StatusDone, "completed", processed, true)

	s.webhooks.PublishEvent(models.EventImportCompleted, models.ImportCompletedData{
		JobID:         task.JobID,
		Status:        string(models.StatusDone),
		ProcessedRows: processed,
		TotalRows:     job.TotalRows,
	})

	s.removeFile(task.FilePath, task.JobID)

	s.logger.Info("Import completed",
		zap.String("job_id", task.JobID),
		zap.Int64("processed_rows", processed))
	return nil
}

// Fail records the terminal failure of an import task: job row, progress
// snapshot, webhook event and temp file cleanup. Called by the worker once no
// further retry is scheduled.
func (s *ImportService) Fail(ctx context.Context, task broker.TaskEnvelope, errorMessage string) {
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

	s.webhooks.PublishEvent(models.EventImportFailed, models.ImportFailedData{
		JobID:         task.JobID,
		Status:        string(models.StatusFailed),
		ErrorMessage:  errorMessage,
		ProcessedRows: processed,
	})

	s.removeFile(task.FilePath, task.JobID)
}

// advance moves the job forward, tolerating redelivery: a job already at or
// past the target stage is left alone, never moved backwards.
func (s *ImportService) advance(ctx context.Context, job *models.ImportJob, to models.JobStatus) error {
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

func (s *ImportService) commitBatch(ctx context.Context, job *models.ImportJob, batch []models.ProductUpsert, batchNum int) error {
	start := time.Now()
	affected, err := s.products.BatchUpsertProducts(ctx, batch)
	if err != nil {
		return fmt.Errorf("batch %d upsert failed: %w", batchNum, err)
	}
	util.BatchCommitLatency.Observe(time.Since(start).Seconds())
	util.BatchesProcessedTotal.WithLabelValues(models.JobKindImport).Inc()
	util.RowsProcessedTotal.Add(float64(affected))
	return nil
}

// trackProgress never fails the import: losing a progress tick is logged and
// forgotten.
func (s *ImportService) trackProgress(ctx context.Context, tracker *progress.Tracker, status models.JobStatus, stage string, processed int64, force bool) {
	if err := tracker.Update(ctx, status, stage, processed, "", force); err != nil {
		s.logger.Warn("Failed to publish progress update",
			zap.String("stage", stage), zap.Error(err))
	}
}

func (s *ImportService) removeFile(path, jobID string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove temp file",
			zap.String("job_id", jobID),
			zap.String("file", path),
			zap.Error(err))
		return
	}
	s.logger.Info("Removed temp file",
		zap.String("job_id", jobID), zap.String("file", path))
}

// parseProductRow converts one CSV row into an upsert payload. Rows with an
// empty sku or name, or an unrecognized active token, are row-level errors.
func parseProductRow(row map[string]string) (*models.ProductUpsert, error) {
	sku := strings.TrimSpace(row["sku"])
	name := strings.TrimSpace(row["name"])
	if sku == "" {
		return nil, fmt.Errorf("empty sku")
	}
	if name == "" {
		return nil, fmt.Errorf("empty name")
	}

	product := &models.ProductUpsert{
		SKU:    sku,
		Name:   name,
		Active: true,
	}

	if desc := strings.TrimSpace(row["description"]); desc != "" {
		product.Description = &desc
	}

	if raw, ok := row["active"]; ok && strings.TrimSpace(raw) != "" {
		active, err := parseActive(raw)
		if err != nil {
			return nil, err
		}
		product.Active = active
	}

	return product, nil
}
