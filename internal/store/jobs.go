package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalog-service/internal/models"

	"github.com/google/uuid"
)

// ErrIllegalTransition is returned when a status update would move a job
// backwards or out of a terminal state.
var ErrIllegalTransition = errors.New("illegal job status transition")

// CreateImportJob inserts a new job row in the queued state.
func (s *Store) CreateImportJob(ctx context.Context, filename, jobType string, totalRows *int64) (*models.ImportJob, error) {
	job := &models.ImportJob{}
	err := s.db.GetContext(ctx, job, `
		INSERT INTO import_jobs (id, filename, job_type, status, total_rows, processed_rows)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING *`,
		uuid.New(), filename, jobType, models.StatusQueued, totalRows)
	if err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	var job models.ImportJob
	err := s.db.GetContext(ctx, &job, "SELECT * FROM import_jobs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecentJobs retrieves recent jobs ordered by creation time.
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]models.ImportJob, error) {
	jobs := []models.ImportJob{}
	err := s.db.SelectContext(ctx, &jobs,
		"SELECT * FROM import_jobs ORDER BY created_at DESC LIMIT $1", limit)
	return jobs, err
}

// UpdateJobStatus moves a job to a new status. The transition is checked
// against the state machine under a row lock so an illegal move is rejected
// rather than written.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	return s.transitionJob(ctx, id, status, func(tx queryExecer) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE import_jobs SET status = $1, updated_at = NOW() WHERE id = $2",
			status, id)
		return err
	})
}

// UpdateJobProgress moves a job to a new status and advances processed_rows.
// GREATEST keeps the counter monotonic even if a redelivered task reports a
// stale count.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, status models.JobStatus, processedRows int64) error {
	return s.transitionJob(ctx, id, status, func(tx queryExecer) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE import_jobs
			 SET status = $1, processed_rows = GREATEST(processed_rows, $2), updated_at = NOW()
			 WHERE id = $3`,
			status, processedRows, id)
		return err
	})
}

// SetJobTotalRows records the discovered total row count for a job. Bulk
// delete jobs learn their total during the preparing stage rather than at
// creation time.
func (s *Store) SetJobTotalRows(ctx context.Context, id uuid.UUID, totalRows int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE import_jobs SET total_rows = $1, updated_at = NOW() WHERE id = $2",
		totalRows, id)
	if err != nil {
		return fmt.Errorf("failed to set total rows for job %s: %w", id, err)
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

// FailJob marks a job failed with a terminal error message.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return s.transitionJob(ctx, id, models.StatusFailed, func(tx queryExecer) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE import_jobs SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3",
			models.StatusFailed, errorMessage, id)
		return err
	})
}

type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) transitionJob(ctx context.Context, id uuid.UUID, to models.JobStatus, update func(queryExecer) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current models.JobStatus
	err = tx.GetContext(ctx, &current,
		"SELECT status FROM import_jobs WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock job row: %w", err)
	}

	if !models.CanTransition(current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, to)
	}

	if err := update(tx); err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return tx.Commit()
}
