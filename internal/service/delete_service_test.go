package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deleteFixture struct {
	svc      *BulkDeleteService
	products *fakeProductStore
	jobs     *fakeJobStore
	job      *models.ImportJob
}

func newDeleteFixture(t *testing.T, productCount, batchSize int) *deleteFixture {
	t.Helper()

	products := newFakeProductStore()
	for i := 0; i < productCount; i++ {
		sku := fmt.Sprintf("sku-%03d", i)
		products.products[sku] = models.ProductUpsert{SKU: sku, Name: fmt.Sprintf("Product %d", i), Active: true}
	}

	jobs := newFakeJobStore()
	webhooks := NewWebhookService(&fakeWebhookStore{}, time.Second)
	t.Cleanup(webhooks.Close)

	job := &models.ImportJob{
		ID:      uuid.New(),
		JobType: models.JobKindBulkDelete,
		Status:  models.StatusQueued,
	}
	jobs.add(job)

	return &deleteFixture{
		svc:      NewBulkDeleteService(products, jobs, newTestProgress(t), webhooks, batchSize, time.Millisecond),
		products: products,
		jobs:     jobs,
		job:      job,
	}
}

func (fx *deleteFixture) task() broker.TaskEnvelope {
	return broker.TaskEnvelope{
		TaskID:     fx.job.ID.String(),
		JobID:      fx.job.ID.String(),
		Kind:       models.JobKindBulkDelete,
		Attempt:    1,
		EnqueuedAt: time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestBulkDeleteRemovesEverything(t *testing.T) {
	fx := newDeleteFixture(t, 25, 10)

	require.NoError(t, fx.svc.Run(context.Background(), fx.task()))

	assert.Equal(t, 0, fx.products.count())
	job := fx.jobs.get(fx.job.ID)
	assert.Equal(t, models.StatusDone, job.Status)
	require.NotNil(t, job.TotalRows)
	assert.Equal(t, int64(25), *job.TotalRows)
	assert.Equal(t, int64(25), job.ProcessedRows)
}

func TestBulkDeleteEmptyCatalog(t *testing.T) {
	fx := newDeleteFixture(t, 0, 10)

	require.NoError(t, fx.svc.Run(context.Background(), fx.task()))

	job := fx.jobs.get(fx.job.ID)
	assert.Equal(t, models.StatusDone, job.Status)
	require.NotNil(t, job.TotalRows)
	assert.Equal(t, int64(0), *job.TotalRows)
	assert.Equal(t, int64(0), job.ProcessedRows)
}

func TestBulkDeleteRedeliveryKeepsOriginalTotal(t *testing.T) {
	// A worker crashed mid-delete: 50 of 100 rows already gone, the task is
	// redelivered while the job sits at deleting. The total recorded at the
	// preparing stage must survive; re-counting the shrunken catalog would
	// end the job with processed_rows above total_rows.
	fx := newDeleteFixture(t, 50, 10)
	total := int64(100)
	fx.jobs.mu.Lock()
	fx.jobs.jobs[fx.job.ID].Status = models.StatusDeleting
	fx.jobs.jobs[fx.job.ID].TotalRows = &total
	fx.jobs.jobs[fx.job.ID].ProcessedRows = 50
	fx.jobs.mu.Unlock()

	require.NoError(t, fx.svc.Run(context.Background(), fx.task()))

	assert.Equal(t, 0, fx.products.count())
	job := fx.jobs.get(fx.job.ID)
	assert.Equal(t, models.StatusDone, job.Status)
	require.NotNil(t, job.TotalRows)
	assert.Equal(t, int64(100), *job.TotalRows)
	assert.Equal(t, int64(100), job.ProcessedRows)
	assert.LessOrEqual(t, job.ProcessedRows, *job.TotalRows)
}

func TestBulkDeleteRedeliveryOfTerminalJobAcks(t *testing.T) {
	fx := newDeleteFixture(t, 5, 10)
	require.NoError(t, fx.svc.Run(context.Background(), fx.task()))

	// Products created after the job finished must survive the redelivery.
	fx.products.products["new-1"] = models.ProductUpsert{SKU: "new-1", Name: "New", Active: true}
	require.NoError(t, fx.svc.Run(context.Background(), fx.task()))
	assert.Equal(t, 1, fx.products.count())
}

func TestBulkDeleteFailRecordsTerminalState(t *testing.T) {
	fx := newDeleteFixture(t, 5, 10)

	fx.svc.Fail(context.Background(), fx.task(), "database unavailable")

	job := fx.jobs.get(fx.job.ID)
	assert.Equal(t, models.StatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "database unavailable", *job.ErrorMessage)
}

func TestBulkDeleteWrongKindRejected(t *testing.T) {
	fx := newDeleteFixture(t, 1, 10)
	task := fx.task()
	task.Kind = models.JobKindImport

	err := fx.svc.Run(context.Background(), task)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, fx.products.count())
}
