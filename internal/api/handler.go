package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"catalog-service/config"
	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/progress"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	store    *store.Store
	progress *progress.Store
	enqueuer *broker.Enqueuer
	webhooks *service.WebhookService
	redis    *redis.Client
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(st *store.Store, progressStore *progress.Store, enqueuer *broker.Enqueuer, webhooks *service.WebhookService, redisClient *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		store:    st,
		progress: progressStore,
		enqueuer: enqueuer,
		webhooks: webhooks,
		redis:    redisClient,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/upload", h.uploadCSV)
		v1.GET("/progress/:id", h.streamProgress)

		v1.GET("/imports", h.listImports)
		v1.GET("/imports/:id", h.getImport)

		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)
		v1.DELETE("/products", h.bulkDeleteProducts)

		v1.POST("/webhooks", h.createWebhook)
		v1.GET("/webhooks", h.listWebhooks)
		v1.GET("/webhooks/:id", h.getWebhook)
		v1.PUT("/webhooks/:id", h.updateWebhook)
		v1.DELETE("/webhooks/:id", h.deleteWebhook)
		v1.POST("/webhooks/:id/test", h.testWebhook)
		v1.GET("/webhooks/:id/deliveries", h.listDeliveries)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck verifies the database and Redis are reachable.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database unreachable"})
		return
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "redis unreachable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// uploadCSV accepts a multipart CSV upload, validates it and enqueues an
// import job. The response is 202: the actual import happens on a worker.
func (h *Handler) uploadCSV(c *gin.Context) {
	maxBytes := h.cfg.Import.MaxUploadSizeMB << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing or oversized file upload",
			"details": err.Error(),
		})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Only .csv files are accepted",
		})
		return
	}

	ctx := c.Request.Context()

	job, err := h.store.CreateImportJob(ctx, fileHeader.Filename, models.JobKindImport, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create import job"})
		return
	}

	if err := h.store.UpdateJobStatus(ctx, job.ID, models.StatusUploading); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start upload"})
		return
	}

	dest := filepath.Join(h.cfg.Import.UploadDir, job.ID.String()+".csv")
	if err := c.SaveUploadedFile(fileHeader, dest); err != nil {
		h.failUpload(c, job.ID, dest, "failed to store uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store uploaded file"})
		return
	}

	result := service.ValidateCSVFile(dest)
	if !result.Valid {
		h.failUpload(c, job.ID, dest, strings.Join(result.Errors, "; "))
		c.JSON(http.StatusBadRequest, gin.H{
			"job_id": job.ID,
			"error":  "CSV validation failed",
			"errors": result.Errors,
		})
		return
	}

	if err := h.store.SetJobTotalRows(ctx, job.ID, result.TotalRows); err != nil {
		h.failUpload(c, job.ID, dest, "failed to record row count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record row count"})
		return
	}

	total := result.TotalRows
	if _, err := h.progress.SetProgress(ctx, job.ID.String(), progress.Snapshot{
		Status:    models.StatusUploading,
		Stage:     "uploaded",
		TotalRows: &total,
	}); err != nil {
		h.logger.Warn("Failed to seed progress snapshot",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	if err := h.enqueuer.EnqueueImport(ctx, job.ID, dest); err != nil {
		h.failUpload(c, job.ID, dest, "failed to enqueue import task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue import task"})
		return
	}

	h.logger.Info("Import job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("filename", fileHeader.Filename),
		zap.Int64("total_rows", result.TotalRows))

	resp := gin.H{
		"job_id":     job.ID,
		"status":     models.StatusUploading,
		"total_rows": result.TotalRows,
		"stream_url": fmt.Sprintf("/api/v1/progress/%s", job.ID),
	}
	if len(result.Errors) > 0 {
		resp["warnings"] = result.Errors
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) failUpload(c *gin.Context, jobID uuid.UUID, path, reason string) {
	ctx := c.Request.Context()
	if err := h.store.FailJob(ctx, jobID, reason); err != nil {
		h.logger.Error("Failed to mark upload job failed",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("Failed to remove uploaded file",
			zap.String("file", path), zap.Error(err))
	}
}

// streamProgress serves job progress over SSE: the persisted snapshot first,
// then live pub/sub updates until the job reaches a terminal state or the
// client disconnects.
func (h *Handler) streamProgress(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	ctx := c.Request.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	// Catch-up snapshot. Jobs whose snapshot expired still get one derived
	// from the database row.
	snap, err := h.progress.GetProgress(ctx, jobID.String())
	if err != nil {
		h.logger.Warn("Failed to load progress snapshot",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
	if snap == nil {
		snap = snapshotFromJob(job)
	}
	writeSSE(c.Writer, flusher, *snap)
	if snap.Terminal() {
		writeSSEClose(c.Writer, flusher)
		return
	}

	streamProgressUpdates(ctx, c.Writer, flusher, h.progress, jobID.String(), progressPollInterval)
}

// progressPollInterval is the cadence of the snapshot polling fallback on an
// open SSE stream; the poll doubles as the client heartbeat.
const progressPollInterval = 2500 * time.Millisecond

// streamProgressUpdates forwards live pub/sub updates to the client until a
// terminal snapshot is observed. Pub/sub is best-effort: a terminal update
// published before the subscription opened, or dropped in transit, would
// otherwise leave the client hanging, so the persisted snapshot is re-read
// after subscribing and on every poll tick.
func streamProgressUpdates(ctx context.Context, w io.Writer, flusher http.Flusher, ps *progress.Store, jobID string, pollInterval time.Duration) {
	sub := ps.Subscribe(ctx, jobID)
	defer sub.Close()

	checkSnapshot := func() bool {
		snap, err := ps.GetProgress(ctx, jobID)
		if err != nil || snap == nil || !snap.Terminal() {
			return false
		}
		writeSSE(w, flusher, *snap)
		writeSSEClose(w, flusher)
		return true
	}

	if checkSnapshot() {
		return
	}

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
			if checkSnapshot() {
				return
			}
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()

			var update progress.Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &update); err == nil && update.Terminal() {
				writeSSEClose(w, flusher)
				return
			}
		}
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, snap progress.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeSSEClose(w io.Writer, flusher http.Flusher) {
	fmt.Fprint(w, "data: {\"event\":\"close\"}\n\n")
	flusher.Flush()
}

func snapshotFromJob(job *models.ImportJob) *progress.Snapshot {
	snap := &progress.Snapshot{
		Status:        job.Status,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		UpdatedAt:     job.UpdatedAt,
	}
	if job.ErrorMessage != nil {
		snap.ErrorMessage = *job.ErrorMessage
	}
	if job.TotalRows != nil && *job.TotalRows > 0 {
		snap.Progress = float64(job.ProcessedRows) / float64(*job.TotalRows) * 100
	}
	return snap
}

// listImports returns recent jobs, newest first.
func (h *Handler) listImports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	jobs, err := h.store.ListRecentJobs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// getImport returns one job row.
func (h *Handler) getImport(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

type productRequest struct {
	SKU         string  `json:"sku" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (r *productRequest) toUpsert() models.ProductUpsert {
	p := models.ProductUpsert{
		SKU:         strings.TrimSpace(r.SKU),
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Active:      true,
	}
	if r.Active != nil {
		p.Active = *r.Active
	}
	return p
}

// listProducts handles filtered, paginated product listing.
func (h *Handler) listProducts(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if err != nil || pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	filter := store.ProductFilter{
		SKU:         c.Query("sku"),
		Name:        c.Query("name"),
		Description: c.Query("description"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active filter"})
			return
		}
		filter.Active = &active
	}

	products, total, err := h.store.ListProducts(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products":  products,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// createProduct handles single product creation.
func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, err := h.store.CreateProduct(c.Request.Context(), req.toUpsert())
	if err != nil {
		if errors.Is(err, store.ErrSKUExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "SKU already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}

	h.webhooks.PublishEvent(models.EventProductCreated, product)
	c.JSON(http.StatusCreated, product)
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// updateProduct overwrites a product's fields.
func (h *Handler) updateProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, err := h.store.UpdateProduct(c.Request.Context(), id, req.toUpsert())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		case errors.Is(err, store.ErrSKUExists):
			c.JSON(http.StatusConflict, gin.H{"error": "SKU already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		}
		return
	}

	h.webhooks.PublishEvent(models.EventProductUpdated, product)
	c.JSON(http.StatusOK, product)
}

// deleteProduct removes a single product.
func (h *Handler) deleteProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}

	if err := h.store.DeleteProduct(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
		return
	}

	h.webhooks.PublishEvent(models.EventProductDeleted, product)
	c.Status(http.StatusNoContent)
}

// bulkDeleteProducts enqueues an asynchronous job that removes the entire
// catalog in batches.
func (h *Handler) bulkDeleteProducts(c *gin.Context) {
	ctx := c.Request.Context()

	job, err := h.store.CreateImportJob(ctx, "", models.JobKindBulkDelete, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create bulk delete job"})
		return
	}

	if err := h.enqueuer.EnqueueBulkDelete(ctx, job.ID); err != nil {
		if ferr := h.store.FailJob(ctx, job.ID, "failed to enqueue bulk delete task"); ferr != nil {
			h.logger.Error("Failed to mark bulk delete job failed",
				zap.String("job_id", job.ID.String()), zap.Error(ferr))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue bulk delete task"})
		return
	}

	h.logger.Info("Bulk delete job enqueued", zap.String("job_id", job.ID.String()))

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.ID,
		"status":     job.Status,
		"stream_url": fmt.Sprintf("/api/v1/progress/%s", job.ID),
	})
}

type webhookRequest struct {
	URL     string   `json:"url" binding:"required,url"`
	Events  []string `json:"events" binding:"required,min=1"`
	Enabled *bool    `json:"enabled"`
}

// validateWebhookURL rejects anything but an absolute http(s) URL; the
// binding validator alone would let ftp:// or file:// through.
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must use http or https")
	}
	return nil
}

func validateEventTypes(events []string) error {
	known := make(map[string]bool, len(models.KnownEventTypes))
	for _, e := range models.KnownEventTypes {
		known[e] = true
	}
	for _, e := range events {
		if !known[e] {
			return fmt.Errorf("unknown event type %q", e)
		}
	}
	return nil
}

// createWebhook registers a webhook endpoint.
func (h *Handler) createWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if err := validateWebhookURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateEventTypes(req.Events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	webhook, err := h.store.CreateWebhook(c.Request.Context(), req.URL, req.Events, enabled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create webhook"})
		return
	}
	c.JSON(http.StatusCreated, webhook)
}

// listWebhooks returns all registered webhooks.
func (h *Handler) listWebhooks(c *gin.Context) {
	webhooks, err := h.store.ListWebhooks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list webhooks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": webhooks})
}

// getWebhook returns one webhook.
func (h *Handler) getWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook ID"})
		return
	}

	webhook, err := h.store.GetWebhook(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return
	}
	c.JSON(http.StatusOK, webhook)
}

// updateWebhook overwrites a webhook's configuration.
func (h *Handler) updateWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook ID"})
		return
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if err := validateWebhookURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateEventTypes(req.Events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	webhook, err := h.store.UpdateWebhook(c.Request.Context(), id, req.URL, req.Events, enabled)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update webhook"})
		return
	}
	c.JSON(http.StatusOK, webhook)
}

// deleteWebhook removes a webhook and its delivery history.
func (h *Handler) deleteWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook ID"})
		return
	}

	if err := h.store.DeleteWebhook(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete webhook"})
		return
	}
	c.Status(http.StatusNoContent)
}

// testWebhook performs a synchronous test delivery and returns the outcome.
func (h *Handler) testWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook ID"})
		return
	}

	result, err := h.webhooks.TestWebhook(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to test webhook"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// listDeliveries returns a webhook's paginated delivery history.
func (h *Handler) listDeliveries(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook ID"})
		return
	}

	if _, err := h.store.GetWebhook(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	deliveries, total, err := h.store.ListDeliveries(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deliveries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
