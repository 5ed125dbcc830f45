package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"catalog-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishEventDeliversToSubscribedWebhooks(t *testing.T) {
	var received atomic.Int64
	var gotBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(string(body))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeWebhookStore{webhooks: []models.Webhook{
		{ID: 1, URL: server.URL, Events: models.StringList{models.EventImportCompleted}, Enabled: true},
		{ID: 2, URL: server.URL, Events: models.StringList{models.EventProductCreated}, Enabled: true},
		{ID: 3, URL: server.URL, Events: models.StringList{models.EventImportCompleted}, Enabled: false},
	}}
	svc := NewWebhookService(store, time.Second)

	total := int64(10)
	svc.PublishEvent(models.EventImportCompleted, models.ImportCompletedData{
		JobID:         "job-1",
		Status:        "done",
		ProcessedRows: 10,
		TotalRows:     &total,
	})
	svc.Close()

	// Only webhook 1 is enabled and subscribed.
	assert.Equal(t, int64(1), received.Load())

	var envelope models.EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(gotBody.Load().(string)), &envelope))
	assert.Equal(t, models.EventImportCompleted, envelope.Event)

	deliveries := store.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, int64(1), deliveries[0].WebhookID)
	assert.Equal(t, models.DeliveryStatusSuccess, deliveries[0].Status)
	require.NotNil(t, deliveries[0].ResponseCode)
	assert.Equal(t, http.StatusOK, *deliveries[0].ResponseCode)
}

func TestDeliveryFailureIsIsolatedPerWebhook(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badServer.Close()

	store := &fakeWebhookStore{webhooks: []models.Webhook{
		{ID: 1, URL: badServer.URL, Events: models.StringList{models.EventProductDeleted}, Enabled: true},
		{ID: 2, URL: okServer.URL, Events: models.StringList{models.EventProductDeleted}, Enabled: true},
	}}
	svc := NewWebhookService(store, time.Second)

	svc.PublishEvent(models.EventProductDeleted, map[string]string{"sku": "A1"})
	svc.Close()

	deliveries := store.all()
	require.Len(t, deliveries, 2)
	byWebhook := map[int64]string{}
	for _, d := range deliveries {
		byWebhook[d.WebhookID] = d.Status
	}
	assert.Equal(t, models.DeliveryStatusFailed, byWebhook[1])
	assert.Equal(t, models.DeliveryStatusSuccess, byWebhook[2])
}

func TestTimeoutProducesFailedResultWithoutResponseCode(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	store := &fakeWebhookStore{webhooks: []models.Webhook{
		{ID: 1, URL: server.URL, Events: models.StringList{models.EventWebhookTest}, Enabled: true},
	}}
	svc := NewWebhookService(store, 50*time.Millisecond)

	result, err := svc.TestWebhook(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, result.ResponseCode)
	assert.NotEmpty(t, result.Error)
	require.NotNil(t, result.ResponseTimeMs)
	assert.GreaterOrEqual(t, *result.ResponseTimeMs, int64(50))

	deliveries := store.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, models.DeliveryStatusFailed, deliveries[0].Status)
}

func TestResponseBodyIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, long)
	}))
	defer server.Close()

	store := &fakeWebhookStore{webhooks: []models.Webhook{
		{ID: 1, URL: server.URL, Events: models.StringList{models.EventWebhookTest}, Enabled: true},
	}}
	svc := NewWebhookService(store, time.Second)

	result, err := svc.TestWebhook(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.ResponseBody)
	assert.Len(t, *result.ResponseBody, maxResponseBody+len("... (truncated)"))
	assert.True(t, strings.HasSuffix(*result.ResponseBody, "... (truncated)"))
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "short", truncateBody("short"))

	exact := strings.Repeat("a", maxResponseBody)
	assert.Equal(t, exact, truncateBody(exact))

	over := exact + "b"
	assert.Equal(t, exact+"... (truncated)", truncateBody(over))
}

func TestTestWebhookUnknownID(t *testing.T) {
	svc := NewWebhookService(&fakeWebhookStore{}, time.Second)
	_, err := svc.TestWebhook(context.Background(), 42)
	assert.Error(t, err)
}
