package api

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/progress"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseRecorder captures SSE frames; safe for the writer and test goroutines.
type sseRecorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *sseRecorder) Flush() {}

func (r *sseRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func newTestProgress(t *testing.T) *progress.Store {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return progress.NewStore(client, time.Hour)
}

func TestStreamClosesWhenTerminalLandsBeforeSubscribe(t *testing.T) {
	ps := newTestProgress(t)
	ctx := context.Background()

	// The job finished between the caller's catch-up read and the
	// subscription opening; no pub/sub message will ever arrive.
	_, err := ps.SetProgress(ctx, "job-1", progress.Snapshot{
		Status:        models.StatusDone,
		Stage:         "completed",
		ProcessedRows: 10,
	})
	require.NoError(t, err)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamProgressUpdates(ctx, rec, rec, ps, "job-1", time.Hour)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on terminal snapshot")
	}
	assert.Contains(t, rec.String(), `"status":"done"`)
	assert.Contains(t, rec.String(), `{"event":"close"}`)
}

func TestStreamPollFallbackObservesMissedTerminal(t *testing.T) {
	ps := newTestProgress(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ps.SetProgress(ctx, "job-2", progress.Snapshot{
		Status:        models.StatusImporting,
		Stage:         "batch_1",
		ProcessedRows: 5,
	})
	require.NoError(t, err)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamProgressUpdates(ctx, rec, rec, ps, "job-2", 10*time.Millisecond)
	}()

	// The terminal update is persisted but its broadcast is lost; only the
	// polling fallback can observe it.
	time.Sleep(30 * time.Millisecond)
	_, err = ps.SetProgress(ctx, "job-2", progress.Snapshot{
		Status:        models.StatusFailed,
		Stage:         "failed",
		ErrorMessage:  "db timeout",
		ProcessedRows: 5,
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll fallback did not close the stream")
	}
	assert.Contains(t, rec.String(), `"status":"failed"`)
	assert.Contains(t, rec.String(), `{"event":"close"}`)
}

func TestStreamForwardsLiveTerminalUpdate(t *testing.T) {
	ps := newTestProgress(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ps.SetProgress(ctx, "job-3", progress.Snapshot{
		Status:        models.StatusImporting,
		Stage:         "batch_1",
		ProcessedRows: 5,
	})
	require.NoError(t, err)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamProgressUpdates(ctx, rec, rec, ps, "job-3", time.Hour)
	}()

	// Terminal update arrives over pub/sub only: the persisted snapshot
	// stays non-terminal, so the hour-long poll cannot be what closes the
	// stream. Republish until the subscription is registered.
	snap := progress.Snapshot{
		Status:        models.StatusDone,
		Stage:         "completed",
		ProcessedRows: 10,
	}
	require.Eventually(t, func() bool {
		receivers, err := ps.PublishUpdate(ctx, "job-3", snap)
		return err == nil && receivers > 0
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on published terminal update")
	}
	assert.Contains(t, rec.String(), `"stage":"completed"`)
	assert.Contains(t, rec.String(), `{"event":"close"}`)
}

func TestValidateWebhookURL(t *testing.T) {
	for _, valid := range []string{
		"http://example.com/hook",
		"https://example.com:8443/hook?x=1",
	} {
		assert.NoError(t, validateWebhookURL(valid), valid)
	}
	for _, invalid := range []string{
		"ftp://example.com/hook",
		"file:///etc/passwd",
		"example.com/hook",
		"//example.com/hook",
		"",
	} {
		assert.Error(t, validateWebhookURL(invalid), invalid)
	}
}

func TestValidateEventTypes(t *testing.T) {
	assert.NoError(t, validateEventTypes([]string{models.EventProductCreated, models.EventImportFailed}))
	assert.Error(t, validateEventTypes([]string{"product.exploded"}))
	assert.Error(t, validateEventTypes([]string{models.EventWebhookTest}))
}
