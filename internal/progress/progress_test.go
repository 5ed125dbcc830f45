package progress

import (
	"context"
	"testing"
	"time"

	"catalog-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, time.Hour), s
}

func TestSetAndGetProgress(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	total := int64(500)
	snap, err := store.SetProgress(ctx, "job-1", Snapshot{
		Status:        models.StatusImporting,
		Stage:         "batch_2",
		TotalRows:     &total,
		ProcessedRows: 200,
		Progress:      40,
	})
	require.NoError(t, err)
	assert.False(t, snap.UpdatedAt.IsZero())

	got, err := store.GetProgress(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusImporting, got.Status)
	assert.Equal(t, "batch_2", got.Stage)
	assert.Equal(t, int64(200), got.ProcessedRows)
	require.NotNil(t, got.TotalRows)
	assert.Equal(t, int64(500), *got.TotalRows)
}

func TestGetUnknownJob(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetProgress(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExpiredSnapshotLooksUnknown(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.SetProgress(ctx, "job-2", Snapshot{Status: models.StatusDone})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	got, err := store.GetProgress(ctx, "job-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	store, _ := newTestStore(t)

	// Zero subscribers is not an error; the persisted snapshot is the
	// durable fallback.
	receivers, err := store.PublishUpdate(context.Background(), "job-3", Snapshot{
		Status: models.StatusParsing,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), receivers)
}

func TestSubscribeReceivesPublishedUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sub := store.Subscribe(ctx, "job-4")
	defer sub.Close()

	// Wait for the subscription to be established before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	receivers, err := store.PublishUpdate(ctx, "job-4", Snapshot{
		Status:        models.StatusDone,
		ProcessedRows: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), receivers)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"status":"done"`)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
	}
}

func TestTrackerThrottles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	total := int64(100)
	tracker := NewTracker(store, "job-5", &total, time.Hour)

	require.NoError(t, tracker.Update(ctx, models.StatusImporting, "batch_1", 10, "", true))
	// Within the interval and not forced: dropped.
	require.NoError(t, tracker.Update(ctx, models.StatusImporting, "batch_2", 20, "", false))

	got, err := store.GetProgress(ctx, "job-5")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.ProcessedRows)

	// Forced updates always go through.
	require.NoError(t, tracker.Update(ctx, models.StatusDone, "completed", 100, "", true))
	got, err = store.GetProgress(ctx, "job-5")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, float64(100), got.Progress)
}

func TestTrackerCapsProcessedAtTotal(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	total := int64(50)
	tracker := NewTracker(store, "job-6", &total, time.Second)

	require.NoError(t, tracker.Update(ctx, models.StatusImporting, "batch_9", 80, "", true))

	got, err := store.GetProgress(ctx, "job-6")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.ProcessedRows)
	assert.Equal(t, float64(100), got.Progress)
}
