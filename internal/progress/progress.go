// Package progress persists and broadcasts job progress snapshots through
// Redis. The persisted snapshot serves catch-up reads for late-joining
// streams; the pub/sub channel serves live subscribers. The two are
// independent: publishing to zero subscribers is not an error.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/go-redis/redis/v8"
)

const defaultNamespace = "import_progress"

// Snapshot is the latest known progress state for a job.
type Snapshot struct {
	Status        models.JobStatus `json:"status"`
	Stage         string           `json:"stage,omitempty"`
	TotalRows     *int64           `json:"total_rows"`
	ProcessedRows int64            `json:"processed_rows"`
	Progress      float64          `json:"progress"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Terminal reports whether the snapshot's status is absorbing.
func (s *Snapshot) Terminal() bool {
	return s.Status.Terminal()
}

// Store is the Redis-backed progress store. Snapshots live under a
// time-bounded key; an expired snapshot is indistinguishable from an unknown
// job.
type Store struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewStore creates a progress store around an injected Redis client.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client:    client,
		namespace: defaultNamespace,
		ttl:       ttl,
	}
}

func (s *Store) snapshotKey(jobID string) string {
	return fmt.Sprintf("%s:snapshot:%s", s.namespace, jobID)
}

func (s *Store) channel(jobID string) string {
	return fmt.Sprintf("%s:channel:%s", s.namespace, jobID)
}

// SetProgress persists the latest snapshot for the job, stamping updated_at.
func (s *Store) SetProgress(ctx context.Context, jobID string, snap Snapshot) (Snapshot, error) {
	snap.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return snap, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.snapshotKey(jobID), data, s.ttl).Err(); err != nil {
		return snap, fmt.Errorf("failed to set snapshot in redis: %w", err)
	}
	return snap, nil
}

// GetProgress returns the persisted snapshot, or nil if none exists (expired
// keys and unknown jobs look the same).
func (s *Store) GetProgress(ctx context.Context, jobID string) (*Snapshot, error) {
	val, err := s.client.Get(ctx, s.snapshotKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// PublishUpdate broadcasts a snapshot on the job's channel, stamping
// updated_at if unset. Returns the subscriber count; zero is fine, the
// persisted snapshot is the durable fallback.
func (s *Store) PublishUpdate(ctx context.Context, jobID string, snap Snapshot) (int64, error) {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	receivers, err := s.client.Publish(ctx, s.channel(jobID), data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return receivers, nil
}

// Subscribe opens a pub/sub subscription for the job's live updates. The
// caller owns the returned subscription and must Close it.
func (s *Store) Subscribe(ctx context.Context, jobID string) *redis.PubSub {
	return s.client.Subscribe(ctx, s.channel(jobID))
}

// Tracker wraps a Store with per-job throttling so very large jobs do not
// flood the channel: at most one update per interval unless forced. Stage
// changes and terminal states force; per-batch ticks do not.
type Tracker struct {
	store      *Store
	jobID      string
	totalRows  *int64
	interval   time.Duration
	lastUpdate time.Time
}

// NewTracker creates a tracker for one job's lifetime.
func NewTracker(store *Store, jobID string, totalRows *int64, interval time.Duration) *Tracker {
	return &Tracker{
		store:     store,
		jobID:     jobID,
		totalRows: totalRows,
		interval:  interval,
	}
}

// Update persists and publishes a snapshot if the throttle interval elapsed
// or force is set. Failures are returned but callers treat them as
// non-fatal: losing a progress tick must never fail the job.
func (t *Tracker) Update(ctx context.Context, status models.JobStatus, stage string, processedRows int64, errorMessage string, force bool) error {
	now := time.Now()
	if !force && now.Sub(t.lastUpdate) < t.interval {
		return nil
	}

	var pct float64
	if t.totalRows != nil && *t.totalRows > 0 {
		if processedRows > *t.totalRows {
			processedRows = *t.totalRows
		}
		pct = float64(processedRows) / float64(*t.totalRows) * 100
	}

	snap := Snapshot{
		Status:        status,
		Stage:         stage,
		TotalRows:     t.totalRows,
		ProcessedRows: processedRows,
		Progress:      pct,
		ErrorMessage:  errorMessage,
	}

	snap, err := t.store.SetProgress(ctx, t.jobID, snap)
	if err != nil {
		return err
	}
	if _, err := t.store.PublishUpdate(ctx, t.jobID, snap); err != nil {
		return err
	}

	t.lastUpdate = now
	util.ProgressUpdatesTotal.Inc()
	return nil
}
