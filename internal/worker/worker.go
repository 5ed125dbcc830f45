package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/broker"
	"catalog-service/internal/service"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TaskSource is a queue consumer with manual acknowledgment.
type TaskSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Topic() string
}

// TaskPublisher re-publishes retried tasks and parks exhausted ones.
type TaskPublisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// JobRunner executes one task. Run returning nil means the job is terminal
// and the message may be acknowledged; an error wrapping
// service.ErrValidation is a permanent failure; any other error is transient
// and retried per policy. Fail records the terminal failure once no retry
// remains.
type JobRunner interface {
	Run(ctx context.Context, task broker.TaskEnvelope) error
	Fail(ctx context.Context, task broker.TaskEnvelope, errorMessage string)
}

// Worker consumes one queue topic sequentially. Concurrency comes from
// running several workers in the same consumer group, so each in-flight task
// has a dedicated worker and an unacknowledged offset behind it.
type Worker struct {
	consumer  TaskSource
	producer  TaskPublisher
	topic     string
	dlqTopic  string
	runner    JobRunner
	retry     broker.RetryPolicy
	softLimit time.Duration
	hardLimit time.Duration
	logger    *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a worker bound to one queue topic.
func New(consumer TaskSource, producer TaskPublisher, dlqTopic string, runner JobRunner, retry broker.RetryPolicy, softLimit, hardLimit time.Duration) *Worker {
	return &Worker{
		consumer:  consumer,
		producer:  producer,
		topic:     consumer.Topic(),
		dlqTopic:  dlqTopic,
		runner:    runner,
		retry:     retry,
		softLimit: softLimit,
		hardLimit: hardLimit,
		logger:    util.GetLogger(),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Start consumes until the context is canceled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started", zap.String("topic", w.topic))
	for {
		msg, err := w.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker stopped", zap.String("topic", w.topic))
				return
			}
			w.logger.Error("Failed to fetch message",
				zap.String("topic", w.topic), zap.Error(err))
			w.sleep(ctx, time.Second)
			continue
		}

		if err := w.handleMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Leave the message uncommitted: it will be
				// redelivered to another group member.
				w.logger.Info("Worker stopped mid-task", zap.String("topic", w.topic))
				return
			}
			w.logger.Error("Failed to handle message",
				zap.String("topic", w.topic), zap.Error(err))
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var task broker.TaskEnvelope
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		// A message that cannot even be decoded has no job to fail;
		// park it for inspection and move on.
		w.logger.Error("Unparseable task message, routing to DLQ",
			zap.String("topic", w.topic), zap.Error(err))
		w.deadLetter(ctx, broker.TaskEnvelope{}, fmt.Sprintf("unparseable message: %v", err))
		return w.consumer.CommitMessages(ctx, msg)
	}

	if task.Expired(time.Now()) {
		w.logger.Warn("Dropping expired task",
			zap.String("job_id", task.JobID),
			zap.String("kind", task.Kind),
			zap.Time("expires_at", task.ExpiresAt))
		return w.consumer.CommitMessages(ctx, msg)
	}

	util.JobsStartedTotal.WithLabelValues(task.Kind).Inc()

	err := w.run(ctx, task)
	if err == nil {
		util.JobsCompletedTotal.WithLabelValues(task.Kind).Inc()
		return w.consumer.CommitMessages(ctx, msg)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if errors.Is(err, service.ErrValidation) {
		// Permanent: fail immediately, no retry, no DLQ.
		w.logger.Warn("Task failed validation",
			zap.String("job_id", task.JobID),
			zap.Int("attempt", task.Attempt),
			zap.Error(err))
		w.runner.Fail(ctx, task, err.Error())
		util.JobsFailedTotal.WithLabelValues(task.Kind, "validation").Inc()
		return w.consumer.CommitMessages(ctx, msg)
	}

	if w.retry.Exhausted(task.Attempt) {
		w.logger.Error("Task exhausted retries, routing to DLQ",
			zap.String("job_id", task.JobID),
			zap.Int("attempt", task.Attempt),
			zap.Error(err))
		w.deadLetter(ctx, task, err.Error())
		w.runner.Fail(ctx, task, err.Error())
		util.JobsFailedTotal.WithLabelValues(task.Kind, "exhausted").Inc()
		return w.consumer.CommitMessages(ctx, msg)
	}

	delay := w.retry.Delay(task.Attempt)
	w.logger.Warn("Task failed, scheduling retry",
		zap.String("job_id", task.JobID),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
	w.sleep(ctx, delay)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	retried := task
	retried.Attempt++
	if err := w.producer.Publish(ctx, w.topic, retried.JobID, retried); err != nil {
		// Without the retry message the job would be lost; leave the
		// original uncommitted so it is redelivered instead.
		return fmt.Errorf("failed to publish retry for job %s: %w", task.JobID, err)
	}
	util.TaskRetriesTotal.WithLabelValues(task.Kind).Inc()
	return w.consumer.CommitMessages(ctx, msg)
}

// run executes the task under the soft time limit, with the hard limit as an
// outer bound. A task that overruns the soft limit is treated as a transient
// failure and retried; the hard limit exists so a wedged task cannot hold
// the worker forever.
func (w *Worker) run(ctx context.Context, task broker.TaskEnvelope) error {
	hardCtx := ctx
	if w.hardLimit > 0 {
		var cancel context.CancelFunc
		hardCtx, cancel = context.WithTimeout(ctx, w.hardLimit)
		defer cancel()
	}
	softCtx := hardCtx
	if w.softLimit > 0 {
		var cancel context.CancelFunc
		softCtx, cancel = context.WithTimeout(hardCtx, w.softLimit)
		defer cancel()
	}

	err := w.runner.Run(softCtx, task)
	if err != nil && softCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return fmt.Errorf("task exceeded time limit after attempt %d: %w", task.Attempt, err)
	}
	return err
}

func (w *Worker) deadLetter(ctx context.Context, task broker.TaskEnvelope, errMsg string) {
	parked := broker.DeadLetter{
		Task:     task,
		Error:    errMsg,
		ParkedAt: time.Now().UTC(),
	}
	key := task.JobID
	if key == "" {
		key = "unparseable"
	}
	if err := w.producer.Publish(ctx, w.dlqTopic, key, parked); err != nil {
		w.logger.Error("Failed to publish dead letter",
			zap.String("job_id", task.JobID), zap.Error(err))
		return
	}
	util.TasksDeadLetteredTotal.WithLabelValues(task.Kind).Inc()
}
