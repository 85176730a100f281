package retry

import (
	"context"
	"log/slog"
	"time"

	"enrollment-bridge/internal/db"
	"enrollment-bridge/internal/fulfillment"
	"enrollment-bridge/internal/logcontext"
	"enrollment-bridge/internal/model"
	"enrollment-bridge/internal/thinkific"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

const (
	defaultPollingIntervalMs = 5_000
	defaultMaxAttempts       = 3
	defaultBackoffMs         = 60_000
	drainBatchSize           = 50
)

var (
	retrySucceededCounter   = metrics.GetOrCreateCounter(`enrollment_retry_total{result="succeeded"}`)
	retryRescheduledCounter = metrics.GetOrCreateCounter(`enrollment_retry_total{result="rescheduled"}`)
	retryMaxAttemptsCounter = metrics.GetOrCreateCounter(`enrollment_retry_total{result="max_attempts_reached"}`)
	retryQueueErrorCounter  = metrics.GetOrCreateCounter(`enrollment_retry_total{result="queue_error"}`)

	retryRunDurationHistogram = metrics.GetOrCreateHistogram(`enrollment_retry_run_duration_milliseconds`)
)

type Queue interface {
	Enqueue(ctx context.Context, name string, item any) error
	Dequeue(ctx context.Context, name string, dest any) (bool, error)
	Len(ctx context.Context, name string) (int64, error)
}

type Enroller interface {
	Enroll(ctx context.Context, c model.CustomerContext) (*thinkific.Enrollment, error)
}

type Orders interface {
	SaveEnrollment(ctx context.Context, input db.EnrollmentInput) (*db.EnrollmentEntity, error)
}

// Worker drains the enrollment retry queue on a fixed interval. Delivery is
// at-least-once; the enrollment upsert keyed on the source order keeps
// redelivered items harmless.
type Worker struct {
	queue           Queue
	enroller        Enroller
	orders          Orders
	pollingInterval time.Duration
	maxAttempts     int
	backoff         time.Duration
	logger          *slog.Logger
}

type Config struct {
	PollingIntervalMs int
	MaxAttempts       int
	BackoffMs         int
}

func NewWorker(queue Queue, enroller Enroller, orders Orders, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollingIntervalMs == 0 {
		cfg.PollingIntervalMs = defaultPollingIntervalMs
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffMs == 0 {
		cfg.BackoffMs = defaultBackoffMs
	}
	return &Worker{
		queue:           queue,
		enroller:        enroller,
		orders:          orders,
		pollingInterval: time.Duration(cfg.PollingIntervalMs) * time.Millisecond,
		maxAttempts:     cfg.MaxAttempts,
		backoff:         time.Duration(cfg.BackoffMs) * time.Millisecond,
		logger:          logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.process(ctx)
			case <-ctx.Done():
				w.logger.InfoContext(ctx, "Context done, stopping retry worker")
				return
			}
		}
	}()
}

func (w *Worker) process(ctx context.Context) {
	startTime := time.Now()
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	// bounded batch per tick so one run can't monopolize the queue
	for i := 0; i < drainBatchSize; i++ {
		var item model.RetryItem
		found, err := w.queue.Dequeue(ctx, fulfillment.QueueEnrollmentRetry, &item)
		if err != nil {
			w.logger.ErrorContext(ctx, "Error dequeueing retry item", "error", err)
			retryQueueErrorCounter.Inc()
			break
		}
		if !found {
			break
		}

		if time.Now().Before(item.NextRetryAt) {
			// not due yet, push back and stop the run; items behind it share
			// the same schedule ordering
			w.requeue(ctx, fulfillment.QueueEnrollmentRetry, item)
			break
		}

		w.attempt(ctx, item)
	}

	if depth, err := w.queue.Len(ctx, fulfillment.QueueEnrollmentRetry); err == nil && depth > 0 {
		w.logger.InfoContext(ctx, "Retry queue not drained", "depth", depth)
	}

	retryRunDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
}

func (w *Worker) attempt(ctx context.Context, item model.RetryItem) {
	itemCtx := logcontext.AppendCtx(ctx, slog.String("orderId", item.OrderID))

	enrollment, err := w.enroller.Enroll(itemCtx, item.Context)
	if err == nil {
		if _, err := w.orders.SaveEnrollment(itemCtx, enrollmentInput(item, enrollment)); err != nil {
			w.logger.ErrorContext(itemCtx, "Error persisting retried enrollment", "error", err)
			w.reschedule(itemCtx, item, "enrollment record not persisted: "+err.Error())
			return
		}
		w.logger.InfoContext(itemCtx, "Retried enrollment succeeded", "attempts", item.RetryCount+1)
		retrySucceededCounter.Inc()
		return
	}

	w.reschedule(itemCtx, item, "enrollment failed: "+err.Error())
}

func (w *Worker) reschedule(ctx context.Context, item model.RetryItem, reason string) {
	item.RetryCount++
	item.Reason = reason

	if item.RetryCount >= w.maxAttempts {
		w.logger.WarnContext(ctx, "Max retry attempts reached, moving to manual review", "attempts", item.RetryCount)
		manual := model.ManualReviewItem{
			OrderID:    item.OrderID,
			Snapshot:   item.Snapshot,
			Reason:     reason,
			CreatedAt:  time.Now(),
			RetryCount: item.RetryCount,
		}
		if err := w.queue.Enqueue(ctx, fulfillment.QueueManualEnrollment, manual); err != nil {
			w.logger.ErrorContext(ctx, "Error queueing manual review item", "error", err)
			retryQueueErrorCounter.Inc()
			return
		}
		retryMaxAttemptsCounter.Inc()
		return
	}

	item.NextRetryAt = time.Now().Add(time.Duration(item.RetryCount) * w.backoff)
	w.requeue(ctx, fulfillment.QueueEnrollmentRetry, item)
	retryRescheduledCounter.Inc()
}

func (w *Worker) requeue(ctx context.Context, name string, item model.RetryItem) {
	if err := w.queue.Enqueue(ctx, name, item); err != nil {
		w.logger.ErrorContext(ctx, "Error requeueing retry item", "error", err)
		retryQueueErrorCounter.Inc()
	}
}

func enrollmentInput(item model.RetryItem, enrollment *thinkific.Enrollment) db.EnrollmentInput {
	input := db.EnrollmentInput{
		UserEmail:     item.Context.CustomerEmail,
		UserName:      item.Context.CustomerName,
		CourseRef:     item.Context.ProductRef,
		CourseName:    item.Context.ProductName,
		SourceOrderID: item.OrderID,
		ActivatedAt:   enrollment.ActivatedAt,
	}
	if enrollment.UserID != 0 {
		userID := enrollment.UserID
		input.ThinkificUserID = &userID
	}
	if enrollment.ID != 0 {
		enrollmentID := enrollment.ID
		input.ThinkificEnrollmentID = &enrollmentID
	}
	return input
}
