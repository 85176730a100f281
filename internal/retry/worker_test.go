package retry

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"enrollment-bridge/internal/db"
	"enrollment-bridge/internal/fulfillment"
	"enrollment-bridge/internal/model"
	"enrollment-bridge/internal/thinkific"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeQueue struct {
	lists map[string][]json.RawMessage
	err   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{lists: make(map[string][]json.RawMessage)}
}

func (f *fakeQueue) Enqueue(_ context.Context, name string, item any) error {
	if f.err != nil {
		return f.err
	}
	raw, _ := json.Marshal(item)
	f.lists[name] = append(f.lists[name], raw)
	return nil
}

func (f *fakeQueue) Len(_ context.Context, name string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.lists[name])), nil
}

func (f *fakeQueue) Dequeue(_ context.Context, name string, dest any) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	list := f.lists[name]
	if len(list) == 0 {
		return false, nil
	}
	raw := list[0]
	f.lists[name] = list[1:]
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeQueue) retryItems(t *testing.T) []model.RetryItem {
	t.Helper()
	items := make([]model.RetryItem, 0, len(f.lists[fulfillment.QueueEnrollmentRetry]))
	for _, raw := range f.lists[fulfillment.QueueEnrollmentRetry] {
		var item model.RetryItem
		assert.NoError(t, json.Unmarshal(raw, &item))
		items = append(items, item)
	}
	return items
}

func (f *fakeQueue) manualItems(t *testing.T) []model.ManualReviewItem {
	t.Helper()
	items := make([]model.ManualReviewItem, 0, len(f.lists[fulfillment.QueueManualEnrollment]))
	for _, raw := range f.lists[fulfillment.QueueManualEnrollment] {
		var item model.ManualReviewItem
		assert.NoError(t, json.Unmarshal(raw, &item))
		items = append(items, item)
	}
	return items
}

type fakeEnroller struct {
	err   error
	calls []model.CustomerContext
}

func (f *fakeEnroller) Enroll(_ context.Context, c model.CustomerContext) (*thinkific.Enrollment, error) {
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	return &thinkific.Enrollment{ID: 77, UserID: 9, CourseID: 42}, nil
}

type fakeOrders struct {
	saveErr error
	saved   []db.EnrollmentInput
}

func (f *fakeOrders) SaveEnrollment(_ context.Context, input db.EnrollmentInput) (*db.EnrollmentEntity, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, input)
	return &db.EnrollmentEntity{ID: uuid.New(), SourceOrderID: input.SourceOrderID}, nil
}

func dueItem(orderID string) model.RetryItem {
	return model.RetryItem{
		OrderID: orderID,
		Context: model.CustomerContext{
			OrderID:       orderID,
			CustomerName:  "Jane Doe",
			CustomerEmail: "jane@example.com",
			ProductRef:    "42",
			ProductName:   "Web Development Fundamentals",
		},
		Reason:      "enrollment failed: platform timeout",
		CreatedAt:   time.Now().Add(-time.Minute),
		NextRetryAt: time.Now().Add(-time.Second),
	}
}

func TestWorkerProcess(t *testing.T) {
	ctx := context.Background()
	cfg := Config{PollingIntervalMs: 10, MaxAttempts: 3, BackoffMs: 1000}

	t.Run("DueItemEnrollsAndPersists", func(t *testing.T) {
		queue := newFakeQueue()
		enroller := &fakeEnroller{}
		orders := &fakeOrders{}
		w := NewWorker(queue, enroller, orders, cfg, slog.Default())
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, dueItem("ORD1")))

		w.process(ctx)

		assert.Len(t, enroller.calls, 1)
		assert.Len(t, orders.saved, 1)
		assert.Equal(t, "ORD1", orders.saved[0].SourceOrderID)
		assert.Empty(t, queue.retryItems(t))
		assert.Empty(t, queue.manualItems(t))
	})

	t.Run("NotDueItemPushedBack", func(t *testing.T) {
		queue := newFakeQueue()
		enroller := &fakeEnroller{}
		w := NewWorker(queue, enroller, &fakeOrders{}, cfg, slog.Default())
		item := dueItem("ORD1")
		item.NextRetryAt = time.Now().Add(time.Hour)
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, item))

		w.process(ctx)

		assert.Empty(t, enroller.calls)
		requeued := queue.retryItems(t)
		assert.Len(t, requeued, 1)
		assert.Equal(t, 0, requeued[0].RetryCount)
	})

	t.Run("FailureRescheduledWithBackoff", func(t *testing.T) {
		queue := newFakeQueue()
		enroller := &fakeEnroller{err: errors.New("platform timeout")}
		w := NewWorker(queue, enroller, &fakeOrders{}, cfg, slog.Default())
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, dueItem("ORD1")))

		w.process(ctx)

		requeued := queue.retryItems(t)
		assert.Len(t, requeued, 1)
		assert.Equal(t, 1, requeued[0].RetryCount)
		assert.True(t, requeued[0].NextRetryAt.After(time.Now()))
		assert.Empty(t, queue.manualItems(t))
	})

	t.Run("MaxAttemptsMovesToManualReview", func(t *testing.T) {
		queue := newFakeQueue()
		enroller := &fakeEnroller{err: errors.New("platform timeout")}
		w := NewWorker(queue, enroller, &fakeOrders{}, cfg, slog.Default())
		item := dueItem("ORD1")
		item.RetryCount = 2
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, item))

		w.process(ctx)

		assert.Empty(t, queue.retryItems(t))
		manual := queue.manualItems(t)
		assert.Len(t, manual, 1)
		assert.Equal(t, "ORD1", manual[0].OrderID)
		assert.Equal(t, 3, manual[0].RetryCount)
		assert.Contains(t, manual[0].Reason, "platform timeout")
	})

	t.Run("PersistFailureRescheduled", func(t *testing.T) {
		queue := newFakeQueue()
		orders := &fakeOrders{saveErr: errors.New("pool closed")}
		w := NewWorker(queue, &fakeEnroller{}, orders, cfg, slog.Default())
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, dueItem("ORD1")))

		w.process(ctx)

		requeued := queue.retryItems(t)
		assert.Len(t, requeued, 1)
		assert.Contains(t, requeued[0].Reason, "enrollment record not persisted")
	})

	t.Run("DrainsMultipleDueItems", func(t *testing.T) {
		queue := newFakeQueue()
		enroller := &fakeEnroller{}
		orders := &fakeOrders{}
		w := NewWorker(queue, enroller, orders, cfg, slog.Default())
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, dueItem("ORD1")))
		assert.NoError(t, queue.Enqueue(ctx, fulfillment.QueueEnrollmentRetry, dueItem("ORD2")))

		w.process(ctx)

		assert.Len(t, orders.saved, 2)
		assert.Empty(t, queue.retryItems(t))
	})
}
