package fulfillment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"enrollment-bridge/internal/db"
	"enrollment-bridge/internal/duitku"
	"enrollment-bridge/internal/event"
	"enrollment-bridge/internal/ledger"
	"enrollment-bridge/internal/logcontext"
	"enrollment-bridge/internal/model"
	"enrollment-bridge/internal/thinkific"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const (
	QueueManualEnrollment = "manual_enrollment"
	QueueEnrollmentRetry  = "enrollment_retry"
)

const (
	OutcomeDuplicate = "duplicate"
	OutcomeRecorded  = "recorded"
	OutcomeEnrolled  = "enrolled"
	OutcomeQueued    = "queued"
)

var (
	ErrInvalidSignature  = errors.New("invalid callback signature")
	ErrUnknownResultCode = errors.New("unrecognized result code")
)

var (
	invalidSignatureCounter = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="invalid_signature"}`)
	unknownCodeCounter      = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="unknown_code"}`)
	duplicateCounter        = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="duplicate"}`)
	recordedCounter         = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="recorded"}`)
	enrolledCounter         = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="enrolled"}`)
	queuedManualCounter     = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="queued_manual"}`)
	queuedRetryCounter      = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="queued_retry"}`)
	storageErrorCounter     = metrics.GetOrCreateCounter(`webhook_processed_total{source="duitku",result="storage_error"}`)

	processDurationHistogram = metrics.GetOrCreateHistogram(`webhook_process_duration_milliseconds{source="duitku"}`)
)

type Orders interface {
	GetPaymentByOrderID(ctx context.Context, orderID string) (*db.PaymentEntity, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, upd db.PaymentStatusUpdate) error
	SaveEnrollment(ctx context.Context, input db.EnrollmentInput) (*db.EnrollmentEntity, error)
}

type ContextCache interface {
	GetContext(ctx context.Context, orderID string) (*model.CustomerContext, bool, error)
}

type Deduper interface {
	CheckAndReserve(ctx context.Context, key string, record any) ledger.Result
	Record(ctx context.Context, key string, record any)
	Release(ctx context.Context, key string)
}

type Enroller interface {
	Enroll(ctx context.Context, c model.CustomerContext) (*thinkific.Enrollment, error)
}

type Queue interface {
	Enqueue(ctx context.Context, name string, item any) error
}

type Publisher interface {
	PaymentProcessed(ctx context.Context, evt event.PaymentProcessed)
}

// Orchestrator drives a verified payment notification through dedupe, order
// mutation and enrollment. Per order the states are
// pending -> success -> {enrolled | queued_for_manual_review}, or
// pending -> {failed|cancelled|expired}; no transition goes backwards.
type Orchestrator struct {
	merchantCode string
	apiKey       string
	orders       Orders
	cache        ContextCache
	deduper      Deduper
	enroller     Enroller
	queue        Queue
	publisher    Publisher
	retryDelay   time.Duration
	logger       *slog.Logger
}

func NewOrchestrator(merchantCode, apiKey string, orders Orders, cache ContextCache, deduper Deduper,
	enroller Enroller, queue Queue, publisher Publisher, retryDelay time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		merchantCode: merchantCode,
		apiKey:       apiKey,
		orders:       orders,
		cache:        cache,
		deduper:      deduper,
		enroller:     enroller,
		queue:        queue,
		publisher:    publisher,
		retryDelay:   retryDelay,
		logger:       logger,
	}
}

// Outcome describes how a notification was handled. A non-nil Outcome always
// maps to a 200 acknowledgment; errors map to 4xx/5xx in the handler.
type Outcome struct {
	Status        string
	OrderID       string
	PaymentStatus duitku.PaymentStatus
	Prior         json.RawMessage
	Enrollment    *db.EnrollmentEntity
	Reason        string
}

// ProcessDuitkuCallback runs the full pipeline for one notification:
// verify, map status, dedupe, record, fulfill or queue.
func (o *Orchestrator) ProcessDuitkuCallback(ctx context.Context, cb duitku.Callback) (*Outcome, error) {
	startTime := time.Now()
	defer func() {
		processDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", cb.MerchantOrderID))

	if !duitku.VerifyCallback(o.merchantCode, o.apiKey, cb) {
		o.logger.WarnContext(ctx, "Invalid payment callback signature")
		invalidSignatureCounter.Inc()
		return nil, ErrInvalidSignature
	}

	status := duitku.MapResultCode(cb.ResultCode)
	if status == duitku.StatusUnknown {
		o.logger.WarnContext(ctx, "Unrecognized result code", "resultCode", cb.ResultCode)
		unknownCodeCounter.Inc()
		return nil, ErrUnknownResultCode
	}

	key := ledger.DuitkuPaymentKey(cb.MerchantOrderID, cb.Reference)
	res := o.deduper.CheckAndReserve(ctx, key, model.LedgerRecord{
		OrderID:     cb.MerchantOrderID,
		Status:      string(status),
		Amount:      cb.Amount,
		Reference:   cb.Reference,
		ProcessedAt: time.Now(),
	})
	if res.Duplicate {
		o.logger.InfoContext(ctx, "Duplicate payment notification", "reference", cb.Reference)
		duplicateCounter.Inc()
		return &Outcome{Status: OutcomeDuplicate, OrderID: cb.MerchantOrderID, PaymentStatus: status, Prior: res.Prior}, nil
	}

	payment, err := o.orders.GetPaymentByOrderID(ctx, cb.MerchantOrderID)
	if err != nil {
		// a 500 makes the provider retry; the reservation must not outlive
		// this attempt or the retry reads as a duplicate
		o.deduper.Release(ctx, key)
		storageErrorCounter.Inc()
		return nil, err
	}

	if status != duitku.StatusSuccess {
		return o.recordNonSuccess(ctx, cb, status, payment, key)
	}
	return o.fulfill(ctx, cb, payment, key)
}

// recordNonSuccess applies the terminal (or still-pending) status. Success is
// sticky: a later conflicting notification for an already-successful order is
// logged but never downgrades the row.
func (o *Orchestrator) recordNonSuccess(ctx context.Context, cb duitku.Callback, status duitku.PaymentStatus,
	payment *db.PaymentEntity, key string) (*Outcome, error) {

	if payment != nil && payment.Status == string(duitku.StatusSuccess) {
		o.logger.WarnContext(ctx, "Conflicting notification for successful order, keeping success",
			"incomingStatus", string(status))
	} else {
		upd := db.PaymentStatusUpdate{Status: string(status)}
		if cb.Reference != "" {
			upd.DuitkuReference = &cb.Reference
		}
		if cb.PaymentMethod != "" {
			upd.PaymentMethod = &cb.PaymentMethod
		}
		if err := o.orders.UpdatePaymentStatus(ctx, cb.MerchantOrderID, upd); err != nil {
			o.deduper.Release(ctx, key)
			storageErrorCounter.Inc()
			return nil, err
		}
	}

	o.recordOutcome(ctx, cb, status, key, OutcomeRecorded)
	o.logger.InfoContext(ctx, "Recorded non-success payment", "status", string(status))
	recordedCounter.Inc()
	return &Outcome{Status: OutcomeRecorded, OrderID: cb.MerchantOrderID, PaymentStatus: status}, nil
}

func (o *Orchestrator) fulfill(ctx context.Context, cb duitku.Callback, payment *db.PaymentEntity, key string) (*Outcome, error) {
	now := time.Now()
	upd := db.PaymentStatusUpdate{Status: string(duitku.StatusSuccess), PaidAt: &now}
	if cb.Reference != "" {
		upd.DuitkuReference = &cb.Reference
	}
	if cb.PaymentMethod != "" {
		upd.PaymentMethod = &cb.PaymentMethod
	}
	if err := o.orders.UpdatePaymentStatus(ctx, cb.MerchantOrderID, upd); err != nil {
		o.deduper.Release(ctx, key)
		storageErrorCounter.Inc()
		return nil, err
	}

	custCtx := o.resolveContext(ctx, cb, payment)
	if custCtx == nil || !custCtx.Usable() {
		return o.queueManual(ctx, cb, key, "context unavailable"), nil
	}

	enrollment, err := o.enroller.Enroll(ctx, *custCtx)
	if err != nil {
		return o.queueRetry(ctx, cb, *custCtx, key, err), nil
	}

	record, err := o.orders.SaveEnrollment(ctx, enrollmentInput(*custCtx, enrollment))
	if err != nil {
		// the platform enrollment succeeded, only our record is missing
		o.logger.ErrorContext(ctx, "Error persisting enrollment record", "error", err)
		return o.queueManual(ctx, cb, key, "enrollment record not persisted: "+err.Error()), nil
	}

	o.recordOutcome(ctx, cb, duitku.StatusSuccess, key, OutcomeEnrolled)
	o.logger.InfoContext(ctx, "Enrollment completed",
		"customerEmail", custCtx.CustomerEmail, "productRef", custCtx.ProductRef,
		"reconstructed", custCtx.Reconstructed)
	enrolledCounter.Inc()
	return &Outcome{Status: OutcomeEnrolled, OrderID: cb.MerchantOrderID, PaymentStatus: duitku.StatusSuccess, Enrollment: record}, nil
}

// resolveContext prefers the cached context and falls back to the durable
// payment row. Some richness (free-text product description) may be lost in
// the fallback, which is acceptable.
func (o *Orchestrator) resolveContext(ctx context.Context, cb duitku.Callback, payment *db.PaymentEntity) *model.CustomerContext {
	custCtx, found, err := o.cache.GetContext(ctx, cb.MerchantOrderID)
	if err != nil {
		o.logger.ErrorContext(ctx, "Error reading context cache", "error", err)
	}
	if found {
		return custCtx
	}

	if payment == nil {
		return nil
	}
	o.logger.WarnContext(ctx, "Customer context not cached, reconstructing from payment record")
	return &model.CustomerContext{
		OrderID:            payment.OrderID,
		CustomerName:       deref(payment.CustomerName),
		CustomerEmail:      deref(payment.CustomerEmail),
		CustomerPhone:      deref(payment.CustomerPhone),
		ProductRef:         deref(payment.ProductRef),
		ProductName:        deref(payment.ProductName),
		ProductDescription: deref(payment.ProductDescription),
		Amount:             payment.Amount,
		Reconstructed:      true,
	}
}

func (o *Orchestrator) queueManual(ctx context.Context, cb duitku.Callback, key, reason string) *Outcome {
	snapshot, _ := json.Marshal(cb)
	item := model.ManualReviewItem{
		OrderID:    cb.MerchantOrderID,
		Snapshot:   snapshot,
		Reason:     reason,
		CreatedAt:  time.Now(),
		RetryCount: 0,
	}
	if err := o.queue.Enqueue(ctx, QueueManualEnrollment, item); err != nil {
		// losing the item silently would strand the payment; the error log is
		// the operator's signal
		o.logger.ErrorContext(ctx, "Error queueing manual review item", "reason", reason, "error", err)
	} else {
		o.logger.WarnContext(ctx, "Queued for manual review", "reason", reason)
	}

	o.recordOutcome(ctx, cb, duitku.StatusSuccess, key, OutcomeQueued)
	queuedManualCounter.Inc()
	return &Outcome{Status: OutcomeQueued, OrderID: cb.MerchantOrderID, PaymentStatus: duitku.StatusSuccess, Reason: reason}
}

func (o *Orchestrator) queueRetry(ctx context.Context, cb duitku.Callback, custCtx model.CustomerContext, key string, cause error) *Outcome {
	reason := "enrollment failed: " + cause.Error()
	snapshot, _ := json.Marshal(cb)
	item := model.RetryItem{
		OrderID:     cb.MerchantOrderID,
		Context:     custCtx,
		Snapshot:    snapshot,
		Reason:      reason,
		CreatedAt:   time.Now(),
		RetryCount:  0,
		NextRetryAt: time.Now().Add(o.retryDelay),
	}
	if err := o.queue.Enqueue(ctx, QueueEnrollmentRetry, item); err != nil {
		o.logger.ErrorContext(ctx, "Error queueing enrollment retry", "reason", reason, "error", err)
	} else {
		o.logger.WarnContext(ctx, "Queued enrollment for retry", "reason", reason)
	}

	o.recordOutcome(ctx, cb, duitku.StatusSuccess, key, OutcomeQueued)
	queuedRetryCounter.Inc()
	return &Outcome{Status: OutcomeQueued, OrderID: cb.MerchantOrderID, PaymentStatus: duitku.StatusSuccess, Reason: reason}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, cb duitku.Callback, status duitku.PaymentStatus, key, outcome string) {
	o.deduper.Record(ctx, key, model.LedgerRecord{
		OrderID:     cb.MerchantOrderID,
		Status:      string(status),
		Amount:      cb.Amount,
		Reference:   cb.Reference,
		Outcome:     outcome,
		ProcessedAt: time.Now(),
	})
	if o.publisher != nil {
		o.publisher.PaymentProcessed(ctx, event.PaymentProcessed{
			OrderID:     cb.MerchantOrderID,
			Status:      string(status),
			Outcome:     outcome,
			Reference:   cb.Reference,
			Amount:      cb.Amount,
			ProcessedAt: time.Now(),
		})
	}
}

func enrollmentInput(c model.CustomerContext, enrollment *thinkific.Enrollment) db.EnrollmentInput {
	input := db.EnrollmentInput{
		UserEmail:     c.CustomerEmail,
		UserName:      c.CustomerName,
		CourseRef:     c.ProductRef,
		CourseName:    c.ProductName,
		SourceOrderID: c.OrderID,
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
