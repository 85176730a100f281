package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	duitkuKeyPrefix    = "duitku_payment_"
	thinkificKeyPrefix = "thinkific_enrollment_"
	noReferenceMarker  = "no_ref"
)

// DuitkuPaymentKey builds the idempotency key for a payment notification.
// The provider may redeliver with the same reference; an empty reference maps
// to a fixed sentinel so redeliveries without one still collapse.
func DuitkuPaymentKey(orderID, reference string) string {
	if reference == "" {
		reference = noReferenceMarker
	}
	return duitkuKeyPrefix + orderID + "_" + reference
}

func ThinkificEnrollmentKey(enrollmentID int64) string {
	return fmt.Sprintf("%s%d", thinkificKeyPrefix, enrollmentID)
}

type store interface {
	SetNXJSON(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error)
	Delete(ctx context.Context, key string) error
}

// Result of a reservation attempt. Prior holds the previously recorded
// outcome when Duplicate is true.
type Result struct {
	Duplicate bool
	Prior     json.RawMessage
}

// Ledger collapses duplicate webhook deliveries. Reservation is a single
// SET NX against the shared store, so concurrent deliveries for the same key
// cannot both pass the gate.
type Ledger struct {
	store  store
	ttl    time.Duration
	logger *slog.Logger
}

func New(store store, ttl time.Duration, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, ttl: ttl, logger: logger}
}

// CheckAndReserve reserves the key with the given record. The first caller
// proceeds; later callers observe Duplicate=true with the prior record.
// When the store is unreachable the notification is treated as NOT a
// duplicate: silently dropping a legitimate payment is worse than a rare
// double-processing in this domain.
func (l *Ledger) CheckAndReserve(ctx context.Context, key string, record any) Result {
	reserved, err := l.store.SetNXJSON(ctx, key, record, l.ttl)
	if err != nil {
		l.logger.ErrorContext(ctx, "Idempotency ledger unavailable, processing without dedupe guarantee",
			"key", key, "error", err)
		return Result{Duplicate: false}
	}
	if reserved {
		return Result{Duplicate: false}
	}

	prior, found, err := l.store.GetRaw(ctx, key)
	if err != nil || !found {
		if err != nil {
			l.logger.ErrorContext(ctx, "Error reading prior ledger record", "key", key, "error", err)
		}
		return Result{Duplicate: true}
	}
	return Result{Duplicate: true, Prior: prior}
}

// Release drops a reservation after a failed attempt so the provider's retry
// is not answered as a duplicate. A release that fails is only logged: the
// reservation then expires with the TTL.
func (l *Ledger) Release(ctx context.Context, key string) {
	if err := l.store.Delete(ctx, key); err != nil {
		l.logger.ErrorContext(ctx, "Error releasing ledger reservation", "key", key, "error", err)
	}
}

// Record overwrites the reserved key with the final outcome so duplicate
// deliveries can echo what actually happened.
func (l *Ledger) Record(ctx context.Context, key string, record any) {
	if err := l.store.SetJSON(ctx, key, record, l.ttl); err != nil {
		l.logger.ErrorContext(ctx, "Error recording ledger outcome", "key", key, "error", err)
	}
}
