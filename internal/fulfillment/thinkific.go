package fulfillment

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"enrollment-bridge/internal/db"
	"enrollment-bridge/internal/ledger"
	"enrollment-bridge/internal/logcontext"
	"enrollment-bridge/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const (
	ThinkificOutcomeProcessed = "processed"
	ThinkificOutcomeUnhandled = "unhandled"
)

var (
	thinkificProcessedCounter = metrics.GetOrCreateCounter(`webhook_processed_total{source="thinkific",result="processed"}`)
	thinkificDuplicateCounter = metrics.GetOrCreateCounter(`webhook_processed_total{source="thinkific",result="duplicate"}`)
	thinkificUnhandledCounter = metrics.GetOrCreateCounter(`webhook_processed_total{source="thinkific",result="unhandled"}`)
)

// ThinkificEvent is the platform webhook envelope.
type ThinkificEvent struct {
	ID        string          `json:"id"`
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

type enrollmentPayload struct {
	Enrollment struct {
		ID          int64      `json:"id"`
		Status      string     `json:"status"`
		ActivatedAt *time.Time `json:"activated_at"`
	} `json:"enrollment"`
	User struct {
		ID        int64  `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		FullName  string `json:"full_name"`
	} `json:"user"`
	Course struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"course"`
}

// ThinkificOutcome mirrors Outcome for the platform-side webhook.
type ThinkificOutcome struct {
	Status    string
	EventType string
	Duplicate bool
	Prior     json.RawMessage
}

// ThinkificProcessor confirms fulfillments reported back by the platform.
// Only enrollment.created mutates state; every other event is acknowledged
// and logged.
type ThinkificProcessor struct {
	orders  Orders
	deduper Deduper
	logger  *slog.Logger
}

func NewThinkificProcessor(orders Orders, deduper Deduper, logger *slog.Logger) *ThinkificProcessor {
	return &ThinkificProcessor{orders: orders, deduper: deduper, logger: logger}
}

func (p *ThinkificProcessor) ProcessEvent(ctx context.Context, evt ThinkificEvent) (*ThinkificOutcome, error) {
	eventType := evt.Resource + "." + evt.Action
	ctx = logcontext.AppendCtx(ctx, slog.String("eventType", eventType))

	if evt.Resource != "enrollment" || evt.Action != "created" {
		p.logger.InfoContext(ctx, "Unhandled platform webhook")
		thinkificUnhandledCounter.Inc()
		return &ThinkificOutcome{Status: ThinkificOutcomeUnhandled, EventType: eventType}, nil
	}

	var payload enrollmentPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshalling enrollment payload")
	}

	key := ledger.ThinkificEnrollmentKey(payload.Enrollment.ID)
	res := p.deduper.CheckAndReserve(ctx, key, model.LedgerRecord{
		OrderID:     strconv.FormatInt(payload.Enrollment.ID, 10),
		Status:      "active",
		Outcome:     ThinkificOutcomeProcessed,
		ProcessedAt: time.Now(),
	})
	if res.Duplicate {
		p.logger.InfoContext(ctx, "Duplicate platform enrollment", "enrollmentId", payload.Enrollment.ID)
		thinkificDuplicateCounter.Inc()
		return &ThinkificOutcome{Status: ThinkificOutcomeProcessed, EventType: eventType, Duplicate: true, Prior: res.Prior}, nil
	}

	userName := payload.User.FullName
	if userName == "" {
		userName = payload.User.FirstName + " " + payload.User.LastName
	}

	input := db.EnrollmentInput{
		UserEmail:   payload.User.Email,
		UserName:    userName,
		CourseRef:   strconv.FormatInt(payload.Course.ID, 10),
		CourseName:  payload.Course.Name,
		ActivatedAt: payload.Enrollment.ActivatedAt,
	}
	if payload.User.ID != 0 {
		userID := payload.User.ID
		input.ThinkificUserID = &userID
	}
	if payload.Enrollment.ID != 0 {
		enrollmentID := payload.Enrollment.ID
		input.ThinkificEnrollmentID = &enrollmentID
	}

	if _, err := p.orders.SaveEnrollment(ctx, input); err != nil {
		// release so the platform's redelivery can persist the record
		p.deduper.Release(ctx, key)
		return nil, err
	}

	p.logger.InfoContext(ctx, "Platform enrollment recorded",
		"userEmail", payload.User.Email, "courseName", payload.Course.Name)
	thinkificProcessedCounter.Inc()
	return &ThinkificOutcome{Status: ThinkificOutcomeProcessed, EventType: eventType}, nil
}
