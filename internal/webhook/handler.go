package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"enrollment-bridge/internal/duitku"
	"enrollment-bridge/internal/fulfillment"
	"enrollment-bridge/internal/logcontext"
	"enrollment-bridge/internal/thinkific"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	unknownSourceCounter = metrics.GetOrCreateCounter(`webhook_processed_total{source="unknown",result="rejected"}`)
	malformedCounter     = metrics.GetOrCreateCounter(`webhook_received_total{result="malformed"}`)
)

type DuitkuProcessor interface {
	ProcessDuitkuCallback(ctx context.Context, cb duitku.Callback) (*fulfillment.Outcome, error)
}

type ThinkificProcessor interface {
	ProcessEvent(ctx context.Context, evt fulfillment.ThinkificEvent) (*fulfillment.ThinkificOutcome, error)
}

type AuditLog interface {
	LogWebhook(ctx context.Context, source, eventType, payload string, processed bool) error
}

type Handler struct {
	duitku        DuitkuProcessor
	thinkific     ThinkificProcessor
	webhookSecret string
	audit         AuditLog
	logger        *slog.Logger
}

func NewHandler(duitkuProcessor DuitkuProcessor, thinkificProcessor ThinkificProcessor,
	webhookSecret string, audit AuditLog, logger *slog.Logger) *Handler {
	return &Handler{
		duitku:        duitkuProcessor,
		thinkific:     thinkificProcessor,
		webhookSecret: webhookSecret,
		audit:         audit,
		logger:        logger,
	}
}

// HandleDuitku processes a payment gateway notification.
func (h *Handler) HandleDuitku(w http.ResponseWriter, r *http.Request) {
	ctx := withWebhookID(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var cb duitku.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		malformedCounter.Inc()
		h.writeError(w, http.StatusBadRequest, "malformed callback body")
		return
	}

	h.processDuitku(ctx, w, body, cb)
}

func (h *Handler) processDuitku(ctx context.Context, w http.ResponseWriter, body []byte, cb duitku.Callback) {
	outcome, err := h.duitku.ProcessDuitkuCallback(ctx, cb)
	h.logAudit(ctx, string(SourceDuitku), "payment.callback", body, err == nil)

	switch {
	case errors.Is(err, fulfillment.ErrInvalidSignature):
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case errors.Is(err, fulfillment.ErrUnknownResultCode):
		h.writeError(w, http.StatusBadRequest, "unrecognized result code, retry later")
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "Payment callback processing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	resp := map[string]any{
		"success":       true,
		"status":        outcome.Status,
		"orderId":       outcome.OrderID,
		"paymentStatus": string(outcome.PaymentStatus),
	}
	if outcome.Status == fulfillment.OutcomeDuplicate && outcome.Prior != nil {
		resp["previouslyProcessed"] = json.RawMessage(outcome.Prior)
	}
	if outcome.Reason != "" {
		resp["message"] = "accepted, queued for manual review"
	}
	if outcome.Enrollment != nil {
		resp["enrollment"] = map[string]any{
			"sourceOrderId": outcome.Enrollment.SourceOrderID,
			"courseRef":     outcome.Enrollment.CourseRef,
			"courseName":    outcome.Enrollment.CourseName,
			"status":        outcome.Enrollment.Status,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleThinkific processes a platform webhook. The HMAC is computed over the
// raw body, so the body is verified before decoding.
func (h *Handler) HandleThinkific(w http.ResponseWriter, r *http.Request) {
	ctx := withWebhookID(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	received := r.Header.Get(thinkific.SignatureHeader)
	if received == "" {
		h.writeError(w, http.StatusBadRequest, "missing signature header")
		return
	}
	if !thinkific.VerifyWebhookSignature(body, received, h.webhookSecret) {
		h.logger.WarnContext(ctx, "Invalid platform webhook signature")
		h.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var evt fulfillment.ThinkificEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		malformedCounter.Inc()
		h.writeError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	outcome, err := h.thinkific.ProcessEvent(ctx, evt)
	h.logAudit(ctx, string(SourceThinkific), evt.Resource+"."+evt.Action, body, err == nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "Platform webhook processing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	resp := map[string]any{
		"success":   true,
		"source":    string(SourceThinkific),
		"eventType": outcome.EventType,
		"status":    outcome.Status,
	}
	if outcome.Duplicate {
		resp["status"] = fulfillment.OutcomeDuplicate
		if outcome.Prior != nil {
			resp["previouslyProcessed"] = json.RawMessage(outcome.Prior)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAny routes a webhook whose source is not explicit in the path. An
// unknown shape is rejected with the observed field names; it is never routed
// to a default handler.
func (h *Handler) HandleAny(w http.ResponseWriter, r *http.Request) {
	ctx := withWebhookID(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		malformedCounter.Inc()
		h.writeError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	switch DetectSource(decoded) {
	case SourceDuitku:
		var cb duitku.Callback
		if err := json.Unmarshal(body, &cb); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed callback body")
			return
		}
		h.processDuitku(ctx, w, body, cb)
	case SourceThinkific:
		// the platform scheme signs the raw body; replaying through the
		// dedicated handler keeps verification in one place
		r2 := r.Clone(ctx)
		r2.Body = io.NopCloser(bytes.NewReader(body))
		h.HandleThinkific(w, r2)
	default:
		h.logger.WarnContext(ctx, "Unknown webhook source", "fields", FieldNames(decoded))
		h.logAudit(ctx, string(SourceUnknown), "unknown", body, false)
		unknownSourceCounter.Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":    false,
			"error":      "unknown webhook source",
			"fieldsSeen": FieldNames(decoded),
		})
	}
}

func (h *Handler) logAudit(ctx context.Context, source, eventType string, body []byte, processed bool) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogWebhook(ctx, source, eventType, string(body), processed); err != nil {
		h.logger.ErrorContext(ctx, "Error writing webhook audit log", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withWebhookID(ctx context.Context) context.Context {
	return logcontext.AppendCtx(ctx, slog.String("webhookId", uuid.New().String()))
}
