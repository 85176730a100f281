package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// HandleInitiate serves POST /payments.
func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "malformed request body"})
		return
	}

	resp, err := h.service.Initiate(r.Context(), req)
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	case errors.Is(err, ErrGatewayRejected):
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "Payment initiation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "payment initiation failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "payment": resp})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
