package enrollment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"enrollment-bridge/internal/db"
)

type Repository interface {
	GetEnrollmentsByEmail(ctx context.Context, email string) ([]*db.EnrollmentEntity, error)
}

// Handler serves the enrollment lookup used by support tooling.
type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

type listItem struct {
	CourseRef     string     `json:"courseRef"`
	CourseName    string     `json:"courseName"`
	SourceOrderID string     `json:"sourceOrderId,omitempty"`
	Status        string     `json:"status"`
	ActivatedAt   *time.Time `json:"activatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HandleList serves GET /enrollments?email=<address>.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" || !strings.Contains(email, "@") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "a valid email query parameter is required"})
		return
	}

	enrollments, err := h.repo.GetEnrollmentsByEmail(r.Context(), email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error listing enrollments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "enrollment lookup failed"})
		return
	}

	items := make([]listItem, 0, len(enrollments))
	for _, e := range enrollments {
		items = append(items, listItem{
			CourseRef:     e.CourseRef,
			CourseName:    e.CourseName,
			SourceOrderID: e.SourceOrderID,
			Status:        e.Status,
			ActivatedAt:   e.ActivatedAt,
			CreatedAt:     e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "enrollments": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
