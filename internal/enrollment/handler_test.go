package enrollment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"enrollment-bridge/internal/db"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeRepository struct {
	enrollments []*db.EnrollmentEntity
	err         error
	queried     string
}

func (f *fakeRepository) GetEnrollmentsByEmail(_ context.Context, email string) ([]*db.EnrollmentEntity, error) {
	f.queried = email
	return f.enrollments, f.err
}

func getList(h *Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	h.HandleList(rec, req)
	return rec
}

func TestHandleList(t *testing.T) {
	t.Run("ListsEnrollments", func(t *testing.T) {
		repo := &fakeRepository{enrollments: []*db.EnrollmentEntity{{
			ID:            uuid.New(),
			CourseRef:     "42",
			CourseName:    "Web Development Fundamentals",
			SourceOrderID: "ORD1",
			Status:        "active",
			CreatedAt:     time.Now(),
		}}}
		h := NewHandler(repo, slog.Default())

		rec := getList(h, "/enrollments?email=jane@example.com")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "jane@example.com", repo.queried)

		var resp struct {
			Success     bool       `json:"success"`
			Enrollments []listItem `json:"enrollments"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Len(t, resp.Enrollments, 1)
		assert.Equal(t, "42", resp.Enrollments[0].CourseRef)
	})

	t.Run("EmptyResultIsStillOK", func(t *testing.T) {
		h := NewHandler(&fakeRepository{}, slog.Default())

		rec := getList(h, "/enrollments?email=nobody@example.com")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Enrollments []listItem `json:"enrollments"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Enrollments)
	})

	t.Run("MissingEmailIs400", func(t *testing.T) {
		repo := &fakeRepository{}
		h := NewHandler(repo, slog.Default())

		rec := getList(h, "/enrollments")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, repo.queried)
	})

	t.Run("MalformedEmailIs400", func(t *testing.T) {
		h := NewHandler(&fakeRepository{}, slog.Default())

		rec := getList(h, "/enrollments?email=not-an-email")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RepositoryErrorIs500", func(t *testing.T) {
		h := NewHandler(&fakeRepository{err: errors.New("pool closed")}, slog.Default())

		rec := getList(h, "/enrollments?email=jane@example.com")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
