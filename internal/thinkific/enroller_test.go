package thinkific

import (
	"context"
	"log/slog"
	"testing"

	"enrollment-bridge/internal/model"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
)

func testContext() model.CustomerContext {
	return model.CustomerContext{
		OrderID:       "COURSE_1700000000000_AB12CD34E",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		ProductRef:    "42",
		ProductName:   "Web Development Fundamentals",
		Amount:        150000,
	}
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()

	t.Run("FullSequence", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/users").
			Reply(201).
			JSON(map[string]any{"id": 9, "email": "jane@example.com"})
		gock.New(testBaseURL).
			Post("/api/v1/enrollments").
			Reply(201).
			JSON(map[string]any{"id": 77, "user_id": 9, "course_id": 42})
		gock.New(testBaseURL).
			Post("/api/v1/external_orders").
			Reply(201).
			JSON(map[string]any{"id": 5})

		e := NewEnroller(testAPIClient(), slog.Default())
		enrollment, err := e.Enroll(ctx, testContext())

		assert.NoError(t, err)
		assert.Equal(t, int64(77), enrollment.ID)
		assert.True(t, gock.IsDone())
	})

	t.Run("NonNumericCourseRef", func(t *testing.T) {
		e := NewEnroller(testAPIClient(), slog.Default())
		c := testContext()
		c.ProductRef = "web-dev-101"

		_, err := e.Enroll(ctx, c)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a platform course id")
	})

	t.Run("ExternalOrderFailureIsNonFatal", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/users").
			Reply(201).
			JSON(map[string]any{"id": 9, "email": "jane@example.com"})
		gock.New(testBaseURL).
			Post("/api/v1/enrollments").
			Reply(201).
			JSON(map[string]any{"id": 77, "user_id": 9, "course_id": 42})
		gock.New(testBaseURL).
			Post("/api/v1/external_orders").
			Reply(500).
			JSON(map[string]any{"error": "internal"})

		e := NewEnroller(testAPIClient(), slog.Default())
		enrollment, err := e.Enroll(ctx, testContext())

		assert.NoError(t, err)
		assert.Equal(t, int64(77), enrollment.ID)
	})

	t.Run("EnrollmentFailureSurfaces", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/users").
			Reply(201).
			JSON(map[string]any{"id": 9, "email": "jane@example.com"})
		gock.New(testBaseURL).
			Post("/api/v1/enrollments").
			Reply(503).
			JSON(map[string]any{"error": "unavailable"})

		e := NewEnroller(testAPIClient(), slog.Default())
		_, err := e.Enroll(ctx, testContext())

		assert.Error(t, err)
	})
}
