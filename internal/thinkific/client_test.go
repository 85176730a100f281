package thinkific

import (
	"context"
	"testing"

	"enrollment-bridge/internal/config"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
)

const testBaseURL = "https://academy.thinkific.com"

func testAPIClient() *Client {
	return NewClient(config.Thinkific{
		Subdomain: "academy",
		APIKey:    "thinkific-api-key",
	})
}

func TestCreateUser(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/users").
			MatchHeader("X-Auth-API-Key", "thinkific-api-key").
			Reply(201).
			JSON(map[string]any{"id": 9, "email": "jane@example.com", "first_name": "Jane", "last_name": "Doe"})

		user, err := testAPIClient().CreateUser(context.Background(), "Jane", "Doe", "jane@example.com")
		assert.NoError(t, err)
		assert.Equal(t, int64(9), user.ID)
	})

	t.Run("AlreadyExistsFallsBackToLookup", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/users").
			Reply(422).
			JSON(map[string]any{"errors": map[string]any{"email": []string{"has already been taken"}}})
		gock.New(testBaseURL).
			Get("/api/v1/users").
			MatchParam("query[email]", "jane@example.com").
			Reply(200).
			JSON(map[string]any{"items": []map[string]any{{"id": 9, "email": "jane@example.com"}}})

		user, err := testAPIClient().CreateUser(context.Background(), "Jane", "Doe", "jane@example.com")
		assert.NoError(t, err)
		assert.Equal(t, int64(9), user.ID)
		assert.True(t, gock.IsDone())
	})

	t.Run("ServerError", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/users").
			Reply(500).
			JSON(map[string]any{"error": "internal"})

		_, err := testAPIClient().CreateUser(context.Background(), "Jane", "Doe", "jane@example.com")
		assert.Error(t, err)
	})
}

func TestCreateEnrollment(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/enrollments").
			Reply(201).
			JSON(map[string]any{"id": 77, "user_id": 9, "course_id": 42})

		enrollment, err := testAPIClient().CreateEnrollment(context.Background(), 9, 42)
		assert.NoError(t, err)
		assert.Equal(t, int64(77), enrollment.ID)
		assert.Equal(t, int64(42), enrollment.CourseID)
	})

	t.Run("AlreadyEnrolledIsSuccess", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/enrollments").
			Reply(422).
			JSON(map[string]any{"errors": map[string]any{"user_id": []string{"already enrolled"}}})

		enrollment, err := testAPIClient().CreateEnrollment(context.Background(), 9, 42)
		assert.NoError(t, err)
		assert.Zero(t, enrollment.ID)
		assert.Equal(t, int64(9), enrollment.UserID)
	})

	t.Run("ServerError", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/enrollments").
			Reply(503).
			JSON(map[string]any{"error": "unavailable"})

		_, err := testAPIClient().CreateEnrollment(context.Background(), 9, 42)
		assert.Error(t, err)
	})
}

func TestCreateExternalOrder(t *testing.T) {
	t.Run("Recorded", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/external_orders").
			Reply(201).
			JSON(map[string]any{"id": 5})

		err := testAPIClient().CreateExternalOrder(context.Background(), "jane@example.com", 42, 150000, "REF1")
		assert.NoError(t, err)
	})

	t.Run("Rejected", func(t *testing.T) {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/api/v1/external_orders").
			Reply(400).
			JSON(map[string]any{"error": "bad product"})

		err := testAPIClient().CreateExternalOrder(context.Background(), "jane@example.com", 42, 150000, "REF1")
		assert.Error(t, err)
	})
}
