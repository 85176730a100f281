package db

import (
	"time"

	"github.com/google/uuid"
)

type PaymentEntity struct {
	ID                 uuid.UUID
	OrderID            string
	Amount             int64
	Currency           string
	ProductRef         *string
	ProductName        *string
	ProductDescription *string
	CustomerName       *string
	CustomerEmail      *string
	CustomerPhone      *string
	PaymentMethod      *string
	PaymentURL         *string
	DuitkuReference    *string
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaidAt             *time.Time
	WebhookProcessedAt *time.Time
	ExpiresAt          *time.Time
}

// PaymentStatusUpdate carries the fields a webhook is allowed to mutate.
type PaymentStatusUpdate struct {
	Status          string
	DuitkuReference *string
	PaymentMethod   *string
	PaidAt          *time.Time
}

type UserEntity struct {
	ID              uuid.UUID
	Email           string
	FirstName       string
	LastName        string
	ThinkificUserID *int64
	CreatedAt       time.Time
}

type EnrollmentEntity struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	PaymentID             *uuid.UUID
	ThinkificEnrollmentID *int64
	CourseRef             string
	CourseName            string
	SourceOrderID         string
	Status                string
	ActivatedAt           *time.Time
	CreatedAt             time.Time
}

// EnrollmentInput is the denormalized form used when recording a fulfillment;
// the repository resolves or creates the user row behind it.
type EnrollmentInput struct {
	UserEmail             string
	UserName              string
	ThinkificUserID       *int64
	ThinkificEnrollmentID *int64
	CourseRef             string
	CourseName            string
	SourceOrderID         string
	ActivatedAt           *time.Time
}

type WebhookLogEntity struct {
	ID        uuid.UUID
	Source    string
	EventType string
	Payload   string
	Processed bool
	CreatedAt time.Time
}
