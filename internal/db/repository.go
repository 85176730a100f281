package db

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertPayment records a payment attempt, idempotent on order_id.
func (r *Repository) UpsertPayment(ctx context.Context, entity *PaymentEntity) error {
	query := `INSERT INTO payments (order_id, amount, currency, product_ref, product_name, product_description,
	                                customer_name, customer_email, customer_phone, payment_method, status, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          ON CONFLICT (order_id) DO UPDATE SET
	              amount = EXCLUDED.amount,
	              product_ref = EXCLUDED.product_ref,
	              product_name = EXCLUDED.product_name,
	              product_description = EXCLUDED.product_description,
	              customer_name = EXCLUDED.customer_name,
	              customer_email = EXCLUDED.customer_email,
	              customer_phone = EXCLUDED.customer_phone,
	              payment_method = EXCLUDED.payment_method,
	              updated_at = now()
	          RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		entity.OrderID, entity.Amount, entity.Currency, entity.ProductRef, entity.ProductName,
		entity.ProductDescription, entity.CustomerName, entity.CustomerEmail, entity.CustomerPhone,
		entity.PaymentMethod, entity.Status, entity.ExpiresAt,
	).Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "upserting payment")
	}
	return nil
}

// GetPaymentByOrderID returns (nil, nil) when no row exists.
func (r *Repository) GetPaymentByOrderID(ctx context.Context, orderID string) (*PaymentEntity, error) {
	query := `SELECT id, order_id, amount, currency, product_ref, product_name, product_description,
	                 customer_name, customer_email, customer_phone, payment_method, payment_url,
	                 duitku_reference, status, created_at, updated_at, paid_at, webhook_processed_at, expires_at
	          FROM payments WHERE order_id = $1`
	row := r.pool.QueryRow(ctx, query, orderID)

	var e PaymentEntity
	err := row.Scan(&e.ID, &e.OrderID, &e.Amount, &e.Currency, &e.ProductRef, &e.ProductName,
		&e.ProductDescription, &e.CustomerName, &e.CustomerEmail, &e.CustomerPhone, &e.PaymentMethod,
		&e.PaymentURL, &e.DuitkuReference, &e.Status, &e.CreatedAt, &e.UpdatedAt, &e.PaidAt,
		&e.WebhookProcessedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting payment by order id")
	}
	return &e, nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, orderID string, upd PaymentStatusUpdate) error {
	query := `UPDATE payments
	          SET status = $2,
	              duitku_reference = COALESCE($3, duitku_reference),
	              payment_method = COALESCE($4, payment_method),
	              paid_at = COALESCE($5, paid_at),
	              webhook_processed_at = now(),
	              updated_at = now()
	          WHERE order_id = $1`
	_, err := r.pool.Exec(ctx, query, orderID, upd.Status, upd.DuitkuReference, upd.PaymentMethod, upd.PaidAt)
	return errors.Wrap(err, "updating payment status")
}

// SetGatewayDetails stores the reference and payment URL returned by the
// gateway at initiation time.
func (r *Repository) SetGatewayDetails(ctx context.Context, orderID, reference, paymentURL string, expiresAt *time.Time) error {
	query := `UPDATE payments
	          SET duitku_reference = $2, payment_url = $3, expires_at = COALESCE($4, expires_at), updated_at = now()
	          WHERE order_id = $1`
	_, err := r.pool.Exec(ctx, query, orderID, reference, paymentURL, expiresAt)
	return errors.Wrap(err, "setting gateway details")
}

// SaveEnrollment stores a fulfillment record, creating the user row when
// missing. The insert is a no-op when an enrollment for the same user, course
// and source order already exists, and the existing row is returned.
func (r *Repository) SaveEnrollment(ctx context.Context, input EnrollmentInput) (*EnrollmentEntity, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "starting transaction")
	}
	defer tx.Rollback(ctx)

	firstName, lastName := splitName(input.UserName)

	var userID uuid.UUID
	userQuery := `INSERT INTO users (email, first_name, last_name, thinkific_user_id)
	              VALUES ($1, $2, $3, $4)
	              ON CONFLICT (email) DO UPDATE SET
	                  thinkific_user_id = COALESCE(EXCLUDED.thinkific_user_id, users.thinkific_user_id)
	              RETURNING id`
	if err := tx.QueryRow(ctx, userQuery, input.UserEmail, firstName, lastName, input.ThinkificUserID).Scan(&userID); err != nil {
		return nil, errors.Wrap(err, "upserting user")
	}

	var paymentID *uuid.UUID
	if input.SourceOrderID != "" {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM payments WHERE order_id = $1`, input.SourceOrderID).Scan(&id)
		if err == nil {
			paymentID = &id
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(err, "resolving payment for enrollment")
		}
	}

	entity := EnrollmentEntity{
		UserID:                userID,
		PaymentID:             paymentID,
		ThinkificEnrollmentID: input.ThinkificEnrollmentID,
		CourseRef:             input.CourseRef,
		CourseName:            input.CourseName,
		SourceOrderID:         input.SourceOrderID,
		Status:                "active",
		ActivatedAt:           input.ActivatedAt,
	}

	insertQuery := `INSERT INTO enrollments (user_id, payment_id, thinkific_enrollment_id, course_ref, course_name,
	                                         source_order_id, status, activated_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	                ON CONFLICT (user_id, course_ref, source_order_id) DO NOTHING
	                RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertQuery, entity.UserID, entity.PaymentID, entity.ThinkificEnrollmentID,
		entity.CourseRef, entity.CourseName, entity.SourceOrderID, entity.Status, entity.ActivatedAt,
	).Scan(&entity.ID, &entity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// already fulfilled for this order, return the existing record
		selectQuery := `SELECT id, user_id, payment_id, thinkific_enrollment_id, course_ref, course_name,
		                       source_order_id, status, activated_at, created_at
		                FROM enrollments WHERE user_id = $1 AND course_ref = $2 AND source_order_id = $3`
		row := tx.QueryRow(ctx, selectQuery, entity.UserID, entity.CourseRef, entity.SourceOrderID)
		if err := row.Scan(&entity.ID, &entity.UserID, &entity.PaymentID, &entity.ThinkificEnrollmentID,
			&entity.CourseRef, &entity.CourseName, &entity.SourceOrderID, &entity.Status,
			&entity.ActivatedAt, &entity.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "selecting existing enrollment")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "inserting enrollment")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "committing enrollment")
	}
	return &entity, nil
}

func (r *Repository) GetEnrollmentsByEmail(ctx context.Context, email string) ([]*EnrollmentEntity, error) {
	query := `SELECT e.id, e.user_id, e.payment_id, e.thinkific_enrollment_id, e.course_ref, e.course_name,
	                 e.source_order_id, e.status, e.activated_at, e.created_at
	          FROM enrollments e
	          JOIN users u ON e.user_id = u.id
	          WHERE u.email = $1
	          ORDER BY e.created_at DESC`
	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, errors.Wrap(err, "selecting enrollments by email")
	}
	defer rows.Close()

	var result []*EnrollmentEntity
	for rows.Next() {
		var e EnrollmentEntity
		if err := rows.Scan(&e.ID, &e.UserID, &e.PaymentID, &e.ThinkificEnrollmentID, &e.CourseRef,
			&e.CourseName, &e.SourceOrderID, &e.Status, &e.ActivatedAt, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning enrollment")
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (r *Repository) LogWebhook(ctx context.Context, source, eventType, payload string, processed bool) error {
	query := `INSERT INTO webhook_logs (source, event_type, payload, processed) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, source, eventType, payload, processed)
	return errors.Wrap(err, "inserting webhook log")
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
