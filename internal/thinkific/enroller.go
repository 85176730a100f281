package thinkific

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"enrollment-bridge/internal/model"
	"github.com/pkg/errors"
)

// Enroller drives the ensure-user-then-enroll sequence against the platform.
// Both steps are idempotent: existing users and existing enrollments are
// treated as success.
type Enroller struct {
	client *Client
	logger *slog.Logger
}

func NewEnroller(client *Client, logger *slog.Logger) *Enroller {
	return &Enroller{client: client, logger: logger}
}

// Enroll fulfills the purchase described by the context. The course reference
// must be the platform's numeric course id.
func (e *Enroller) Enroll(ctx context.Context, c model.CustomerContext) (*Enrollment, error) {
	courseID, err := strconv.ParseInt(c.ProductRef, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "course reference %q is not a platform course id", c.ProductRef)
	}

	firstName, lastName := splitName(c.CustomerName)
	user, err := e.client.CreateUser(ctx, firstName, lastName, c.CustomerEmail)
	if err != nil {
		return nil, errors.Wrap(err, "ensuring user exists")
	}

	enrollment, err := e.client.CreateEnrollment(ctx, user.ID, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "creating enrollment")
	}

	// reconciliation record on the platform side, best effort only
	if err := e.client.CreateExternalOrder(ctx, c.CustomerEmail, courseID, c.Amount, c.OrderID); err != nil {
		e.logger.WarnContext(ctx, "Error recording external order", "orderId", c.OrderID, "error", err)
	}

	return enrollment, nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
