package thinkific

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"enrollment-bridge/internal/config"
	"github.com/pkg/errors"
)

const defaultTimeoutMs = 15_000

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.Thinkific) *Client {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: fmt.Sprintf("https://%s.thinkific.com/api/v1", cfg.Subdomain),
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Enrollment struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	CourseID    int64      `json:"course_id"`
	ActivatedAt *time.Time `json:"activated_at"`
}

// CreateUser registers a user, or returns the existing one when the platform
// reports the email is already taken.
func (c *Client) CreateUser(ctx context.Context, firstName, lastName, email string) (*User, error) {
	body := map[string]string{
		"first_name": firstName,
		"last_name":  lastName,
		"email":      email,
	}

	var user User
	status, err := c.post(ctx, "/users", body, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity {
		// user already exists
		return c.GetUserByEmail(ctx, email)
	}
	if status >= 400 {
		return nil, errors.Errorf("create user returned %d", status)
	}
	return &user, nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	endpoint := c.baseURL + "/users?query[email]=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating user lookup request")
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "looking up user")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("user lookup returned %s", resp.Status)
	}

	var parsed struct {
		Items []User `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "unmarshalling user lookup response")
	}
	if len(parsed.Items) == 0 {
		return nil, errors.Errorf("no user found for %s", email)
	}
	return &parsed.Items[0], nil
}

// CreateEnrollment activates the user in the course. An "already enrolled"
// response from the platform is treated as success.
func (c *Client) CreateEnrollment(ctx context.Context, userID, courseID int64) (*Enrollment, error) {
	body := map[string]any{
		"user_id":      userID,
		"course_id":    courseID,
		"activated_at": time.Now().UTC().Format(time.RFC3339),
	}

	var enrollment Enrollment
	status, err := c.post(ctx, "/enrollments", body, &enrollment)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		// duplicate enrollment, the user is already active in the course
		return &Enrollment{UserID: userID, CourseID: courseID}, nil
	}
	if status >= 400 {
		return nil, errors.Errorf("create enrollment returned %d", status)
	}
	return &enrollment, nil
}

// CreateExternalOrder records the purchase against Thinkific's own order
// ledger for reconciliation.
func (c *Client) CreateExternalOrder(ctx context.Context, email string, productID int64, amount int64, reference string) error {
	body := map[string]any{
		"payment_provider": "Duitku",
		"user_email":       email,
		"product_id":       productID,
		"order_type":       "one-time-order",
		"transaction":      map[string]any{"amount": amount, "currency": "IDR", "reference": reference},
	}

	status, err := c.post(ctx, "/external_orders", body, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return errors.Errorf("create external order returned %d", status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "marshalling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, errors.Wrap(err, "creating request")
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "calling %s", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "reading response")
	}

	if dest != nil && resp.StatusCode < 400 {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "unmarshalling %s response", path)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Auth-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}
