package model

import (
	"encoding/json"
	"time"
)

// CustomerContext is the denormalized data needed to fulfill an enrollment
// without re-querying the payment form. Reconstructed is set when the cache
// entry was gone and the fields were rebuilt from the payments row.
type CustomerContext struct {
	OrderID            string `json:"orderId"`
	CustomerName       string `json:"customerName"`
	CustomerEmail      string `json:"customerEmail"`
	CustomerPhone      string `json:"customerPhone,omitempty"`
	ProductRef         string `json:"productRef"`
	ProductName        string `json:"productName,omitempty"`
	ProductDescription string `json:"productDescription,omitempty"`
	Amount             int64  `json:"amount"`
	Reconstructed      bool   `json:"reconstructed,omitempty"`
}

// Usable reports whether the context carries the minimum needed to enroll.
func (c CustomerContext) Usable() bool {
	return c.CustomerEmail != "" && c.ProductRef != ""
}

// ManualReviewItem is queued when fulfillment cannot complete automatically.
type ManualReviewItem struct {
	OrderID     string          `json:"orderId"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"createdAt"`
	RetryCount  int             `json:"retryCount"`
	NextRetryAt *time.Time      `json:"nextRetryAt,omitempty"`
}

// RetryItem carries everything the retry worker needs to re-attempt an
// enrollment without touching the original webhook payload again.
type RetryItem struct {
	OrderID     string          `json:"orderId"`
	Context     CustomerContext `json:"context"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"createdAt"`
	RetryCount  int             `json:"retryCount"`
	NextRetryAt time.Time       `json:"nextRetryAt"`
}

// LedgerRecord is the outcome snapshot stored under an idempotency key and
// echoed back on duplicate deliveries.
type LedgerRecord struct {
	OrderID     string    `json:"orderId"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}
