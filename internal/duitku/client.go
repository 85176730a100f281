package duitku

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"enrollment-bridge/internal/config"
	"github.com/pkg/errors"
)

const (
	defaultTimeoutMs     = 30_000
	defaultExpiryMinutes = 1440
	createInvoicePath    = "/api/merchant/createInvoice"
	statusCodeSuccess    = "00"
)

type Client struct {
	merchantCode  string
	apiKey        string
	baseURL       string
	callbackURL   string
	returnURL     string
	expiryMinutes int
	client        *http.Client
}

func NewClient(cfg config.Duitku) *Client {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = defaultTimeoutMs
	}
	expiry := cfg.ExpiryMinutes
	if expiry == 0 {
		expiry = defaultExpiryMinutes
	}
	return &Client{
		merchantCode:  cfg.MerchantCode,
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		callbackURL:   cfg.CallbackURL,
		returnURL:     cfg.ReturnURL,
		expiryMinutes: expiry,
		client:        &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

type InvoiceRequest struct {
	OrderID            string
	Amount             int64
	PaymentMethod      string
	ProductName        string
	ProductDescription string
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
}

type Invoice struct {
	Reference   string
	PaymentURL  string
	VANumber    string
	QRString    string
	ExpiredDate string
}

type itemDetail struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type customerDetail struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

type createInvoiceRequest struct {
	MerchantCode    string         `json:"merchantCode"`
	PaymentAmount   int64          `json:"paymentAmount"`
	PaymentMethod   string         `json:"paymentMethod,omitempty"`
	MerchantOrderID string         `json:"merchantOrderId"`
	ProductDetails  string         `json:"productDetails"`
	Email           string         `json:"email"`
	PhoneNumber     string         `json:"phoneNumber,omitempty"`
	ItemDetails     []itemDetail   `json:"itemDetails"`
	CustomerDetail  customerDetail `json:"customerDetail"`
	ReturnURL       string         `json:"returnUrl"`
	CallbackURL     string         `json:"callbackUrl"`
	ExpiryPeriod    int            `json:"expiryPeriod"`
	Signature       string         `json:"signature"`
}

type createInvoiceResponse struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	Reference     string `json:"reference"`
	PaymentURL    string `json:"paymentUrl"`
	VANumber      string `json:"vaNumber"`
	QRString      string `json:"qrString"`
	ExpiredDate   string `json:"expiredDate"`
}

// CreateInvoice registers a payment attempt with the gateway and returns the
// reference and payment URL the customer is redirected to.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	amount := strconv.FormatInt(req.Amount, 10)
	firstName, lastName := splitName(req.CustomerName)
	phone := digitsOnly(req.CustomerPhone)

	productDetails := req.ProductDescription
	if productDetails == "" {
		productDetails = req.ProductName
	}

	body := createInvoiceRequest{
		MerchantCode:    c.merchantCode,
		PaymentAmount:   req.Amount,
		PaymentMethod:   req.PaymentMethod,
		MerchantOrderID: req.OrderID,
		ProductDetails:  productDetails,
		Email:           req.CustomerEmail,
		PhoneNumber:     phone,
		ItemDetails: []itemDetail{{
			Name:     req.ProductName,
			Price:    req.Amount,
			Quantity: 1,
		}},
		CustomerDetail: customerDetail{
			FirstName:   firstName,
			LastName:    lastName,
			Email:       req.CustomerEmail,
			PhoneNumber: phone,
		},
		ReturnURL:    c.returnURL,
		CallbackURL:  c.callbackURL,
		ExpiryPeriod: c.expiryMinutes,
		Signature:    InvoiceSignature(c.merchantCode, req.OrderID, amount, c.apiKey),
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling invoice request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createInvoicePath, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "creating invoice request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "calling createInvoice")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading createInvoice response")
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("createInvoice returned %s: %s", resp.Status, string(respBody))
	}

	var parsed createInvoiceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Wrap(err, "unmarshalling createInvoice response")
	}
	if parsed.StatusCode != statusCodeSuccess {
		return nil, errors.Errorf("payment initiation failed: %s", parsed.StatusMessage)
	}

	return &Invoice{
		Reference:   parsed.Reference,
		PaymentURL:  parsed.PaymentURL,
		VANumber:    parsed.VANumber,
		QRString:    parsed.QRString,
		ExpiredDate: parsed.ExpiredDate,
	}, nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
