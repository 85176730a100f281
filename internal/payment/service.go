package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"enrollment-bridge/internal/db"
	"enrollment-bridge/internal/duitku"
	"enrollment-bridge/internal/logcontext"
	"enrollment-bridge/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	initiatedCounter      = metrics.GetOrCreateCounter(`payment_initiation_total{result="initiated"}`)
	gatewayErrorCounter   = metrics.GetOrCreateCounter(`payment_initiation_total{result="gateway_error"}`)
	initStorageErrCounter = metrics.GetOrCreateCounter(`payment_initiation_total{result="storage_error"}`)
	initValidationCounter = metrics.GetOrCreateCounter(`payment_initiation_total{result="validation_error"}`)
)

// ErrGatewayRejected marks a failure reported by the payment gateway itself.
var ErrGatewayRejected = errors.New("payment gateway rejected the invoice")

type InitiateRequest struct {
	ProductRef         string `json:"productRef"`
	ProductName        string `json:"productName"`
	ProductDescription string `json:"productDescription,omitempty"`
	Amount             int64  `json:"amount"`
	PaymentMethod      string `json:"paymentMethod,omitempty"`
	CustomerName       string `json:"customerName"`
	CustomerEmail      string `json:"customerEmail"`
	CustomerPhone      string `json:"customerPhone,omitempty"`
}

func (r InitiateRequest) validate() error {
	switch {
	case r.Amount <= 0:
		return errors.New("amount must be positive")
	case r.ProductRef == "":
		return errors.New("productRef is required")
	case r.CustomerEmail == "" || !strings.Contains(r.CustomerEmail, "@"):
		return errors.New("a valid customerEmail is required")
	case r.CustomerName == "":
		return errors.New("customerName is required")
	}
	return nil
}

type InitiateResponse struct {
	OrderID     string `json:"orderId"`
	Reference   string `json:"reference"`
	PaymentURL  string `json:"paymentUrl"`
	VANumber    string `json:"vaNumber,omitempty"`
	QRString    string `json:"qrString,omitempty"`
	ExpiredDate string `json:"expiredDate,omitempty"`
}

type Gateway interface {
	CreateInvoice(ctx context.Context, req duitku.InvoiceRequest) (*duitku.Invoice, error)
}

type Orders interface {
	UpsertPayment(ctx context.Context, entity *db.PaymentEntity) error
	SetGatewayDetails(ctx context.Context, orderID, reference, paymentURL string, expiresAt *time.Time) error
}

type ContextCache interface {
	Put(ctx context.Context, orderID string, c model.CustomerContext) error
}

// Service records the payment attempt, captures the customer context for the
// webhook path, and registers the invoice with the gateway.
type Service struct {
	orders  Orders
	cache   ContextCache
	gateway Gateway
	logger  *slog.Logger
}

func NewService(orders Orders, cache ContextCache, gateway Gateway, logger *slog.Logger) *Service {
	return &Service{orders: orders, cache: cache, gateway: gateway, logger: logger}
}

func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if err := req.validate(); err != nil {
		initValidationCounter.Inc()
		return nil, errors.Wrap(ErrValidation, err.Error())
	}

	orderID := GenerateOrderID()
	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", orderID))

	entity := &db.PaymentEntity{
		OrderID:            orderID,
		Amount:             req.Amount,
		Currency:           "IDR",
		ProductRef:         optional(req.ProductRef),
		ProductName:        optional(req.ProductName),
		ProductDescription: optional(req.ProductDescription),
		CustomerName:       optional(req.CustomerName),
		CustomerEmail:      optional(req.CustomerEmail),
		CustomerPhone:      optional(req.CustomerPhone),
		PaymentMethod:      optional(req.PaymentMethod),
		Status:             string(duitku.StatusPending),
	}
	if err := s.orders.UpsertPayment(ctx, entity); err != nil {
		initStorageErrCounter.Inc()
		return nil, err
	}

	// cached for the webhook path; the durable row above is the fallback
	custCtx := model.CustomerContext{
		OrderID:            orderID,
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerPhone:      req.CustomerPhone,
		ProductRef:         req.ProductRef,
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		Amount:             req.Amount,
	}
	if err := s.cache.Put(ctx, orderID, custCtx); err != nil {
		s.logger.ErrorContext(ctx, "Error caching customer context", "error", err)
	}

	invoice, err := s.gateway.CreateInvoice(ctx, duitku.InvoiceRequest{
		OrderID:            orderID,
		Amount:             req.Amount,
		PaymentMethod:      req.PaymentMethod,
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerPhone:      req.CustomerPhone,
	})
	if err != nil {
		gatewayErrorCounter.Inc()
		s.logger.ErrorContext(ctx, "Error creating gateway invoice", "error", err)
		return nil, errors.Wrap(ErrGatewayRejected, err.Error())
	}

	if err := s.orders.SetGatewayDetails(ctx, orderID, invoice.Reference, invoice.PaymentURL, nil); err != nil {
		initStorageErrCounter.Inc()
		return nil, err
	}

	s.logger.InfoContext(ctx, "Payment initiated", "reference", invoice.Reference)
	initiatedCounter.Inc()
	return &InitiateResponse{
		OrderID:     orderID,
		Reference:   invoice.Reference,
		PaymentURL:  invoice.PaymentURL,
		VANumber:    invoice.VANumber,
		QRString:    invoice.QRString,
		ExpiredDate: invoice.ExpiredDate,
	}, nil
}

// ErrValidation marks a rejected initiation request.
var ErrValidation = errors.New("invalid initiation request")

// GenerateOrderID builds a caller-unique order id in the gateway's expected
// shape.
func GenerateOrderID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:9])
	return fmt.Sprintf("COURSE_%d_%s", time.Now().UnixMilli(), suffix)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
