package duitku

import (
	"context"
	"testing"

	"enrollment-bridge/internal/config"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
)

func testClient() *Client {
	return NewClient(config.Duitku{
		MerchantCode: testMerchantCode,
		APIKey:       testAPIKey,
		BaseURL:      "https://sandbox.duitku.com",
		CallbackURL:  "http://localhost:8080/webhooks/duitku",
		ReturnURL:    "http://localhost:3000/return",
	})
}

func TestCreateInvoice(t *testing.T) {
	req := InvoiceRequest{
		OrderID:       "ORD1",
		Amount:        100000,
		ProductName:   "Web Development Fundamentals",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		CustomerPhone: "+62 812-3456",
	}

	t.Run("Success", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://sandbox.duitku.com").
			Post("/api/merchant/createInvoice").
			Reply(200).
			JSON(map[string]string{
				"statusCode": "00",
				"reference":  "REF1",
				"paymentUrl": "https://sandbox.duitku.com/payment/REF1",
			})

		invoice, err := testClient().CreateInvoice(context.Background(), req)
		assert.NoError(t, err)
		assert.Equal(t, "REF1", invoice.Reference)
		assert.Equal(t, "https://sandbox.duitku.com/payment/REF1", invoice.PaymentURL)
		assert.True(t, gock.IsDone())
	})

	t.Run("GatewayRejects", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://sandbox.duitku.com").
			Post("/api/merchant/createInvoice").
			Reply(200).
			JSON(map[string]string{
				"statusCode":    "02",
				"statusMessage": "invalid merchant",
			})

		_, err := testClient().CreateInvoice(context.Background(), req)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid merchant")
	})

	t.Run("HTTPError", func(t *testing.T) {
		defer gock.Off()
		gock.New("https://sandbox.duitku.com").
			Post("/api/merchant/createInvoice").
			Reply(500).
			JSON(map[string]string{"error": "internal"})

		_, err := testClient().CreateInvoice(context.Background(), req)
		assert.Error(t, err)
	})
}
