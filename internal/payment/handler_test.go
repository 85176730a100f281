package payment

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"enrollment-bridge/internal/duitku"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func postInitiate(h *Handler, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	h.HandleInitiate(rec, req)
	return rec
}

func TestHandleInitiate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		gateway := &fakeGateway{invoice: &duitku.Invoice{Reference: "REF1", PaymentURL: "https://pay"}}
		s := NewService(&fakeOrders{}, &fakeCache{}, gateway, slog.Default())
		h := NewHandler(s, slog.Default())
		body, _ := json.Marshal(validRequest())

		rec := postInitiate(h, body)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool             `json:"success"`
			Payment InitiateResponse `json:"payment"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "REF1", resp.Payment.Reference)
	})

	t.Run("MalformedBodyIs400", func(t *testing.T) {
		s := NewService(&fakeOrders{}, &fakeCache{}, &fakeGateway{}, slog.Default())
		h := NewHandler(s, slog.Default())

		rec := postInitiate(h, []byte(`{not json`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ValidationErrorIs400", func(t *testing.T) {
		s := NewService(&fakeOrders{}, &fakeCache{}, &fakeGateway{}, slog.Default())
		h := NewHandler(s, slog.Default())
		req := validRequest()
		req.Amount = 0
		body, _ := json.Marshal(req)

		rec := postInitiate(h, body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GatewayRejectionIs502", func(t *testing.T) {
		gateway := &fakeGateway{err: errors.New("invalid merchant")}
		s := NewService(&fakeOrders{}, &fakeCache{}, gateway, slog.Default())
		h := NewHandler(s, slog.Default())
		body, _ := json.Marshal(validRequest())

		rec := postInitiate(h, body)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("StorageErrorIs500", func(t *testing.T) {
		orders := &fakeOrders{upsertErr: errors.New("pool closed")}
		s := NewService(orders, &fakeCache{}, &fakeGateway{}, slog.Default())
		h := NewHandler(s, slog.Default())
		body, _ := json.Marshal(validRequest())

		rec := postInitiate(h, body)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
