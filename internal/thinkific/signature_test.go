package thinkific

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"resource":"enrollment","action":"created","payload":{"id":42}}`)

	t.Run("ValidSignature", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(body, sign(body, secret), secret))
	})

	t.Run("TamperedBody", func(t *testing.T) {
		received := sign(body, secret)
		tampered := []byte(`{"resource":"enrollment","action":"created","payload":{"id":43}}`)
		assert.False(t, VerifyWebhookSignature(tampered, received, secret))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, sign(body, "other-secret"), secret))
	})

	t.Run("EmptySignature", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, "", secret))
	})

	t.Run("EmptySecret", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, sign(body, secret), ""))
	})
}
