package thinkific

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the digest Thinkific computes over the raw body.
const SignatureHeader = "X-Thinkific-Hmac-Sha256"

// VerifyWebhookSignature checks the HMAC-SHA256 digest of the raw request
// body against the received header value. Returns false when either input is
// empty.
func VerifyWebhookSignature(body []byte, received, secret string) bool {
	if received == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(received))
}
