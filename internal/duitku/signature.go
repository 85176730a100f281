package duitku

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Callback is the notification body Duitku posts to the callback URL.
type Callback struct {
	MerchantCode    string `json:"merchantCode"`
	MerchantOrderID string `json:"merchantOrderId"`
	Amount          string `json:"amount"`
	ResultCode      string `json:"resultCode"`
	Reference       string `json:"reference"`
	Signature       string `json:"signature"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	AdditionalParam string `json:"additionalParam,omitempty"`
	MerchantUserID  string `json:"merchantUserId,omitempty"`
	SettlementDate  string `json:"settlementDate,omitempty"`
	IssuerCode      string `json:"issuerCode,omitempty"`
}

// CallbackSignature is the digest Duitku computes over a notification:
// md5(merchantCode + amount + merchantOrderId + apiKey), hex encoded.
func CallbackSignature(merchantCode, amount, merchantOrderID, apiKey string) string {
	sum := md5.Sum([]byte(merchantCode + amount + merchantOrderID + apiKey))
	return hex.EncodeToString(sum[:])
}

// InvoiceSignature signs an outbound createInvoice request:
// md5(merchantCode + merchantOrderId + amount + apiKey), hex encoded.
func InvoiceSignature(merchantCode, merchantOrderID, amount, apiKey string) string {
	sum := md5.Sum([]byte(merchantCode + merchantOrderID + amount + apiKey))
	return hex.EncodeToString(sum[:])
}

// VerifyCallback checks the notification signature against the shared secret.
// Returns false on any missing field; it never panics and has no side effects.
func VerifyCallback(merchantCode, apiKey string, cb Callback) bool {
	if cb.MerchantOrderID == "" || cb.Amount == "" || cb.Signature == "" {
		return false
	}
	expected := CallbackSignature(merchantCode, cb.Amount, cb.MerchantOrderID, apiKey)
	return strings.EqualFold(expected, cb.Signature)
}
