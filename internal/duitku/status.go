package duitku

// PaymentStatus is the canonical status every gateway result code normalizes to.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
	StatusExpired   PaymentStatus = "expired"
	StatusUnknown   PaymentStatus = "unknown"
)

var resultCodes = map[string]PaymentStatus{
	"00": StatusSuccess,
	"01": StatusPending,
	"02": StatusFailed,
	"03": StatusCancelled,
	"04": StatusExpired,
}

// MapResultCode translates a gateway result code into the canonical status.
// Codes outside the table map to StatusUnknown and must be rejected by the
// caller, never treated as success or failure.
func MapResultCode(code string) PaymentStatus {
	if status, ok := resultCodes[code]; ok {
		return status
	}
	return StatusUnknown
}

// Terminal reports whether the status ends the order's lifecycle.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
