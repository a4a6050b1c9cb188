package gateway

import "context"

// PaymentStatus is the internal status vocabulary gateway events are
// normalized onto. Anything the adapter cannot map lands in StatusUnknown and
// must never mutate state.
type PaymentStatus string

const (
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
	StatusExpired PaymentStatus = "EXPIRED"
	StatusPending PaymentStatus = "PENDING"
	StatusUnknown PaymentStatus = "UNKNOWN"
)

type OrderRequest struct {
	OrderCode   string
	Amount      int64
	Currency    string
	CustomerID  string
	Description string
}

type OrderResult struct {
	GatewayOrderID string
	RedirectURL    string
	Token          string
}

// NormalizedEvent is a gateway webhook translated into internal vocabulary.
type NormalizedEvent struct {
	OrderCode     string
	GatewayRef    string
	Status        PaymentStatus
	FailureReason string
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	VerifySignature(payload []byte, signature string) bool
	ParseEvent(payload []byte) (*NormalizedEvent, error)
}

type DisbursementStatus string

const (
	DisbursementCompleted  DisbursementStatus = "COMPLETED"
	DisbursementFailed     DisbursementStatus = "FAILED"
	DisbursementProcessing DisbursementStatus = "PROCESSING"
	DisbursementUnknown    DisbursementStatus = "UNKNOWN"
)

type DisbursementRequest struct {
	Code          string
	Amount        int64
	BankCode      string
	AccountNumber string
	HolderName    string
	Description   string
}

type DisbursementResult struct {
	GatewayID string
}

type DisbursementEvent struct {
	GatewayID     string
	Code          string
	Status        DisbursementStatus
	FailureReason string
}

type DisbursementGateway interface {
	CreateDisbursement(ctx context.Context, req *DisbursementRequest) (*DisbursementResult, error)
	VerifyCallbackToken(token string) bool
	ParseEvent(payload []byte) (*DisbursementEvent, error)
}
