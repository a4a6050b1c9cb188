package disbursement

import "time"

type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

type Disbursement struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Code            string    `gorm:"column:code;uniqueIndex"`
	OrganizerID     string    `gorm:"column:organizer_id;index"`
	PayoutAccountID string    `gorm:"column:payout_account_id"`
	Amount          int64     `gorm:"column:amount"`
	Fee             int64     `gorm:"column:fee"`
	Status          string    `gorm:"column:status;index"`
	GatewayID       string    `gorm:"column:gateway_id;index"`
	FailureReason   string    `gorm:"column:failure_reason"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutAccount is an organizer's verified bank destination. Disbursements
// may only target verified accounts.
type PayoutAccount struct {
	ID            string    `gorm:"column:id;primaryKey"`
	OrganizerID   string    `gorm:"column:organizer_id;index"`
	BankCode      string    `gorm:"column:bank_code"`
	AccountNumber string    `gorm:"column:account_number"`
	HolderName    string    `gorm:"column:holder_name"`
	Verified      bool      `gorm:"column:verified"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
