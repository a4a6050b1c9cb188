package payment

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Terminal reports whether no further gateway-driven transition applies.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusExpired, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type Payment struct {
	ID                   string         `gorm:"column:id;primaryKey"`
	OrderCode            string         `gorm:"column:order_code;uniqueIndex"`
	UserID               string         `gorm:"column:user_id;index"`
	EventID              string         `gorm:"column:event_id;index"`
	TicketTypeID         string         `gorm:"column:ticket_type_id"`
	Quantity             int            `gorm:"column:quantity;default:1"`
	Amount               int64          `gorm:"column:amount"`
	Currency             string         `gorm:"column:currency;default:IDR"`
	Status               string         `gorm:"column:status;index"`
	GatewayReference     string         `gorm:"column:gateway_reference"`
	RequiresManualReview bool           `gorm:"column:requires_manual_review"`
	FailureReason        string         `gorm:"column:failure_reason"`
	Metadata             datatypes.JSON `gorm:"column:metadata"`
	CreatedAt            time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
