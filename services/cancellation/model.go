package cancellation

import "time"

type RefundStatus string

const (
	RefundPending    RefundStatus = "PENDING"
	RefundProcessing RefundStatus = "PROCESSING"
	RefundCompleted  RefundStatus = "COMPLETED"
	RefundFailed     RefundStatus = "FAILED"
)

// RefundRequest tracks money owed back to an attendee after an event
// cancellation. The refunded amount is fixed at creation time from the
// policy in force when the event was cancelled.
type RefundRequest struct {
	ID             string    `gorm:"column:id;primaryKey"`
	Code           string    `gorm:"column:code;uniqueIndex"`
	PaymentID      string    `gorm:"column:payment_id;index"`
	RegistrationID string    `gorm:"column:registration_id"`
	EventID        string    `gorm:"column:event_id;index"`
	UserID         string    `gorm:"column:user_id;index"`
	OrganizerID    string    `gorm:"column:organizer_id;index"`
	Amount         int64     `gorm:"column:amount"`
	Percent        int       `gorm:"column:percent"`
	Status         string    `gorm:"column:status;index"`
	FailureReason  string    `gorm:"column:failure_reason"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
