package registration

import "time"

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

type Registration struct {
	ID           string    `gorm:"column:id;primaryKey"`
	PaymentID    string    `gorm:"column:payment_id;index"`
	UserID       string    `gorm:"column:user_id;index"`
	EventID      string    `gorm:"column:event_id;index"`
	TicketTypeID string    `gorm:"column:ticket_type_id"`
	Quantity     int       `gorm:"column:quantity;default:1"`
	Status       string    `gorm:"column:status;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type EventStatus string

const (
	EventActive    EventStatus = "ACTIVE"
	EventCancelled EventStatus = "CANCELLED"
)

// Event is the projection of an event this service needs: capacity
// accounting, ownership and the start time driving refund eligibility.
type Event struct {
	ID            string    `gorm:"column:id;primaryKey"`
	OrganizerID   string    `gorm:"column:organizer_id;index"`
	Name          string    `gorm:"column:name"`
	Capacity      int64     `gorm:"column:capacity"`
	Registered    int64     `gorm:"column:registered"`
	StartAt       time.Time `gorm:"column:start_at"`
	AllowMultiple bool      `gorm:"column:allow_multiple"`
	Status        string    `gorm:"column:status;index"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
