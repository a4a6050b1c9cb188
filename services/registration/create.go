package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"eventpay/pkg/errutil"
)

type CreateParams struct {
	PaymentID    string
	UserID       string
	EventID      string
	TicketTypeID string
	Quantity     int
}

// Create inserts a confirmed registration inside the caller's transaction.
// Seat accounting is a conditional increment on the event row, so two
// concurrent settlements can never oversell the last seats.
func Create(ctx context.Context, tx *gorm.DB, node *snowflake.Node, p CreateParams) (*Registration, error) {
	if p.Quantity < 1 {
		return nil, errutil.ValidationFailed("quantity must be at least 1", nil)
	}

	var event Event
	if err := tx.WithContext(ctx).Where("id = ?", p.EventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("event not found", nil)
		}
		return nil, errutil.Internal("failed to load event", err)
	}

	if EventStatus(event.Status) != EventActive {
		return nil, errutil.UnprocessableEntity("event is not accepting registrations", nil)
	}

	if !event.AllowMultiple {
		var existing int64
		err := tx.WithContext(ctx).Model(&Registration{}).
			Where("user_id = ? AND event_id = ? AND status = ?", p.UserID, p.EventID, StatusConfirmed).
			Count(&existing).Error
		if err != nil {
			return nil, errutil.Internal("failed to check existing registration", err)
		}
		if existing > 0 {
			return nil, errutil.Conflict("user is already registered for this event", nil)
		}
	}

	res := tx.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND status = ? AND registered + ? <= capacity", p.EventID, EventActive, p.Quantity).
		UpdateColumn("registered", gorm.Expr("registered + ?", p.Quantity))
	if res.Error != nil {
		return nil, errutil.Internal("failed to reserve capacity", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("event %s has insufficient capacity", p.EventID), nil)
	}

	reg := &Registration{
		ID:           node.Generate().String(),
		PaymentID:    p.PaymentID,
		UserID:       p.UserID,
		EventID:      p.EventID,
		TicketTypeID: p.TicketTypeID,
		Quantity:     p.Quantity,
		Status:       string(StatusConfirmed),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := tx.WithContext(ctx).Create(reg).Error; err != nil {
		return nil, errutil.Internal("failed to create registration", err)
	}

	return reg, nil
}
