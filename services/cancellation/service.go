package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/config"
	"eventpay/pkg/db/option"
	"eventpay/pkg/errutil"
	"eventpay/pkg/repository"
	"eventpay/pkg/sequence"
	"eventpay/services/ledger"
	"eventpay/services/notify"
	"eventpay/services/payment"
	"eventpay/services/registration"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	seq      sequence.Generator
	policy   Policy
	ledger   *ledger.Service
	notifier notify.Notifier

	refunds       repository.Repository[RefundRequest]
	payments      repository.Repository[payment.Payment]
	events        repository.Repository[registration.Event]
	registrations repository.Repository[registration.Registration]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Config   *config.Config
	Ledger   *ledger.Service
	Notifier notify.Notifier
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		node:          p.Node,
		seq:           p.Seq,
		policy:        NewPolicy(p.Config.RefundPolicy),
		ledger:        p.Ledger,
		notifier:      p.Notifier,
		refunds:       repository.ProvideStore[RefundRequest](p.DB),
		payments:      repository.ProvideStore[payment.Payment](p.DB),
		events:        repository.ProvideStore[registration.Event](p.DB),
		registrations: repository.ProvideStore[registration.Registration](p.DB),
	}
}

type CancelResult struct {
	EventID                string `json:"event_id"`
	RefundPercent          int    `json:"refund_percent"`
	CancelledRegistrations int    `json:"cancelled_registrations"`
	RefundsIssued          int    `json:"refunds_issued"`
	RefundedAmount         int64  `json:"refunded_amount"`
}

// CancelEvent cancels an event, cancels every confirmed registration and
// opens refund requests per the policy in force. The event transition, the
// registration updates, the refund rows and the organizer debits commit as
// one transaction, so a cancellation either fully happens or not at all.
func (s *Service) CancelEvent(ctx context.Context, eventID string) (*CancelResult, error) {
	event, err := s.events.FindOne(ctx, &registration.Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}

	percent := s.policy.Percent(time.Until(event.StartAt))

	result := &CancelResult{EventID: eventID, RefundPercent: percent}
	var notifications []notify.RegistrationCancelledEvent

	err = s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := s.events.WithTrx(tx).UpdateWhere(ctx,
			&registration.Event{ID: eventID, Status: string(registration.EventActive)},
			map[string]any{"status": string(registration.EventCancelled)},
		)
		if err != nil {
			return errutil.Internal("failed to cancel event", err)
		}
		if rows == 0 {
			return errutil.Conflict("event is already cancelled", nil)
		}

		regs, err := s.registrations.WithTrx(tx).Find(ctx,
			&registration.Registration{EventID: eventID, Status: string(registration.StatusConfirmed)})
		if err != nil {
			return errutil.Internal("failed to load registrations", err)
		}

		for _, reg := range regs {
			if _, err := s.registrations.WithTrx(tx).UpdateWhere(ctx,
				&registration.Registration{ID: reg.ID, Status: string(registration.StatusConfirmed)},
				map[string]any{"status": string(registration.StatusCancelled)},
			); err != nil {
				return errutil.Internal("failed to cancel registration", err)
			}
			result.CancelledRegistrations++

			refundAmount, err := s.openRefund(ctx, tx, event, reg, percent)
			if err != nil {
				return err
			}
			if refundAmount > 0 {
				result.RefundsIssued++
				result.RefundedAmount += refundAmount
			}

			notifications = append(notifications, notify.RegistrationCancelledEvent{
				RegistrationID: reg.ID,
				UserID:         reg.UserID,
				EventID:        eventID,
				RefundPercent:  percent,
				RefundAmount:   refundAmount,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("event cancelled",
		zap.String("event_id", eventID),
		zap.Int("refund_percent", percent),
		zap.Int("registrations", result.CancelledRegistrations),
		zap.Int("refunds", result.RefundsIssued),
	)

	for _, n := range notifications {
		s.notifier.RegistrationCancelled(ctx, n)
	}

	return result, nil
}

// openRefund creates the refund request and debits the organizer for one
// cancelled registration. Free tickets and zero-percent tiers produce no
// refund.
func (s *Service) openRefund(ctx context.Context, tx *gorm.DB, event *registration.Event, reg *registration.Registration, percent int) (int64, error) {
	if percent <= 0 {
		return 0, nil
	}

	pmt, err := s.payments.WithTrx(tx).FindOne(ctx, &payment.Payment{ID: reg.PaymentID})
	if err != nil {
		return 0, errutil.Internal("failed to load payment", err)
	}
	if pmt == nil || payment.Status(pmt.Status) != payment.StatusPaid || pmt.Amount <= 0 {
		return 0, nil
	}

	amount := RefundAmount(pmt.Amount, percent)
	if amount <= 0 {
		return 0, nil
	}

	code, err := s.seq.NextRefundCode(ctx)
	if err != nil {
		return 0, errutil.Internal("failed to generate refund code", err)
	}

	refund := &RefundRequest{
		ID:             s.node.Generate().String(),
		Code:           code,
		PaymentID:      pmt.ID,
		RegistrationID: reg.ID,
		EventID:        event.ID,
		UserID:         reg.UserID,
		OrganizerID:    event.OrganizerID,
		Amount:         amount,
		Percent:        percent,
		Status:         string(RefundPending),
	}
	if err := s.refunds.WithTrx(tx).Create(ctx, refund); err != nil {
		return 0, errutil.Internal("failed to create refund request", err)
	}

	if _, err := s.ledger.Append(ctx, tx, ledger.EntryParams{
		OrganizerID: event.OrganizerID,
		Type:        ledger.TypeDebit,
		Amount:      amount,
		Source:      ledger.SourceRefund,
		ReferenceID: refund.ID,
		Description: fmt.Sprintf("refund %s for order %s", code, pmt.OrderCode),
		Metadata: map[string]any{
			"refund_percent": percent,
			"gross_amount":   pmt.Amount,
		},
	}); err != nil {
		return 0, err
	}

	return amount, nil
}

// UpdateRefundStatus moves a refund through PENDING, PROCESSING and its
// terminal states. A refund completing at one hundred percent also flips the
// underlying payment to REFUNDED.
func (s *Service) UpdateRefundStatus(ctx context.Context, id string, target RefundStatus, reason string) (*RefundRequest, error) {
	var allowedFrom []string
	switch target {
	case RefundProcessing:
		allowedFrom = []string{string(RefundPending)}
	case RefundCompleted, RefundFailed:
		allowedFrom = []string{string(RefundPending), string(RefundProcessing)}
	default:
		return nil, errutil.ValidationFailed(
			fmt.Sprintf("unsupported refund status %q", target), nil)
	}

	refund, err := s.refunds.FindOne(ctx, &RefundRequest{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load refund", err)
	}
	if refund == nil {
		return nil, errutil.NotFound("refund not found", nil)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": string(target)}
		if reason != "" {
			updates["failure_reason"] = reason
		}

		res := tx.WithContext(ctx).Model(&RefundRequest{}).
			Where("id = ? AND status IN ?", id, allowedFrom).
			Updates(updates)
		if res.Error != nil {
			return errutil.Internal("failed to update refund", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict(
				fmt.Sprintf("refund in status %s cannot move to %s", refund.Status, target), nil)
		}

		if target == RefundCompleted && refund.Percent >= 100 {
			if _, err := s.payments.WithTrx(tx).UpdateWhere(ctx,
				&payment.Payment{ID: refund.PaymentID, Status: string(payment.StatusPaid)},
				map[string]any{"status": string(payment.StatusRefunded)},
			); err != nil {
				return errutil.Internal("failed to mark payment refunded", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.refunds.FindOne(ctx, &RefundRequest{ID: id})
}

func (s *Service) ListRefunds(ctx context.Context, eventID, status string, limit int) ([]*RefundRequest, error) {
	return s.refunds.Find(ctx, &RefundRequest{EventID: eventID, Status: status},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit),
	)
}
