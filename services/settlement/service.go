package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/errutil"
	"eventpay/pkg/monitoring"
	"eventpay/pkg/repository"
	"eventpay/services/gateway"
	"eventpay/services/ledger"
	"eventpay/services/notify"
	"eventpay/services/payment"
	"eventpay/services/registration"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	fees     *gateway.Fees
	ledger   *ledger.Service
	notifier notify.Notifier

	payments      repository.Repository[payment.Payment]
	events        repository.Repository[registration.Event]
	registrations repository.Repository[registration.Registration]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Fees     *gateway.Fees
	Ledger   *ledger.Service
	Notifier notify.Notifier
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		node:          p.Node,
		fees:          p.Fees,
		ledger:        p.Ledger,
		notifier:      p.Notifier,
		payments:      repository.ProvideStore[payment.Payment](p.DB),
		events:        repository.ProvideStore[registration.Event](p.DB),
		registrations: repository.ProvideStore[registration.Registration](p.DB),
	}
}

// ApplySettlement drives a payment through its state machine from one
// normalized gateway event. Redelivered events land on the conditional
// update's zero rows-affected path and become no-ops, so processing the same
// event twice is safe.
func (s *Service) ApplySettlement(ctx context.Context, ev *gateway.NormalizedEvent) error {
	switch ev.Status {
	case gateway.StatusSuccess:
		return s.settle(ctx, ev)
	case gateway.StatusFailed:
		return s.fail(ctx, ev, payment.StatusFailed)
	case gateway.StatusExpired:
		return s.fail(ctx, ev, payment.StatusExpired)
	case gateway.StatusPending:
		zap.L().Debug("ignoring pending gateway event", zap.String("order_code", ev.OrderCode))
		return nil
	default:
		// Unknown statuses must never mutate state.
		zap.L().Warn("ignoring gateway event with unknown status",
			zap.String("order_code", ev.OrderCode),
			zap.String("status", string(ev.Status)),
		)
		return nil
	}
}

func (s *Service) settle(ctx context.Context, ev *gateway.NormalizedEvent) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	logFields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("order_code", ev.OrderCode),
	}

	pmt, err := s.payments.FindOne(ctx, &payment.Payment{OrderCode: ev.OrderCode})
	if err != nil {
		return errutil.Internal("failed to load payment", err)
	}
	if pmt == nil {
		return errutil.NotFound(fmt.Sprintf("no payment for order %s", ev.OrderCode), nil)
	}

	if payment.Status(pmt.Status) != payment.StatusPending {
		// Already terminal. A repeat of the same outcome is a no-op; a
		// contradictory outcome is logged and dropped rather than
		// rewriting settled state.
		if payment.Status(pmt.Status) != payment.StatusPaid {
			zap.L().With(logFields...).Warn("success event for payment in conflicting terminal state",
				zap.String("payment_id", pmt.ID),
				zap.String("status", pmt.Status),
			)
		}
		return nil
	}

	event, err := s.events.FindOne(ctx, &registration.Event{ID: pmt.EventID})
	if err != nil {
		return errutil.Internal("failed to load event", err)
	}
	if event == nil {
		return errutil.NotFound(fmt.Sprintf("no event for payment %s", pmt.ID), nil)
	}

	var reg *registration.Registration
	flaggedReason := ""

	err = s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := s.payments.WithTrx(tx).UpdateWhere(ctx,
			&payment.Payment{ID: pmt.ID, Status: string(payment.StatusPending)},
			map[string]any{
				"status":            string(payment.StatusPaid),
				"gateway_reference": ev.GatewayRef,
			},
		)
		if err != nil {
			return errutil.Internal("failed to mark payment paid", err)
		}
		if rows == 0 {
			// A concurrent delivery won the transition.
			return nil
		}

		reg, err = registration.Create(ctx, tx, s.node, registration.CreateParams{
			PaymentID:    pmt.ID,
			UserID:       pmt.UserID,
			EventID:      pmt.EventID,
			TicketTypeID: pmt.TicketTypeID,
			Quantity:     pmt.Quantity,
		})
		if err != nil {
			// Money was captured but the seat cannot be granted. Keep the
			// payment PAID, flag it for review, and commit.
			switch errutil.StatusOf(err) {
			case errutil.StatusUnprocessableEntity, errutil.StatusConflict:
				flaggedReason = errMessage(err)
				if _, ferr := s.payments.WithTrx(tx).UpdateWhere(ctx,
					&payment.Payment{ID: pmt.ID, Status: string(payment.StatusPaid)},
					map[string]any{
						"requires_manual_review": true,
						"failure_reason":         flaggedReason,
					},
				); ferr != nil {
					return errutil.Internal("failed to flag payment for review", ferr)
				}
				return nil
			}
			return err
		}

		return s.creditOrganizer(ctx, tx, pmt, event.OrganizerID)
	})
	if err != nil {
		return err
	}

	if flaggedReason != "" {
		monitoring.Settlements.WithLabelValues("manual_review").Inc()
		zap.L().With(logFields...).Warn("payment settled without registration, flagged for manual review",
			zap.String("payment_id", pmt.ID),
			zap.String("reason", flaggedReason),
		)
		return nil
	}

	if reg == nil {
		// Lost the conditional update race; the winning delivery already
		// did the work.
		return nil
	}

	monitoring.Settlements.WithLabelValues("paid").Inc()
	zap.L().With(logFields...).Info("payment settled",
		zap.String("payment_id", pmt.ID),
		zap.String("registration_id", reg.ID),
	)

	s.notifier.PaymentSettled(ctx, notify.PaymentSettledEvent{
		PaymentID:      pmt.ID,
		OrderCode:      pmt.OrderCode,
		UserID:         pmt.UserID,
		EventID:        pmt.EventID,
		RegistrationID: reg.ID,
		Amount:         pmt.Amount,
	})

	return nil
}

// creditOrganizer books the net sale proceeds, ticket price minus the
// platform fee, onto the organizer's ledger.
func (s *Service) creditOrganizer(ctx context.Context, tx *gorm.DB, pmt *payment.Payment, organizerID string) error {
	fee := s.fees.Platform.Calculate(pmt.Amount)
	net := pmt.Amount - fee.Total
	if net <= 0 {
		zap.L().Warn("ticket sale does not cover platform fee, skipping credit",
			zap.String("payment_id", pmt.ID),
			zap.Int64("amount", pmt.Amount),
			zap.Int64("fee", fee.Total),
		)
		return nil
	}

	_, err := s.ledger.Append(ctx, tx, ledger.EntryParams{
		OrganizerID: organizerID,
		Type:        ledger.TypeCredit,
		Amount:      net,
		Source:      ledger.SourceTicketSale,
		ReferenceID: pmt.ID,
		Description: fmt.Sprintf("ticket sale %s", pmt.OrderCode),
		Metadata: map[string]any{
			"gross_amount": pmt.Amount,
			"platform_fee": fee.Total,
		},
	})
	return err
}

func (s *Service) fail(ctx context.Context, ev *gateway.NormalizedEvent, target payment.Status) error {
	updates := map[string]any{"status": string(target)}
	if ev.FailureReason != "" {
		updates["failure_reason"] = ev.FailureReason
	}
	if ev.GatewayRef != "" {
		updates["gateway_reference"] = ev.GatewayRef
	}

	rows, err := s.payments.UpdateWhere(ctx,
		&payment.Payment{OrderCode: ev.OrderCode, Status: string(payment.StatusPending)},
		updates,
	)
	if err != nil {
		return errutil.Internal("failed to mark payment failed", err)
	}
	if rows == 0 {
		zap.L().Debug("failure event for non-pending payment, ignoring",
			zap.String("order_code", ev.OrderCode))
		return nil
	}

	monitoring.Settlements.WithLabelValues(statusLabel(target)).Inc()

	pmt, err := s.payments.FindOne(ctx, &payment.Payment{OrderCode: ev.OrderCode})
	if err != nil || pmt == nil {
		return nil
	}

	s.notifier.PaymentFailed(ctx, notify.PaymentFailedEvent{
		PaymentID: pmt.ID,
		OrderCode: pmt.OrderCode,
		UserID:    pmt.UserID,
		Status:    pmt.Status,
		Reason:    pmt.FailureReason,
	})

	return nil
}

// TriggerRegistration retries registration creation for a settled payment
// that was flagged for manual review, for example after the organizer raised
// the event capacity. The conditional update on the review flag makes the
// retry exactly-once under concurrent calls.
func (s *Service) TriggerRegistration(ctx context.Context, paymentID string) (*registration.Registration, error) {
	pmt, err := s.payments.FindOne(ctx, &payment.Payment{ID: paymentID})
	if err != nil {
		return nil, errutil.Internal("failed to load payment", err)
	}
	if pmt == nil {
		return nil, errutil.NotFound("payment not found", nil)
	}
	if payment.Status(pmt.Status) != payment.StatusPaid || !pmt.RequiresManualReview {
		return nil, errutil.Conflict("payment is not awaiting manual registration", nil)
	}

	event, err := s.events.FindOne(ctx, &registration.Event{ID: pmt.EventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}

	var reg *registration.Registration
	err = s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := s.payments.WithTrx(tx).UpdateWhere(ctx,
			&payment.Payment{ID: pmt.ID, Status: string(payment.StatusPaid), RequiresManualReview: true},
			map[string]any{
				"requires_manual_review": false,
				"failure_reason":         "",
			},
		)
		if err != nil {
			return errutil.Internal("failed to clear review flag", err)
		}
		if rows == 0 {
			return errutil.Conflict("registration was already triggered", nil)
		}

		reg, err = registration.Create(ctx, tx, s.node, registration.CreateParams{
			PaymentID:    pmt.ID,
			UserID:       pmt.UserID,
			EventID:      pmt.EventID,
			TicketTypeID: pmt.TicketTypeID,
			Quantity:     pmt.Quantity,
		})
		if err != nil {
			return err
		}

		// The organizer credit was skipped when the settlement was
		// flagged, so it is booked here with the registration.
		return s.creditOrganizer(ctx, tx, pmt, event.OrganizerID)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("registration triggered manually",
		zap.String("payment_id", pmt.ID),
		zap.String("registration_id", reg.ID),
	)

	s.notifier.PaymentSettled(ctx, notify.PaymentSettledEvent{
		PaymentID:      pmt.ID,
		OrderCode:      pmt.OrderCode,
		UserID:         pmt.UserID,
		EventID:        pmt.EventID,
		RegistrationID: reg.ID,
		Amount:         pmt.Amount,
	})

	return reg, nil
}

func statusLabel(s payment.Status) string {
	switch s {
	case payment.StatusFailed:
		return "failed"
	case payment.StatusExpired:
		return "expired"
	default:
		return "other"
	}
}

func errMessage(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
