package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"eventpay/pkg/taskname"
)

// TaskHandler consumes notification tasks on the worker. Actual channel
// delivery (email, push) is intentionally behind this seam; for now each
// notification is logged so the pipeline is observable end to end.
type TaskHandler struct{}

func NewTaskHandler() *TaskHandler {
	return &TaskHandler{}
}

func decode[T any](t *asynq.Task) (T, error) {
	var payload T
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("invalid payload for %s: %w", t.Type(), err)
	}
	return payload, nil
}

func (h *TaskHandler) HandlePaymentSettled(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[PaymentSettledEvent](t)
	if err != nil {
		return err
	}
	zap.L().Info("[Notify] payment settled",
		zap.String("payment_id", ev.PaymentID),
		zap.String("order_code", ev.OrderCode),
		zap.String("user_id", ev.UserID),
		zap.Int64("amount", ev.Amount),
	)
	return nil
}

func (h *TaskHandler) HandlePaymentFailed(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[PaymentFailedEvent](t)
	if err != nil {
		return err
	}
	zap.L().Info("[Notify] payment failed",
		zap.String("payment_id", ev.PaymentID),
		zap.String("order_code", ev.OrderCode),
		zap.String("status", ev.Status),
		zap.String("reason", ev.Reason),
	)
	return nil
}

func (h *TaskHandler) HandleRegistrationCancelled(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[RegistrationCancelledEvent](t)
	if err != nil {
		return err
	}
	zap.L().Info("[Notify] registration cancelled",
		zap.String("registration_id", ev.RegistrationID),
		zap.String("event_id", ev.EventID),
		zap.Int("refund_percent", ev.RefundPercent),
		zap.Int64("refund_amount", ev.RefundAmount),
	)
	return nil
}

func (h *TaskHandler) HandlePayoutCompleted(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[PayoutEvent](t)
	if err != nil {
		return err
	}
	zap.L().Info("[Notify] payout completed",
		zap.String("disbursement_id", ev.DisbursementID),
		zap.String("organizer_id", ev.OrganizerID),
		zap.Int64("amount", ev.Amount),
	)
	return nil
}

func (h *TaskHandler) HandlePayoutFailed(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[PayoutEvent](t)
	if err != nil {
		return err
	}
	zap.L().Warn("[Notify] payout failed",
		zap.String("disbursement_id", ev.DisbursementID),
		zap.String("organizer_id", ev.OrganizerID),
		zap.String("reason", ev.Reason),
	)
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.NotifyPaymentSettled, h.HandlePaymentSettled)
	mux.HandleFunc(taskname.NotifyPaymentFailed, h.HandlePaymentFailed)
	mux.HandleFunc(taskname.NotifyRegistrationCancelled, h.HandleRegistrationCancelled)
	mux.HandleFunc(taskname.NotifyPayoutCompleted, h.HandlePayoutCompleted)
	mux.HandleFunc(taskname.NotifyPayoutFailed, h.HandlePayoutFailed)
}
