package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"eventpay/pkg/task"
	"eventpay/pkg/taskname"
)

type PaymentSettledEvent struct {
	PaymentID      string `json:"payment_id"`
	OrderCode      string `json:"order_code"`
	UserID         string `json:"user_id"`
	EventID        string `json:"event_id"`
	RegistrationID string `json:"registration_id"`
	Amount         int64  `json:"amount"`
}

type PaymentFailedEvent struct {
	PaymentID string `json:"payment_id"`
	OrderCode string `json:"order_code"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type RegistrationCancelledEvent struct {
	RegistrationID string `json:"registration_id"`
	UserID         string `json:"user_id"`
	EventID        string `json:"event_id"`
	RefundPercent  int    `json:"refund_percent"`
	RefundAmount   int64  `json:"refund_amount"`
}

type PayoutEvent struct {
	DisbursementID string `json:"disbursement_id"`
	Code           string `json:"code"`
	OrganizerID    string `json:"organizer_id"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason,omitempty"`
}

// Notifier fans settlement outcomes out to the notification workers.
// Delivery is best effort: a failed enqueue is logged and never fails
// the state transition that produced it.
type Notifier interface {
	PaymentSettled(ctx context.Context, ev PaymentSettledEvent)
	PaymentFailed(ctx context.Context, ev PaymentFailedEvent)
	RegistrationCancelled(ctx context.Context, ev RegistrationCancelledEvent)
	PayoutCompleted(ctx context.Context, ev PayoutEvent)
	PayoutFailed(ctx context.Context, ev PayoutEvent)
}

type queueNotifier struct {
	enqueuer task.Enqueuer
}

func NewNotifier(enqueuer task.Enqueuer) Notifier {
	return &queueNotifier{enqueuer: enqueuer}
}

func (n *queueNotifier) publish(name string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("[Notify] failed to marshal payload", zap.String("task", name), zap.Error(err))
		return
	}

	if _, err := n.enqueuer.Enqueue(asynq.NewTask(name, body), asynq.Queue("low")); err != nil {
		zap.L().Error("[Notify] failed to enqueue task", zap.String("task", name), zap.Error(err))
	}
}

func (n *queueNotifier) PaymentSettled(ctx context.Context, ev PaymentSettledEvent) {
	n.publish(taskname.NotifyPaymentSettled, ev)
}

func (n *queueNotifier) PaymentFailed(ctx context.Context, ev PaymentFailedEvent) {
	n.publish(taskname.NotifyPaymentFailed, ev)
}

func (n *queueNotifier) RegistrationCancelled(ctx context.Context, ev RegistrationCancelledEvent) {
	n.publish(taskname.NotifyRegistrationCancelled, ev)
}

func (n *queueNotifier) PayoutCompleted(ctx context.Context, ev PayoutEvent) {
	n.publish(taskname.NotifyPayoutCompleted, ev)
}

func (n *queueNotifier) PayoutFailed(ctx context.Context, ev PayoutEvent) {
	n.publish(taskname.NotifyPayoutFailed, ev)
}
