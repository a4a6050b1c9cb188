package disbursement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"eventpay/pkg/errutil"
	"eventpay/pkg/taskname"
	"eventpay/services/gateway"
)

// TaskHandler submits reserved payouts to the disbursement gateway from the
// worker process.
type TaskHandler struct {
	svc *Service
	gw  gateway.DisbursementGateway
}

func NewTaskHandler(svc *Service, gw gateway.DisbursementGateway) *TaskHandler {
	return &TaskHandler{svc: svc, gw: gw}
}

// HandleSubmit pushes one reserved disbursement to the gateway. The attempt
// is recorded as a REQUESTED to PROCESSING transition before the gateway call,
// so a cancel cannot release a reservation the gateway may still claim. The
// disbursement code doubles as the gateway-side idempotency key, so a task
// redelivered after a crash does not pay out twice. Transient gateway errors
// propagate to asynq for retry; terminal rejections fail the payout and
// release its reservation.
func (h *TaskHandler) HandleSubmit(ctx context.Context, t *asynq.Task) error {
	var payload SubmitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid submit payload: %w", err)
	}

	d, err := h.svc.disbursements.FindOne(ctx, &Disbursement{ID: payload.DisbursementID})
	if err != nil {
		return err
	}
	if d == nil {
		zap.L().Warn("submit task for unknown disbursement",
			zap.String("disbursement_id", payload.DisbursementID))
		return nil
	}

	switch {
	case Status(d.Status) == StatusRequested:
		rows, err := h.svc.disbursements.UpdateWhere(ctx,
			&Disbursement{ID: d.ID, Status: string(StatusRequested)},
			map[string]any{"status": string(StatusProcessing)},
		)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Cancelled or retried between the load and the transition.
			// The gateway was never called, so nothing needs compensating.
			zap.L().Warn("disbursement moved out of REQUESTED before submission",
				zap.String("disbursement_id", d.ID))
			return nil
		}
	case Status(d.Status) == StatusProcessing && d.GatewayID == "":
		// A prior delivery claimed the submission but never recorded the
		// gateway reference. The code-keyed request below is safe to repeat.
	default:
		// Cancelled, already submitted, or settled by a callback.
		return nil
	}

	account, err := h.svc.accounts.FindOne(ctx, &PayoutAccount{ID: d.PayoutAccountID})
	if err != nil {
		return err
	}
	if account == nil {
		return h.failLocal(ctx, d, "payout account no longer exists")
	}

	result, err := h.gw.CreateDisbursement(ctx, &gateway.DisbursementRequest{
		Code:          d.Code,
		Amount:        d.Amount - d.Fee,
		BankCode:      account.BankCode,
		AccountNumber: account.AccountNumber,
		HolderName:    account.HolderName,
		Description:   fmt.Sprintf("payout %s", d.Code),
	})
	if err != nil {
		if isTerminalGatewayError(err) {
			return h.failLocal(ctx, d, errorText(err))
		}
		// Let asynq back off and retry. The payout stays PROCESSING with
		// no gateway reference, which the next delivery resumes from.
		return err
	}

	rows, err := h.svc.disbursements.UpdateWhere(ctx,
		&Disbursement{ID: d.ID, Status: string(StatusProcessing)},
		map[string]any{"gateway_id": result.GatewayID},
	)
	if err != nil {
		return err
	}
	if rows == 0 {
		// A callback settled the payout before the gateway reference was
		// recorded; the callback path already handled the reservation.
		zap.L().Warn("disbursement settled before submission was recorded",
			zap.String("disbursement_id", d.ID),
			zap.String("gateway_id", result.GatewayID))
		return nil
	}

	zap.L().Info("disbursement submitted",
		zap.String("disbursement_id", d.ID),
		zap.String("gateway_id", result.GatewayID),
	)

	return nil
}

// failLocal marks a payout the gateway rejected outright as FAILED and
// releases its reservation.
func (h *TaskHandler) failLocal(ctx context.Context, d *Disbursement, reason string) error {
	return h.svc.failRemote(ctx, d, reason)
}

// isTerminalGatewayError reports whether resubmitting the same request can
// never succeed, which is the case for gateway-side rejections but not for
// timeouts or transport failures.
func isTerminalGatewayError(err error) bool {
	if errors.Is(err, gateway.ErrRejected) {
		return true
	}
	switch errutil.StatusOf(err) {
	case errutil.StatusValidationFailed, errutil.StatusUnprocessableEntity:
		return true
	}
	return false
}

func errorText(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func registerTaskHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.DisbursementSubmit, h.HandleSubmit)
}
