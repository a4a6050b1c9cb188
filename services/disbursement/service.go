package disbursement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/db/option"
	"eventpay/pkg/errutil"
	"eventpay/pkg/monitoring"
	"eventpay/pkg/repository"
	"eventpay/pkg/sequence"
	"eventpay/pkg/task"
	"eventpay/pkg/taskname"
	"eventpay/services/gateway"
	"eventpay/services/ledger"
	"eventpay/services/notify"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	seq      sequence.Generator
	fees     *gateway.Fees
	ledger   *ledger.Service
	enqueuer task.Enqueuer
	notifier notify.Notifier

	disbursements repository.Repository[Disbursement]
	accounts      repository.Repository[PayoutAccount]

	// locks serializes payout requests per organizer so the balance check
	// and the debit happen without interleaving. The critical section never
	// spans a gateway call.
	locks sync.Map
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Fees     *gateway.Fees
	Ledger   *ledger.Service
	Enqueuer task.Enqueuer
	Notifier notify.Notifier
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		node:          p.Node,
		seq:           p.Seq,
		fees:          p.Fees,
		ledger:        p.Ledger,
		enqueuer:      p.Enqueuer,
		notifier:      p.Notifier,
		disbursements: repository.ProvideStore[Disbursement](p.DB),
		accounts:      repository.ProvideStore[PayoutAccount](p.DB),
	}
}

func (s *Service) lockFor(organizerID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(organizerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type SubmitPayload struct {
	DisbursementID string `json:"disbursement_id"`
}

type RequestParams struct {
	OrganizerID     string
	PayoutAccountID string
	Amount          int64
}

// Request reserves funds for a payout: the balance check, the REQUESTED row
// and the ledger debit commit atomically, then the gateway submission is
// handed to the worker queue.
func (s *Service) Request(ctx context.Context, p RequestParams) (*Disbursement, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.Amount <= 0 {
		return nil, errutil.ValidationFailed("payout amount must be positive", nil)
	}

	account, err := s.accounts.FindOne(ctx, &PayoutAccount{ID: p.PayoutAccountID, OrganizerID: p.OrganizerID})
	if err != nil {
		return nil, errutil.Internal("failed to load payout account", err)
	}
	if account == nil {
		return nil, errutil.NotFound("payout account not found", nil)
	}
	if !account.Verified {
		return nil, errutil.UnprocessableEntity("payout account is not verified", nil)
	}

	fee := s.fees.Payout.Calculate(p.Amount)
	if p.Amount <= fee.Total {
		return nil, errutil.ValidationFailed("payout amount does not cover the payout fee", nil)
	}

	code, err := s.seq.NextDisbursementCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate disbursement code", err)
	}

	mu := s.lockFor(p.OrganizerID)
	mu.Lock()
	defer mu.Unlock()

	var d *Disbursement
	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.ledger.Balance(ctx, tx, p.OrganizerID)
		if err != nil {
			return errutil.Internal("failed to compute balance", err)
		}
		if p.Amount > balance {
			return errutil.UnprocessableEntity(
				fmt.Sprintf("insufficient balance: requested %d, available %d", p.Amount, balance), nil)
		}

		d = &Disbursement{
			ID:              s.node.Generate().String(),
			Code:            code,
			OrganizerID:     p.OrganizerID,
			PayoutAccountID: account.ID,
			Amount:          p.Amount,
			Fee:             fee.Total,
			Status:          string(StatusRequested),
		}
		if err := s.disbursements.WithTrx(tx).Create(ctx, d); err != nil {
			return errutil.Internal("failed to create disbursement", err)
		}

		_, err = s.ledger.Append(ctx, tx, ledger.EntryParams{
			OrganizerID: p.OrganizerID,
			Type:        ledger.TypeDebit,
			Amount:      p.Amount,
			Source:      ledger.SourcePayout,
			ReferenceID: d.ID,
			Description: fmt.Sprintf("payout %s", code),
			Metadata:    map[string]any{"payout_fee": fee.Total},
		})
		return err
	})
	if err != nil {
		monitoring.PayoutRequests.WithLabelValues("rejected").Inc()
		return nil, err
	}

	monitoring.PayoutRequests.WithLabelValues("accepted").Inc()
	zap.L().Info("payout requested",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("disbursement_id", d.ID),
		zap.String("organizer_id", p.OrganizerID),
		zap.Int64("amount", p.Amount),
	)

	s.enqueueSubmit(d.ID)

	return d, nil
}

func (s *Service) enqueueSubmit(disbursementID string) {
	body, _ := json.Marshal(SubmitPayload{DisbursementID: disbursementID})
	if _, err := s.enqueuer.Enqueue(asynq.NewTask(taskname.DisbursementSubmit, body), asynq.Queue("critical")); err != nil {
		// The reservation stands; the operator can resubmit via retry
		// once the queue recovers.
		zap.L().Error("failed to enqueue disbursement submission",
			zap.String("disbursement_id", disbursementID),
			zap.Error(err),
		)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Disbursement, error) {
	d, err := s.disbursements.FindOne(ctx, &Disbursement{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load disbursement", err)
	}
	if d == nil {
		return nil, errutil.NotFound("disbursement not found", nil)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, organizerID, status string, limit int) ([]*Disbursement, error) {
	return s.disbursements.Find(ctx, &Disbursement{OrganizerID: organizerID, Status: status},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit),
	)
}

// Cancel aborts a payout that has not reached the gateway. Cancelling a
// REQUESTED payout releases its reservation; a FAILED payout was already
// released when it failed, so cancelling it only closes the record. A payout
// whose submission is in flight is already PROCESSING and cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Disbursement, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch Status(d.Status) {
	case StatusRequested:
		err = s.db.Transaction(func(tx *gorm.DB) error {
			rows, err := s.disbursements.WithTrx(tx).UpdateWhere(ctx,
				&Disbursement{ID: d.ID, Status: string(StatusRequested)},
				map[string]any{"status": string(StatusCancelled)},
			)
			if err != nil {
				return errutil.Internal("failed to cancel disbursement", err)
			}
			if rows == 0 {
				return errutil.Conflict("disbursement is no longer cancellable", nil)
			}
			return s.releaseReservation(ctx, tx, d, "payout cancelled")
		})
	case StatusFailed:
		var rows int64
		rows, err = s.disbursements.UpdateWhere(ctx,
			&Disbursement{ID: d.ID, Status: string(StatusFailed)},
			map[string]any{"status": string(StatusCancelled)},
		)
		if err == nil && rows == 0 {
			err = errutil.Conflict("disbursement is no longer cancellable", nil)
		}
	default:
		return nil, errutil.Conflict(
			fmt.Sprintf("disbursement in status %s cannot be cancelled", d.Status), nil)
	}
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Retry resubmits a FAILED payout. The failed attempt's reservation was
// released, so the retry runs the full reserve step again: fresh balance
// check, fresh debit.
func (s *Service) Retry(ctx context.Context, id string) (*Disbursement, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if Status(d.Status) != StatusFailed {
		return nil, errutil.Conflict(
			fmt.Sprintf("disbursement in status %s cannot be retried", d.Status), nil)
	}

	mu := s.lockFor(d.OrganizerID)
	mu.Lock()
	defer mu.Unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.ledger.Balance(ctx, tx, d.OrganizerID)
		if err != nil {
			return errutil.Internal("failed to compute balance", err)
		}
		if d.Amount > balance {
			return errutil.UnprocessableEntity(
				fmt.Sprintf("insufficient balance: requested %d, available %d", d.Amount, balance), nil)
		}

		rows, err := s.disbursements.WithTrx(tx).UpdateWhere(ctx,
			&Disbursement{ID: d.ID, Status: string(StatusFailed)},
			map[string]any{
				"status":         string(StatusRequested),
				"gateway_id":     "",
				"failure_reason": "",
			},
		)
		if err != nil {
			return errutil.Internal("failed to reset disbursement", err)
		}
		if rows == 0 {
			return errutil.Conflict("disbursement was already retried", nil)
		}

		_, err = s.ledger.Append(ctx, tx, ledger.EntryParams{
			OrganizerID: d.OrganizerID,
			Type:        ledger.TypeDebit,
			Amount:      d.Amount,
			Source:      ledger.SourcePayout,
			ReferenceID: d.ID,
			Description: fmt.Sprintf("payout %s (retry)", d.Code),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("payout retry requested", zap.String("disbursement_id", d.ID))
	s.enqueueSubmit(d.ID)

	return s.Get(ctx, id)
}

// releaseReservation credits the reserved amount back. Must run in the same
// transaction as the status change that releases it.
func (s *Service) releaseReservation(ctx context.Context, tx *gorm.DB, d *Disbursement, reason string) error {
	_, err := s.ledger.Append(ctx, tx, ledger.EntryParams{
		OrganizerID: d.OrganizerID,
		Type:        ledger.TypeCredit,
		Amount:      d.Amount,
		Source:      ledger.SourcePayoutReversal,
		ReferenceID: d.ID,
		Description: reason,
	})
	return err
}

// ApplyEvent folds a gateway disbursement callback into local state. Repeat
// deliveries fall through the conditional updates as no-ops.
func (s *Service) ApplyEvent(ctx context.Context, ev *gateway.DisbursementEvent) error {
	d, err := s.locate(ctx, ev)
	if err != nil {
		return err
	}

	switch ev.Status {
	case gateway.DisbursementCompleted:
		return s.complete(ctx, d)
	case gateway.DisbursementFailed:
		return s.failRemote(ctx, d, ev.FailureReason)
	case gateway.DisbursementProcessing:
		_, err := s.disbursements.UpdateWhere(ctx,
			&Disbursement{ID: d.ID, Status: string(StatusRequested)},
			map[string]any{"status": string(StatusProcessing)},
		)
		return err
	default:
		zap.L().Warn("ignoring disbursement event with unknown status",
			zap.String("gateway_id", ev.GatewayID),
			zap.String("status", string(ev.Status)),
		)
		return nil
	}
}

func (s *Service) locate(ctx context.Context, ev *gateway.DisbursementEvent) (*Disbursement, error) {
	if ev.GatewayID != "" {
		d, err := s.disbursements.FindOne(ctx, &Disbursement{GatewayID: ev.GatewayID})
		if err != nil {
			return nil, errutil.Internal("failed to load disbursement", err)
		}
		if d != nil {
			return d, nil
		}
	}
	if ev.Code != "" {
		d, err := s.disbursements.FindOne(ctx, &Disbursement{Code: ev.Code})
		if err != nil {
			return nil, errutil.Internal("failed to load disbursement", err)
		}
		if d != nil {
			return d, nil
		}
	}
	return nil, errutil.NotFound("no disbursement matches the callback", nil)
}

func (s *Service) complete(ctx context.Context, d *Disbursement) error {
	res := s.db.WithContext(ctx).Model(&Disbursement{}).
		Where("id = ? AND status IN ?", d.ID, []string{string(StatusRequested), string(StatusProcessing)}).
		Updates(map[string]any{"status": string(StatusCompleted)})
	if res.Error != nil {
		return errutil.Internal("failed to complete disbursement", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	monitoring.PayoutRequests.WithLabelValues("completed").Inc()
	zap.L().Info("payout completed",
		zap.String("disbursement_id", d.ID),
		zap.String("organizer_id", d.OrganizerID),
	)

	s.notifier.PayoutCompleted(ctx, notify.PayoutEvent{
		DisbursementID: d.ID,
		Code:           d.Code,
		OrganizerID:    d.OrganizerID,
		Amount:         d.Amount,
	})

	return nil
}

// failRemote marks the payout FAILED and releases the reservation in the
// same transaction. The guard on the previous status means the release
// happens exactly once however many times the callback is delivered.
func (s *Service) failRemote(ctx context.Context, d *Disbursement, reason string) error {
	var released bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&Disbursement{}).
			Where("id = ? AND status IN ?", d.ID, []string{string(StatusRequested), string(StatusProcessing)}).
			Updates(map[string]any{
				"status":         string(StatusFailed),
				"failure_reason": reason,
			})
		if res.Error != nil {
			return errutil.Internal("failed to mark disbursement failed", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		released = true
		return s.releaseReservation(ctx, tx, d, "payout failed")
	})
	if err != nil || !released {
		return err
	}

	monitoring.PayoutRequests.WithLabelValues("failed").Inc()
	zap.L().Warn("payout failed",
		zap.String("disbursement_id", d.ID),
		zap.String("reason", reason),
	)

	s.notifier.PayoutFailed(ctx, notify.PayoutEvent{
		DisbursementID: d.ID,
		Code:           d.Code,
		OrganizerID:    d.OrganizerID,
		Amount:         d.Amount,
		Reason:         reason,
	})

	return nil
}
