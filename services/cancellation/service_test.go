package cancellation

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/config"
	"eventpay/pkg/errutil"
	"eventpay/services/ledger"
	"eventpay/services/notify"
	"eventpay/services/payment"
	"eventpay/services/registration"
	"eventpay/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type notifierMock struct {
	cancelled []notify.RegistrationCancelledEvent
}

func (m *notifierMock) PaymentSettled(ctx context.Context, ev notify.PaymentSettledEvent) {}
func (m *notifierMock) PaymentFailed(ctx context.Context, ev notify.PaymentFailedEvent)   {}
func (m *notifierMock) PayoutCompleted(ctx context.Context, ev notify.PayoutEvent)        {}
func (m *notifierMock) PayoutFailed(ctx context.Context, ev notify.PayoutEvent)           {}

func (m *notifierMock) RegistrationCancelled(ctx context.Context, ev notify.RegistrationCancelledEvent) {
	m.cancelled = append(m.cancelled, ev)
}

type seqStub struct {
	n atomic.Int64
}

func (s *seqStub) next(prefix string) (string, error) {
	return fmt.Sprintf("%s-TEST-%03d", prefix, s.n.Add(1)), nil
}

func (s *seqStub) NextOrderCode(ctx context.Context) (string, error)        { return s.next("PAY") }
func (s *seqStub) NextDisbursementCode(ctx context.Context) (string, error) { return s.next("DSB") }
func (s *seqStub) NextRefundCode(ctx context.Context) (string, error)       { return s.next("RFD") }

type fixture struct {
	db       *gorm.DB
	svc      *Service
	ledger   *ledger.Service
	notifier *notifierMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&RefundRequest{},
		&payment.Payment{},
		&registration.Registration{},
		&registration.Event{},
		&ledger.BalanceTransaction{},
	)

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	notifier := &notifierMock{}

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Seq:      &seqStub{},
		Config:   &config.Config{RefundPolicy: config.DefaultRefundPolicy()},
		Ledger:   ledgerSvc,
		Notifier: notifier,
	})

	return &fixture{db: db, svc: svc, ledger: ledgerSvc, notifier: notifier}
}

// seedSale wires one paid registration with its organizer credit, the state a
// settled payment leaves behind.
func (f *fixture) seedSale(t *testing.T, eventID, userID string, amount int64) (paymentID, registrationID string) {
	t.Helper()
	ctx := context.Background()

	paymentID = fmt.Sprintf("pay-%s-%s", eventID, userID)
	registrationID = fmt.Sprintf("reg-%s-%s", eventID, userID)

	require.NoError(t, f.db.Create(&payment.Payment{
		ID:        paymentID,
		OrderCode: "ORD-" + paymentID,
		UserID:    userID,
		EventID:   eventID,
		Quantity:  1,
		Amount:    amount,
		Status:    string(payment.StatusPaid),
	}).Error)

	require.NoError(t, f.db.Create(&registration.Registration{
		ID:        registrationID,
		PaymentID: paymentID,
		UserID:    userID,
		EventID:   eventID,
		Quantity:  1,
		Status:    string(registration.StatusConfirmed),
	}).Error)

	if amount > 0 {
		err := f.db.Transaction(func(tx *gorm.DB) error {
			_, err := f.ledger.Append(ctx, tx, ledger.EntryParams{
				OrganizerID: "org-1",
				Type:        ledger.TypeCredit,
				Amount:      amount,
				Source:      ledger.SourceTicketSale,
				ReferenceID: paymentID,
			})
			return err
		})
		require.NoError(t, err)
	}

	return paymentID, registrationID
}

func (f *fixture) seedEvent(t *testing.T, id string, startIn time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Create(&registration.Event{
		ID:          id,
		OrganizerID: "org-1",
		Capacity:    100,
		StartAt:     time.Now().Add(startIn),
		Status:      string(registration.EventActive),
	}).Error)
}

func TestCancelEventFullRefundTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedEvent(t, "evt-1", 200*time.Hour)
	f.seedSale(t, "evt-1", "user-1", 100_000)
	f.seedSale(t, "evt-1", "user-2", 60_000)

	result, err := f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, 100, result.RefundPercent)
	require.Equal(t, 2, result.CancelledRegistrations)
	require.Equal(t, 2, result.RefundsIssued)
	require.Equal(t, int64(160_000), result.RefundedAmount)

	var event registration.Event
	require.NoError(t, f.db.First(&event, "id = ?", "evt-1").Error)
	require.Equal(t, string(registration.EventCancelled), event.Status)

	var regs []registration.Registration
	require.NoError(t, f.db.Find(&regs, "event_id = ?", "evt-1").Error)
	for _, reg := range regs {
		require.Equal(t, string(registration.StatusCancelled), reg.Status)
	}

	var refunds []RefundRequest
	require.NoError(t, f.db.Find(&refunds, "event_id = ?", "evt-1").Error)
	require.Len(t, refunds, 2)
	for _, refund := range refunds {
		require.Equal(t, string(RefundPending), refund.Status)
		require.Equal(t, 100, refund.Percent)
	}

	// The organizer gave back everything that was credited.
	balance, err := f.ledger.Balance(ctx, nil, "org-1")
	require.NoError(t, err)
	require.Zero(t, balance)

	require.Len(t, f.notifier.cancelled, 2)
}

func TestCancelEventHalfRefundTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedEvent(t, "evt-1", 100*time.Hour)
	f.seedSale(t, "evt-1", "user-1", 100_000)

	result, err := f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, 50, result.RefundPercent)
	require.Equal(t, int64(50_000), result.RefundedAmount)

	balance, err := f.ledger.Balance(ctx, nil, "org-1")
	require.NoError(t, err)
	require.Equal(t, int64(50_000), balance)
}

func TestCancelEventNoRefundTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedEvent(t, "evt-1", 24*time.Hour)
	f.seedSale(t, "evt-1", "user-1", 100_000)

	result, err := f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, 0, result.RefundPercent)
	require.Equal(t, 1, result.CancelledRegistrations)
	require.Zero(t, result.RefundsIssued)

	var refundCount int64
	require.NoError(t, f.db.Model(&RefundRequest{}).Count(&refundCount).Error)
	require.Zero(t, refundCount)

	// Registrations are still cancelled even when nothing is refunded.
	var reg registration.Registration
	require.NoError(t, f.db.First(&reg, "event_id = ?", "evt-1").Error)
	require.Equal(t, string(registration.StatusCancelled), reg.Status)

	balance, err := f.ledger.Balance(ctx, nil, "org-1")
	require.NoError(t, err)
	require.Equal(t, int64(100_000), balance)
}

func TestCancelEventSkipsFreeTickets(t *testing.T) {
	f := newFixture(t)

	f.seedEvent(t, "evt-1", 200*time.Hour)
	f.seedSale(t, "evt-1", "user-1", 0)

	result, err := f.svc.CancelEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.CancelledRegistrations)
	require.Zero(t, result.RefundsIssued)
}

func TestCancelEventIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedEvent(t, "evt-1", 200*time.Hour)
	f.seedSale(t, "evt-1", "user-1", 100_000)

	_, err := f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)

	_, err = f.svc.CancelEvent(ctx, "evt-1")
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	// Refunds were not duplicated.
	var refundCount int64
	require.NoError(t, f.db.Model(&RefundRequest{}).Count(&refundCount).Error)
	require.Equal(t, int64(1), refundCount)

	_, err = f.svc.CancelEvent(ctx, "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestUpdateRefundStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedEvent(t, "evt-1", 200*time.Hour)
	paymentID, _ := f.seedSale(t, "evt-1", "user-1", 100_000)

	_, err := f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)

	var refund RefundRequest
	require.NoError(t, f.db.First(&refund, "event_id = ?", "evt-1").Error)

	updated, err := f.svc.UpdateRefundStatus(ctx, refund.ID, RefundProcessing, "")
	require.NoError(t, err)
	require.Equal(t, string(RefundProcessing), updated.Status)

	updated, err = f.svc.UpdateRefundStatus(ctx, refund.ID, RefundCompleted, "")
	require.NoError(t, err)
	require.Equal(t, string(RefundCompleted), updated.Status)

	// A full refund flips the payment to REFUNDED.
	var pmt payment.Payment
	require.NoError(t, f.db.First(&pmt, "id = ?", paymentID).Error)
	require.Equal(t, string(payment.StatusRefunded), pmt.Status)

	// Terminal refunds do not move again.
	_, err = f.svc.UpdateRefundStatus(ctx, refund.ID, RefundProcessing, "")
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
}

func TestUpdateRefundStatusPartialRefundKeepsPaymentPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedEvent(t, "evt-1", 100*time.Hour)
	paymentID, _ := f.seedSale(t, "evt-1", "user-1", 100_000)

	_, err := f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)

	var refund RefundRequest
	require.NoError(t, f.db.First(&refund, "event_id = ?", "evt-1").Error)
	require.Equal(t, 50, refund.Percent)

	_, err = f.svc.UpdateRefundStatus(ctx, refund.ID, RefundCompleted, "")
	require.NoError(t, err)

	var pmt payment.Payment
	require.NoError(t, f.db.First(&pmt, "id = ?", paymentID).Error)
	require.Equal(t, string(payment.StatusPaid), pmt.Status)
}

func TestUpdateRefundStatusValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateRefundStatus(ctx, "missing", RefundCompleted, "")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	f.seedEvent(t, "evt-1", 200*time.Hour)
	f.seedSale(t, "evt-1", "user-1", 100_000)
	_, err = f.svc.CancelEvent(ctx, "evt-1")
	require.NoError(t, err)

	var refund RefundRequest
	require.NoError(t, f.db.First(&refund, "event_id = ?", "evt-1").Error)

	_, err = f.svc.UpdateRefundStatus(ctx, refund.ID, RefundStatus("SETTLED"), "")
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = f.svc.UpdateRefundStatus(ctx, refund.ID, RefundPending, "")
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}
