package disbursement

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"eventpay/pkg/errutil"
	"eventpay/pkg/taskname"
	"eventpay/services/gateway"
)

type gatewayMock struct {
	createFn func(ctx context.Context, req *gateway.DisbursementRequest) (*gateway.DisbursementResult, error)
	requests []*gateway.DisbursementRequest
}

func (m *gatewayMock) CreateDisbursement(ctx context.Context, req *gateway.DisbursementRequest) (*gateway.DisbursementResult, error) {
	m.requests = append(m.requests, req)
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &gateway.DisbursementResult{GatewayID: "gw-1"}, nil
}

func (m *gatewayMock) VerifyCallbackToken(token string) bool { return true }

func (m *gatewayMock) ParseEvent(payload []byte) (*gateway.DisbursementEvent, error) {
	return nil, nil
}

func submitTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(SubmitPayload{DisbursementID: id})
	require.NoError(t, err)
	return asynq.NewTask(taskname.DisbursementSubmit, body)
}

func TestHandleSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedAccount(t, verifiedAccount("acct-1", "org-1"))
	f.credit(t, "org-1", 200_000)

	d, err := f.svc.Request(ctx, RequestParams{OrganizerID: "org-1", PayoutAccountID: "acct-1", Amount: 100_000})
	require.NoError(t, err)

	gw := &gatewayMock{}
	h := NewTaskHandler(f.svc, gw)

	require.NoError(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))

	got, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusProcessing), got.Status)
	require.Equal(t, "gw-1", got.GatewayID)

	// The gateway receives the net amount and the code as idempotency key.
	require.Len(t, gw.requests, 1)
	require.Equal(t, d.Code, gw.requests[0].Code)
	require.Equal(t, int64(95_000), gw.requests[0].Amount)

	// A redelivered task finds the gateway reference recorded and stops.
	require.NoError(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))
	require.Len(t, gw.requests, 1)
}

func TestHandleSubmitTerminalRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedAccount(t, verifiedAccount("acct-1", "org-1"))
	f.credit(t, "org-1", 200_000)

	d, err := f.svc.Request(ctx, RequestParams{OrganizerID: "org-1", PayoutAccountID: "acct-1", Amount: 100_000})
	require.NoError(t, err)

	gw := &gatewayMock{createFn: func(ctx context.Context, req *gateway.DisbursementRequest) (*gateway.DisbursementResult, error) {
		return nil, errutil.BadGateway("gateway rejected request with 400", gateway.ErrRejected)
	}}
	h := NewTaskHandler(f.svc, gw)

	require.NoError(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))

	got, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusFailed), got.Status)

	// The reservation is released.
	require.Equal(t, int64(200_000), f.balance(t, "org-1"))
}

func TestHandleSubmitTransientErrorRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedAccount(t, verifiedAccount("acct-1", "org-1"))
	f.credit(t, "org-1", 200_000)

	d, err := f.svc.Request(ctx, RequestParams{OrganizerID: "org-1", PayoutAccountID: "acct-1", Amount: 100_000})
	require.NoError(t, err)

	gw := &gatewayMock{createFn: func(ctx context.Context, req *gateway.DisbursementRequest) (*gateway.DisbursementResult, error) {
		return nil, errutil.GatewayTimeout("gateway did not respond in time", nil)
	}}
	h := NewTaskHandler(f.svc, gw)

	// The error propagates so asynq retries. The payout stays reserved and
	// holds PROCESSING with no gateway reference.
	require.Error(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))

	got, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusProcessing), got.Status)
	require.Empty(t, got.GatewayID)
	require.Equal(t, int64(100_000), f.balance(t, "org-1"))

	// The next delivery resumes the submission with the same code.
	gw.createFn = nil
	require.NoError(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))
	require.Len(t, gw.requests, 2)
	require.Equal(t, gw.requests[0].Code, gw.requests[1].Code)

	got, err = f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusProcessing), got.Status)
	require.Equal(t, "gw-1", got.GatewayID)
}

func TestHandleSubmitExcludesConcurrentCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedAccount(t, verifiedAccount("acct-1", "org-1"))
	f.credit(t, "org-1", 200_000)

	d, err := f.svc.Request(ctx, RequestParams{OrganizerID: "org-1", PayoutAccountID: "acct-1", Amount: 100_000})
	require.NoError(t, err)

	// A cancel that lands while the gateway call is in flight must not
	// release the reservation: the money is leaving the platform.
	var cancelErr error
	gw := &gatewayMock{createFn: func(ctx context.Context, req *gateway.DisbursementRequest) (*gateway.DisbursementResult, error) {
		_, cancelErr = f.svc.Cancel(ctx, d.ID)
		return &gateway.DisbursementResult{GatewayID: "gw-1"}, nil
	}}
	h := NewTaskHandler(f.svc, gw)

	require.NoError(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))

	require.Error(t, cancelErr)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(cancelErr))

	got, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusProcessing), got.Status)
	require.Equal(t, "gw-1", got.GatewayID)
	require.Len(t, gw.requests, 1)

	// The debit still stands.
	require.Equal(t, int64(100_000), f.balance(t, "org-1"))
}

func TestHandleSubmitAfterCancelSkipsGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedAccount(t, verifiedAccount("acct-1", "org-1"))
	f.credit(t, "org-1", 200_000)

	d, err := f.svc.Request(ctx, RequestParams{OrganizerID: "org-1", PayoutAccountID: "acct-1", Amount: 100_000})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, int64(200_000), f.balance(t, "org-1"))

	gw := &gatewayMock{}
	h := NewTaskHandler(f.svc, gw)

	require.NoError(t, h.HandleSubmit(ctx, submitTask(t, d.ID)))
	require.Empty(t, gw.requests)

	got, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusCancelled), got.Status)
}

func TestHandleSubmitUnknownDisbursement(t *testing.T) {
	f := newFixture(t)

	h := NewTaskHandler(f.svc, &gatewayMock{})
	require.NoError(t, h.HandleSubmit(context.Background(), submitTask(t, "missing")))
}
