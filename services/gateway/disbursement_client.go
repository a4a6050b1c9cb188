package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"eventpay/pkg/errutil"

	"go.uber.org/zap"
)

// payoutGateway talks to the disbursement processor. Inbound callbacks carry
// a shared token header compared in constant time.
type payoutGateway struct {
	client        *apiClient
	baseURL       string
	apiKey        string
	callbackToken string
}

func NewDisbursementGateway(baseURL, apiKey, callbackToken string, client *apiClient) DisbursementGateway {
	return &payoutGateway{
		client:        client,
		baseURL:       baseURL,
		apiKey:        apiKey,
		callbackToken: callbackToken,
	}
}

type createDisbursementRequest struct {
	ExternalID        string `json:"external_id"`
	Amount            int64  `json:"amount"`
	BankCode          string `json:"bank_code"`
	AccountNumber     string `json:"account_number"`
	AccountHolderName string `json:"account_holder_name"`
	Description       string `json:"description,omitempty"`
}

type createDisbursementResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *payoutGateway) CreateDisbursement(ctx context.Context, req *DisbursementRequest) (*DisbursementResult, error) {
	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("disbursement amount must be positive", nil)
	}

	body := createDisbursementRequest{
		ExternalID:        req.Code,
		Amount:            req.Amount,
		BankCode:          req.BankCode,
		AccountNumber:     req.AccountNumber,
		AccountHolderName: req.HolderName,
		Description:       req.Description,
	}

	var resp createDisbursementResponse
	headers := map[string]string{"Authorization": "Basic " + g.apiKey}
	if err := g.client.postJSON(ctx, g.baseURL+"/v1/disbursements", "create_disbursement", headers, body, &resp); err != nil {
		return nil, err
	}

	if resp.ID == "" {
		return nil, errutil.BadGateway("gateway response missing disbursement id", nil)
	}

	return &DisbursementResult{GatewayID: resp.ID}, nil
}

func (g *payoutGateway) VerifyCallbackToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(g.callbackToken), []byte(token)) == 1
}

type disbursementCallback struct {
	ID            string `json:"id"`
	ExternalID    string `json:"external_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_code"`
}

func (g *payoutGateway) ParseEvent(payload []byte) (*DisbursementEvent, error) {
	var p disbursementCallback
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errutil.BadRequest("malformed disbursement callback", err)
	}

	if p.ID == "" && p.ExternalID == "" {
		return nil, errutil.BadRequest("disbursement callback missing identifiers", nil)
	}

	status := mapDisbursementStatus(p.Status)
	if status == DisbursementUnknown {
		zap.L().Warn("unknown disbursement status",
			zap.String("gateway_id", p.ID),
			zap.String("external_id", p.ExternalID),
			zap.String("status", p.Status),
		)
	}

	return &DisbursementEvent{
		GatewayID:     p.ID,
		Code:          p.ExternalID,
		Status:        status,
		FailureReason: p.FailureReason,
	}, nil
}

func mapDisbursementStatus(s string) DisbursementStatus {
	switch s {
	case "COMPLETED", "DONE":
		return DisbursementCompleted
	case "FAILED":
		return DisbursementFailed
	case "PENDING", "PROCESSING":
		return DisbursementProcessing
	default:
		return DisbursementUnknown
	}
}
