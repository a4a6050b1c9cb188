package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"eventpay/pkg/errutil"

	"go.uber.org/zap"
)

// snapGateway talks to the payment processor's order API. Webhook payloads
// are authenticated with an HMAC-SHA256 signature over the raw body.
type snapGateway struct {
	client    *apiClient
	baseURL   string
	serverKey string
}

func NewPaymentGateway(baseURL, serverKey string, client *apiClient) PaymentGateway {
	return &snapGateway{
		client:    client,
		baseURL:   baseURL,
		serverKey: serverKey,
	}
}

type createOrderRequest struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
	Currency    string `json:"currency"`
	CustomerID  string `json:"customer_id"`
	Description string `json:"description,omitempty"`
}

type createOrderResponse struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
	Token       string `json:"token"`
}

func (g *snapGateway) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("order amount must be positive", nil)
	}

	body := createOrderRequest{
		OrderID:     req.OrderCode,
		GrossAmount: req.Amount,
		Currency:    req.Currency,
		CustomerID:  req.CustomerID,
		Description: req.Description,
	}

	var resp createOrderResponse
	headers := map[string]string{"Authorization": "Basic " + g.serverKey}
	if err := g.client.postJSON(ctx, g.baseURL+"/v1/orders", "create_order", headers, body, &resp); err != nil {
		return nil, err
	}

	if resp.OrderID == "" {
		return nil, errutil.BadGateway("gateway response missing order id", nil)
	}

	return &OrderResult{
		GatewayOrderID: resp.OrderID,
		RedirectURL:    resp.RedirectURL,
		Token:          resp.Token,
	}, nil
}

func (g *snapGateway) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.serverKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

type webhookPayload struct {
	OrderID           string `json:"order_id"`
	Reference         string `json:"reference"`
	TransactionStatus string `json:"transaction_status"`
	FailureReason     string `json:"failure_reason"`
}

func (g *snapGateway) ParseEvent(payload []byte) (*NormalizedEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errutil.BadRequest("malformed webhook payload", err)
	}

	if p.OrderID == "" {
		return nil, errutil.BadRequest("webhook payload missing order_id", nil)
	}

	status := mapTransactionStatus(p.TransactionStatus)
	if status == StatusUnknown {
		zap.L().Warn("unknown gateway transaction status",
			zap.String("order_id", p.OrderID),
			zap.String("transaction_status", p.TransactionStatus),
		)
	}

	return &NormalizedEvent{
		OrderCode:     p.OrderID,
		GatewayRef:    p.Reference,
		Status:        status,
		FailureReason: p.FailureReason,
	}, nil
}

func mapTransactionStatus(s string) PaymentStatus {
	switch s {
	case "settlement", "capture", "success":
		return StatusSuccess
	case "deny", "failure", "cancel":
		return StatusFailed
	case "expire", "expired":
		return StatusExpired
	case "pending":
		return StatusPending
	default:
		return StatusUnknown
	}
}
