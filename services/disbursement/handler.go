package disbursement

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventpay/pkg/errutil"
	"eventpay/pkg/httpapi"
	"eventpay/pkg/monitoring"
	"eventpay/services/gateway"
)

const callbackTokenHeader = "x-callback-token"

type Handler struct {
	svc *Service
	gw  gateway.DisbursementGateway
}

func NewHandler(svc *Service, gw gateway.DisbursementGateway) *Handler {
	return &Handler{svc: svc, gw: gw}
}

type requestPayoutBody struct {
	OrganizerID     string `json:"organizer_id" binding:"required"`
	PayoutAccountID string `json:"payout_account_id" binding:"required"`
	Amount          int64  `json:"amount" binding:"required"`
}

func (h *Handler) Request(c *gin.Context) {
	var body requestPayoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httpapi.Error(c, errutil.BadRequest("invalid request body", err))
		return
	}

	d, err := h.svc.Request(c.Request.Context(), RequestParams{
		OrganizerID:     body.OrganizerID,
		PayoutAccountID: body.PayoutAccountID,
		Amount:          body.Amount,
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.Created(c, d)
}

func (h *Handler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, d)
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	payouts, err := h.svc.List(c.Request.Context(), c.Query("organizer_id"), c.Query("status"), limit)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, payouts)
}

func (h *Handler) Cancel(c *gin.Context) {
	d, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, d)
}

func (h *Handler) Retry(c *gin.Context) {
	d, err := h.svc.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, d)
}

// Webhook receives disbursement status callbacks. Authentication is a shared
// callback token. As with payment webhooks, authenticated deliveries answer
// 200 even when stale so the gateway stops redelivering them.
func (h *Handler) Webhook(c *gin.Context) {
	if !h.gw.VerifyCallbackToken(c.GetHeader(callbackTokenHeader)) {
		monitoring.WebhookDeliveries.WithLabelValues("disbursement", "rejected").Inc()
		zap.L().Warn("rejected disbursement webhook with invalid token",
			zap.String("remote_addr", c.ClientIP()))
		httpapi.Error(c, errutil.Unauthorized("invalid callback token", nil))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		monitoring.WebhookDeliveries.WithLabelValues("disbursement", "read_error").Inc()
		httpapi.Error(c, errutil.BadRequest("failed to read request body", err))
		return
	}

	ev, err := h.gw.ParseEvent(body)
	if err != nil {
		monitoring.WebhookDeliveries.WithLabelValues("disbursement", "malformed").Inc()
		zap.L().Warn("authenticated disbursement webhook with malformed payload", zap.Error(err))
		httpapi.Accepted(c, "event ignored")
		return
	}

	if err := h.svc.ApplyEvent(c.Request.Context(), ev); err != nil {
		if errutil.StatusOf(err) == errutil.StatusNotFound {
			monitoring.WebhookDeliveries.WithLabelValues("disbursement", "dropped").Inc()
			zap.L().Warn("dropping callback for unknown disbursement",
				zap.String("gateway_id", ev.GatewayID))
			httpapi.Accepted(c, "event ignored")
			return
		}

		monitoring.WebhookDeliveries.WithLabelValues("disbursement", "error").Inc()
		httpapi.Error(c, err)
		return
	}

	monitoring.WebhookDeliveries.WithLabelValues("disbursement", "processed").Inc()
	httpapi.Accepted(c, "event processed")
}
