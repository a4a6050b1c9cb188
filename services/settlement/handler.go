package settlement

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventpay/pkg/errutil"
	"eventpay/pkg/httpapi"
	"eventpay/pkg/monitoring"
	"eventpay/services/gateway"
)

const signatureHeader = "x-callback-signature"

type Handler struct {
	svc *Service
	gw  gateway.PaymentGateway
}

func NewHandler(svc *Service, gw gateway.PaymentGateway) *Handler {
	return &Handler{svc: svc, gw: gw}
}

// Webhook receives payment notifications from the gateway. Once the
// signature checks out the endpoint answers 200 even when the event turns
// out to be stale or malformed, so the gateway does not retry deliveries
// that can never succeed. Only infrastructure failures return 5xx.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		monitoring.WebhookDeliveries.WithLabelValues("payment", "read_error").Inc()
		httpapi.Error(c, errutil.BadRequest("failed to read request body", err))
		return
	}

	if !h.gw.VerifySignature(body, c.GetHeader(signatureHeader)) {
		monitoring.WebhookDeliveries.WithLabelValues("payment", "rejected").Inc()
		zap.L().Warn("rejected payment webhook with invalid signature",
			zap.String("remote_addr", c.ClientIP()))
		httpapi.Error(c, errutil.Unauthorized("invalid webhook signature", nil))
		return
	}

	ev, err := h.gw.ParseEvent(body)
	if err != nil {
		monitoring.WebhookDeliveries.WithLabelValues("payment", "malformed").Inc()
		zap.L().Warn("authenticated payment webhook with malformed payload", zap.Error(err))
		httpapi.Accepted(c, "event ignored")
		return
	}

	if err := h.svc.ApplySettlement(c.Request.Context(), ev); err != nil {
		switch errutil.StatusOf(err) {
		case errutil.StatusNotFound, errutil.StatusConflict, errutil.StatusUnprocessableEntity:
			// Retrying the delivery cannot fix these.
			monitoring.WebhookDeliveries.WithLabelValues("payment", "dropped").Inc()
			zap.L().Warn("dropping unprocessable payment webhook",
				zap.String("order_code", ev.OrderCode),
				zap.Error(err),
			)
			httpapi.Accepted(c, "event ignored")
			return
		}

		monitoring.WebhookDeliveries.WithLabelValues("payment", "error").Inc()
		httpapi.Error(c, err)
		return
	}

	monitoring.WebhookDeliveries.WithLabelValues("payment", "processed").Inc()
	httpapi.Accepted(c, "event processed")
}

func (h *Handler) TriggerRegistration(c *gin.Context) {
	reg, err := h.svc.TriggerRegistration(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, reg)
}
