package cancellation

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"eventpay/pkg/errutil"
	"eventpay/pkg/httpapi"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CancelEvent(c *gin.Context) {
	result, err := h.svc.CancelEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, result)
}

type updateRefundBody struct {
	Status        string `json:"status" binding:"required"`
	FailureReason string `json:"failure_reason"`
}

func (h *Handler) UpdateRefundStatus(c *gin.Context) {
	var body updateRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httpapi.Error(c, errutil.BadRequest("invalid request body", err))
		return
	}

	refund, err := h.svc.UpdateRefundStatus(c.Request.Context(), c.Param("id"),
		RefundStatus(body.Status), body.FailureReason)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, refund)
}

func (h *Handler) ListRefunds(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	refunds, err := h.svc.ListRefunds(c.Request.Context(), c.Query("event_id"), c.Query("status"), limit)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, refunds)
}
