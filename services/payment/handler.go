package payment

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

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Error(c, errutil.BadRequest("invalid request body", err))
		return
	}

	result, err := h.svc.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.Created(c, result)
}

func (h *Handler) Get(c *gin.Context) {
	pmt, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, pmt)
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	payments, err := h.svc.List(c.Request.Context(), ListFilter{
		UserID:  c.Query("user_id"),
		EventID: c.Query("event_id"),
		Status:  c.Query("status"),
		Limit:   limit,
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, payments)
}

func (h *Handler) EstimateFee(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		httpapi.Error(c, errutil.ValidationFailed("amount must be an integer", err))
		return
	}

	fee, err := h.svc.EstimateFee(amount)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, fee)
}
