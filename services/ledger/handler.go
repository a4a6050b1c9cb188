package ledger

import (
	"strconv"

	"eventpay/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetBalance(c *gin.Context) {
	organizerID := c.Param("id")

	balance, err := h.svc.Balance(c.Request.Context(), nil, organizerID)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, gin.H{
		"organizer_id": organizerID,
		"balance":      balance,
	})
}

func (h *Handler) ListEntries(c *gin.Context) {
	organizerID := c.Param("id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.svc.List(c.Request.Context(), organizerID, limit)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, entries)
}

func (h *Handler) VerifyChain(c *gin.Context) {
	organizerID := c.Param("id")

	valid, err := h.svc.VerifyChain(c.Request.Context(), organizerID)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, gin.H{"valid": valid})
}
