package settlement

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler) {
	engine.POST("/webhooks/payment", h.Webhook)
	engine.POST("/v1/payments/:id/trigger-registration", h.TriggerRegistration)
}
