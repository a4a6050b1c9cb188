package disbursement

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("disbursement.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

var TaskModule = fx.Module("disbursement.task",
	fx.Provide(NewService, NewTaskHandler),
	fx.Invoke(registerTaskHandlers),
)

func registerRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/v1/payouts")
	g.POST("", h.Request)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/retry", h.Retry)

	engine.POST("/webhooks/disbursement", h.Webhook)
}
