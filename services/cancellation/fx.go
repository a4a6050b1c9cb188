package cancellation

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("cancellation.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler) {
	engine.POST("/v1/events/:id/cancel", h.CancelEvent)
	engine.POST("/v1/refunds/:id/status", h.UpdateRefundStatus)
	engine.GET("/v1/refunds", h.ListRefunds)
}
