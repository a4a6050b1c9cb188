package payment

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/v1")
	g.POST("/payments", h.CreateOrder)
	g.GET("/payments", h.List)
	g.GET("/payments/:id", h.Get)
	g.GET("/fees/estimate", h.EstimateFee)
}
