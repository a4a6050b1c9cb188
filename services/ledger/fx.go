package ledger

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, h *Handler) {
	g := engine.Group("/v1/organizers")
	g.GET("/:id/balance", h.GetBalance)
	g.GET("/:id/ledger", h.ListEntries)
	g.GET("/:id/ledger/verify", h.VerifyChain)
}
