package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"eventpay/pkg/config"
	"eventpay/pkg/db"
	"eventpay/pkg/logger"
	"eventpay/pkg/redis"
	"eventpay/pkg/sequence"
	"eventpay/pkg/task"
	"eventpay/services/disbursement"
	"eventpay/services/gateway"
	"eventpay/services/ledger"
	"eventpay/services/notify"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		sequence.Module,
		fx.Provide(provideSnowflakeNode, ledger.NewService),
		gateway.Module,
		notify.Module,
		notify.TaskModule,
		disbursement.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
