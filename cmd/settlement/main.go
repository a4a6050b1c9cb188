package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/config"
	"eventpay/pkg/db"
	"eventpay/pkg/health"
	"eventpay/pkg/logger"
	"eventpay/pkg/monitoring"
	"eventpay/pkg/redis"
	"eventpay/pkg/sequence"
	"eventpay/pkg/server"
	"eventpay/pkg/task"
	"eventpay/services/cancellation"
	"eventpay/services/disbursement"
	"eventpay/services/gateway"
	"eventpay/services/ledger"
	"eventpay/services/notify"
	"eventpay/services/payment"
	"eventpay/services/registration"
	"eventpay/services/settlement"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(migrate),
		gateway.Module,
		notify.Module,
		ledger.Module,
		payment.Module,
		settlement.Module,
		disbursement.Module,
		cancellation.Module,
		health.Module,
		monitoring.Module,
		server.ProvideHTTPServer,
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

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&payment.Payment{},
		&registration.Registration{},
		&registration.Event{},
		&ledger.BalanceTransaction{},
		&disbursement.Disbursement{},
		&disbursement.PayoutAccount{},
		&cancellation.RefundRequest{},
	)
}
