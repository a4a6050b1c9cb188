package gateway

import (
	"eventpay/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(
		providePaymentGateway,
		provideDisbursementGateway,
		provideFees,
	),
)

func providePaymentGateway(cfg *config.Config) PaymentGateway {
	pg := cfg.PaymentGateway
	client := newAPIClient("payment", pg.Timeout, pg.MaxRetries)
	return NewPaymentGateway(pg.BaseURL, pg.ServerKey, client)
}

func provideDisbursementGateway(cfg *config.Config) DisbursementGateway {
	dg := cfg.DisbursementGateway
	client := newAPIClient("disbursement", dg.Timeout, dg.MaxRetries)
	return NewDisbursementGateway(dg.BaseURL, dg.APIKey, dg.CallbackToken, client)
}

func provideFees(cfg *config.Config) (*Fees, error) {
	platform, err := NewFeeTable(cfg.Fees.PlatformFixed, cfg.Fees.PlatformPercent)
	if err != nil {
		return nil, err
	}

	payout, err := NewFeeTable(cfg.Fees.PayoutFixed, cfg.Fees.PayoutPercent)
	if err != nil {
		return nil, err
	}

	return &Fees{Platform: platform, Payout: payout}, nil
}
