package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	PaymentGateway struct {
		BaseURL    string        `mapstructure:"BASE_URL"`
		ServerKey  string        `mapstructure:"SERVER_KEY"`
		Timeout    time.Duration `mapstructure:"TIMEOUT"`
		MaxRetries int           `mapstructure:"MAX_RETRIES"`
	} `mapstructure:"PAYMENT_GATEWAY"`
	DisbursementGateway struct {
		BaseURL       string        `mapstructure:"BASE_URL"`
		APIKey        string        `mapstructure:"API_KEY"`
		CallbackToken string        `mapstructure:"CALLBACK_TOKEN"`
		Timeout       time.Duration `mapstructure:"TIMEOUT"`
		MaxRetries    int           `mapstructure:"MAX_RETRIES"`
	} `mapstructure:"DISBURSEMENT_GATEWAY"`
	Fees struct {
		PlatformFixed   int64  `mapstructure:"PLATFORM_FIXED"`
		PlatformPercent string `mapstructure:"PLATFORM_PERCENT"`
		PayoutFixed     int64  `mapstructure:"PAYOUT_FIXED"`
		PayoutPercent   string `mapstructure:"PAYOUT_PERCENT"`
	} `mapstructure:"FEES"`
	RefundPolicy []RefundTier `mapstructure:"REFUND_POLICY"`
}

// RefundTier grants Percent of the paid amount when the event starts at
// least HoursBefore hours from now. Tiers are evaluated highest first.
type RefundTier struct {
	HoursBefore int `mapstructure:"HOURS_BEFORE"`
	Percent     int `mapstructure:"PERCENT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if len(cfg.RefundPolicy) == 0 {
		cfg.RefundPolicy = DefaultRefundPolicy()
	}

	return &cfg
}

func DefaultRefundPolicy() []RefundTier {
	return []RefundTier{
		{HoursBefore: 168, Percent: 100},
		{HoursBefore: 72, Percent: 50},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "eventpay")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("PAYMENT_GATEWAY.TIMEOUT", 5*time.Second)
	v.SetDefault("PAYMENT_GATEWAY.MAX_RETRIES", 2)
	v.SetDefault("DISBURSEMENT_GATEWAY.TIMEOUT", 5*time.Second)
	v.SetDefault("DISBURSEMENT_GATEWAY.MAX_RETRIES", 2)
	v.SetDefault("FEES.PLATFORM_FIXED", 2000)
	v.SetDefault("FEES.PLATFORM_PERCENT", "2.5")
	v.SetDefault("FEES.PAYOUT_FIXED", 5000)
	v.SetDefault("FEES.PAYOUT_PERCENT", "0")
}
