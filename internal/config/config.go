package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseDSN       string        `env:"DATABASE_URI"`
	MigrationsDir     string        `env:"MIGRATIONS_DIR"`
	JWTSecret         string        `env:"JWT_SECRET"`
	PaymentAPIAddress string        `env:"PAYMENT_API_ADDRESS"`
	DefaultCurrency   string        `env:"DEFAULT_CURRENCY"`
	TaxTolerance      int64         `env:"TAX_TOLERANCE"`
	RefundPollLimit   uint          `env:"REFUND_POLL_LIMIT"`
	RefundPollWorkers uint          `env:"REFUND_POLL_WORKERS"`
	RefundPollPeriod  time.Duration `env:"REFUND_POLL_PERIOD"`
}

func LoadConfig() (*Config, error) {
	// локальный .env необязателен: в проде настройки приходят из окружения
	_ = godotenv.Load()

	var flagsConfig, envConfig Config

	if envParseErr := env.Parse(&envConfig); envParseErr != nil {
		return nil, fmt.Errorf("parse env config: %s", envParseErr.Error())
	}

	loadFlags(&flagsConfig)

	conf := mergeConfig(&envConfig, &flagsConfig)
	if conf.DatabaseDSN == "" {
		return nil, errors.New("database DSN is not set")
	}
	if conf.JWTSecret == "" {
		return nil, errors.New("JWT secret is not set")
	}
	return conf, nil
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return config
}

func loadFlags(flagConfig *Config) {
	flag.StringVar(&flagConfig.RunAddress, "a", "localhost:8080", "Run address in format host:port")
	flag.StringVar(&flagConfig.DatabaseDSN, "d", "", "Database DSN")
	flag.StringVar(&flagConfig.MigrationsDir, "m", "internal/db/migrations", "Database migrations directory")
	flag.StringVar(&flagConfig.JWTSecret, "s", "", "JWT signing secret")
	flag.StringVar(&flagConfig.PaymentAPIAddress, "p", "", "Payment processor API base address")
	flag.StringVar(&flagConfig.DefaultCurrency, "c", "USD", "Default currency code")
	flag.Int64Var(&flagConfig.TaxTolerance, "t", 1, "Tax reconciliation tolerance in minor units")
	flag.UintVar(&flagConfig.RefundPollLimit, "refund-poll-limit", 100, "Refunds polled per iteration")
	flag.UintVar(&flagConfig.RefundPollWorkers, "refund-poll-workers", 10, "Refund poll workers")
	flag.DurationVar(&flagConfig.RefundPollPeriod, "refund-poll-period", 5*time.Second, "Pause between poll iterations")

	flag.Parse()
}

func mergeConfig(envConfig, flagsConfig *Config) *Config {
	conf := Config{
		RunAddress:        defaultIfBlank(envConfig.RunAddress, flagsConfig.RunAddress),
		DatabaseDSN:       defaultIfBlank(envConfig.DatabaseDSN, flagsConfig.DatabaseDSN),
		MigrationsDir:     defaultIfBlank(envConfig.MigrationsDir, flagsConfig.MigrationsDir),
		JWTSecret:         defaultIfBlank(envConfig.JWTSecret, flagsConfig.JWTSecret),
		PaymentAPIAddress: defaultIfBlank(envConfig.PaymentAPIAddress, flagsConfig.PaymentAPIAddress),
		DefaultCurrency:   defaultIfBlank(envConfig.DefaultCurrency, flagsConfig.DefaultCurrency),
		TaxTolerance:      envConfig.TaxTolerance,
		RefundPollLimit:   envConfig.RefundPollLimit,
		RefundPollWorkers: envConfig.RefundPollWorkers,
		RefundPollPeriod:  envConfig.RefundPollPeriod,
	}
	if conf.TaxTolerance == 0 {
		conf.TaxTolerance = flagsConfig.TaxTolerance
	}
	if conf.RefundPollLimit == 0 {
		conf.RefundPollLimit = flagsConfig.RefundPollLimit
	}
	if conf.RefundPollWorkers == 0 {
		conf.RefundPollWorkers = flagsConfig.RefundPollWorkers
	}
	if conf.RefundPollPeriod == 0 {
		conf.RefundPollPeriod = flagsConfig.RefundPollPeriod
	}
	return &conf
}

func defaultIfBlank(value string, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
