package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type QuotesConfig struct {
	MaxContractors      int
	QuotationTTL        time.Duration
	CommissionRate      string
	OverpriceRate       string
	VATRate             string
	CancellationPenalty string
}

type SchedulerConfig struct {
	Interval time.Duration
}

// ContractorsConfig points at the contractor directory service. An empty
// BaseURL disables eligibility verification on assignment.
type ContractorsConfig struct {
	BaseURL string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Quotes      QuotesConfig
	Scheduler   SchedulerConfig
	Contractors ContractorsConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Quotes: QuotesConfig{
			MaxContractors:      v.GetInt("QUOTES_MAX_CONTRACTORS"),
			QuotationTTL:        v.GetDuration("QUOTES_QUOTATION_TTL"),
			CommissionRate:      v.GetString("QUOTES_COMMISSION_RATE"),
			OverpriceRate:       v.GetString("QUOTES_OVERPRICE_RATE"),
			VATRate:             v.GetString("QUOTES_VAT_RATE"),
			CancellationPenalty: v.GetString("QUOTES_CANCELLATION_PENALTY"),
		},
		Scheduler: SchedulerConfig{
			Interval: v.GetDuration("SCHEDULER_INTERVAL"),
		},
		Contractors: ContractorsConfig{
			BaseURL: v.GetString("CONTRACTOR_SERVICE_URL"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.Quotes.MaxContractors == 0 {
		cfg.Quotes.MaxContractors = 5
	}
	if cfg.Quotes.QuotationTTL == 0 {
		cfg.Quotes.QuotationTTL = 14 * 24 * time.Hour
	}
	if cfg.Quotes.CommissionRate == "" {
		cfg.Quotes.CommissionRate = "0.15"
	}
	if cfg.Quotes.OverpriceRate == "" {
		cfg.Quotes.OverpriceRate = "0.10"
	}
	if cfg.Quotes.VATRate == "" {
		cfg.Quotes.VATRate = "0.15"
	}
	if cfg.Quotes.CancellationPenalty == "" {
		cfg.Quotes.CancellationPenalty = "0"
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Hour
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Quotes.MaxContractors < 1 {
		return fmt.Errorf("QUOTES_MAX_CONTRACTORS must be positive")
	}
	return nil
}
