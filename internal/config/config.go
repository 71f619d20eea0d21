// Package config содержит логику чтения конфигурации сервиса credpulse.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса credpulse.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	PayPalAPIBaseURL   string `env:"PAYPAL_API_BASE_URL"`
	PayPalClientID     string `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `env:"PAYPAL_CLIENT_SECRET"`

	// DispatchInterval равный нулю отключает периодический запуск джоба выплат.
	DispatchInterval     time.Duration `env:"DISPATCH_INTERVAL"`
	DispatchBatchSize    int           `env:"DISPATCH_BATCH_SIZE"`
	StaleProcessingAfter time.Duration `env:"STALE_PROCESSING_AFTER"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения по умолчанию задаются до чтения окружения, поэтому явно выставленный
// DISPATCH_INTERVAL=0 сохраняется и отключает планировщик.
func Parse() (*Config, error) {
	cfg := &Config{
		DispatchInterval:     5 * time.Minute,
		DispatchBatchSize:    10,
		StaleProcessingAfter: 30 * time.Minute,
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPayPalBaseURL := cfg.PayPalAPIBaseURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PayPalAPIBaseURL, "p", "", "PayPal API base URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPayPalBaseURL != "" {
		cfg.PayPalAPIBaseURL = envPayPalBaseURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DispatchBatchSize <= 0 {
		cfg.DispatchBatchSize = 10
	}
	if cfg.StaleProcessingAfter <= 0 {
		cfg.StaleProcessingAfter = 30 * time.Minute
	}

	return cfg, nil
}
