// Package config содержит логику чтения конфигурации сервиса sponsorpay.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Допустимые платёжные провайдеры.
const (
	ProviderMock   = "mock"
	ProviderStripe = "stripe"
)

// Config содержит параметры конфигурации сервиса sponsorpay.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	TrackingFile    string `env:"TRACKING_FILE"`
	BaseURL         string `env:"BASE_URL"`
	PaymentProvider string `env:"PAYMENT_PROVIDER"`
	StripeAddress   string `env:"STRIPE_ADDRESS"`
	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Переменные окружения имеют приоритет над флагами. Секретный
// ключ шлюза задаётся только через окружение.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envTrackingFile := cfg.TrackingFile
	envBaseURL := cfg.BaseURL
	envPaymentProvider := cfg.PaymentProvider
	envStripeAddress := cfg.StripeAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for the tracking ledger")
	flag.StringVar(&cfg.TrackingFile, "f", "tracking_data.json", "tracking ledger file path")
	flag.StringVar(&cfg.BaseURL, "b", "http://localhost:8080", "public base URL for tracking pixels")
	flag.StringVar(&cfg.PaymentProvider, "p", ProviderMock, "payment provider: mock or stripe")
	flag.StringVar(&cfg.StripeAddress, "g", "https://api.stripe.com", "payment gateway API address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envTrackingFile != "" {
		cfg.TrackingFile = envTrackingFile
	}
	if envBaseURL != "" {
		cfg.BaseURL = envBaseURL
	}
	if envPaymentProvider != "" {
		cfg.PaymentProvider = envPaymentProvider
	}
	if envStripeAddress != "" {
		cfg.StripeAddress = envStripeAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.PaymentProvider != ProviderMock && cfg.PaymentProvider != ProviderStripe {
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}

	if cfg.PaymentProvider == ProviderStripe && cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe provider")
	}

	return cfg, nil
}
