// Package config содержит логику чтения конфигурации сервиса учёта недостач.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultAuthSecret = "fulfillment-dev-secret"
	defaultKafkaTopic = "shortage-events"
)

// Config содержит параметры конфигурации сервиса учёта недостач.
type Config struct {
	RunAddress         string   `env:"RUN_ADDRESS"`
	DatabaseURI        string   `env:"DATABASE_URI"`
	DebtServiceAddress string   `env:"DEBT_SERVICE_ADDRESS"`
	AuthSecret         string   `env:"AUTH_SECRET"`
	KafkaBrokers       string   `env:"KAFKA_BROKERS"`
	KafkaTopic         string   `env:"KAFKA_TOPIC"`
	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:","`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.DebtServiceAddress, "r", "", "customer debt service address")
	flag.StringVar(&cfg.AuthSecret, "s", defaultAuthSecret, "token signing secret")
	flag.StringVar(&cfg.KafkaBrokers, "k", "", "comma separated kafka brokers")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.DebtServiceAddress != "" {
		cfg.DebtServiceAddress = envCfg.DebtServiceAddress
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}
	if envCfg.KafkaBrokers != "" {
		cfg.KafkaBrokers = envCfg.KafkaBrokers
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = defaultAuthSecret
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = defaultKafkaTopic
	}

	return cfg, nil
}

// UsesDefaultSecret сообщает, что токены подписываются секретом по умолчанию.
func (c *Config) UsesDefaultSecret() bool {
	return c.AuthSecret == defaultAuthSecret
}
