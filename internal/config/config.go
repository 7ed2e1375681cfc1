// Package config содержит логику чтения конфигурации сервиса счетов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress         = "localhost:8080"
	defaultInvoicesCollection = "invoices"
)

// Backend - выбранное хранилище счетов и учётных записей.
type Backend string

const (
	BackendHosted   Backend = "hosted"
	BackendPostgres Backend = "postgres"
)

// Config содержит параметры конфигурации сервиса счетов.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	BackendEndpoint    string `env:"BACKEND_ENDPOINT"`
	BackendProject     string `env:"BACKEND_PROJECT_ID"`
	BackendAPIKey      string `env:"BACKEND_API_KEY"`
	BackendDatabase    string `env:"BACKEND_DATABASE_ID"`
	InvoicesCollection string `env:"INVOICES_COLLECTION_ID"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	SessionSecret          string        `env:"SESSION_SECRET"`
	SessionTTL             time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	CookieSecure           bool          `env:"COOKIE_SECURE"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	Timezone    string   `env:"TIMEZONE" envDefault:"UTC"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBackendEndpoint := cfg.BackendEndpoint
	envCollection := cfg.InvoicesCollection
	envRedisAddr := cfg.RedisAddr

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BackendEndpoint, "b", "", "hosted backend endpoint")
	flag.StringVar(&cfg.InvoicesCollection, "c", defaultInvoicesCollection, "invoices collection ID")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBackendEndpoint != "" {
		cfg.BackendEndpoint = envBackendEndpoint
	}
	if envCollection != "" {
		cfg.InvoicesCollection = envCollection
	}
	if envRedisAddr != "" {
		cfg.RedisAddr = envRedisAddr
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.InvoicesCollection == "" {
		cfg.InvoicesCollection = defaultInvoicesCollection
	}

	return cfg, nil
}

// Backend выбирает хранилище: размещённый бэкенд, если задан его адрес,
// иначе PostgreSQL.
func (c *Config) Backend() (Backend, error) {
	switch {
	case c.BackendEndpoint != "":
		if c.BackendProject == "" || c.BackendDatabase == "" {
			return "", errors.New("hosted backend requires BACKEND_PROJECT_ID and BACKEND_DATABASE_ID")
		}
		return BackendHosted, nil
	case c.DatabaseURI != "":
		return BackendPostgres, nil
	}
	return "", errors.New("either backend endpoint or database URI must be set")
}

// Location возвращает пояс, в котором считаются календарные дни.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
