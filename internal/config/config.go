package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

// Config is the runtime configuration, read from the environment. Policy
// choices that belong to the cooperative (formula, thresholds, cadence)
// live in the policy file instead, see Policy.
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"coopledger.db"`
	PolicyPath     string `env:"POLICY_PATH" envDefault:"coopledger.yaml"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv         string `env:"APP_ENV" envDefault:"production"`

	// MetricsAddr exposes the Prometheus endpoint when set, e.g. ":9410".
	// Empty disables it.
	MetricsAddr string `env:"METRICS_ADDR"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
}

// Load parses the runtime configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
