package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Security  SecurityConfig  `yaml:"security"`
	QuickTest QuickTestConfig `yaml:"quicktest"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures PostgreSQL. An empty URL runs the service on
// in-memory stores.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxConns        int    `yaml:"max_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// SecurityConfig extends the built-in generated code policy.
type SecurityConfig struct {
	MaxComplexity       int      `yaml:"max_complexity"`
	ExtraAllowedImports []string `yaml:"extra_allowed_imports"`
}

// QuickTestConfig configures quick test execution.
type QuickTestConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	RunningTimeout string `yaml:"running_timeout"`
	SweepInterval  string `yaml:"sweep_interval"`

	// Decimal values are strings so they survive YAML without float rounding.
	InitialCapital string `yaml:"initial_capital"`
	CommissionRate string `yaml:"commission_rate"`
	Slippage       string `yaml:"slippage"`
	Lookback       string `yaml:"lookback"`
	Frequency      string `yaml:"frequency"`
	Benchmark      string `yaml:"benchmark"`
}

// EngineConfig points at the backtest engine.
type EngineConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:3003"},
			ShutdownTimeout: "5s",
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnMaxLifetime: "1h",
		},
		Security: SecurityConfig{
			MaxComplexity: 25,
		},
		QuickTest: QuickTestConfig{
			Workers:        4,
			QueueSize:      64,
			RunningTimeout: "15m",
			SweepInterval:  "1m",
			InitialCapital: "100000",
			CommissionRate: "0.001",
			Slippage:       "0.0005",
			Lookback:       "2160h",
			Frequency:      "1d",
			Benchmark:      "SPY",
		},
		Engine: EngineConfig{
			URL:     "http://localhost:9000",
			Timeout: "10m",
		},
		Logging: LoggingConfig{
			Level: "debug",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file location from CONFIG_PATH, or config.yaml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if url := os.Getenv("BACKTEST_ENGINE_URL"); url != "" {
		c.Engine.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Engine.URL == "" {
		errs = append(errs, errors.New("engine.url is required"))
	}
	if c.Security.MaxComplexity <= 0 {
		errs = append(errs, errors.New("security.max_complexity must be positive"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("database.max_conns must be positive"))
	}
	if c.QuickTest.Workers <= 0 {
		errs = append(errs, errors.New("quicktest.workers must be positive"))
	}
	if c.QuickTest.QueueSize <= 0 {
		errs = append(errs, errors.New("quicktest.queue_size must be positive"))
	}
	if c.QuickTest.Frequency == "" || c.QuickTest.Benchmark == "" {
		errs = append(errs, errors.New("quicktest.frequency and quicktest.benchmark are required"))
	}

	for name, value := range map[string]string{
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"quicktest.running_timeout":  c.QuickTest.RunningTimeout,
		"quicktest.sweep_interval":   c.QuickTest.SweepInterval,
		"quicktest.lookback":         c.QuickTest.Lookback,
		"engine.timeout":             c.Engine.Timeout,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: %q is not a positive duration", name, value))
		}
	}

	for name, value := range map[string]string{
		"quicktest.initial_capital": c.QuickTest.InitialCapital,
		"quicktest.commission_rate": c.QuickTest.CommissionRate,
		"quicktest.slippage":        c.QuickTest.Slippage,
	} {
		if d, err := decimal.NewFromString(value); err != nil || d.IsNegative() {
			errs = append(errs, fmt.Errorf("%s: %q is not a non-negative decimal", name, value))
		}
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ShutdownTimeout returns how long the server may take to drain.
func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 5*time.Second)
}

// RunningTimeout returns the ceiling after which a running quick test is failed.
func (c *Config) RunningTimeout() time.Duration {
	return duration(c.QuickTest.RunningTimeout, 15*time.Minute)
}

// SweepInterval returns how often timed out quick tests are swept.
func (c *Config) SweepInterval() time.Duration {
	return duration(c.QuickTest.SweepInterval, time.Minute)
}

// Lookback returns the default quick test window.
func (c *Config) Lookback() time.Duration {
	return duration(c.QuickTest.Lookback, 90*24*time.Hour)
}

// EngineTimeout returns the backtest engine request timeout.
func (c *Config) EngineTimeout() time.Duration {
	return duration(c.Engine.Timeout, 10*time.Minute)
}

// ConnMaxLifetime returns how long a pooled connection may be reused.
func (c *Config) ConnMaxLifetime() time.Duration {
	return duration(c.Database.ConnMaxLifetime, time.Hour)
}

// InitialCapital returns the default quick test capital.
func (c *Config) InitialCapital() decimal.Decimal {
	return decimalOr(c.QuickTest.InitialCapital, decimal.NewFromInt(100_000))
}

// CommissionRate returns the commission rate applied to quick tests.
func (c *Config) CommissionRate() decimal.Decimal {
	return decimalOr(c.QuickTest.CommissionRate, decimal.RequireFromString("0.001"))
}

// Slippage returns the slippage applied to quick tests.
func (c *Config) Slippage() decimal.Decimal {
	return decimalOr(c.QuickTest.Slippage, decimal.RequireFromString("0.0005"))
}

// LogLevel returns the configured slog level, or debug when it cannot be parsed.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return slog.LevelDebug
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("logging.level: %q is not a log level", s)
	}
	return level, nil
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func decimalOr(s string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}
