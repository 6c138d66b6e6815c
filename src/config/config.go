package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-exchange/src/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Environment overrides, also read from a .env file next to the process.
const (
	EnvPort          = "EXCHANGE_PORT"
	EnvLogLevel      = "EXCHANGE_LOG_LEVEL"
	EnvDBType        = "EXCHANGE_DB_TYPE"
	EnvDBPath        = "EXCHANGE_DB_PATH"
	EnvDBConnString  = "EXCHANGE_DB_CONNECTION_STRING"
	EnvEnforceMarket = "EXCHANGE_ENFORCE_MARKET_HOURS"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse decodes YAML, applies defaults and environment overrides, then validates.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env: %w", err)
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "stock-exchange"
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcPort == 0 {
		c.GrpcPort = 50051
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.Schema == "" {
		c.Storage.Schema = "exchange"
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.ConcurrentRequests == 0 {
		c.Network.ConcurrentRequests = 8
	}
	if len(c.DataSource.Sources) == 0 {
		c.DataSource.Sources = []models.MSourceConfig{{Name: "nse"}}
	}
	if c.Quotes.CacheTTLSeconds == 0 {
		c.Quotes.CacheTTLSeconds = 5
	}
	if c.Quotes.CacheSize == 0 {
		c.Quotes.CacheSize = 100
	}
	if c.Quotes.FetchTimeoutSeconds == 0 {
		c.Quotes.FetchTimeoutSeconds = 10
	}
	if c.Broadcast.IntervalSeconds == 0 {
		c.Broadcast.IntervalSeconds = 3
	}
	if c.Broadcast.RetryBackoffMs == 0 {
		c.Broadcast.RetryBackoffMs = 1000
	}
	if c.Broadcast.SendBuffer == 0 {
		c.Broadcast.SendBuffer = 256
	}
	if c.Market.MIC == "" {
		c.Market.MIC = "xnse"
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "Asia/Kolkata"
	}
	if c.Market.OpenTime == "" {
		c.Market.OpenTime = "09:15"
	}
	if c.Market.CloseTime == "" {
		c.Market.CloseTime = "15:30"
	}
	if c.Accounts.DefaultBalance == "" {
		c.Accounts.DefaultBalance = "10000"
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvDBType); v != "" {
		c.Storage.DBType = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv(EnvDBConnString); v != "" {
		c.Storage.DBConnectionString = v
	}
	if v := os.Getenv(EnvEnforceMarket); v != "" {
		enforce, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", EnvEnforceMarket, v, err)
		}
		c.Market.EnforceHours = enforce
	}
	return nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort <= 1024 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent requests must be greater than 0")
	}

	// Sources
	for i, src := range c.DataSource.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d must have a name", i)
		}
	}

	// Quotes & broadcast
	if c.Quotes.CacheTTLSeconds <= 0 || c.Quotes.CacheSize <= 0 {
		return fmt.Errorf("quote cache ttl and size must be greater than 0")
	}
	if c.Quotes.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("quote fetch timeout must be greater than 0")
	}
	if c.Broadcast.IntervalSeconds <= 0 {
		return fmt.Errorf("broadcast interval must be greater than 0")
	}
	if c.Broadcast.RetryBackoffMs <= 0 {
		return fmt.Errorf("broadcast retry backoff must be greater than 0")
	}
	if c.Broadcast.SendBuffer <= 0 {
		return fmt.Errorf("broadcast send buffer must be greater than 0")
	}

	// Market session
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid market timezone '%s': %w", c.Market.Timezone, err)
	}
	for _, hhmm := range []string{c.Market.OpenTime, c.Market.CloseTime} {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return fmt.Errorf("invalid market session time '%s'", hhmm)
		}
	}

	// Accounts
	balance, err := decimal.NewFromString(strings.TrimSpace(c.Accounts.DefaultBalance))
	if err != nil {
		return fmt.Errorf("invalid default balance '%s': %w", c.Accounts.DefaultBalance, err)
	}
	if balance.IsNegative() {
		return fmt.Errorf("default balance cannot be negative")
	}

	return nil
}

// -----------------------------------------------------------------------------

// -----------------------------------------------------------------------------

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Quotes.CacheTTLSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Quotes.FetchTimeoutSeconds) * time.Second
}

func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.Broadcast.IntervalSeconds) * time.Second
}

func (c *Config) BroadcastBackoff() time.Duration {
	return time.Duration(c.Broadcast.RetryBackoffMs) * time.Millisecond
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
