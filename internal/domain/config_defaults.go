package domain

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func DefaultConfig() *Config {
	return &Config{
		Engine:   DefaultEngineConfig(),
		Retry:    DefaultRetryConfig(),
		Storage:  DefaultStorageConfig(),
		Postgres: DefaultPostgresConfig(),
		Remote:   DefaultRemoteConfig(),
		LogLevel: "info",
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxParallelNodes:     0,
		NodeExecutionTimeout: 5 * time.Minute,
		HeartbeatTimeout:     30 * time.Second,
		HandlerTimeout:       30 * time.Second,
		HandlerRetries:       0,
	}
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    100 * time.Second,
		MaximumAttempts:    3,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend: StorageMemory,
	}
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		PingTimeout:     5 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		DialTimeout:      10 * time.Second,
		MaxMessageSizeMB: 4,
		BreakerThreshold: 5,
		BreakerInterval:  30 * time.Second,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError("path", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewConfigError("yaml", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) WithEngineSettings(maxParallel int, nodeTimeout, heartbeat time.Duration) *Config {
	c.Engine.MaxParallelNodes = maxParallel
	c.Engine.NodeExecutionTimeout = nodeTimeout
	c.Engine.HeartbeatTimeout = heartbeat
	return c
}

func (c *Config) WithRetryPolicy(initial time.Duration, coefficient float64, maximum time.Duration, attempts int) *Config {
	c.Retry = RetryConfig{
		InitialInterval:    initial,
		BackoffCoefficient: coefficient,
		MaximumInterval:    maximum,
		MaximumAttempts:    attempts,
	}
	return c
}

func (c *Config) Validate() error {
	if c.Engine.MaxParallelNodes < 0 {
		return NewConfigError("engine.max_parallel_nodes", ErrInvalidInput)
	}
	if c.Engine.NodeExecutionTimeout <= 0 {
		return NewConfigError("engine.node_execution_timeout", ErrInvalidInput)
	}
	if c.Engine.HeartbeatTimeout < 0 {
		return NewConfigError("engine.heartbeat_timeout", ErrInvalidInput)
	}
	if c.Engine.HandlerRetries < 0 {
		return NewConfigError("engine.handler_retries", ErrInvalidInput)
	}

	if err := c.Retry.Validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "", StorageNone, StorageMemory:
	case StorageBadger:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return NewConfigError("storage.path", ErrInvalidInput)
		}
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return NewConfigError("postgres.url", ErrInvalidInput)
		}
	default:
		return NewConfigError("storage.backend", fmt.Errorf("unsupported backend %q", c.Storage.Backend))
	}

	if c.Postgres.MaxOpenConns < 0 || c.Postgres.MaxIdleConns < 0 {
		return NewConfigError("postgres.pool", ErrInvalidInput)
	}
	if c.Remote.MaxMessageSizeMB < 0 {
		return NewConfigError("remote.max_message_size_mb", ErrInvalidInput)
	}
	if c.Remote.BreakerThreshold < 0 || c.Remote.BreakerInterval < 0 {
		return NewConfigError("remote.breaker", ErrInvalidInput)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return NewConfigError("log_level", err)
	}
	return nil
}

func (r RetryConfig) Validate() error {
	if r.InitialInterval <= 0 {
		return NewConfigError("retry.initial_interval", ErrInvalidInput)
	}
	if r.BackoffCoefficient < 1 {
		return NewConfigError("retry.backoff_coefficient", ErrInvalidInput)
	}
	if r.MaximumInterval < r.InitialInterval {
		return NewConfigError("retry.maximum_interval", ErrInvalidInput)
	}
	if r.MaximumAttempts < 0 {
		return NewConfigError("retry.maximum_attempts", ErrInvalidInput)
	}
	return nil
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{
		Field: field,
		Err:   err,
	}
}
