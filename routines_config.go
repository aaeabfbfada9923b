package routines

import (
	"log/slog"
	"time"

	"github.com/eleven-am/routines/internal/domain"
)

type Config = domain.Config

type EngineConfig = domain.EngineConfig

type RetryConfig = domain.RetryConfig

type StorageConfig = domain.StorageConfig

type StorageBackend = domain.StorageBackend

type PostgresConfig = domain.PostgresConfig

// RemoteConfig points the manager at a plugin server instead of the local
// registry.
type RemoteConfig = domain.RemoteConfig

// ConfigError names the configuration field that failed validation.
type ConfigError = domain.ConfigError

const (
	StorageNone     = domain.StorageNone
	StorageMemory   = domain.StorageMemory
	StorageBadger   = domain.StorageBadger
	StoragePostgres = domain.StoragePostgres
)

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: DefaultConfig()}
}

func (cb *ConfigBuilder) WithEngineSettings(maxParallel int, nodeTimeout, heartbeatTimeout time.Duration) *ConfigBuilder {
	cb.config.WithEngineSettings(maxParallel, nodeTimeout, heartbeatTimeout)
	return cb
}

func (cb *ConfigBuilder) WithRetryPolicy(initial time.Duration, coefficient float64, maximum time.Duration, attempts int) *ConfigBuilder {
	cb.config.WithRetryPolicy(initial, coefficient, maximum, attempts)
	return cb
}

func (cb *ConfigBuilder) WithHandlerSettings(timeout time.Duration, retries int) *ConfigBuilder {
	cb.config.Engine.HandlerTimeout = timeout
	cb.config.Engine.HandlerRetries = retries
	return cb
}

// WithoutHistory disables execution storage.
func (cb *ConfigBuilder) WithoutHistory() *ConfigBuilder {
	cb.config.Storage = StorageConfig{Backend: StorageNone}
	return cb
}

// WithBadger stores execution history in a badger database at path. An
// empty path keeps the database in memory.
func (cb *ConfigBuilder) WithBadger(path string) *ConfigBuilder {
	cb.config.Storage = StorageConfig{Backend: StorageBadger, Path: path, InMemory: path == ""}
	return cb
}

func (cb *ConfigBuilder) WithPostgres(url string) *ConfigBuilder {
	cb.config.Storage = StorageConfig{Backend: StoragePostgres}
	cb.config.Postgres.URL = url
	return cb
}

// WithRemotePlugins resolves plugins from the plugin server at address.
func (cb *ConfigBuilder) WithRemotePlugins(address string) *ConfigBuilder {
	cb.config.Remote.Address = address
	return cb
}

func (cb *ConfigBuilder) WithLogger(logger *slog.Logger) *ConfigBuilder {
	cb.config.Logger = logger
	return cb
}

func (cb *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	cb.config.LogLevel = level
	return cb
}

func (cb *ConfigBuilder) Build() *Config {
	return cb.config
}
