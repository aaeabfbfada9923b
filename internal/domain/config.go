package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Retry    RetryConfig    `json:"retry" yaml:"retry"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Remote   RemoteConfig   `json:"remote" yaml:"remote"`
	LogLevel string         `json:"log_level" yaml:"log_level"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

type EngineConfig struct {
	// MaxParallelNodes bounds the fan-out of a single wave. Zero means unbounded.
	MaxParallelNodes     int           `json:"max_parallel_nodes" yaml:"max_parallel_nodes"`
	NodeExecutionTimeout time.Duration `json:"node_execution_timeout" yaml:"node_execution_timeout"`
	HeartbeatTimeout     time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	HandlerTimeout       time.Duration `json:"handler_timeout" yaml:"handler_timeout"`
	HandlerRetries       int           `json:"handler_retries" yaml:"handler_retries"`
}

// RetryConfig is the activity retry policy handed to the substrate.
type RetryConfig struct {
	InitialInterval    time.Duration `json:"initial_interval" yaml:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient" yaml:"backoff_coefficient"`
	MaximumInterval    time.Duration `json:"maximum_interval" yaml:"maximum_interval"`
	MaximumAttempts    int           `json:"maximum_attempts" yaml:"maximum_attempts"`
}

type StorageBackend string

const (
	StorageNone     StorageBackend = "none"
	StorageMemory   StorageBackend = "memory"
	StorageBadger   StorageBackend = "badger"
	StoragePostgres StorageBackend = "postgres"
)

type StorageConfig struct {
	Backend  StorageBackend `json:"backend" yaml:"backend"`
	Path     string         `json:"path,omitempty" yaml:"path,omitempty"`
	InMemory bool           `json:"in_memory" yaml:"in_memory"`
}

type PostgresConfig struct {
	URL             string        `json:"url,omitempty" yaml:"url,omitempty"`
	PingTimeout     time.Duration `json:"ping_timeout" yaml:"ping_timeout"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

type RemoteConfig struct {
	Address          string        `json:"address,omitempty" yaml:"address,omitempty"`
	DialTimeout      time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	MaxMessageSizeMB int           `json:"max_message_size_mb" yaml:"max_message_size_mb"`
	// BreakerThreshold consecutive transport failures stop calls to the
	// plugin server for BreakerInterval.
	BreakerThreshold int           `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerInterval  time.Duration `json:"breaker_interval" yaml:"breaker_interval"`
}
