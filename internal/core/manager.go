package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/eleven-am/routines/internal/adapters/engine"
	"github.com/eleven-am/routines/internal/adapters/logging"
	"github.com/eleven-am/routines/internal/adapters/memory"
	"github.com/eleven-am/routines/internal/adapters/postgres"
	"github.com/eleven-am/routines/internal/adapters/remote"
	"github.com/eleven-am/routines/internal/adapters/storage"
	"github.com/eleven-am/routines/internal/adapters/substrate"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// Manager owns one engine together with the plugin registry, execution
// store and activity runner it was configured with.
type Manager struct {
	config *domain.Config
	logger *slog.Logger

	local  *memory.PluginRegistry
	runner ports.ActivityRunner

	mu         sync.RWMutex
	started    bool
	engine     *engine.Engine
	registry   ports.PluginRegistry
	store      ports.ExecutionStore
	client     *remote.Client
	server     *remote.Server
	completion []ports.CompletionHandler
	failure    []ports.ErrorHandler
	progress   []ports.ProgressHandler
}

// New builds a manager with in-memory history and a local plugin registry.
// It panics if the default configuration fails validation.
func New(logger *slog.Logger) *Manager {
	config := domain.DefaultConfig()
	config.Logger = logger
	manager, err := NewWithConfig(config)
	if err != nil {
		if logger != nil {
			logger.Error("invalid default configuration", "error", err)
		}
		panic(fmt.Sprintf("routines: invalid default configuration: %v", err))
	}
	return manager
}

func NewWithConfig(config *domain.Config) (*Manager, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		level, err := domain.ParseLogLevel(config.LogLevel)
		if err != nil {
			return nil, domain.NewConfigError("log_level", err)
		}
		logger = logging.New(os.Stderr, level, logging.FormatText)
	}
	logger = logger.With("component", "routines")

	return &Manager{
		config: config,
		logger: logger,
		local:  memory.NewPluginRegistry(logger),
		runner: substrate.NewLocalRunner(logger),
	}, nil
}

// RegisterPlugin adds a plugin to the local registry. Local plugins are
// ignored once a remote plugin server is configured.
func (m *Manager) RegisterPlugin(pluginID string, plugin ports.Plugin) error {
	return m.local.Register(pluginID, plugin)
}

func (m *Manager) RegisterPluginFunc(pluginID string, fn func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error)) error {
	return m.local.RegisterFunc(pluginID, fn)
}

func (m *Manager) UnregisterPlugin(pluginID string) error {
	return m.local.Unregister(pluginID)
}

// Plugins lists the ids the engine can currently resolve.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client != nil {
		return m.client.List()
	}
	return m.local.List()
}

// Start opens the configured execution store and, when a remote address is
// set, connects to the plugin server.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return domain.NewExecutionError("manager already started", domain.ErrAlreadyStarted)
	}

	store, err := m.openStore(ctx)
	if err != nil {
		return err
	}

	var registry ports.PluginRegistry = m.local
	if m.config.Remote.Address != "" {
		dialCtx, cancel := ctx, context.CancelFunc(func() {})
		if m.config.Remote.DialTimeout > 0 {
			dialCtx, cancel = context.WithTimeout(ctx, m.config.Remote.DialTimeout)
		}
		client, err := remote.Dial(dialCtx, m.config.Remote, m.logger)
		cancel()
		if err != nil {
			if store != nil {
				_ = store.Close()
			}
			return err
		}
		m.client = client
		registry = client
	}

	var sink ports.ExecutionSink
	if store != nil {
		sink = store
	}

	m.store = store
	m.registry = registry
	m.engine = engine.NewEngine(m.config.Engine, m.config.Retry, registry, m.runner, sink, m.logger)
	m.engine.RegisterLifecycleHandlers(m.completion, m.failure)
	for _, handler := range m.progress {
		m.engine.OnProgress(handler)
	}
	m.started = true

	m.logger.Info("routines manager started",
		"storage", string(m.config.Storage.Backend),
		"remote", m.config.Remote.Address,
		"max_parallel_nodes", m.config.Engine.MaxParallelNodes,
	)
	return nil
}

func (m *Manager) openStore(ctx context.Context) (ports.ExecutionStore, error) {
	switch m.config.Storage.Backend {
	case domain.StorageNone:
		return nil, nil
	case domain.StorageMemory, "":
		return memory.NewExecutionStore(m.logger), nil
	case domain.StorageBadger:
		return storage.Open(m.config.Storage, m.logger)
	case domain.StoragePostgres:
		return postgres.Open(ctx, m.config.Postgres, m.logger)
	default:
		return nil, domain.NewConfigError("storage.backend", domain.ErrInvalidConfig)
	}
}

// Stop closes the store, the remote connection and any plugin server.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		m.server.Stop()
		m.server = nil
	}

	if !m.started {
		return nil
	}
	m.started = false

	var errs []error
	if m.client != nil {
		errs = append(errs, m.client.Close())
		m.client = nil
	}
	if m.store != nil {
		errs = append(errs, m.store.Close())
		m.store = nil
	}
	m.engine = nil

	m.logger.Info("routines manager stopped")
	return errors.Join(errs...)
}

func (m *Manager) Execute(ctx context.Context, def domain.RoutineDefinition) (*domain.RunResult, error) {
	return m.ExecuteWithOptions(ctx, def, ports.RunOptions{})
}

func (m *Manager) ExecuteWithOptions(ctx context.Context, def domain.RoutineDefinition, opts ports.RunOptions) (*domain.RunResult, error) {
	eng, err := m.currentEngine()
	if err != nil {
		return nil, err
	}
	return eng.ExecuteWithOptions(ctx, def, opts)
}

func (m *Manager) Validate(def domain.RoutineDefinition) (domain.ValidationResult, error) {
	eng, err := m.currentEngine()
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return eng.Validate(def), nil
}

func (m *Manager) GetExecutionMetrics() ports.EngineMetrics {
	eng, err := m.currentEngine()
	if err != nil {
		return ports.EngineMetrics{}
	}
	return eng.GetExecutionMetrics()
}

// GetExecution reads an execution summary back from the store.
func (m *Manager) GetExecution(ctx context.Context, workflowID string) (*ports.ExecutionSummary, error) {
	history, err := m.history()
	if err != nil {
		return nil, err
	}
	return history.GetExecution(ctx, workflowID)
}

func (m *Manager) ListNodeResults(ctx context.Context, workflowID string) ([]ports.NodeResultRecord, error) {
	history, err := m.history()
	if err != nil {
		return nil, err
	}
	return history.ListNodeResults(ctx, workflowID)
}

// OnComplete registers a handler for successful runs. Handlers registered
// after Start apply to later runs.
func (m *Manager) OnComplete(handler ports.CompletionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completion = append(m.completion, handler)
	if m.engine != nil {
		m.engine.RegisterLifecycleHandlers([]ports.CompletionHandler{handler}, nil)
	}
}

func (m *Manager) OnError(handler ports.ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = append(m.failure, handler)
	if m.engine != nil {
		m.engine.RegisterLifecycleHandlers(nil, []ports.ErrorHandler{handler})
	}
}

func (m *Manager) OnProgress(handler ports.ProgressHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, handler)
	if m.engine != nil {
		m.engine.OnProgress(handler)
	}
}

// ServePlugins exposes the local registry over gRPC on lis. It blocks
// until Stop is called or the listener fails.
func (m *Manager) ServePlugins(lis net.Listener) error {
	m.mu.Lock()
	if m.server != nil {
		m.mu.Unlock()
		return domain.NewExecutionError("plugin server already running", domain.ErrAlreadyStarted)
	}
	server := remote.NewServer(m.local, remote.ServerConfig{MaxMsgSize: m.config.Remote.MaxMessageSizeMB << 20}, m.logger)
	m.server = server
	m.mu.Unlock()

	return server.Serve(lis)
}

func (m *Manager) currentEngine() (*engine.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil, domain.NewExecutionError("manager not started", domain.ErrNotStarted)
	}
	return m.engine, nil
}

func (m *Manager) history() (ports.ExecutionHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil, domain.NewExecutionError("manager not started", domain.ErrNotStarted)
	}
	if m.store == nil {
		return nil, domain.NewConfigurationError("execution history requires a storage backend", domain.ErrInvalidConfig,
			domain.WithDetail("backend", string(m.config.Storage.Backend)))
	}
	return m.store, nil
}
