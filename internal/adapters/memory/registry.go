package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// PluginRegistry is an in-process plugin table.
type PluginRegistry struct {
	plugins map[string]ports.Plugin
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewPluginRegistry(logger *slog.Logger) *PluginRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	return &PluginRegistry{
		plugins: make(map[string]ports.Plugin),
		logger:  logger.With("component", "registry", "type", "memory"),
	}
}

func (r *PluginRegistry) Register(pluginID string, plugin ports.Plugin) error {
	if err := validatePlugin(pluginID, plugin); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[pluginID]; exists {
		r.logger.Warn("plugin registration conflict detected", "plugin_id", pluginID)
		return &ports.PluginRegistrationError{
			PluginID: pluginID,
			Reason:   "plugin already registered",
		}
	}

	r.plugins[pluginID] = plugin
	r.logger.Info("plugin registered", "plugin_id", pluginID)
	return nil
}

func (r *PluginRegistry) RegisterFunc(pluginID string, fn func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error)) error {
	if fn == nil {
		return validatePlugin(pluginID, nil)
	}
	return r.Register(pluginID, ports.PluginFunc(fn))
}

func (r *PluginRegistry) Resolve(pluginID string) (ports.Plugin, error) {
	if err := validatePluginID(pluginID); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, exists := r.plugins[pluginID]
	if !exists {
		r.logger.Debug("plugin not found", "plugin_id", pluginID)
		return nil, domain.NewPluginError("plugin not found in registry", domain.ErrUnknownPlugin,
			domain.WithComponent("memory.PluginRegistry"),
			domain.WithCode("PLUGIN_NOT_FOUND"),
			domain.WithDetail("plugin_id", pluginID),
		)
	}
	return plugin, nil
}

// List returns the registered plugin ids in ascending order.
func (r *PluginRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.SortedKeys(r.plugins)
}

func (r *PluginRegistry) Unregister(pluginID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[pluginID]; !exists {
		r.logger.Warn("attempt to unregister unknown plugin", "plugin_id", pluginID)
		return domain.NewNotFoundError("plugin", pluginID)
	}

	delete(r.plugins, pluginID)
	r.logger.Info("plugin unregistered", "plugin_id", pluginID)
	return nil
}

func (r *PluginRegistry) Has(pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.plugins[pluginID]
	return exists
}

func (r *PluginRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

var _ ports.PluginCatalog = (*PluginRegistry)(nil)
