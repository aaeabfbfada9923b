package ports

import (
	"context"

	"github.com/eleven-am/routines/internal/domain"
)

// PluginRequest is everything a plugin sees for one node run. Config is
// already resolved; the engine does not evaluate expressions.
type PluginRequest struct {
	PluginID string                  `json:"pluginId"`
	Config   map[string]any          `json:"config"`
	Inputs   domain.PortData         `json:"inputs"`
	Context  domain.ExecutionContext `json:"context"`
}

type Plugin interface {
	Execute(ctx context.Context, req PluginRequest) (*domain.PluginResult, error)
}

// PluginFunc adapts an ordinary function to Plugin.
type PluginFunc func(ctx context.Context, req PluginRequest) (*domain.PluginResult, error)

func (f PluginFunc) Execute(ctx context.Context, req PluginRequest) (*domain.PluginResult, error) {
	return f(ctx, req)
}

// PluginRegistry resolves plugin ids once, when a graph is built.
type PluginRegistry interface {
	Resolve(pluginID string) (Plugin, error)
}

// PluginCatalog is implemented by registries that can enumerate what they hold.
type PluginCatalog interface {
	PluginRegistry
	List() []string
}

type PluginRegistrationError struct {
	PluginID string
	Reason   string
}

func (e *PluginRegistrationError) Error() string {
	return "plugin registration failed for " + e.PluginID + ": " + e.Reason
}
