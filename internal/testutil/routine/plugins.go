package routine

import (
	"context"
	"fmt"
	"sync"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// Registry is a fixed plugin table for tests.
type Registry map[string]ports.Plugin

func (r Registry) Resolve(pluginID string) (ports.Plugin, error) {
	plugin, ok := r[pluginID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPlugin, pluginID)
	}
	return plugin, nil
}

// Echo returns its inputs and config as data on the default signal.
func Echo() ports.Plugin {
	return ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		return &domain.PluginResult{Data: domain.PortData{"node": req.Context.NodeID, "inputs": req.Inputs}}, nil
	})
}

// Signal always emits the given signal.
func Signal(signal string) ports.Plugin {
	return ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		return &domain.PluginResult{Signal: signal, Data: domain.PortData{"signal": signal}}, nil
	})
}

// Fail returns err for every call.
func Fail(err error) ports.Plugin {
	return ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		return nil, err
	})
}

// Recorder wraps a plugin and keeps every request it saw.
type Recorder struct {
	Plugin ports.Plugin

	mu       sync.Mutex
	requests []ports.PluginRequest
}

func Record(plugin ports.Plugin) *Recorder {
	return &Recorder{Plugin: plugin}
}

func (r *Recorder) Execute(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.Plugin.Execute(ctx, req)
}

func (r *Recorder) Requests() []ports.PluginRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.PluginRequest(nil), r.requests...)
}

func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
