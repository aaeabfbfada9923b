package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

type Node struct {
	ID       string         `json:"id" yaml:"id"`
	PluginID string         `json:"pluginId" yaml:"plugin_id"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Enabled  bool           `json:"enabled" yaml:"enabled"`
}

type nodeWire struct {
	ID       string         `json:"id"`
	PluginID string         `json:"pluginId"`
	Config   map[string]any `json:"config,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty"`
}

// UnmarshalJSON treats a missing "enabled" field as enabled.
func (n *Node) UnmarshalJSON(data []byte) error {
	var wire nodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*n = Node{
		ID:       wire.ID,
		PluginID: wire.PluginID,
		Config:   wire.Config,
		Enabled:  wire.Enabled == nil || *wire.Enabled,
	}
	return nil
}

type NodeStatus string

const (
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// PortData holds the named output ports of a node run.
type PortData = map[string]any

type NodeError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

type NodeExecutionResult struct {
	NodeID      string        `json:"node_id"`
	RunIndex    int           `json:"run_index"`
	Status      NodeStatus    `json:"status"`
	Outputs     PortData      `json:"outputs,omitempty"`
	Signal      string        `json:"signal,omitempty"`
	Error       *NodeError    `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

func (r NodeExecutionResult) Failed() bool {
	return r.Status == NodeStatusError
}

type PathEntry struct {
	NodeID   string `json:"node_id"`
	RunIndex int    `json:"run_index"`
}

type NodeErrorEntry struct {
	NodeID   string     `json:"node_id"`
	RunIndex int        `json:"run_index"`
	Error    *NodeError `json:"error"`
}
