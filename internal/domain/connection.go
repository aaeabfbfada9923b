package domain

import (
	"fmt"
)

const (
	// DefaultSignal is emitted by nodes that do not name a signal.
	DefaultSignal = "default"
	// LoopHandle marks a flow edge the editor drew as a loop-back edge.
	LoopHandle = "loop"
)

type ConnectionType string

const (
	ConnectionTypeFlow ConnectionType = "flow"
	ConnectionTypeData ConnectionType = "data"
)

// Connection is implemented only by *FlowConnection and *DataConnection.
type Connection interface {
	ConnectionID() string
	Source() string
	Target() string
	Type() ConnectionType
	isConnection()
}

type LoopConfig struct {
	MaxIterations     int      `json:"maxIterations" yaml:"max_iterations"`
	AccumulatorFields []string `json:"accumulatorFields,omitempty" yaml:"accumulator_fields,omitempty"`
}

type FlowConnection struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
	SourceHandle string
	LoopConfig   *LoopConfig
}

func (c *FlowConnection) ConnectionID() string { return c.ID }
func (c *FlowConnection) Source() string       { return c.SourceNodeID }
func (c *FlowConnection) Target() string       { return c.TargetNodeID }
func (c *FlowConnection) Type() ConnectionType { return ConnectionTypeFlow }
func (c *FlowConnection) isConnection()        {}

// Handle returns the signal that activates this edge.
func (c *FlowConnection) Handle() string {
	if c.SourceHandle == "" {
		return DefaultSignal
	}
	return c.SourceHandle
}

// IsLoop reports whether the edge is governed by the loop controller.
func (c *FlowConnection) IsLoop() bool {
	return c.LoopConfig != nil
}

type DataConnection struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
	SourceHandle string
	TargetHandle string
}

func (c *DataConnection) ConnectionID() string { return c.ID }
func (c *DataConnection) Source() string       { return c.SourceNodeID }
func (c *DataConnection) Target() string       { return c.TargetNodeID }
func (c *DataConnection) Type() ConnectionType { return ConnectionTypeData }
func (c *DataConnection) isConnection()        {}

// ConnectionSpec is the flat wire form of a Connection, discriminated by Type.
type ConnectionSpec struct {
	ID           string         `json:"id" yaml:"id"`
	Type         ConnectionType `json:"type" yaml:"type"`
	SourceNodeID string         `json:"sourceNodeId" yaml:"source"`
	TargetNodeID string         `json:"targetNodeId" yaml:"target"`
	SourceHandle string         `json:"sourceHandle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string         `json:"targetHandle,omitempty" yaml:"target_handle,omitempty"`
	LoopConfig   *LoopConfig    `json:"loopConfig,omitempty" yaml:"loop,omitempty"`
}

func (s ConnectionSpec) ToConnection() (Connection, error) {
	switch s.Type {
	case ConnectionTypeFlow, "":
		var loop *LoopConfig
		if s.LoopConfig != nil {
			cfg := *s.LoopConfig
			cfg.AccumulatorFields = append([]string(nil), s.LoopConfig.AccumulatorFields...)
			loop = &cfg
		}
		return &FlowConnection{
			ID:           s.ID,
			SourceNodeID: s.SourceNodeID,
			TargetNodeID: s.TargetNodeID,
			SourceHandle: s.SourceHandle,
			LoopConfig:   loop,
		}, nil
	case ConnectionTypeData:
		return &DataConnection{
			ID:           s.ID,
			SourceNodeID: s.SourceNodeID,
			TargetNodeID: s.TargetNodeID,
			SourceHandle: s.SourceHandle,
			TargetHandle: s.TargetHandle,
		}, nil
	default:
		return nil, NewValidationError(fmt.Sprintf("connection %s has unknown type %q", s.ID, s.Type), ErrInvalidInput)
	}
}

func SpecFromConnection(c Connection) ConnectionSpec {
	switch conn := c.(type) {
	case *FlowConnection:
		spec := ConnectionSpec{
			ID:           conn.ID,
			Type:         ConnectionTypeFlow,
			SourceNodeID: conn.SourceNodeID,
			TargetNodeID: conn.TargetNodeID,
			SourceHandle: conn.SourceHandle,
		}
		if conn.LoopConfig != nil {
			cfg := *conn.LoopConfig
			spec.LoopConfig = &cfg
		}
		return spec
	case *DataConnection:
		return ConnectionSpec{
			ID:           conn.ID,
			Type:         ConnectionTypeData,
			SourceNodeID: conn.SourceNodeID,
			TargetNodeID: conn.TargetNodeID,
			SourceHandle: conn.SourceHandle,
			TargetHandle: conn.TargetHandle,
		}
	default:
		return ConnectionSpec{}
	}
}
