package domain

import (
	json "github.com/goccy/go-json"
)

// RoutineDefinition is the graph an editor hands to the engine. Node
// configuration is already resolved.
type RoutineDefinition struct {
	RoutineID   string         `json:"routineId" yaml:"routine_id"`
	UserID      string         `json:"userId" yaml:"user_id"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Connections []Connection   `json:"-" yaml:"-"`
	TriggerData map[string]any `json:"triggerData,omitempty" yaml:"trigger_data,omitempty"`
}

type routineDefinitionWire struct {
	RoutineID   string           `json:"routineId"`
	UserID      string           `json:"userId"`
	Nodes       []Node           `json:"nodes"`
	Connections []ConnectionSpec `json:"connections"`
	TriggerData map[string]any   `json:"triggerData,omitempty"`
}

func (d RoutineDefinition) MarshalJSON() ([]byte, error) {
	wire := routineDefinitionWire{
		RoutineID:   d.RoutineID,
		UserID:      d.UserID,
		Nodes:       d.Nodes,
		Connections: make([]ConnectionSpec, 0, len(d.Connections)),
		TriggerData: d.TriggerData,
	}
	for _, c := range d.Connections {
		wire.Connections = append(wire.Connections, SpecFromConnection(c))
	}
	return json.Marshal(wire)
}

func (d *RoutineDefinition) UnmarshalJSON(data []byte) error {
	var wire routineDefinitionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	connections, err := ConnectionsFromSpecs(wire.Connections)
	if err != nil {
		return err
	}
	*d = RoutineDefinition{
		RoutineID:   wire.RoutineID,
		UserID:      wire.UserID,
		Nodes:       wire.Nodes,
		Connections: connections,
		TriggerData: wire.TriggerData,
	}
	return nil
}

func ConnectionsFromSpecs(specs []ConnectionSpec) ([]Connection, error) {
	connections := make([]Connection, 0, len(specs))
	for _, spec := range specs {
		conn, err := spec.ToConnection()
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, nil
}

// ExecutionGraph is built once per run and is read-only during traversal.
type ExecutionGraph struct {
	Nodes       map[string]Node
	Edges       []Connection
	UserID      string
	RoutineID   string
	TriggerData map[string]any

	NodeOrder []string
	FlowOut   map[string][]*FlowConnection
	FlowIn    map[string][]*FlowConnection
	DataIn    map[string][]*DataConnection
	EdgesByID map[string]Connection
	// Dangling holds connections naming a node id the graph does not contain.
	Dangling []Connection
}

// OutgoingFlow returns the node's outgoing flow edges in stable order.
func (g *ExecutionGraph) OutgoingFlow(nodeID string) []*FlowConnection {
	return g.FlowOut[nodeID]
}

func (g *ExecutionGraph) IncomingFlow(nodeID string) []*FlowConnection {
	return g.FlowIn[nodeID]
}

func (g *ExecutionGraph) IncomingData(nodeID string) []*DataConnection {
	return g.DataIn[nodeID]
}

// IsEntry reports whether the node has no incoming flow edge.
func (g *ExecutionGraph) IsEntry(nodeID string) bool {
	return len(g.FlowIn[nodeID]) == 0
}

func (g *ExecutionGraph) HasNode(nodeID string) bool {
	_, ok := g.Nodes[nodeID]
	return ok
}
