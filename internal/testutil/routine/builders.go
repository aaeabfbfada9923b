package routine

import "github.com/eleven-am/routines/internal/domain"

// Node returns an enabled node running the given plugin.
func Node(id, pluginID string) domain.Node {
	return domain.Node{ID: id, PluginID: pluginID, Enabled: true}
}

func DisabledNode(id, pluginID string) domain.Node {
	return domain.Node{ID: id, PluginID: pluginID, Enabled: false}
}

// Flow builds a flow connection; an empty handle means the default signal.
func Flow(id, source, target, handle string) *domain.FlowConnection {
	return &domain.FlowConnection{ID: id, SourceNodeID: source, TargetNodeID: target, SourceHandle: handle}
}

func Loop(id, source, target string, maxIterations int, accumulate ...string) *domain.FlowConnection {
	return &domain.FlowConnection{
		ID:           id,
		SourceNodeID: source,
		TargetNodeID: target,
		SourceHandle: domain.LoopHandle,
		LoopConfig:   &domain.LoopConfig{MaxIterations: maxIterations, AccumulatorFields: accumulate},
	}
}

func Data(id, source, target, sourceHandle, targetHandle string) *domain.DataConnection {
	return &domain.DataConnection{
		ID:           id,
		SourceNodeID: source,
		TargetNodeID: target,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	}
}

func Definition(routineID string, nodes []domain.Node, connections ...domain.Connection) domain.RoutineDefinition {
	return domain.RoutineDefinition{
		RoutineID:   routineID,
		UserID:      "user-1",
		Nodes:       nodes,
		Connections: connections,
		TriggerData: map[string]any{"source": "test"},
	}
}

// Linear is A -> B -> C on default signals, every node on plugin "echo".
func Linear() domain.RoutineDefinition {
	return Definition("linear",
		[]domain.Node{Node("A", "echo"), Node("B", "echo"), Node("C", "echo")},
		Flow("e1", "A", "B", ""),
		Flow("e2", "B", "C", ""),
	)
}

// Branch has A emit on "true"/"false" handles toward B and C.
func Branch() domain.RoutineDefinition {
	return Definition("branch",
		[]domain.Node{Node("A", "if"), Node("B", "echo"), Node("C", "echo")},
		Flow("e-true", "A", "B", "true"),
		Flow("e-false", "A", "C", "false"),
	)
}

// SelfLoop is A -> B with a loop connection B -> B bounded by max.
func SelfLoop(max int, accumulate ...string) domain.RoutineDefinition {
	return Definition("loop",
		[]domain.Node{Node("A", "echo"), Node("B", "counter")},
		Flow("e1", "A", "B", ""),
		Loop("loop-b", "B", "B", max, accumulate...),
	)
}

// Unreachable has entry X and a pair B, C only fed by each other.
func Unreachable() domain.RoutineDefinition {
	return Definition("unreachable",
		[]domain.Node{Node("X", "echo"), Node("B", "echo"), Node("C", "echo")},
		Flow("e1", "B", "C", ""),
		Loop("loop-cb", "C", "B", 3),
	)
}

// RuntimeDeadlock passes validation but C waits on B, which only the loop
// out of C can start.
func RuntimeDeadlock() domain.RoutineDefinition {
	return Definition("deadlock",
		[]domain.Node{Node("A", "echo"), Node("B", "echo"), Node("C", "echo")},
		Flow("e-ac", "A", "C", ""),
		Flow("e-bc", "B", "C", ""),
		Loop("loop-cb", "C", "B", 2),
	)
}

// Parallel has two independent entries joined by J.
func Parallel() domain.RoutineDefinition {
	return Definition("parallel",
		[]domain.Node{Node("A", "echo"), Node("D", "echo"), Node("J", "echo")},
		Flow("e-aj", "A", "J", ""),
		Flow("e-dj", "D", "J", ""),
	)
}
