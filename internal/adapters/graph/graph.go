package graph

import (
	"fmt"
	"slices"

	"github.com/eleven-am/routines/internal/domain"
)

// BuildGraph indexes a routine definition for traversal. Duplicate or empty
// ids are rejected here because the lookup maps cannot represent them; every
// other structural problem is left to Validate so it can be reported in one
// batch.
func BuildGraph(def domain.RoutineDefinition) (*domain.ExecutionGraph, error) {
	var issues []domain.ValidationIssue

	g := &domain.ExecutionGraph{
		Nodes:       make(map[string]domain.Node, len(def.Nodes)),
		Edges:       make([]domain.Connection, 0, len(def.Connections)),
		UserID:      def.UserID,
		RoutineID:   def.RoutineID,
		TriggerData: def.TriggerData,
		NodeOrder:   make([]string, 0, len(def.Nodes)),
		FlowOut:     make(map[string][]*domain.FlowConnection),
		FlowIn:      make(map[string][]*domain.FlowConnection),
		DataIn:      make(map[string][]*domain.DataConnection),
		EdgesByID:   make(map[string]domain.Connection, len(def.Connections)),
	}

	for i, node := range def.Nodes {
		if node.ID == "" {
			issues = append(issues, domain.ValidationIssue{
				Code:    domain.IssueMissingID,
				Message: fmt.Sprintf("node at position %d has no id", i),
			})
			continue
		}
		if _, exists := g.Nodes[node.ID]; exists {
			issues = append(issues, domain.ValidationIssue{
				Code:    domain.IssueDuplicateID,
				Message: fmt.Sprintf("node id %q is used more than once", node.ID),
				NodeIDs: []string{node.ID},
			})
			continue
		}
		g.Nodes[node.ID] = node
		g.NodeOrder = append(g.NodeOrder, node.ID)
	}

	for i, conn := range def.Connections {
		if conn == nil {
			issues = append(issues, domain.ValidationIssue{
				Code:    domain.IssueMissingID,
				Message: fmt.Sprintf("connection at position %d is empty", i),
			})
			continue
		}
		id := conn.ConnectionID()
		if id == "" {
			issues = append(issues, domain.ValidationIssue{
				Code:    domain.IssueMissingID,
				Message: fmt.Sprintf("connection at position %d has no id", i),
			})
			continue
		}
		if _, exists := g.EdgesByID[id]; exists {
			issues = append(issues, domain.ValidationIssue{
				Code:         domain.IssueDuplicateID,
				Message:      fmt.Sprintf("connection id %q is used more than once", id),
				ConnectionID: id,
			})
			continue
		}
		g.EdgesByID[id] = conn
		g.Edges = append(g.Edges, conn)

		if !g.HasNode(conn.Source()) || !g.HasNode(conn.Target()) {
			g.Dangling = append(g.Dangling, conn)
			continue
		}

		switch c := conn.(type) {
		case *domain.FlowConnection:
			g.FlowOut[c.SourceNodeID] = append(g.FlowOut[c.SourceNodeID], c)
			g.FlowIn[c.TargetNodeID] = append(g.FlowIn[c.TargetNodeID], c)
		case *domain.DataConnection:
			g.DataIn[c.TargetNodeID] = append(g.DataIn[c.TargetNodeID], c)
		default:
			issues = append(issues, domain.ValidationIssue{
				Code:         domain.IssueDanglingReference,
				Message:      fmt.Sprintf("connection %q has unsupported type %T", id, conn),
				ConnectionID: id,
			})
		}
	}

	if len(issues) > 0 {
		return nil, &domain.ValidationError{Issues: issues}
	}

	for _, edges := range g.FlowOut {
		sortByID(edges)
	}
	for _, edges := range g.FlowIn {
		sortByID(edges)
	}
	for _, edges := range g.DataIn {
		slices.SortFunc(edges, func(a, b *domain.DataConnection) int {
			if a.ID < b.ID {
				return -1
			}
			if a.ID > b.ID {
				return 1
			}
			return 0
		})
	}

	return g, nil
}

func sortByID(edges []*domain.FlowConnection) {
	slices.SortFunc(edges, func(a, b *domain.FlowConnection) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// ConvertBack is the inverse of BuildGraph: it returns the nodes and
// connections in their original order.
func ConvertBack(g *domain.ExecutionGraph) ([]domain.Node, []domain.Connection) {
	nodes := make([]domain.Node, 0, len(g.NodeOrder))
	for _, id := range g.NodeOrder {
		nodes = append(nodes, g.Nodes[id])
	}
	connections := make([]domain.Connection, len(g.Edges))
	copy(connections, g.Edges)
	return nodes, connections
}

// ToDefinition rebuilds the editor-facing definition of g.
func ToDefinition(g *domain.ExecutionGraph) domain.RoutineDefinition {
	nodes, connections := ConvertBack(g)
	return domain.RoutineDefinition{
		RoutineID:   g.RoutineID,
		UserID:      g.UserID,
		Nodes:       nodes,
		Connections: connections,
		TriggerData: g.TriggerData,
	}
}

// FindEntryNodes returns, in ascending id order, the nodes without any
// incoming flow connection. Loop connections count: a node fed only by a
// loop is started by that loop, not by the trigger.
func FindEntryNodes(nodes map[string]domain.Node, edges []domain.Connection) []string {
	hasIncoming := make(map[string]bool, len(nodes))
	for _, conn := range edges {
		flow, ok := conn.(*domain.FlowConnection)
		if !ok {
			continue
		}
		if _, ok := nodes[flow.SourceNodeID]; !ok {
			continue
		}
		hasIncoming[flow.TargetNodeID] = true
	}

	entries := make([]string, 0)
	for _, id := range domain.SortedKeys(nodes) {
		if !hasIncoming[id] {
			entries = append(entries, id)
		}
	}
	return entries
}
