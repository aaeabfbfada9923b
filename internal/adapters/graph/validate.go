package graph

import (
	"fmt"
	"strings"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// Validate checks the whole graph and reports every problem it finds. It
// does not mutate g, so repeated calls return identical results.
func Validate(g *domain.ExecutionGraph) domain.ValidationResult {
	var errs, warnings []domain.ValidationIssue

	errs = append(errs, danglingIssues(g)...)

	entries := FindEntryNodes(g.Nodes, g.Edges)
	if len(entries) == 0 {
		errs = append(errs, domain.ValidationIssue{
			Code:    domain.IssueNoEntryNode,
			Message: "routine has no entry node: every node has an incoming flow connection",
		})
	}

	if cycle := findCycle(g); len(cycle) > 0 {
		errs = append(errs, domain.ValidationIssue{
			Code:    domain.IssueCycle,
			Message: fmt.Sprintf("flow connections form a cycle through %s; use a loop connection for repetition", strings.Join(cycle, ", ")),
			NodeIDs: cycle,
		})
	}

	if len(entries) > 0 {
		if unreachable := unreachableNodes(g, entries); len(unreachable) > 0 {
			errs = append(errs, domain.ValidationIssue{
				Code:    domain.IssueUnreachable,
				Message: fmt.Sprintf("%d node(s) cannot be reached from any entry node: %s", len(unreachable), strings.Join(unreachable, ", ")),
				NodeIDs: unreachable,
			})
		}
	}

	for _, flow := range sortedFlowEdges(g) {
		switch {
		case flow.LoopConfig != nil && flow.LoopConfig.MaxIterations <= 0:
			errs = append(errs, domain.ValidationIssue{
				Code:         domain.IssueInvalidLoopConfig,
				Message:      fmt.Sprintf("loop connection %q needs maxIterations > 0, got %d", flow.ID, flow.LoopConfig.MaxIterations),
				NodeIDs:      []string{flow.SourceNodeID, flow.TargetNodeID},
				ConnectionID: flow.ID,
			})
		case flow.LoopConfig == nil && flow.SourceHandle == domain.LoopHandle:
			warnings = append(warnings, domain.ValidationIssue{
				Code:         domain.IssueLoopWithoutConfig,
				Message:      fmt.Sprintf("connection %q uses the loop handle without a loop config and is treated as a plain flow connection", flow.ID),
				NodeIDs:      []string{flow.SourceNodeID, flow.TargetNodeID},
				ConnectionID: flow.ID,
			})
		}
	}

	return domain.ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// ResolvePlugins looks up the plugin of every enabled node once. Nodes
// whose plugin is unknown are reported as validation issues.
func ResolvePlugins(g *domain.ExecutionGraph, registry ports.PluginRegistry) (map[string]ports.Plugin, []domain.ValidationIssue) {
	plugins := make(map[string]ports.Plugin, len(g.Nodes))
	var issues []domain.ValidationIssue

	for _, id := range domain.SortedKeys(g.Nodes) {
		node := g.Nodes[id]
		if !node.Enabled {
			continue
		}
		plugin, err := registry.Resolve(node.PluginID)
		if err != nil || plugin == nil {
			reason := "not registered"
			if err != nil {
				reason = err.Error()
			}
			issues = append(issues, domain.ValidationIssue{
				Code:    domain.IssueUnknownPlugin,
				Message: fmt.Sprintf("node %q uses plugin %q: %s", id, node.PluginID, reason),
				NodeIDs: []string{id},
			})
			continue
		}
		plugins[id] = plugin
	}
	return plugins, issues
}

func danglingIssues(g *domain.ExecutionGraph) []domain.ValidationIssue {
	issues := make([]domain.ValidationIssue, 0, len(g.Dangling))
	for _, conn := range g.Dangling {
		var missing []string
		if !g.HasNode(conn.Source()) {
			missing = append(missing, conn.Source())
		}
		if !g.HasNode(conn.Target()) && conn.Target() != conn.Source() {
			missing = append(missing, conn.Target())
		}
		issues = append(issues, domain.ValidationIssue{
			Code:         domain.IssueDanglingReference,
			Message:      fmt.Sprintf("%s connection %q references unknown node(s): %s", conn.Type(), conn.ConnectionID(), strings.Join(missing, ", ")),
			NodeIDs:      missing,
			ConnectionID: conn.ConnectionID(),
		})
	}
	return issues
}

// findCycle runs Kahn's algorithm over the non-loop flow subgraph and
// returns the nodes left with residual in-degree, sorted. An empty result
// means the subgraph is acyclic.
func findCycle(g *domain.ExecutionGraph) []string {
	inDegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		inDegree[id] = 0
	}
	for _, edges := range g.FlowIn {
		for _, edge := range edges {
			if !edge.IsLoop() {
				inDegree[edge.TargetNodeID]++
			}
		}
	}

	ready := make([]string, 0, len(g.Nodes))
	for _, id := range domain.SortedKeys(inDegree) {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	visited := 0
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		visited++

		for _, edge := range g.FlowOut[id] {
			if edge.IsLoop() {
				continue
			}
			inDegree[edge.TargetNodeID]--
			if inDegree[edge.TargetNodeID] == 0 {
				ready = append(ready, edge.TargetNodeID)
			}
		}
	}

	if visited == len(g.Nodes) {
		return nil
	}

	residual := make([]string, 0, len(g.Nodes)-visited)
	for _, id := range domain.SortedKeys(inDegree) {
		if inDegree[id] > 0 {
			residual = append(residual, id)
		}
	}
	return residual
}

// unreachableNodes walks every flow edge, loop edges included, from the
// entry nodes and returns the nodes never visited.
func unreachableNodes(g *domain.ExecutionGraph, entries []string) []string {
	seen := make(map[string]bool, len(g.Nodes))
	stack := append([]string(nil), entries...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edge := range g.FlowOut[id] {
			if !seen[edge.TargetNodeID] {
				stack = append(stack, edge.TargetNodeID)
			}
		}
	}

	var unreachable []string
	for _, id := range domain.SortedKeys(g.Nodes) {
		if !seen[id] {
			unreachable = append(unreachable, id)
		}
	}
	return unreachable
}

func sortedFlowEdges(g *domain.ExecutionGraph) []*domain.FlowConnection {
	var flows []*domain.FlowConnection
	for _, id := range domain.SortedKeys(g.EdgesByID) {
		if flow, ok := g.EdgesByID[id].(*domain.FlowConnection); ok {
			flows = append(flows, flow)
		}
	}
	return flows
}
