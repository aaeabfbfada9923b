package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/routines/internal/adapters/loop"
	"github.com/eleven-am/routines/internal/adapters/state"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

type runIdentity struct {
	ExecutionID string
	WorkflowID  string
	RunID       string
	RoutineID   string
	UserID      string
}

type nodeOutcome struct {
	NodeID string
	Result domain.NodeExecutionResult
	Err    error
}

// NodeExecutor runs one node of one run: it gathers inputs, hands the
// plugin call to the activity runner and records what came back.
type NodeExecutor struct {
	graph    *domain.ExecutionGraph
	plugins  map[string]ports.Plugin
	store    *state.Store
	loops    *loop.Controller
	runner   ports.ActivityRunner
	recovery *RecoverableExecutor
	sink     ports.ExecutionSink
	options  ports.ActivityOptions
	ids      runIdentity
	metrics  *domain.ExecutionMetrics
	logger   *slog.Logger
	now      func() time.Time
}

func (ne *NodeExecutor) Execute(ctx context.Context, nodeID string) nodeOutcome {
	node := ne.graph.Nodes[nodeID]
	startedAt := ne.now()
	ne.metrics.IncrementNodesExecuted()

	if !node.Enabled {
		return ne.skip(ctx, node, startedAt)
	}

	execCtx := domain.ExecutionContext{
		UserID:      ne.ids.UserID,
		RoutineID:   ne.ids.RoutineID,
		ExecutionID: ne.ids.ExecutionID,
		NodeID:      nodeID,
		TriggerData: ne.graph.TriggerData,
	}
	iteration, accumulator, inLoop := ne.loops.Context(nodeID, ne.store)
	if inLoop {
		execCtx.LoopIteration = &iteration
		execCtx.LoopAccumulator = accumulator
	}

	req := ports.PluginRequest{
		PluginID: node.PluginID,
		Config:   node.Config,
		Inputs:   ne.resolveInputs(nodeID),
		Context:  execCtx,
	}

	plugin, ok := ne.plugins[nodeID]
	if !ok {
		err := newPluginError(executorComponent, fmt.Sprintf("no plugin resolved for node %s", nodeID), domain.ErrUnknownPlugin).
			WithNodeID(nodeID).
			WithWorkflowID(ne.ids.WorkflowID)
		return ne.fail(ctx, node, startedAt, execCtx.LoopIteration, err)
	}

	opts := ne.options
	opts.Name = node.PluginID + ":" + nodeID

	ne.logger.Debug("executing node",
		"node_id", nodeID,
		"plugin_id", node.PluginID,
		"run_index", ne.store.GetRunIndex(nodeID),
		"in_loop", inLoop,
	)

	result, err := ne.runner.RunActivity(ctx, opts, func(actx context.Context) (*domain.PluginResult, error) {
		return ne.recovery.ExecuteWithRecovery(actx, plugin, req)
	})
	if err != nil {
		return ne.fail(ctx, node, startedAt, execCtx.LoopIteration, err)
	}
	if result == nil {
		result = &domain.PluginResult{}
	}

	completedAt := ne.now()
	nodeResult := domain.NodeExecutionResult{
		Status:      domain.NodeStatusCompleted,
		Outputs:     result.Data,
		Signal:      result.Signal,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
	if nodeResult.Outputs == nil {
		nodeResult.Outputs = domain.PortData{}
	}

	runIndex := ne.store.AddResult(nodeID, nodeResult)
	nodeResult.NodeID = nodeID
	nodeResult.RunIndex = runIndex

	ne.metrics.IncrementNodesSucceeded()
	ne.metrics.AddExecutionTime(nodeResult.Duration)

	ne.storeNodeResult(ctx, ports.NodeResultRecord{
		NodeID:      nodeID,
		PluginID:    node.PluginID,
		Iteration:   execCtx.LoopIteration,
		RunIndex:    runIndex,
		Status:      ports.NodeResultCompleted,
		Signal:      result.Signal,
		Output:      nodeResult.Outputs,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	})

	return nodeOutcome{NodeID: nodeID, Result: nodeResult}
}

func (ne *NodeExecutor) skip(ctx context.Context, node domain.Node, startedAt time.Time) nodeOutcome {
	nodeResult := domain.NodeExecutionResult{
		Status:      domain.NodeStatusSkipped,
		Outputs:     domain.PortData{},
		Signal:      domain.DefaultSignal,
		StartedAt:   startedAt,
		CompletedAt: startedAt,
	}
	runIndex := ne.store.AddResult(node.ID, nodeResult)
	nodeResult.NodeID = node.ID
	nodeResult.RunIndex = runIndex

	ne.metrics.IncrementNodesSkipped()
	ne.logger.Debug("node disabled, skipping", "node_id", node.ID, "run_index", runIndex)

	ne.storeNodeResult(ctx, ports.NodeResultRecord{
		NodeID:      node.ID,
		PluginID:    node.PluginID,
		RunIndex:    runIndex,
		Status:      ports.NodeResultSkipped,
		Signal:      domain.DefaultSignal,
		StartedAt:   startedAt,
		CompletedAt: startedAt,
	})

	return nodeOutcome{NodeID: node.ID, Result: nodeResult}
}

func (ne *NodeExecutor) fail(ctx context.Context, node domain.Node, startedAt time.Time, iteration *int, cause error) nodeOutcome {
	message, stack := domain.RootCause(cause)
	completedAt := ne.now()
	nodeErr := &domain.NodeError{Message: message, Stack: stack}

	nodeResult := domain.NodeExecutionResult{
		Status:      domain.NodeStatusError,
		Outputs:     domain.PortData{},
		Error:       nodeErr,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
	runIndex := ne.store.AddResult(node.ID, nodeResult)
	nodeResult.NodeID = node.ID
	nodeResult.RunIndex = runIndex

	ne.metrics.IncrementNodesFailed()
	ne.metrics.AddExecutionTime(nodeResult.Duration)

	ne.logger.Error("node failed", append([]any{
		"node_id", node.ID,
		"plugin_id", node.PluginID,
		"run_index", runIndex,
	}, errorLogAttrs(cause)...)...)

	ne.storeNodeResult(ctx, ports.NodeResultRecord{
		NodeID:      node.ID,
		PluginID:    node.PluginID,
		Iteration:   iteration,
		RunIndex:    runIndex,
		Status:      ports.NodeResultFailed,
		Error:       nodeErr,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	})

	return nodeOutcome{
		NodeID: node.ID,
		Result: nodeResult,
		Err: &domain.NodeExecutionError{
			NodeID:   node.ID,
			PluginID: node.PluginID,
			RunIndex: runIndex,
			Message:  message,
			Stack:    stack,
			Cause:    cause,
		},
	}
}

// resolveInputs maps data connections onto input ports. A connection
// without a source handle carries the whole output; one without a target
// handle lands under the source node id. Sources that have not run yet are
// skipped.
func (ne *NodeExecutor) resolveInputs(nodeID string) domain.PortData {
	inputs := domain.PortData{}
	for _, conn := range ne.graph.IncomingData(nodeID) {
		outputs, ok := ne.store.Outputs(conn.SourceNodeID)
		if !ok {
			continue
		}

		var value any = outputs
		if conn.SourceHandle != "" {
			v, found := domain.LookupPath(outputs, conn.SourceHandle)
			if !found {
				continue
			}
			value = v
		}

		key := conn.TargetHandle
		if key == "" {
			key = conn.SourceNodeID
		}
		inputs[key] = value
	}
	return inputs
}

func (ne *NodeExecutor) storeNodeResult(ctx context.Context, record ports.NodeResultRecord) {
	record.WorkflowID = ne.ids.WorkflowID
	record.RoutineID = ne.ids.RoutineID
	if err := ne.sink.StoreNodeResult(context.WithoutCancel(ctx), record); err != nil {
		ne.logger.Warn("failed to store node result",
			"node_id", record.NodeID,
			"run_index", record.RunIndex,
			"error", err,
		)
	}
}
