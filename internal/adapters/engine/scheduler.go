package engine

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/routines/internal/adapters/loop"
	"github.com/eleven-am/routines/internal/adapters/state"
	"github.com/eleven-am/routines/internal/domain"
)

// Scheduler drives one run wave by wave. It is not safe for reuse across
// runs; the engine builds a fresh one per execution.
type Scheduler struct {
	graph       *domain.ExecutionGraph
	store       *state.Store
	loops       *loop.Controller
	executor    *NodeExecutor
	lifecycle   *LifecycleManager
	metrics     *domain.ExecutionMetrics
	maxParallel int
	logger      *slog.Logger

	ids      runIdentity
	requeued map[string]bool
	failed   string
}

// Run traverses the graph from its entry nodes until the queue drains, a
// node fails, or no queued node can become ready.
func (s *Scheduler) Run(ctx context.Context, entries []string) (domain.RunStatus, error) {
	queue := domain.StableOrder(entries)
	s.requeued = make(map[string]bool)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return domain.RunStatusFailed, newExecutionError(schedulerComponent, "run cancelled", err).
				WithWorkflowID(s.ids.WorkflowID).
				WithOperation("run")
		}

		ready, dropped := s.findReadyNodes(queue)
		if len(dropped) > 0 {
			s.logger.Debug("dropping nodes whose incoming edges all went inactive", "node_ids", dropped)
			queue = without(queue, dropped)
		}
		if len(ready) == 0 {
			if len(queue) == 0 {
				break
			}
			s.logger.Error("deadlock detected", "stuck_nodes", queue, "stuck_count", len(queue))
			return domain.RunStatusDeadlocked, &domain.DeadlockError{StuckNodes: queue}
		}

		s.metrics.IncrementWaves()
		s.logger.Debug("executing wave", "node_ids", ready, "queued", len(queue))

		outcomes := s.runWave(ctx, ready)
		queue = without(queue, ready)

		entries := make([]domain.PathEntry, 0, len(outcomes))
		for _, o := range outcomes {
			entries = append(entries, domain.PathEntry{NodeID: o.NodeID, RunIndex: o.Result.RunIndex})
			s.store.MarkExecuted(o.NodeID)
			delete(s.requeued, o.NodeID)
		}
		s.store.AppendPath(entries...)

		for _, o := range outcomes {
			if o.Err != nil {
				s.failed = o.NodeID
				return domain.RunStatusFailed, o.Err
			}
		}

		var next []string
		for _, o := range outcomes {
			targets, err := s.determineNextNodes(o.NodeID, o.Result)
			if err != nil {
				s.failed = o.NodeID
				return domain.RunStatusFailed, err
			}
			next = append(next, targets...)

			s.lifecycle.TriggerProgress(domain.NodeCompletedEvent{
				ExecutionID: s.ids.ExecutionID,
				NodeID:      o.NodeID,
				RunIndex:    o.Result.RunIndex,
				Signal:      o.Result.Signal,
				CompletedAt: o.Result.CompletedAt,
				Duration:    o.Result.Duration,
				NextNodes:   domain.StableOrder(targets),
			})
		}

		for _, id := range next {
			if s.store.HasExecuted(id) || slices.Contains(queue, id) {
				continue
			}
			queue = append(queue, id)
		}
		queue = domain.StableOrder(queue)
	}

	return domain.RunStatusCompleted, nil
}

// FailedNode names the node that failed the run, if any.
func (s *Scheduler) FailedNode() string {
	return s.failed
}

// runWave executes every ready node and waits for all of them, failures
// included, so the wave's outcome does not depend on goroutine timing.
// Outcomes come back in the order of ready.
func (s *Scheduler) runWave(ctx context.Context, ready []string) []nodeOutcome {
	outcomes := make([]nodeOutcome, len(ready))

	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i, id := range ready {
		g.Go(func() error {
			outcomes[i] = s.executor.Execute(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// findReadyNodes splits the queue into nodes that can run now and nodes
// that never will because every incoming edge resolved inactive.
//
// An incoming non-loop edge is resolved once its source has executed, or
// once its source can no longer run (see liveness.pending). A node is
// ready when it was re-queued by a loop, or when all its incoming edges
// are resolved and it is an entry or at least one of them was activated.
func (s *Scheduler) findReadyNodes(queue []string) (ready, dropped []string) {
	live := s.newLiveness(queue)

	for _, id := range queue {
		if s.requeued[id] {
			ready = append(ready, id)
			continue
		}

		resolved, activated := true, false
		for _, edge := range s.graph.IncomingFlow(id) {
			if edge.IsLoop() {
				continue
			}
			if s.store.HasExecuted(edge.SourceNodeID) {
				active, _ := s.store.Activation(edge.ID)
				activated = activated || active
				continue
			}
			if live.pending(edge.SourceNodeID) {
				resolved = false
				break
			}
		}

		switch {
		case !resolved:
		case activated || s.graph.IsEntry(id):
			ready = append(ready, id)
		default:
			dropped = append(dropped, id)
		}
	}
	return ready, dropped
}

// liveness answers, for one readiness pass, whether a node that has not
// executed may still run.
type liveness struct {
	graph  *domain.ExecutionGraph
	store  *state.Store
	queued map[string]bool
	reach  map[string]bool
	memo   map[string]bool
}

func (s *Scheduler) newLiveness(queue []string) *liveness {
	queued := make(map[string]bool, len(queue))
	for _, id := range queue {
		queued[id] = true
	}
	return &liveness{
		graph:  s.graph,
		store:  s.store,
		queued: queued,
		reach:  s.reachableFrom(queue),
		memo:   make(map[string]bool),
	}
}

// pending reports whether id, which has not executed, can still run. A
// queued node can. A node fed by non-loop edges can while one of their
// sources that has not executed can; sources that executed have already
// decided. A node fed only by loop edges can while anything queued reaches
// it, since a loop may still restart it.
func (l *liveness) pending(id string) bool {
	if l.queued[id] {
		return true
	}
	if v, ok := l.memo[id]; ok {
		return v
	}
	l.memo[id] = false

	plain, pending := false, false
	for _, edge := range l.graph.IncomingFlow(id) {
		if edge.IsLoop() {
			continue
		}
		plain = true
		if !l.store.HasExecuted(edge.SourceNodeID) && l.pending(edge.SourceNodeID) {
			pending = true
			break
		}
	}
	if !plain {
		pending = l.reach[id]
	}

	l.memo[id] = pending
	return pending
}

// reachableFrom returns every node reachable from ids over flow edges,
// loop edges included, ids themselves included.
func (s *Scheduler) reachableFrom(ids []string) map[string]bool {
	seen := make(map[string]bool, len(s.graph.Nodes))
	stack := append([]string(nil), ids...)
	for _, id := range ids {
		seen[id] = true
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, edge := range s.graph.OutgoingFlow(id) {
			if !seen[edge.TargetNodeID] {
				seen[edge.TargetNodeID] = true
				stack = append(stack, edge.TargetNodeID)
			}
		}
	}
	return seen
}

// determineNextNodes records which outgoing edges the node's signal
// activated and returns the targets to queue. Matched loop edges go
// through the loop controller. While a loop out of this node keeps
// iterating, its other matched edges wait for the loop to stop; when the
// loop stops and the signal matches no plain edge, the node's default
// edges are followed as the loop exit.
func (s *Scheduler) determineNextNodes(nodeID string, result domain.NodeExecutionResult) ([]string, error) {
	outgoing := s.graph.OutgoingFlow(nodeID)
	signal := resolveSignal(result, outgoing)

	var next []string
	deferred, continuing, stopped := false, false, false
	for _, edge := range outgoing {
		if !edge.IsLoop() || edge.Handle() != signal {
			continue
		}

		cont, err := s.loops.UpdateLoopState(edge.ID, edge.TargetNodeID, edge.LoopConfig.MaxIterations, edge.LoopConfig.AccumulatorFields, result.Outputs, s.store)
		if err != nil {
			return nil, err
		}
		if !cont {
			stopped = true
			s.logger.Debug("loop stopped", "edge_id", edge.ID, "source_node", nodeID, "target_node", edge.TargetNodeID)
			continue
		}

		continuing = true
		deferred = deferred || slices.Contains(s.loops.BodyOf(edge.ID), nodeID)
		s.metrics.IncrementLoopIterations()
		s.restartLoop(edge)
		next = append(next, edge.TargetNodeID)
	}

	if deferred {
		return next, nil
	}

	plainSignal := signal
	if stopped && !continuing && !matchesPlain(outgoing, signal) {
		plainSignal = domain.DefaultSignal
	}

	for _, edge := range outgoing {
		if edge.IsLoop() {
			continue
		}
		active := edge.Handle() == plainSignal
		s.store.RecordActivation(edge.ID, active)
		if active {
			next = append(next, edge.TargetNodeID)
		}
	}

	return next, nil
}

// restartLoop prepares a loop body for another pass: body nodes may run
// again, the edges they fired are forgotten, nested loops start over and
// the target is queued regardless of its other predecessors.
func (s *Scheduler) restartLoop(edge *domain.FlowConnection) {
	body := s.loops.BodyOf(edge.ID)
	s.store.ClearExecuted(body...)

	var fired []string
	for _, id := range body {
		for _, out := range s.graph.OutgoingFlow(id) {
			if !out.IsLoop() {
				fired = append(fired, out.ID)
			}
		}
	}
	s.store.ResetActivations(fired...)

	for _, nested := range s.loops.Nested(edge.ID) {
		s.loops.Reset(nested, s.store)
	}

	s.requeued[edge.TargetNodeID] = true
}

// resolveSignal picks the signal a result emits: the explicit signal, else
// the single output key when it names an outgoing handle, else the default.
func resolveSignal(result domain.NodeExecutionResult, outgoing []*domain.FlowConnection) string {
	if result.Signal != "" {
		return result.Signal
	}
	if len(result.Outputs) == 1 {
		for key := range result.Outputs {
			for _, edge := range outgoing {
				if edge.Handle() == key {
					return key
				}
			}
		}
	}
	return domain.DefaultSignal
}

func matchesPlain(outgoing []*domain.FlowConnection, signal string) bool {
	for _, edge := range outgoing {
		if !edge.IsLoop() && edge.Handle() == signal {
			return true
		}
	}
	return false
}

func without(ids, remove []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if !slices.Contains(remove, id) {
			out = append(out, id)
		}
	}
	return out
}
