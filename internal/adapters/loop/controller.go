package loop

import (
	"log/slog"
	"slices"
	"time"

	"github.com/eleven-am/routines/internal/domain"
)

// BreakKey is the output field a node inside a loop sets to true to end
// the loop before it reaches its iteration limit.
const BreakKey = "break"

// StateStore is the slice of the execution state the controller needs.
type StateStore interface {
	GetState(nodeID string) map[string]any
	SetState(nodeID string, values map[string]any)
}

type Controller struct {
	graph      *domain.ExecutionGraph
	loops      map[string]*domain.FlowConnection
	bodies     map[string][]string
	membership map[string][]string
	logger     *slog.Logger
	now        func() time.Time
}

func NewController(g *domain.ExecutionGraph, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		graph:      g,
		loops:      make(map[string]*domain.FlowConnection),
		bodies:     make(map[string][]string),
		membership: make(map[string][]string),
		logger:     logger.With("component", "loop-controller", "routine_id", g.RoutineID),
		now:        time.Now,
	}

	for _, id := range domain.SortedKeys(g.EdgesByID) {
		flow, ok := g.EdgesByID[id].(*domain.FlowConnection)
		if !ok || !flow.IsLoop() || !g.HasNode(flow.SourceNodeID) || !g.HasNode(flow.TargetNodeID) {
			continue
		}
		c.loops[id] = flow
		body := Body(g, flow)
		c.bodies[id] = body
		for _, nodeID := range body {
			c.membership[nodeID] = append(c.membership[nodeID], id)
		}
	}

	// Innermost loop first: smallest body, then edge id.
	for nodeID, edgeIDs := range c.membership {
		slices.SortFunc(edgeIDs, func(a, b string) int {
			if d := len(c.bodies[a]) - len(c.bodies[b]); d != 0 {
				return d
			}
			if a < b {
				return -1
			}
			if a > b {
				return 1
			}
			return 0
		})
		c.membership[nodeID] = edgeIDs
	}

	return c
}

func StateKey(edgeID string) string {
	return "loop:" + edgeID
}

// UpdateLoopState records one traversal of a loop edge and reports whether
// the loop should run again. The accumulator takes the named fields of
// latestOutput, later values winning.
func (c *Controller) UpdateLoopState(edgeID, targetID string, maxIterations int, accumulatorFields []string, latestOutput domain.PortData, store StateStore) (bool, error) {
	states := store.GetState(targetID)
	ls := c.read(states, edgeID, maxIterations)

	if ls.Phase.Stopped() {
		return false, nil
	}

	accumulator, err := domain.MergeAccumulator(ls.Accumulator, latestOutput, accumulatorFields)
	if err != nil {
		return false, err
	}
	ls.Accumulator = accumulator
	ls.Iteration++

	switch {
	case breakRequested(latestOutput):
		ls.Phase = domain.LoopPhaseStoppedCondition
	case ls.Iteration >= ls.MaxIterations:
		ls.Phase = domain.LoopPhaseStoppedMaxIterations
	default:
		ls.Phase = domain.LoopPhaseIterating
	}

	states[StateKey(edgeID)] = ls
	store.SetState(targetID, states)

	c.logger.Debug("loop state updated",
		"edge_id", edgeID,
		"target_node", targetID,
		"iteration", ls.Iteration,
		"max_iterations", ls.MaxIterations,
		"phase", ls.Phase,
	)

	return ls.Phase == domain.LoopPhaseIterating, nil
}

// State returns the stored loop state for edgeID, if any.
func (c *Controller) State(edgeID string, store StateStore) (domain.LoopState, bool) {
	flow, ok := c.loops[edgeID]
	if !ok {
		return domain.LoopState{}, false
	}
	ls, ok := store.GetState(flow.TargetNodeID)[StateKey(edgeID)].(domain.LoopState)
	return ls, ok
}

// Reset forgets the state of a loop so it starts over the next time its
// edge is traversed.
func (c *Controller) Reset(edgeID string, store StateStore) {
	flow, ok := c.loops[edgeID]
	if !ok {
		return
	}
	states := store.GetState(flow.TargetNodeID)
	if _, exists := states[StateKey(edgeID)]; !exists {
		return
	}
	delete(states, StateKey(edgeID))
	store.SetState(flow.TargetNodeID, states)
}

// Context returns the iteration and accumulator of the innermost loop
// that contains nodeID and has not stopped.
func (c *Controller) Context(nodeID string, store StateStore) (int, map[string]any, bool) {
	for _, edgeID := range c.membership[nodeID] {
		flow := c.loops[edgeID]
		ls, ok := store.GetState(flow.TargetNodeID)[StateKey(edgeID)].(domain.LoopState)
		if !ok {
			return 0, map[string]any{}, true
		}
		if ls.Phase.Stopped() {
			continue
		}
		accumulator, _ := domain.CloneValue(ls.Accumulator).(map[string]any)
		if accumulator == nil {
			accumulator = map[string]any{}
		}
		return ls.Iteration, accumulator, true
	}
	return 0, nil, false
}

// BodyOf returns the precomputed body of a loop edge.
func (c *Controller) BodyOf(edgeID string) []string {
	return c.bodies[edgeID]
}

// Nested returns the loops, other than edgeID, that lie entirely inside
// its body.
func (c *Controller) Nested(edgeID string) []string {
	body := c.bodies[edgeID]
	inBody := make(map[string]bool, len(body))
	for _, id := range body {
		inBody[id] = true
	}

	var nested []string
	for _, id := range domain.SortedKeys(c.loops) {
		if id == edgeID {
			continue
		}
		flow := c.loops[id]
		if inBody[flow.SourceNodeID] && inBody[flow.TargetNodeID] {
			nested = append(nested, id)
		}
	}
	return nested
}

func (c *Controller) read(states map[string]any, edgeID string, maxIterations int) domain.LoopState {
	if ls, ok := states[StateKey(edgeID)].(domain.LoopState); ok {
		return ls
	}
	return domain.LoopState{
		EdgeID:        edgeID,
		Phase:         domain.LoopPhaseNotStarted,
		MaxIterations: maxIterations,
		Accumulator:   map[string]any{},
		StartedAt:     c.now(),
	}
}

func breakRequested(output domain.PortData) bool {
	flag, ok := output[BreakKey].(bool)
	return ok && flag
}

// Body returns, sorted, the nodes on non-loop flow paths from the loop's
// target to its source, both included. A loop whose target cannot reach
// its source has a body of just the target.
func Body(g *domain.ExecutionGraph, edge *domain.FlowConnection) []string {
	if edge.SourceNodeID == edge.TargetNodeID {
		return []string{edge.TargetNodeID}
	}

	forward := walk(edge.TargetNodeID, func(id string) []string {
		var next []string
		for _, e := range g.FlowOut[id] {
			if !e.IsLoop() {
				next = append(next, e.TargetNodeID)
			}
		}
		return next
	})
	backward := walk(edge.SourceNodeID, func(id string) []string {
		var prev []string
		for _, e := range g.FlowIn[id] {
			if !e.IsLoop() {
				prev = append(prev, e.SourceNodeID)
			}
		}
		return prev
	})

	var body []string
	for id := range forward {
		if backward[id] {
			body = append(body, id)
		}
	}
	if len(body) == 0 {
		return []string{edge.TargetNodeID}
	}
	return domain.StableOrder(body)
}

func walk(start string, next func(string) []string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range next(id) {
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return seen
}
