package domain

import (
	"time"
)

// RunStatus is the scheduler's state for a whole run.
type RunStatus string

const (
	RunStatusInitializing RunStatus = "initializing"
	RunStatusRunning      RunStatus = "running"
	RunStatusCompleted    RunStatus = "completed"
	RunStatusFailed       RunStatus = "failed"
	RunStatusDeadlocked   RunStatus = "deadlocked"
)

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusDeadlocked
}

// ExecutionStatus is the status reported to execution sinks.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

func (s RunStatus) ExecutionStatus() ExecutionStatus {
	switch s {
	case RunStatusCompleted:
		return ExecutionStatusCompleted
	case RunStatusFailed, RunStatusDeadlocked:
		return ExecutionStatusFailed
	default:
		return ExecutionStatusRunning
	}
}

// ExecutionContext is handed to every plugin invocation.
type ExecutionContext struct {
	UserID          string         `json:"userId"`
	RoutineID       string         `json:"routineId"`
	ExecutionID     string         `json:"executionId"`
	NodeID          string         `json:"nodeId"`
	TriggerData     map[string]any `json:"triggerData,omitempty"`
	LoopIteration   *int           `json:"loopIteration,omitempty"`
	LoopAccumulator map[string]any `json:"loopAccumulator,omitempty"`
}

type PluginResult struct {
	Signal string   `json:"signal,omitempty"`
	Data   PortData `json:"data"`
}

type RunResult struct {
	ExecutionID   string                           `json:"execution_id"`
	WorkflowID    string                           `json:"workflow_id"`
	RunID         string                           `json:"run_id"`
	RoutineID     string                           `json:"routine_id"`
	Status        RunStatus                        `json:"status"`
	ExecutionPath []PathEntry                      `json:"execution_path"`
	NodeResults   map[string][]NodeExecutionResult `json:"node_results"`
	Errors        []NodeErrorEntry                 `json:"errors,omitempty"`
	Warnings      []ValidationIssue                `json:"warnings,omitempty"`
	Error         *NodeError                       `json:"error,omitempty"`
	FailedNode    string                           `json:"failed_node,omitempty"`
	StartedAt     time.Time                        `json:"started_at"`
	CompletedAt   time.Time                        `json:"completed_at"`
}

// PathNodeIDs returns the node-id sequence of the execution path.
func (r *RunResult) PathNodeIDs() []string {
	ids := make([]string, 0, len(r.ExecutionPath))
	for _, entry := range r.ExecutionPath {
		ids = append(ids, entry.NodeID)
	}
	return ids
}

type LoopPhase string

const (
	LoopPhaseNotStarted           LoopPhase = "not_started"
	LoopPhaseIterating            LoopPhase = "iterating"
	LoopPhaseStoppedMaxIterations LoopPhase = "stopped_max_iterations"
	LoopPhaseStoppedCondition     LoopPhase = "stopped_condition"
)

func (p LoopPhase) Stopped() bool {
	return p == LoopPhaseStoppedMaxIterations || p == LoopPhaseStoppedCondition
}

type LoopState struct {
	EdgeID        string         `json:"edge_id"`
	Phase         LoopPhase      `json:"phase"`
	Iteration     int            `json:"iteration"`
	MaxIterations int            `json:"max_iterations"`
	Accumulator   map[string]any `json:"accumulator"`
	StartedAt     time.Time      `json:"started_at"`
}
