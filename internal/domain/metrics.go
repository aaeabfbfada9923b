package domain

import (
	"sync/atomic"
	"time"
)

type ExecutionMetrics struct {
	RunsStarted    int64 `json:"runs_started"`
	RunsCompleted  int64 `json:"runs_completed"`
	RunsFailed     int64 `json:"runs_failed"`
	RunsDeadlocked int64 `json:"runs_deadlocked"`
	RunsRejected   int64 `json:"runs_rejected"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`
	NodesSkipped   int64 `json:"nodes_skipped"`
	NodesPanicked  int64 `json:"nodes_panicked"`

	LoopIterations int64 `json:"loop_iterations"`
	Waves          int64 `json:"waves"`

	TotalExecutionTimeNs int64 `json:"total_execution_time_ns"`
	NodeExecutionCount   int64 `json:"node_execution_count"`
}

func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{}
}

func (m *ExecutionMetrics) IncrementRunsStarted() {
	atomic.AddInt64(&m.RunsStarted, 1)
}

func (m *ExecutionMetrics) IncrementRunsCompleted() {
	atomic.AddInt64(&m.RunsCompleted, 1)
}

func (m *ExecutionMetrics) IncrementRunsFailed() {
	atomic.AddInt64(&m.RunsFailed, 1)
}

func (m *ExecutionMetrics) IncrementRunsDeadlocked() {
	atomic.AddInt64(&m.RunsDeadlocked, 1)
}

func (m *ExecutionMetrics) IncrementRunsRejected() {
	atomic.AddInt64(&m.RunsRejected, 1)
}

func (m *ExecutionMetrics) IncrementNodesExecuted() {
	atomic.AddInt64(&m.NodesExecuted, 1)
}

func (m *ExecutionMetrics) IncrementNodesSucceeded() {
	atomic.AddInt64(&m.NodesSucceeded, 1)
}

func (m *ExecutionMetrics) IncrementNodesFailed() {
	atomic.AddInt64(&m.NodesFailed, 1)
}

func (m *ExecutionMetrics) IncrementNodesSkipped() {
	atomic.AddInt64(&m.NodesSkipped, 1)
}

func (m *ExecutionMetrics) IncrementNodesPanicked() {
	atomic.AddInt64(&m.NodesPanicked, 1)
}

func (m *ExecutionMetrics) IncrementLoopIterations() {
	atomic.AddInt64(&m.LoopIterations, 1)
}

func (m *ExecutionMetrics) IncrementWaves() {
	atomic.AddInt64(&m.Waves, 1)
}

func (m *ExecutionMetrics) AddExecutionTime(duration time.Duration) {
	atomic.AddInt64(&m.TotalExecutionTimeNs, int64(duration))
	atomic.AddInt64(&m.NodeExecutionCount, 1)
}

func (m *ExecutionMetrics) GetSnapshot() ExecutionMetrics {
	return ExecutionMetrics{
		RunsStarted:          atomic.LoadInt64(&m.RunsStarted),
		RunsCompleted:        atomic.LoadInt64(&m.RunsCompleted),
		RunsFailed:           atomic.LoadInt64(&m.RunsFailed),
		RunsDeadlocked:       atomic.LoadInt64(&m.RunsDeadlocked),
		RunsRejected:         atomic.LoadInt64(&m.RunsRejected),
		NodesExecuted:        atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:       atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:          atomic.LoadInt64(&m.NodesFailed),
		NodesSkipped:         atomic.LoadInt64(&m.NodesSkipped),
		NodesPanicked:        atomic.LoadInt64(&m.NodesPanicked),
		LoopIterations:       atomic.LoadInt64(&m.LoopIterations),
		Waves:                atomic.LoadInt64(&m.Waves),
		TotalExecutionTimeNs: atomic.LoadInt64(&m.TotalExecutionTimeNs),
		NodeExecutionCount:   atomic.LoadInt64(&m.NodeExecutionCount),
	}
}

func (m *ExecutionMetrics) GetAverageExecutionTime() time.Duration {
	totalNs := atomic.LoadInt64(&m.TotalExecutionTimeNs)
	count := atomic.LoadInt64(&m.NodeExecutionCount)

	if count == 0 {
		return 0
	}

	return time.Duration(totalNs / count)
}

func (m *ExecutionMetrics) Reset() {
	atomic.StoreInt64(&m.RunsStarted, 0)
	atomic.StoreInt64(&m.RunsCompleted, 0)
	atomic.StoreInt64(&m.RunsFailed, 0)
	atomic.StoreInt64(&m.RunsDeadlocked, 0)
	atomic.StoreInt64(&m.RunsRejected, 0)
	atomic.StoreInt64(&m.NodesExecuted, 0)
	atomic.StoreInt64(&m.NodesSucceeded, 0)
	atomic.StoreInt64(&m.NodesFailed, 0)
	atomic.StoreInt64(&m.NodesSkipped, 0)
	atomic.StoreInt64(&m.NodesPanicked, 0)
	atomic.StoreInt64(&m.LoopIterations, 0)
	atomic.StoreInt64(&m.Waves, 0)
	atomic.StoreInt64(&m.TotalExecutionTimeNs, 0)
	atomic.StoreInt64(&m.NodeExecutionCount, 0)
}
