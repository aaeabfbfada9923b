package domain

import (
	"fmt"
	"runtime"
	"strconv"
	"time"
)

type NodeCompletedEvent struct {
	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	RunIndex    int           `json:"run_index"`
	Signal      string        `json:"signal"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	NextNodes   []string      `json:"next_nodes,omitempty"`
}

type NodePanicError struct {
	ExecutionID string      `json:"execution_id"`
	NodeID      string      `json:"node_id"`
	PanicValue  interface{} `json:"panic_value"`
	Stack       string      `json:"stack_trace"`
	Timestamp   time.Time   `json:"timestamp"`
	RecoveredAt string      `json:"recovered_at"`
}

func (e *NodePanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.PanicValue)
}

func (e *NodePanicError) StackTrace() string {
	return e.Stack
}

func NewPanicError(executionID, nodeID string, panicValue interface{}) *NodePanicError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	pc, file, line, ok := runtime.Caller(2)
	recoveredAt := "unknown"
	if ok {
		fn := runtime.FuncForPC(pc)
		if fn != nil {
			recoveredAt = fn.Name() + " at " + file + ":" + strconv.Itoa(line)
		}
	}

	return &NodePanicError{
		ExecutionID: executionID,
		NodeID:      nodeID,
		PanicValue:  panicValue,
		Stack:       string(buf[:n]),
		Timestamp:   time.Now(),
		RecoveredAt: recoveredAt,
	}
}
