package domain

import "time"

type RunCompletedEvent struct {
	ExecutionID   string        `json:"execution_id"`
	RoutineID     string        `json:"routine_id"`
	Result        *RunResult    `json:"result"`
	CompletedAt   time.Time     `json:"completed_at"`
	ExecutedNodes []string      `json:"executed_nodes"`
	Duration      time.Duration `json:"duration"`
}

type RunErrorEvent struct {
	ExecutionID string     `json:"execution_id"`
	RoutineID   string     `json:"routine_id"`
	Result      *RunResult `json:"result"`
	Error       error      `json:"-"`
	FailedNode  string     `json:"failed_node,omitempty"`
	FailedAt    time.Time  `json:"failed_at"`
	ErrorType   string     `json:"error_type"`
}

type HandlerExecutionResult struct {
	HandlerType string        `json:"handler_type"`
	ExecutionID string        `json:"execution_id"`
	ExecutedAt  time.Time     `json:"executed_at"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Retries     int           `json:"retries"`
}
