package ports

import (
	"context"
	"time"

	"github.com/eleven-am/routines/internal/domain"
)

type NodeResultStatus string

const (
	NodeResultCompleted NodeResultStatus = "completed"
	NodeResultFailed    NodeResultStatus = "failed"
	NodeResultSkipped   NodeResultStatus = "skipped"
)

type ExecutionRecord struct {
	WorkflowID  string         `json:"workflowId"`
	RunID       string         `json:"runId"`
	ExecutionID string         `json:"executionId"`
	RoutineID   string         `json:"routineId"`
	UserID      string         `json:"userId"`
	TriggerType string         `json:"triggerType"`
	TriggerData map[string]any `json:"triggerData,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
}

type StatusUpdate struct {
	WorkflowID    string                 `json:"workflowId"`
	RoutineID     string                 `json:"routineId"`
	Status        domain.ExecutionStatus `json:"status"`
	StartedAt     *time.Time             `json:"startedAt,omitempty"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	Error         string                 `json:"error,omitempty"`
	FailedNode    string                 `json:"failedNode,omitempty"`
	ExecutionPath []domain.PathEntry     `json:"executionPath,omitempty"`
}

type NodeResultRecord struct {
	WorkflowID  string            `json:"workflowId"`
	RoutineID   string            `json:"routineId"`
	NodeID      string            `json:"nodeId"`
	PluginID    string            `json:"pluginId"`
	Iteration   *int              `json:"iteration,omitempty"`
	RunIndex    int               `json:"runIndex"`
	Status      NodeResultStatus  `json:"status"`
	Signal      string            `json:"signal,omitempty"`
	Output      domain.PortData   `json:"output,omitempty"`
	Error       *domain.NodeError `json:"error,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt time.Time         `json:"completedAt"`
}

// ExecutionSink receives the engine's persistence events. The engine does
// not wait on sink failures; they are logged and the run continues.
// Implementations must be safe for concurrent use.
type ExecutionSink interface {
	CreateExecution(ctx context.Context, record ExecutionRecord) error
	UpdateStatus(ctx context.Context, update StatusUpdate) error
	StoreNodeResult(ctx context.Context, record NodeResultRecord) error
}

// ExecutionSummary is an execution record folded with its latest status.
type ExecutionSummary struct {
	ExecutionRecord
	Status        domain.ExecutionStatus `json:"status"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	Error         string                 `json:"error,omitempty"`
	FailedNode    string                 `json:"failedNode,omitempty"`
	ExecutionPath []domain.PathEntry     `json:"executionPath,omitempty"`
}

// ExecutionHistory is the query side of a sink.
type ExecutionHistory interface {
	GetExecution(ctx context.Context, workflowID string) (*ExecutionSummary, error)
	ListNodeResults(ctx context.Context, workflowID string) ([]NodeResultRecord, error)
}

type ExecutionStore interface {
	ExecutionSink
	ExecutionHistory
	Close() error
}

// ApplyStatus folds an update into a summary, keeping earlier fields the
// update leaves empty.
func (s *ExecutionSummary) ApplyStatus(update StatusUpdate) {
	s.Status = update.Status
	if update.StartedAt != nil {
		s.StartedAt = *update.StartedAt
	}
	if update.CompletedAt != nil {
		completed := *update.CompletedAt
		s.CompletedAt = &completed
	}
	if update.Error != "" {
		s.Error = update.Error
	}
	if update.FailedNode != "" {
		s.FailedNode = update.FailedNode
	}
	if update.ExecutionPath != nil {
		s.ExecutionPath = append([]domain.PathEntry(nil), update.ExecutionPath...)
	}
}
