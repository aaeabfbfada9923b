package ports

import (
	"context"
	"time"

	"github.com/eleven-am/routines/internal/domain"
)

type RunOptions struct {
	ExecutionID string
	TriggerType string
}

type EnginePort interface {
	Execute(ctx context.Context, def domain.RoutineDefinition) (*domain.RunResult, error)
	ExecuteWithOptions(ctx context.Context, def domain.RoutineDefinition, opts RunOptions) (*domain.RunResult, error)
	Validate(def domain.RoutineDefinition) domain.ValidationResult
	GetExecutionMetrics() EngineMetrics
	RegisterLifecycleHandlers(completion []CompletionHandler, errors []ErrorHandler)
	OnProgress(handler ProgressHandler)
}

type CompletionHandler func(ctx context.Context, event domain.RunCompletedEvent) error

type ErrorHandler func(ctx context.Context, event domain.RunErrorEvent) error

type ProgressHandler func(event domain.NodeCompletedEvent)

type EngineMetrics struct {
	Execution      domain.ExecutionMetrics `json:"execution"`
	PanicMetrics   PanicMetrics            `json:"panic_metrics"`
	HandlerMetrics HandlerMetrics          `json:"handler_metrics"`
}

type PanicMetrics struct {
	TotalPanics         int64         `json:"total_panics"`
	PanicsLastHour      int64         `json:"panics_last_hour"`
	AverageRecoveryTime time.Duration `json:"average_recovery_time"`
	LastPanicAt         *time.Time    `json:"last_panic_at,omitempty"`
}

type HandlerMetrics struct {
	CompletionHandlersExecuted int64         `json:"completion_handlers_executed"`
	ErrorHandlersExecuted      int64         `json:"error_handlers_executed"`
	HandlerFailures            int64         `json:"handler_failures"`
	AverageHandlerTime         time.Duration `json:"average_handler_time"`
	HandlerTimeouts            int64         `json:"handler_timeouts"`
}
