package engine

import "github.com/eleven-am/routines/internal/domain"

const (
	engineComponent    = "engine.Engine"
	schedulerComponent = "engine.Scheduler"
	executorComponent  = "engine.Executor"
	lifecycleComponent = "engine.Lifecycle"
)

func newExecutionError(component, message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := []domain.ErrorOption{domain.WithComponent(component)}
	if len(opts) > 0 {
		merged = append(merged, opts...)
	}
	return domain.NewExecutionError(message, cause, merged...)
}

func newPluginError(component, message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := []domain.ErrorOption{domain.WithComponent(component)}
	if len(opts) > 0 {
		merged = append(merged, opts...)
	}
	return domain.NewPluginError(message, cause, merged...)
}

func errorLogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	attrs := []any{
		"error", err,
		"error_category", domain.GetErrorCategory(err).String(),
		"error_severity", domain.GetErrorSeverity(err).String(),
		"error_retryable", domain.IsRetryableError(err),
		"error_user_facing", domain.IsUserFacingError(err),
	}

	if ctx := domain.GetErrorContext(err); ctx != nil {
		if ctx.Component != "" {
			attrs = append(attrs, "error_component", ctx.Component)
		}
		if ctx.Operation != "" {
			attrs = append(attrs, "error_operation", ctx.Operation)
		}
		if ctx.WorkflowID != "" {
			attrs = append(attrs, "workflow_id", ctx.WorkflowID)
		}
		if ctx.NodeID != "" {
			attrs = append(attrs, "node_id", ctx.NodeID)
		}
		if len(ctx.Details) > 0 {
			attrs = append(attrs, "error_details", ctx.Details)
		}
	}

	return attrs
}
