package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/routines/internal/adapters/graph"
	"github.com/eleven-am/routines/internal/adapters/loop"
	"github.com/eleven-am/routines/internal/adapters/state"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

const defaultTriggerType = "manual"

type Engine struct {
	config    domain.EngineConfig
	retry     domain.RetryConfig
	registry  ports.PluginRegistry
	runner    ports.ActivityRunner
	sink      ports.ExecutionSink
	logger    *slog.Logger
	metrics   *domain.ExecutionMetrics
	tracker   *MetricsTracker
	recovery  *RecoverableExecutor
	lifecycle *LifecycleManager
	now       func() time.Time
}

// NewEngine wires an engine. A nil runner calls plugins in-process with
// only the node timeout applied. A nil sink drops persistence events.
func NewEngine(config domain.EngineConfig, retry domain.RetryConfig, registry ports.PluginRegistry, runner ports.ActivityRunner, sink ports.ExecutionSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = directRunner{}
	}
	if sink == nil {
		sink = noopSink{}
	}
	if registry == nil {
		registry = emptyRegistry{}
	}

	metrics := domain.NewExecutionMetrics()
	tracker := NewMetricsTracker()

	return &Engine{
		config:    config,
		retry:     retry,
		registry:  registry,
		runner:    runner,
		sink:      sink,
		logger:    logger.With("component", "engine"),
		metrics:   metrics,
		tracker:   tracker,
		recovery:  NewRecoverableExecutor(logger, tracker, metrics),
		lifecycle: NewLifecycleManager(logger, HandlerConfig{Timeout: config.HandlerTimeout, MaxRetries: config.HandlerRetries}, tracker),
		now:       time.Now,
	}
}

func (e *Engine) Execute(ctx context.Context, def domain.RoutineDefinition) (*domain.RunResult, error) {
	return e.ExecuteWithOptions(ctx, def, ports.RunOptions{})
}

// ExecuteWithOptions validates def and, when it is valid, runs it to a
// terminal status. An invalid definition returns a *domain.ValidationError
// and no result. A failed or deadlocked run returns both the result,
// carrying the partial path, and the error that ended it.
func (e *Engine) ExecuteWithOptions(ctx context.Context, def domain.RoutineDefinition, opts ports.RunOptions) (*domain.RunResult, error) {
	g, plugins, validation, err := e.prepare(def)
	if err != nil {
		e.metrics.IncrementRunsRejected()
		return nil, err
	}
	if !validation.Valid {
		e.metrics.IncrementRunsRejected()
		e.logger.Warn("routine rejected by validation",
			"routine_id", def.RoutineID,
			"issues", len(validation.Errors),
		)
		return nil, &domain.ValidationError{Issues: validation.Errors}
	}
	for _, warning := range validation.Warnings {
		e.logger.Warn("routine validation warning", "routine_id", def.RoutineID, "warning", warning.String())
	}

	ids := e.newIdentity(def, opts)
	logger := e.logger.With(
		"execution_id", ids.ExecutionID,
		"workflow_id", ids.WorkflowID,
		"routine_id", ids.RoutineID,
	)

	startedAt := e.now()
	store := state.NewStore()
	loops := loop.NewController(g, logger)

	executor := &NodeExecutor{
		graph:    g,
		plugins:  plugins,
		store:    store,
		loops:    loops,
		runner:   e.runner,
		recovery: e.recovery,
		sink:     e.sink,
		options:  e.activityOptions(),
		ids:      ids,
		metrics:  e.metrics,
		logger:   logger.With("component", "node-executor"),
		now:      e.now,
	}
	scheduler := &Scheduler{
		graph:       g,
		store:       store,
		loops:       loops,
		executor:    executor,
		lifecycle:   e.lifecycle,
		metrics:     e.metrics,
		maxParallel: e.config.MaxParallelNodes,
		logger:      logger.With("component", "scheduler"),
		ids:         ids,
	}

	triggerType := opts.TriggerType
	if triggerType == "" {
		triggerType = defaultTriggerType
	}
	sinkCtx := context.WithoutCancel(ctx)
	if err := e.sink.CreateExecution(sinkCtx, ports.ExecutionRecord{
		WorkflowID:  ids.WorkflowID,
		RunID:       ids.RunID,
		ExecutionID: ids.ExecutionID,
		RoutineID:   ids.RoutineID,
		UserID:      ids.UserID,
		TriggerType: triggerType,
		TriggerData: g.TriggerData,
		StartedAt:   startedAt,
	}); err != nil {
		logger.Warn("failed to create execution record", "error", err)
	}
	e.updateStatus(sinkCtx, logger, ports.StatusUpdate{
		WorkflowID: ids.WorkflowID,
		RoutineID:  ids.RoutineID,
		Status:     domain.ExecutionStatusRunning,
		StartedAt:  &startedAt,
	})

	e.metrics.IncrementRunsStarted()
	logger.Info("run started", "nodes", len(g.Nodes), "trigger_type", triggerType)

	status, runErr := scheduler.Run(ctx, graph.FindEntryNodes(g.Nodes, g.Edges))
	e.lifecycle.WaitProgress()

	completedAt := e.now()
	snap := store.Snapshot()
	result := &domain.RunResult{
		ExecutionID:   ids.ExecutionID,
		WorkflowID:    ids.WorkflowID,
		RunID:         ids.RunID,
		RoutineID:     ids.RoutineID,
		Status:        status,
		ExecutionPath: snap.ExecutionPath,
		NodeResults:   snap.NodeResults,
		Errors:        snap.Errors,
		Warnings:      validation.Warnings,
		FailedNode:    scheduler.FailedNode(),
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
	}
	if runErr != nil {
		message, stack := domain.RootCause(runErr)
		var nodeErr *domain.NodeExecutionError
		if errors.As(runErr, &nodeErr) {
			message, stack = nodeErr.Message, nodeErr.Stack
		}
		var deadlock *domain.DeadlockError
		if errors.As(runErr, &deadlock) {
			message = deadlock.Error()
		}
		result.Error = &domain.NodeError{Message: message, Stack: stack}
	}

	update := ports.StatusUpdate{
		WorkflowID:    ids.WorkflowID,
		RoutineID:     ids.RoutineID,
		Status:        status.ExecutionStatus(),
		CompletedAt:   &completedAt,
		FailedNode:    result.FailedNode,
		ExecutionPath: result.ExecutionPath,
	}
	if result.Error != nil {
		update.Error = result.Error.Message
	}
	e.updateStatus(sinkCtx, logger, update)

	e.finish(sinkCtx, logger, result, runErr)
	return result, runErr
}

// Validate reports every structural problem of def without running it.
func (e *Engine) Validate(def domain.RoutineDefinition) domain.ValidationResult {
	_, _, validation, err := e.prepare(def)
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return domain.ValidationResult{Valid: false, Errors: validationErr.Issues}
		}
		return domain.ValidationResult{Valid: false, Errors: []domain.ValidationIssue{{Code: domain.IssueMissingID, Message: err.Error()}}}
	}
	return validation
}

func (e *Engine) GetExecutionMetrics() ports.EngineMetrics {
	return ports.EngineMetrics{
		Execution:      e.metrics.GetSnapshot(),
		PanicMetrics:   e.tracker.GetPanicMetrics(),
		HandlerMetrics: e.tracker.GetHandlerMetrics(),
	}
}

func (e *Engine) RegisterLifecycleHandlers(completion []ports.CompletionHandler, errorHandlers []ports.ErrorHandler) {
	e.lifecycle.RegisterHandlers(completion, errorHandlers)
}

func (e *Engine) OnProgress(handler ports.ProgressHandler) {
	e.lifecycle.RegisterProgress(handler)
}

func (e *Engine) prepare(def domain.RoutineDefinition) (*domain.ExecutionGraph, map[string]ports.Plugin, domain.ValidationResult, error) {
	g, err := graph.BuildGraph(def)
	if err != nil {
		return nil, nil, domain.ValidationResult{}, err
	}

	validation := graph.Validate(g)
	plugins, issues := graph.ResolvePlugins(g, e.registry)
	if len(issues) > 0 {
		validation.Errors = append(validation.Errors, issues...)
		validation.Valid = false
	}
	return g, plugins, validation, nil
}

func (e *Engine) newIdentity(def domain.RoutineDefinition, opts ports.RunOptions) runIdentity {
	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	return runIdentity{
		ExecutionID: executionID,
		WorkflowID:  "routine-" + def.RoutineID + "-" + executionID,
		RunID:       uuid.NewString(),
		RoutineID:   def.RoutineID,
		UserID:      def.UserID,
	}
}

func (e *Engine) activityOptions() ports.ActivityOptions {
	return ports.ActivityOptions{
		StartToCloseTimeout: e.config.NodeExecutionTimeout,
		HeartbeatTimeout:    e.config.HeartbeatTimeout,
		RetryPolicy:         ports.RetryPolicyFromConfig(e.retry),
	}
}

func (e *Engine) updateStatus(ctx context.Context, logger *slog.Logger, update ports.StatusUpdate) {
	if err := e.sink.UpdateStatus(ctx, update); err != nil {
		logger.Warn("failed to update execution status", "status", update.Status, "error", err)
	}
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, result *domain.RunResult, runErr error) {
	duration := result.CompletedAt.Sub(result.StartedAt)

	switch result.Status {
	case domain.RunStatusCompleted:
		e.metrics.IncrementRunsCompleted()
		logger.Info("run completed", "duration", duration, "path_length", len(result.ExecutionPath))

		if err := e.lifecycle.TriggerCompletion(ctx, domain.RunCompletedEvent{
			ExecutionID:   result.ExecutionID,
			RoutineID:     result.RoutineID,
			Result:        result,
			CompletedAt:   result.CompletedAt,
			ExecutedNodes: result.PathNodeIDs(),
			Duration:      duration,
		}); err != nil {
			logger.Warn("completion handlers reported a failure", "error", err)
		}
		return

	case domain.RunStatusDeadlocked:
		e.metrics.IncrementRunsDeadlocked()
	default:
		e.metrics.IncrementRunsFailed()
	}

	logger.Error("run failed", append([]any{
		"status", result.Status,
		"failed_node", result.FailedNode,
		"duration", duration,
	}, errorLogAttrs(runErr)...)...)

	if err := e.lifecycle.TriggerError(ctx, domain.RunErrorEvent{
		ExecutionID: result.ExecutionID,
		RoutineID:   result.RoutineID,
		Result:      result,
		Error:       runErr,
		FailedNode:  result.FailedNode,
		FailedAt:    result.CompletedAt,
		ErrorType:   string(result.Status),
	}); err != nil {
		logger.Warn("error handlers reported a failure", "error", err)
	}
}

// directRunner calls the activity once in-process, bounded by the
// start-to-close timeout. Retries and heartbeats need a real substrate.
type directRunner struct{}

func (directRunner) RunActivity(ctx context.Context, opts ports.ActivityOptions, fn ports.ActivityFunc) (*domain.PluginResult, error) {
	if opts.StartToCloseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.StartToCloseTimeout)
		defer cancel()
	}
	return fn(ctx)
}

type emptyRegistry struct{}

func (emptyRegistry) Resolve(pluginID string) (ports.Plugin, error) {
	return nil, domain.ErrUnknownPlugin
}

type noopSink struct{}

func (noopSink) CreateExecution(context.Context, ports.ExecutionRecord) error { return nil }
func (noopSink) UpdateStatus(context.Context, ports.StatusUpdate) error       { return nil }
func (noopSink) StoreNodeResult(context.Context, ports.NodeResultRecord) error {
	return nil
}

var _ ports.EnginePort = (*Engine)(nil)
