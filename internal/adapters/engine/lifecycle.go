package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// LifecycleManager runs user callbacks around a run. Completion and error
// handlers run concurrently once a run is terminal; progress handlers run
// after every node. Handler failures are logged and never change the run
// outcome.
type LifecycleManager struct {
	completionHandlers []ports.CompletionHandler
	errorHandlers      []ports.ErrorHandler
	progressHandlers   []ports.ProgressHandler
	logger             *slog.Logger
	handlerTimeout     time.Duration
	maxRetries         int
	metricsTracker     *MetricsTracker
	mu                 sync.RWMutex
	pending            sync.WaitGroup
}

type HandlerConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

func NewLifecycleManager(logger *slog.Logger, config HandlerConfig, metricsTracker *MetricsTracker) *LifecycleManager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &LifecycleManager{
		logger:         logger.With("component", "lifecycle-manager"),
		handlerTimeout: config.Timeout,
		maxRetries:     config.MaxRetries,
		metricsTracker: metricsTracker,
	}
}

func (lm *LifecycleManager) RegisterHandlers(completion []ports.CompletionHandler, errors []ports.ErrorHandler) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.completionHandlers = append(lm.completionHandlers, completion...)
	lm.errorHandlers = append(lm.errorHandlers, errors...)

	lm.logger.Debug("lifecycle handlers registered",
		"completion_handlers", len(completion),
		"error_handlers", len(errors),
		"total_completion", len(lm.completionHandlers),
		"total_error", len(lm.errorHandlers),
	)
}

func (lm *LifecycleManager) RegisterProgress(handler ports.ProgressHandler) {
	if handler == nil {
		return
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.progressHandlers = append(lm.progressHandlers, handler)
}

// TriggerCompletion runs every completion handler and returns the first
// failure, if any.
func (lm *LifecycleManager) TriggerCompletion(ctx context.Context, event domain.RunCompletedEvent) error {
	lm.mu.RLock()
	handlers := append([]ports.CompletionHandler(nil), lm.completionHandlers...)
	lm.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	lm.logger.Info("triggering completion handlers",
		"execution_id", event.ExecutionID,
		"handler_count", len(handlers),
	)

	return lm.fanOut(len(handlers), func(i int) error {
		result := lm.executeWithRecovery(ctx, "completion", i, event.ExecutionID, func(ctx context.Context) error {
			return handlers[i](ctx, event)
		})
		if lm.metricsTracker != nil {
			lm.metricsTracker.RecordCompletionHandler(result.Duration, result.Success)
		}
		return lm.report(result, i)
	})
}

func (lm *LifecycleManager) TriggerError(ctx context.Context, event domain.RunErrorEvent) error {
	lm.mu.RLock()
	handlers := append([]ports.ErrorHandler(nil), lm.errorHandlers...)
	lm.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	lm.logger.Info("triggering error handlers",
		"execution_id", event.ExecutionID,
		"handler_count", len(handlers),
		"error_type", event.ErrorType,
		"failed_node", event.FailedNode,
	)

	return lm.fanOut(len(handlers), func(i int) error {
		result := lm.executeWithRecovery(ctx, "error", i, event.ExecutionID, func(ctx context.Context) error {
			return handlers[i](ctx, event)
		})
		if lm.metricsTracker != nil {
			lm.metricsTracker.RecordErrorHandler(result.Duration, result.Success)
		}
		return lm.report(result, i)
	})
}

// TriggerProgress dispatches event to the progress handlers without
// blocking the scheduler. WaitProgress blocks until they have returned.
func (lm *LifecycleManager) TriggerProgress(event domain.NodeCompletedEvent) {
	lm.mu.RLock()
	handlers := append([]ports.ProgressHandler(nil), lm.progressHandlers...)
	lm.mu.RUnlock()

	for i, handler := range handlers {
		lm.pending.Add(1)
		go func(i int, h ports.ProgressHandler) {
			defer lm.pending.Done()
			result := lm.executeWithRecovery(context.Background(), "progress", i, event.ExecutionID, func(context.Context) error {
				h(event)
				return nil
			})
			if !result.Success {
				lm.logger.Error("progress handler failed",
					"execution_id", event.ExecutionID,
					"node_id", event.NodeID,
					"handler_index", i,
					"error", result.Error,
				)
			}
		}(i, handler)
	}
}

func (lm *LifecycleManager) WaitProgress() {
	lm.pending.Wait()
}

func (lm *LifecycleManager) fanOut(n int, run func(i int) error) error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = run(i)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (lm *LifecycleManager) report(result domain.HandlerExecutionResult, index int) error {
	if result.Success {
		lm.logger.Debug("lifecycle handler executed",
			"handler_type", result.HandlerType,
			"execution_id", result.ExecutionID,
			"handler_index", index,
			"duration", result.Duration,
		)
		return nil
	}

	lm.logger.Error("lifecycle handler failed",
		"handler_type", result.HandlerType,
		"execution_id", result.ExecutionID,
		"handler_index", index,
		"error", result.Error,
		"retries", result.Retries,
	)
	return fmt.Errorf("%s handler %d failed: %s", result.HandlerType, index, result.Error)
}

func (lm *LifecycleManager) executeWithRecovery(parent context.Context, handlerType string, handlerIndex int, executionID string, handlerFunc func(context.Context) error) domain.HandlerExecutionResult {
	result := domain.HandlerExecutionResult{
		HandlerType: handlerType,
		ExecutionID: executionID,
		ExecutedAt:  time.Now(),
	}

	base := context.WithoutCancel(parent)

	for attempt := 0; attempt <= lm.maxRetries; attempt++ {
		if attempt > 0 {
			result.Retries = attempt
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}

		startTime := time.Now()
		ctx, cancel := context.WithTimeout(base, lm.handlerTimeout)

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Error("lifecycle handler panicked",
						"handler_type", handlerType,
						"handler_index", handlerIndex,
						"execution_id", executionID,
						"panic_value", r,
						"attempt", attempt+1,
					)
					done <- newExecutionError(lifecycleComponent, fmt.Sprintf("handler panicked: %v", r), nil,
						domain.WithSeverity(domain.SeverityCritical),
						domain.WithCode("EXECUTION_PANIC"),
						domain.WithDetail("handler_type", handlerType),
					)
				}
			}()
			done <- handlerFunc(ctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Success = true
				result.Error = ""
			}
		case <-ctx.Done():
			result.Error = "handler timeout exceeded"
			if lm.metricsTracker != nil {
				lm.metricsTracker.RecordHandlerTimeout()
			}
			lm.logger.Warn("lifecycle handler timeout",
				"handler_type", handlerType,
				"handler_index", handlerIndex,
				"execution_id", executionID,
				"timeout", lm.handlerTimeout,
				"attempt", attempt+1,
			)
		}
		cancel()
		result.Duration = time.Since(startTime)

		if result.Success {
			break
		}

		if attempt < lm.maxRetries {
			lm.logger.Warn("retrying lifecycle handler",
				"handler_type", handlerType,
				"handler_index", handlerIndex,
				"execution_id", executionID,
				"attempt", attempt+1,
				"error", result.Error,
			)
		}
	}

	return result
}
