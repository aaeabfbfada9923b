package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// RecoverableExecutor invokes plugins and turns a panic into a
// *domain.NodePanicError so one misbehaving plugin fails its node instead
// of the process.
type RecoverableExecutor struct {
	logger         *slog.Logger
	metricsTracker *MetricsTracker
	counters       *domain.ExecutionMetrics
}

func NewRecoverableExecutor(logger *slog.Logger, metricsTracker *MetricsTracker, counters *domain.ExecutionMetrics) *RecoverableExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoverableExecutor{
		logger:         logger.With("component", "recoverable-executor"),
		metricsTracker: metricsTracker,
		counters:       counters,
	}
}

func (re *RecoverableExecutor) ExecuteWithRecovery(ctx context.Context, plugin ports.Plugin, req ports.PluginRequest) (result *domain.PluginResult, err error) {
	startTime := time.Now()
	execCtx := req.Context

	defer func() {
		if r := recover(); r != nil {
			duration := time.Since(startTime)
			panicErr := domain.NewPanicError(execCtx.ExecutionID, execCtx.NodeID, r)

			if re.metricsTracker != nil {
				re.metricsTracker.RecordPanic(duration)
			}
			if re.counters != nil {
				re.counters.IncrementNodesPanicked()
			}

			re.logger.Error("plugin panicked",
				"execution_id", execCtx.ExecutionID,
				"node_id", execCtx.NodeID,
				"plugin_id", req.PluginID,
				"panic_value", r,
				"duration", duration,
				"recovered_at", panicErr.RecoveredAt,
			)

			result = nil
			err = panicErr
		}
	}()

	result, err = plugin.Execute(domain.WithExecutionContext(ctx, &execCtx), req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &domain.PluginResult{}
	}
	if result.Data == nil {
		result.Data = domain.PortData{}
	}

	re.logger.Debug("plugin returned",
		"execution_id", execCtx.ExecutionID,
		"node_id", execCtx.NodeID,
		"signal", result.Signal,
		"duration", time.Since(startTime),
	)
	return result, nil
}
