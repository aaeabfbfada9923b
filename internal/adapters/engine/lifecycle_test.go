package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

type MockPlugin struct {
	mock.Mock
}

func (m *MockPlugin) Execute(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.PluginResult)
	return result, args.Error(1)
}

func testRequest() ports.PluginRequest {
	return ports.PluginRequest{
		PluginID: "mock",
		Context:  domain.ExecutionContext{ExecutionID: "exec-1", NodeID: "A"},
	}
}

func TestRecoverableExecutor_Success(t *testing.T) {
	tracker := NewMetricsTracker()
	executor := NewRecoverableExecutor(slog.Default(), tracker, domain.NewExecutionMetrics())

	plugin := new(MockPlugin)
	plugin.On("Execute", mock.Anything, mock.Anything).Return(&domain.PluginResult{Signal: "true", Data: domain.PortData{"ok": true}}, nil)

	result, err := executor.ExecuteWithRecovery(context.Background(), plugin, testRequest())

	require.NoError(t, err)
	assert.Equal(t, "true", result.Signal)
	assert.Equal(t, domain.PortData{"ok": true}, result.Data)
	assert.Equal(t, int64(0), tracker.GetPanicMetrics().TotalPanics)
	plugin.AssertExpectations(t)
}

func TestRecoverableExecutor_ExposesExecutionContext(t *testing.T) {
	executor := NewRecoverableExecutor(nil, nil, nil)

	var seen *domain.ExecutionContext
	plugin := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		seen, _ = domain.GetExecutionContext(ctx)
		return nil, nil
	})

	result, err := executor.ExecuteWithRecovery(context.Background(), plugin, testRequest())
	require.NoError(t, err)
	assert.NotNil(t, result.Data, "a nil result becomes an empty one")
	require.NotNil(t, seen)
	assert.Equal(t, "A", seen.NodeID)
}

func TestRecoverableExecutor_PanicBecomesError(t *testing.T) {
	tracker := NewMetricsTracker()
	counters := domain.NewExecutionMetrics()
	executor := NewRecoverableExecutor(slog.Default(), tracker, counters)

	plugin := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		panic("boom")
	})

	result, err := executor.ExecuteWithRecovery(context.Background(), plugin, testRequest())

	assert.Nil(t, result)
	var panicErr *domain.NodePanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "A", panicErr.NodeID)
	assert.Equal(t, "boom", panicErr.PanicValue)
	assert.NotEmpty(t, panicErr.StackTrace())

	metrics := tracker.GetPanicMetrics()
	assert.Equal(t, int64(1), metrics.TotalPanics)
	assert.Equal(t, int64(1), metrics.PanicsLastHour)
	assert.NotNil(t, metrics.LastPanicAt)
	assert.Equal(t, int64(1), counters.GetSnapshot().NodesPanicked)
}

func TestRecoverableExecutor_PluginErrorPassesThrough(t *testing.T) {
	executor := NewRecoverableExecutor(nil, nil, nil)
	plugin := new(MockPlugin)
	plugin.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("nope"))

	_, err := executor.ExecuteWithRecovery(context.Background(), plugin, testRequest())
	assert.EqualError(t, err, "nope")
}

func TestLifecycleManager_CompletionHandlers(t *testing.T) {
	tracker := NewMetricsTracker()
	lm := NewLifecycleManager(slog.Default(), HandlerConfig{Timeout: time.Second}, tracker)

	var calls int32
	lm.RegisterHandlers([]ports.CompletionHandler{
		func(ctx context.Context, event domain.RunCompletedEvent) error {
			atomic.AddInt32(&calls, 1)
			assert.Equal(t, "exec-1", event.ExecutionID)
			return nil
		},
		func(ctx context.Context, event domain.RunCompletedEvent) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}, nil)

	err := lm.TriggerCompletion(context.Background(), domain.RunCompletedEvent{ExecutionID: "exec-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(2), tracker.GetHandlerMetrics().CompletionHandlersExecuted)
}

func TestLifecycleManager_ErrorHandlerRetriesThenSucceeds(t *testing.T) {
	tracker := NewMetricsTracker()
	lm := NewLifecycleManager(slog.Default(), HandlerConfig{Timeout: time.Second, MaxRetries: 2}, tracker)

	var attempts int32
	lm.RegisterHandlers(nil, []ports.ErrorHandler{
		func(ctx context.Context, event domain.RunErrorEvent) error {
			if atomic.AddInt32(&attempts, 1) < 2 {
				return errors.New("transient")
			}
			return nil
		},
	})

	err := lm.TriggerError(context.Background(), domain.RunErrorEvent{ExecutionID: "exec-1", FailedNode: "B"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))

	metrics := tracker.GetHandlerMetrics()
	assert.Equal(t, int64(1), metrics.ErrorHandlersExecuted)
	assert.Equal(t, int64(0), metrics.HandlerFailures)
}

func TestLifecycleManager_PanickingHandlerReportsFailure(t *testing.T) {
	tracker := NewMetricsTracker()
	lm := NewLifecycleManager(slog.Default(), HandlerConfig{Timeout: time.Second}, tracker)
	lm.RegisterHandlers([]ports.CompletionHandler{
		func(ctx context.Context, event domain.RunCompletedEvent) error {
			panic("handler exploded")
		},
	}, nil)

	err := lm.TriggerCompletion(context.Background(), domain.RunCompletedEvent{ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panicked")
	assert.Equal(t, int64(1), tracker.GetHandlerMetrics().HandlerFailures)
}

func TestLifecycleManager_HandlerTimeout(t *testing.T) {
	tracker := NewMetricsTracker()
	lm := NewLifecycleManager(slog.Default(), HandlerConfig{Timeout: 20 * time.Millisecond}, tracker)
	lm.RegisterHandlers([]ports.CompletionHandler{
		func(ctx context.Context, event domain.RunCompletedEvent) error {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return ctx.Err()
		},
	}, nil)

	err := lm.TriggerCompletion(context.Background(), domain.RunCompletedEvent{ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Equal(t, int64(1), tracker.GetHandlerMetrics().HandlerTimeouts)
}

func TestLifecycleManager_ProgressHandlers(t *testing.T) {
	lm := NewLifecycleManager(nil, HandlerConfig{}, nil)

	var seen atomic.Value
	lm.RegisterProgress(func(event domain.NodeCompletedEvent) {
		seen.Store(event.NodeID)
	})
	lm.RegisterProgress(nil)

	lm.TriggerProgress(domain.NodeCompletedEvent{ExecutionID: "exec-1", NodeID: "B"})
	lm.WaitProgress()

	assert.Equal(t, "B", seen.Load())
}

func TestMetricsTracker_HandlerWindowIsBounded(t *testing.T) {
	tracker := NewMetricsTracker()
	for i := 0; i < handlerWindow+10; i++ {
		tracker.RecordCompletionHandler(time.Millisecond, i%2 == 0)
	}

	metrics := tracker.GetHandlerMetrics()
	assert.Equal(t, int64(handlerWindow+10), metrics.CompletionHandlersExecuted)
	assert.Equal(t, int64((handlerWindow+10)/2), metrics.HandlerFailures)
	assert.Equal(t, time.Millisecond, metrics.AverageHandlerTime)
	assert.Len(t, tracker.handlerTimes, handlerWindow)
}

func TestMetricsTracker_PanicsOlderThanAnHourAgeOut(t *testing.T) {
	tracker := NewMetricsTracker()
	base := time.Now()
	tracker.now = func() time.Time { return base.Add(-2 * time.Hour) }
	tracker.RecordPanic(time.Millisecond)
	tracker.now = func() time.Time { return base }
	tracker.RecordPanic(3 * time.Millisecond)

	metrics := tracker.GetPanicMetrics()
	assert.Equal(t, int64(2), metrics.TotalPanics)
	assert.Equal(t, int64(1), metrics.PanicsLastHour)
	assert.Equal(t, 2*time.Millisecond, metrics.AverageRecoveryTime)
}
