package core

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
	"github.com/eleven-am/routines/internal/testutil/routine"
)

func testConfig() *domain.Config {
	config := domain.DefaultConfig()
	config.LogLevel = "error"
	config.Retry.MaximumAttempts = 1
	return config
}

func startManager(t *testing.T, config *domain.Config) *Manager {
	t.Helper()
	manager, err := NewWithConfig(config)
	require.NoError(t, err)
	require.NoError(t, manager.RegisterPlugin("echo", routine.Echo()))
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(func() { _ = manager.Stop() })
	return manager
}

func TestManager_RejectsInvalidConfig(t *testing.T) {
	config := testConfig()
	config.Engine.MaxParallelNodes = -1

	_, err := NewWithConfig(config)

	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "engine.max_parallel_nodes", cfgErr.Field)
}

func TestNew_UsesValidDefaults(t *testing.T) {
	require.NoError(t, domain.DefaultConfig().Validate())

	var manager *Manager
	require.NotPanics(t, func() { manager = New(nil) })
	require.NotNil(t, manager)
	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	require.NoError(t, manager.RegisterPluginFunc("echo", func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		return &domain.PluginResult{}, nil
	}))
	result, err := manager.Execute(context.Background(), routine.Linear())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
}

func TestManager_ExecuteBeforeStart(t *testing.T) {
	manager, err := NewWithConfig(testConfig())
	require.NoError(t, err)

	_, err = manager.Execute(context.Background(), routine.Linear())
	assert.ErrorIs(t, err, domain.ErrNotStarted)

	_, err = manager.GetExecution(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrNotStarted)
}

func TestManager_StartTwice(t *testing.T) {
	manager := startManager(t, testConfig())
	assert.ErrorIs(t, manager.Start(context.Background()), domain.ErrAlreadyStarted)
}

func TestManager_ExecuteRecordsHistory(t *testing.T) {
	manager := startManager(t, testConfig())

	var completed atomic.Int32
	manager.OnComplete(func(ctx context.Context, event domain.RunCompletedEvent) error {
		completed.Add(1)
		return nil
	})

	result, err := manager.ExecuteWithOptions(context.Background(), routine.Linear(), ports.RunOptions{ExecutionID: "exec-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, int32(1), completed.Load())

	summary, err := manager.GetExecution(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, summary.Status)
	assert.Equal(t, "linear", summary.RoutineID)

	records, err := manager.ListNodeResults(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{records[0].NodeID, records[1].NodeID, records[2].NodeID})

	assert.Equal(t, int64(1), manager.GetExecutionMetrics().Execution.RunsCompleted)
}

func TestManager_FailedRunReachesErrorHandlers(t *testing.T) {
	manager := startManager(t, testConfig())
	require.NoError(t, manager.RegisterPlugin("if", routine.Fail(errors.New("upstream down"))))

	var failedNode atomic.Value
	manager.OnError(func(ctx context.Context, event domain.RunErrorEvent) error {
		failedNode.Store(event.FailedNode)
		return nil
	})

	result, err := manager.Execute(context.Background(), routine.Branch())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.RunStatusFailed, result.Status)
	assert.Equal(t, "A", failedNode.Load())

	summary, err := manager.GetExecution(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, summary.Status)
	assert.Equal(t, "A", summary.FailedNode)
	assert.Contains(t, summary.Error, "upstream down")
}

func TestManager_ProgressHandlersRegisteredBeforeStart(t *testing.T) {
	manager, err := NewWithConfig(testConfig())
	require.NoError(t, err)
	require.NoError(t, manager.RegisterPlugin("echo", routine.Echo()))

	var nodes atomic.Int32
	manager.OnProgress(func(event domain.NodeCompletedEvent) {
		nodes.Add(1)
	})

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	_, err = manager.Execute(context.Background(), routine.Linear())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return nodes.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestManager_ValidateReportsUnknownPlugin(t *testing.T) {
	manager := startManager(t, testConfig())

	validation, err := manager.Validate(routine.Branch())
	require.NoError(t, err)
	assert.False(t, validation.Valid)
	assert.NotEmpty(t, validation.Errors)
}

func TestManager_WithoutStorageHasNoHistory(t *testing.T) {
	config := testConfig()
	config.Storage.Backend = domain.StorageNone
	manager := startManager(t, config)

	result, err := manager.Execute(context.Background(), routine.Linear())
	require.NoError(t, err)

	_, err = manager.GetExecution(context.Background(), result.WorkflowID)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestManager_BadgerBackend(t *testing.T) {
	config := testConfig()
	config.Storage = domain.StorageConfig{Backend: domain.StorageBadger, InMemory: true}
	manager := startManager(t, config)

	result, err := manager.Execute(context.Background(), routine.Linear())
	require.NoError(t, err)

	summary, err := manager.GetExecution(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, summary.Status)
}

func TestManager_RemotePlugins(t *testing.T) {
	server, err := NewWithConfig(testConfig())
	require.NoError(t, err)
	require.NoError(t, server.RegisterPlugin("echo", routine.Echo()))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- server.ServePlugins(lis) }()
	defer func() {
		require.NoError(t, server.Stop())
		require.NoError(t, <-served)
	}()

	config := testConfig()
	config.Remote.Address = lis.Addr().String()
	client, err := NewWithConfig(config)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	assert.Equal(t, []string{"echo"}, client.Plugins())

	result, err := client.Execute(context.Background(), routine.Linear())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	require.Len(t, result.NodeResults["C"], 1)
	assert.Equal(t, "C", result.NodeResults["C"][0].Outputs["node"])
}
