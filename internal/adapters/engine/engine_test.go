package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/routines/internal/adapters/memory"
	"github.com/eleven-am/routines/internal/adapters/substrate"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
	fixture "github.com/eleven-am/routines/internal/testutil/routine"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) CreateExecution(ctx context.Context, record ports.ExecutionRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockSink) UpdateStatus(ctx context.Context, update ports.StatusUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockSink) StoreNodeResult(ctx context.Context, record ports.NodeResultRecord) error {
	return m.Called(ctx, record).Error(0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(registry ports.PluginRegistry, sink ports.ExecutionSink) *Engine {
	return NewEngine(domain.DefaultEngineConfig(), domain.DefaultRetryConfig(), registry, nil, sink, quietLogger())
}

// counter emits the loop signal and reports which iteration it saw.
func counter() ports.Plugin {
	return ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		iteration := -1
		if req.Context.LoopIteration != nil {
			iteration = *req.Context.LoopIteration
		}
		return &domain.PluginResult{Signal: domain.LoopHandle, Data: domain.PortData{"count": iteration}}, nil
	})
}

func run(t *testing.T, eng *Engine, def domain.RoutineDefinition) *domain.RunResult {
	t.Helper()
	result, err := eng.Execute(context.Background(), def)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestEngine_LinearPath(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, nil)

	result := run(t, eng, fixture.Linear())

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"A", "B", "C"}, result.PathNodeIDs())
	assert.Nil(t, result.Error)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Equal(t, "routine-linear-"+result.ExecutionID, result.WorkflowID)
	assert.NotEmpty(t, result.RunID)
	for _, id := range []string{"A", "B", "C"} {
		require.Len(t, result.NodeResults[id], 1)
		assert.Equal(t, domain.NodeStatusCompleted, result.NodeResults[id][0].Status)
	}
}

func TestEngine_ConditionalBranch(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"if": fixture.Signal("true"), "echo": fixture.Echo()}, nil)

	result := run(t, eng, fixture.Branch())

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"A", "B"}, result.PathNodeIDs())
	assert.NotContains(t, result.NodeResults, "C")
}

func TestEngine_SignalInferredFromSingleOutputKey(t *testing.T) {
	branch := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		return &domain.PluginResult{Data: domain.PortData{"false": map[string]any{"reason": "empty"}}}, nil
	})
	eng := newTestEngine(fixture.Registry{"if": branch, "echo": fixture.Echo()}, nil)

	result := run(t, eng, fixture.Branch())

	assert.Equal(t, []string{"A", "C"}, result.PathNodeIDs())
}

func TestEngine_LoopRunsTargetExactlyMaxIterations(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "counter": counter()}, nil)

	result := run(t, eng, fixture.SelfLoop(3))

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Len(t, result.NodeResults["B"], 3)
	assert.Equal(t, []string{"A", "B", "B", "B"}, result.PathNodeIDs())
	for i, entry := range result.ExecutionPath[1:] {
		assert.Equal(t, i, entry.RunIndex)
	}
}

func TestEngine_LoopContextAndAccumulator(t *testing.T) {
	recorder := fixture.Record(counter())
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "counter": recorder}, nil)

	run(t, eng, fixture.SelfLoop(3, "count"))

	requests := recorder.Requests()
	require.Len(t, requests, 3)

	var iterations []int
	for _, req := range requests {
		require.NotNil(t, req.Context.LoopIteration)
		iterations = append(iterations, *req.Context.LoopIteration)
	}
	assert.Equal(t, []int{0, 1, 2}, iterations)
	assert.Empty(t, requests[0].Context.LoopAccumulator)
	assert.Equal(t, map[string]any{"count": 1}, requests[2].Context.LoopAccumulator)
}

func TestEngine_NodeAfterLoopRunsOnceOnExit(t *testing.T) {
	def := fixture.SelfLoop(3)
	def.Nodes = append(def.Nodes, fixture.Node("C", "echo"))
	def.Connections = append(def.Connections, fixture.Flow("e-exit", "B", "C", ""))

	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "counter": counter()}, nil)
	result := run(t, eng, def)

	assert.Equal(t, []string{"A", "B", "B", "B", "C"}, result.PathNodeIDs())
	assert.Len(t, result.NodeResults["C"], 1)
}

func TestEngine_MultiNodeLoopBody(t *testing.T) {
	def := fixture.Definition("body",
		[]domain.Node{fixture.Node("A", "echo"), fixture.Node("B", "echo"), fixture.Node("C", "counter"), fixture.Node("D", "echo")},
		fixture.Flow("e1", "A", "B", ""),
		fixture.Flow("e2", "B", "C", ""),
		fixture.Flow("e3", "C", "D", ""),
		fixture.Loop("loop-cb", "C", "B", 2),
	)
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "counter": counter()}, nil)

	result := run(t, eng, def)

	assert.Equal(t, []string{"A", "B", "C", "B", "C", "D"}, result.PathNodeIDs())
	assert.Len(t, result.NodeResults["B"], 2)
}

// branchInLoop is A -> B, B branches to C on "true" and D on "false", both
// join at E, and E loops back to B.
func branchInLoop(maxIterations int) domain.RoutineDefinition {
	return fixture.Definition("branch-loop",
		[]domain.Node{
			fixture.Node("A", "echo"), fixture.Node("B", "if"), fixture.Node("C", "echo"),
			fixture.Node("D", "echo"), fixture.Node("E", "counter"),
		},
		fixture.Flow("e-ab", "A", "B", ""),
		fixture.Flow("e-bc", "B", "C", "true"),
		fixture.Flow("e-bd", "B", "D", "false"),
		fixture.Flow("e-ce", "C", "E", ""),
		fixture.Flow("e-de", "D", "E", ""),
		fixture.Loop("loop-eb", "E", "B", maxIterations),
	)
}

func TestEngine_BranchInsideLoopBodyJoins(t *testing.T) {
	def := branchInLoop(2)
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "if": fixture.Signal("true"), "counter": counter()}, nil)

	require.True(t, eng.Validate(def).Valid)
	result := run(t, eng, def)

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"A", "B", "C", "E", "B", "C", "E"}, result.PathNodeIDs())
	assert.NotContains(t, result.NodeResults, "D")
	assert.Len(t, result.NodeResults["E"], 2)
}

func TestEngine_BranchSwitchesBetweenIterations(t *testing.T) {
	def := branchInLoop(2)
	def.Nodes = append(def.Nodes, fixture.Node("F", "echo"))
	def.Connections = append(def.Connections, fixture.Flow("e-ef", "E", "F", ""))

	var calls int32
	alternating := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return &domain.PluginResult{Signal: "false"}, nil
		}
		return &domain.PluginResult{Signal: "true"}, nil
	})
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "if": alternating, "counter": counter()}, nil)

	result := run(t, eng, def)

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"A", "B", "D", "E", "B", "C", "E", "F"}, result.PathNodeIDs())
	assert.Len(t, result.NodeResults["D"], 1, "the branch taken first is not re-run once the loop restarts")
	assert.Len(t, result.NodeResults["C"], 1)
	assert.Len(t, result.NodeResults["F"], 1)
}

func TestEngine_LoopBreakStopsEarly(t *testing.T) {
	var calls int32
	breaker := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		n := atomic.AddInt32(&calls, 1)
		return &domain.PluginResult{Signal: domain.LoopHandle, Data: domain.PortData{"break": n == 2}}, nil
	})
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "counter": breaker}, nil)

	result := run(t, eng, fixture.SelfLoop(10))

	assert.Len(t, result.NodeResults["B"], 2)
}

func TestEngine_ValidationCaughtDeadlockNeverStarts(t *testing.T) {
	sink := new(MockSink)
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, sink)

	result, err := eng.Execute(context.Background(), fixture.Unreachable())

	assert.Nil(t, result)
	var validationErr *domain.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, domain.IssueUnreachable, validationErr.Issues[0].Code)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	sink.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), eng.GetExecutionMetrics().Execution.RunsRejected)
}

func TestEngine_RuntimeDeadlock(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, nil)

	result, err := eng.Execute(context.Background(), fixture.RuntimeDeadlock())

	var deadlock *domain.DeadlockError
	require.True(t, errors.As(err, &deadlock))
	assert.Equal(t, []string{"C"}, deadlock.StuckNodes)
	require.NotNil(t, result)
	assert.Equal(t, domain.RunStatusDeadlocked, result.Status)
	assert.Equal(t, []string{"A"}, result.PathNodeIDs())
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "1 node(s)")
	assert.Equal(t, int64(1), eng.GetExecutionMetrics().Execution.RunsDeadlocked)
}

func TestEngine_UnreachedBranchIsNotDeadlock(t *testing.T) {
	t.Run("branch never taken", func(t *testing.T) {
		def := fixture.Definition("unreached",
			[]domain.Node{fixture.Node("A", "if"), fixture.Node("B", "echo")},
			fixture.Flow("e-false", "A", "B", "false"),
		)
		eng := newTestEngine(fixture.Registry{"if": fixture.Signal("true"), "echo": fixture.Echo()}, nil)

		result := run(t, eng, def)

		assert.Equal(t, domain.RunStatusCompleted, result.Status)
		assert.Equal(t, []string{"A"}, result.PathNodeIDs())
		assert.NotContains(t, result.NodeResults, "B")
	})

	t.Run("join behind an inactive branch", func(t *testing.T) {
		def := fixture.Definition("diamond",
			[]domain.Node{fixture.Node("A", "if"), fixture.Node("B", "echo"), fixture.Node("C", "echo"), fixture.Node("D", "echo")},
			fixture.Flow("e-ab", "A", "B", "true"),
			fixture.Flow("e-ac", "A", "C", "false"),
			fixture.Flow("e-bd", "B", "D", ""),
			fixture.Flow("e-cd", "C", "D", ""),
		)
		eng := newTestEngine(fixture.Registry{"if": fixture.Signal("true"), "echo": fixture.Echo()}, nil)

		result := run(t, eng, def)

		assert.Equal(t, domain.RunStatusCompleted, result.Status)
		assert.Equal(t, []string{"A", "B", "D"}, result.PathNodeIDs())
	})
}

func TestEngine_ParallelEntriesRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	bothRunning := make(chan struct{})
	go func() {
		started.Wait()
		close(bothRunning)
	}()

	barrier := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		if req.Context.NodeID == "J" {
			return &domain.PluginResult{}, nil
		}
		started.Done()
		select {
		case <-bothRunning:
			return &domain.PluginResult{}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("sibling never started")
		}
	})

	eng := newTestEngine(fixture.Registry{"echo": barrier}, nil)
	result := run(t, eng, fixture.Parallel())

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"A", "D", "J"}, result.PathNodeIDs())
}

func TestEngine_MaxParallelNodesBoundsWave(t *testing.T) {
	var active, peak int32
	slow := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &domain.PluginResult{}, nil
	})

	def := fixture.Definition("wide",
		[]domain.Node{fixture.Node("A", "slow"), fixture.Node("B", "slow"), fixture.Node("C", "slow"), fixture.Node("D", "slow")},
	)
	config := domain.DefaultEngineConfig()
	config.MaxParallelNodes = 1
	eng := NewEngine(config, domain.DefaultRetryConfig(), fixture.Registry{"slow": slow}, nil, nil, quietLogger())

	result := run(t, eng, def)

	assert.Equal(t, []string{"A", "B", "C", "D"}, result.PathNodeIDs())
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestEngine_Deterministic(t *testing.T) {
	def := fixture.Definition("fan",
		[]domain.Node{
			fixture.Node("Z", "echo"), fixture.Node("M", "echo"), fixture.Node("A", "echo"),
			fixture.Node("K", "echo"), fixture.Node("B", "echo"),
		},
		fixture.Flow("e1", "Z", "K", ""),
		fixture.Flow("e2", "M", "K", ""),
		fixture.Flow("e3", "A", "B", ""),
		fixture.Flow("e4", "K", "B", ""),
	)
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, nil)

	first := run(t, eng, def).PathNodeIDs()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, run(t, eng, def).PathNodeIDs())
	}
	assert.Equal(t, []string{"A", "M", "Z", "K", "B"}, first)
}

func TestEngine_FailFastReportsSmallestFailingNode(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Fail(errors.New("upstream exploded"))}, nil)

	result, err := eng.Execute(context.Background(), fixture.Parallel())

	var nodeErr *domain.NodeExecutionError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "A", nodeErr.NodeID)
	assert.Equal(t, "upstream exploded", nodeErr.Message)

	require.NotNil(t, result)
	assert.Equal(t, domain.RunStatusFailed, result.Status)
	assert.Equal(t, "A", result.FailedNode)
	assert.Equal(t, []string{"A", "D"}, result.PathNodeIDs(), "siblings finish before the run fails")
	assert.Len(t, result.Errors, 2)
	assert.NotContains(t, result.NodeResults, "J")
	assert.Equal(t, "upstream exploded", result.Error.Message)
}

func TestEngine_FailureKeepsPluginErrorContext(t *testing.T) {
	pluginErr := fmt.Errorf("fetch orders from https://api.example.com: %w", io.ErrUnexpectedEOF)
	retry := domain.DefaultRetryConfig()
	retry.MaximumAttempts = 1
	sink := memory.NewExecutionStore(quietLogger())
	eng := NewEngine(domain.DefaultEngineConfig(), retry,
		fixture.Registry{"echo": fixture.Echo(), "fetch": fixture.Fail(pluginErr)},
		substrate.NewLocalRunner(quietLogger()), sink, quietLogger())
	def := fixture.Definition("fetch",
		[]domain.Node{fixture.Node("A", "echo"), fixture.Node("B", "fetch")},
		fixture.Flow("e1", "A", "B", ""),
	)

	result, err := eng.Execute(context.Background(), def)

	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	want := "fetch orders from https://api.example.com: unexpected EOF"
	require.NotNil(t, result.Error)
	assert.Equal(t, want, result.Error.Message)
	require.Len(t, result.NodeResults["B"], 1)
	assert.Equal(t, want, result.NodeResults["B"][0].Error.Message)

	records, err := sink.ListNodeResults(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, want, records[1].Error.Message)
}

func TestEngine_PanicFailsNodeWithStack(t *testing.T) {
	panicky := ports.PluginFunc(func(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
		panic("nil map write")
	})
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "boom": panicky}, nil)
	def := fixture.Definition("panic",
		[]domain.Node{fixture.Node("A", "echo"), fixture.Node("B", "boom")},
		fixture.Flow("e1", "A", "B", ""),
	)

	result, err := eng.Execute(context.Background(), def)

	var panicErr *domain.NodePanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, domain.RunStatusFailed, result.Status)
	assert.Equal(t, "B", result.FailedNode)
	assert.NotEmpty(t, result.Error.Stack)
	assert.Equal(t, int64(1), eng.GetExecutionMetrics().PanicMetrics.TotalPanics)
}

func TestEngine_DisabledNodePassesThrough(t *testing.T) {
	def := fixture.Linear()
	def.Nodes[1] = fixture.DisabledNode("B", "unregistered")

	recorder := fixture.Record(fixture.Echo())
	eng := newTestEngine(fixture.Registry{"echo": recorder}, nil)

	result := run(t, eng, def)

	assert.Equal(t, []string{"A", "B", "C"}, result.PathNodeIDs())
	require.Len(t, result.NodeResults["B"], 1)
	assert.Equal(t, domain.NodeStatusSkipped, result.NodeResults["B"][0].Status)
	assert.Equal(t, domain.DefaultSignal, result.NodeResults["B"][0].Signal)
	assert.Equal(t, 2, recorder.Calls())
}

func TestEngine_DataConnectionsResolveInputs(t *testing.T) {
	recorder := fixture.Record(fixture.Echo())
	def := fixture.Linear()
	def.Connections = append(def.Connections,
		fixture.Data("d1", "A", "C", "node", "origin"),
		fixture.Data("d2", "B", "C", "", "whole"),
		fixture.Data("d3", "B", "C", "missing", "never"),
	)
	eng := newTestEngine(fixture.Registry{"echo": recorder}, nil)

	run(t, eng, def)

	requests := recorder.Requests()
	require.Len(t, requests, 3)
	assert.Empty(t, requests[0].Inputs, "entry nodes get no inputs")

	inputs := requests[2].Inputs
	assert.Equal(t, "A", inputs["origin"])
	whole, ok := inputs["whole"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "B", whole["node"])
	assert.NotContains(t, inputs, "never")

	assert.Equal(t, "user-1", requests[2].Context.UserID)
	assert.Equal(t, "linear", requests[2].Context.RoutineID)
	assert.Equal(t, map[string]any{"source": "test"}, requests[2].Context.TriggerData)
	assert.Nil(t, requests[2].Context.LoopIteration)
}

func TestEngine_SinkReceivesLifecycle(t *testing.T) {
	sink := new(MockSink)
	sink.On("CreateExecution", mock.Anything, mock.MatchedBy(func(r ports.ExecutionRecord) bool {
		return r.RoutineID == "linear" && r.UserID == "user-1" && r.TriggerType == "webhook" && r.ExecutionID == "exec-42"
	})).Return(nil).Once()
	sink.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(u ports.StatusUpdate) bool {
		return u.Status == domain.ExecutionStatusRunning && u.StartedAt != nil
	})).Return(nil).Once()
	sink.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(u ports.StatusUpdate) bool {
		return u.Status == domain.ExecutionStatusCompleted && u.CompletedAt != nil && len(u.ExecutionPath) == 3
	})).Return(nil).Once()
	sink.On("StoreNodeResult", mock.Anything, mock.MatchedBy(func(r ports.NodeResultRecord) bool {
		return r.Status == ports.NodeResultCompleted && r.WorkflowID == "routine-linear-exec-42"
	})).Return(errors.New("disk full")).Times(3)

	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, sink)
	result, err := eng.ExecuteWithOptions(context.Background(), fixture.Linear(), ports.RunOptions{ExecutionID: "exec-42", TriggerType: "webhook"})

	require.NoError(t, err, "sink failures never fail the run")
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	sink.AssertExpectations(t)
}

func TestEngine_CancelledContextFailsRun(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := eng.Execute(ctx, fixture.Linear())

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, domain.RunStatusFailed, result.Status)
	assert.Empty(t, result.ExecutionPath)
}

func TestEngine_LifecycleHandlersAndProgress(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo(), "bad": fixture.Fail(errors.New("bad"))}, nil)

	var completed, failed atomic.Value
	eng.RegisterLifecycleHandlers(
		[]ports.CompletionHandler{func(ctx context.Context, event domain.RunCompletedEvent) error {
			completed.Store(event.ExecutedNodes)
			return nil
		}},
		[]ports.ErrorHandler{func(ctx context.Context, event domain.RunErrorEvent) error {
			failed.Store(event.FailedNode)
			return nil
		}},
	)

	var mu sync.Mutex
	var progress []string
	eng.OnProgress(func(event domain.NodeCompletedEvent) {
		mu.Lock()
		progress = append(progress, event.NodeID)
		mu.Unlock()
	})

	run(t, eng, fixture.Linear())
	assert.Equal(t, []string{"A", "B", "C"}, completed.Load())
	mu.Lock()
	assert.ElementsMatch(t, []string{"A", "B", "C"}, progress)
	mu.Unlock()

	def := fixture.Linear()
	def.Nodes[2] = fixture.Node("C", "bad")
	_, err := eng.Execute(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, "C", failed.Load())

	metrics := eng.GetExecutionMetrics()
	assert.Equal(t, int64(2), metrics.Execution.RunsStarted)
	assert.Equal(t, int64(1), metrics.Execution.RunsCompleted)
	assert.Equal(t, int64(1), metrics.Execution.RunsFailed)
	assert.Equal(t, int64(1), metrics.HandlerMetrics.CompletionHandlersExecuted)
	assert.Equal(t, int64(1), metrics.HandlerMetrics.ErrorHandlersExecuted)
}

func TestEngine_ValidateReportsUnknownPlugins(t *testing.T) {
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, nil)

	def := fixture.Linear()
	def.Nodes[1] = fixture.Node("B", "ghost")

	first := eng.Validate(def)
	second := eng.Validate(def)

	assert.False(t, first.Valid)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, domain.IssueUnknownPlugin, first.Errors[0].Code)
	assert.Equal(t, first, second)

	assert.True(t, eng.Validate(fixture.Linear()).Valid)
}

func TestEngine_WarningsAreCarriedOnResult(t *testing.T) {
	def := fixture.Definition("warn",
		[]domain.Node{fixture.Node("A", "echo"), fixture.Node("B", "echo")},
		fixture.Flow("e1", "A", "B", domain.LoopHandle),
	)
	eng := newTestEngine(fixture.Registry{"echo": fixture.Echo()}, nil)

	result := run(t, eng, def)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.IssueLoopWithoutConfig, result.Warnings[0].Code)
	assert.Equal(t, []string{"A"}, result.PathNodeIDs(), "A emits default, so the loop-handled edge is not taken")
}
