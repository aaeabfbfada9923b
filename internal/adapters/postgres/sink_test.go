package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	url := os.Getenv("ROUTINES_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ROUTINES_TEST_DATABASE_URL not set")
	}

	cfg := domain.DefaultPostgresConfig()
	cfg.URL = url
	sink, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestValidateConfig(t *testing.T) {
	valid := domain.DefaultPostgresConfig()
	valid.URL = "postgres://localhost/routines"
	require.NoError(t, validateConfig(valid))

	tests := []struct {
		name   string
		mutate func(*domain.PostgresConfig)
		field  string
	}{
		{"missing url", func(c *domain.PostgresConfig) { c.URL = "" }, "postgres.url"},
		{"zero ping timeout", func(c *domain.PostgresConfig) { c.PingTimeout = 0 }, "postgres.ping_timeout"},
		{"no open conns", func(c *domain.PostgresConfig) { c.MaxOpenConns = 0 }, "postgres.max_open_conns"},
		{"idle above open", func(c *domain.PostgresConfig) { c.MaxIdleConns = c.MaxOpenConns + 1 }, "postgres.max_idle_conns"},
		{"negative lifetime", func(c *domain.PostgresConfig) { c.ConnMaxLifetime = -time.Second }, "postgres.conn_max_lifetime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := validateConfig(cfg)

			var cfgErr *domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSink_ExecutionLifecycle(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()
	workflowID := "routine-pg-" + uuid.NewString()
	started := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, sink.CreateExecution(ctx, ports.ExecutionRecord{
		WorkflowID:  workflowID,
		RunID:       uuid.NewString(),
		ExecutionID: "e1",
		RoutineID:   "pg",
		TriggerType: "manual",
		TriggerData: map[string]any{"k": "v"},
		StartedAt:   started,
	}))

	err := sink.CreateExecution(ctx, ports.ExecutionRecord{WorkflowID: workflowID, StartedAt: started})
	assert.True(t, domain.IsConflict(err))

	iteration := 0
	require.NoError(t, sink.StoreNodeResult(ctx, ports.NodeResultRecord{
		WorkflowID: workflowID, RoutineID: "pg", NodeID: "B", RunIndex: 0, PluginID: "p",
		Iteration: &iteration, Status: ports.NodeResultCompleted, Signal: "loop",
		Output: domain.PortData{"count": float64(1)}, StartedAt: started, CompletedAt: started,
	}))
	require.NoError(t, sink.StoreNodeResult(ctx, ports.NodeResultRecord{
		WorkflowID: workflowID, RoutineID: "pg", NodeID: "A", RunIndex: 0, PluginID: "p",
		Status: ports.NodeResultFailed, Error: &domain.NodeError{Message: "boom"},
		StartedAt: started, CompletedAt: started,
	}))

	completed := started.Add(time.Second)
	require.NoError(t, sink.UpdateStatus(ctx, ports.StatusUpdate{
		WorkflowID:    workflowID,
		Status:        domain.ExecutionStatusFailed,
		CompletedAt:   &completed,
		Error:         "boom",
		FailedNode:    "A",
		ExecutionPath: []domain.PathEntry{{NodeID: "A"}},
	}))

	summary, err := sink.GetExecution(ctx, workflowID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, summary.Status)
	assert.Equal(t, "A", summary.FailedNode)
	assert.Equal(t, "v", summary.TriggerData["k"])
	assert.Equal(t, []domain.PathEntry{{NodeID: "A"}}, summary.ExecutionPath)
	require.NotNil(t, summary.CompletedAt)
	assert.True(t, completed.Equal(*summary.CompletedAt))

	results, err := sink.ListNodeResults(ctx, workflowID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].NodeID)
	assert.Equal(t, "boom", results[0].Error.Message)
	assert.Equal(t, "B", results[1].NodeID)
	assert.Equal(t, 0, *results[1].Iteration)
	assert.Equal(t, float64(1), results[1].Output["count"])
}

func TestSink_UnknownExecution(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()

	_, err := sink.GetExecution(ctx, "missing-"+uuid.NewString())
	assert.True(t, domain.IsNotFound(err))

	err = sink.UpdateStatus(ctx, ports.StatusUpdate{WorkflowID: "missing", Status: domain.ExecutionStatusRunning})
	assert.True(t, domain.IsNotFound(err))

	err = sink.StoreNodeResult(ctx, ports.NodeResultRecord{
		WorkflowID: "missing-" + uuid.NewString(), NodeID: "A", Status: ports.NodeResultCompleted,
		StartedAt: time.Now(), CompletedAt: time.Now(),
	})
	assert.True(t, domain.IsNotFound(err))
}
