package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// Sink writes execution history to Postgres and answers history queries.
type Sink struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

// Open connects, applies the schema and returns a sink that closes the
// pool on Close.
func Open(ctx context.Context, cfg domain.PostgresConfig, logger *slog.Logger) (*Sink, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	sink := NewSink(db, logger)
	sink.owned = true
	return sink, nil
}

// NewSink wraps a pool the caller owns. The schema must already exist.
func NewSink(db *sql.DB, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		db:     db,
		logger: logger.With("component", "execution_store", "type", "postgres"),
	}
}

func (s *Sink) CreateExecution(ctx context.Context, record ports.ExecutionRecord) error {
	if record.WorkflowID == "" {
		return domain.NewValidationError("workflow id is required", domain.ErrInvalidInput)
	}

	triggerData, err := marshalNullable(record.TriggerData)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routine_executions
			(workflow_id, run_id, execution_id, routine_id, user_id, trigger_type, trigger_data, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		record.WorkflowID, record.RunID, record.ExecutionID, record.RoutineID, record.UserID,
		record.TriggerType, triggerData, string(domain.ExecutionStatusPending), record.StartedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewStorageError("execution already exists", domain.ErrConflict,
				domain.WithDetail("workflow_id", record.WorkflowID))
		}
		return domain.NewStorageError("insert execution", err, domain.WithDetail("workflow_id", record.WorkflowID))
	}

	s.logger.Debug("execution created", "workflow_id", record.WorkflowID, "routine_id", record.RoutineID)
	return nil
}

// UpdateStatus folds the update into the row the same way
// ExecutionSummary.ApplyStatus does: empty fields keep their stored value.
func (s *Sink) UpdateStatus(ctx context.Context, update ports.StatusUpdate) error {
	var path any
	if update.ExecutionPath != nil {
		data, err := json.Marshal(update.ExecutionPath)
		if err != nil {
			return domain.NewStorageError("encode execution path", err)
		}
		path = string(data)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE routine_executions SET
			status         = $2,
			started_at     = COALESCE($3::timestamptz, started_at),
			completed_at   = COALESCE($4::timestamptz, completed_at),
			error          = CASE WHEN $5 = '' THEN error ELSE $5 END,
			failed_node    = CASE WHEN $6 = '' THEN failed_node ELSE $6 END,
			execution_path = COALESCE($7::jsonb, execution_path)
		WHERE workflow_id = $1`,
		update.WorkflowID, string(update.Status), nullTime(update.StartedAt), nullTime(update.CompletedAt),
		update.Error, update.FailedNode, path,
	)
	if err != nil {
		return domain.NewStorageError("update execution status", err, domain.WithDetail("workflow_id", update.WorkflowID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("update execution status", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("execution", update.WorkflowID)
	}
	return nil
}

func (s *Sink) StoreNodeResult(ctx context.Context, record ports.NodeResultRecord) error {
	output, err := marshalNullable(record.Output)
	if err != nil {
		return err
	}
	var nodeErr any
	if record.Error != nil {
		data, err := json.Marshal(record.Error)
		if err != nil {
			return domain.NewStorageError("encode node error", err)
		}
		nodeErr = string(data)
	}
	var iteration sql.NullInt64
	if record.Iteration != nil {
		iteration = sql.NullInt64{Int64: int64(*record.Iteration), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routine_node_results
			(workflow_id, node_id, run_index, routine_id, plugin_id, iteration, status, signal, output, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12)`,
		record.WorkflowID, record.NodeID, record.RunIndex, record.RoutineID, record.PluginID, iteration,
		string(record.Status), record.Signal, output, nodeErr, record.StartedAt.UTC(), record.CompletedAt.UTC(),
	)
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return domain.NewNotFoundError("execution", record.WorkflowID)
	case isUniqueViolation(err):
		return domain.NewStorageError("node result already stored", domain.ErrConflict,
			domain.WithDetail("workflow_id", record.WorkflowID),
			domain.WithDetail("node_id", record.NodeID),
			domain.WithDetail("run_index", record.RunIndex))
	default:
		return domain.NewStorageError("insert node result", err,
			domain.WithDetail("workflow_id", record.WorkflowID),
			domain.WithDetail("node_id", record.NodeID))
	}
}

func (s *Sink) GetExecution(ctx context.Context, workflowID string) (*ports.ExecutionSummary, error) {
	var (
		summary     ports.ExecutionSummary
		status      string
		triggerData []byte
		path        []byte
		completedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, run_id, execution_id, routine_id, user_id, trigger_type, trigger_data,
		       status, started_at, completed_at, error, failed_node, execution_path
		FROM routine_executions WHERE workflow_id = $1`, workflowID,
	).Scan(
		&summary.WorkflowID, &summary.RunID, &summary.ExecutionID, &summary.RoutineID, &summary.UserID,
		&summary.TriggerType, &triggerData, &status, &summary.StartedAt, &completedAt,
		&summary.Error, &summary.FailedNode, &path,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("execution", workflowID)
	}
	if err != nil {
		return nil, domain.NewStorageError("query execution", err, domain.WithDetail("workflow_id", workflowID))
	}

	summary.Status = domain.ExecutionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		summary.CompletedAt = &t
	}
	if err := unmarshalNullable(triggerData, &summary.TriggerData); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(path, &summary.ExecutionPath); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Sink) ListNodeResults(ctx context.Context, workflowID string) ([]ports.NodeResultRecord, error) {
	if _, err := s.GetExecution(ctx, workflowID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, node_id, run_index, routine_id, plugin_id, iteration, status, signal,
		       output, error, started_at, completed_at
		FROM routine_node_results WHERE workflow_id = $1
		ORDER BY node_id, run_index`, workflowID)
	if err != nil {
		return nil, domain.NewStorageError("query node results", err, domain.WithDetail("workflow_id", workflowID))
	}
	defer rows.Close()

	var results []ports.NodeResultRecord
	for rows.Next() {
		var (
			record    ports.NodeResultRecord
			iteration sql.NullInt64
			status    string
			output    []byte
			nodeErr   []byte
		)
		if err := rows.Scan(
			&record.WorkflowID, &record.NodeID, &record.RunIndex, &record.RoutineID, &record.PluginID,
			&iteration, &status, &record.Signal, &output, &nodeErr, &record.StartedAt, &record.CompletedAt,
		); err != nil {
			return nil, domain.NewStorageError("scan node result", err)
		}

		record.Status = ports.NodeResultStatus(status)
		if iteration.Valid {
			it := int(iteration.Int64)
			record.Iteration = &it
		}
		if err := unmarshalNullable(output, &record.Output); err != nil {
			return nil, err
		}
		if len(nodeErr) > 0 {
			record.Error = &domain.NodeError{}
			if err := unmarshalNullable(nodeErr, record.Error); err != nil {
				return nil, err
			}
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate node results", err)
	}
	return results, nil
}

func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func marshalNullable(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, domain.NewStorageError("encode json column", err)
	}
	return string(encoded), nil
}

func unmarshalNullable(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return domain.NewStorageError("decode json column", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ ports.ExecutionStore = (*Sink)(nil)
