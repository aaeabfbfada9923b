package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// ExecutionStore keeps execution history in process memory. It is the
// default sink when no storage backend is configured.
type ExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]*ports.ExecutionSummary
	results    map[string][]ports.NodeResultRecord
	logger     *slog.Logger
}

func NewExecutionStore(logger *slog.Logger) *ExecutionStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExecutionStore{
		executions: make(map[string]*ports.ExecutionSummary),
		results:    make(map[string][]ports.NodeResultRecord),
		logger:     logger.With("component", "execution_store", "type", "memory"),
	}
}

func (s *ExecutionStore) CreateExecution(ctx context.Context, record ports.ExecutionRecord) error {
	if record.WorkflowID == "" {
		return domain.NewValidationError("workflow id is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[record.WorkflowID]; exists {
		return domain.NewStorageError("execution already exists", domain.ErrConflict,
			domain.WithDetail("workflow_id", record.WorkflowID))
	}

	record.TriggerData = domain.ClonePortData(record.TriggerData)
	s.executions[record.WorkflowID] = &ports.ExecutionSummary{
		ExecutionRecord: record,
		Status:          domain.ExecutionStatusPending,
	}
	s.logger.Debug("execution created", "workflow_id", record.WorkflowID, "routine_id", record.RoutineID)
	return nil
}

func (s *ExecutionStore) UpdateStatus(ctx context.Context, update ports.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, exists := s.executions[update.WorkflowID]
	if !exists {
		return domain.NewNotFoundError("execution", update.WorkflowID)
	}
	summary.ApplyStatus(update)
	return nil
}

func (s *ExecutionStore) StoreNodeResult(ctx context.Context, record ports.NodeResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[record.WorkflowID]; !exists {
		return domain.NewNotFoundError("execution", record.WorkflowID)
	}

	record.Output = domain.ClonePortData(record.Output)
	s.results[record.WorkflowID] = append(s.results[record.WorkflowID], record)
	return nil
}

func (s *ExecutionStore) GetExecution(ctx context.Context, workflowID string) (*ports.ExecutionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, exists := s.executions[workflowID]
	if !exists {
		return nil, domain.NewNotFoundError("execution", workflowID)
	}

	clone := *summary
	clone.ExecutionPath = append([]domain.PathEntry(nil), summary.ExecutionPath...)
	return &clone, nil
}

// ListNodeResults returns results ordered by node id, then run index.
func (s *ExecutionStore) ListNodeResults(ctx context.Context, workflowID string) ([]ports.NodeResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.executions[workflowID]; !exists {
		return nil, domain.NewNotFoundError("execution", workflowID)
	}

	results := append([]ports.NodeResultRecord(nil), s.results[workflowID]...)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].NodeID != results[j].NodeID {
			return results[i].NodeID < results[j].NodeID
		}
		return results[i].RunIndex < results[j].RunIndex
	})
	return results, nil
}

func (s *ExecutionStore) Close() error {
	return nil
}

var _ ports.ExecutionStore = (*ExecutionStore)(nil)
