package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

const conflictRetries = 3

// BadgerStore persists execution history in an embedded badger database.
// Executions live under domain.ExecutionKey and node results under
// domain.NodeResultKey, so a prefix scan returns results ordered by node
// id and run index.
type BadgerStore struct {
	db     *badger.DB
	owned  bool
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database described by cfg. The returned
// store owns the database and closes it on Close.
func Open(cfg domain.StorageConfig, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, domain.NewConfigurationError("badger storage requires a path or in_memory", domain.ErrInvalidConfig,
			domain.WithComponent("storage.Open"))
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerAdapter{logger: logger.With("component", "storage.badger")}
	opts.MemTableSize = 16 << 20
	opts.NumMemtables = 2
	opts.NumLevelZeroTables = 2
	opts.NumLevelZeroTablesStall = 4
	opts.BlockCacheSize = 8 << 20
	opts.IndexCacheSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewStorageError("failed to open badger database", err,
			domain.WithComponent("storage.Open"),
			domain.WithDetail("path", cfg.Path),
			domain.WithDetail("in_memory", cfg.InMemory))
	}

	store := NewBadgerStore(db, logger)
	store.owned = true
	return store, nil
}

// NewBadgerStore wraps a database the caller keeps ownership of.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{
		db:     db,
		logger: logger.With("component", "execution_store", "type", "badger"),
	}
}

func (s *BadgerStore) CreateExecution(ctx context.Context, record ports.ExecutionRecord) error {
	if record.WorkflowID == "" {
		return domain.NewValidationError("workflow id is required", domain.ErrInvalidInput)
	}

	summary := &ports.ExecutionSummary{ExecutionRecord: record, Status: domain.ExecutionStatusPending}
	value, err := encodeSummary(summary)
	if err != nil {
		return err
	}

	key := []byte(domain.ExecutionKey(record.WorkflowID))
	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return domain.NewStorageError("execution already exists", domain.ErrConflict,
				domain.WithDetail("workflow_id", record.WorkflowID))
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("execution created", "workflow_id", record.WorkflowID, "routine_id", record.RoutineID)
	return nil
}

func (s *BadgerStore) UpdateStatus(ctx context.Context, update ports.StatusUpdate) error {
	key := []byte(domain.ExecutionKey(update.WorkflowID))
	return s.update(ctx, func(txn *badger.Txn) error {
		summary, err := getSummary(txn, update.WorkflowID)
		if err != nil {
			return err
		}
		summary.ApplyStatus(update)

		value, err := encodeSummary(summary)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) StoreNodeResult(ctx context.Context, record ports.NodeResultRecord) error {
	value, err := encodeResult(record)
	if err != nil {
		return err
	}

	key := []byte(domain.NodeResultKey(record.WorkflowID, record.NodeID, record.RunIndex))
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := getSummary(txn, record.WorkflowID); err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) GetExecution(ctx context.Context, workflowID string) (*ports.ExecutionSummary, error) {
	var summary *ports.ExecutionSummary
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		summary, err = getSummary(txn, workflowID)
		return err
	})
	return summary, err
}

func (s *BadgerStore) ListNodeResults(ctx context.Context, workflowID string) ([]ports.NodeResultRecord, error) {
	var results []ports.NodeResultRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		if _, err := getSummary(txn, workflowID); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(domain.NodeResultPrefixFor(workflowID))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := decodeResult(value)
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	})
	return results, err
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return domain.NewStorageError("failed to close badger database", err)
	}
	return nil
}

func getSummary(txn *badger.Txn, workflowID string) (*ports.ExecutionSummary, error) {
	item, err := txn.Get([]byte(domain.ExecutionKey(workflowID)))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.NewNotFoundError("execution", workflowID)
		}
		return nil, domain.NewStorageError("failed to read execution", err,
			domain.WithDetail("workflow_id", workflowID))
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, domain.NewStorageError("failed to copy execution value", err)
	}
	return decodeSummary(value)
}

// update runs fn in a read-write transaction, retrying on badger's
// optimistic concurrency conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
	}
	return domain.NewStorageError("transaction conflict persisted", err)
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.db.View(fn)
}

// guard takes the read lock on success; callers release it.
func (s *BadgerStore) guard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return domain.NewStorageError("execution store is closed", domain.ErrClosed)
	}
	return nil
}

var _ ports.ExecutionStore = (*BadgerStore)(nil)
