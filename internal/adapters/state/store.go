package state

import (
	"sync"

	"github.com/eleven-am/routines/internal/domain"
)

// Store is the mutable state of one run. All access goes through its
// methods; callers never see the internal maps.
type Store struct {
	mu sync.RWMutex

	results     map[string][]domain.NodeExecutionResult
	outputs     map[string]domain.PortData
	states      map[string]map[string]any
	executed    map[string]bool
	activations map[string]bool
	path        []domain.PathEntry
	errors      []domain.NodeErrorEntry
}

type Snapshot struct {
	NodeResults   map[string][]domain.NodeExecutionResult
	NodeOutputs   map[string]domain.PortData
	ExecutionPath []domain.PathEntry
	Errors        []domain.NodeErrorEntry
}

func NewStore() *Store {
	return &Store{
		results:     make(map[string][]domain.NodeExecutionResult),
		outputs:     make(map[string]domain.PortData),
		states:      make(map[string]map[string]any),
		executed:    make(map[string]bool),
		activations: make(map[string]bool),
	}
}

// AddResult appends a result for nodeID and returns the run index assigned
// to it, which is the number of results recorded before this one.
func (s *Store) AddResult(nodeID string, result domain.NodeExecutionResult) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	runIndex := len(s.results[nodeID])
	result.NodeID = nodeID
	result.RunIndex = runIndex
	result.Outputs = domain.ClonePortData(result.Outputs)

	s.results[nodeID] = append(s.results[nodeID], result)
	s.outputs[nodeID] = result.Outputs

	if result.Failed() {
		s.errors = append(s.errors, domain.NodeErrorEntry{
			NodeID:   nodeID,
			RunIndex: runIndex,
			Error:    result.Error,
		})
	}
	return runIndex
}

func (s *Store) AppendPath(entries ...domain.PathEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = append(s.path, entries...)
}

func (s *Store) GetRunIndex(nodeID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results[nodeID])
}

func (s *Store) HasExecuted(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executed[nodeID]
}

func (s *Store) MarkExecuted(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed[nodeID] = true
}

func (s *Store) ClearExecuted(nodeIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range nodeIDs {
		delete(s.executed, id)
	}
}

// GetState returns a copy of the node's scratch state, creating it on
// first use.
func (s *Store) GetState(nodeID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[nodeID]
	if !ok {
		current = make(map[string]any)
		s.states[nodeID] = current
	}
	out := make(map[string]any, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out
}

func (s *Store) SetState(nodeID string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]any, len(values))
	for k, v := range values {
		next[k] = v
	}
	s.states[nodeID] = next
}

// Outputs returns the outputs of the node's latest result.
func (s *Store) Outputs(nodeID string) (domain.PortData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outputs, ok := s.outputs[nodeID]
	if !ok {
		return nil, false
	}
	return domain.ClonePortData(outputs), true
}

func (s *Store) Results(nodeID string) []domain.NodeExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneResults(s.results[nodeID])
}

func (s *Store) Path() []domain.PathEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PathEntry(nil), s.path...)
}

func (s *Store) HasErrors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.errors) > 0
}

func (s *Store) GetErrors() []domain.NodeErrorEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.NodeErrorEntry(nil), s.errors...)
}

// RecordActivation remembers whether the source of edgeID selected it on
// its latest run.
func (s *Store) RecordActivation(edgeID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations[edgeID] = active
}

// Activation reports the recorded decision for edgeID and whether one exists.
func (s *Store) Activation(edgeID string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active, ok := s.activations[edgeID]
	return active, ok
}

func (s *Store) ResetActivations(edgeIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range edgeIDs {
		delete(s.activations, id)
	}
}

// Snapshot returns a deep copy of everything a RunResult reports.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		NodeResults:   make(map[string][]domain.NodeExecutionResult, len(s.results)),
		NodeOutputs:   make(map[string]domain.PortData, len(s.outputs)),
		ExecutionPath: append([]domain.PathEntry(nil), s.path...),
		Errors:        append([]domain.NodeErrorEntry(nil), s.errors...),
	}
	for id, results := range s.results {
		snap.NodeResults[id] = cloneResults(results)
	}
	for id, outputs := range s.outputs {
		snap.NodeOutputs[id] = domain.ClonePortData(outputs)
	}
	return snap
}

func cloneResults(results []domain.NodeExecutionResult) []domain.NodeExecutionResult {
	if results == nil {
		return nil
	}
	out := make([]domain.NodeExecutionResult, len(results))
	for i, r := range results {
		r.Outputs = domain.ClonePortData(r.Outputs)
		if r.Error != nil {
			e := *r.Error
			r.Error = &e
		}
		out[i] = r
	}
	return out
}
