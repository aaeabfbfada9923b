package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes reported by graph validation.
const (
	IssueDanglingReference = "DANGLING_REFERENCE"
	IssueNoEntryNode       = "NO_ENTRY_NODE"
	IssueCycle             = "CYCLE_DETECTED"
	IssueUnreachable       = "UNREACHABLE_NODE"
	IssueInvalidLoopConfig = "INVALID_LOOP_CONFIG"
	IssueLoopWithoutConfig = "LOOP_HANDLE_WITHOUT_CONFIG"
	IssueUnknownPlugin     = "UNKNOWN_PLUGIN"
	IssueDuplicateID       = "DUPLICATE_ID"
	IssueMissingID         = "MISSING_ID"
)

type ValidationIssue struct {
	Code         string   `json:"code" yaml:"code"`
	Message      string   `json:"message" yaml:"message"`
	NodeIDs      []string `json:"nodeIds,omitempty" yaml:"node_ids,omitempty"`
	ConnectionID string   `json:"connectionId,omitempty" yaml:"connection_id,omitempty"`
}

func (i ValidationIssue) String() string {
	return i.Code + ": " + i.Message
}

type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// ValidationError carries every issue found in a single validation pass.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "routine validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("routine validation failed with %d issue(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

type DeadlockError struct {
	StuckNodes []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock: %d node(s) queued but never ready: %s", len(e.StuckNodes), strings.Join(e.StuckNodes, ", "))
}

// NodeExecutionError reports a node whose plugin failed. Cause keeps the
// original error so errors.Is/As still reach it.
type NodeExecutionError struct {
	NodeID   string
	PluginID string
	RunIndex int
	Message  string
	Stack    string
	Cause    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (run %d) failed: %s", e.NodeID, e.RunIndex, e.Message)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// StackTracer is implemented by errors that captured a stack when raised.
type StackTracer interface {
	StackTrace() string
}

// Envelope is implemented by the wrappers the engine and the activity
// substrate put around a plugin failure. RootCause looks through them.
type Envelope interface {
	error
	Unwrap() error
	Envelope()
}

func (e *NodeExecutionError) Envelope() {}

// RootCause looks through engine and substrate envelopes to the error the
// plugin actually returned and reports its message, keeping whatever
// wrapping context the plugin added. The stack is the first one found
// anywhere along the chain.
func RootCause(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	current := err
	for {
		env, ok := current.(Envelope)
		if !ok || env.Unwrap() == nil {
			break
		}
		current = env.Unwrap()
	}

	var stack string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(StackTracer); ok {
			stack = st.StackTrace()
			break
		}
	}

	if domainErr, ok := current.(*DomainError); ok {
		return domainErr.Message, stack
	}
	return current.Error(), stack
}
