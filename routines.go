// Package routines executes user-authored routines: directed graphs of
// plugin nodes joined by flow connections (which signal activates which
// node next) and data connections (which output feeds which input).
//
// A run proceeds in waves. Every node whose predecessors have resolved runs
// concurrently with the rest of its wave, the signals it emits pick the
// next nodes, and bounded loop connections send control back to earlier
// nodes while accumulating selected outputs across iterations.
//
// Basic usage:
//
//	manager := routines.New(logger)
//	manager.RegisterPluginFunc("http", httpPlugin)
//	manager.Start(ctx)
//	defer manager.Stop()
//
//	def, _ := routines.LoadDefinition("orders.yaml")
//	result, err := manager.Execute(ctx, def)
package routines

import (
	"context"
	"log/slog"

	"github.com/eleven-am/routines/internal/adapters/definition"
	"github.com/eleven-am/routines/internal/core"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// Manager owns an engine together with its plugin registry, execution
// store and activity runner.
type Manager = core.Manager

// RoutineDefinition is the user-authored routine: nodes, connections and
// the data the run was triggered with.
type RoutineDefinition = domain.RoutineDefinition

// Node is one plugin invocation in a routine. Disabled nodes are skipped
// and emit the default signal.
type Node = domain.Node

// Connection is either a FlowConnection or a DataConnection.
type Connection = domain.Connection

// FlowConnection activates its target when the source emits a matching
// signal. A flow connection with a LoopConfig is a loop connection.
type FlowConnection = domain.FlowConnection

// DataConnection copies a source output, or a dotted path into it, onto a
// target input port.
type DataConnection = domain.DataConnection

type LoopConfig = domain.LoopConfig

// ConnectionSpec is the flat wire form of a connection.
type ConnectionSpec = domain.ConnectionSpec

type PortData = domain.PortData

// Plugin is the unit of work a node runs.
type Plugin = ports.Plugin

type PluginFunc = ports.PluginFunc

// PluginRequest carries a node's config, resolved inputs and execution
// context to its plugin.
type PluginRequest = ports.PluginRequest

// PluginResult is what a plugin returns: output data and an optional signal.
type PluginResult = domain.PluginResult

// ExecutionContext identifies the run and node a plugin call belongs to,
// including the loop iteration and accumulator inside loop bodies.
type ExecutionContext = domain.ExecutionContext

type RunOptions = ports.RunOptions

type RunResult = domain.RunResult

type RunStatus = domain.RunStatus

type NodeExecutionResult = domain.NodeExecutionResult

type PathEntry = domain.PathEntry

type ValidationResult = domain.ValidationResult

type ValidationIssue = domain.ValidationIssue

type EngineMetrics = ports.EngineMetrics

// ExecutionSummary is the stored view of a run.
type ExecutionSummary = ports.ExecutionSummary

type NodeResultRecord = ports.NodeResultRecord

// Lifecycle events and their handlers.
type (
	RunCompletedEvent  = domain.RunCompletedEvent
	RunErrorEvent      = domain.RunErrorEvent
	NodeCompletedEvent = domain.NodeCompletedEvent
	CompletionHandler  = ports.CompletionHandler
	ErrorHandler       = ports.ErrorHandler
	ProgressHandler    = ports.ProgressHandler
)

// Error types returned by a run.
type (
	ValidationError    = domain.ValidationError
	NodeExecutionError = domain.NodeExecutionError
	NodePanicError     = domain.NodePanicError
	DeadlockError      = domain.DeadlockError
	DomainError        = domain.DomainError
)

const (
	RunStatusCompleted  = domain.RunStatusCompleted
	RunStatusFailed     = domain.RunStatusFailed
	RunStatusDeadlocked = domain.RunStatusDeadlocked

	// DefaultSignal is emitted by nodes that do not name a signal.
	DefaultSignal = domain.DefaultSignal

	IssueUnknownPlugin = domain.IssueUnknownPlugin
	IssueCycle         = domain.IssueCycle
)

var (
	ErrNotFound      = domain.ErrNotFound
	ErrInvalidInput  = domain.ErrInvalidInput
	ErrInvalidConfig = domain.ErrInvalidConfig
	ErrUnknownPlugin = domain.ErrUnknownPlugin
	ErrNotStarted    = domain.ErrNotStarted
)

// New creates a manager with default configuration: in-memory execution
// history and an in-process plugin registry.
func New(logger *slog.Logger) *Manager {
	return core.New(logger)
}

// NewWithConfig creates a manager from config. The config is validated
// here; storage and remote connections are opened by Start.
func NewWithConfig(config *Config) (*Manager, error) {
	return core.NewWithConfig(config)
}

// LoadDefinition reads a routine definition from a .json, .yaml/.yml or
// .hcl file.
func LoadDefinition(path string) (RoutineDefinition, error) {
	return definition.Load(path)
}

// ParseDefinition decodes a routine definition in the named format:
// "json", "yaml" or "hcl".
func ParseDefinition(data []byte, format string) (RoutineDefinition, error) {
	return definition.Parse(data, definition.Format(format))
}

// GetExecutionContext returns the execution context of the node a plugin
// is running for.
func GetExecutionContext(ctx context.Context) (*ExecutionContext, bool) {
	return domain.GetExecutionContext(ctx)
}

// RecordHeartbeat reports liveness from a long-running plugin. Once a
// plugin has heartbeated it must keep doing so within the heartbeat timeout.
func RecordHeartbeat(ctx context.Context, details ...any) {
	ports.RecordHeartbeat(ctx, details...)
}

// NonRetryable marks err so the runner fails the node without retrying.
func NonRetryable(err error) error {
	return ports.NonRetryable(err)
}
