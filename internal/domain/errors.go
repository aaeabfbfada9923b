package domain

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	CategoryValidation
	CategoryExecution
	CategoryPlugin
	CategoryStorage
	CategoryTimeout
	CategoryConfiguration
	CategoryNetwork
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryExecution:
		return "execution"
	case CategoryPlugin:
		return "plugin"
	case CategoryStorage:
		return "storage"
	case CategoryTimeout:
		return "timeout"
	case CategoryConfiguration:
		return "configuration"
	case CategoryNetwork:
		return "network"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

type ErrorContext struct {
	Component  string
	Operation  string
	WorkflowID string
	NodeID     string
	Function   string
	File       string
	Line       int
	Details    map[string]interface{}
}

type DomainError struct {
	Category   ErrorCategory
	Severity   ErrorSeverity
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	UserFacing bool
	Timestamp  time.Time
	Context    ErrorContext
}

type ErrorOption func(*DomainError)

func WithComponent(component string) ErrorOption {
	return func(e *DomainError) {
		e.Context.Component = component
	}
}

func WithCode(code string) ErrorOption {
	return func(e *DomainError) {
		e.Code = code
	}
}

func WithSeverity(severity ErrorSeverity) ErrorOption {
	return func(e *DomainError) {
		e.Severity = severity
	}
}

func WithDetail(key string, value interface{}) ErrorOption {
	return func(e *DomainError) {
		if e.Context.Details == nil {
			e.Context.Details = make(map[string]interface{})
		}
		e.Context.Details[key] = value
	}
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Category.String())
	if e.Context.Component != "" {
		b.WriteString(":")
		b.WriteString(e.Context.Component)
	}
	b.WriteString("] ")
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError of the same category.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Category == other.Category
}

func (e *DomainError) WithNodeID(nodeID string) *DomainError {
	e.Context.NodeID = nodeID
	return e
}

func (e *DomainError) WithWorkflowID(workflowID string) *DomainError {
	e.Context.WorkflowID = workflowID
	return e
}

func (e *DomainError) WithOperation(operation string) *DomainError {
	e.Context.Operation = operation
	return e
}

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	WithDetail(key, value)(e)
	return e
}

func NewDomainErrorWithCategory(category ErrorCategory, message string, cause error, opts ...ErrorOption) *DomainError {
	err := &DomainError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}

	switch category {
	case CategoryValidation, CategoryConfiguration:
		err.UserFacing = true
	case CategoryTimeout, CategoryNetwork:
		err.Retryable = true
	}

	err.Code = inferCode(category, message)
	captureCallSite(&err.Context, 3)

	for _, opt := range opts {
		opt(err)
	}
	return err
}

func NewValidationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryValidation, message, cause, opts...)
}

func NewExecutionError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryExecution, message, cause, opts...)
}

func NewPluginError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryPlugin, message, cause, opts...)
}

func NewStorageError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryStorage, message, cause, opts...)
}

func NewTimeoutError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryTimeout, message, cause, opts...)
}

func NewConfigurationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryConfiguration, message, cause, opts...)
}

func NewNetworkError(message string, cause error, opts ...ErrorOption) *DomainError {
	return NewDomainErrorWithCategory(CategoryNetwork, message, cause, opts...)
}

func NewNotFoundError(resource, id string) *DomainError {
	return NewDomainErrorWithCategory(CategoryStorage, fmt.Sprintf("%s not found: %s", resource, id), ErrNotFound,
		WithCode(strings.ToUpper(CategoryStorage.String())+"_NOT_FOUND"),
		WithDetail("resource", resource),
		WithDetail("id", id))
}

func inferCode(category ErrorCategory, message string) string {
	prefix := strings.ToUpper(category.String())
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "required"):
		return prefix + "_REQUIRED"
	case strings.Contains(msg, "not found"), strings.Contains(msg, "unknown"):
		return prefix + "_NOT_FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return prefix + "_TIMEOUT"
	case strings.Contains(msg, "conflict"), strings.Contains(msg, "duplicate"):
		return prefix + "_CONFLICT"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "unavailable"):
		return prefix + "_CONNECTION"
	case strings.Contains(msg, "panic"):
		return prefix + "_PANIC"
	case strings.Contains(msg, "deadlock"):
		return prefix + "_DEADLOCK"
	default:
		return prefix + "_INVALID"
	}
}

func captureCallSite(ctx *ErrorContext, skip int) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return
	}
	ctx.File = file
	ctx.Line = line
	if fn := runtime.FuncForPC(pc); fn != nil {
		ctx.Function = fn.Name()
	}
}

func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

func GetErrorCategory(err error) ErrorCategory {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Category
	}
	return CategoryUnknown
}

func GetErrorSeverity(err error) ErrorSeverity {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Severity
	}
	return SeverityError
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "connection")
}

func IsUserFacingError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.UserFacing
	}
	return false
}

func GetErrorContext(err error) *ErrorContext {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return &domainErr.Context
	}
	return nil
}

var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrClosed         = errors.New("closed")
	ErrUnknownPlugin  = errors.New("unknown plugin")
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrConflict       = errors.New("conflict")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
