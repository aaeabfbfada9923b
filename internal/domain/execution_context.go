package domain

import "context"

type contextKey string

const ExecutionContextKey contextKey = "routines:execution_context"

func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	return context.WithValue(ctx, ExecutionContextKey, execCtx)
}

func GetExecutionContext(ctx context.Context) (*ExecutionContext, bool) {
	execCtx, ok := ctx.Value(ExecutionContextKey).(*ExecutionContext)
	return execCtx, ok
}
