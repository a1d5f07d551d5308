package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type profileIDKey struct{}
type operationKey struct{}

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return withString(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringFrom(ctx, requestIDKey{})
}

func WithProfileID(ctx stdcontext.Context, profileID string) stdcontext.Context {
	return withString(ctx, profileIDKey{}, profileID)
}

func ProfileIDFromContext(ctx stdcontext.Context) string {
	return stringFrom(ctx, profileIDKey{})
}

// WithOperation tags the context with the log operation label (BG/FETCH, ADDPOS, ...).
func WithOperation(ctx stdcontext.Context, operation string) stdcontext.Context {
	return withString(ctx, operationKey{}, operation)
}

func OperationFromContext(ctx stdcontext.Context) string {
	return stringFrom(ctx, operationKey{})
}

func withString(ctx stdcontext.Context, key any, value string) stdcontext.Context {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, key, value)
}

func stringFrom(ctx stdcontext.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithoutOperation hides any operation label carried by ctx.
func WithoutOperation(ctx stdcontext.Context) stdcontext.Context {
	if ctx == nil || OperationFromContext(ctx) == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, operationKey{}, "")
}
