package scope

import (
	"context"
	"errors"
)

// Key for scope ID in context
type contextKey string

const (
	scopeIDKey   contextKey = "scopeID"
	requestIDKey contextKey = "requestID"
)

// ErrScopeIDNotFound is returned when no scope ID is found in context
var ErrScopeIDNotFound = errors.New("scope ID not found in context")

// WithScopeID adds a source-scope ID to the context
func WithScopeID(ctx context.Context, scopeID string) context.Context {
	return context.WithValue(ctx, scopeIDKey, scopeID)
}

// FromContext extracts the scope ID from the context
func FromContext(ctx context.Context) (string, error) {
	scopeID, ok := ctx.Value(scopeIDKey).(string)
	if !ok || scopeID == "" {
		return "", ErrScopeIDNotFound
	}
	return scopeID, nil
}

// MustFromContext extracts the scope ID from the context or panics
func MustFromContext(ctx context.Context) string {
	scopeID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return scopeID
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}
