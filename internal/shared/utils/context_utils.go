package utils

import (
	"context"
	"errors"

	"storage-sync-worker/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrRunIDNotFound       = errors.New("runID not found in context")
	ErrRunIDNotString      = errors.New("runID in context is not a string")
	ErrCollectionNotFound  = errors.New("collection not found in context")
	ErrCollectionNotString = errors.New("collection in context is not a string")
	ErrLoopNotFound        = errors.New("loop not found in context")
	ErrLoopNotString       = errors.New("loop in context is not a string")
)

func stringFromContext(ctx context.Context, key interface{}, notFound, notString error) (string, error) {
	val := ctx.Value(key)
	if val == nil {
		return "", notFound
	}
	s, ok := val.(string)
	if !ok {
		return "", notString
	}
	return s, nil
}

// GetRunIDFromContext retrieves the worker run ID from the context.
func GetRunIDFromContext(ctx context.Context) (string, error) {
	return stringFromContext(ctx, contextkeys.RunIDKey, ErrRunIDNotFound, ErrRunIDNotString)
}

// GetCollectionFromContext retrieves the collection a loop is serving.
func GetCollectionFromContext(ctx context.Context) (string, error) {
	return stringFromContext(ctx, contextkeys.CollectionKey, ErrCollectionNotFound, ErrCollectionNotString)
}

// GetLoopFromContext retrieves the loop kind.
func GetLoopFromContext(ctx context.Context) (string, error) {
	return stringFromContext(ctx, contextkeys.LoopKey, ErrLoopNotFound, ErrLoopNotString)
}

// Context builder functions

// WithRunID adds the worker run ID to context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextkeys.RunIDKey, runID)
}

// WithCollection adds the served collection to context
func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, contextkeys.CollectionKey, collection)
}

// WithLoop adds the loop kind to context
func WithLoop(ctx context.Context, loop string) context.Context {
	return context.WithValue(ctx, contextkeys.LoopKey, loop)
}

// WithComponent adds component name to context
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, contextkeys.ComponentKey, component)
}

// WithOperation adds operation name to context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, operation)
}

// GetCollectionOrDefault retrieves the collection from context or returns a default value
func GetCollectionOrDefault(ctx context.Context, def string) string {
	if v, err := GetCollectionFromContext(ctx); err == nil {
		return v
	}
	return def
}

func HasRunID(ctx context.Context) bool {
	_, err := GetRunIDFromContext(ctx)
	return err == nil
}
