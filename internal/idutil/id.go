// Package idutil generates prefixed identifiers and carries correlation ids
// through context.Context, following the shape of the teacher's id/context
// propagation helpers.
package idutil

import (
	"context"

	"github.com/google/uuid"
)

// New returns a prefixed v4-uuid identifier, e.g. New("task") -> "task-<uuid>".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewTaskID, NewProjectID, NewRunID, NewToolRunID, NewHistoryID name the
// identifier kinds the store persists.
func NewTaskID() string      { return New("task") }
func NewProjectID() string   { return New("proj") }
func NewRunID() string       { return New("run") }
func NewToolRunID() string   { return New("tr") }
func NewHistoryID() string   { return New("hist") }

type logIDKey struct{}

// WithLogID returns a context carrying id as the request's correlation id.
func WithLogID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, logIDKey{}, id)
}

// LogIDFromContext returns the correlation id stashed by WithLogID, or ""
// if none was ever attached.
func LogIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(logIDKey{}).(string); ok {
		return v
	}
	return ""
}

// NewLogID mints a fresh correlation id, used when an inbound request has
// none and the middleware must create one.
func NewLogID() string {
	return uuid.NewString()
}
