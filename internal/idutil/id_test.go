package idutil

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrefixed(t *testing.T) {
	id := NewTaskID()
	assert.True(t, strings.HasPrefix(id, "task-"))
	assert.NotEqual(t, NewTaskID(), NewTaskID())
}

func TestLogIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", LogIDFromContext(ctx))

	ctx = WithLogID(ctx, "abc-123")
	assert.Equal(t, "abc-123", LogIDFromContext(ctx))
}

func TestNewLogIDUnique(t *testing.T) {
	assert.NotEqual(t, NewLogID(), NewLogID())
}
