package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/events"
)

func TestFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return default logger when none in context
	logger := events.FromContext(ctx)
	assert.NotNil(t, logger)
}

func TestWithLogger(t *testing.T) {
	ctx := context.Background()
	logger := &events.Logger{}

	ctx = events.WithLogger(ctx, logger)
	retrieved := events.FromContext(ctx)

	assert.Equal(t, logger, retrieved)
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

	ctx = events.WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", events.GetRequestID(ctx))

	events.FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestEnsureRequestID(t *testing.T) {
	ctx := events.EnsureRequestID(context.Background())

	id := events.GetRequestID(ctx)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	// Existing IDs are kept
	assert.Equal(t, id, events.GetRequestID(events.EnsureRequestID(ctx)))
}

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "text", &buf))

	ctx = events.WithOperation(ctx, "encrypt")
	assert.Equal(t, "encrypt", events.GetOperation(ctx))

	events.FromContext(ctx).Info("sealed")
	assert.Contains(t, buf.String(), "op=encrypt")
}

func TestGetRequestIDEmpty(t *testing.T) {
	assert.Empty(t, events.GetRequestID(context.Background()))
	assert.Empty(t, events.GetOperation(context.Background()))
}

func TestSetDefault(t *testing.T) {
	customLogger := &events.Logger{}
	events.SetDefault(customLogger)

	retrieved := events.FromContext(context.Background())

	assert.Equal(t, customLogger, retrieved)
}
