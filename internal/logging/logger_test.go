package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err := New(level, "json")
		require.NoError(t, err, level)
		require.NotNil(t, l)
	}

	l, err := New("info", "console")
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = New("loud", "json")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestSessionIDContext(t *testing.T) {
	ctx := context.Background()

	_, ok := SessionIDFromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, ContextFields(ctx))

	ctx = WithSessionID(ctx, "sess-42")
	id, ok := SessionIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sess-42", id)

	fields := ContextFields(ctx)
	require.Len(t, fields, 1)
	assert.Equal(t, "session_id", fields[0].Key)
}
