package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phased/internal/orchestrator"
	"github.com/fyrsmithlabs/phased/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	orch, err := orchestrator.NewService(session.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	srv, err := NewServer(nil, orch)
	require.NoError(t, err)
	return srv
}

func TestNewServerRequiresOrchestrator(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestTaskOrchestrateDrivesSession(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	out, err := srv.handleTaskOrchestrate(ctx, taskOrchestrateInput{
		SessionID:        "mcp-sess",
		InitialObjective: "implement the billing api",
	})
	require.NoError(t, err)
	assert.Equal(t, "mcp-sess", out.SessionID)
	assert.Equal(t, "QUERY", out.NextPhase)
	assert.Equal(t, "IN_PROGRESS", out.Status)
	assert.NotEmpty(t, out.AllowedNextTools)

	out, err = srv.handleTaskOrchestrate(ctx, taskOrchestrateInput{
		SessionID:      "mcp-sess",
		PhaseCompleted: "QUERY",
	})
	require.NoError(t, err)
	assert.Equal(t, "ENHANCE", out.NextPhase)
	assert.Equal(t, "coder", out.DetectedRole)
}

func TestTaskOrchestrateRejectsPhaseMismatch(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.handleTaskOrchestrate(ctx, taskOrchestrateInput{SessionID: "s"})
	require.NoError(t, err)

	_, err = srv.handleTaskOrchestrate(ctx, taskOrchestrateInput{
		SessionID:      "s",
		PhaseCompleted: "VERIFY",
	})
	require.Error(t, err)
	assert.True(t, orchestrator.IsCallerError(err))
	assert.Equal(t, "phase_mismatch", categorizeError(err))
}

func TestSessionStatusAndList(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.handleTaskOrchestrate(ctx, taskOrchestrateInput{
		SessionID:        "alpha",
		InitialObjective: "research embedding models",
	})
	require.NoError(t, err)

	status, err := srv.handleSessionStatus(ctx, sessionStatusInput{SessionID: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, "QUERY", status.NextPhase)

	_, err = srv.handleSessionStatus(ctx, sessionStatusInput{SessionID: "missing"})
	require.Error(t, err)
	assert.Equal(t, "session_not_found", categorizeError(err))

	list, err := srv.handleSessionList(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "alpha", list.Sessions[0].SessionID)
	assert.Equal(t, "QUERY", list.Sessions[0].CurrentPhase)
	assert.InDelta(t, 0.8, list.Sessions[0].Effectiveness, 1e-9)
}

func TestCategorizeError(t *testing.T) {
	assert.Empty(t, categorizeError(nil))
	assert.Equal(t, "session_complete",
		categorizeError(orchestrator.ErrSessionComplete))
	assert.Equal(t, "validation_error",
		categorizeError(orchestrator.ErrInvalidRequest))
	assert.Equal(t, "internal_error",
		categorizeError(assert.AnError))
}
