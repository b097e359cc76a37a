package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phased/internal/knowledge"
	"github.com/fyrsmithlabs/phased/internal/phase"
	"github.com/fyrsmithlabs/phased/internal/roles"
	"github.com/fyrsmithlabs/phased/internal/session"
)

type stubSynthesizer struct {
	synthesis *knowledge.Synthesis
	err       error
	queries   []string
}

func (s *stubSynthesizer) FetchAndSynthesize(_ context.Context, queries []string) (*knowledge.Synthesis, error) {
	s.queries = queries
	if s.err != nil {
		return nil, s.err
	}
	return s.synthesis, nil
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(session.NewMemoryStore(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func advance(t *testing.T, svc *Service, id string, completed phase.Phase, payload map[string]any) *TransitionResponse {
	t.Helper()
	resp, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID:      id,
		PhaseCompleted: string(completed),
		Payload:        payload,
	})
	require.NoError(t, err)
	return resp
}

func TestTransitionCreatesSessionAndAdvancesOutOfInit(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID:        "sess-1",
		InitialObjective: "implement the payment api endpoint",
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, phase.Query, resp.NextPhase)
	assert.Equal(t, StatusInProgress, resp.Status)
	assert.Equal(t, phase.AllowedTools(phase.Query), resp.AllowedTools)
	assert.Equal(t, 0.8, resp.PayloadView[session.KeyReasoningEffectiveness])
}

func TestTransitionGeneratesIDWhenOmitted(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Transition(context.Background(), TransitionRequest{
		InitialObjective: "research caching strategies",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, phase.Query, resp.NextPhase)
}

func TestFullTraversalToDone(t *testing.T) {
	synth := &stubSynthesizer{synthesis: &knowledge.Synthesis{
		Content:    "summary of sources",
		Confidence: 0.9,
	}}
	svc := newTestService(t, WithSynthesizer(synth))
	id := "traversal"

	resp, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID:        id,
		InitialObjective: "implement and debug the ingest api",
	})
	require.NoError(t, err)
	require.Equal(t, phase.Query, resp.NextPhase)

	resp = advance(t, svc, id, phase.Query, map[string]any{
		session.KeyInterpretedGoal: "build the ingest api endpoint",
	})
	require.Equal(t, phase.Enhance, resp.NextPhase)
	assert.Equal(t, roles.Coder, resp.DetectedRole)

	resp = advance(t, svc, id, phase.Enhance, map[string]any{
		session.KeyEnhancedGoal: "build the ingest api endpoint with retries",
	})
	require.Equal(t, phase.Knowledge, resp.NextPhase)

	resp = advance(t, svc, id, phase.Knowledge, map[string]any{
		session.KeyKnowledgeQueries: []any{"go http retry patterns"},
	})
	require.Equal(t, phase.Plan, resp.NextPhase)
	assert.Equal(t, []string{"go http retry patterns"}, synth.queries)
	assert.Equal(t, "summary of sources", resp.PayloadView[session.KeyKnowledgeGathered])

	resp = advance(t, svc, id, phase.Plan, map[string]any{
		session.KeyTodos: []any{
			map[string]any{"content": "write handler", "priority": "high"},
			map[string]any{"content": "write tests", "priority": "medium"},
		},
	})
	require.Equal(t, phase.Execute, resp.NextPhase)

	// First unit done; one todo remains so EXECUTE self-loops.
	resp = advance(t, svc, id, phase.Execute, map[string]any{
		session.KeyTaskSuccess:    true,
		session.KeyTaskComplexity: "complex",
		session.KeyTodos: []any{
			map[string]any{"content": "write handler", "priority": "high", "status": "completed"},
			map[string]any{"content": "write tests", "priority": "medium"},
		},
	})
	require.Equal(t, phase.Execute, resp.NextPhase)
	assert.InDelta(t, 0.95, resp.PayloadView[session.KeyReasoningEffectiveness], 1e-9)
	assert.Equal(t, 1, resp.PayloadView["todos_remaining"])

	// Second unit done; no pending todos remain so EXECUTE advances.
	resp = advance(t, svc, id, phase.Execute, map[string]any{
		session.KeyTaskSuccess: true,
		session.KeyTodos: []any{
			map[string]any{"content": "write handler", "priority": "high", "status": "completed"},
			map[string]any{"content": "write tests", "priority": "medium", "status": "completed"},
		},
	})
	require.Equal(t, phase.Verify, resp.NextPhase)

	resp = advance(t, svc, id, phase.Verify, map[string]any{
		session.KeyVerificationPassed: true,
	})
	require.Equal(t, phase.Done, resp.NextPhase)
	assert.Equal(t, StatusDone, resp.Status)
	assert.Empty(t, resp.AllowedTools)
	assert.Contains(t, resp.PayloadView, session.KeyCompletionSummary)
}

func TestVerifyRollbackRecordsResumePoint(t *testing.T) {
	svc := newTestService(t)
	id := "rollback"

	_, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID:        id,
		InitialObjective: "plan the migration roadmap",
	})
	require.NoError(t, err)
	advance(t, svc, id, phase.Query, nil)
	advance(t, svc, id, phase.Enhance, nil)
	advance(t, svc, id, phase.Knowledge, nil)
	advance(t, svc, id, phase.Plan, map[string]any{
		session.KeyTodos: []any{
			map[string]any{"content": "done already", "priority": "low", "status": "completed"},
			map[string]any{"content": "critical migration step", "priority": "high", "status": "completed"},
		},
	})

	// Mark the critical step incomplete on the way into verification.
	resp := advance(t, svc, id, phase.Execute, map[string]any{
		session.KeyTodos: []any{
			map[string]any{"content": "done already", "priority": "low", "status": "completed"},
			map[string]any{"content": "critical migration step", "priority": "high", "status": "in_progress"},
		},
	})
	require.Equal(t, phase.Verify, resp.NextPhase)

	resp = advance(t, svc, id, phase.Verify, nil)
	require.Equal(t, phase.Execute, resp.NextPhase)
	assert.Equal(t, StatusInProgress, resp.Status)
	assert.Contains(t, resp.PayloadView[session.KeyVerificationFailure], "critical")
	assert.Equal(t, 1, payloadInt(resp.PayloadView[session.KeyResumeTaskIndex]))
	assert.Equal(t, 1, payloadInt(resp.PayloadView[session.KeyRollbackCount]))
}

func TestPhaseMismatchRejectedWithoutMutation(t *testing.T) {
	svc := newTestService(t)
	id := "mismatch"

	_, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), TransitionRequest{
		SessionID:      id,
		PhaseCompleted: string(phase.Plan),
		Payload:        map[string]any{"poison": true},
	})
	var mismatch *PhaseMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, phase.Plan, mismatch.Reported)
	assert.Equal(t, phase.Query, mismatch.Current)
	assert.True(t, IsCallerError(err))

	// The rejected payload must not have leaked into the session.
	resp, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, phase.Query, resp.NextPhase)

	sessions, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotContains(t, sessions[0].Payload, "poison")
}

func TestPhaseCompletedOnUnknownSession(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID:      "ghost",
		PhaseCompleted: string(phase.Query),
	})
	var unknown *UnknownSessionError
	require.ErrorAs(t, err, &unknown)
	assert.True(t, IsCallerError(err))
}

func TestCompletedSessionIsFrozen(t *testing.T) {
	svc := newTestService(t)
	id := "frozen"

	_, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
	require.NoError(t, err)
	advance(t, svc, id, phase.Query, nil)
	advance(t, svc, id, phase.Enhance, nil)
	advance(t, svc, id, phase.Knowledge, nil)
	advance(t, svc, id, phase.Plan, nil)
	resp := advance(t, svc, id, phase.Execute, nil)
	require.Equal(t, phase.Verify, resp.NextPhase)
	resp = advance(t, svc, id, phase.Verify, nil)
	require.Equal(t, phase.Done, resp.NextPhase)

	_, err = svc.Transition(context.Background(), TransitionRequest{
		SessionID:      id,
		PhaseCompleted: string(phase.Done),
	})
	require.ErrorIs(t, err, ErrSessionComplete)
	assert.True(t, IsCallerError(err))
}

func TestStatusQueryDoesNotMutate(t *testing.T) {
	svc := newTestService(t)
	id := "status"

	_, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
	require.NoError(t, err)

	for range 3 {
		resp, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
		require.NoError(t, err)
		assert.Equal(t, phase.Query, resp.NextPhase)
	}
}

func TestUnknownPhaseNameIsCallerError(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID:      "bad-phase",
		PhaseCompleted: "COMPILE",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.True(t, IsCallerError(err))
}

func TestInvalidSessionIDIsCallerError(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID: "no spaces allowed",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMalformedMetaPromptDemotesToDirectWork(t *testing.T) {
	svc := newTestService(t)
	id := "meta"

	_, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
	require.NoError(t, err)
	advance(t, svc, id, phase.Query, nil)
	advance(t, svc, id, phase.Enhance, nil)
	advance(t, svc, id, phase.Knowledge, nil)
	advance(t, svc, id, phase.Plan, map[string]any{
		session.KeyTodos: []any{
			map[string]any{
				"content":     "delegate the schema work",
				"meta_prompt": "(ROLE: coder) (CONTEXT: schema)", // missing PROMPT and OUTPUT
			},
			map[string]any{
				"content":     "delegate the review",
				"meta_prompt": "(ROLE: critic) (CONTEXT: schema) (PROMPT: review it) (OUTPUT: report)",
			},
		},
	})

	sessions, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	todos := sessions[0].Todos
	require.Len(t, todos, 2)

	assert.Equal(t, session.TypeDirect, todos[0].Type)
	assert.Nil(t, todos[0].MetaPrompt)
	assert.Equal(t, session.TypeDelegated, todos[1].Type)
	require.NotNil(t, todos[1].MetaPrompt)
	assert.Equal(t, roles.Critic, todos[1].MetaPrompt.Role)
}

func TestPayloadMergeIsAdditive(t *testing.T) {
	svc := newTestService(t)
	id := "additive"

	_, err := svc.Transition(context.Background(), TransitionRequest{
		SessionID: id,
		Payload:   map[string]any{"from_init": "kept"},
	})
	require.NoError(t, err)
	advance(t, svc, id, phase.Query, map[string]any{"from_query": "also kept"})

	sessions, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "kept", sessions[0].Payload["from_init"])
	assert.Equal(t, "also kept", sessions[0].Payload["from_query"])
}

func TestEffectivenessFloorBlocksVerification(t *testing.T) {
	svc := newTestService(t)
	id := "floor"

	_, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
	require.NoError(t, err)
	advance(t, svc, id, phase.Query, nil)
	advance(t, svc, id, phase.Enhance, nil)
	advance(t, svc, id, phase.Knowledge, nil)
	advance(t, svc, id, phase.Plan, map[string]any{
		session.KeyTodos: []any{
			map[string]any{"content": "one task", "priority": "low"},
		},
	})

	// Two failed units drop the score from 0.8 to 0.5, below the 0.7 floor.
	resp := advance(t, svc, id, phase.Execute, map[string]any{
		session.KeyTaskSuccess:    false,
		session.KeyTaskComplexity: "complex",
	})
	require.Equal(t, phase.Execute, resp.NextPhase)
	resp = advance(t, svc, id, phase.Execute, map[string]any{
		session.KeyTaskSuccess:    false,
		session.KeyTaskComplexity: "complex",
		session.KeyTodos: []any{
			map[string]any{"content": "one task", "priority": "low", "status": "completed"},
		},
	})
	require.Equal(t, phase.Verify, resp.NextPhase)
	assert.InDelta(t, 0.5, resp.PayloadView[session.KeyReasoningEffectiveness], 1e-9)

	resp = advance(t, svc, id, phase.Verify, nil)
	assert.Equal(t, phase.Execute, resp.NextPhase)
	assert.Contains(t, resp.PayloadView[session.KeyVerificationFailure], "effectiveness")
}

func TestSynthesizerFailureDoesNotFailTransition(t *testing.T) {
	synth := &stubSynthesizer{err: errors.New("upstream down")}
	svc := newTestService(t, WithSynthesizer(synth))
	id := "synth-err"

	_, err := svc.Transition(context.Background(), TransitionRequest{SessionID: id})
	require.NoError(t, err)
	advance(t, svc, id, phase.Query, nil)
	advance(t, svc, id, phase.Enhance, nil)

	resp := advance(t, svc, id, phase.Knowledge, map[string]any{
		session.KeyKnowledgeQueries: []any{"anything"},
	})
	assert.Equal(t, phase.Plan, resp.NextPhase)
	assert.NotContains(t, resp.PayloadView, session.KeyKnowledgeGathered)
}
