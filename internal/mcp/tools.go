package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phased/internal/logging"
	"github.com/fyrsmithlabs/phased/internal/orchestrator"
)

type taskOrchestrateInput struct {
	SessionID        string         `json:"session_id,omitempty" jsonschema:"Session identifier (generated when omitted)"`
	PhaseCompleted   string         `json:"phase_completed,omitempty" jsonschema:"Phase the caller just completed. Empty creates a session or queries state"`
	InitialObjective string         `json:"initial_objective,omitempty" jsonschema:"Objective captured at session creation"`
	Payload          map[string]any `json:"payload,omitempty" jsonschema:"Phase outputs merged additively into the session payload"`
}

type transitionOutput struct {
	SessionID        string         `json:"session_id" jsonschema:"Session identifier"`
	NextPhase        string         `json:"next_phase" jsonschema:"Phase the session is now in"`
	Status           string         `json:"status" jsonschema:"IN_PROGRESS or DONE"`
	DetectedRole     string         `json:"detected_role,omitempty" jsonschema:"Role detected during QUERY"`
	AllowedNextTools []string       `json:"allowed_next_tools" jsonschema:"Tool menu for the next phase"`
	Payload          map[string]any `json:"payload,omitempty" jsonschema:"Phase-scoped payload view"`
}

type sessionStatusInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
}

type sessionListInput struct{}

type sessionSummary struct {
	SessionID     string  `json:"session_id" jsonschema:"Session identifier"`
	CurrentPhase  string  `json:"current_phase" jsonschema:"Phase the session is in"`
	Status        string  `json:"status" jsonschema:"IN_PROGRESS or DONE"`
	DetectedRole  string  `json:"detected_role,omitempty" jsonschema:"Role detected during QUERY"`
	Effectiveness float64 `json:"reasoning_effectiveness" jsonschema:"Bounded reasoning effectiveness score"`
	TodosTotal    int     `json:"todos_total" jsonschema:"Number of planned todos"`
	UpdatedAt     string  `json:"updated_at" jsonschema:"Last transition time (RFC 3339)"`
}

type sessionListOutput struct {
	Sessions []sessionSummary `json:"sessions" jsonschema:"All known sessions ordered by id"`
	Count    int              `json:"count" jsonschema:"Number of sessions returned"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_orchestrate",
		Description: "Report a completed phase and receive the next phase, its allowed tools, and phase-scoped payload",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskOrchestrateInput) (*mcp.CallToolResult, transitionOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "task_orchestrate")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "task_orchestrate")
			s.metrics.RecordInvocation(ctx, "task_orchestrate", time.Since(start), toolErr)
		}()

		out, err := s.handleTaskOrchestrate(ctx, args)
		if err != nil {
			toolErr = err
			return nil, transitionOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Session %s: phase %s (%s)", out.SessionID, out.NextPhase, out.Status)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_status",
		Description: "Read the current phase and payload view of a session without mutating it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionStatusInput) (*mcp.CallToolResult, transitionOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "session_status")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "session_status")
			s.metrics.RecordInvocation(ctx, "session_status", time.Since(start), toolErr)
		}()

		out, err := s.handleSessionStatus(ctx, args)
		if err != nil {
			toolErr = err
			return nil, transitionOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Session %s: phase %s (%s)", out.SessionID, out.NextPhase, out.Status)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_list",
		Description: "List all known sessions with their phase and effectiveness score",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionListInput) (*mcp.CallToolResult, sessionListOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "session_list")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "session_list")
			s.metrics.RecordInvocation(ctx, "session_list", time.Since(start), toolErr)
		}()

		out, err := s.handleSessionList(ctx)
		if err != nil {
			toolErr = err
			return nil, sessionListOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d session(s)", out.Count)},
			},
		}, out, nil
	})
}

func (s *Server) handleTaskOrchestrate(ctx context.Context, args taskOrchestrateInput) (transitionOutput, error) {
	ctx = logging.WithSessionID(ctx, args.SessionID)

	resp, err := s.orch.Transition(ctx, orchestrator.TransitionRequest{
		SessionID:        args.SessionID,
		PhaseCompleted:   args.PhaseCompleted,
		InitialObjective: args.InitialObjective,
		Payload:          args.Payload,
	})
	if err != nil {
		if !orchestrator.IsCallerError(err) {
			s.logger.Error("transition failed", append(logging.ContextFields(ctx), zap.Error(err))...)
		}
		return transitionOutput{}, err
	}
	return toTransitionOutput(resp), nil
}

func (s *Server) handleSessionStatus(ctx context.Context, args sessionStatusInput) (transitionOutput, error) {
	resp, err := s.orch.Status(ctx, args.SessionID)
	if err != nil {
		return transitionOutput{}, err
	}
	return toTransitionOutput(resp), nil
}

func (s *Server) handleSessionList(ctx context.Context) (sessionListOutput, error) {
	sessions, err := s.orch.List(ctx)
	if err != nil {
		s.logger.Error("session list failed", zap.Error(err))
		return sessionListOutput{}, err
	}

	out := sessionListOutput{Sessions: make([]sessionSummary, 0, len(sessions)), Count: len(sessions)}
	for _, sess := range sessions {
		status := string(orchestrator.StatusInProgress)
		if sess.CurrentPhase.Terminal() {
			status = string(orchestrator.StatusDone)
		}
		out.Sessions = append(out.Sessions, sessionSummary{
			SessionID:     sess.ID,
			CurrentPhase:  string(sess.CurrentPhase),
			Status:        status,
			DetectedRole:  string(sess.DetectedRole),
			Effectiveness: sess.ReasoningEffectiveness,
			TodosTotal:    len(sess.Todos),
			UpdatedAt:     sess.UpdatedAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

func toTransitionOutput(resp *orchestrator.TransitionResponse) transitionOutput {
	return transitionOutput{
		SessionID:        resp.SessionID,
		NextPhase:        string(resp.NextPhase),
		Status:           string(resp.Status),
		DetectedRole:     string(resp.DetectedRole),
		AllowedNextTools: resp.AllowedTools,
		Payload:          resp.PayloadView,
	}
}
