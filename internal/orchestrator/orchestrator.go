package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phased/internal/effectiveness"
	"github.com/fyrsmithlabs/phased/internal/knowledge"
	"github.com/fyrsmithlabs/phased/internal/metaprompt"
	"github.com/fyrsmithlabs/phased/internal/phase"
	"github.com/fyrsmithlabs/phased/internal/roles"
	"github.com/fyrsmithlabs/phased/internal/session"
	"github.com/fyrsmithlabs/phased/internal/verification"
)

const instrumentationName = "github.com/fyrsmithlabs/phased/internal/orchestrator"

// Service runs phase transitions over a session store.
type Service struct {
	store  session.Store
	synth  knowledge.Synthesizer
	verify verification.Config
	effect effectiveness.Config
	logger *zap.Logger
	tracer trace.Tracer

	transitions metric.Int64Counter
	rollbacks   metric.Int64Counter
	completions metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithSynthesizer injects the knowledge-synthesis capability used during
// KNOWLEDGE. The default is the null synthesizer.
func WithSynthesizer(k knowledge.Synthesizer) Option {
	return func(s *Service) {
		if k != nil {
			s.synth = k
		}
	}
}

// WithVerificationConfig overrides the verifier thresholds.
func WithVerificationConfig(cfg verification.Config) Option {
	return func(s *Service) { s.verify = cfg }
}

// WithEffectivenessConfig overrides the tracker bounds and steps.
func WithEffectivenessConfig(cfg effectiveness.Config) Option {
	return func(s *Service) { s.effect = cfg }
}

// NewService creates a phase state machine over the given store.
func NewService(store session.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:  store,
		synth:  knowledge.NullSynthesizer{},
		verify: verification.DefaultConfig(),
		effect: effectiveness.DefaultConfig(),
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if s.transitions, err = meter.Int64Counter("phased.transitions",
		metric.WithDescription("Completed phase transitions")); err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	if s.rollbacks, err = meter.Int64Counter("phased.rollbacks",
		metric.WithDescription("Verification-failure rollbacks")); err != nil {
		return nil, fmt.Errorf("create rollbacks counter: %w", err)
	}
	if s.completions, err = meter.Int64Counter("phased.completions",
		metric.WithDescription("Sessions reaching the terminal phase")); err != nil {
		return nil, fmt.Errorf("create completions counter: %w", err)
	}
	return s, nil
}

// Transition advances one session by one phase-completion report.
//
// A request with no session record and no phase_completed creates the
// session and advances it out of INIT. A request with an existing session
// and no phase_completed is a read-only status query. A phase_completed
// that does not match the session's current phase is rejected without
// mutation.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*TransitionResponse, error) {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = uuid.NewString()
	}
	if err := session.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var reported phase.Phase
	if req.PhaseCompleted != "" {
		p, err := phase.Parse(req.PhaseCompleted)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		reported = p
	}

	ctx, span := s.tracer.Start(ctx, "orchestrator.Transition",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	unlock := s.store.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	created := false
	switch {
	case errors.Is(err, session.ErrNotFound):
		if reported != "" {
			return nil, &UnknownSessionError{SessionID: id}
		}
		sess = session.New(id, strings.TrimSpace(req.InitialObjective), s.effect.Initial)
		created = true
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	if sess.CurrentPhase.Terminal() {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionComplete)
	}

	if !created {
		if reported == "" {
			// Status query: no mutation, answer from the stored state.
			return s.respond(sess), nil
		}
		if reported != sess.CurrentPhase {
			return nil, &PhaseMismatchError{SessionID: id, Reported: reported, Current: sess.CurrentPhase}
		}
	}

	sess.MergePayload(req.Payload)

	outcome, err := s.completePhase(ctx, sess)
	if err != nil {
		return nil, err
	}

	next, ok := phase.Next(sess.CurrentPhase, outcome)
	if !ok {
		return nil, fmt.Errorf("session %s: no %s edge out of %s", id, outcome, sess.CurrentPhase)
	}

	from := sess.CurrentPhase
	sess.CurrentPhase = next
	sess.UpdatedAt = time.Now().UTC()
	sess.Payload[session.KeyReasoningEffectiveness] = sess.ReasoningEffectiveness

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(next))))
	if outcome == phase.OutcomeRollback {
		s.rollbacks.Add(ctx, 1)
	}
	if next.Terminal() {
		s.completions.Add(ctx, 1)
	}

	s.logger.Info("phase transition",
		zap.String("session_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("outcome", string(outcome)),
		zap.Float64("effectiveness", sess.ReasoningEffectiveness))

	return s.respond(sess), nil
}

// Status returns the current state of an existing session without
// mutating it.
func (s *Service) Status(ctx context.Context, id string) (*TransitionResponse, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, &UnknownSessionError{SessionID: id}
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return s.respond(sess), nil
}

// List returns all sessions ordered by id.
func (s *Service) List(ctx context.Context) ([]*session.Session, error) {
	return s.store.List(ctx)
}

// completePhase runs the exit logic for the session's current phase and
// picks the outgoing edge.
func (s *Service) completePhase(ctx context.Context, sess *session.Session) (phase.Outcome, error) {
	switch sess.CurrentPhase {
	case phase.Init:
		return phase.OutcomeAdvance, nil
	case phase.Query:
		s.completeQuery(sess)
		return phase.OutcomeAdvance, nil
	case phase.Enhance:
		return phase.OutcomeAdvance, nil
	case phase.Knowledge:
		s.completeKnowledge(ctx, sess)
		return phase.OutcomeAdvance, nil
	case phase.Plan:
		return phase.OutcomeAdvance, s.completePlan(sess)
	case phase.Execute:
		return s.completeExecute(sess)
	case phase.Verify:
		return s.completeVerify(sess), nil
	default:
		return "", fmt.Errorf("session %s: cannot complete phase %s", sess.ID, sess.CurrentPhase)
	}
}

// completeQuery pins the session role. Detection runs once; later visits
// only mirror the stored role into the payload.
func (s *Service) completeQuery(sess *session.Session) {
	if sess.DetectedRole == "" {
		text := sess.InitialObjective
		if g, ok := sess.Payload[session.KeyInterpretedGoal].(string); ok && g != "" {
			text = g
		}
		sess.DetectedRole = roles.Classify(text)
		s.logger.Debug("role detected",
			zap.String("session_id", sess.ID),
			zap.String("role", string(sess.DetectedRole)))
	}
	sess.Payload[session.KeyDetectedRole] = string(sess.DetectedRole)
}

// completeKnowledge runs the injected synthesizer over the caller's
// queries. Synthesis failure is a collaborator failure, not a session
// failure: the session proceeds without gathered knowledge.
func (s *Service) completeKnowledge(ctx context.Context, sess *session.Session) {
	queries := stringSlice(sess.Payload[session.KeyKnowledgeQueries])
	if len(queries) == 0 {
		return
	}
	syn, err := s.synth.FetchAndSynthesize(ctx, queries)
	if err != nil {
		s.logger.Warn("knowledge synthesis failed, continuing without gathered knowledge",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return
	}
	sess.Payload[session.KeyKnowledgeGathered] = syn.Content
	sess.Payload[session.KeyKnowledgeConfidence] = syn.Confidence
	if len(syn.Contradictions) > 0 {
		sess.Payload[session.KeyKnowledgeContradictions] = syn.Contradictions
	}
}

// completePlan ingests the caller's todo list into the session.
func (s *Service) completePlan(sess *session.Session) error {
	raw, ok := sess.Payload[session.KeyTodos]
	if !ok {
		sess.Payload[session.KeyPlanCreated] = false
		return nil
	}
	todos, err := s.decodeTodos(sess.ID, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	sess.Todos = todos
	sess.Payload[session.KeyPlanCreated] = len(todos) > 0
	return nil
}

// completeExecute applies the reported work-unit outcome, absorbs todo
// status updates, and decides between the self-loop and advancing to
// verification.
func (s *Service) completeExecute(sess *session.Session) (phase.Outcome, error) {
	if raw, ok := sess.Payload[session.KeyTodos]; ok {
		todos, err := s.decodeTodos(sess.ID, raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		sess.Todos = todos
	}

	if v, ok := sess.Payload[session.KeyTaskSuccess]; ok {
		success, isBool := v.(bool)
		if !isBool {
			s.logger.Warn("non-boolean task_success treated as failure",
				zap.String("session_id", sess.ID))
		}
		c := effectiveness.Simple
		if cs, ok := sess.Payload[session.KeyTaskComplexity].(string); ok {
			parsed, known := effectiveness.ParseComplexity(cs)
			if !known {
				s.logger.Warn("unknown task complexity treated as simple",
					zap.String("session_id", sess.ID),
					zap.String("complexity", cs))
			}
			c = parsed
		}
		effectiveness.Update(sess, success, c, s.effect)

		// Outcome inputs are consumed, not retained, so a later loop
		// iteration without a fresh report is not double-counted.
		delete(sess.Payload, session.KeyTaskSuccess)
		delete(sess.Payload, session.KeyTaskComplexity)
	}

	if idx := sess.FirstPendingIndex(); idx >= 0 {
		sess.Payload[session.KeyCurrentTaskIndex] = idx
		return phase.OutcomeContinue, nil
	}
	return phase.OutcomeAdvance, nil
}

// completeVerify gates the session on the task verifier. A failing result
// takes the sanctioned rollback edge and records the resume point.
func (s *Service) completeVerify(sess *session.Session) phase.Outcome {
	claim := verification.Claim{}
	if v, ok := sess.Payload[session.KeyVerificationPassed]; ok {
		if b, isBool := v.(bool); isBool {
			claim = verification.Claim{Asserted: true, Passed: b}
		}
	}

	result := verification.Validate(sess, claim, s.verify)
	if result.IsValid {
		sess.Payload[session.KeyCompletionSummary] = result.Reason
		return phase.OutcomeAdvance
	}

	resume := sess.FirstIncompleteCriticalIndex()
	sess.Payload[session.KeyVerificationFailure] = result.Reason
	sess.Payload[session.KeyResumeTaskIndex] = resume
	sess.Payload[session.KeyCurrentTaskIndex] = resume
	sess.Payload[session.KeyRollbackCount] = payloadInt(sess.Payload[session.KeyRollbackCount]) + 1
	delete(sess.Payload, session.KeyVerificationPassed)

	s.logger.Warn("verification failed, rolling back to execution",
		zap.String("session_id", sess.ID),
		zap.String("reason", result.Reason),
		zap.Int("resume_task_index", resume),
		zap.Int("completion_percentage", result.CompletionPercentage))
	return phase.OutcomeRollback
}

// todoSpec is the wire shape of one todo in the payload.
type todoSpec struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	Type       string `json:"type"`
	MetaPrompt string `json:"meta_prompt"`
}

// decodeTodos converts the raw payload todo list into session todos. A
// malformed meta-instruction demotes its todo to direct work instead of
// failing the transition; a structurally invalid list fails it.
func (s *Service) decodeTodos(sessionID string, raw any) ([]session.TodoItem, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("todos payload: %w", err)
	}
	var specs []todoSpec
	if err := json.Unmarshal(buf, &specs); err != nil {
		return nil, fmt.Errorf("todos payload must be a list of todo objects: %w", err)
	}

	out := make([]session.TodoItem, 0, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.Content) == "" {
			return nil, fmt.Errorf("todo %d: content is required", i)
		}
		item := session.TodoItem{
			Content:  spec.Content,
			Status:   session.StatusPending,
			Priority: session.PriorityMedium,
		}

		switch st := session.TodoStatus(spec.Status); st {
		case "":
		case session.StatusPending, session.StatusInProgress, session.StatusCompleted:
			item.Status = st
		default:
			return nil, fmt.Errorf("todo %d: unknown status %q", i, spec.Status)
		}

		switch pr := session.TodoPriority(spec.Priority); pr {
		case "":
		case session.PriorityHigh, session.PriorityMedium, session.PriorityLow:
			item.Priority = pr
		default:
			return nil, fmt.Errorf("todo %d: unknown priority %q", i, spec.Priority)
		}

		switch tp := session.TodoType(spec.Type); tp {
		case "", session.TypeDirect, session.TypeDelegated:
			item.Type = tp
		default:
			return nil, fmt.Errorf("todo %d: unknown type %q", i, spec.Type)
		}

		if spec.MetaPrompt != "" {
			mp, err := metaprompt.Parse(spec.MetaPrompt)
			if err != nil {
				// Not delegatable; keep the work, drop the delegation.
				s.logger.Warn("malformed meta-instruction, keeping todo as direct work",
					zap.String("session_id", sessionID),
					zap.Int("todo_index", i),
					zap.Error(err))
				item.Type = session.TypeDirect
			} else {
				item.MetaPrompt = mp
				item.Type = session.TypeDelegated
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// viewKeys selects which payload keys each phase exposes in responses.
// The full payload stays internal; callers see what their next phase
// needs.
var viewKeys = map[phase.Phase][]string{
	phase.Query:     {session.KeyDetectedRole},
	phase.Enhance:   {session.KeyDetectedRole, session.KeyInterpretedGoal},
	phase.Knowledge: {session.KeyDetectedRole, session.KeyEnhancedGoal},
	phase.Plan: {
		session.KeyDetectedRole, session.KeyEnhancedGoal,
		session.KeyKnowledgeGathered, session.KeyKnowledgeConfidence,
		session.KeyKnowledgeContradictions,
	},
	phase.Execute: {
		session.KeyDetectedRole, session.KeyCurrentTaskIndex,
		session.KeyResumeTaskIndex, session.KeyVerificationFailure,
		session.KeyRollbackCount, session.KeyPlanCreated,
	},
	phase.Verify: {session.KeyDetectedRole, session.KeyRollbackCount},
	phase.Done: {
		session.KeyDetectedRole, session.KeyCompletionSummary,
		session.KeyRollbackCount,
	},
}

func (s *Service) respond(sess *session.Session) *TransitionResponse {
	status := StatusInProgress
	if sess.CurrentPhase.Terminal() {
		status = StatusDone
	}
	return &TransitionResponse{
		SessionID:    sess.ID,
		NextPhase:    sess.CurrentPhase,
		Status:       status,
		DetectedRole: sess.DetectedRole,
		AllowedTools: phase.AllowedTools(sess.CurrentPhase),
		PayloadView:  payloadView(sess),
	}
}

func payloadView(sess *session.Session) map[string]any {
	view := map[string]any{
		session.KeyReasoningEffectiveness: sess.ReasoningEffectiveness,
	}
	if sess.InitialObjective != "" {
		view["initial_objective"] = sess.InitialObjective
	}
	for _, k := range viewKeys[sess.CurrentPhase] {
		if v, ok := sess.Payload[k]; ok {
			view[k] = v
		}
	}
	if sess.CurrentPhase == phase.Execute || sess.CurrentPhase == phase.Verify {
		remaining := 0
		for _, t := range sess.Todos {
			if t.Actionable() {
				remaining++
			}
		}
		view["todos_total"] = len(sess.Todos)
		view["todos_remaining"] = remaining
	}
	return view
}

// stringSlice extracts a []string from a payload value, which arrives
// from JSON as []any.
func stringSlice(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// payloadInt reads an integer payload value. JSON round-trips numbers as
// float64.
func payloadInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
