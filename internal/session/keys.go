package session

// Payload keys written and read by the state machine. These keys persist
// across phase transitions and are additive; the machine overwrites a key
// it owns but never deletes keys written by earlier phases.
const (
	// KeyInterpretedGoal is the QUERY output: the objective restated.
	KeyInterpretedGoal = "interpreted_goal"

	// KeyDetectedRole mirrors Session.DetectedRole for payload consumers.
	KeyDetectedRole = "detected_role"

	// KeyEnhancedGoal is the ENHANCE output: the goal with requirements
	// filled in.
	KeyEnhancedGoal = "enhanced_goal"

	// KeyKnowledgeQueries is supplied by the caller when KNOWLEDGE
	// completes; it triggers the injected synthesizer.
	KeyKnowledgeQueries = "knowledge_queries"

	// KeyKnowledgeGathered holds synthesized content.
	KeyKnowledgeGathered = "knowledge_gathered"

	// KeyKnowledgeConfidence holds the synthesizer's confidence score.
	KeyKnowledgeConfidence = "knowledge_confidence"

	// KeyKnowledgeContradictions lists contradictions across sources.
	KeyKnowledgeContradictions = "knowledge_contradictions"

	// KeyTodos is the PLAN hand-off: the raw todo list the machine
	// ingests into Session.Todos.
	KeyTodos = "todos"

	// KeyPlanCreated records that PLAN produced a todo list.
	KeyPlanCreated = "plan_created"

	// KeyTaskSuccess reports the outcome of the unit of work just
	// finished in EXECUTE.
	KeyTaskSuccess = "task_success"

	// KeyTaskComplexity is "simple" or "complex"; it sizes the
	// effectiveness adjustment.
	KeyTaskComplexity = "task_complexity"

	// KeyCurrentTaskIndex points the caller at the next actionable todo
	// during the EXECUTE self-loop.
	KeyCurrentTaskIndex = "current_task_index"

	// KeyVerificationPassed is the caller's verification claim.
	KeyVerificationPassed = "verification_passed"

	// KeyVerificationFailure records the verifier's failure reason after
	// a rollback, for audit.
	KeyVerificationFailure = "last_verification_failure"

	// KeyResumeTaskIndex records the rollback resume point: the first
	// incomplete critical todo.
	KeyResumeTaskIndex = "resume_task_index"

	// KeyRollbackCount counts sanctioned VERIFY→EXECUTE rollbacks.
	KeyRollbackCount = "rollback_count"

	// KeyReasoningEffectiveness mirrors the session score into payload
	// views for observability.
	KeyReasoningEffectiveness = "reasoning_effectiveness"

	// KeyCompletionSummary records the verifier's reason on success.
	KeyCompletionSummary = "completion_summary"
)
