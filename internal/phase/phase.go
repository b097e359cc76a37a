// Package phase defines the fixed phase sequence a session traverses and
// the transition table that drives the state machine.
//
// Phases form a total order:
//
//	INIT → QUERY → ENHANCE → KNOWLEDGE → PLAN → EXECUTE → VERIFY → DONE
//
// INIT is the only entry state and DONE the only terminal state. The one
// sanctioned backward edge is VERIFY → EXECUTE, taken when verification
// fails. Transitions are table data, not conditionals, so every edge can
// be tested exhaustively.
package phase

import "fmt"

// Phase represents a distinct stage in the fixed traversal order.
type Phase string

const (
	// Init is the implicit entry state, created on first reference to a
	// session id. No work happens in INIT; the machine advances immediately.
	Init Phase = "INIT"

	// Query interprets the initial objective and detects the session role.
	Query Phase = "QUERY"

	// Enhance refines the interpreted goal with missing requirements.
	Enhance Phase = "ENHANCE"

	// Knowledge gathers external information through the injected
	// synthesis capability.
	Knowledge Phase = "KNOWLEDGE"

	// Plan decomposes the goal into the session todo list.
	Plan Phase = "PLAN"

	// Execute works through todos, one unit per visit. The phase
	// self-loops while actionable todos remain.
	Execute Phase = "EXECUTE"

	// Verify gates completion behind the task verifier.
	Verify Phase = "VERIFY"

	// Done is terminal. Sessions in DONE are frozen.
	Done Phase = "DONE"
)

// All returns every phase in traversal order.
func All() []Phase {
	return []Phase{Init, Query, Enhance, Knowledge, Plan, Execute, Verify, Done}
}

// Outcome selects an edge out of a phase in the transition table.
type Outcome string

const (
	// OutcomeAdvance moves to the next phase in the fixed order.
	OutcomeAdvance Outcome = "advance"

	// OutcomeContinue re-enters the same phase (EXECUTE self-loop).
	OutcomeContinue Outcome = "continue"

	// OutcomeRollback takes the sanctioned backward edge (VERIFY → EXECUTE).
	OutcomeRollback Outcome = "rollback"
)

// transitions is the complete edge set. A (phase, outcome) pair absent
// from this table is not a legal transition.
var transitions = map[Phase]map[Outcome]Phase{
	Init:      {OutcomeAdvance: Query},
	Query:     {OutcomeAdvance: Enhance},
	Enhance:   {OutcomeAdvance: Knowledge},
	Knowledge: {OutcomeAdvance: Plan},
	Plan:      {OutcomeAdvance: Execute},
	Execute: {
		OutcomeAdvance:  Verify,
		OutcomeContinue: Execute,
	},
	Verify: {
		OutcomeAdvance:  Done,
		OutcomeRollback: Execute,
	},
	Done: {},
}

// indexes gives each phase its position in the traversal order.
var indexes = func() map[Phase]int {
	m := make(map[Phase]int, len(All()))
	for i, p := range All() {
		m[p] = i
	}
	return m
}()

// Parse converts a wire string to a Phase.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase: %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the fixed phases.
func (p Phase) Valid() bool {
	_, ok := indexes[p]
	return ok
}

// Index returns the position of p in the traversal order, or -1 for an
// unknown phase.
func (p Phase) Index() int {
	i, ok := indexes[p]
	if !ok {
		return -1
	}
	return i
}

// Terminal reports whether p is the terminal phase.
func (p Phase) Terminal() bool {
	return p == Done
}

// Next resolves the (p, outcome) edge. ok is false when the edge does not
// exist in the transition table.
func Next(p Phase, outcome Outcome) (next Phase, ok bool) {
	edges, found := transitions[p]
	if !found {
		return "", false
	}
	next, ok = edges[outcome]
	return next, ok
}

// allowedTools is the fixed per-phase tool menu returned to callers. The
// menus are design constants, not runtime configuration.
var allowedTools = map[Phase][]string{
	Init:      {"task_orchestrate"},
	Query:     {"task_orchestrate"},
	Enhance:   {"task_orchestrate"},
	Knowledge: {"knowledge_fetch", "task_orchestrate"},
	Plan:      {"todo_write", "task_orchestrate"},
	Execute:   {"task_spawn", "shell", "file_edit", "todo_write", "task_orchestrate"},
	Verify:    {"todo_read", "task_orchestrate"},
	Done:      {},
}

// AllowedTools returns the tool menu for p. The returned slice is a copy.
func AllowedTools(p Phase) []string {
	tools := allowedTools[p]
	out := make([]string, len(tools))
	copy(out, tools)
	return out
}
