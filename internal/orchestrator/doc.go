// Package orchestrator is the phase state machine driving agent sessions.
//
// One operation, Transition, does all the work: the caller reports the
// phase it just completed along with any outputs, and the machine merges
// the outputs into the session payload, runs the completed phase's exit
// logic (role detection, knowledge synthesis, todo ingestion, the
// effectiveness tracker, the task verifier), resolves the next phase from
// the transition table, persists the session, and answers with the next
// phase, its allowed tools, and a phase-scoped payload view.
//
// Transitions for one session are serialized through the store's
// per-session lock; sessions never observe a half-applied transition.
package orchestrator
