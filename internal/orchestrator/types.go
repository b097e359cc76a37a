package orchestrator

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/phased/internal/phase"
	"github.com/fyrsmithlabs/phased/internal/roles"
)

// Status is the coarse session state reported with every response.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// TransitionRequest is one turn of the conversation with the machine.
//
// PhaseCompleted names the phase the caller just finished. It is empty on
// the first call for a new session, and may be left empty on later calls
// to read the current state without mutating it.
type TransitionRequest struct {
	SessionID        string         `json:"session_id"`
	PhaseCompleted   string         `json:"phase_completed,omitempty"`
	InitialObjective string         `json:"initial_objective,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
}

// TransitionResponse tells the caller where the session is now and what
// it may do next.
type TransitionResponse struct {
	SessionID    string         `json:"session_id"`
	NextPhase    phase.Phase    `json:"next_phase"`
	Status       Status         `json:"status"`
	DetectedRole roles.Role     `json:"detected_role,omitempty"`
	AllowedTools []string       `json:"allowed_next_tools"`
	PayloadView  map[string]any `json:"payload,omitempty"`
}

// ErrSessionComplete rejects transitions on a session already in the
// terminal phase. Completed sessions are frozen.
var ErrSessionComplete = errors.New("session is complete and frozen")

// ErrInvalidRequest wraps request-shape problems: bad session ids and
// unknown phase names.
var ErrInvalidRequest = errors.New("invalid request")

// PhaseMismatchError reports a phase_completed that does not match the
// session's current phase. The transition is rejected without mutation.
type PhaseMismatchError struct {
	SessionID string
	Reported  phase.Phase
	Current   phase.Phase
}

func (e *PhaseMismatchError) Error() string {
	return fmt.Sprintf("session %s: reported phase %s does not match current phase %s",
		e.SessionID, e.Reported, e.Current)
}

// UnknownSessionError reports a phase_completed against a session id that
// has no record. A completed phase implies the session already exists.
type UnknownSessionError struct {
	SessionID string
}

func (e *UnknownSessionError) Error() string {
	return fmt.Sprintf("session %s: not found (phase_completed set on unknown session)", e.SessionID)
}

// IsCallerError reports whether err is the caller's fault rather than an
// internal failure. Transport layers map these to client-error responses.
func IsCallerError(err error) bool {
	var mismatch *PhaseMismatchError
	var unknown *UnknownSessionError
	return errors.Is(err, ErrSessionComplete) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.As(err, &mismatch) ||
		errors.As(err, &unknown)
}
