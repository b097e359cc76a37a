// Package session holds per-session state and its persistence.
//
// A Session is the durable record of one logical task run: the phase the
// machine is in, the detected role, the bounded reasoning-effectiveness
// score, the additive payload map, and the ordered todo list. Sessions are
// created on first reference to an unseen id and mutated only through the
// state machine's transition operation.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/phased/internal/metaprompt"
	"github.com/fyrsmithlabs/phased/internal/phase"
	"github.com/fyrsmithlabs/phased/internal/roles"
)

// TodoStatus is the lifecycle state of a single todo.
type TodoStatus string

const (
	StatusPending    TodoStatus = "pending"
	StatusInProgress TodoStatus = "in_progress"
	StatusCompleted  TodoStatus = "completed"
)

// TodoPriority ranks a todo. High-priority todos are critical for
// verification.
type TodoPriority string

const (
	PriorityHigh   TodoPriority = "high"
	PriorityMedium TodoPriority = "medium"
	PriorityLow    TodoPriority = "low"
)

// TodoType distinguishes delegated-agent work from direct work.
type TodoType string

const (
	// TypeDirect is work the calling agent performs itself. The zero
	// value is treated as direct.
	TypeDirect TodoType = "direct"

	// TypeDelegated marks work handed to a spawned sub-agent via a
	// meta-instruction.
	TypeDelegated TodoType = "delegated_agent"
)

// TodoItem is one unit of planned work.
type TodoItem struct {
	Content    string                 `json:"content"`
	Status     TodoStatus             `json:"status"`
	Priority   TodoPriority           `json:"priority"`
	Type       TodoType               `json:"type,omitempty"`
	MetaPrompt *metaprompt.MetaPrompt `json:"meta_prompt,omitempty"`
}

// Critical reports whether this todo alone can fail verification:
// high priority, delegated type, or carrying a meta-instruction.
func (t TodoItem) Critical() bool {
	return t.Priority == PriorityHigh || t.Type == TypeDelegated || t.MetaPrompt != nil
}

// Actionable reports whether the todo still needs work.
func (t TodoItem) Actionable() bool {
	return t.Status != StatusCompleted
}

// Session is the full per-session record.
type Session struct {
	// ID is opaque, unique, and immutable after creation.
	ID string `json:"id"`

	// CurrentPhase is mutated only by the state machine.
	CurrentPhase phase.Phase `json:"current_phase"`

	// InitialObjective is captured at creation and never changed.
	InitialObjective string `json:"initial_objective"`

	// DetectedRole is set once during QUERY and read thereafter.
	DetectedRole roles.Role `json:"detected_role"`

	// ReasoningEffectiveness is a bounded score reflecting the historical
	// success rate of completed work. It persists across phases and gates
	// verification.
	ReasoningEffectiveness float64 `json:"reasoning_effectiveness"`

	// Payload accumulates phase outputs. Keys are additive: later phases
	// never destroy earlier phases' keys.
	Payload map[string]any `json:"payload"`

	// Todos is the ordered work list produced by PLAN.
	Todos []TodoItem `json:"todos"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a session in INIT with the given objective and initial
// effectiveness score.
func New(id, objective string, initialEffectiveness float64) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                     id,
		CurrentPhase:           phase.Init,
		InitialObjective:       objective,
		ReasoningEffectiveness: initialEffectiveness,
		Payload:                make(map[string]any),
		Todos:                  nil,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// MergePayload sets each supplied key. Existing keys not named in p are
// preserved; the merge is strictly additive.
func (s *Session) MergePayload(p map[string]any) {
	if len(p) == 0 {
		return
	}
	if s.Payload == nil {
		s.Payload = make(map[string]any, len(p))
	}
	for k, v := range p {
		s.Payload[k] = v
	}
}

// FirstActionableIndex returns the index of the first todo still needing
// work, or -1 when none remains.
func (s *Session) FirstActionableIndex() int {
	for i, t := range s.Todos {
		if t.Actionable() {
			return i
		}
	}
	return -1
}

// FirstPendingIndex returns the index of the first todo still pending, or
// -1 when none is. In-progress todos are excluded: they belong to work
// already dispatched.
func (s *Session) FirstPendingIndex() int {
	for i, t := range s.Todos {
		if t.Status == StatusPending {
			return i
		}
	}
	return -1
}

// FirstIncompleteCriticalIndex returns the index of the first critical
// todo that is not completed. When no critical todo is incomplete it
// falls back to the first incomplete todo of any kind, and returns -1
// when everything is completed. The policy never skips an incomplete
// critical todo.
func (s *Session) FirstIncompleteCriticalIndex() int {
	for i, t := range s.Todos {
		if t.Critical() && t.Actionable() {
			return i
		}
	}
	return s.FirstActionableIndex()
}

// Clone returns a deep copy via a JSON round-trip. Payload values are
// JSON-typed by construction (they arrive from the wire), so the
// round-trip is lossless.
func (s *Session) Clone() (*Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session %s: %w", s.ID, err)
	}
	var out Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone session %s: %w", s.ID, err)
	}
	return &out, nil
}
