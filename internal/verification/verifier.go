// Package verification implements the task-completion gate evaluated at
// the VERIFY phase.
//
// Validate is a pure function over a session snapshot and the caller's
// claim: no clock, no randomness, no I/O. Six ordered rules apply and the
// first failing rule short-circuits into the result. The ordering is a
// deliberate tie-break policy — critical-task integrity dominates the
// aggregate percentage, which dominates pending/in-progress checks, which
// dominate the historical-effectiveness gate, which dominates the
// caller's self-reported claim.
package verification

import (
	"fmt"
	"math"

	"github.com/fyrsmithlabs/phased/internal/session"
)

// Config holds the two verification thresholds.
type Config struct {
	// CompletionThreshold is the minimum overall completion percentage
	// (rule 2), in percent.
	CompletionThreshold int

	// EffectivenessFloor is the minimum reasoning effectiveness (rule 5).
	EffectivenessFloor float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		CompletionThreshold: 95,
		EffectivenessFloor:  0.7,
	}
}

// Claim is the caller's self-reported verification outcome, read from the
// session payload. Asserted is false when the caller made no claim.
type Claim struct {
	Asserted bool
	Passed   bool
}

// Breakdown counts todos by status.
type Breakdown struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Total      int `json:"total"`
}

// Result is the verifier's outcome. Reason is always populated, on pass
// and fail alike, for audit.
type Result struct {
	IsValid                bool      `json:"is_valid"`
	CompletionPercentage   int       `json:"completion_percentage"`
	CriticalTasksCompleted int       `json:"critical_tasks_completed"`
	TotalCriticalTasks     int       `json:"total_critical_tasks"`
	TaskBreakdown          Breakdown `json:"task_breakdown"`
	Reason                 string    `json:"reason"`
}

// Validate applies the six ordered rules to the session snapshot.
func Validate(s *session.Session, claim Claim, cfg Config) Result {
	breakdown := Breakdown{Total: len(s.Todos)}
	criticalTotal := 0
	criticalCompleted := 0
	pendingHigh := 0

	for _, t := range s.Todos {
		switch t.Status {
		case session.StatusCompleted:
			breakdown.Completed++
		case session.StatusInProgress:
			breakdown.InProgress++
		default:
			breakdown.Pending++
			if t.Priority == session.PriorityHigh {
				pendingHigh++
			}
		}
		if t.Critical() {
			criticalTotal++
			if t.Status == session.StatusCompleted {
				criticalCompleted++
			}
		}
	}

	completion := completionPercentage(breakdown.Completed, breakdown.Total)

	result := Result{
		CompletionPercentage:   completion,
		CriticalTasksCompleted: criticalCompleted,
		TotalCriticalTasks:     criticalTotal,
		TaskBreakdown:          breakdown,
	}

	// Rule 1: critical completeness. Only applies when critical todos
	// exist; zero critical todos pass straight through to rule 2.
	if criticalTotal > 0 && criticalCompleted < criticalTotal {
		result.Reason = fmt.Sprintf(
			"critical todos incomplete: %d/%d completed; every critical todo must reach completed status",
			criticalCompleted, criticalTotal)
		return result
	}

	// Rule 2: overall completion floor.
	if completion < cfg.CompletionThreshold {
		result.Reason = fmt.Sprintf(
			"completion %d%% below required threshold %d%% (%d/%d todos completed)",
			completion, cfg.CompletionThreshold, breakdown.Completed, breakdown.Total)
		return result
	}

	// Rule 3: no pending high-priority work.
	if pendingHigh > 0 {
		result.Reason = fmt.Sprintf("%d high-priority todo(s) still pending", pendingHigh)
		return result
	}

	// Rule 4: no dangling in-progress work.
	if breakdown.InProgress > 0 {
		result.Reason = fmt.Sprintf(
			"%d todo(s) still in_progress; every unit of work must reach a terminal status",
			breakdown.InProgress)
		return result
	}

	// Rule 5: effectiveness floor.
	if s.ReasoningEffectiveness < cfg.EffectivenessFloor {
		result.Reason = fmt.Sprintf(
			"reasoning effectiveness %.2f below floor %.2f",
			s.ReasoningEffectiveness, cfg.EffectivenessFloor)
		return result
	}

	// Rule 6: claim/metric consistency. A success claim cannot contradict
	// the task breakdown.
	if claim.Asserted && claim.Passed && criticalTotal > 0 && completion < 100 {
		result.Reason = fmt.Sprintf(
			"success claim inconsistent with metrics: %d critical todos exist and completion is %d%%",
			criticalTotal, completion)
		return result
	}

	result.IsValid = true
	result.Reason = fmt.Sprintf(
		"verification passed: %d%% complete (%d/%d todos, %d/%d critical), effectiveness %.2f",
		completion, breakdown.Completed, breakdown.Total,
		criticalCompleted, criticalTotal, s.ReasoningEffectiveness)
	return result
}

// completionPercentage rounds completed/total to the nearest integer
// percent. An empty todo list counts as fully complete.
func completionPercentage(completed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
