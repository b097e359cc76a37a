// Package roles maps a free-text objective to one role from a fixed,
// closed set. Classification is a deterministic keyword heuristic: the
// same objective always yields the same role, independent of call order
// or any external state.
package roles

import (
	"fmt"
	"strings"
)

// Role selects phase behavior for a session.
type Role string

const (
	Planner       Role = "planner"
	Analyzer      Role = "analyzer"
	Coder         Role = "coder"
	Critic        Role = "critic"
	Researcher    Role = "researcher"
	Synthesizer   Role = "synthesizer"
	UIArchitect   Role = "ui_architect"
	UIImplementer Role = "ui_implementer"
	UIRefiner     Role = "ui_refiner"
)

// DefaultRole is the general-purpose fallback when no heuristic matches.
const DefaultRole = Researcher

// priority is the fixed tie-break ordering: when two roles score equally,
// the earlier one wins. It also fixes classification iteration order.
var priority = []Role{
	Planner,
	Analyzer,
	Coder,
	Critic,
	Researcher,
	Synthesizer,
	UIArchitect,
	UIImplementer,
	UIRefiner,
}

// All returns the closed role set in priority order.
func All() []Role {
	out := make([]Role, len(priority))
	copy(out, priority)
	return out
}

// Valid reports whether r belongs to the fixed set.
func (r Role) Valid() bool {
	for _, p := range priority {
		if p == r {
			return true
		}
	}
	return false
}

// Parse converts a wire string to a Role.
func Parse(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// keywords scores objectives per role. Multi-word entries match as
// phrases; specific phrases are listed before generic words so UI
// variants can outscore the generic coder keywords.
var keywords = map[Role][]string{
	Planner: {
		"plan", "strategy", "roadmap", "milestone", "organize",
		"schedule", "break down", "prioritize", "coordinate",
	},
	Analyzer: {
		"analyze", "analyse", "analysis", "metrics", "statistics",
		"pattern", "trend", "measure", "profile", "benchmark",
	},
	Coder: {
		"implement", "code", "build", "program", "develop", "fix",
		"debug", "refactor", "api", "function", "script", "endpoint",
	},
	Critic: {
		"review", "critique", "evaluate", "assess", "audit",
		"security", "vulnerability", "quality", "inspect",
	},
	Researcher: {
		"research", "investigate", "find", "gather", "explore",
		"discover", "documentation", "sources", "compare options",
	},
	Synthesizer: {
		"synthesize", "synthesis", "combine", "merge", "integrate",
		"consolidate", "summarize", "distill", "unify",
	},
	UIArchitect: {
		"design system", "component hierarchy", "wireframe",
		"information architecture", "ui architecture", "layout design",
	},
	UIImplementer: {
		"ui component", "frontend", "front-end", "css", "responsive",
		"react component", "markup", "stylesheet",
	},
	UIRefiner: {
		"polish", "refine the ui", "accessibility", "animation",
		"visual tweak", "micro-interaction", "usability pass",
	},
}

// Classify maps an objective to exactly one role. Scoring counts keyword
// hits over the lowercased objective; ties break by the fixed priority
// order. An objective matching nothing falls back to DefaultRole — the
// classifier never fails.
func Classify(objective string) Role {
	text := strings.ToLower(objective)
	if strings.TrimSpace(text) == "" {
		return DefaultRole
	}

	best := DefaultRole
	bestScore := 0
	for _, role := range priority {
		score := 0
		for _, kw := range keywords[role] {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = role
			bestScore = score
		}
	}
	return best
}
