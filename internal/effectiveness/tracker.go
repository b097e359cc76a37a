// Package effectiveness adjusts a session's bounded reasoning score from
// task outcomes. The score is the only channel by which historical
// performance influences future verification (the verifier's
// effectiveness floor), and it never leaves the configured bounds no
// matter how long a success or failure streak runs.
package effectiveness

import "github.com/fyrsmithlabs/phased/internal/session"

// Complexity sizes the score adjustment for one unit of work.
type Complexity string

const (
	Simple  Complexity = "simple"
	Complex Complexity = "complex"
)

// ParseComplexity maps a wire string to a Complexity. Unknown values
// degrade to Simple; ok reports whether the input was recognized.
func ParseComplexity(s string) (c Complexity, ok bool) {
	switch Complexity(s) {
	case Simple:
		return Simple, true
	case Complex:
		return Complex, true
	default:
		return Simple, false
	}
}

// Config bounds the score and sizes the per-outcome steps.
type Config struct {
	Min         float64
	Max         float64
	Initial     float64
	SimpleStep  float64
	ComplexStep float64
}

// DefaultConfig returns the production bounds and steps.
func DefaultConfig() Config {
	return Config{
		Min:         0.3,
		Max:         1.0,
		Initial:     0.8,
		SimpleStep:  0.10,
		ComplexStep: 0.15,
	}
}

// Update applies one completed unit of work to the session score and
// returns the new value. Success moves the score up by the step for the
// unit's complexity, failure moves it down by the same step, and the
// result is clamped to [Min, Max].
func Update(s *session.Session, success bool, c Complexity, cfg Config) float64 {
	step := cfg.SimpleStep
	if c == Complex {
		step = cfg.ComplexStep
	}
	if !success {
		step = -step
	}

	v := s.ReasoningEffectiveness + step
	if v > cfg.Max {
		v = cfg.Max
	}
	if v < cfg.Min {
		v = cfg.Min
	}
	s.ReasoningEffectiveness = v
	return v
}
