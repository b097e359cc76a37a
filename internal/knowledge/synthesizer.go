// Package knowledge defines the injected knowledge-synthesis capability.
//
// Fetching and synthesis are external collaborators: the state machine
// only records the returned content, confidence, and contradictions into
// the session payload during KNOWLEDGE. Implementations live outside the
// core and may do network I/O; the core never does.
package knowledge

import "context"

// Synthesis is the collaborator's condensed answer for a query set.
type Synthesis struct {
	Content        string   `json:"content"`
	Confidence     float64  `json:"confidence"`
	Contradictions []string `json:"contradictions,omitempty"`
}

// Synthesizer fetches sources for the queries and synthesizes them with a
// confidence score.
type Synthesizer interface {
	FetchAndSynthesize(ctx context.Context, queries []string) (*Synthesis, error)
}

// NullSynthesizer is the default no-op capability: no content, zero
// confidence. Sessions proceed without gathered knowledge.
type NullSynthesizer struct{}

func (NullSynthesizer) FetchAndSynthesize(context.Context, []string) (*Synthesis, error) {
	return &Synthesis{}, nil
}
