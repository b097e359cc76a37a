// Package metaprompt parses the structured 4-field instruction used to
// delegate a todo to an independent sub-agent.
//
// The wire shape is four bracketed key:value segments in one string:
//
//	(ROLE: coder) (CONTEXT: auth_module) (PROMPT: implement JWT flow) (OUTPUT: code)
//
// All four fields are required and non-empty, and the role must belong to
// the fixed role set. Any violation fails with a descriptive
// *MalformedInstructionError and no partial extraction: the caller treats
// the todo as direct work instead of crashing the transition.
package metaprompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/phased/internal/roles"
)

// MetaPrompt is the parsed 4-field delegation instruction.
type MetaPrompt struct {
	Role           roles.Role `json:"role"`
	Context        string     `json:"context"`
	Directive      string     `json:"directive"`
	ExpectedOutput string     `json:"expected_output"`
}

// MalformedInstructionError reports why an instruction failed to parse.
type MalformedInstructionError struct {
	Field  string
	Reason string
}

func (e *MalformedInstructionError) Error() string {
	return fmt.Sprintf("malformed meta-instruction: %s: %s", e.Field, e.Reason)
}

// segmentPattern extracts one "(KEY: value)" segment. Values run to the
// closing parenthesis, so nested parentheses are not supported in fields.
var segmentPattern = regexp.MustCompile(`\(\s*(ROLE|CONTEXT|PROMPT|OUTPUT)\s*:\s*([^)]*)\)`)

// Parse validates and extracts a meta-instruction.
func Parse(input string) (*MetaPrompt, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &MalformedInstructionError{Field: "instruction", Reason: "empty input"}
	}

	fields := make(map[string]string, 4)
	for _, m := range segmentPattern.FindAllStringSubmatch(input, -1) {
		key := m[1]
		value := strings.TrimSpace(m[2])
		if _, dup := fields[key]; dup {
			return nil, &MalformedInstructionError{
				Field:  strings.ToLower(key),
				Reason: "duplicate segment",
			}
		}
		fields[key] = value
	}

	for _, key := range []string{"ROLE", "CONTEXT", "PROMPT", "OUTPUT"} {
		value, ok := fields[key]
		if !ok {
			return nil, &MalformedInstructionError{
				Field:  strings.ToLower(key),
				Reason: "missing segment",
			}
		}
		if value == "" {
			return nil, &MalformedInstructionError{
				Field:  strings.ToLower(key),
				Reason: "empty value",
			}
		}
	}

	role, err := roles.Parse(fields["ROLE"])
	if err != nil {
		return nil, &MalformedInstructionError{
			Field:  "role",
			Reason: fmt.Sprintf("%q is not in the role set", fields["ROLE"]),
		}
	}

	return &MetaPrompt{
		Role:           role,
		Context:        fields["CONTEXT"],
		Directive:      fields["PROMPT"],
		ExpectedOutput: fields["OUTPUT"],
	}, nil
}

// Format renders a MetaPrompt back to its wire shape.
func (m *MetaPrompt) Format() string {
	return fmt.Sprintf("(ROLE: %s) (CONTEXT: %s) (PROMPT: %s) (OUTPUT: %s)",
		m.Role, m.Context, m.Directive, m.ExpectedOutput)
}
