package metaprompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/phased/internal/roles"
)

func TestParseWellFormed(t *testing.T) {
	mp, err := Parse("(ROLE: coder) (CONTEXT: auth_module) (PROMPT: implement JWT validation) (OUTPUT: production_code)")
	require.NoError(t, err)

	assert.Equal(t, roles.Coder, mp.Role)
	assert.Equal(t, "auth_module", mp.Context)
	assert.Equal(t, "implement JWT validation", mp.Directive)
	assert.Equal(t, "production_code", mp.ExpectedOutput)
}

func TestParseToleratesSpacingAndOrder(t *testing.T) {
	mp, err := Parse("(OUTPUT: report)(ROLE:critic)  ( CONTEXT : billing )\n(PROMPT: audit the invoices)")
	require.NoError(t, err)

	assert.Equal(t, roles.Critic, mp.Role)
	assert.Equal(t, "billing", mp.Context)
	assert.Equal(t, "audit the invoices", mp.Directive)
	assert.Equal(t, "report", mp.ExpectedOutput)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"empty input", "   ", "instruction"},
		{"missing output", "(ROLE: coder) (CONTEXT: x) (PROMPT: y)", "output"},
		{"missing role", "(CONTEXT: x) (PROMPT: y) (OUTPUT: z)", "role"},
		{"empty value", "(ROLE: coder) (CONTEXT: ) (PROMPT: y) (OUTPUT: z)", "context"},
		{"unknown role", "(ROLE: wizard) (CONTEXT: x) (PROMPT: y) (OUTPUT: z)", "role"},
		{"duplicate segment", "(ROLE: coder) (ROLE: critic) (CONTEXT: x) (PROMPT: y) (OUTPUT: z)", "role"},
		{"free text", "just do the thing", "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp, err := Parse(tt.input)
			assert.Nil(t, mp)

			var malformed *MalformedInstructionError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := "(ROLE: ui_architect) (CONTEXT: dashboard) (PROMPT: lay out the grid) (OUTPUT: wireframe)"
	mp, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, in, mp.Format())
}
