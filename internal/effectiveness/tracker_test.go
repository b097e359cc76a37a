package effectiveness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/phased/internal/session"
)

func TestParseComplexity(t *testing.T) {
	c, ok := ParseComplexity("simple")
	assert.Equal(t, Simple, c)
	assert.True(t, ok)

	c, ok = ParseComplexity("complex")
	assert.Equal(t, Complex, c)
	assert.True(t, ok)

	c, ok = ParseComplexity("herculean")
	assert.Equal(t, Simple, c)
	assert.False(t, ok)
}

func TestUpdateStepsByComplexity(t *testing.T) {
	cfg := DefaultConfig()

	s := session.New("t", "", cfg.Initial)
	assert.InDelta(t, 0.90, Update(s, true, Simple, cfg), 1e-9)
	assert.InDelta(t, 0.80, Update(s, false, Simple, cfg), 1e-9)
	assert.InDelta(t, 0.95, Update(s, true, Complex, cfg), 1e-9)
	assert.InDelta(t, 0.80, Update(s, false, Complex, cfg), 1e-9)
}

func TestUpdateClampsUnderStreaks(t *testing.T) {
	cfg := DefaultConfig()

	s := session.New("up", "", cfg.Initial)
	for range 50 {
		Update(s, true, Complex, cfg)
	}
	assert.Equal(t, cfg.Max, s.ReasoningEffectiveness)

	s = session.New("down", "", cfg.Initial)
	for range 50 {
		Update(s, false, Complex, cfg)
	}
	assert.Equal(t, cfg.Min, s.ReasoningEffectiveness)

	// Recovery from the floor is possible; the clamp loses no more than
	// one step of headroom.
	assert.InDelta(t, cfg.Min+cfg.SimpleStep, Update(s, true, Simple, cfg), 1e-9)
}
