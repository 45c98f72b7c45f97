package taskstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_AllowedPairs(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{Received, Routed},
		{Routed, Transcribing},
		{Routed, Refining},
		{Transcribing, Refining},
		{Refining, ToolQueued},
		{ToolQueued, ToolRunning},
		{ToolRunning, Summarizing},
		{Summarizing, TTSGenerating},
		{Summarizing, Delivered},
		{TTSGenerating, Delivered},
	}
	for _, c := range cases {
		require.NoError(t, ValidateTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidateTransition_AnyNonTerminalToFailed(t *testing.T) {
	for _, s := range All() {
		if IsTerminal(s) {
			continue
		}
		assert.NoError(t, ValidateTransition(s, Failed))
	}
}

func TestValidateTransition_NoOpAccepted(t *testing.T) {
	for _, s := range All() {
		assert.NoError(t, ValidateTransition(s, s))
		assert.True(t, IsNoOp(s, s))
	}
}

func TestValidateTransition_TerminalStatesRejectEverything(t *testing.T) {
	err := ValidateTransition(Delivered, Refining)
	require.Error(t, err)
	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))

	err = ValidateTransition(Failed, Routed)
	require.Error(t, err)
}

func TestValidateTransition_UnlistedPairRejected(t *testing.T) {
	err := ValidateTransition(Received, Summarizing)
	require.Error(t, err)
	err = ValidateTransition(Routed, Delivered)
	require.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Delivered))
	assert.True(t, IsTerminal(Failed))
	assert.False(t, IsTerminal(Received))
	assert.False(t, IsTerminal(ToolRunning))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Received))
	assert.False(t, Valid(Status("BOGUS")))
}
