package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

func TestLLMPlanner_Plan_UsesDefaultPromptWhenNoneGiven(t *testing.T) {
	p := NewLLMPlanner(ports.StubLLMAdapter{Response: `{"tasks":[]}`}, "stub", 500, "")

	resp, err := p.Plan(context.Background(), "what is the capital of France?", state.Snapshot{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Prompt, defaultPlanningPrompt))
	assert.Contains(t, resp.Prompt, "what is the capital of France?")
	assert.Equal(t, `{"tasks":[]}`, resp.Raw)
}

func TestLLMPlanner_Plan_CustomPromptPrefixOverridesDefault(t *testing.T) {
	p := NewLLMPlanner(ports.StubLLMAdapter{}, "stub", 500, "Custom frame: ")

	resp, err := p.Plan(context.Background(), "query text", state.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, "Custom frame: query text", resp.Prompt)
}

type erroringLLM struct{}

func (erroringLLM) Generate(context.Context, string, string, int) (ports.GenerateResult, error) {
	return ports.GenerateResult{}, assert.AnError
}

func TestLLMPlanner_Plan_PropagatesAdapterError(t *testing.T) {
	p := NewLLMPlanner(erroringLLM{}, "stub", 500, "")
	_, err := p.Plan(context.Background(), "q", state.Snapshot{})
	assert.Error(t, err)
}
