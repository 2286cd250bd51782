package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalValidDoc = `
llm_providers:
  openai_default:
    type: openai
    model: gpt-4
    api_key_env: OPENAI_API_KEY
agents:
  - name: synthesizer
    role: synthesizer
    llm_provider: openai_default
`

func TestLoad_MissingFileReturnsConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_MinimalDocumentFillsDefaults(t *testing.T) {
	path := writeConfig(t, minimalValidDoc)
	snap, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ReasoningModeDialectical, snap.Executor.Mode)
	assert.Equal(t, 4, snap.Executor.MaxConcurrentAgents)
	assert.Equal(t, 2000, snap.Budget.DefaultBudget)
	assert.Equal(t, 0.5, snap.Gate.Threshold)
}

func TestLoad_DurationStringsParsedFromDefaults(t *testing.T) {
	path := writeConfig(t, minimalValidDoc+`
defaults:
  breaker:
    threshold: 2.5
    cooldown: 90s
  executor:
    mode: direct
    max_concurrent_agents: 8
    agent_timeout: 45s
    group_deadline: 2m
    chain_of_thought_turns: 3
    loops: 3
    broker: local
`)
	snap, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2.5, snap.Breaker.Threshold)
	assert.Equal(t, 90_000_000_000, int(snap.Breaker.Cooldown))
	assert.Equal(t, ReasoningModeDirect, snap.Executor.Mode)
	assert.Equal(t, 8, snap.Executor.MaxConcurrentAgents)
	assert.Equal(t, int64(45), snap.Executor.AgentTimeout.Nanoseconds()/1e9)
	assert.Equal(t, int64(120), snap.Executor.GroupDeadline.Nanoseconds()/1e9)
	assert.Equal(t, 3, snap.Executor.ChainOfThoughtTurns)
	assert.Equal(t, 3, snap.Executor.Loops)
}

func TestLoad_MalformedDurationStringFailsWithLoadError(t *testing.T) {
	path := writeConfig(t, minimalValidDoc+`
defaults:
  breaker:
    cooldown: not-a-duration
`)
	_, err := Load(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoad_EnvVarsExpandedBeforeParsing(t *testing.T) {
	t.Setenv("TEST_MODEL_NAME", "gpt-4-turbo")
	path := writeConfig(t, `
llm_providers:
  openai_default:
    type: openai
    model: ${TEST_MODEL_NAME}
    api_key_env: OPENAI_API_KEY
agents:
  - name: synthesizer
    role: synthesizer
    llm_provider: openai_default
`)
	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-turbo", snap.LLMProviders["openai_default"].Model)
}

func TestLoad_InvalidAgentReferenceFailsValidation(t *testing.T) {
	path := writeConfig(t, `
llm_providers:
  openai_default:
    type: openai
    model: gpt-4
    api_key_env: OPENAI_API_KEY
agents:
  - name: synthesizer
    role: synthesizer
    llm_provider: nonexistent_provider
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoad_EmptyAgentsAndGroupsDefaultToEmptyMapsNotNil(t *testing.T) {
	path := writeConfig(t, `
llm_providers:
  openai_default:
    type: openai
    model: gpt-4
    api_key_env: OPENAI_API_KEY
`)
	snap, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, snap.Agents)
	assert.NotNil(t, snap.AgentGroups)
}

func TestParseOptionalDuration_EmptyStringIsZeroNoError(t *testing.T) {
	d, err := parseOptionalDuration("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), int64(d))
}
