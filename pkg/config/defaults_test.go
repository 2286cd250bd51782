package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyDefaultsGetsEverySystemWideDefault(t *testing.T) {
	d := Defaults{}
	applyDefaults(&d)

	want := defaultDefaults()
	assert.Equal(t, want, d)
}

func TestApplyDefaults_PartialOverridePreservesUntouchedFields(t *testing.T) {
	d := Defaults{Gate: GateConfig{RetrievalOverlapWeight: 0.3, NLIConflictWeight: 0.45, ComplexityWeight: 0.25, Threshold: 0.9}}
	applyDefaults(&d)

	assert.Equal(t, 0.9, d.Gate.Threshold, "explicit override survives when at least one weight is also set")
	assert.Equal(t, defaultDefaults().Breaker, d.Breaker, "untouched section falls back to system default")
	assert.Equal(t, defaultDefaults().Executor, d.Executor)
}

func TestApplyDefaults_ExplicitZeroValueIsIndistinguishableFromOmitted(t *testing.T) {
	// documents a known limitation: a YAML author who explicitly sets
	// max_concurrent_agents: 0 gets the default (4) rather than a
	// validation error, since applyDefaults can't tell "omitted" from
	// "explicitly zero" once yaml.Unmarshal has already run.
	d := Defaults{Executor: ExecutorConfig{MaxConcurrentAgents: 0}}
	applyDefaults(&d)
	assert.Equal(t, 4, d.Executor.MaxConcurrentAgents)
}

func TestApplyDefaults_ThresholdAloneWithoutAnyWeightResetsWholeGateSection(t *testing.T) {
	// same quirk as above, specific to gate: setting only threshold with
	// every weight left at its zero value can't be distinguished from an
	// omitted gate section, so the whole section (including the intended
	// threshold override) falls back to defaultDefaults().
	d := Defaults{Gate: GateConfig{Threshold: 0.9}}
	applyDefaults(&d)
	assert.Equal(t, defaultDefaults().Gate.Threshold, d.Gate.Threshold)
}

func TestApplyDefaults_ZeroLoopsFallsBackToOne(t *testing.T) {
	d := Defaults{Executor: ExecutorConfig{Loops: 0}}
	applyDefaults(&d)
	assert.Equal(t, 1, d.Executor.Loops)
}

func TestApplyDefaults_NonZeroExecutorTimeoutsSurvive(t *testing.T) {
	d := Defaults{Executor: ExecutorConfig{AgentTimeout: 45 * time.Second}}
	applyDefaults(&d)
	assert.Equal(t, 45*time.Second, d.Executor.AgentTimeout)
	assert.Equal(t, defaultDefaults().Executor.GroupDeadline, d.Executor.GroupDeadline)
}
