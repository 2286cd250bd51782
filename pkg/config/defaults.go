package config

import "time"

// defaultDefaults returns the system-wide defaults applied to any
// orchestrator.yaml that omits the `defaults:` section entirely, or omits
// individual fields within it.
func defaultDefaults() Defaults {
	return Defaults{
		Gate: GateConfig{
			RetrievalOverlapWeight: 0.3,
			NLIConflictWeight:      0.45,
			ComplexityWeight:       0.25,
			Threshold:              0.5,
		},
		Breaker: BreakerConfig{
			Threshold: 3.0,
			Cooldown:  time.Minute,
		},
		Budget: BudgetConfig{
			DefaultBudget:  2000,
			MarginFraction: 0.5,
		},
		Executor: ExecutorConfig{
			Mode:                ReasoningModeDialectical,
			Loops:               1,
			MaxConcurrentAgents: 4,
			AgentTimeout:        90 * time.Second,
			GroupDeadline:       5 * time.Minute,
			ChainOfThoughtTurns: 2,
			Broker:              BrokerTransportLocal,
		},
	}
}

// applyDefaults fills any zero-valued field of d with the corresponding
// defaultDefaults() value. A YAML document that only overrides, say,
// gate.threshold still gets every other default untouched.
func applyDefaults(d *Defaults) {
	def := defaultDefaults()

	if d.Gate.RetrievalOverlapWeight == 0 && d.Gate.NLIConflictWeight == 0 && d.Gate.ComplexityWeight == 0 {
		d.Gate = def.Gate
	}
	if d.Gate.Threshold == 0 {
		d.Gate.Threshold = def.Gate.Threshold
	}
	if d.Breaker.Threshold == 0 {
		d.Breaker.Threshold = def.Breaker.Threshold
	}
	if d.Breaker.Cooldown == 0 {
		d.Breaker.Cooldown = def.Breaker.Cooldown
	}
	if d.Budget.DefaultBudget == 0 {
		d.Budget.DefaultBudget = def.Budget.DefaultBudget
	}
	if d.Budget.MarginFraction == 0 {
		d.Budget.MarginFraction = def.Budget.MarginFraction
	}
	if d.Executor.Mode == "" {
		d.Executor.Mode = def.Executor.Mode
	}
	if d.Executor.MaxConcurrentAgents == 0 {
		d.Executor.MaxConcurrentAgents = def.Executor.MaxConcurrentAgents
	}
	if d.Executor.AgentTimeout == 0 {
		d.Executor.AgentTimeout = def.Executor.AgentTimeout
	}
	if d.Executor.GroupDeadline == 0 {
		d.Executor.GroupDeadline = def.Executor.GroupDeadline
	}
	if d.Executor.ChainOfThoughtTurns == 0 {
		d.Executor.ChainOfThoughtTurns = def.Executor.ChainOfThoughtTurns
	}
	if d.Executor.Loops == 0 {
		d.Executor.Loops = def.Executor.Loops
	}
	if d.Executor.Broker == "" {
		d.Executor.Broker = def.Executor.Broker
	}
}
