package config

import "fmt"

// Validator validates a Snapshot comprehensively, failing fast at the first
// error encountered — grounded on the teacher's Validator.ValidateAll,
// which validates in dependency order (queue before agents, agents before
// chains) so an earlier failure's error message never misattributes a
// downstream symptom to the wrong component.
type Validator struct {
	cfg *Snapshot
}

// NewValidator creates a Validator for cfg.
func NewValidator(cfg *Snapshot) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs a Validator's full ordered check and returns the first
// error encountered, wrapped with the failing component's name.
func Validate(cfg *Snapshot) error {
	return NewValidator(cfg).ValidateAll()
}

// ValidateAll validates, in order: executor settings, gate weights, breaker
// thresholds, budget settings, LLM providers, agents, then agent groups
// (agents must be known before a group can reference them).
func (v *Validator) ValidateAll() error {
	if err := v.validateExecutor(); err != nil {
		return fmt.Errorf("executor validation failed: %w", err)
	}
	if err := v.validateGate(); err != nil {
		return fmt.Errorf("gate validation failed: %w", err)
	}
	if err := v.validateBreaker(); err != nil {
		return fmt.Errorf("breaker validation failed: %w", err)
	}
	if err := v.validateBudget(); err != nil {
		return fmt.Errorf("budget validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}
	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateAgentGroups(); err != nil {
		return fmt.Errorf("agent group validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateExecutor() error {
	e := v.cfg.Executor
	if !e.Mode.IsValid() {
		return NewValidationError("executor", "defaults", "mode", fmt.Errorf("%w: %q", ErrInvalidValue, e.Mode))
	}
	if e.MaxConcurrentAgents < 1 {
		return NewValidationError("executor", "defaults", "max_concurrent_agents", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if e.AgentTimeout <= 0 {
		return NewValidationError("executor", "defaults", "agent_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if e.GroupDeadline <= 0 {
		return NewValidationError("executor", "defaults", "group_deadline", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if e.ChainOfThoughtTurns < 1 {
		return NewValidationError("executor", "defaults", "chain_of_thought_turns", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if e.Loops < 1 {
		return NewValidationError("executor", "defaults", "loops", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if !e.Broker.IsValid() {
		return NewValidationError("executor", "defaults", "broker", fmt.Errorf("%w: %q", ErrInvalidValue, e.Broker))
	}
	return nil
}

func (v *Validator) validateGate() error {
	g := v.cfg.Gate
	for name, w := range map[string]float64{
		"retrieval_overlap_weight": g.RetrievalOverlapWeight,
		"nli_conflict_weight":      g.NLIConflictWeight,
		"complexity_weight":        g.ComplexityWeight,
	} {
		if w < 0 || w > 1 {
			return NewValidationError("gate", "defaults", name, fmt.Errorf("%w: must be between 0 and 1, got %v", ErrInvalidValue, w))
		}
	}
	if g.Threshold < 0 || g.Threshold > 1 {
		return NewValidationError("gate", "defaults", "threshold", fmt.Errorf("%w: must be between 0 and 1, got %v", ErrInvalidValue, g.Threshold))
	}
	return nil
}

func (v *Validator) validateBreaker() error {
	b := v.cfg.Breaker
	if b.Threshold <= 0 {
		return NewValidationError("breaker", "defaults", "threshold", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if b.Cooldown <= 0 {
		return NewValidationError("breaker", "defaults", "cooldown", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateBudget() error {
	b := v.cfg.Budget
	if b.DefaultBudget < 1 {
		return NewValidationError("budget", "defaults", "default_budget", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if b.MarginFraction < 0 || b.MarginFraction > 1 {
		return NewValidationError("budget", "defaults", "margin_fraction", fmt.Errorf("%w: must be between 0 and 1, got %v", ErrInvalidValue, b.MarginFraction))
	}
	return nil
}

func (v *Validator) validateLLMProviders() error {
	for name, p := range v.cfg.LLMProviders {
		if !p.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("%w: %q", ErrInvalidValue, p.Type))
		}
		if p.Model == "" {
			return NewValidationError("llm_provider", name, "model", ErrMissingRequiredField)
		}
		if p.APIKeyEnv == "" {
			return NewValidationError("llm_provider", name, "api_key_env", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *Validator) validateAgents() error {
	seen := make(map[string]bool, len(v.cfg.Agents))
	for _, a := range v.cfg.Agents {
		name := a.Name
		if name == "" {
			return NewValidationError("agent", "", "name", ErrMissingRequiredField)
		}
		if seen[name] {
			return NewValidationError("agent", name, "name", fmt.Errorf("%w: duplicate agent name %q", ErrInvalidValue, name))
		}
		seen[name] = true

		if a.Role == "" {
			return NewValidationError("agent", name, "role", ErrMissingRequiredField)
		}
		if a.LLMProvider == "" {
			return NewValidationError("agent", name, "llm_provider", ErrMissingRequiredField)
		}
		if _, ok := v.cfg.LLMProviders[a.LLMProvider]; !ok {
			return NewValidationError("agent", name, "llm_provider", fmt.Errorf("%w: %q", ErrInvalidReference, a.LLMProvider))
		}
		for tool, weight := range a.Affinity {
			if weight < 0 {
				return NewValidationError("agent", name, "affinity."+tool, fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
			}
		}
	}
	return nil
}

func (v *Validator) validateAgentGroups() error {
	agentNames := make(map[string]bool, len(v.cfg.Agents))
	for _, a := range v.cfg.Agents {
		agentNames[a.Name] = true
	}

	for id, g := range v.cfg.AgentGroups {
		if len(g.Agents) == 0 {
			return NewValidationError("agent_group", id, "agents", ErrMissingRequiredField)
		}
		for _, agentName := range g.Agents {
			if !agentNames[agentName] {
				return NewValidationError("agent_group", id, "agents", fmt.Errorf("%w: unknown agent %q", ErrInvalidReference, agentName))
			}
		}
	}
	return nil
}
