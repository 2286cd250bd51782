// Package config loads and validates the YAML configuration that drives one
// orchestrator deployment: registered agents and coalitions, LLM providers,
// gate/breaker/budget tuning, and executor concurrency limits. Grounded on
// the teacher's pkg/config package: YAML-tagged structs loaded via
// gopkg.in/yaml.v3, environment-variable expansion before parsing, a
// fail-fast ordered Validate pass, and closed-enum IsValid() checks for any
// field with a fixed set of legal values.
package config

import "time"

// AgentConfig describes one registered agent's static configuration — the
// part that does not depend on any particular query. Tools becomes the
// agent's declared tool list. Affinity is validated but not read by the
// executor or the coordinator, which score candidates only by each task's
// own affinity map.
type AgentConfig struct {
	Name         string             `yaml:"name"`
	Role         string             `yaml:"role"` // synthesizer, contrarian, fact_checker, researcher, planner, critic, summarizer, moderator, domain_specialist, user
	Tools        []string           `yaml:"tools"`
	Affinity     map[string]float64 `yaml:"affinity"`
	LLMProvider  string             `yaml:"llm_provider"`
	SystemPrompt string             `yaml:"system_prompt,omitempty"`
}

// GroupConfig names a coalition of agents that may broadcast to one
// another during a cycle.
type GroupConfig struct {
	ID     string   `yaml:"id"`
	Agents []string `yaml:"agents"`
}

// LLMProviderConfig describes one configured LLM backend.
type LLMProviderConfig struct {
	Type      LLMProviderType `yaml:"type"`
	Model     string          `yaml:"model"`
	APIKeyEnv string          `yaml:"api_key_env"`
	BaseURL   string          `yaml:"base_url,omitempty"`
}

// GateConfig tunes the AUTO-mode scout escalation gate (spec §4.7).
type GateConfig struct {
	RetrievalOverlapWeight float64 `yaml:"retrieval_overlap_weight"`
	NLIConflictWeight      float64 `yaml:"nli_conflict_weight"`
	ComplexityWeight       float64 `yaml:"complexity_weight"`
	Threshold              float64 `yaml:"threshold"`
}

// BreakerConfig tunes the per-agent circuit breaker (spec §4.5).
type BreakerConfig struct {
	Threshold float64       `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// BudgetConfig tunes the adaptive token budget manager (spec §4.6).
type BudgetConfig struct {
	DefaultBudget  int     `yaml:"default_budget"`
	MarginFraction float64 `yaml:"margin_fraction"`
}

// ExecutorConfig tunes concurrency and timeouts for task dispatch (spec §4.4).
type ExecutorConfig struct {
	Mode                ReasoningMode   `yaml:"mode"`
	Loops               int             `yaml:"loops"` // cycles run in chain_of_thought/dialectical modes
	MaxConcurrentAgents int             `yaml:"max_concurrent_agents"`
	AgentTimeout        time.Duration   `yaml:"agent_timeout"`
	GroupDeadline       time.Duration   `yaml:"group_deadline"`
	ChainOfThoughtTurns int             `yaml:"chain_of_thought_turns"`
	Broker              BrokerTransport `yaml:"broker"`
}

// Defaults are applied wherever a YAML document omits a field that has a
// system-wide default.
type Defaults struct {
	Gate     GateConfig     `yaml:"gate"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Budget   BudgetConfig   `yaml:"budget"`
	Executor ExecutorConfig `yaml:"executor"`
}

// rawBreakerConfig and rawExecutorConfig mirror their typed counterparts but
// carry durations as plain strings ("90s", "5m"), parsed explicitly in
// loader.go — the same string-then-time.ParseDuration approach the
// teacher's loader.go uses for CacheTTL, rather than leaning on yaml
// decoding directly into time.Duration.
type rawBreakerConfig struct {
	Threshold float64 `yaml:"threshold"`
	Cooldown  string  `yaml:"cooldown"`
}

type rawExecutorConfig struct {
	Mode                ReasoningMode   `yaml:"mode"`
	Loops               int             `yaml:"loops"`
	MaxConcurrentAgents int             `yaml:"max_concurrent_agents"`
	AgentTimeout        string          `yaml:"agent_timeout"`
	GroupDeadline       string          `yaml:"group_deadline"`
	ChainOfThoughtTurns int             `yaml:"chain_of_thought_turns"`
	Broker              BrokerTransport `yaml:"broker"`
}

type rawDefaults struct {
	Gate     GateConfig        `yaml:"gate"`
	Breaker  rawBreakerConfig  `yaml:"breaker"`
	Budget   BudgetConfig      `yaml:"budget"`
	Executor rawExecutorConfig `yaml:"executor"`
}

// YAMLDocument mirrors the full orchestrator.yaml file shape. Agents is an
// ordered list, not a map keyed by name: the Primus rotation (spec §3,
// §4.4.1) advances over this list's order between queries, so the order
// written in the YAML file is itself configuration.
type YAMLDocument struct {
	Agents       []AgentConfig                `yaml:"agents"`
	AgentGroups  map[string]GroupConfig       `yaml:"agent_groups"`
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
	Defaults     *rawDefaults                 `yaml:"defaults"`
}

// Snapshot is the validated, default-filled configuration the orchestration
// core reads. It is immutable after Load returns; callers that need to vary
// per-query values (e.g. an experiment override) build a new Snapshot
// rather than mutate this one.
type Snapshot struct {
	Agents       []AgentConfig
	AgentGroups  map[string]GroupConfig
	LLMProviders map[string]LLMProviderConfig
	Gate         GateConfig
	Breaker      BreakerConfig
	Budget       BudgetConfig
	Executor     ExecutorConfig
}

// GetAgent retrieves an agent's configuration by name. Agents is a short,
// operator-curated roster (tens of entries at most), so a linear scan
// avoids maintaining a separate by-name index just for this lookup.
func (s *Snapshot) GetAgent(name string) (AgentConfig, error) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, nil
		}
	}
	return AgentConfig{}, NewValidationError("agent", name, "", ErrAgentNotFound)
}

// GetGroup retrieves an agent group's configuration by id.
func (s *Snapshot) GetGroup(id string) (GroupConfig, error) {
	g, ok := s.AgentGroups[id]
	if !ok {
		return GroupConfig{}, NewValidationError("agent_group", id, "", ErrGroupNotFound)
	}
	return g, nil
}

// GetLLMProvider retrieves an LLM provider's configuration by name.
func (s *Snapshot) GetLLMProvider(name string) (LLMProviderConfig, error) {
	p, ok := s.LLMProviders[name]
	if !ok {
		return LLMProviderConfig{}, NewValidationError("llm_provider", name, "", ErrLLMProviderNotFound)
	}
	return p, nil
}
