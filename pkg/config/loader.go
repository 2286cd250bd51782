package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads orchestrator.yaml from path, expands environment variables,
// parses it, fills in defaults, and validates the result — the same
// load-expand-parse-default-validate pipeline the teacher's Initialize
// follows, collapsed to a single file since this module has no chain/MCP
// split to merge across multiple YAML documents.
func Load(path string) (*Snapshot, error) {
	log := slog.With("config_path", path)
	log.Info("loading configuration")

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var doc YAMLDocument
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	defaults := Defaults{}
	if doc.Defaults != nil {
		converted, err := convertRawDefaults(*doc.Defaults)
		if err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		defaults = converted
	}
	applyDefaults(&defaults)

	snapshot := &Snapshot{
		Agents:       doc.Agents,
		AgentGroups:  doc.AgentGroups,
		LLMProviders: doc.LLMProviders,
		Gate:         defaults.Gate,
		Breaker:      defaults.Breaker,
		Budget:       defaults.Budget,
		Executor:     defaults.Executor,
	}
	if snapshot.Agents == nil {
		snapshot.Agents = []AgentConfig{}
	}
	if snapshot.AgentGroups == nil {
		snapshot.AgentGroups = map[string]GroupConfig{}
	}
	if snapshot.LLMProviders == nil {
		snapshot.LLMProviders = map[string]LLMProviderConfig{}
	}

	if err := Validate(snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("configuration loaded",
		"agents", len(snapshot.Agents),
		"agent_groups", len(snapshot.AgentGroups),
		"llm_providers", len(snapshot.LLMProviders))

	return snapshot, nil
}

// convertRawDefaults parses the string-form durations in raw into the typed
// Defaults the rest of the package works with, leaving zero-valued (empty
// string) durations as zero so applyDefaults can still fill them in.
func convertRawDefaults(raw rawDefaults) (Defaults, error) {
	cooldown, err := parseOptionalDuration(raw.Breaker.Cooldown)
	if err != nil {
		return Defaults{}, fmt.Errorf("breaker.cooldown: %w", err)
	}
	agentTimeout, err := parseOptionalDuration(raw.Executor.AgentTimeout)
	if err != nil {
		return Defaults{}, fmt.Errorf("executor.agent_timeout: %w", err)
	}
	groupDeadline, err := parseOptionalDuration(raw.Executor.GroupDeadline)
	if err != nil {
		return Defaults{}, fmt.Errorf("executor.group_deadline: %w", err)
	}

	return Defaults{
		Gate:   raw.Gate,
		Budget: raw.Budget,
		Breaker: BreakerConfig{
			Threshold: raw.Breaker.Threshold,
			Cooldown:  cooldown,
		},
		Executor: ExecutorConfig{
			Mode:                raw.Executor.Mode,
			Loops:               raw.Executor.Loops,
			MaxConcurrentAgents: raw.Executor.MaxConcurrentAgents,
			AgentTimeout:        agentTimeout,
			GroupDeadline:       groupDeadline,
			ChainOfThoughtTurns: raw.Executor.ChainOfThoughtTurns,
			Broker:              raw.Executor.Broker,
		},
	}, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
