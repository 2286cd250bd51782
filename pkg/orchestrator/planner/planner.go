// Package planner produces a TaskGraph for a query by invoking an LLM-backed
// Planner capability and normalizing its raw response through
// state.QueryState.SetTaskGraph. Grounded on the teacher's ChainConfig/
// StageConfig parsing (pkg/config/chain.go) for the coercion-and-default
// pattern, and on a DAG scheduler's in-degree bookkeeping
// (other_examples/.../dag_scheduler.go) for cycle-aware normalization.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// Planner is the capability that turns a query into a raw plan. LLMPlanner
// in this package is the LLM-backed implementation; Planner is the narrow
// interface the orchestration core depends on.
type Planner interface {
	Plan(ctx context.Context, queryText string, snapshot state.Snapshot) (RawPlanResponse, error)
}

// RawPlanResponse is what a Planner returns: the raw JSON text produced by
// the planning call plus the prompt that produced it, so the caller can
// record a full audit trail via QueryState.RecordPlannerTrace.
type RawPlanResponse struct {
	Prompt string
	Raw    string
}

// llmTaskNode mirrors the JSON shape an LLM planner is expected to emit.
// Tools and DependsOn are json.RawMessage so both a bare string and a list
// decode without failing; parseRawPlan then turns a bare string into a
// one-element list — the scalar-vs-list coercion named in spec §4.2 rule 1.
type llmTaskNode struct {
	ID           string             `json:"id"`
	Objective    string             `json:"objective"`
	Tools        json.RawMessage    `json:"tools"`
	DependsOn    json.RawMessage    `json:"depends_on"`
	ExitCriteria string             `json:"exit_criteria"`
	Affinity     map[string]float64 `json:"affinity"`
	Explanation  string             `json:"explanation"`
}

type llmPlan struct {
	Tasks []llmTaskNode `json:"tasks"`
}

// Run invokes p, parses its raw response into a state.RawPlan, normalizes it
// via qs.SetTaskGraph, and records the full trace on qs. Parse failures
// (malformed JSON) are treated the same as an empty plan: SetTaskGraph's
// fallback single-root-task path takes over and the parse error is recorded
// as a warning in the trace.
func Run(ctx context.Context, p Planner, qs *state.QueryState) (*state.TaskGraph, error) {
	snapshot := qs.Snapshot()

	resp, err := p.Plan(ctx, qs.QueryText, snapshot)
	if err != nil {
		return nil, fmt.Errorf("planner: plan: %w", err)
	}

	raw, parseWarn := parseRawPlan(resp.Raw)

	graph := qs.SetTaskGraph(raw)

	warnings := []string(nil)
	if parseWarn != "" {
		warnings = append(warnings, parseWarn)
	}
	qs.RecordPlannerTrace(resp.Prompt, resp.Raw, graph, warnings)

	return graph, nil
}

// parseRawPlan decodes an LLM planner's raw JSON text into a state.RawPlan.
// A decode failure yields an empty plan (triggering the fallback path in
// SetTaskGraph) and a warning describing the failure, rather than an error —
// a malformed plan is a recoverable planning-quality issue, not a critical
// orchestration failure (spec §6 error taxonomy).
func parseRawPlan(raw string) (state.RawPlan, string) {
	var lp llmPlan
	if err := json.Unmarshal([]byte(raw), &lp); err != nil {
		return state.RawPlan{}, "failed to parse planner output: " + err.Error()
	}

	out := state.RawPlan{Tasks: make([]state.RawTaskNode, 0, len(lp.Tasks))}
	for _, t := range lp.Tasks {
		node := state.RawTaskNode{
			ID:           t.ID,
			Objective:    t.Objective,
			ExitCriteria: t.ExitCriteria,
			Affinity:     t.Affinity,
			Explanation:  t.Explanation,
		}
		node.Tools, node.ToolsScalar = decodeStringOrList(t.Tools)
		deps, depScalar := decodeStringOrList(t.DependsOn)
		if len(deps) == 0 && depScalar != "" {
			deps = []string{depScalar}
		}
		node.DependsOn = deps
		out.Tasks = append(out.Tasks, node)
	}
	return out, ""
}

// decodeStringOrList accepts either a JSON array of strings or a bare JSON
// string, returning the parsed list (if it was already a list) or the
// scalar value as the second return (for the caller to coerce).
func decodeStringOrList(raw json.RawMessage) ([]string, string) {
	if len(raw) == 0 {
		return nil, ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, ""
	}
	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return nil, scalar
	}
	return nil, ""
}
