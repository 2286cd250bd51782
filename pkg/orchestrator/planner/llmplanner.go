package planner

import (
	"context"
	"fmt"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// LLMPlanner is a Planner backed by a ports.LLMAdapter: it asks the model
// for a JSON task plan and hands the raw text back to Run for parsing and
// normalization. Grounded on the teacher's prompt-then-parse pattern used
// throughout pkg/agent/controller for structured LLM output.
type LLMPlanner struct {
	llm          ports.LLMAdapter
	model        string
	tokenBudget  int
	promptPrefix string
}

// NewLLMPlanner constructs an LLMPlanner. promptPrefix, if non-empty,
// replaces the default planning instruction (useful for domain-specific
// deployments that want a custom planning frame).
func NewLLMPlanner(llm ports.LLMAdapter, model string, tokenBudget int, promptPrefix string) *LLMPlanner {
	if promptPrefix == "" {
		promptPrefix = defaultPlanningPrompt
	}
	return &LLMPlanner{llm: llm, model: model, tokenBudget: tokenBudget, promptPrefix: promptPrefix}
}

const defaultPlanningPrompt = `Break the following query into a JSON task plan. Respond with JSON only, ` +
	`shaped as {"tasks": [{"id": "...", "objective": "...", "tools": ["..."], ` +
	`"depends_on": ["..."], "exit_criteria": "...", "affinity": {"agent_name": 0.0}}]}.

Query: `

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, queryText string, _ state.Snapshot) (RawPlanResponse, error) {
	prompt := p.promptPrefix + queryText

	result, err := p.llm.Generate(ctx, prompt, p.model, p.tokenBudget)
	if err != nil {
		return RawPlanResponse{}, fmt.Errorf("planner: generate: %w", err)
	}

	return RawPlanResponse{Prompt: prompt, Raw: result.Text}, nil
}
