package agentproto

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// Role names one of the ten dialectical participant archetypes named in
// spec §5. Each role maps to a default claim type and prompt frame;
// everything else about how an LLMAgent runs is identical across roles.
type Role string

const (
	RoleSynthesizer     Role = "synthesizer"
	RoleContrarian      Role = "contrarian"
	RoleFactChecker     Role = "fact_checker"
	RoleResearcher      Role = "researcher"
	RolePlanner         Role = "planner"
	RoleCritic          Role = "critic"
	RoleSummarizer      Role = "summarizer"
	RoleModerator       Role = "moderator"
	RoleDomainSpecialist Role = "domain_specialist"
	RoleUser            Role = "user"
)

// claimTypeForRole maps a role to the claim type it produces by default —
// a role may still produce other claim types (a Contrarian issuing a
// diagnostic claim on internal failure, for instance), but this is the type
// LLMAgent.Execute gives the claim it builds.
var claimTypeForRole = map[Role]state.ClaimType{
	RoleSynthesizer:      state.ClaimSynthesis,
	RoleContrarian:       state.ClaimAntithesis,
	RoleFactChecker:      state.ClaimVerification,
	RoleResearcher:       state.ClaimResearchFindings,
	RolePlanner:          state.ClaimResearchPlan,
	RoleCritic:           state.ClaimCritique,
	RoleSummarizer:       state.ClaimSummary,
	RoleModerator:        state.ClaimModeration,
	RoleDomainSpecialist: state.ClaimDomainAnalysis,
	RoleUser:             state.ClaimUserFeedback,
}

// promptFrameForRole is the instruction prefix prepended to a task's
// objective before sending it to the LLM adapter — a minimal prompt
// template per role, matching the teacher's PromptBuilder's per-agent-type
// framing but without that package's alert/runbook-specific sections.
var promptFrameForRole = map[Role]string{
	RoleSynthesizer:      "Synthesize the following claims into a single coherent answer.",
	RoleContrarian:       "Challenge the thesis below. Identify weaknesses, counter-evidence, and unstated assumptions.",
	RoleFactChecker:      "Verify the factual claims below against the evidence provided. Flag unsupported assertions.",
	RoleResearcher:       "Research the objective below and report findings with citations.",
	RolePlanner:          "Produce a task plan for the objective below.",
	RoleCritic:           "Critique the reasoning below for logical soundness.",
	RoleSummarizer:       "Summarize the claims below concisely.",
	RoleModerator:        "Moderate the debate below: identify points of agreement and unresolved conflict.",
	RoleDomainSpecialist: "Analyze the objective below from your declared domain's perspective.",
	RoleUser:             "Incorporate the following user feedback into the discussion.",
}

// LLMAgent is a generic dialectical participant backed by an LLMAdapter. It
// implements Agent for any Role: the role only changes the prompt frame and
// the default output claim type, the same way the teacher's BaseAgent
// delegates role-specific behavior to an interchangeable Controller while
// keeping one common Execute shell (pkg/agent/base_agent.go).
type LLMAgent struct {
	name          string
	role          Role
	tools         []string
	domain        string // restricts CanExecute for RoleDomainSpecialist; empty means unrestricted
	llm           ports.LLMAdapter
	model         string
	defaultBudget int
}

// NewLLMAgent constructs an LLMAgent. domain is only consulted for
// RoleDomainSpecialist; every other role ignores it.
func NewLLMAgent(name string, role Role, tools []string, domain string, llm ports.LLMAdapter, model string, defaultBudget int) *LLMAgent {
	return &LLMAgent{
		name:          name,
		role:          role,
		tools:         tools,
		domain:        domain,
		llm:           llm,
		model:         model,
		defaultBudget: defaultBudget,
	}
}

// Name returns the agent's stable identifier.
func (a *LLMAgent) Name() string { return a.name }

// DeclaredTools returns the tools this agent may invoke.
func (a *LLMAgent) DeclaredTools() []string { return a.tools }

// CanExecute reports whether this agent is a valid assignee for task. A
// domain specialist declines any task whose objective doesn't mention its
// declared domain; every other role accepts any task (the coordinator's
// affinity-based selection decides *which* eligible agent actually runs).
func (a *LLMAgent) CanExecute(task state.TaskNode, _ state.Snapshot) bool {
	if a.role == RoleDomainSpecialist && a.domain != "" {
		return strings.Contains(strings.ToLower(task.Objective), strings.ToLower(a.domain))
	}
	return true
}

// Execute builds a prompt from the role's frame plus task and prior claims,
// calls the LLM adapter, and wraps the response as a single claim of the
// role's default type.
func (a *LLMAgent) Execute(ctx context.Context, task state.TaskNode, snapshot state.Snapshot) (*Result, error) {
	prompt := a.buildPrompt(task, snapshot)

	genResult, err := a.llm.Generate(ctx, prompt, a.model, a.defaultBudget)
	if err != nil {
		return nil, fmt.Errorf("agentproto: llm generate: %w", err)
	}

	claimType := claimTypeForRole[a.role]
	claim := state.Claim{
		ID:      uuid.NewString(),
		Type:    claimType,
		Content: genResult.Text,
		Metadata: map[string]any{
			"phase":   string(claimType),
			"task_id": task.ID,
			"agent":   a.name,
		},
	}

	return &Result{
		Claims:     []state.Claim{claim},
		TokenUsage: genResult.TokenUsage,
	}, nil
}

// buildPrompt assembles the role's frame, the task objective and exit
// criteria, and every claim accumulated so far — a flat prompt, not a
// templated document, since spec §5 leaves prompt construction
// unspecified beyond "the agent must see prior claims".
func (a *LLMAgent) buildPrompt(task state.TaskNode, snapshot state.Snapshot) string {
	var b strings.Builder
	b.WriteString(promptFrameForRole[a.role])
	b.WriteString("\n\nObjective: ")
	b.WriteString(task.Objective)
	if task.ExitCriteria != "" {
		b.WriteString("\nExit criteria: ")
		b.WriteString(task.ExitCriteria)
	}
	if len(snapshot.Claims) > 0 {
		b.WriteString("\n\nPrior claims:\n")
		for _, c := range snapshot.Claims {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Type, c.Content)
		}
	}
	return b.String()
}
