// Package agentproto defines the minimal capability surface every
// dialectical participant implements (Synthesizer, Contrarian, FactChecker,
// Researcher, PlannerAgent, Critic, Summarizer, Moderator,
// DomainSpecialist, UserAgent), plus the message bus agents use to exchange
// direct and coalition messages mid-cycle. Grounded on the teacher's Agent
// interface (pkg/agent/agent.go) and ExecutionResult shape, generalized from
// a single per-execution agent type to a named, tool-declaring, multi-agent
// protocol (spec §5).
package agentproto

import (
	"context"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// Agent is the capability interface every dialectical participant
// implements. Agents are constructed once per query and may be invoked
// across multiple cycles; they hold no mutable state of their own beyond
// what CanExecute/Execute read from the task and snapshot passed to them.
type Agent interface {
	// Name returns the agent's stable identifier, used in claim
	// attribution, breaker bookkeeping, and message routing.
	Name() string

	// DeclaredTools lists the tool names this agent may invoke, used by the
	// coordinator to decide whether a task's required tools are satisfied.
	DeclaredTools() []string

	// CanExecute reports whether this agent is a valid assignee for task,
	// given the current snapshot (e.g. a DomainSpecialist might decline a
	// task outside its declared domain).
	CanExecute(task state.TaskNode, snapshot state.Snapshot) bool

	// Execute runs the agent against task, returning the claims and
	// messages it produced. Returns (nil, err) only for infrastructure
	// failures (adapter unreachable, context cancelled); agent-level
	// failures are reported via Result.Error with Result.Claims/Messages
	// left as whatever partial output exists.
	Execute(ctx context.Context, task state.TaskNode, snapshot state.Snapshot) (*Result, error)
}

// Result is what Agent.Execute returns: the claims and messages produced,
// plus token usage and an optional agent-level error.
type Result struct {
	Claims     []state.Claim
	Messages   []state.AgentMessage
	TokenUsage ports.TokenUsage
	Error      error
}

// Registry maps agent name to its Agent implementation.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds a Registry from a list of agents, keyed by Name().
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

// Get returns the named agent, or false if unregistered.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names returns every registered agent's name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// CandidatesFor returns every registered agent willing to execute task,
// given snapshot — the coordinator picks among these by affinity.
func (r *Registry) CandidatesFor(task state.TaskNode, snapshot state.Snapshot) []Agent {
	var out []Agent
	for _, a := range r.agents {
		if a.CanExecute(task, snapshot) {
			out = append(out, a)
		}
	}
	return out
}
