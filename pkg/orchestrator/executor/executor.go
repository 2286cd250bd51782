// Package executor runs a query's TaskGraph to completion: picking a
// reasoning mode, rotating the Primus lead agent, dispatching tasks to
// agents in coordinator order, merging results back into QueryState under
// lock, and applying circuit-breaker, token-budget, and AUTO-mode gate
// policy around every agent call. Grounded on the teacher's
// IteratingController (pkg/agent/controller/iterating.go) for the
// sequential per-task loop shape (precondition check, call, branch on
// error/timeout/cancellation, record), and on SubAgentRunner
// (pkg/agent/orchestrator/runner.go) for the parallel-group dispatch
// pattern: reserved-slot concurrency accounting to avoid a TOCTOU race on
// the configured concurrency limit, and a buffered results channel so
// dispatching goroutines never block on a slow consumer.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/agentproto"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/breaker"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/budget"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/coordinator"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/errs"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/gate"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// Mode selects how tasks in a cycle are reasoned about.
type Mode string

const (
	// ModeDirect runs the Primus agent alone, one cycle, no rebuttal round.
	ModeDirect Mode = "direct"
	// ModeChainOfThought runs the Primus agent alone across cfg.Loops
	// sequential reasoning turns, each seeded by the prior turn's claims.
	ModeChainOfThought Mode = "chain_of_thought"
	// ModeDialectical runs the full rotated roster (thesis, antithesis,
	// synthesis, ...) across cfg.Loops cycles.
	ModeDialectical Mode = "dialectical"
	// ModeAuto runs a single Primus-only scout cycle and escalates to the
	// full rotated roster only if the gate decision says to (spec §4.7).
	ModeAuto Mode = "auto"
)

// Config bounds one query's execution.
type Config struct {
	Mode                Mode
	Agents              []string // ordered roster; rotated by Primus position each query (spec §3, §4.4.1)
	PrimusStart         int      // roster index the very first query starts from
	Loops               int      // cycles to run in chain_of_thought/dialectical modes; default 1
	MaxConcurrentAgents int
	AgentTimeout        time.Duration
	GroupDeadline       time.Duration
	DefaultTokenBudget  int
	MarginFraction      float64 // budget.SuggestBudget's margin (spec §4.6)
	BreakerConfig       breaker.Config
	ChainOfThoughtTurns int // carried from configuration but not read by Run; ModeChainOfThought runs Loops cycles

	GateWeights   gate.Weights
	GateThreshold float64
	UserOverride  gate.Override

	Distributed bool // dispatch tasks through Executor.broker instead of calling agent.Execute in-process
}

// DefaultConfig mirrors the teacher's conservative concurrency defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeDialectical,
		Loops:               1,
		MaxConcurrentAgents: 4,
		AgentTimeout:        90 * time.Second,
		GroupDeadline:       5 * time.Minute,
		DefaultTokenBudget:  2000,
		MarginFraction:      0.5,
		BreakerConfig:       breaker.DefaultConfig(),
		ChainOfThoughtTurns: 2,
		GateWeights:         gate.DefaultWeights(),
		GateThreshold:       0.5,
		UserOverride:        gate.OverrideNone,
	}
}

// Executor runs tasks against registered agents.
type Executor struct {
	registry *agentproto.Registry
	bus      *agentproto.MessageBus
	breaker  *breaker.Breaker
	broker   ports.Broker
	tracer   ports.Tracer
	metrics  ports.Metrics
	logger   *slog.Logger

	budgetMu      sync.Mutex
	budgetHistory map[string][]budget.Sample // agent name -> usage history, for SuggestBudget

	primusMu      sync.Mutex
	primusCounter int // advances once per query (spec glossary: Primus rotates between queries, not loops)
}

// New builds an Executor. broker, tracer, and metrics may be noop
// implementations (see pkg/orchestrator/ports) when distributed dispatch
// and observability are not needed.
func New(registry *agentproto.Registry, bus *agentproto.MessageBus, broker ports.Broker, tracer ports.Tracer, metrics ports.Metrics) *Executor {
	return &Executor{
		registry:      registry,
		bus:           bus,
		breaker:       breaker.New(breaker.DefaultConfig()),
		broker:        broker,
		tracer:        tracer,
		metrics:       metrics,
		logger:        slog.With("component", "executor"),
		budgetHistory: make(map[string][]budget.Sample),
	}
}

// nextBudget returns the adaptive token budget to use for agent's next
// call, derived from its own usage history plus the rest of the roster's
// (spec §4.6).
func (e *Executor) nextBudget(agentName string, defaultBudget int, margin float64) int {
	e.budgetMu.Lock()
	defer e.budgetMu.Unlock()
	b := budget.SuggestBudget(e.budgetHistory[agentName], e.budgetHistory, defaultBudget, margin)
	e.metrics.Gauge("executor.budget.tokens").Set(float64(b))
	return b
}

// recordUsage appends a usage sample to agent's budget history.
func (e *Executor) recordUsage(agentName string, used, budgetTokens int) {
	e.budgetMu.Lock()
	defer e.budgetMu.Unlock()
	e.budgetHistory[agentName] = append(e.budgetHistory[agentName], budget.Sample{Used: used, Budget: budgetTokens})
}

// cycleTally accumulates one cycle's per-agent token usage so runCycles can
// stamp CycleMetrics without re-deriving it from budgetHistory (which spans
// every query this Executor has run, not just the current cycle).
type cycleTally struct {
	mu     sync.Mutex
	tokens map[string]int
}

func newCycleTally() *cycleTally {
	return &cycleTally{tokens: map[string]int{}}
}

func (t *cycleTally) add(agentName string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[agentName] += n
}

func (t *cycleTally) snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.tokens))
	for k, v := range t.tokens {
		out[k] = v
	}
	return out
}

func (t *cycleTally) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	sum := 0
	for _, v := range t.tokens {
		sum += v
	}
	return sum
}

// recordFailure writes a structured error to both state.Metadata["errors"]
// and state.Claims, as a diagnostic claim with matching content — spec
// §4.5 requires recovery events leave an identical trace in both places so
// a client reading only claims still sees every failure the run absorbed.
func (e *Executor) recordFailure(qs *state.QueryState, respErr state.ResponseError, groupID string) {
	qs.RecordError(respErr)

	meta := map[string]any{
		"phase":    "diagnostic",
		"event":    respErr.Event,
		"agent":    respErr.Agent,
		"category": respErr.Category,
	}
	if groupID != "" {
		meta["group_id"] = groupID
	}
	if err := qs.AddClaim(state.Claim{
		ID:      uuid.NewString(),
		Type:    state.ClaimDiagnostic,
		Content: respErr.Message,
		Metadata: meta,
	}); err != nil {
		e.logger.Warn("failed to record diagnostic claim", "error", err, "event", respErr.Event)
	}
}

// assignPrimus rotates the Primus lead position by one between queries
// (not between loops within a query — spec glossary, §4.4.1), records the
// chosen index onto qs, and returns cfg.Agents rotated to start at that
// position. A single-agent roster rotates onto itself.
func (e *Executor) assignPrimus(qs *state.QueryState, cfg Config) []string {
	if len(cfg.Agents) == 0 {
		return nil
	}

	e.primusMu.Lock()
	idx := (cfg.PrimusStart + e.primusCounter) % len(cfg.Agents)
	e.primusCounter++
	e.primusMu.Unlock()

	qs.SetPrimusIndex(idx)

	roster := make([]string, len(cfg.Agents))
	for i := range cfg.Agents {
		roster[i] = cfg.Agents[(idx+i)%len(cfg.Agents)]
	}
	return roster
}

func soloRoster(roster []string) []string {
	if len(roster) == 0 {
		return nil
	}
	return roster[:1]
}

func toSet(names []string) map[string]bool {
	if names == nil {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Run executes qs's TaskGraph to completion under cfg, returning the final
// QueryResponse. The reasoning mode controls which agents participate in a
// cycle and how many cycles run; within a cycle, tasks still flow through
// the coordinator's dependency-ordered ready set (spec §4.3, §4.4).
func (e *Executor) Run(ctx context.Context, qs *state.QueryState, graph *state.TaskGraph, cfg Config) (*state.QueryResponse, error) {
	runCtx, span := e.tracer.Span(ctx, "executor.run", map[string]any{"query_id": qs.Snapshot().QueryID, "mode": string(cfg.Mode)})
	defer span.Release()

	e.breaker = breaker.New(cfg.BreakerConfig)

	loops := cfg.Loops
	if loops < 1 {
		loops = 1
	}
	roster := e.assignPrimus(qs, cfg)

	var err error
	switch cfg.Mode {
	case ModeDirect:
		err = e.runCycles(runCtx, qs, graph, cfg, soloRoster(roster), 1)
	case ModeChainOfThought:
		err = e.runCycles(runCtx, qs, graph, cfg, soloRoster(roster), loops)
	case ModeDialectical:
		err = e.runCycles(runCtx, qs, graph, cfg, roster, loops)
	case ModeAuto:
		err = e.runAuto(runCtx, qs, graph, cfg, roster, loops)
	default:
		err = e.runCycles(runCtx, qs, graph, cfg, roster, loops)
	}

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}

	return synthesize(qs), nil
}

// runAuto runs a single Primus-only scout cycle, derives the gate's scout
// signals from whatever claims it produced, and escalates to the full
// rotated roster across cfg.Loops cycles only if the gate decision (or a
// user override) says to (spec §4.7, §8 "AUTO scout preservation": the
// scout cycle's claims are never discarded, win or lose the gate).
func (e *Executor) runAuto(ctx context.Context, qs *state.QueryState, graph *state.TaskGraph, cfg Config, roster []string, loops int) error {
	lead := soloRoster(roster)
	if err := e.runCycles(ctx, qs, graph, cfg, lead, 1); err != nil {
		return err
	}

	snap := qs.Snapshot()
	scout := gate.ScoutSignalsFromPass(snap.QueryText, snap.Claims)
	decision := gate.Evaluate(scout, cfg.GateWeights, cfg.GateThreshold, cfg.UserOverride)
	gate.RecordDecision(qs, scout, decision)

	if !decision.Escalate {
		return nil
	}
	return e.runCycles(ctx, qs, graph, cfg, roster, loops)
}

// runCycles re-walks graph's ready set over cycles iterations, restricting
// candidate selection to activeAgents each cycle. A fresh ReadyState is
// built at the top of every cycle so chain_of_thought/dialectical's
// repeated-loop semantics can re-run the same graph instead of exhausting
// it on the first pass; a cycle that produces no execution ends the loop
// early (the graph has nothing left any active agent can do).
func (e *Executor) runCycles(ctx context.Context, qs *state.QueryState, graph *state.TaskGraph, cfg Config, activeAgents []string, cycles int) error {
	allowed := toSet(activeAgents)
	loopsUsed := 0

	for c := 0; c < cycles; c++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cycleNum := qs.BeginCycle()
		start := time.Now()
		tally := newCycleTally()
		rs := coordinator.NewReadyState(graph)
		ranAny := false

		for {
			ready := coordinator.ReadySet(graph, rs, nil)
			if len(ready) == 0 {
				break
			}

			// Partition the ready set into runs of mutually independent tasks:
			// a new group starts only where a task depends on one already in
			// the current run. ReadySet returns only tasks whose dependencies
			// are all done, so the ready set normally forms a single group,
			// whatever the depths in it. A group of one runs inline; larger
			// groups run in parallel.
			groups := groupByConsecutiveReadiness(ready)

			for _, group := range groups {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				if len(group) == 1 {
					if err := e.runSequential(ctx, qs, group[0], cfg, rs, graph, allowed, tally); err != nil {
						if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
							return err
						}
						// task-level failure: already recorded, move to the next group
					} else {
						ranAny = true
					}
					continue
				}
				if err := e.runParallelGroup(ctx, qs, group, cfg, rs, graph, allowed, tally); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
				}
				ranAny = true
			}

			qs.AddReactLogEntry("cycle.advance", map[string]any{"cycle": cycleNum, "ready_count": len(ready)})
		}

		qs.RecordCycleMetrics(state.CycleMetrics{
			Cycle:      cycleNum,
			Duration:   time.Since(start),
			TokensUsed: tally.total(),
			PerAgent:   tally.snapshot(),
		})
		e.metrics.Counter("executor.cycles.completed").Inc()
		loopsUsed++
		if !ranAny {
			break
		}
	}

	qs.SetLoopsUsed(loopsUsed)
	return nil
}

// groupByConsecutiveReadiness splits ready, in order, into maximal runs in
// which no task depends on another task of the same run: a task that
// depends on a member of the current run starts a new run.
func groupByConsecutiveReadiness(ready []state.TaskNode) [][]state.TaskNode {
	if len(ready) == 0 {
		return nil
	}
	var groups [][]state.TaskNode
	current := []state.TaskNode{ready[0]}
	for _, n := range ready[1:] {
		if dependsOnAny(n, current) {
			groups = append(groups, current)
			current = []state.TaskNode{n}
			continue
		}
		current = append(current, n)
	}
	groups = append(groups, current)
	return groups
}

func dependsOnAny(n state.TaskNode, group []state.TaskNode) bool {
	for _, g := range group {
		for _, dep := range n.DependsOn {
			if dep == g.ID {
				return true
			}
		}
	}
	return false
}

// candidatesFor narrows the registry's eligible agents down to allowed, the
// current cycle's active roster — a task with affinity for an agent not in
// this cycle's roster must still fall through to whoever is active, not
// stall the graph.
func candidatesFor(registry *agentproto.Registry, task state.TaskNode, snapshot state.Snapshot, allowed map[string]bool) []agentproto.Agent {
	candidates := registry.CandidatesFor(task, snapshot)
	if allowed == nil {
		return candidates
	}
	var out []agentproto.Agent
	for _, c := range candidates {
		if allowed[c.Name()] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return candidates // no active-roster match: fall back to the full candidate set rather than stalling
	}
	return out
}

// remoteTaskSpec is the payload shipped to a remote worker over the broker
// (spec §4.4.4).
type remoteTaskSpec struct {
	Task     state.TaskNode `json:"task"`
	Snapshot state.Snapshot `json:"snapshot"`
}

// remoteDispatch publishes task to the broker's "executor.tasks" topic and
// awaits the matching result on a per-dispatch results queue, implementing
// the core's half of the publish/await contract — actual worker processes
// are external collaborators out of scope here (spec §1). Delivery is
// at-most-once per message id per the Broker contract; a worker that dies
// mid-task currently leaves this call blocked until ctx's deadline, the
// same trade-off the breaker's timeout classification already covers for
// in-process calls.
func (e *Executor) remoteDispatch(ctx context.Context, task state.TaskNode, snapshot state.Snapshot) (*agentproto.Result, error) {
	payload, err := json.Marshal(remoteTaskSpec{Task: task, Snapshot: snapshot})
	if err != nil {
		return nil, fmt.Errorf("executor: marshal remote task: %w", err)
	}

	id := uuid.NewString()
	if err := e.broker.Publish(ctx, ports.Message{ID: id, Topic: "executor.tasks", Payload: payload}); err != nil {
		return nil, fmt.Errorf("executor: publish remote task: %w", err)
	}

	resultsQueue := e.broker.Queue("executor.results." + id)
	msg, err := resultsQueue.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: await remote result: %w", err)
	}

	var res agentproto.Result
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		return nil, fmt.Errorf("executor: decode remote result: %w", err)
	}
	return &res, nil
}

// dispatch runs task against agent, either in-process or through the
// broker depending on cfg.Distributed.
func (e *Executor) dispatch(ctx context.Context, cfg Config, agent agentproto.Agent, task state.TaskNode, snapshot state.Snapshot) (*agentproto.Result, error) {
	if cfg.Distributed {
		return e.remoteDispatch(ctx, task, snapshot)
	}
	return agent.Execute(ctx, task, snapshot)
}

// runSequential executes one task inline: precondition check, breaker
// check, budget reservation, dispatch, locked merge — the same structural
// order as the teacher's IteratingController.Run loop body.
func (e *Executor) runSequential(ctx context.Context, qs *state.QueryState, task state.TaskNode, cfg Config, rs *coordinator.ReadyState, graph *state.TaskGraph, allowed map[string]bool, tally *cycleTally) error {
	taskCtx, span := e.tracer.Span(ctx, "executor.task.sequential", map[string]any{"task_id": task.ID})
	defer span.Release()

	snapshot := qs.Snapshot()
	candidates := candidatesFor(e.registry, task, snapshot, allowed)
	if len(candidates) == 0 {
		e.recordFailure(qs, state.ResponseError{
			Agent:    "",
			Category: string(errs.Recoverable),
			Event:    "no_candidate_agent",
			Message:  fmt.Sprintf("no agent declared eligible for task %s", task.ID),
		}, "")
		rs.MarkFailed(task.ID)
		e.metrics.Counter("executor.tasks.failed").Inc()
		return errs.ErrAgentNotFound
	}
	agent := selectByAffinity(candidates, task)

	rs.MarkRunning(task.ID)

	if !e.breaker.Allow(agent.Name()) {
		e.recordFailure(qs, state.ResponseError{
			Agent:    agent.Name(),
			Category: string(errs.Recoverable),
			Event:    "breaker_open",
			Message:  "circuit breaker open, task skipped",
		}, "")
		rs.MarkFailed(task.ID)
		e.metrics.Counter("executor.tasks.failed").Inc()
		return fmt.Errorf("breaker open for %s", agent.Name())
	}

	budgetTokens := e.nextBudget(agent.Name(), cfg.DefaultTokenBudget, cfg.MarginFraction)

	callCtx, cancel := context.WithTimeout(taskCtx, cfg.AgentTimeout)
	defer cancel()

	result, err := e.dispatch(callCtx, cfg, agent, task, snapshot)
	if err != nil {
		category := breaker.ClassifyError(err)
		e.breaker.RecordFailure(agent.Name(), category)
		e.recordFailure(qs, state.ResponseError{
			Agent:    agent.Name(),
			Category: string(category),
			Event:    "execute_error",
			Message:  err.Error(),
		}, "")
		rs.MarkFailed(task.ID)
		e.metrics.Counter("executor.tasks.failed").Inc()
		if category == errs.Cancellation {
			return ctx.Err()
		}
		return err
	}

	e.mergeResult(qs, agent.Name(), result, budgetTokens)
	tally.add(agent.Name(), result.TokenUsage.TotalTokens)

	if result.Error != nil {
		category := breaker.ClassifyError(result.Error)
		e.breaker.RecordFailure(agent.Name(), category)
		e.recordFailure(qs, state.ResponseError{
			Agent:    agent.Name(),
			Category: string(category),
			Event:    "result_error",
			Message:  result.Error.Error(),
		}, "")
		rs.MarkFailed(task.ID)
		e.metrics.Counter("executor.tasks.failed").Inc()
		return result.Error
	}

	e.breaker.RecordSuccess(agent.Name())
	e.metrics.Counter("executor.tasks.executed").Inc()
	if unlocked := rs.MarkDone(graph, task.ID, qs.Snapshot().Cycle); len(unlocked) > 0 {
		qs.AddReactLogEntry("unlock_event", map[string]any{"task_id": task.ID, "unlocked": unlocked})
	}
	return nil
}

// runParallelGroup dispatches every task in group concurrently, each
// against a cloned state snapshot, and merges results back in a
// deterministic order keyed by group index (not completion order) once all
// finish or cfg.GroupDeadline elapses — matching the
// reserved-slot-then-buffered-channel shape of SubAgentRunner.Dispatch, but
// collected via a barrier (parallel groups merge together, not as each
// finishes) since TaskGraph semantics require every sibling's claims
// visible before the next depth's tasks read the snapshot.
func (e *Executor) runParallelGroup(ctx context.Context, qs *state.QueryState, group []state.TaskNode, cfg Config, rs *coordinator.ReadyState, graph *state.TaskGraph, allowed map[string]bool, tally *cycleTally) error {
	groupCtx, span := e.tracer.Span(ctx, "executor.task.parallel_group", map[string]any{"group_size": len(group)})
	defer span.Release()
	groupCtx, cancel := context.WithTimeout(groupCtx, cfg.GroupDeadline)
	defer cancel()

	type groupResult struct {
		index  int
		taskID string
		agent  string
		result *agentproto.Result
		err    error
	}

	sem := make(chan struct{}, cfg.MaxConcurrentAgents)
	resultsCh := make(chan groupResult, len(group))

	for i, task := range group {
		snapshot := qs.Snapshot() // cloned per dispatch, never shared across goroutines
		candidates := candidatesFor(e.registry, task, snapshot, allowed)
		if len(candidates) == 0 {
			resultsCh <- groupResult{index: i, taskID: task.ID, err: errs.ErrAgentNotFound}
			continue
		}
		agent := selectByAffinity(candidates, task)
		rs.MarkRunning(task.ID)

		if !e.breaker.Allow(agent.Name()) {
			resultsCh <- groupResult{index: i, taskID: task.ID, agent: agent.Name(), err: fmt.Errorf("breaker open for %s", agent.Name())}
			continue
		}

		groupBudget := e.nextBudget(agent.Name(), cfg.DefaultTokenBudget, cfg.MarginFraction)
		sem <- struct{}{}
		go func(i int, task state.TaskNode, agent agentproto.Agent, snapshot state.Snapshot, budgetTokens int) {
			defer func() { <-sem }()
			res, err := e.dispatch(groupCtx, cfg, agent, task, snapshot)
			if err == nil && res != nil {
				e.recordUsage(agent.Name(), res.TokenUsage.TotalTokens, budgetTokens)
				tally.add(agent.Name(), res.TokenUsage.TotalTokens)
			}
			resultsCh <- groupResult{index: i, taskID: task.ID, agent: agent.Name(), result: res, err: err}
		}(i, task, agent, snapshot, groupBudget)
	}

	collected := make([]groupResult, len(group))
	got := 0
	for got < len(group) {
		select {
		case r := <-resultsCh:
			collected[r.index] = r
			got++
		case <-groupCtx.Done():
			qs.AddReactLogEntry("group.deadline", map[string]any{"completed": got, "total": len(group)})
			got = len(group) // stop waiting; unfilled slots stay zero-valued (treated as failed below)
		}
	}

	groupID := fmt.Sprintf("group-%d", group[0].TaskIndex)

	var claims []state.Claim
	var messages []state.AgentMessage
	for i, r := range collected {
		if r.taskID == "" {
			r.taskID = group[i].ID // deadline-truncated slot
			r.err = context.DeadlineExceeded
		}
		if r.err != nil {
			category := breaker.ClassifyError(r.err)
			if r.agent != "" {
				e.breaker.RecordFailure(r.agent, category)
			}
			e.recordFailure(qs, state.ResponseError{Agent: r.agent, Category: string(category), Event: "group_task_error", Message: r.err.Error()}, groupID)
			rs.MarkFailed(r.taskID)
			e.metrics.Counter("executor.tasks.failed").Inc()
			continue
		}
		if r.result.Error != nil {
			category := breaker.ClassifyError(r.result.Error)
			e.breaker.RecordFailure(r.agent, category)
			e.recordFailure(qs, state.ResponseError{Agent: r.agent, Category: string(category), Event: "group_task_error", Message: r.result.Error.Error()}, groupID)
			rs.MarkFailed(r.taskID)
			e.metrics.Counter("executor.tasks.failed").Inc()
			continue
		}
		e.breaker.RecordSuccess(r.agent)
		e.metrics.Counter("executor.tasks.executed").Inc()
		claims = append(claims, r.result.Claims...)
		messages = append(messages, r.result.Messages...)
		if unlocked := rs.MarkDone(graph, r.taskID, qs.Snapshot().Cycle); len(unlocked) > 0 {
			qs.AddReactLogEntry("unlock_event", map[string]any{"task_id": r.taskID, "unlocked": unlocked})
		}
	}

	qs.MergeFromGroup(groupID, claims, messages)
	return nil
}

func (e *Executor) mergeResult(qs *state.QueryState, agentName string, result *agentproto.Result, budgetTokens int) {
	for _, c := range result.Claims {
		if err := qs.AddClaim(c); err != nil {
			// A duplicate claim id from a retried agent call updates instead.
			_ = qs.UpdateClaim(c.ID, c.Content, c.Metadata)
		}
	}
	for _, m := range result.Messages {
		qs.AddMessage(m)
	}
	e.recordUsage(agentName, result.TokenUsage.TotalTokens, budgetTokens)
}

// selectByAffinity picks the candidate with the highest declared affinity
// for task, keeping the earliest candidate in the slice on a tie. The
// result is deterministic for a given slice order; Registry.CandidatesFor
// builds its slice by iterating a map, so that order is not fixed.
func selectByAffinity(candidates []agentproto.Agent, task state.TaskNode) agentproto.Agent {
	best := candidates[0]
	bestScore := task.Affinity[best.Name()]
	for _, c := range candidates[1:] {
		if score := task.Affinity[c.Name()]; score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// synthesize assembles the terminal QueryResponse from qs's final state
// (spec §7): the answer is the content of the latest synthesis claim, or
// the latest claim of any type if no synthesis exists.
func synthesize(qs *state.QueryState) *state.QueryResponse {
	snap := qs.Snapshot()

	var answer string
	var citations []state.Citation
	var reasoning []state.Claim
	haveSynthesis := false
	for _, c := range snap.Claims {
		reasoning = append(reasoning, c)
		if c.Type == state.ClaimSynthesis || !haveSynthesis {
			answer = c.Content
			citations = c.Sources
		}
		if c.Type == state.ClaimSynthesis {
			haveSynthesis = true
		}
	}

	var respErrors []state.ResponseError
	if rawErrs, ok := snap.Metadata["errors"].([]any); ok {
		for _, re := range rawErrs {
			if e, ok := re.(state.ResponseError); ok {
				respErrors = append(respErrors, e)
			}
		}
	}

	return &state.QueryResponse{
		Answer:      answer,
		Citations:   citations,
		Reasoning:   reasoning,
		Metrics:     snap.Metrics,
		Errors:      respErrors,
		FinalAnswer: answer,
	}
}
