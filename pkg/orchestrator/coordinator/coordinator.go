// Package coordinator computes the deterministic ready set of tasks from a
// TaskGraph and a ReadyState snapshot — a pure function of its inputs, with
// no side effects and no locking of its own (the caller holds whatever lock
// is appropriate for the QueryState it read the graph from). Grounded on the
// in-degree bookkeeping of a Kahn's-algorithm DAG scheduler
// (other_examples/.../dag_scheduler.go), generalized from a single ready
// channel to a total-order ready list keyed by (depth, -affinity,
// task_index) per spec §4.3.
package coordinator

import "github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"

// Status is a task's lifecycle state within one query's execution.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// TaskRunState tracks one task's scheduling status plus the cycle at which
// it first became unblocked. ReadySet does not read UnlockedAtCycle: ties
// among tasks of equal depth and affinity are broken by TaskIndex.
type TaskRunState struct {
	Status          Status
	UnlockedAtCycle int
}

// ReadyState is the coordinator's view of every task's run state, keyed by
// task id.
type ReadyState struct {
	tasks map[string]*TaskRunState
}

// NewReadyState initializes a ReadyState with every node in graph marked
// pending, unlocked at cycle 0.
func NewReadyState(graph *state.TaskGraph) *ReadyState {
	rs := &ReadyState{tasks: make(map[string]*TaskRunState, len(graph.Nodes))}
	for _, n := range graph.Nodes {
		rs.tasks[n.ID] = &TaskRunState{Status: StatusPending}
	}
	return rs
}

// Get returns a copy of the run state for id, or the zero value if unknown.
func (rs *ReadyState) Get(id string) TaskRunState {
	if t, ok := rs.tasks[id]; ok {
		return *t
	}
	return TaskRunState{}
}

// MarkRunning transitions a task to running.
func (rs *ReadyState) MarkRunning(id string) {
	if t, ok := rs.tasks[id]; ok {
		t.Status = StatusRunning
	}
}

// MarkDone transitions a task to done at the given cycle, recording
// unlock_event detail for any dependents whose dependencies are now all
// satisfied — the caller is expected to pass the resulting ids to
// qs.AddReactLogEntry("unlock_event", ...) since ReadyState itself has no
// QueryState reference.
func (rs *ReadyState) MarkDone(graph *state.TaskGraph, id string, cycle int) (unlocked []string) {
	if t, ok := rs.tasks[id]; ok {
		t.Status = StatusDone
	}
	for _, n := range graph.Nodes {
		if rs.Get(n.ID).Status != StatusPending {
			continue
		}
		isDependent := false
		for _, dep := range n.DependsOn {
			if dep == id {
				isDependent = true
				break
			}
		}
		if !isDependent {
			continue
		}
		if rs.allDepsDone(n) {
			if t, ok := rs.tasks[n.ID]; ok && t.UnlockedAtCycle == 0 && cycle > 0 {
				t.UnlockedAtCycle = cycle
			}
			unlocked = append(unlocked, n.ID)
		}
	}
	return unlocked
}

// MarkFailed transitions a task to failed. A failed task's dependents never
// become ready (spec §4.3: failure propagation blocks the subtree).
func (rs *ReadyState) MarkFailed(id string) {
	if t, ok := rs.tasks[id]; ok {
		t.Status = StatusFailed
	}
}

func (rs *ReadyState) allDepsDone(n state.TaskNode) bool {
	for _, dep := range n.DependsOn {
		if rs.Get(dep).Status != StatusDone {
			return false
		}
	}
	return true
}

// depth returns a node's longest-path depth from any root (a node with no
// dependencies), used as the primary ReadySet sort key.
func depth(graph *state.TaskGraph, id string, memo map[string]int) int {
	if d, ok := memo[id]; ok {
		return d
	}
	n, ok := graph.NodeByID(id)
	if !ok || len(n.DependsOn) == 0 {
		memo[id] = 0
		return 0
	}
	max := 0
	for _, dep := range n.DependsOn {
		if d := depth(graph, dep, memo); d > max {
			max = d
		}
	}
	memo[id] = max + 1
	return max + 1
}

// maxAffinity returns a node's highest affinity weight among the tool keys
// in activeTools, used as the secondary ReadySet sort key (higher affinity
// sorts first). A node's affinity map scores it against every tool it could
// use; the secondary sort key must reflect what it would actually score with
// the tools presently available, not a sum across tools it can't reach this
// cycle. activeTools == nil means no restriction: every key is considered.
func maxAffinity(n state.TaskNode, activeTools map[string]bool) float64 {
	var max float64
	for tool, w := range n.Affinity {
		if activeTools != nil && !activeTools[tool] {
			continue
		}
		if w > max {
			max = w
		}
	}
	return max
}

// ReadySet returns every pending task whose dependencies are all done,
// ordered deterministically by (depth ascending, affinity descending,
// task_index ascending) — a pure, total-order function of graph and rs
// (spec §4.3, §8: "ready_set is a pure function of (graph, state);
// identical inputs always yield an identical ordering").
//
// activeTools, if non-nil, restricts the result to tasks whose required
// tools are all present in the set (used when a subset of tool adapters are
// currently available, e.g. during a degraded run).
func ReadySet(graph *state.TaskGraph, rs *ReadyState, activeTools map[string]bool) []state.TaskNode {
	memo := make(map[string]int, len(graph.Nodes))

	var ready []state.TaskNode
	for _, n := range graph.Nodes {
		if rs.Get(n.ID).Status != StatusPending {
			continue
		}
		if !rs.allDepsDone(n) {
			continue
		}
		if activeTools != nil && !toolsAvailable(n.Tools, activeTools) {
			continue
		}
		ready = append(ready, n)
	}

	depths := make(map[string]int, len(ready))
	for _, n := range ready {
		depths[n.ID] = depth(graph, n.ID, memo)
	}

	sortReady(ready, depths, activeTools)
	return ready
}

func toolsAvailable(required []string, active map[string]bool) bool {
	for _, t := range required {
		if !active[t] {
			return false
		}
	}
	return true
}

// sortReady is a small insertion sort (ready sets are expected to be tens of
// tasks at most) applying the (depth, -affinity, task_index) total order.
// activeTools restricts the affinity comparison to tool keys currently
// available, consistent with the tool-availability filter ReadySet already
// applies above; nil considers every key.
func sortReady(nodes []state.TaskNode, depths map[string]int, activeTools map[string]bool) {
	less := func(a, b state.TaskNode) bool {
		if depths[a.ID] != depths[b.ID] {
			return depths[a.ID] < depths[b.ID]
		}
		aff := maxAffinity(a, activeTools)
		bff := maxAffinity(b, activeTools)
		if aff != bff {
			return aff > bff
		}
		return a.TaskIndex < b.TaskIndex
	}
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(nodes[j], nodes[j-1]); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
