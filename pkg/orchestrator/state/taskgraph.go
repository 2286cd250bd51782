package state

import "sort"

// RawTaskNode is the planner's raw, unnormalized representation of a task.
// Fields mirror a typical JSON/YAML planner response: a bare tools string
// arrives in ToolsScalar and is coerced to a one-element list during
// normalization; DependsOn has no scalar field and is always a list.
type RawTaskNode struct {
	ID           string
	Objective    string
	Tools        []string // already a list
	ToolsScalar  string   // set instead of Tools when the planner emitted a bare string
	DependsOn    []string
	ExitCriteria string
	Affinity     map[string]float64
	Explanation  string
}

// RawPlan is the planner's raw output: a list of raw task nodes.
type RawPlan struct {
	Tasks []RawTaskNode
}

// SetTaskGraph normalizes a raw planner payload into a TaskGraph, recording
// every normalization decision in the react log (spec §4.2):
//  1. coerce scalar tool strings into single-element lists
//  2. drop depends_on entries referencing unknown ids
//  3. detect cycles by DFS and drop the latest back-edge
//  4. default missing affinity/tools to empty
//  5. assign each node a deterministic task_index (insertion order)
//
// If the raw plan has no parseable tasks, SetTaskGraph synthesizes a single
// root task and flags planner.fallback=true in metadata.
func (s *QueryState) SetTaskGraph(raw RawPlan) *TaskGraph {
	s.mu.Lock()
	defer s.mu.Unlock()

	var warnings []string

	if len(raw.Tasks) == 0 {
		warnings = append(warnings, "planner returned no parseable tasks; falling back to single root task")
		s.Metadata["planner.fallback"] = true
		graph := &TaskGraph{Nodes: []TaskNode{{
			ID:        "root",
			Objective: s.QueryText,
			Tools:     []string{},
			DependsOn: []string{},
			Affinity:  map[string]float64{},
			TaskIndex: 0,
		}}}
		s.TaskGraph = graph
		s.addReactLogEntryLocked("planner.normalization", map[string]any{"warnings": warnings})
		return graph
	}

	known := make(map[string]bool, len(raw.Tasks))
	for _, t := range raw.Tasks {
		known[t.ID] = true
	}

	nodes := make([]TaskNode, 0, len(raw.Tasks))
	for i, t := range raw.Tasks {
		tools := t.Tools
		if len(tools) == 0 && t.ToolsScalar != "" {
			tools = []string{t.ToolsScalar} // rule 1: coerce scalar -> single-element list
		}
		if tools == nil {
			tools = []string{}
		}

		dependsOn := make([]string, 0, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if !known[dep] {
				warnings = append(warnings, "dropped dangling dependency "+t.ID+" -> "+dep)
				continue
			}
			if dep == t.ID {
				warnings = append(warnings, "dropped self-dependency "+t.ID)
				continue
			}
			dependsOn = append(dependsOn, dep)
		}

		affinity := t.Affinity
		if affinity == nil {
			affinity = map[string]float64{}
		}

		nodes = append(nodes, TaskNode{
			ID:           t.ID,
			Objective:    t.Objective,
			Tools:        tools,
			DependsOn:    dependsOn,
			ExitCriteria: t.ExitCriteria,
			Affinity:     affinity,
			Explanation:  t.Explanation,
			TaskIndex:    i,
		})
	}

	nodes, cycleWarnings := breakCycles(nodes)
	warnings = append(warnings, cycleWarnings...)

	graph := &TaskGraph{Nodes: nodes}
	s.TaskGraph = graph
	s.addReactLogEntryLocked("planner.normalization", map[string]any{"warnings": warnings})
	return graph
}

// breakCycles runs DFS over the dependency graph and drops the latest
// back-edge encountered for each cycle found, leaving the graph acyclic
// while preserving every other edge (spec §4.2 rule 3, §3 TaskGraph
// invariant).
func breakCycles(nodes []TaskNode) ([]TaskNode, []string) {
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byID[n.ID] = i
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var warnings []string

	// Sort node ids for deterministic DFS order so the same raw plan always
	// produces the same normalized graph (spec's determinism requirement
	// extends to normalization, not just scheduling).
	order := make([]string, len(nodes))
	for i, n := range nodes {
		order[i] = n.ID
	}
	sort.Strings(order)

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		idx := byID[id]
		kept := nodes[idx].DependsOn[:0:0]
		for _, dep := range nodes[idx].DependsOn {
			switch color[dep] {
			case white:
				visit(dep)
				kept = append(kept, dep)
			case gray:
				// back-edge: this dependency is currently on the DFS stack,
				// so keeping it would close a cycle. Drop it.
				warnings = append(warnings, "dropped cyclic dependency "+id+" -> "+dep)
			case black:
				kept = append(kept, dep)
			}
		}
		nodes[idx].DependsOn = kept
		color[id] = black
	}

	for _, id := range order {
		if color[id] == white {
			visit(id)
		}
	}

	return nodes, warnings
}
