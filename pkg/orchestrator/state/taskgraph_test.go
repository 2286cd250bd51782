package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTaskGraph_EmptyPlanFallsBackToSingleRootTask(t *testing.T) {
	s := New("what is the capital of France?")
	graph := s.SetTaskGraph(RawPlan{})

	require.Len(t, graph.Nodes, 1)
	assert.Equal(t, "root", graph.Nodes[0].ID)
	assert.Equal(t, s.QueryText, graph.Nodes[0].Objective)

	snap := s.Snapshot()
	fallback, _ := snap.Metadata["planner.fallback"].(bool)
	assert.True(t, fallback)
}

func TestSetTaskGraph_CoercesScalarToolToList(t *testing.T) {
	s := New("q")
	graph := s.SetTaskGraph(RawPlan{Tasks: []RawTaskNode{
		{ID: "t1", Objective: "research", ToolsScalar: "web_search"},
	}})

	require.Len(t, graph.Nodes, 1)
	assert.Equal(t, []string{"web_search"}, graph.Nodes[0].Tools)
}

func TestSetTaskGraph_DropsDanglingAndSelfDependencies(t *testing.T) {
	s := New("q")
	graph := s.SetTaskGraph(RawPlan{Tasks: []RawTaskNode{
		{ID: "t1", Objective: "a", DependsOn: []string{"t1", "ghost"}},
	}})

	require.Len(t, graph.Nodes, 1)
	assert.Empty(t, graph.Nodes[0].DependsOn)
}

func TestSetTaskGraph_AssignsDeterministicTaskIndexInInsertionOrder(t *testing.T) {
	s := New("q")
	graph := s.SetTaskGraph(RawPlan{Tasks: []RawTaskNode{
		{ID: "t1", Objective: "a"},
		{ID: "t2", Objective: "b"},
		{ID: "t3", Objective: "c"},
	}})

	for i, n := range graph.Nodes {
		assert.Equal(t, i, n.TaskIndex)
	}
}

// TestSetTaskGraph_BreaksCycles_ProducesAcyclicGraph is the TestableProperty
// from spec §8: the normalized graph must always be a DAG, even when the
// planner's raw output contains a cycle.
func TestSetTaskGraph_BreaksCycles_ProducesAcyclicGraph(t *testing.T) {
	s := New("q")
	graph := s.SetTaskGraph(RawPlan{Tasks: []RawTaskNode{
		{ID: "t1", Objective: "a", DependsOn: []string{"t3"}},
		{ID: "t2", Objective: "b", DependsOn: []string{"t1"}},
		{ID: "t3", Objective: "c", DependsOn: []string{"t2"}},
	}})

	assert.True(t, isAcyclic(graph), "normalized graph must be acyclic")
}

func TestSetTaskGraph_BreaksCycles_Deterministic(t *testing.T) {
	raw := RawPlan{Tasks: []RawTaskNode{
		{ID: "t1", Objective: "a", DependsOn: []string{"t3"}},
		{ID: "t2", Objective: "b", DependsOn: []string{"t1"}},
		{ID: "t3", Objective: "c", DependsOn: []string{"t2"}},
	}}

	s1 := New("q")
	g1 := s1.SetTaskGraph(raw)

	s2 := New("q")
	g2 := s2.SetTaskGraph(raw)

	assert.Equal(t, g1.Nodes, g2.Nodes)
}

func TestSetTaskGraph_DefaultsMissingAffinityAndTools(t *testing.T) {
	s := New("q")
	graph := s.SetTaskGraph(RawPlan{Tasks: []RawTaskNode{
		{ID: "t1", Objective: "a"},
	}})

	assert.NotNil(t, graph.Nodes[0].Affinity)
	assert.NotNil(t, graph.Nodes[0].Tools)
}

func TestTaskGraph_NodeByID(t *testing.T) {
	g := &TaskGraph{Nodes: []TaskNode{{ID: "t1"}, {ID: "t2"}}}

	n, ok := g.NodeByID("t2")
	assert.True(t, ok)
	assert.Equal(t, "t2", n.ID)

	_, ok = g.NodeByID("missing")
	assert.False(t, ok)
}

func isAcyclic(g *TaskGraph) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var hasCycle bool

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		n, _ := g.NodeByID(id)
		for _, dep := range n.DependsOn {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				hasCycle = true
			}
		}
		color[id] = black
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
	return !hasCycle
}
