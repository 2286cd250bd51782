package agentproto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

func TestRegistry_GetAndNames(t *testing.T) {
	a := NewLLMAgent("synth-1", RoleSynthesizer, nil, "", ports.StubLLMAdapter{}, "stub", 100)
	r := NewRegistry(a)

	got, ok := r.Get("synth-1")
	require.True(t, ok)
	assert.Equal(t, a, got)

	assert.ElementsMatch(t, []string{"synth-1"}, r.Names())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_CandidatesFor_ExcludesDomainSpecialistOutsideDomain(t *testing.T) {
	generalist := NewLLMAgent("synth-1", RoleSynthesizer, nil, "", ports.StubLLMAdapter{}, "stub", 100)
	specialist := NewLLMAgent("legal-1", RoleDomainSpecialist, nil, "legal", ports.StubLLMAdapter{}, "stub", 100)
	r := NewRegistry(generalist, specialist)

	task := state.TaskNode{ID: "t1", Objective: "research the legal implications of the merger"}
	candidates := r.CandidatesFor(task, state.Snapshot{})

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name()
	}
	assert.ElementsMatch(t, []string{"synth-1", "legal-1"}, names)

	task2 := state.TaskNode{ID: "t2", Objective: "summarize quarterly revenue"}
	candidates2 := r.CandidatesFor(task2, state.Snapshot{})
	names2 := make([]string, len(candidates2))
	for i, c := range candidates2 {
		names2[i] = c.Name()
	}
	assert.ElementsMatch(t, []string{"synth-1"}, names2)
}

func TestLLMAgent_Execute_ProducesClaimOfRoleDefaultType(t *testing.T) {
	a := NewLLMAgent("contra-1", RoleContrarian, nil, "", ports.StubLLMAdapter{Response: "counterpoint"}, "stub", 100)
	task := state.TaskNode{ID: "t1", Objective: "challenge the thesis"}

	res, err := a.Execute(context.Background(), task, state.Snapshot{})
	require.NoError(t, err)
	require.Len(t, res.Claims, 1)

	claim := res.Claims[0]
	assert.Equal(t, state.ClaimAntithesis, claim.Type)
	assert.Equal(t, "counterpoint", claim.Content)
	assert.Equal(t, "t1", claim.Metadata["task_id"])
	assert.Equal(t, "contra-1", claim.Metadata["agent"])
	assert.Equal(t, string(state.ClaimAntithesis), claim.Phase())
}

func TestLLMAgent_Execute_PropagatesContextCancellation(t *testing.T) {
	a := NewLLMAgent("synth-1", RoleSynthesizer, nil, "", ports.StubLLMAdapter{}, "stub", 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Execute(ctx, state.TaskNode{ID: "t1"}, state.Snapshot{})
	assert.Error(t, err)
}

func TestLLMAgent_CanExecute_UnrestrictedDomainAcceptsAnyTask(t *testing.T) {
	a := NewLLMAgent("legal-1", RoleDomainSpecialist, nil, "", ports.StubLLMAdapter{}, "stub", 100)
	assert.True(t, a.CanExecute(state.TaskNode{Objective: "anything at all"}, state.Snapshot{}))
}

func TestMessageBus_DrainIsFIFOPerSenderRecipientPair(t *testing.T) {
	bus := NewMessageBus()
	bus.Send(state.AgentMessage{Sender: "a", Recipient: "b", Content: "first"})
	bus.Send(state.AgentMessage{Sender: "a", Recipient: "b", Content: "second"})
	bus.Send(state.AgentMessage{Sender: "c", Recipient: "b", Content: "unrelated"})

	msgs := bus.Drain("a", "b")
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	assert.Empty(t, bus.Drain("a", "b"), "drain removes messages, a second drain is empty")
}

func TestMessageBus_BroadcastFansOutToEachRecipient(t *testing.T) {
	bus := NewMessageBus()
	bus.Broadcast(state.AgentMessage{Sender: "moderator", Content: "status update"}, []string{"a", "b", "c"})

	for _, recipient := range []string{"a", "b", "c"} {
		msgs := bus.Drain("moderator", recipient)
		require.Len(t, msgs, 1)
		assert.Equal(t, "status update", msgs[0].Content)
		assert.Equal(t, state.MessageCoalition, msgs[0].Kind)
		assert.Equal(t, recipient, msgs[0].Recipient)
	}
}

func TestMessageBus_DrainAllFor_CollectsAcrossSenders(t *testing.T) {
	bus := NewMessageBus()
	bus.Send(state.AgentMessage{Sender: "a", Recipient: "target", Content: "from a"})
	bus.Send(state.AgentMessage{Sender: "b", Recipient: "target", Content: "from b"})
	bus.Send(state.AgentMessage{Sender: "a", Recipient: "other", Content: "not for target"})

	msgs := bus.DrainAllFor("target")
	require.Len(t, msgs, 2)

	assert.Empty(t, bus.DrainAllFor("target"))
	assert.Len(t, bus.Drain("a", "other"), 1, "unrelated recipient queue untouched")
}
