package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

func TestEvaluate_ScoresBelowThresholdDoesNotEscalate(t *testing.T) {
	scout := state.ScoutMetadata{RetrievalOverlap: 0.1, NLIConflict: 0.1, Complexity: 0.1}
	d := Evaluate(scout, DefaultWeights(), 0.5, OverrideNone)

	assert.False(t, d.Escalate)
	assert.InDelta(t, 0.1*0.3+0.1*0.45+0.1*0.25, d.Score, 1e-9)
}

func TestEvaluate_ScoreAtOrAboveThresholdEscalates(t *testing.T) {
	scout := state.ScoutMetadata{RetrievalOverlap: 1.0, NLIConflict: 1.0, Complexity: 1.0}
	d := Evaluate(scout, DefaultWeights(), 0.5, OverrideNone)

	assert.True(t, d.Escalate)
	assert.InDelta(t, 1.0, d.Score, 1e-9)
}

func TestEvaluate_UserOverrideExitFinalizesEvenOverAHighScore(t *testing.T) {
	scout := state.ScoutMetadata{RetrievalOverlap: 1.0, NLIConflict: 1.0, Complexity: 1.0} // score would escalate on its own
	d := Evaluate(scout, DefaultWeights(), 0.1, OverrideExit)

	assert.False(t, d.Escalate, "decision rule 1: user_override=exit finalizes with the scout answer regardless of score")
	assert.Equal(t, OverrideExit, d.UserOverride)
	assert.InDelta(t, 1.0, d.Score, 1e-9, "override changes the decision, not the recorded score")
}

func TestEvaluate_UserOverrideDebateEscalatesEvenOverALowScore(t *testing.T) {
	scout := state.ScoutMetadata{} // every signal zero, score 0
	d := Evaluate(scout, DefaultWeights(), 0.5, OverrideDebate)

	assert.True(t, d.Escalate, "decision rule 2: user_override=debate escalates regardless of score")
	assert.Equal(t, OverrideDebate, d.UserOverride)
	assert.Equal(t, 0.0, d.Score)
}

func TestEvaluate_NLIConflictIsWeightedMostHeavily(t *testing.T) {
	w := DefaultWeights()
	overlapOnly := Evaluate(state.ScoutMetadata{RetrievalOverlap: 1.0}, w, 1.0, OverrideNone)
	conflictOnly := Evaluate(state.ScoutMetadata{NLIConflict: 1.0}, w, 1.0, OverrideNone)

	assert.Greater(t, conflictOnly.Score, overlapOnly.Score)
}

func TestOverride_IsValid(t *testing.T) {
	assert.True(t, OverrideNone.IsValid())
	assert.True(t, OverrideExit.IsValid())
	assert.True(t, OverrideDebate.IsValid())
	assert.False(t, Override("ignore").IsValid())
}

func TestRecordDecision_PreservesScoutInputsAndDecision(t *testing.T) {
	qs := state.New("q")
	scout := state.ScoutMetadata{RetrievalOverlap: 0.8, NLIConflict: 0.2, Complexity: 0.1}
	d := Evaluate(scout, DefaultWeights(), 0.5, OverrideNone)

	RecordDecision(qs, scout, d)

	snap := qs.Snapshot()
	require.NotNil(t, snap.ScoutMetadata)
	assert.InDelta(t, 0.8, snap.ScoutMetadata.RetrievalOverlap, 1e-9)
	assert.Equal(t, d.Score, snap.ScoutMetadata.Score)
	assert.Equal(t, d.Escalate, snap.ScoutMetadata.Escalated)
	assert.Equal(t, d.Threshold, snap.ScoutMetadata.Detail["threshold"])

	require.NotEmpty(t, snap.ReactLog)
	assert.Equal(t, "gate.decision", snap.ReactLog[len(snap.ReactLog)-1].Event)
}

func TestScoutSignalsFromPass_ComplexityGrowsWithQueryLengthAndStructure(t *testing.T) {
	short := ScoutSignalsFromPass("define entropy", nil)
	long := ScoutSignalsFromPass("Why does entropy increase, and how does that compare to the trade-offs in reversible computing, versus irreversible computing?", nil)

	assert.Less(t, short.Complexity, long.Complexity)
}

func TestScoutSignalsFromPass_NLIConflictReflectsFlaggedClaims(t *testing.T) {
	claims := []state.Claim{
		{ID: "c1", Metadata: map[string]any{"conflict": true}},
		{ID: "c2", Metadata: map[string]any{"conflict": false}},
	}
	signals := ScoutSignalsFromPass("q", claims)
	assert.InDelta(t, 0.5, signals.NLIConflict, 1e-9)
}

func TestScoutSignalsFromPass_RetrievalOverlapZeroWithNoSources(t *testing.T) {
	signals := ScoutSignalsFromPass("entropy and computing", []state.Claim{{ID: "c1"}})
	assert.Equal(t, 0.0, signals.RetrievalOverlap)
}
