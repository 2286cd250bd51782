package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestBudget_NoHistoryReturnsCurrent(t *testing.T) {
	assert.Equal(t, 2000, SuggestBudget(nil, nil, 2000, 0.5))
}

func TestSuggestBudget_NoHistoryReturnsCurrentEvenWhenZeroOrNegative(t *testing.T) {
	// A fresh agent with no recorded usage anywhere in the roster keeps
	// whatever budget it was configured with; it is never floored to 1
	// just because history is empty.
	assert.Equal(t, 0, SuggestBudget(nil, nil, 0, 0.5))
	assert.Equal(t, -5, SuggestBudget(nil, nil, -5, 0.5))
}

func TestSuggestBudget_ConvergesTowardUsageNotFullBudget(t *testing.T) {
	got := SuggestBudget([]Sample{{Used: 1000, Budget: 2000}}, nil, 2000, 0.5)
	assert.Equal(t, 1500, got)
	assert.Less(t, got, 2000, "suggestion must trend down from an overprovisioned budget")
}

func TestSuggestBudget_NegativeMarginClampedToZero(t *testing.T) {
	history := []Sample{{Used: 1000, Budget: 2000}}
	got := SuggestBudget(history, nil, 2000, -0.3)
	assert.Equal(t, 1000, got, "a negative margin must clamp to zero, not reduce the suggestion below observed usage")
}

func TestSuggestBudget_RoundsHalfUpNotCeil(t *testing.T) {
	// Exact .5 values round up (999.5 -> 1000, 1.5 -> 2) while values below
	// .5 round down (1.4 -> 1), which a math.Ceil would turn into 2.
	got := roundHalfUp(999.5)
	assert.Equal(t, 1000, got)
	assert.Equal(t, 2, roundHalfUp(1.5))
	assert.Equal(t, 1, roundHalfUp(1.4))
	assert.Equal(t, 2, roundHalfUp(1.5000001))
}

func TestSuggestBudget_NoHistoryFloorsAtOneIsNotTheRule(t *testing.T) {
	// A single zero sample, with no positive usage recorded anywhere, is
	// indistinguishable from "never ran" and must not floor to 1 — only
	// ten consecutive zero cycles following prior activity do that (see
	// TestSuggestBudget_TenZeroCyclesAfterActivityFloorsAtOne).
	got := SuggestBudget([]Sample{{Used: 0, Budget: 0}}, nil, 100, 0.5)
	assert.Equal(t, 100, got)
}

func TestSuggestBudget_TenZeroCyclesAfterActivityFloorsAtOne(t *testing.T) {
	history := []Sample{{Used: 100, Budget: 100}}
	for i := 0; i < recentWindow; i++ {
		history = append(history, Sample{Used: 0, Budget: 100})
	}
	got := SuggestBudget(history, nil, 100, 0.5)
	assert.Equal(t, 1, got, "ten idle cycles after prior activity should stop provisioning the agent")
}

func TestSuggestBudget_AllSamplesInTheWindowContribute(t *testing.T) {
	// A stale spike earlier in the window still pulls the suggestion up via
	// mean_nonzero, unlike a formula that only looks at the latest sample.
	history := []Sample{
		{Used: 10000, Budget: 10000},
		{Used: 1000, Budget: 2000},
	}
	got := SuggestBudget(history, nil, 2000, 0.5)
	assert.Greater(t, got, 1500, "an earlier spike in the window must raise the suggestion above the latest-sample-only estimate")
}

func TestSuggestBudget_ScenarioSixConvergesAndHoldsSteady(t *testing.T) {
	// Mirrors the worked example: constant usage of 50 each cycle, margin
	// 0.2, starting budget 10 -> suggested budget converges to 60 and
	// remains 60 on the next identical cycle.
	history := []Sample{{Used: 50, Budget: 10}}
	perAgent := map[string][]Sample{"agent-a": history}

	first := SuggestBudget(history, perAgent, 10, 0.2)
	assert.Equal(t, 60, first)

	history = append(history, Sample{Used: 50, Budget: first})
	perAgent["agent-a"] = history
	second := SuggestBudget(history, perAgent, first, 0.2)
	assert.Equal(t, 60, second)
}

func TestSuggestBudget_RosterSpikePullsUpAQuietAgentsSuggestion(t *testing.T) {
	quietAgentHistory := []Sample{{Used: 10, Budget: 100}}
	perAgent := map[string][]Sample{
		"quiet-agent": quietAgentHistory,
		"busy-agent":  {{Used: 500, Budget: 500}},
	}

	got := SuggestBudget(quietAgentHistory, perAgent, 100, 0)
	// mean(recent per-agent max) averages each agent's own max (10 and 500),
	// giving 255 -- well above the quiet agent's own 10, even though its own
	// history alone would never suggest more than its own usage.
	assert.Equal(t, 255, got, "mean(recent per-agent max) should pull the quiet agent's suggestion toward the roster's spike")
}

func TestCompressIfNeeded_NoopWhenWithinBudget(t *testing.T) {
	prompt := "short prompt"
	assert.Equal(t, prompt, CompressIfNeeded(prompt, 1000))
}

func TestCompressIfNeeded_TruncatesWithMarkerWhenOverBudget(t *testing.T) {
	prompt := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	out := CompressIfNeeded(prompt, 40)

	assert.LessOrEqual(t, len([]rune(out)), len([]rune(prompt)))
	assert.Contains(t, out, "[truncated]")
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.True(t, strings.HasSuffix(out, "b"))
}

func TestCompressIfNeeded_RetainsHeadAndTail(t *testing.T) {
	prompt := "HEAD_MARKER" + strings.Repeat("x", 200) + "TAIL_MARKER"
	out := CompressIfNeeded(prompt, 60)

	assert.Contains(t, out, "HEAD")
	assert.Contains(t, out, "TAIL_MARKER")
}

func TestCompressIfNeeded_ZeroOrNegativeBudgetIsNoop(t *testing.T) {
	prompt := "some prompt text"
	assert.Equal(t, prompt, CompressIfNeeded(prompt, 0))
	assert.Equal(t, prompt, CompressIfNeeded(prompt, -1))
}
