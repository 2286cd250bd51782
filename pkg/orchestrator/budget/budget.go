// Package budget implements the adaptive token budget manager: suggesting a
// next-cycle budget from recent usage history, and compressing a prompt
// when it would exceed the current budget. Grounded on the teacher's
// TokenUsage accounting in pkg/agent/agent.go, generalized from a simple
// running total into the adaptive suggestion/compression pair spec §4.6
// describes.
package budget

import "strings"

// Sample is one cycle's recorded token usage, used as suggestion history.
type Sample struct {
	Used   int
	Budget int
}

// recentWindow bounds how many trailing samples "recent" statistics
// (mean_nonzero, the ten-zero-cycle floor rule) look over.
const recentWindow = 10

// SuggestBudget proposes an agent's next-cycle budget (spec §4.6, §9):
//
//   - If no positive usage has ever been recorded for this agent or any
//     other tracked agent, return currentBudget unchanged.
//   - If the last ten cycles all show zero usage despite prior activity,
//     return 1 (the agent has gone idle; stop provisioning it).
//   - Otherwise return
//     round_half_up(max(u_t, mean_nonzero(recent u), a_t, mean(recent per-agent max)) * (1+margin)),
//     floored at 1. u_t is this agent's latest sample; a_t is this agent's
//     own historical mean (including idle cycles, since an agent that goes
//     quiet for a while should still trend its budget down); the
//     per-agent-max term pulls in the rest of the roster so one agent's
//     spike nudges the shared provisioning estimate even before this agent
//     has personally spiked.
//
// history is the agent's own samples, oldest first. perAgent, keyed by
// agent name, is the full roster's histories (history is expected to also
// appear in perAgent under this agent's own key; SuggestBudget does not
// need to know which key that is).
func SuggestBudget(history []Sample, perAgent map[string][]Sample, currentBudget int, margin float64) int {
	if margin < 0 {
		margin = 0
	}

	if !anyPositiveUsage(history) && !anyRosterHasPositiveUsage(perAgent) {
		return currentBudget
	}

	recent := lastN(history, recentWindow)
	if len(recent) == recentWindow && allZero(recent) {
		return 1
	}

	var latest float64
	if len(history) > 0 {
		latest = float64(history[len(history)-1].Used)
	}

	peak := latest
	if v := meanNonZero(recent); v > peak {
		peak = v
	}
	if v := meanUsed(history); v > peak {
		peak = v
	}
	if v := meanOfPerAgentMax(perAgent, recentWindow); v > peak {
		peak = v
	}

	return max1(roundHalfUp(peak * (1 + margin)))
}

func anyPositiveUsage(history []Sample) bool {
	for _, s := range history {
		if s.Used > 0 {
			return true
		}
	}
	return false
}

func anyRosterHasPositiveUsage(perAgent map[string][]Sample) bool {
	for _, history := range perAgent {
		if anyPositiveUsage(history) {
			return true
		}
	}
	return false
}

func lastN(samples []Sample, n int) []Sample {
	if len(samples) <= n {
		return samples
	}
	return samples[len(samples)-n:]
}

func allZero(samples []Sample) bool {
	for _, s := range samples {
		if s.Used != 0 {
			return false
		}
	}
	return true
}

// meanNonZero averages samples' Used values, ignoring zero samples (spec
// §4.6: "non-zero averages ignore zero samples for the global window").
func meanNonZero(samples []Sample) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if s.Used > 0 {
			sum += float64(s.Used)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// meanUsed averages every sample's Used value, zeros included — an agent's
// own historical baseline (spec §4.6: "include zeros in per-agent windows
// to reflect idle agents").
func meanUsed(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s.Used)
	}
	return sum / float64(len(samples))
}

// meanOfPerAgentMax averages, across every tracked agent, that agent's
// highest Used value within its own trailing window — the cross-agent
// "mean(recent per-agent max)" term of the formula.
func meanOfPerAgentMax(perAgent map[string][]Sample, window int) float64 {
	if len(perAgent) == 0 {
		return 0
	}
	var sum float64
	for _, history := range perAgent {
		recent := lastN(history, window)
		var max int
		for _, s := range recent {
			if s.Used > max {
				max = s.Used
			}
		}
		sum += float64(max)
	}
	return sum / float64(len(perAgent))
}

// roundHalfUp rounds x to the nearest integer, rounding .5 up — distinct
// from math.Ceil, which would round every fractional value up regardless of
// which side of .5 it falls on (resolved Open Question, spec §9).
func roundHalfUp(x float64) int {
	if x < 0 {
		return -roundHalfUp(-x)
	}
	return int(x + 0.5)
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// CompressIfNeeded shortens prompt to fit within budget tokens (approximated
// by rune count, consistent with the coarse token accounting used
// elsewhere), retaining the first and last portions and replacing the
// middle with an ellipsis marker — the parts of a prompt most likely to
// carry the instruction and the most recent context survive; the discarded
// middle is typically earlier turns already summarized into claims.
func CompressIfNeeded(prompt string, budget int) string {
	runes := []rune(prompt)
	if budget <= 0 || len(runes) <= budget {
		return prompt
	}

	const marker = " ... [truncated] ... "
	markerLen := len([]rune(marker))
	if budget <= markerLen {
		return string(runes[:budget])
	}

	keep := budget - markerLen
	head := keep / 2
	tail := keep - head

	var b strings.Builder
	b.WriteString(string(runes[:head]))
	b.WriteString(marker)
	b.WriteString(string(runes[len(runes)-tail:]))
	return b.String()
}
