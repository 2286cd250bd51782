// Package gate evaluates the AUTO-mode scout decision: whether a scout pass
// is sufficient, or the query must escalate to full dialectical debate.
// Grounded on the teacher's config enum validation style
// (pkg/config/enums.go) for the weighted-threshold shape, generalized from a
// closed-set validity check to a continuous weighted score.
package gate

import (
	"strings"
	"unicode"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// Weights controls how heavily each scout signal contributes to the
// escalation score (spec §4.7).
type Weights struct {
	RetrievalOverlap float64
	NLIConflict      float64
	Complexity       float64
}

// DefaultWeights mirrors the spec's suggested starting weights: conflicting
// evidence is the strongest escalation signal, complexity the weakest.
func DefaultWeights() Weights {
	return Weights{RetrievalOverlap: 0.3, NLIConflict: 0.45, Complexity: 0.25}
}

// Override names the three values a caller (typically relayed from end-user
// input) may pin the gate decision to, per spec §4.7; cmd/research reads it
// from the -gate-override flag.
type Override string

const (
	// OverrideNone applies no override; the decision follows the weighted
	// score against threshold.
	OverrideNone Override = "none"
	// OverrideExit forces the gate to finalize with the scout answer
	// regardless of score — decision rule 1.
	OverrideExit Override = "exit"
	// OverrideDebate forces escalation to full debate regardless of score —
	// decision rule 2.
	OverrideDebate Override = "debate"
)

// IsValid reports whether o is one of the three recognized override values.
func (o Override) IsValid() bool {
	switch o {
	case OverrideNone, OverrideExit, OverrideDebate:
		return true
	default:
		return false
	}
}

// Decision is the gate's verdict plus the inputs that produced it, recorded
// verbatim into state.Metadata["gate"] for audit.
type Decision struct {
	Score        float64  `json:"score"`
	Escalate     bool     `json:"escalate"`
	UserOverride Override `json:"user_override"`
	Threshold    float64  `json:"threshold"`
}

// Evaluate applies spec §4.7's three decision rules in order:
//  1. user_override = exit  -> finalize with the scout answer (never escalate).
//  2. user_override = debate -> escalate, regardless of score.
//  3. otherwise, compute the weighted score and escalate iff it clears
//     threshold.
//
// The computed score is always returned, even when an override short-
// circuits it, so the decision remains auditable (spec §4.7 step 4).
func Evaluate(scout state.ScoutMetadata, w Weights, threshold float64, userOverride Override) Decision {
	score := w.RetrievalOverlap*scout.RetrievalOverlap +
		w.NLIConflict*scout.NLIConflict +
		w.Complexity*scout.Complexity

	var escalate bool
	switch userOverride {
	case OverrideExit:
		escalate = false
	case OverrideDebate:
		escalate = true
	default:
		escalate = score >= threshold
	}

	return Decision{
		Score:        score,
		Escalate:     escalate,
		UserOverride: userOverride,
		Threshold:    threshold,
	}
}

// RecordDecision stores d into qs's metadata under the "gate" key and logs
// the escalation event, preserving the scout pass's inputs for any
// downstream full-debate cycle (spec §8: "AUTO scout preservation").
func RecordDecision(qs *state.QueryState, scout state.ScoutMetadata, d Decision) {
	scout.Score = d.Score
	scout.Escalated = d.Escalate
	if scout.Detail == nil {
		scout.Detail = map[string]any{}
	}
	scout.Detail["threshold"] = d.Threshold
	scout.Detail["user_override"] = string(d.UserOverride)

	qs.SetScoutMetadata(scout)
	qs.AddReactLogEntry("gate.decision", map[string]any{
		"score":         d.Score,
		"escalate":      d.Escalate,
		"user_override": string(d.UserOverride),
		"threshold":     d.Threshold,
	})
}

// ScoutSignalsFromPass derives the three scout heuristics from the scout
// cycle's own claims and the original query text. Storage/Search/NLI
// adapters are out of scope for the core (spec §1 non-goals list search and
// storage backends as external collaborators), so these are local, coarse
// proxies: retrieval_overlap from keyword overlap between the query and the
// scout's cited sources, nli_conflict from how many scout claims an agent
// itself flagged as conflicting, and complexity from query length/structure.
func ScoutSignalsFromPass(queryText string, claims []state.Claim) state.ScoutMetadata {
	return state.ScoutMetadata{
		RetrievalOverlap: retrievalOverlap(queryText, claims),
		NLIConflict:      nliConflict(claims),
		Complexity:       complexity(queryText),
	}
}

func retrievalOverlap(queryText string, claims []state.Claim) float64 {
	keywords := keywordSet(queryText)
	if len(keywords) == 0 {
		return 0
	}

	var sourceWords map[string]bool
	for _, c := range claims {
		for _, src := range c.Sources {
			for w := range keywordSet(src.Snippet + " " + src.Title) {
				if sourceWords == nil {
					sourceWords = map[string]bool{}
				}
				sourceWords[w] = true
			}
		}
	}
	if len(sourceWords) == 0 {
		return 0
	}

	intersection := 0
	for w := range keywords {
		if sourceWords[w] {
			intersection++
		}
	}
	union := len(keywords) + len(sourceWords) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func nliConflict(claims []state.Claim) float64 {
	if len(claims) == 0 {
		return 0
	}
	flagged := 0
	for _, c := range claims {
		if c.Metadata == nil {
			continue
		}
		if v, ok := c.Metadata["conflict"].(bool); ok && v {
			flagged++
		}
	}
	return float64(flagged) / float64(len(claims))
}

// complexity scores a query's length and question structure into [0,1]: a
// long query, or one with several clauses/question words, is harder for a
// single scout pass to resolve confidently.
func complexity(queryText string) float64 {
	words := strings.Fields(queryText)
	lengthScore := float64(len(words)) / 40.0
	if lengthScore > 1 {
		lengthScore = 1
	}

	clauseCount := strings.Count(queryText, ",") + strings.Count(queryText, ";")
	for _, q := range []string{"why", "how", "compare", "trade-off", "tradeoff", "versus", " vs "} {
		if strings.Contains(strings.ToLower(queryText), q) {
			clauseCount++
		}
	}
	clauseScore := float64(clauseCount) / 4.0
	if clauseScore > 1 {
		clauseScore = 1
	}

	score := 0.5*lengthScore + 0.5*clauseScore
	if score > 1 {
		return 1
	}
	return score
}

func keywordSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}
