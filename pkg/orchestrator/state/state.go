package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/errs"
)

// QueryState holds all mutable data for one in-flight query. It is created
// at query accept and mutated only by the Executor, which holds the
// re-entrant lock for the duration of each mutation. Readers obtain
// consistent views via Snapshot.
type QueryState struct {
	mu *reentrantMutex

	QueryID     string
	QueryText   string
	Cycle       int
	PrimusIndex int

	Claims   []Claim
	claimIdx map[string]int // claim id -> index into Claims, for O(1) lookup/update

	Messages []AgentMessage
	Metadata map[string]any
	ReactLog []ReactLogEntry

	TaskGraph     *TaskGraph
	Metrics       QueryMetrics
	ScoutMetadata *ScoutMetadata
}

// New creates a QueryState for a freshly accepted query.
func New(queryText string) *QueryState {
	return &QueryState{
		mu:       newReentrantMutex(),
		QueryID:  uuid.NewString(),
		QueryText: queryText,
		Claims:   nil,
		claimIdx: make(map[string]int),
		Messages: nil,
		Metadata: map[string]any{
			"errors":    []any{},
			"telemetry": map[string]any{},
		},
		ReactLog: nil,
	}
}

// AddClaim appends a claim, enforcing id uniqueness.
func (s *QueryState) AddClaim(c Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claimIdx[c.ID]; exists {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateClaimID, c.ID)
	}
	if c.Version == 0 {
		c.Version = 1
	}
	s.claimIdx[c.ID] = len(s.Claims)
	s.Claims = append(s.Claims, c)
	return nil
}

// UpdateClaim replaces an existing claim's content and metadata, bumping
// its version while preserving id and position.
func (s *QueryState) UpdateClaim(id string, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.claimIdx[id]
	if !exists {
		return fmt.Errorf("%w: %s", errs.ErrClaimNotFound, id)
	}
	claim := s.Claims[idx]
	claim.Content = content
	if metadata != nil {
		claim.Metadata = metadata
	}
	claim.Version++
	s.Claims[idx] = claim
	return nil
}

// AddMessage appends an agent message, assigning it the next sequence
// number for its (sender, recipient) pair, counted over the whole query and
// not reset between cycles.
func (s *QueryState) AddMessage(m AgentMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Cycle = s.Cycle
	seq := 0
	for _, existing := range s.Messages {
		if existing.Sender == m.Sender && existing.Recipient == m.Recipient {
			seq++
		}
	}
	m.Seq = seq
	s.Messages = append(s.Messages, m)
}

// AddReactLogEntry appends an event to the append-only react log.
func (s *QueryState) AddReactLogEntry(event string, detail map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addReactLogEntryLocked(event, detail)
}

// addReactLogEntryLocked assumes the lock is already held by this goroutine.
// Exported mutation methods use it internally so they never need to release
// and reacquire the lock mid-operation — the re-entrant lock would allow
// that too, but calling the locked variant directly avoids the extra
// goroutine-id lookup.
func (s *QueryState) addReactLogEntryLocked(event string, detail map[string]any) {
	s.ReactLog = append(s.ReactLog, ReactLogEntry{
		Timestamp: time.Now(),
		Event:     event,
		Detail:    detail,
	})
}

// RecordPlannerTrace appends a planner trace entry to metadata, used to
// audit what the Planner capability returned and how it was normalized.
func (s *QueryState) RecordPlannerTrace(prompt, raw string, graph *TaskGraph, warnings []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	traces, _ := s.Metadata["planner_traces"].([]map[string]any)
	traces = append(traces, map[string]any{
		"prompt":   prompt,
		"raw":      raw,
		"warnings": warnings,
	})
	s.Metadata["planner_traces"] = traces
	if graph != nil {
		s.TaskGraph = graph
	}
	s.addReactLogEntryLocked("planner.trace", map[string]any{"warnings": warnings})
}

// RecordError appends a structured error to state.metadata.errors, the
// telemetry twin of a diagnostic claim (spec §4.5: "every recovery event
// appends an identical diagnostic claim to both state.claims ... and
// state.metadata.errors").
func (s *QueryState) RecordError(e ResponseError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	errsList, _ := s.Metadata["errors"].([]any)
	errsList = append(errsList, e)
	s.Metadata["errors"] = errsList
}

// SetScoutMetadata records the AUTO-mode gate's scout signals and decision
// onto the state, preserving them for any subsequent full-debate cycle.
func (s *QueryState) SetScoutMetadata(sc ScoutMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ScoutMetadata = &sc
}

// SetPrimusIndex records which roster position leads this query. The
// Executor computes the value once per query (rotated by one position
// between queries, not between loops within a query — glossary, spec
// §4.4.1) and calls this before the first cycle runs.
func (s *QueryState) SetPrimusIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PrimusIndex = i
}

// BeginCycle advances the query to its next cycle and returns the new
// (1-based) cycle number, used both as CycleMetrics.Cycle and to stamp
// AgentMessage.Cycle for every message recorded afterward.
func (s *QueryState) BeginCycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cycle++
	return s.Cycle
}

// RecordCycleMetrics appends one cycle's timing and token accounting to
// Metrics and folds its total into Metrics.TotalUsage.
func (s *QueryState) RecordCycleMetrics(cm CycleMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metrics.Cycles = append(s.Metrics.Cycles, cm)
	s.Metrics.TotalUsage += cm.TokensUsed
}

// SetLoopsUsed records how many cycles the executor actually ran, which can
// be fewer than the configured loops when a mode finalizes early (AUTO
// exiting after the scout pass) or when a cycle produces no executions.
func (s *QueryState) SetLoopsUsed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metrics.LoopsUsed = n
}

// Snapshot returns a consistent read view. Claims, Messages, ReactLog,
// TaskGraph.Nodes, ScoutMetadata and the Metadata map are copied, so later
// appends to or replacements in the live state do not show in it. Values
// nested below those (claim Metadata and Sources, maps and slices stored in
// Metadata, node Tools/DependsOn/Affinity, ScoutMetadata.Detail,
// Metrics.Cycles) are not copied and are shared with the live state.
func (s *QueryState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims := make([]Claim, len(s.Claims))
	copy(claims, s.Claims)

	messages := make([]AgentMessage, len(s.Messages))
	copy(messages, s.Messages)

	reactLog := make([]ReactLogEntry, len(s.ReactLog))
	copy(reactLog, s.ReactLog)

	metadata := deepCopyMap(s.Metadata)

	var graph *TaskGraph
	if s.TaskGraph != nil {
		g := *s.TaskGraph
		g.Nodes = append([]TaskNode(nil), s.TaskGraph.Nodes...)
		graph = &g
	}

	var scout *ScoutMetadata
	if s.ScoutMetadata != nil {
		sc := *s.ScoutMetadata
		scout = &sc
	}

	return Snapshot{
		QueryID:       s.QueryID,
		QueryText:     s.QueryText,
		Cycle:         s.Cycle,
		PrimusIndex:   s.PrimusIndex,
		Claims:        claims,
		Messages:      messages,
		Metadata:      metadata,
		ReactLog:      reactLog,
		TaskGraph:     graph,
		Metrics:       s.Metrics,
		ScoutMetadata: scout,
	}
}

// MergeFromGroup unions claims and concatenates messages from a
// parallel-group result, using set-union semantics over claim ids:
// re-merging the same group is idempotent, and merging groups in any order
// produces the same final claim set (spec §4.4.3, §8).
func (s *QueryState) MergeFromGroup(groupID string, claims []Claim, messages []AgentMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range claims {
		if _, exists := s.claimIdx[c.ID]; exists {
			continue // idempotent re-merge: duplicates ignored
		}
		if c.Version == 0 {
			c.Version = 1
		}
		s.claimIdx[c.ID] = len(s.Claims)
		s.Claims = append(s.Claims, c)
	}
	s.Messages = append(s.Messages, messages...)
	s.addReactLogEntryLocked("group.merge", map[string]any{
		"group_id":    groupID,
		"claim_count": len(claims),
	})
}

// deepCopyMap copies m one level deep: the returned map is new, but nested
// maps and slices stored as its values are shared with m.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is a consistent, immutable read view of a QueryState.
type Snapshot struct {
	QueryID       string
	QueryText     string
	Cycle         int
	PrimusIndex   int
	Claims        []Claim
	Messages      []AgentMessage
	Metadata      map[string]any
	ReactLog      []ReactLogEntry
	TaskGraph     *TaskGraph
	Metrics       QueryMetrics
	ScoutMetadata *ScoutMetadata
}

// wireFormat is the on-the-wire JSON shape used by Encode/Decode.
type wireFormat struct {
	QueryID       string         `json:"query_id"`
	QueryText     string         `json:"query_text"`
	Cycle         int            `json:"cycle"`
	PrimusIndex   int            `json:"primus_index"`
	Claims        []Claim        `json:"claims"`
	Messages      []AgentMessage `json:"messages"`
	Metadata      map[string]any `json:"metadata"`
	ReactLog      []ReactLogEntry `json:"react_log"`
	TaskGraph     *TaskGraph     `json:"task_graph,omitempty"`
	Metrics       QueryMetrics   `json:"metrics"`
	ScoutMetadata *ScoutMetadata `json:"scout_metadata,omitempty"`
}

// Encode serializes the state to bytes for persistence or remote dispatch.
func (s *QueryState) Encode() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return json.Marshal(wireFormat{
		QueryID:       s.QueryID,
		QueryText:     s.QueryText,
		Cycle:         s.Cycle,
		PrimusIndex:   s.PrimusIndex,
		Claims:        s.Claims,
		Messages:      s.Messages,
		Metadata:      s.Metadata,
		ReactLog:      s.ReactLog,
		TaskGraph:     s.TaskGraph,
		Metrics:       s.Metrics,
		ScoutMetadata: s.ScoutMetadata,
	})
}

// Decode reconstructs a QueryState from bytes produced by Encode. The
// round trip is lossless: Decode(Encode(s)) reproduces every field Encode
// serialized.
func Decode(data []byte) (*QueryState, error) {
	var w wireFormat
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("state: decode: %w", err)
	}

	s := &QueryState{
		mu:            newReentrantMutex(),
		QueryID:       w.QueryID,
		QueryText:     w.QueryText,
		Cycle:         w.Cycle,
		PrimusIndex:   w.PrimusIndex,
		Claims:        w.Claims,
		claimIdx:      make(map[string]int, len(w.Claims)),
		Messages:      w.Messages,
		Metadata:      w.Metadata,
		ReactLog:      w.ReactLog,
		TaskGraph:     w.TaskGraph,
		Metrics:       w.Metrics,
		ScoutMetadata: w.ScoutMetadata,
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	for i, c := range s.Claims {
		s.claimIdx[c.ID] = i
	}
	return s, nil
}
