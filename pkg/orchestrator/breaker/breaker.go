// Package breaker implements the per-agent circuit breaker: error
// classification, failure-weight accumulation, and the
// closed/open/half_open state machine that gates whether an agent is
// allowed to execute. Grounded on the teacher's MCP recovery classifier
// (pkg/mcp/recovery.go), generalized from a 2-valued retry decision
// (NoRetry/RetryNewSession) to the three-category failure taxonomy
// (transient/recoverable/critical) spec §4.5 requires, and on pkg/config/
// errors.go's sentinel+wrapper error style for RecoveryStrategy selection.
package breaker

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/errs"
)

// Config bounds one agent's circuit breaker behavior.
type Config struct {
	// Threshold is the cumulative failure weight that trips the breaker open.
	Threshold float64
	// Cooldown is how long the breaker stays open before moving to half_open.
	Cooldown time.Duration
}

// DefaultConfig mirrors the teacher's conservative retry posture: roughly
// three critical failures, or six transient ones, trip the breaker.
func DefaultConfig() Config {
	return Config{Threshold: 3.0, Cooldown: time.Minute}
}

// State is the lifecycle state of one agent's circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// RecoveryStrategy is the action Executor should take after a classified
// failure.
type RecoveryStrategy string

const (
	StrategyRetryWithBackoff RecoveryStrategy = "retry_with_backoff"
	StrategyFallbackAgent    RecoveryStrategy = "fallback_agent"
	StrategyFailGracefully   RecoveryStrategy = "fail_gracefully"
)

// SelectStrategy maps a failure category to the recovery action the
// Executor should take (spec §4.5): transient failures retry in place,
// recoverable failures fall back to an alternate agent, critical failures
// fail the task gracefully (recording a diagnostic claim) rather than
// retrying.
func SelectStrategy(category errs.Category) RecoveryStrategy {
	switch category {
	case errs.Transient:
		return StrategyRetryWithBackoff
	case errs.Recoverable:
		return StrategyFallbackAgent
	default:
		return StrategyFailGracefully
	}
}

// ClassifyError buckets err into a failure category using the same
// transport/protocol signal checks the teacher's MCP client uses to decide
// retry eligibility, generalized to a three-way category instead of a
// binary retry decision.
func ClassifyError(err error) errs.Category {
	if err == nil {
		return errs.Transient
	}

	if errors.Is(err, context.Canceled) {
		return errs.Cancellation
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Transient
	}

	var validationErr *errs.ConfigError
	if errors.As(err, &validationErr) {
		return errs.Validation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errs.Transient
		}
		return errs.Recoverable
	}

	if isConnectionError(err) {
		return errs.Recoverable
	}

	// Unclassified errors are treated as critical: unlike the teacher's
	// client, which only ever chooses between "retry" and "don't", the
	// orchestrator must also decide whether to keep an agent in rotation at
	// all, and an unrecognized failure mode should not stay silently
	// retryable forever.
	return errs.Critical
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"connection closed",
		"no such host",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// breakerEntry is one agent's live breaker bookkeeping.
type breakerEntry struct {
	state        State
	failureScore float64
	openedAt     time.Time
	probing      bool
}

// Breaker tracks circuit breaker state per agent name, guarded by a single
// mutex — breaker transitions are infrequent relative to agent execution, so
// a coarse lock is simpler than per-agent locks and grounded on the
// teacher's WorkerPool using one mutex over its whole session map.
type Breaker struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*breakerEntry
}

// New creates a Breaker using cfg for every agent it tracks.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, entries: make(map[string]*breakerEntry)}
}

func (b *Breaker) entry(agent string) *breakerEntry {
	e, ok := b.entries[agent]
	if !ok {
		e = &breakerEntry{state: StateClosed}
		b.entries[agent] = e
	}
	return e
}

// Allow reports whether agent may currently execute. A breaker in
// StateOpen disallows execution until Cooldown elapses, at which point a
// single probe call is allowed through in StateHalfOpen.
func (b *Breaker) Allow(agent string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(agent)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(e.openedAt) < b.cfg.Cooldown {
			return false
		}
		e.state = StateHalfOpen
		e.probing = true
		return true
	case StateHalfOpen:
		if e.probing {
			return false // a probe is already in flight
		}
		e.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets its accumulated failure score.
func (b *Breaker) RecordSuccess(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(agent)
	e.state = StateClosed
	e.failureScore = 0
	e.probing = false
}

// RecordFailure accumulates category's failure weight and trips the breaker
// open once the cumulative score crosses cfg.Threshold. A failure observed
// while half_open (i.e. the probe failed) reopens the breaker immediately
// regardless of cumulative score.
func (b *Breaker) RecordFailure(agent string, category errs.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(agent)
	e.probing = false

	if e.state == StateHalfOpen {
		e.state = StateOpen
		e.openedAt = time.Now()
		return
	}

	e.failureScore += category.FailureWeight()
	if e.failureScore >= b.cfg.Threshold {
		e.state = StateOpen
		e.openedAt = time.Now()
	}
}

// State returns the current breaker state for agent (StateClosed if never
// seen).
func (b *Breaker) State(agent string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(agent).state
}
