package ports

import (
	"context"
	"sync"
)

// NoopTracer discards all spans. Used when no Tracer is configured.
type NoopTracer struct{}

type noopSpan struct{}

func (noopSpan) Release() {}

// Span implements Tracer.
func (NoopTracer) Span(ctx context.Context, name string, attributes map[string]any) (context.Context, Span) {
	return ctx, noopSpan{}
}

// NoopMetrics discards all counter/gauge updates. Used in tests and when no
// Metrics backend is wired.
type NoopMetrics struct{}

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

// Counter implements Metrics.
func (NoopMetrics) Counter(name string) Counter { return noopCounter{} }

// Gauge implements Metrics.
func (NoopMetrics) Gauge(name string) Gauge { return noopGauge{} }

// StubLLMAdapter returns a canned response for every call, ignoring the
// prompt — used for local smoke-testing the orchestration loop without a
// real LLM backend wired, the same role the teacher's StubToolExecutor
// plays for tool calls.
type StubLLMAdapter struct {
	Response string
}

// Generate implements LLMAdapter.
func (s StubLLMAdapter) Generate(ctx context.Context, prompt string, model string, budget int) (GenerateResult, error) {
	select {
	case <-ctx.Done():
		return GenerateResult{}, ctx.Err()
	default:
	}
	text := s.Response
	if text == "" {
		text = "(stub response)"
	}
	return GenerateResult{
		Text:       text,
		TokenUsage: TokenUsage{InputTokens: len(prompt) / 4, OutputTokens: len(text) / 4, TotalTokens: len(prompt)/4 + len(text)/4},
	}, nil
}

// InMemoryQueue is a simple FIFO channel-backed Queue, used by the local
// (in-process) Broker implementation and by tests.
type InMemoryQueue struct {
	ch chan Message
}

// NewInMemoryQueue creates a queue with the given buffer capacity.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	return &InMemoryQueue{ch: make(chan Message, capacity)}
}

// Put implements Queue.
func (q *InMemoryQueue) Put(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get implements Queue.
func (q *InMemoryQueue) Get(ctx context.Context) (Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// LocalBroker is an in-process Broker backed by per-topic InMemoryQueues.
// It is the implementation cmd/research uses unless executor.broker is
// "grpc"; it gives
// the executor a real Broker to dispatch through without requiring a
// network round trip.
type LocalBroker struct {
	mu     sync.Mutex
	queues map[string]*InMemoryQueue
}

// NewLocalBroker creates an empty LocalBroker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{queues: make(map[string]*InMemoryQueue)}
}

// Queue implements Broker, lazily creating the named topic's queue.
func (b *LocalBroker) Queue(topic string) Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[topic]
	if !ok {
		q = NewInMemoryQueue(64)
		b.queues[topic] = q
	}
	return q
}

// Publish implements Broker by putting the message on its own topic queue.
func (b *LocalBroker) Publish(ctx context.Context, msg Message) error {
	return b.Queue(msg.Topic).Put(ctx, msg)
}

// Shutdown implements Broker. LocalBroker holds no external resources, so
// shutdown is a no-op beyond honoring cancellation.
func (b *LocalBroker) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
