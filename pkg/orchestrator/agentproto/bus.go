package agentproto

import (
	"sync"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
)

// MessageBus delivers directed and coalition messages between agents within
// one query, preserving FIFO order per (sender, recipient) pair. Grounded on
// the teacher's ConnectionManager channel-subscription bookkeeping
// (pkg/events/manager.go), generalized from per-connection WebSocket
// delivery to per-pair in-memory queues since agent messages never leave
// the process within a single query.
type MessageBus struct {
	mu     sync.Mutex
	queues map[string][]state.AgentMessage // "sender\x00recipient" -> FIFO queue
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{queues: make(map[string][]state.AgentMessage)}
}

func pairKey(sender, recipient string) string {
	return sender + "\x00" + recipient
}

// Send enqueues m under its single (sender, recipient) pair. A message with
// an empty Recipient is queued under that empty-recipient key as is; fan-out
// to several recipients is done by Broadcast.
func (b *MessageBus) Send(m state.AgentMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pairKey(m.Sender, m.Recipient)
	b.queues[key] = append(b.queues[key], m)
}

// Broadcast enqueues m once for each recipient in recipients, preserving
// the sender's emission order across all of them.
func (b *MessageBus) Broadcast(m state.AgentMessage, recipients []string) {
	for _, r := range recipients {
		copied := m
		copied.Recipient = r
		copied.Kind = state.MessageCoalition
		b.Send(copied)
	}
}

// Drain returns and removes every message queued for recipient from sender,
// in FIFO order.
func (b *MessageBus) Drain(sender, recipient string) []state.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pairKey(sender, recipient)
	msgs := b.queues[key]
	delete(b.queues, key)
	return msgs
}

// DrainAllFor returns and removes every message queued for recipient from
// any sender. Each sender's messages keep their FIFO order, but senders
// follow map iteration order, which is not fixed. state.AgentMessage.Seq
// (assigned by QueryState.AddMessage) numbers messages per (sender,
// recipient) pair only, so it gives no total order across senders either.
func (b *MessageBus) DrainAllFor(recipient string) []state.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []state.AgentMessage
	suffix := "\x00" + recipient
	for key, msgs := range b.queues {
		if len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix {
			out = append(out, msgs...)
			delete(b.queues, key)
		}
	}
	return out
}
