package distributed

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
)

// Broker implements ports.Broker over a grpc connection to a distributed
// Server. Uses insecure (plaintext) transport, matching the teacher's
// GRPCLLMClient: the broker is expected to run as a sidecar or within a
// trusted cluster network, not across an untrusted boundary.
type Broker struct {
	conn *grpc.ClientConn
}

// NewBroker dials addr and returns a ready-to-use distributed Broker.
func NewBroker(addr string) (*Broker, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("distributed: dial %s: %w", addr, err)
	}
	return &Broker{conn: conn}, nil
}

// Publish sends msg to the distributed broker.
func (b *Broker) Publish(ctx context.Context, msg ports.Message) error {
	return invokePublish(ctx, b.conn, wireMessage{ID: msg.ID, Topic: msg.Topic, Payload: msg.Payload})
}

// Queue returns a ports.Queue bound to topic on this broker connection.
func (b *Broker) Queue(topic string) ports.Queue {
	return &remoteQueue{conn: b.conn, topic: topic}
}

// Shutdown closes the underlying grpc connection.
func (b *Broker) Shutdown(_ context.Context) error {
	return b.conn.Close()
}

// remoteQueue implements ports.Queue against a distributed Server.
type remoteQueue struct {
	conn  *grpc.ClientConn
	topic string
}

func (q *remoteQueue) Put(ctx context.Context, msg ports.Message) error {
	return invokePublish(ctx, q.conn, wireMessage{ID: msg.ID, Topic: q.topic, Payload: msg.Payload})
}

func (q *remoteQueue) Get(ctx context.Context) (ports.Message, error) {
	wm, err := invokeGet(ctx, q.conn, q.topic)
	if err != nil {
		return ports.Message{}, err
	}
	return ports.Message{ID: wm.ID, Topic: wm.Topic, Payload: wm.Payload}, nil
}
