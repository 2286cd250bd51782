package distributed

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := wireMessage{ID: "m1", Topic: "claims", Payload: []byte("hello")}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out wireMessage
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, "orchestrator-json", c.Name())
}

func TestServer_PublishThenGet_FIFOPerTopic(t *testing.T) {
	s := NewServer()
	ctx := context.Background()

	_, err := s.publish(ctx, wireMessage{ID: "1", Topic: "t", Payload: []byte("a")})
	require.NoError(t, err)
	_, err = s.publish(ctx, wireMessage{ID: "2", Topic: "t", Payload: []byte("b")})
	require.NoError(t, err)

	first, err := s.get(ctx, getRequest{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)

	second, err := s.get(ctx, getRequest{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "2", second.ID)
}

func TestServer_GetBlocksUntilContextCancelledWhenEmpty(t *testing.T) {
	s := NewServer()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.get(ctx, getRequest{Topic: "empty"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroker_PublishAndQueueGet_OverRealGRPCConnection(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer()
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	require.NoError(t, err)
	broker := &Broker{conn: conn}
	defer broker.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, broker.Publish(ctx, ports.Message{ID: "x1", Topic: "claims", Payload: []byte("payload")}))

	q := broker.Queue("claims")
	got, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x1", got.ID)
	assert.Equal(t, []byte("payload"), got.Payload)
}
