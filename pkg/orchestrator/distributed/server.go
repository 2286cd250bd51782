package distributed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
)

// Server is the distributed broker's remote endpoint: it accepts Publish
// and Get calls from any number of Broker clients and fans messages out
// per topic, exactly like the in-process ports.LocalBroker but reachable
// over the network. A deployment runs exactly one Server per broker
// "cluster"; multiple worker processes each hold a Broker client
// pointed at it.
type Server struct {
	mu     sync.Mutex
	queues map[string]chan wireMessage

	grpcServer *grpc.Server
	logger     *slog.Logger
}

// NewServer creates an unstarted distributed broker server.
func NewServer() *Server {
	s := &Server{
		queues: make(map[string]chan wireMessage),
		logger: slog.With("component", "distributed.Server"),
	}
	s.grpcServer = grpc.NewServer()
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

func (s *Server) queueFor(topic string) chan wireMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[topic]
	if !ok {
		q = make(chan wireMessage, 256)
		s.queues[topic] = q
	}
	return q
}

func (s *Server) publish(_ context.Context, msg wireMessage) (ack, error) {
	s.queueFor(msg.Topic) <- msg
	return ack{}, nil
}

func (s *Server) get(ctx context.Context, req getRequest) (wireMessage, error) {
	select {
	case msg := <-s.queueFor(req.Topic):
		return msg, nil
	case <-ctx.Done():
		return wireMessage{}, ctx.Err()
	}
}

// Serve blocks accepting connections on lis until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("distributed broker server listening", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("distributed: serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
