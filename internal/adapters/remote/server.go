package remote

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

type ServerConfig struct {
	MaxMsgSize int
}

// Server exposes a plugin catalog over gRPC so engines in other processes
// can resolve and call its plugins.
type Server struct {
	catalog ports.PluginCatalog
	logger  *slog.Logger
	config  ServerConfig

	mu      sync.Mutex
	server  *grpc.Server
	health  *health.Server
	started bool
}

func NewServer(catalog ports.PluginCatalog, config ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		catalog: catalog,
		logger:  logger.With("component", "remote-server"),
		config:  config,
	}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return domain.NewExecutionError("remote server already started", domain.ErrAlreadyStarted)
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			UnaryRecoveryInterceptor(s.logger),
			UnaryLoggingInterceptor(s.logger),
		),
	}
	if s.config.MaxMsgSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(s.config.MaxMsgSize),
			grpc.MaxSendMsgSize(s.config.MaxMsgSize),
		)
	}

	s.server = grpc.NewServer(opts...)
	s.server.RegisterService(&pluginServiceDesc, s)

	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)

	s.started = true
	server := s.server
	s.mu.Unlock()

	s.logger.Info("remote plugin server listening", "address", lis.Addr().String(), "plugins", len(s.catalog.List()))
	if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return domain.NewNetworkError("remote server stopped", err)
	}
	return nil
}

func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.health.Shutdown()
	s.server.GracefulStop()
	s.started = false
	s.logger.Info("remote plugin server stopped")
}

func (s *Server) Execute(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	plugin, err := s.catalog.Resolve(req.PluginID)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "unknown plugin %q", req.PluginID)
	}

	result, err := plugin.Execute(domain.WithExecutionContext(ctx, &req.Context), req)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := encodeResult(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	ids := s.catalog.List()
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return list, nil
}

// toStatus keeps the retry classification of a plugin error on the wire.
func toStatus(err error) error {
	var nonRetryable *ports.NonRetryableError
	var panicErr *domain.NodePanicError
	switch {
	case errors.As(err, &panicErr):
		return status.Error(codes.Internal, err.Error())
	case errors.As(err, &nonRetryable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
