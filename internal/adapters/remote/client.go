package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eleven-am/routines/internal/adapters/circuit_breaker"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// Client is a plugin registry backed by a remote Server. The plugin list is
// cached and refreshed when an unknown id is resolved.
type Client struct {
	conn        *grpc.ClientConn
	logger      *slog.Logger
	callTimeout time.Duration
	breaker     *circuit_breaker.Breaker

	mu      sync.RWMutex
	plugins map[string]bool
}

// Dial connects to the server at cfg.Address and loads its plugin list.
// Extra dial options are appended after the defaults.
func Dial(ctx context.Context, cfg domain.RemoteConfig, logger *slog.Logger, extra ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, domain.NewConfigError("remote.address", domain.ErrInvalidConfig)
	}

	logger = logger.With("component", "remote-client", "address", cfg.Address)
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(UnaryClientLoggingInterceptor(logger)),
	}
	if cfg.MaxMessageSizeMB > 0 {
		size := cfg.MaxMessageSizeMB << 20
		opts = append(opts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(size),
			grpc.MaxCallSendMsgSize(size),
		))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, domain.NewNetworkError("create remote client", err, domain.WithDetail("address", cfg.Address))
	}

	client := &Client{
		conn:        conn,
		logger:      logger,
		callTimeout: cfg.DialTimeout,
		breaker: circuit_breaker.New(cfg.Address, circuit_breaker.Config{
			FailureThreshold: cfg.BreakerThreshold,
			Interval:         cfg.BreakerInterval,
			IsFailure:        isTransportFailure,
		}, logger),
		plugins: make(map[string]bool),
	}

	if err := client.refresh(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) Resolve(pluginID string) (ports.Plugin, error) {
	if c.has(pluginID) {
		return &remotePlugin{client: c, pluginID: pluginID}, nil
	}

	ctx, cancel := c.callContext(context.Background())
	defer cancel()
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if !c.has(pluginID) {
		return nil, domain.NewPluginError("plugin not offered by remote server", domain.ErrUnknownPlugin,
			domain.WithComponent("remote.Client"),
			domain.WithDetail("plugin_id", pluginID))
	}
	return &remotePlugin{client: c, pluginID: pluginID}, nil
}

func (c *Client) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.SortedKeys(c.plugins)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) has(pluginID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plugins[pluginID]
}

func (c *Client) refresh(ctx context.Context) error {
	list := new(structpb.ListValue)
	if err := c.invoke(ctx, listMethod, &emptypb.Empty{}, list); err != nil {
		return domain.NewNetworkError("list remote plugins", err)
	}

	plugins := make(map[string]bool, len(list.GetValues()))
	for _, v := range list.GetValues() {
		plugins[v.GetStringValue()] = true
	}

	c.mu.Lock()
	c.plugins = plugins
	c.mu.Unlock()

	c.logger.Debug("remote plugin list refreshed", "plugins", len(plugins))
	return nil
}

// invoke calls the server through the breaker. While the breaker is open
// calls fail fast with a retryable network error.
func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.conn.Invoke(ctx, method, in, out)
	})
	if errors.Is(err, circuit_breaker.ErrCircuitBreakerOpen) || errors.Is(err, circuit_breaker.ErrTooManyRequests) {
		return domain.NewNetworkError("remote plugin server unavailable", err,
			domain.WithComponent("remote.Client"),
			domain.WithDetail("breaker_state", c.breaker.State().String()))
	}
	return err
}

// BreakerState reports whether calls to the server are currently allowed.
func (c *Client) BreakerState() circuit_breaker.State {
	return c.breaker.State()
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout > 0 {
		return context.WithTimeout(ctx, c.callTimeout)
	}
	return context.WithCancel(ctx)
}

type remotePlugin struct {
	client   *Client
	pluginID string
}

// Execute forwards the call. Heartbeats are not relayed; the activity's
// start-to-close timeout travels as the call deadline.
func (p *remotePlugin) Execute(ctx context.Context, req ports.PluginRequest) (*domain.PluginResult, error) {
	req.PluginID = p.pluginID
	msg, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := p.client.invoke(ctx, executeMethod, msg, out); err != nil {
		return nil, fromStatus(err)
	}
	return decodeResult(out)
}

// fromStatus restores the retry classification the server encoded.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	remoteErr := errors.New(st.Message())
	switch st.Code() {
	case codes.NotFound:
		return ports.NonRetryable(domain.NewPluginError(st.Message(), domain.ErrUnknownPlugin))
	case codes.FailedPrecondition, codes.InvalidArgument, codes.Internal:
		return ports.NonRetryable(remoteErr)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.Unavailable:
		return domain.NewNetworkError(st.Message(), err)
	default:
		return remoteErr
	}
}

// isTransportFailure counts only errors that say the server could not be
// reached. Plugin failures travel over a healthy connection.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	return status.Code(err) == codes.Unavailable
}

var _ ports.PluginCatalog = (*Client)(nil)
