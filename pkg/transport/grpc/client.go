package grpc

import (
    "context"
    "crypto/tls"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/clusterview/pkg/transport"
)

// Client calls member Node services and monitor Monitor services over gRPC
// with the JSON codec. Connections are cached per address.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config

    mu sync.Mutex
    cm *ConnManager
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{timeout: timeout}
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(ctx, target, opts...)
}

// getConn returns a managed connection, creating the manager on first use.
func (c *Client) getConn(ctx context.Context, addr string) (*grpc.ClientConn, func(), error) {
    c.mu.Lock()
    if c.cm == nil {
        c.cm = NewConnManager(30*time.Second, c.dialCtx)
    }
    cm := c.cm
    c.mu.Unlock()
    return cm.Get(ctx, addr)
}

func (c *Client) invokeBlob(ctx context.Context, addr, method string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, rel, err := c.getConn(cctx, addr)
    if err != nil { return nil, err }
    defer rel()
    out := new(blob)
    if err := cc.Invoke(cctx, method, &empty{}, out); err != nil { return nil, err }
    return out.Data, nil
}

// FetchState calls Node/GetClusterState on a member.
func (c *Client) FetchState(ctx context.Context, addr string) ([]byte, error) {
    return c.invokeBlob(ctx, addr, methodGetClusterState)
}

// GetSnapshot calls Monitor/Snapshot on a monitor.
func (c *Client) GetSnapshot(ctx context.Context, addr string) ([]byte, error) {
    return c.invokeBlob(ctx, addr, methodSnapshot)
}

// GetSummary calls Monitor/Summary on a monitor.
func (c *Client) GetSummary(ctx context.Context, addr string) ([]byte, error) {
    return c.invokeBlob(ctx, addr, methodSummary)
}

// Close releases every cached connection.
func (c *Client) Close() {
    c.mu.Lock()
    cm := c.cm
    c.cm = nil
    c.mu.Unlock()
    if cm != nil { cm.Close() }
}

var (
    _ transport.StateFetcher = (*Client)(nil)
    _ transport.RPCClient    = (*Client)(nil)
)
