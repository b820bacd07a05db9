package httpjson

import (
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/amirimatin/clusterview/pkg/transport"
)

// maxBody bounds any response read by the client.
const maxBody = 1 << 20

// Client is a thin HTTP client for member status documents and for a
// monitor's management API. It supports optional TLS. Fetches are single
// attempts: a failure is reported to the caller, which decides when to try
// again.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{MaxIdleConnsPerHost: 2}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

// FetchState performs GET /cluster-state against a member.
func (c *Client) FetchState(ctx context.Context, addr string) ([]byte, error) {
    return c.get(ctx, addr, "/cluster-state")
}

// GetSnapshot performs GET /snapshot against a monitor.
func (c *Client) GetSnapshot(ctx context.Context, addr string) ([]byte, error) {
    return c.get(ctx, addr, "/snapshot")
}

// GetSummary performs GET /summary against a monitor.
func (c *Client) GetSummary(ctx context.Context, addr string) ([]byte, error) {
    return c.get(ctx, addr, "/summary")
}

func (c *Client) get(ctx context.Context, addr, path string) ([]byte, error) {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    url := fmt.Sprintf("%s://%s%s", scheme, addr, path)
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil { return nil, err }
    req.Header.Set("Accept", "application/json")
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
    if err != nil { return nil, err }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
    }
    return b, nil
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
    Code int
    Body string
}

func (e *StatusError) Error() string {
    if e.Body == "" { return fmt.Sprintf("status %d", e.Code) }
    return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

var (
    _ transport.StateFetcher = (*Client)(nil)
    _ transport.RPCClient    = (*Client)(nil)
)
