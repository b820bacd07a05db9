// Package etcd lists member endpoints registered under a key prefix in etcd.
// Each key holds one endpoint (host:port) as its value; keys are typically
// leased so that departed members disappear on their own.
package etcd

import (
    "context"
    "errors"
    "fmt"
    "log"
    "path"
    "sort"
    "strings"
    "sync"
    "time"

    clientv3 "go.etcd.io/etcd/client/v3"

    "github.com/amirimatin/clusterview/pkg/discovery"
    "github.com/amirimatin/clusterview/pkg/internal/logutil"
)

// DefaultPrefix is where members register themselves.
const DefaultPrefix = "/clusterview/members/"

// Options configures etcd discovery.
type Options struct {
    Endpoints   []string
    Prefix      string
    DialTimeout time.Duration
    // Refresh controls cache staleness; if zero, defaults to 2s.
    Refresh time.Duration
    // RequestTimeout bounds each listing; if zero, defaults to 1s.
    RequestTimeout time.Duration
    // Logger receives the etcd client's own logs.
    Logger *log.Logger
}

// getter is the part of clientv3.KV used for listing.
type getter interface {
    Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

// Discovery lists endpoints under a prefix. Close releases the client when
// it was created by New.
type Discovery struct {
    opts Options
    kv   getter
    cli  *clientv3.Client

    mu    sync.Mutex
    last  time.Time
    cache []string
}

// NewClient dials etcd with the given endpoints. The client logs through
// logger in the process-wide format.
func NewClient(endpoints []string, dialTimeout time.Duration, logger *log.Logger) (*clientv3.Client, error) {
    if len(endpoints) == 0 { return nil, errors.New("etcd discovery: no etcd endpoints") }
    if dialTimeout <= 0 { dialTimeout = 5 * time.Second }
    return clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: dialTimeout, Logger: logutil.Zap(logger)})
}

// New dials etcd and returns a Discovery backed by it.
func New(opts Options) (*Discovery, error) {
    cli, err := NewClient(opts.Endpoints, opts.DialTimeout, opts.Logger)
    if err != nil { return nil, err }
    d := newWithKV(opts, cli)
    d.cli = cli
    return d, nil
}

func newWithKV(opts Options, kv getter) *Discovery {
    if opts.Prefix == "" { opts.Prefix = DefaultPrefix }
    if !strings.HasSuffix(opts.Prefix, "/") { opts.Prefix += "/" }
    if opts.Refresh <= 0 { opts.Refresh = 2 * time.Second }
    if opts.RequestTimeout <= 0 { opts.RequestTimeout = time.Second }
    return &Discovery{opts: opts, kv: kv}
}

func (d *Discovery) Endpoints(ctx context.Context) ([]string, error) {
    d.mu.Lock()
    defer d.mu.Unlock()
    if !d.last.IsZero() && time.Since(d.last) < d.opts.Refresh {
        return append([]string(nil), d.cache...), nil
    }
    cctx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
    defer cancel()
    resp, err := d.kv.Get(cctx, d.opts.Prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
    if err != nil {
        return append([]string(nil), d.cache...), fmt.Errorf("etcd discovery: list %s: %w", d.opts.Prefix, err)
    }
    seen := make(map[string]struct{}, len(resp.Kvs))
    out := make([]string, 0, len(resp.Kvs))
    for _, kv := range resp.Kvs {
        ep := strings.TrimSpace(string(kv.Value))
        if ep == "" { continue }
        if _, ok := seen[ep]; ok { continue }
        seen[ep] = struct{}{}
        out = append(out, ep)
    }
    sort.Strings(out)
    d.cache = out
    d.last = time.Now()
    return append([]string(nil), out...), nil
}

// Close closes the etcd client created by New.
func (d *Discovery) Close() error {
    if d.cli == nil { return nil }
    return d.cli.Close()
}

// Register stores addr under prefix/id with a lease of ttl seconds and keeps
// the lease alive until ctx is done. It is used by simulated members and by
// members that announce themselves.
func Register(ctx context.Context, cli *clientv3.Client, prefix, id, addr string, ttl int64) (clientv3.LeaseID, error) {
    if prefix == "" { prefix = DefaultPrefix }
    lease, err := cli.Grant(ctx, ttl)
    if err != nil { return 0, err }
    if _, err := cli.Put(ctx, path.Join(prefix, id), addr, clientv3.WithLease(lease.ID)); err != nil {
        return 0, err
    }
    ka, err := cli.KeepAlive(ctx, lease.ID)
    if err != nil { return 0, err }
    go func() {
        for range ka {
        }
    }()
    return lease.ID, nil
}

var _ discovery.Discovery = (*Discovery)(nil)
