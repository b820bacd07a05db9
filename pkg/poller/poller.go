// Package poller drives the aggregator: on every tick it sweeps stale
// observations, fetches every member's status document concurrently and
// folds each answer into the aggregator from a single writer goroutine.
package poller

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/discovery"
    "github.com/amirimatin/clusterview/pkg/internal/logutil"
    "github.com/amirimatin/clusterview/pkg/observability/metrics"
    "github.com/amirimatin/clusterview/pkg/observability/tracing"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/transport"
)

const (
    DefaultInterval = 200 * time.Millisecond
    DefaultTimeout  = time.Second
)

// Options configures a Poller.
type Options struct {
    Aggregator *aggregator.Aggregator
    Fetcher    transport.StateFetcher
    Discovery  discovery.Discovery

    // Interval is the tick period; zero means DefaultInterval.
    Interval time.Duration
    // Timeout bounds each fetch; zero means DefaultTimeout.
    Timeout time.Duration

    Logger *log.Logger

    // Publish receives a snapshot each time every request of a round has
    // completed or failed. It runs on the writer goroutine and must not block.
    Publish func(aggregator.Snapshot)
}

// Validate checks required fields and ranges.
func (o Options) Validate() error {
    switch {
    case o.Aggregator == nil:
        return fmt.Errorf("%w: aggregator is required", ErrInvalidOptions)
    case o.Fetcher == nil:
        return fmt.Errorf("%w: fetcher is required", ErrInvalidOptions)
    case o.Discovery == nil:
        return fmt.Errorf("%w: discovery is required", ErrInvalidOptions)
    case o.Interval < 0 || o.Timeout < 0:
        return fmt.Errorf("%w: interval and timeout must not be negative", ErrInvalidOptions)
    }
    return nil
}

// Poller owns the poll loop. All aggregator writes happen on the goroutine
// running Run; fetches run on their own goroutines and report back through
// a channel.
type Poller struct {
    opts    Options
    results chan result

    // writer goroutine state
    round       uint64
    pending     map[uint64]int
    failing     map[string]bool
    noEndpoints bool
}

type result struct {
    round    uint64
    endpoint string
    report   aggregator.Report
    err      error
    took     time.Duration
}

// New applies defaults to opts, validates them and returns an idle Poller.
func New(opts Options) (*Poller, error) {
    if opts.Interval == 0 { opts.Interval = DefaultInterval }
    if opts.Timeout == 0 { opts.Timeout = DefaultTimeout }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if err := opts.Validate(); err != nil { return nil, err }
    return &Poller{
        opts:    opts,
        results: make(chan result, 4*observation.ClusterSize),
        pending: make(map[uint64]int),
        failing: make(map[string]bool),
    }, nil
}

// Run polls until ctx is done. The first round starts immediately. Requests
// still in flight when a new tick fires are not cancelled; their answers are
// absorbed whenever they arrive.
func (p *Poller) Run(ctx context.Context) error {
    ticker := time.NewTicker(p.opts.Interval)
    defer ticker.Stop()
    p.startRound(ctx)
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-ticker.C:
            p.startRound(ctx)
        case res := <-p.results:
            p.handle(res)
        }
    }
}

func (p *Poller) startRound(ctx context.Context) {
    p.round++
    round := p.round
    rctx, end := tracing.StartSpan(ctx, "poll.round", attribute.Int64("round", int64(round)))
    defer end()
    metrics.Rounds.Inc()

    sw := p.opts.Aggregator.Sweep()
    metrics.ObserveSweep(sw.Summary, sw.Members)
    if sw.Summary > 0 {
        logutil.Debugf(p.opts.Logger, "poller: round %d: %d summary nodes went stale", round, sw.Summary)
    }

    eps, err := p.endpoints(rctx)
    metrics.Endpoints.Set(float64(len(eps)))
    if len(eps) == 0 {
        if err == nil { err = ErrNoEndpoints }
        if !p.noEndpoints {
            logutil.Warnf(p.opts.Logger, "poller: round %d: nothing to poll: %v", round, err)
            p.noEndpoints = true
        }
        p.fetchFailed()
        p.publish()
        return
    }
    if p.noEndpoints {
        logutil.Infof(p.opts.Logger, "poller: polling %d endpoints", len(eps))
        p.noEndpoints = false
    }
    if err != nil {
        logutil.Debugf(p.opts.Logger, "poller: round %d: discovery: %v", round, err)
    }

    p.pending[round] = len(eps)
    for _, ep := range eps {
        go p.fetch(rctx, round, ep)
    }
}

func (p *Poller) endpoints(ctx context.Context) ([]string, error) {
    cctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
    defer cancel()
    eps, err := p.opts.Discovery.Endpoints(cctx)
    return discovery.Limit(eps), err
}

// fetch runs on its own goroutine and never touches the aggregator.
func (p *Poller) fetch(ctx context.Context, round uint64, ep string) {
    cctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
    defer cancel()
    cctx, end := tracing.StartSpan(cctx, "poll.fetch", attribute.String("endpoint", ep))
    start := time.Now()
    res := result{round: round, endpoint: ep}
    b, err := p.opts.Fetcher.FetchState(cctx, ep)
    if err == nil {
        res.report, err = DecodeReport(b)
    }
    res.err = err
    res.took = time.Since(start)
    tracing.Fail(cctx, err)
    end()

    select {
    case p.results <- res:
    case <-ctx.Done():
    }
}

func (p *Poller) handle(res result) {
    if res.err == nil {
        out, err := p.opts.Aggregator.Absorb(res.report)
        if err != nil {
            res.err = fmt.Errorf("%w: %w", ErrMalformedReport, err)
        } else {
            metrics.ObserveOutcome(out)
            if out.LeaderChanged() {
                logutil.Infof(p.opts.Logger, "poller: leader %d -> %d (reported by %s)", out.PrevLeaderID, out.LeaderID, res.endpoint)
            }
        }
    }
    p.observe(res)
    if res.err != nil {
        p.fetchFailed()
    }

    if n, ok := p.pending[res.round]; ok {
        if n--; n > 0 {
            p.pending[res.round] = n
        } else {
            delete(p.pending, res.round)
            p.publish()
        }
    }
}

// observe records metrics and logs only transitions between healthy and
// failing for each endpoint.
func (p *Poller) observe(res result) {
    switch {
    case res.err == nil:
        metrics.ObserveFetch(res.endpoint, "ok", res.took)
        if p.failing[res.endpoint] {
            logutil.Infof(p.opts.Logger, "poller: %s: recovered", res.endpoint)
        }
        p.failing[res.endpoint] = false
    default:
        label := "error"
        if errors.Is(res.err, ErrMalformedReport) { label = "invalid" }
        metrics.ObserveFetch(res.endpoint, label, res.took)
        if !p.failing[res.endpoint] {
            logutil.Warnf(p.opts.Logger, "poller: %s: fetch failed: %v", res.endpoint, res.err)
        } else {
            logutil.Debugf(p.opts.Logger, "poller: %s: still failing: %v", res.endpoint, res.err)
        }
        p.failing[res.endpoint] = true
    }
}

func (p *Poller) fetchFailed() {
    if p.opts.Aggregator.FetchFailed() {
        metrics.AllDownResets.Inc()
        logutil.Warnf(p.opts.Logger, "poller: every node offline, leader and oldest cleared")
    }
}

func (p *Poller) publish() {
    snap := p.opts.Aggregator.Snapshot()
    metrics.ObserveSnapshot(snap)
    if p.opts.Publish != nil {
        p.opts.Publish(snap)
    }
}
