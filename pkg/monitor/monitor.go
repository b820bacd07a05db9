// Package monitor is the embeddable entry point: it wires the poll loop, the
// aggregator, the management server and the journal together.
package monitor

import (
    "context"
    "encoding/json"
    "sync"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/internal/logutil"
    "github.com/amirimatin/clusterview/pkg/observability/metrics"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/poller"
    "github.com/amirimatin/clusterview/pkg/transport"
)

// Facade exposes the high-level API for consumers.
type Facade interface {
    Start(ctx context.Context) error
    Snapshot() aggregator.Snapshot
    Subscribe(ctx context.Context) <-chan aggregator.Event
    Watch(ctx context.Context) <-chan aggregator.Snapshot
    Stop(ctx context.Context) error
}

// Monitor polls the cluster and serves the merged view.
type Monitor struct {
    opts Options
    agg  *aggregator.Aggregator
    poll *poller.Poller
    sb   snapshotBus

    mu   sync.RWMutex
    last *aggregator.Snapshot
    run  struct {
        started bool
        closed  bool
        cancel  context.CancelFunc
        wg      sync.WaitGroup
    }
}

// New constructs a monitor from validated options. It performs no network
// activity; call Start to begin polling.
func New(opts Options) (*Monitor, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    m := &Monitor{opts: opts}
    m.agg = aggregator.New(aggregator.Options{StaleAfter: opts.StaleAfter, Now: opts.Now})
    p, err := poller.New(poller.Options{
        Aggregator: m.agg,
        Fetcher:    opts.Fetcher,
        Discovery:  opts.Discovery,
        Interval:   opts.Interval,
        Timeout:    opts.Timeout,
        Logger:     opts.Logger,
        Publish:    m.publish,
    })
    if err != nil { return nil, err }
    m.poll = p
    return m, nil
}

// Close is a convenience alias for Stop with a background context.
func (m *Monitor) Close() error {
    return m.Stop(context.Background())
}

// Start launches the management server, the journal recorder and the poll
// loop. Everything stops when ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.run.closed { return ErrClosed }
    if m.run.started { return nil }
    m.run.started = true
    metrics.Register()

    rctx, cancel := context.WithCancel(ctx)
    m.run.cancel = cancel

    if m.opts.RPCServer != nil {
        if err := m.opts.RPCServer.Start(rctx, m.Handlers()); err != nil {
            cancel()
            return err
        }
        logutil.Infof(m.opts.Logger, "management endpoint listening at %s (snapshot/summary/convergence/metrics/healthz)", m.opts.RPCServer.Addr())
    }
    // subscriptions are taken before the first round so no event is missed
    if m.opts.Journal != nil {
        events := m.agg.SubscribeBuffered(rctx, journalBuffer, m.journalDropped)
        m.run.wg.Add(1)
        go func() {
            defer m.run.wg.Done()
            m.opts.Journal.Record(rctx, events, m.opts.Logger)
        }()
    }
    events := m.agg.Subscribe(rctx)
    m.run.wg.Add(2)
    go func() {
        defer m.run.wg.Done()
        m.eventsLoop(rctx, events)
    }()
    go func() {
        defer m.run.wg.Done()
        _ = m.poll.Run(rctx)
    }()
    logutil.Infof(m.opts.Logger, "monitor started (interval=%s stale-after=%s)", m.opts.Interval, m.agg.StaleAfter())
    return nil
}

const journalBuffer = 256

// journalDropped runs on the poller's writer goroutine when the journal
// recorder is too slow to take ev.
func (m *Monitor) journalDropped(ev aggregator.Event) {
    metrics.JournalAppends.WithLabelValues("dropped").Inc()
    logutil.Warnf(m.opts.Logger, "journal: recorder behind, %s event not recorded", ev.Type)
}

func (m *Monitor) eventsLoop(ctx context.Context, events <-chan aggregator.Event) {
    for {
        select {
        case <-ctx.Done():
            return
        case ev, ok := <-events:
            if !ok { return }
            switch ev.Type {
            case aggregator.EventLeaderCleared:
                logutil.Warnf(m.opts.Logger, "leader cleared (was %d)", ev.PrevLeaderID)
            case aggregator.EventOldestChanged:
                logutil.Infof(m.opts.Logger, "oldest %d -> %d", ev.PrevOldestID, ev.OldestID)
            case aggregator.EventDivergenceChanged:
                if ev.Divergence {
                    logutil.Warnf(m.opts.Logger, "cluster views diverged: some node is unreachable")
                } else {
                    logutil.Infof(m.opts.Logger, "cluster views converged")
                }
            }
            if m.opts.OnEvent != nil { m.opts.OnEvent(ev) }
        }
    }
}

// Stop cancels the poll loop, waits for internal goroutines and shuts the
// management server down. It is safe to call more than once.
func (m *Monitor) Stop(ctx context.Context) error {
    m.mu.Lock()
    if m.run.closed {
        m.mu.Unlock()
        return nil
    }
    m.run.closed = true
    cancel := m.run.cancel
    m.mu.Unlock()

    if cancel != nil { cancel() }
    m.run.wg.Wait()
    if m.opts.RPCServer != nil {
        return m.opts.RPCServer.Stop(ctx)
    }
    return nil
}

// publish runs on the poller's writer goroutine.
func (m *Monitor) publish(s aggregator.Snapshot) {
    m.mu.Lock()
    m.last = &s
    m.mu.Unlock()
    m.sb.publish(s)
    if m.opts.OnPublish != nil { m.opts.OnPublish(s) }
}

// Snapshot returns the most recently published snapshot, or the current
// aggregator state before the first round completes.
func (m *Monitor) Snapshot() aggregator.Snapshot {
    m.mu.RLock()
    last := m.last
    m.mu.RUnlock()
    if last != nil { return *last }
    return m.agg.Snapshot()
}

// Subscribe returns summary change events (leader, oldest, divergence).
// Delivery is best-effort.
func (m *Monitor) Subscribe(ctx context.Context) <-chan aggregator.Event {
    return m.agg.Subscribe(ctx)
}

// Addr returns the management server address, or "" when none is configured.
func (m *Monitor) Addr() string {
    if m.opts.RPCServer == nil { return "" }
    return m.opts.RPCServer.Addr()
}

// Convergence is the payload of the convergence endpoint.
type Convergence struct {
    Divergence  bool  `json:"divergence"`
    Unreachable []int `json:"unreachable,omitempty"`
}

func convergenceOf(s aggregator.Snapshot) Convergence {
    c := Convergence{Divergence: s.Summary.Divergence}
    for _, o := range s.Summary.Nodes {
        if o.MemberState == observation.MemberStateUnreachable {
            c.Unreachable = append(c.Unreachable, o.NodeID)
        }
    }
    return c
}

// Handlers returns the management handlers backed by this monitor.
func (m *Monitor) Handlers() transport.Handlers {
    return transport.Handlers{
        Snapshot:    func(context.Context) ([]byte, error) { return json.Marshal(m.Snapshot()) },
        Summary:     func(context.Context) ([]byte, error) { return json.Marshal(m.Snapshot().Summary) },
        Convergence: func(context.Context) ([]byte, error) { return json.Marshal(convergenceOf(m.Snapshot())) },
        Watch:       m.watchJSON,
    }
}

func (m *Monitor) watchJSON(ctx context.Context) <-chan []byte {
    snaps := m.Watch(ctx)
    out := make(chan []byte, 1)
    go func() {
        defer close(out)
        for s := range snaps {
            b, err := json.Marshal(s)
            if err != nil {
                logutil.Errorf(m.opts.Logger, "watch: encode snapshot: %v", err)
                continue
            }
            select {
            case out <- b:
            case <-ctx.Done():
                return
            }
        }
    }()
    return out
}

var _ Facade = (*Monitor)(nil)
