//go:build integration

package bootstrap

import (
    "context"
    "encoding/json"
    "io"
    "log"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/journal"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/peersim"
    mgmtgrpc "github.com/amirimatin/clusterview/pkg/transport/grpc"
)

func waitFor(t *testing.T, snaps <-chan aggregator.Snapshot, what string, ok func(aggregator.Snapshot) bool) aggregator.Snapshot {
    t.Helper()
    deadline := time.After(15 * time.Second)
    for {
        select {
        case s := <-snaps:
            if ok(s) { return s }
        case <-deadline:
            t.Fatalf("timed out waiting for %s", what)
        }
    }
}

func startSim(t *testing.T, ctx context.Context, proto string) (*peersim.Cluster, []string) {
    t.Helper()
    sim := peersim.New()
    addrs, err := sim.Serve(ctx, peersim.ServeOptions{PortOffset: -1, Proto: proto, Logger: log.New(io.Discard, "", 0)})
    if err != nil { t.Fatalf("serve: %v", err) }
    return sim, addrs
}

func TestFailoverAndAllDown(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()
    sim, addrs := startSim(t, ctx, ProtoHTTP)

    cfg := Defaults()
    cfg.Logger = log.New(io.Discard, "", 0)
    cfg.DiscoveryKind, cfg.EndpointsCSV = "static", strings.Join(addrs, ",")
    cfg.MgmtAddr = "127.0.0.1:0"
    cfg.Interval = 50 * time.Millisecond
    cfg.StaleAfter = 500 * time.Millisecond
    cfg.JournalPath = filepath.Join(t.TempDir(), "history.db")
    inst, err := Build(cfg)
    if err != nil { t.Fatalf("build: %v", err) }
    defer inst.Close()
    snaps := inst.Watch(ctx)
    if err := inst.Start(ctx); err != nil { t.Fatalf("start: %v", err) }

    s := waitFor(t, snaps, "initial leader", func(s aggregator.Snapshot) bool { return s.Summary.LeaderID == 2551 })
    if s.Summary.OldestID != 2551 || s.Summary.UpCount != 9 {
        t.Fatalf("unexpected initial summary: %+v", s.Summary)
    }

    // a partitioned member claims leadership of its minority and is ignored
    if err := sim.Isolate(2557, true); err != nil { t.Fatal(err) }
    waitFor(t, snaps, "divergence", func(s aggregator.Snapshot) bool { return s.Summary.Divergence })
    if got := inst.Snapshot().Summary.LeaderID; got != 2551 {
        t.Fatalf("minority leader promoted: %d", got)
    }
    if err := sim.Isolate(2557, false); err != nil { t.Fatal(err) }
    waitFor(t, snaps, "convergence", func(s aggregator.Snapshot) bool { return !s.Summary.Divergence })

    // leader dies; once its summary goes stale the next member takes over
    if err := sim.Kill(2551); err != nil { t.Fatal(err) }
    s = waitFor(t, snaps, "failover", func(s aggregator.Snapshot) bool { return s.Summary.LeaderID == 2552 })
    if s.Summary.OldestID != 2552 {
        t.Fatalf("oldest after failover = %d, want 2552", s.Summary.OldestID)
    }

    for slot := 1; slot < observation.ClusterSize; slot++ {
        if err := sim.Kill(observation.NodeID(slot)); err != nil { t.Fatal(err) }
    }
    waitFor(t, snaps, "all down", func(s aggregator.Snapshot) bool {
        return s.Summary.LeaderID == observation.NoNode && s.Summary.States[observation.StateOffline] == observation.ClusterSize
    })

    if err := inst.Close(); err != nil { t.Fatalf("close: %v", err) }
    j, err := journal.Open(cfg.JournalPath, journal.Options{ReadOnly: true})
    if err != nil { t.Fatal(err) }
    defer j.Close()
    entries, err := j.List(0)
    if err != nil { t.Fatal(err) }
    var types []string
    for _, e := range entries { types = append(types, string(e.Type)) }
    joined := strings.Join(types, ",")
    for _, want := range []string{"leader_changed", "divergence_changed", "oldest_changed", "leader_cleared"} {
        if !strings.Contains(joined, want) {
            t.Fatalf("journal %v lacks %s", types, want)
        }
    }
}

func TestGRPCEndToEnd(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    _, addrs := startSim(t, ctx, ProtoGRPC)

    cfg := Defaults()
    cfg.Logger = log.New(io.Discard, "", 0)
    cfg.DiscoveryKind, cfg.EndpointsCSV = "static", strings.Join(addrs, ",")
    cfg.FetchProto, cfg.MgmtProto = ProtoGRPC, ProtoGRPC
    cfg.MgmtAddr = "127.0.0.1:0"
    cfg.Interval = 50 * time.Millisecond
    inst, err := Run(ctx, cfg)
    if err != nil { t.Fatalf("run: %v", err) }
    defer inst.Close()

    c := mgmtgrpc.NewClient(2 * time.Second)
    defer c.Close()
    wctx, wcancel := context.WithCancel(ctx)
    defer wcancel()
    got := make(chan aggregator.Snapshot, 16)
    go func() {
        _ = c.Watch(wctx, inst.Addr(), func(b []byte) {
            var s aggregator.Snapshot
            if json.Unmarshal(b, &s) == nil {
                select {
                case got <- s:
                default:
                }
            }
        })
    }()
    waitFor(t, got, "leader over watch stream", func(s aggregator.Snapshot) bool {
        return s.Summary.LeaderID == 2551 && s.Summary.UpCount == 9
    })

    b, err := c.GetSummary(ctx, inst.Addr())
    if err != nil { t.Fatalf("summary: %v", err) }
    var sum aggregator.SummarySnapshot
    if err := json.Unmarshal(b, &sum); err != nil { t.Fatal(err) }
    if sum.LeaderID != 2551 || !sum.Online {
        t.Fatalf("unexpected summary: %+v", sum)
    }
}
