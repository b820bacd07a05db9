package peersim

import (
    "context"
    "errors"
    "io"
    "log"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/poller"
    mgmtgrpc "github.com/amirimatin/clusterview/pkg/transport/grpc"
)

func TestHealthyView(t *testing.T) {
    c := New()
    for slot := 0; slot < observation.ClusterSize; slot++ {
        id := observation.NodeID(slot)
        b, err := c.Document(id)
        if err != nil { t.Fatalf("document %d: %v", id, err) }
        r, err := poller.DecodeReport(b)
        if err != nil { t.Fatalf("decode %d: %v", id, err) }
        if r.ObserverID != id || r.ClaimsLeader != (id == 2551) || r.ClaimsOldest != (id == 2551) {
            t.Fatalf("unexpected claims for %d: %+v", id, r)
        }
        if r.UpCount() != 9 || r.OldestID() != 2551 {
            t.Fatalf("node %d: up=%d oldest=%d", id, r.UpCount(), r.OldestID())
        }
    }
}

func TestKillDownRestart(t *testing.T) {
    c := New()
    if err := c.Kill(2551); err != nil { t.Fatal(err) }
    if _, err := c.Document(2551); !errors.Is(err, ErrStopped) {
        t.Fatalf("err = %v, want ErrStopped", err)
    }
    v, err := c.View(2552)
    if err != nil { t.Fatal(err) }
    if !*v.Leader || !*v.Oldest {
        t.Fatalf("2552 should take over leader and oldest")
    }
    if *v.Nodes[0].MemberState != observation.MemberStateUnreachable {
        t.Fatalf("killed node seen as %s", *v.Nodes[0].MemberState)
    }

    if err := c.Down(2551); err != nil { t.Fatal(err) }
    v, _ = c.View(2552)
    if *v.Nodes[0].State != string(observation.StateDown) {
        t.Fatalf("downed node seen as %s", *v.Nodes[0].State)
    }

    if err := c.Start(2551); err != nil { t.Fatal(err) }
    v, _ = c.View(2551)
    if !*v.Leader || *v.Oldest {
        t.Fatalf("restarted 2551 leads by id but is the youngest")
    }
    if !v.Nodes[1].Oldest {
        t.Fatalf("2552 should be oldest after 2551 restarted")
    }
}

func TestIsolatedMemberSeesMinority(t *testing.T) {
    c := New()
    if err := c.Isolate(2555, true); err != nil { t.Fatal(err) }
    b, _ := c.Document(2555)
    r, err := poller.DecodeReport(b)
    if err != nil { t.Fatal(err) }
    if !r.ClaimsLeader || r.UpCount() != 1 {
        t.Fatalf("isolated member: leader=%v up=%d", r.ClaimsLeader, r.UpCount())
    }
    b, _ = c.Document(2551)
    r, _ = poller.DecodeReport(b)
    if !r.ClaimsLeader || r.UpCount() != 8 {
        t.Fatalf("majority leader: leader=%v up=%d", r.ClaimsLeader, r.UpCount())
    }
}

func TestUnknownNode(t *testing.T) {
    c := New()
    if err := c.Kill(42); !errors.Is(err, ErrUnknownNode) {
        t.Fatalf("err = %v, want ErrUnknownNode", err)
    }
}

func TestHTTPHandlers(t *testing.T) {
    c := New()
    node := httptest.NewServer(c.Handler(2553))
    defer node.Close()
    admin := httptest.NewServer(c.AdminHandler())
    defer admin.Close()

    get := func(url string) int {
        resp, err := http.Get(url)
        if err != nil { t.Fatalf("GET %s: %v", url, err) }
        resp.Body.Close()
        return resp.StatusCode
    }
    if code := get(node.URL + "/cluster-state"); code != http.StatusOK {
        t.Fatalf("status = %d", code)
    }
    if code := get(admin.URL + "/kill?id=2553"); code != http.StatusOK {
        t.Fatalf("kill = %d", code)
    }
    if code := get(node.URL + "/cluster-state"); code != http.StatusServiceUnavailable {
        t.Fatalf("stopped node status = %d, want 503", code)
    }
    if code := get(admin.URL + "/kill?id=x"); code != http.StatusBadRequest {
        t.Fatalf("bad id = %d, want 400", code)
    }
}

func TestServeGRPC(t *testing.T) {
    c := New()
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    addrs, err := c.Serve(ctx, ServeOptions{PortOffset: -1, Proto: "grpc", Logger: log.New(io.Discard, "", 0)})
    if err != nil { t.Fatalf("serve: %v", err) }
    if len(addrs) != observation.ClusterSize { t.Fatalf("addrs = %d", len(addrs)) }

    cli := mgmtgrpc.NewClient(2 * time.Second)
    defer cli.Close()
    b, err := cli.FetchState(ctx, addrs[4])
    if err != nil { t.Fatalf("fetch: %v", err) }
    r, err := poller.DecodeReport(b)
    if err != nil { t.Fatal(err) }
    if r.ObserverID != 2555 {
        t.Fatalf("observer = %d, want 2555", r.ObserverID)
    }
}
