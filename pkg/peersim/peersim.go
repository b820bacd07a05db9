// Package peersim simulates the nine cluster members: each one serves its own
// view of the cluster at /cluster-state (HTTP) or through the Node gRPC
// service. It backs the demo command and end-to-end tests.
package peersim

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net"
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/amirimatin/clusterview/pkg/internal/logutil"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/transport"
    mgmtgrpc "github.com/amirimatin/clusterview/pkg/transport/grpc"
)

var (
    ErrUnknownNode = errors.New("peersim: unknown node")
    ErrStopped     = errors.New("peersim: node stopped")
)

// seed nodes of the simulated cluster
var seeds = map[int]bool{observation.NodeID(0): true, observation.NodeID(1): true}

type member struct {
    alive    bool
    downed   bool
    isolated bool
    started  uint64
}

// Cluster is the shared truth every simulated member derives its view from.
type Cluster struct {
    mu    sync.Mutex
    nodes [observation.ClusterSize]member
    seq   uint64
}

// New returns a cluster with every member running, started in id order.
func New() *Cluster {
    c := &Cluster{}
    for i := range c.nodes {
        c.seq++
        c.nodes[i] = member{alive: true, started: c.seq}
    }
    return c
}

func (c *Cluster) member(id int) (*member, error) {
    slot, ok := observation.Slot(id)
    if !ok { return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id) }
    return &c.nodes[slot], nil
}

func (c *Cluster) update(id int, f func(*member)) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    m, err := c.member(id)
    if err != nil { return err }
    f(m)
    return nil
}

// Kill stops a member; the others see it unreachable until Down is called.
func (c *Cluster) Kill(id int) error {
    return c.update(id, func(m *member) { m.alive = false })
}

// Down marks a stopped member as removed; the others report it down.
func (c *Cluster) Down(id int) error {
    return c.update(id, func(m *member) {
        if !m.alive { m.downed = true }
    })
}

// Start (re)starts a member. A restarted member is the youngest.
func (c *Cluster) Start(id int) error {
    return c.update(id, func(m *member) {
        if m.alive { return }
        c.seq++
        *m = member{alive: true, started: c.seq}
    })
}

// Isolate cuts a member off from all others (or heals it). An isolated member
// still answers requests, with a view in which it is alone.
func (c *Cluster) Isolate(id int, on bool) error {
    return c.update(id, func(m *member) { m.isolated = on })
}

func (c *Cluster) sees(observer, subject int) bool {
    if observer == subject { return true }
    o, s := c.nodes[observer], c.nodes[subject]
    return s.alive && !s.isolated && !o.isolated
}

// View returns the status document member id would serve.
func (c *Cluster) View(id int) (transport.StateDocument, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    self, ok := observation.Slot(id)
    if !ok { return transport.StateDocument{}, fmt.Errorf("%w: %d", ErrUnknownNode, id) }
    if !c.nodes[self].alive { return transport.StateDocument{}, fmt.Errorf("%w: %d", ErrStopped, id) }

    leader, oldest := -1, -1
    for s := range c.nodes {
        if !c.sees(self, s) { continue }
        if leader < 0 { leader = s }
        if oldest < 0 || c.nodes[s].started < c.nodes[oldest].started { oldest = s }
    }
    doc := transport.StateDocument{SelfPort: ptr(id), Leader: ptr(leader == self), Oldest: ptr(oldest == self)}
    for s := range c.nodes {
        st, ms := string(observation.StateUp), observation.MemberStateUp
        switch {
        case c.sees(self, s):
        case c.nodes[s].downed:
            st, ms = string(observation.StateDown), "down"
        default:
            st, ms = string(observation.StateUnreachable), observation.MemberStateUnreachable
        }
        nid := observation.NodeID(s)
        doc.Nodes = append(doc.Nodes, transport.NodeDocument{
            Port:        ptr(nid),
            State:       ptr(st),
            MemberState: ptr(ms),
            Leader:      s == leader,
            Oldest:      s == oldest,
            SeedNode:    seeds[nid],
        })
    }
    return doc, nil
}

// Document returns the encoded status document of member id.
func (c *Cluster) Document(id int) ([]byte, error) {
    doc, err := c.View(id)
    if err != nil { return nil, err }
    return json.Marshal(doc)
}

func ptr[T any](v T) *T { return &v }

// Handler serves member id's document at /cluster-state. A stopped member
// answers 503.
func (c *Cluster) Handler(id int) http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("/cluster-state", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        b, err := c.Document(id)
        if err != nil { http.Error(w, err.Error(), http.StatusServiceUnavailable); return }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write(b)
    })
    return mux
}

// AdminHandler exposes /kill, /start, /down and /isolate (all taking ?id=,
// isolate also ?on=false to heal) to drive scenarios from outside.
func (c *Cluster) AdminHandler() http.Handler {
    mux := http.NewServeMux()
    op := func(f func(int, *http.Request) error) http.HandlerFunc {
        return func(w http.ResponseWriter, r *http.Request) {
            id, err := strconv.Atoi(r.URL.Query().Get("id"))
            if err != nil { http.Error(w, "bad id", http.StatusBadRequest); return }
            if err := f(id, r); err != nil { http.Error(w, err.Error(), http.StatusBadRequest); return }
            _, _ = w.Write([]byte("ok\n"))
        }
    }
    mux.Handle("/kill", op(func(id int, _ *http.Request) error { return c.Kill(id) }))
    mux.Handle("/start", op(func(id int, _ *http.Request) error { return c.Start(id) }))
    mux.Handle("/down", op(func(id int, _ *http.Request) error { return c.Down(id) }))
    mux.Handle("/isolate", op(func(id int, r *http.Request) error { return c.Isolate(id, r.URL.Query().Get("on") != "false") }))
    return mux
}

// ServeOptions configures Serve.
type ServeOptions struct {
    // Host to bind; empty means 127.0.0.1.
    Host string
    // PortOffset is added to each node id to get its port. A negative offset
    // binds ephemeral ports.
    PortOffset int
    // Proto is "http" (default) or "grpc".
    Proto  string
    Logger *log.Logger
}

// Serve starts one server per member and returns their addresses in slot
// order. Servers stop when ctx is done.
func (c *Cluster) Serve(ctx context.Context, opts ServeOptions) ([]string, error) {
    if opts.Host == "" { opts.Host = "127.0.0.1" }
    if opts.Logger == nil { opts.Logger = log.Default() }
    addrs := make([]string, 0, observation.ClusterSize)
    for slot := 0; slot < observation.ClusterSize; slot++ {
        id := observation.NodeID(slot)
        port := 0
        if opts.PortOffset >= 0 { port = id + opts.PortOffset }
        addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
        if opts.Proto == "grpc" {
            s := mgmtgrpc.NewNodeServer(addr, func(context.Context) ([]byte, error) { return c.Document(id) })
            if err := s.Start(ctx); err != nil { return nil, err }
            addrs = append(addrs, s.Addr())
            continue
        }
        ln, err := net.Listen("tcp", addr)
        if err != nil { return nil, err }
        srv := &http.Server{Handler: c.Handler(id), ReadHeaderTimeout: 5 * time.Second}
        go func() {
            if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
                logutil.Errorf(opts.Logger, "peersim: node %d: %v", id, err)
            }
        }()
        go func() {
            <-ctx.Done()
            sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
            defer cancel()
            _ = srv.Shutdown(sctx)
        }()
        addrs = append(addrs, ln.Addr().String())
    }
    return addrs, nil
}
