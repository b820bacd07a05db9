package main

import (
    "context"
    "flag"
    "fmt"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strconv"
    "strings"
    "syscall"
    "time"

    "github.com/amirimatin/clusterview/pkg/discovery/etcd"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/peersim"
)

func main() {
    var (
        host       = flag.String("host", "127.0.0.1", "bind host")
        portOffset = flag.Int("port-offset", 7000, "status port = node id + offset")
        proto      = flag.String("proto", "http", "status protocol: http|grpc")
        adminAddr  = flag.String("admin", "127.0.0.1:9550", "admin address (/kill /start /down /isolate ?id=)")
        killCSV    = flag.String("kill", "", "comma-separated node ids stopped at start")
        etcdCSV    = flag.String("etcd", "", "comma-separated etcd endpoints to register members in (optional)")
        etcdPrefix = flag.String("etcd-prefix", etcd.DefaultPrefix, "etcd key prefix")
    )
    flag.Parse()

    ctx, cancel := signalContext()
    defer cancel()

    sim := peersim.New()
    for _, s := range splitCSV(*killCSV) {
        id, err := strconv.Atoi(s)
        if err != nil { log.Fatalf("bad node id %q", s) }
        if err := sim.Kill(id); err != nil { log.Fatal(err) }
    }
    addrs, err := sim.Serve(ctx, peersim.ServeOptions{Host: *host, PortOffset: *portOffset, Proto: *proto, Logger: log.Default()})
    if err != nil { log.Fatal(err) }

    if *etcdCSV != "" {
        cli, err := etcd.NewClient(splitCSV(*etcdCSV), 5*time.Second, log.Default())
        if err != nil { log.Fatalf("etcd: %v", err) }
        defer cli.Close()
        for slot, addr := range addrs {
            id := strconv.Itoa(observation.NodeID(slot))
            if _, err := etcd.Register(ctx, cli, *etcdPrefix, id, addr, 10); err != nil {
                log.Printf("etcd register %s: %v", id, err)
            }
        }
    }

    admin := &http.Server{Addr: *adminAddr, Handler: sim.AdminHandler(), ReadHeaderTimeout: 5 * time.Second}
    go func() {
        if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Printf("admin server: %v", err)
        }
    }()

    fmt.Printf("peersim serving %d members (%s): %s\n", len(addrs), *proto, strings.Join(addrs, ","))
    fmt.Println("Press Ctrl+C to exit.")
    <-ctx.Done()
    _ = admin.Shutdown(context.Background())
}

func splitCSV(s string) []string {
    if s == "" { return nil }
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts { p = strings.TrimSpace(p); if p != "" { out = append(out, p) } }
    return out
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
