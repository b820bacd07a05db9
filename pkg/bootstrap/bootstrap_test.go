package bootstrap

import (
    "context"
    "errors"
    "io"
    "log"
    "net"
    "path/filepath"
    "strconv"
    "testing"
    "time"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/observation"
)

func TestDefaults(t *testing.T) {
    c := Defaults()
    if c.Interval != 200*time.Millisecond || c.StaleAfter != 3*time.Second || c.Timeout != time.Second {
        t.Fatalf("unexpected timing defaults: %+v", c)
    }
    if c.PortOffset != 7000 || c.MgmtAddr != ":17950" || c.MgmtProto != ProtoHTTP {
        t.Fatalf("unexpected defaults: %+v", c)
    }
    if err := c.Validate(); err != nil {
        t.Fatalf("defaults rejected: %v", err)
    }
}

func TestValidate(t *testing.T) {
    cases := []struct {
        name string
        mut  func(*Config)
    }{
        {"unknown discovery", func(c *Config) { c.DiscoveryKind = "consul" }},
        {"static without endpoints", func(c *Config) { c.DiscoveryKind = "static" }},
        {"file without source", func(c *Config) { c.DiscoveryKind = "file" }},
        {"dns without names", func(c *Config) { c.DiscoveryKind = "dns" }},
        {"etcd without endpoints", func(c *Config) { c.DiscoveryKind = "etcd" }},
        {"bad fetch proto", func(c *Config) { c.FetchProto = "udp" }},
        {"bad mgmt proto", func(c *Config) { c.MgmtProto = "ws" }},
        {"negative interval", func(c *Config) { c.Interval = -time.Second }},
        {"negative retain", func(c *Config) { c.JournalRetain = -1 }},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            c := Defaults()
            tc.mut(&c)
            if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
                t.Fatalf("err = %v, want ErrInvalidConfig", err)
            }
        })
    }
}

func TestBuildVariants(t *testing.T) {
    quiet := log.New(io.Discard, "", 0)
    cases := []struct {
        name string
        mut  func(*Config)
    }{
        {"derived http", func(c *Config) {}},
        {"static grpc", func(c *Config) {
            c.DiscoveryKind, c.EndpointsCSV = "static", "127.0.0.1:9551,127.0.0.1:9552"
            c.FetchProto, c.MgmtProto = ProtoGRPC, ProtoGRPC
        }},
        {"file with journal", func(c *Config) {
            c.DiscoveryKind, c.FileEnv = "file", "CLUSTERVIEW_TEST_MEMBERS"
            c.JournalPath = filepath.Join(t.TempDir(), "history.db")
        }},
        {"dns without mgmt", func(c *Config) {
            c.DiscoveryKind, c.DNSNamesCSV = "dns", "localhost"
            c.MgmtAddr = ""
        }},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            c := Defaults()
            c.Logger = quiet
            c.MgmtAddr = "127.0.0.1:0"
            tc.mut(&c)
            inst, err := Build(c)
            if err != nil { t.Fatalf("build: %v", err) }
            if inst.Snapshot().Summary.Online {
                t.Fatalf("fresh monitor must not be online")
            }
            if err := inst.Close(); err != nil { t.Fatalf("close: %v", err) }
        })
    }
}

// Derived endpoints must belong to members whose documents the aggregator
// accepts, whatever the port offset.
func TestDerivedEndpointsMatchNodeIDs(t *testing.T) {
    for _, offset := range []int{7000, 1000} {
        c := Defaults()
        c.PortOffset = offset
        d, err := buildDiscovery(c, &Instance{})
        if err != nil { t.Fatal(err) }
        eps, err := d.Endpoints(context.Background())
        if err != nil { t.Fatal(err) }
        if len(eps) != observation.ClusterSize {
            t.Fatalf("offset %d: %d endpoints, want %d", offset, len(eps), observation.ClusterSize)
        }
        for i, ep := range eps {
            _, port, err := net.SplitHostPort(ep)
            if err != nil { t.Fatal(err) }
            p, err := strconv.Atoi(port)
            if err != nil { t.Fatal(err) }
            id := p - offset
            if slot, ok := observation.Slot(id); !ok || slot != i {
                t.Fatalf("endpoint %s maps to node %d, want slot %d", ep, id, i)
            }
            if err := (aggregator.Report{ObserverID: id}).Validate(); err != nil {
                t.Fatalf("report from %s rejected: %v", ep, err)
            }
        }
    }
}

func TestBuildTLSRequiresCert(t *testing.T) {
    c := Defaults()
    c.Logger = log.New(io.Discard, "", 0)
    c.TLSEnable = true
    if _, err := Build(c); err == nil {
        t.Fatalf("expected error for TLS management server without certificate")
    }
}

func TestRunServesManagement(t *testing.T) {
    c := Defaults()
    c.Logger = log.New(io.Discard, "", 0)
    c.MgmtAddr = "127.0.0.1:0"
    c.DiscoveryKind, c.EndpointsCSV = "static", "127.0.0.1:1"
    c.Interval = 20 * time.Millisecond
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    inst, err := Run(ctx, c)
    if err != nil { t.Fatalf("run: %v", err) }
    defer inst.Close()
    if inst.Addr() == "127.0.0.1:0" || inst.Addr() == "" {
        t.Fatalf("management server not bound: %q", inst.Addr())
    }
}
