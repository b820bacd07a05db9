package bootstrap

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "io"
    "log"
    "time"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/discovery"
    dDerived "github.com/amirimatin/clusterview/pkg/discovery/derived"
    dDNS "github.com/amirimatin/clusterview/pkg/discovery/dns"
    dEtcd "github.com/amirimatin/clusterview/pkg/discovery/etcd"
    dFile "github.com/amirimatin/clusterview/pkg/discovery/file"
    dStatic "github.com/amirimatin/clusterview/pkg/discovery/static"
    "github.com/amirimatin/clusterview/pkg/journal"
    "github.com/amirimatin/clusterview/pkg/monitor"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/poller"
    tlsx "github.com/amirimatin/clusterview/pkg/security/tlsconfig"
    "github.com/amirimatin/clusterview/pkg/transport"
    mgmtgrpc "github.com/amirimatin/clusterview/pkg/transport/grpc"
    httpjson "github.com/amirimatin/clusterview/pkg/transport/httpjson"
)

var ErrInvalidConfig = errors.New("bootstrap: invalid config")

const (
    ProtoHTTP = "http"
    ProtoGRPC = "grpc"

    DefaultMgmtAddr = ":17950"
)

// Config defines high-level inputs to assemble a monitor with sensible
// defaults. Applications embed the monitor by providing this structure and
// calling Build/Run.
type Config struct {
    // Discovery settings
    DiscoveryKind string        // "derived" (default), "static", "file", "dns" or "etcd"
    Host          string        // used when kind=derived
    PortOffset    int           // used when kind=derived
    EndpointsCSV  string        // used when kind=static
    DNSNamesCSV   string        // used when kind=dns
    DNSPort       int           // used when kind=dns (A/AAAA)
    FilePath      string        // used when kind=file
    FileEnv       string        // used when kind=file
    EtcdCSV       string        // used when kind=etcd
    EtcdPrefix    string        // used when kind=etcd
    DiscRefresh   time.Duration // cache/refresh duration for discovery

    // Status fetch from members
    FetchProto string // "http" (default) or "grpc"
    Interval   time.Duration
    Timeout    time.Duration
    StaleAfter time.Duration

    // Management API (snapshot/summary/convergence/metrics); empty disables it
    MgmtAddr  string
    MgmtProto string // "http" (default) or "grpc"

    // TLS (optional) for fetch and management
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool
    TLSReload     bool

    // History journal (optional)
    JournalPath   string
    JournalRetain int

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger

    // Optional callbacks
    OnPublish func(aggregator.Snapshot)
    OnEvent   func(aggregator.Event)
}

// Defaults returns a Config with the documented defaults filled in.
func Defaults() Config {
    return Config{
        DiscoveryKind: "derived",
        Host:          "127.0.0.1",
        PortOffset:    dDerived.DefaultPortOffset,
        DNSPort:       dDNS.DefaultPort,
        EtcdPrefix:    dEtcd.DefaultPrefix,
        DiscRefresh:   5 * time.Second,
        FetchProto:    ProtoHTTP,
        Interval:      poller.DefaultInterval,
        Timeout:       poller.DefaultTimeout,
        StaleAfter:    aggregator.DefaultStaleAfter,
        MgmtAddr:      DefaultMgmtAddr,
        MgmtProto:     ProtoHTTP,
    }
}

// Validate checks enumerations and ranges without touching the network.
func (c Config) Validate() error {
    switch c.DiscoveryKind {
    case "", "derived":
    case "static":
        if len(dStatic.Parse(c.EndpointsCSV)) == 0 {
            return fmt.Errorf("%w: static discovery needs endpoints", ErrInvalidConfig)
        }
    case "file":
        if c.FilePath == "" && c.FileEnv == "" {
            return fmt.Errorf("%w: file discovery needs a path or env var", ErrInvalidConfig)
        }
    case "dns":
        if len(dStatic.Parse(c.DNSNamesCSV)) == 0 {
            return fmt.Errorf("%w: dns discovery needs names", ErrInvalidConfig)
        }
    case "etcd":
        if len(dStatic.Parse(c.EtcdCSV)) == 0 {
            return fmt.Errorf("%w: etcd discovery needs endpoints", ErrInvalidConfig)
        }
    default:
        return fmt.Errorf("%w: unknown discovery %q", ErrInvalidConfig, c.DiscoveryKind)
    }
    for name, p := range map[string]string{"fetch": c.FetchProto, "mgmt": c.MgmtProto} {
        if p != "" && p != ProtoHTTP && p != ProtoGRPC {
            return fmt.Errorf("%w: unknown %s protocol %q", ErrInvalidConfig, name, p)
        }
    }
    if c.Interval < 0 || c.Timeout < 0 || c.StaleAfter < 0 || c.DiscRefresh < 0 {
        return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
    }
    if c.JournalRetain < 0 {
        return fmt.Errorf("%w: journal retain must not be negative", ErrInvalidConfig)
    }
    return nil
}

// Instance is a built monitor plus the resources it owns.
type Instance struct {
    *monitor.Monitor
    closers []io.Closer
}

// Close stops the monitor and releases discovery, transport and journal
// resources.
func (i *Instance) Close() error {
    errs := []error{i.Monitor.Close()}
    for n := len(i.closers) - 1; n >= 0; n-- {
        errs = append(errs, i.closers[n].Close())
    }
    return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Build assembles a monitor from Config without starting it.
func Build(cfg Config) (*Instance, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if err := cfg.Validate(); err != nil { return nil, err }
    inst := &Instance{}
    fail := func(err error) (*Instance, error) {
        for n := len(inst.closers) - 1; n >= 0; n-- { _ = inst.closers[n].Close() }
        return nil, err
    }

    disc, err := buildDiscovery(cfg, inst)
    if err != nil { return fail(err) }

    var srvTLS, cliTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName, HotReload: cfg.TLSReload}
        if cliTLS, err = topts.Client(); err != nil { return fail(err) }
        if cfg.MgmtAddr != "" {
            if srvTLS, err = topts.Server(); err != nil { return fail(err) }
        }
    }

    timeout := cfg.Timeout
    if timeout == 0 { timeout = poller.DefaultTimeout }
    var fetcher transport.StateFetcher
    switch cfg.FetchProto {
    case ProtoGRPC:
        c := mgmtgrpc.NewClient(timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        inst.closers = append(inst.closers, closerFunc(func() error { c.Close(); return nil }))
        fetcher = c
    default:
        c := httpjson.NewClient(timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        fetcher = c
    }

    var srv transport.RPCServer
    if cfg.MgmtAddr != "" {
        switch cfg.MgmtProto {
        case ProtoGRPC:
            s := mgmtgrpc.NewServer(cfg.MgmtAddr)
            if srvTLS != nil { s.UseTLS(srvTLS) }
            srv = s
        default:
            s := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
            if srvTLS != nil { s.UseTLS(srvTLS) }
            srv = s
        }
    }

    var j *journal.Journal
    if cfg.JournalPath != "" {
        if j, err = journal.Open(cfg.JournalPath, journal.Options{Retain: cfg.JournalRetain}); err != nil { return fail(err) }
        inst.closers = append(inst.closers, j)
    }

    m, err := monitor.New(monitor.Options{
        Fetcher:    fetcher,
        Discovery:  disc,
        Logger:     cfg.Logger,
        Interval:   cfg.Interval,
        Timeout:    cfg.Timeout,
        StaleAfter: cfg.StaleAfter,
        RPCServer:  srv,
        Journal:    j,
        OnPublish:  cfg.OnPublish,
        OnEvent:    cfg.OnEvent,
    })
    if err != nil { return fail(err) }
    inst.Monitor = m
    return inst, nil
}

func buildDiscovery(cfg Config, inst *Instance) (discovery.Discovery, error) {
    switch cfg.DiscoveryKind {
    case "static":
        return dStatic.New(dStatic.Parse(cfg.EndpointsCSV)...), nil
    case "dns":
        opts := dDNS.Options{Names: dStatic.Parse(cfg.DNSNamesCSV), Port: cfg.DNSPort, Refresh: cfg.DiscRefresh, Logger: cfg.Logger}
        return dDNS.New(opts), nil
    case "file":
        return dFile.New(dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv, Refresh: cfg.DiscRefresh}), nil
    case "etcd":
        d, err := dEtcd.New(dEtcd.Options{Endpoints: dStatic.Parse(cfg.EtcdCSV), Prefix: cfg.EtcdPrefix, Refresh: cfg.DiscRefresh, Logger: cfg.Logger})
        if err != nil { return nil, err }
        inst.closers = append(inst.closers, d)
        return d, nil
    default:
        return dDerived.New(dDerived.Options{Host: cfg.Host, BaseID: observation.BaseNodeID, PortOffset: cfg.PortOffset}), nil
    }
}

// Run builds and starts the monitor, returning the instance for lifecycle
// control. The caller is responsible for calling Close() when finished.
func Run(ctx context.Context, cfg Config) (*Instance, error) {
    inst, err := Build(cfg)
    if err != nil { return nil, err }
    if err := inst.Start(ctx); err != nil {
        _ = inst.Close()
        return nil, err
    }
    return inst, nil
}
