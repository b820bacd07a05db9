package cli

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "syscall"
    "text/tabwriter"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/bootstrap"
    "github.com/amirimatin/clusterview/pkg/internal/logutil"
    "github.com/amirimatin/clusterview/pkg/journal"
    tracing "github.com/amirimatin/clusterview/pkg/observability/tracing"
    "github.com/amirimatin/clusterview/pkg/poller"
    tlsx "github.com/amirimatin/clusterview/pkg/security/tlsconfig"
    "github.com/amirimatin/clusterview/pkg/transport"
    mgmtgrpc "github.com/amirimatin/clusterview/pkg/transport/grpc"
    httpjson "github.com/amirimatin/clusterview/pkg/transport/httpjson"
)

// AddAll attaches the monitor subcommands (run/status/watch/probe/history) to
// the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewWatchCmd())
    root.AddCommand(NewProbeCmd())
    root.AddCommand(NewHistoryCmd())
}

// NewMonitorCommand returns a parent command "monitor" containing all
// subcommands, for services that mount them under their own CLI.
func NewMonitorCommand() *cobra.Command {
    parent := &cobra.Command{Use: "monitor", Short: "cluster monitor commands"}
    AddAll(parent)
    return parent
}

// logFlags are shared by every command.
type logFlags struct{ json, debug bool }

func (l *logFlags) bind(cmd *cobra.Command) {
    cmd.Flags().BoolVar(&l.json, "log-json", false, "emit logs as one JSON object per line")
    cmd.Flags().BoolVar(&l.debug, "debug", false, "enable debug logs")
}

func (l *logFlags) apply() {
    if l.json { logutil.SetJSON(true) }
    if l.debug { logutil.SetDebug(true) }
}

type tlsFlags struct {
    enable, skip, reload      bool
    ca, cert, key, serverName string
}

func (f *tlsFlags) bind(cmd *cobra.Command, role string) {
    cmd.Flags().BoolVar(&f.enable, "tls-enable", false, "enable mTLS")
    cmd.Flags().StringVar(&f.ca, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&f.cert, "tls-cert", "", "path to "+role+" certificate (PEM)")
    cmd.Flags().StringVar(&f.key, "tls-key", "", "path to "+role+" private key (PEM)")
    cmd.Flags().BoolVar(&f.skip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&f.serverName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *tlsFlags) options() tlsx.Options {
    return tlsx.Options{Enable: f.enable, CAFile: f.ca, CertFile: f.cert, KeyFile: f.key, InsecureSkipVerify: f.skip, ServerName: f.serverName, HotReload: f.reload}
}

type client interface {
    transport.StateFetcher
    transport.RPCClient
}

// newClient returns an HTTP or gRPC client and a release func.
func newClient(proto string, timeout time.Duration, tf tlsFlags) (client, func(), error) {
    cliTLS, err := tf.options().Client()
    if err != nil { return nil, nil, fmt.Errorf("tls client config: %w", err) }
    switch proto {
    case bootstrap.ProtoGRPC:
        c := mgmtgrpc.NewClient(timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        return c, c.Close, nil
    case "", bootstrap.ProtoHTTP:
        c := httpjson.NewClient(timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        return c, func() {}, nil
    default:
        return nil, nil, fmt.Errorf("unknown protocol %q", proto)
    }
}

// NewRunCmd returns the "run" command used to start the monitor.
func NewRunCmd() *cobra.Command {
    var (
        cfg         = bootstrap.Defaults()
        lf          logFlags
        tf          tlsFlags
        traceEnable bool
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Poll the cluster and serve the merged view",
        RunE: func(cmd *cobra.Command, args []string) error {
            lf.apply()
            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            cfg.TLSEnable, cfg.TLSCA, cfg.TLSCert, cfg.TLSKey = tf.enable, tf.ca, tf.cert, tf.key
            cfg.TLSSkipVerify, cfg.TLSServerName, cfg.TLSReload = tf.skip, tf.serverName, tf.reload
            cfg.Logger = log.Default()
            inst, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer inst.Close()

            fmt.Fprintln(cmd.OutOrStdout(), "clusterview running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    f := cmd.Flags()
    f.StringVar(&cfg.DiscoveryKind, "discovery", cfg.DiscoveryKind, "member discovery: derived|static|file|dns|etcd")
    f.StringVar(&cfg.Host, "host", cfg.Host, "member host used by discovery=derived")
    f.IntVar(&cfg.PortOffset, "port-offset", cfg.PortOffset, "status port = member id + offset (discovery=derived)")
    f.StringVar(&cfg.EndpointsCSV, "endpoints", "", "comma-separated member endpoints host:port (discovery=static)")
    f.StringVar(&cfg.DNSNamesCSV, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _status._tcp.example.com)")
    f.IntVar(&cfg.DNSPort, "dns-port", cfg.DNSPort, "port used for A/AAAA lookups")
    f.StringVar(&cfg.FilePath, "file-path", "", "path or glob to a file with endpoints (one per line or CSV)")
    f.StringVar(&cfg.FileEnv, "file-env", "", "ENV var name containing CSV endpoints; overrides file when set")
    f.StringVar(&cfg.EtcdCSV, "etcd-endpoints", "", "comma-separated etcd endpoints (discovery=etcd)")
    f.StringVar(&cfg.EtcdPrefix, "etcd-prefix", cfg.EtcdPrefix, "etcd key prefix listing member endpoints")
    f.DurationVar(&cfg.DiscRefresh, "disc-refresh", cfg.DiscRefresh, "discovery refresh/cache duration")
    f.StringVar(&cfg.FetchProto, "fetch-proto", cfg.FetchProto, "member status protocol: http|grpc")
    f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "poll period")
    f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
    f.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "age after which an observation resets to offline")
    f.StringVar(&cfg.MgmtAddr, "mgmt-addr", cfg.MgmtAddr, "management address (tcp); empty disables it")
    f.StringVar(&cfg.MgmtProto, "mgmt-proto", cfg.MgmtProto, "management RPC protocol: http|grpc")
    f.StringVar(&cfg.JournalPath, "journal", "", "path of the history journal (bbolt); empty disables it")
    f.IntVar(&cfg.JournalRetain, "journal-retain", journal.DefaultRetain, "number of journal entries kept")
    f.BoolVar(&tf.reload, "tls-reload", false, "re-read certificates from disk periodically")
    f.BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    tf.bind(cmd, "node")
    lf.bind(cmd)
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var (
        addr, proto string
        summary     bool
        timeout     time.Duration
        tf          tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch a monitor's published snapshot as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            c, release, err := newClient(proto, timeout, tf)
            if err != nil { return err }
            defer release()
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            get := c.GetSnapshot
            if summary { get = c.GetSummary }
            data, err := get(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = out.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1"+bootstrap.DefaultMgmtAddr, "management address of a monitor (host:port)")
    cmd.Flags().StringVar(&proto, "mgmt-proto", bootstrap.ProtoHTTP, "management RPC protocol: http|grpc")
    cmd.Flags().BoolVar(&summary, "summary", false, "fetch only the summary view")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tf.bind(cmd, "client")
    return cmd
}

// NewWatchCmd returns the "watch" command streaming snapshots over gRPC.
func NewWatchCmd() *cobra.Command {
    var (
        addr    string
        timeout time.Duration
        tf      tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Stream published snapshots from a gRPC monitor",
        RunE: func(cmd *cobra.Command, args []string) error {
            cliTLS, err := tf.options().Client()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            c := mgmtgrpc.NewClient(timeout)
            if cliTLS != nil { c.UseTLS(cliTLS) }
            defer c.Close()
            ctx, cancel := signalContext()
            defer cancel()
            out := cmd.OutOrStdout()
            err = c.Watch(ctx, addr, func(b []byte) {
                var s aggregator.Snapshot
                if err := json.Unmarshal(b, &s); err != nil {
                    fmt.Fprintf(out, "undecodable snapshot: %v\n", err)
                    return
                }
                fmt.Fprintln(out, formatSnapshot(s))
            })
            if errors.Is(err, context.Canceled) { return nil }
            return err
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1"+bootstrap.DefaultMgmtAddr, "gRPC management address of a monitor (host:port)")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "dial timeout")
    tf.bind(cmd, "client")
    return cmd
}

func formatSnapshot(s aggregator.Snapshot) string {
    return fmt.Sprintf("%s tick=%d leader=%d oldest=%d up=%d/%d divergence=%t",
        s.PublishedAt.Format(time.RFC3339), s.Tick, s.Summary.LeaderID, s.Summary.OldestID,
        s.Summary.UpCount, len(s.Summary.Nodes), s.Summary.Divergence)
}

// NewProbeCmd returns the "probe" command that fetches and validates one
// member's status document.
func NewProbeCmd() *cobra.Command {
    var (
        endpoint, proto string
        timeout         time.Duration
        raw             bool
        tf              tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "probe",
        Short: "Fetch and validate one member's status document",
        RunE: func(cmd *cobra.Command, args []string) error {
            if endpoint == "" { return fmt.Errorf("missing --endpoint") }
            c, release, err := newClient(proto, timeout, tf)
            if err != nil { return err }
            defer release()
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            b, err := c.FetchState(ctx, endpoint)
            if err != nil { return fmt.Errorf("probe %s: %w", endpoint, err) }
            r, err := poller.DecodeReport(b)
            if err != nil { return fmt.Errorf("probe %s: %w", endpoint, err) }
            out := cmd.OutOrStdout()
            if raw {
                _, _ = out.Write(b)
                _, _ = out.Write([]byte("\n"))
                return nil
            }
            fmt.Fprintf(out, "observer=%d leader=%t oldest=%t up=%d\n", r.ObserverID, r.ClaimsLeader, r.ClaimsOldest, r.UpCount())
            tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
            fmt.Fprintln(tw, "NODE\tSTATE\tMEMBER\tLEADER\tOLDEST\tSEED")
            for _, o := range r.Nodes {
                fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%t\t%t\n", o.NodeID, o.State, o.MemberState, o.Leader, o.Oldest, o.SeedNode)
            }
            return tw.Flush()
        },
    }
    cmd.Flags().StringVar(&endpoint, "endpoint", "", "member status endpoint (host:port, required)")
    cmd.Flags().StringVar(&proto, "proto", bootstrap.ProtoHTTP, "member status protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", poller.DefaultTimeout, "request timeout")
    cmd.Flags().BoolVar(&raw, "raw", false, "print the validated document instead of a table")
    tf.bind(cmd, "client")
    return cmd
}

// NewHistoryCmd returns the "history" command listing journal entries.
func NewHistoryCmd() *cobra.Command {
    var (
        path    string
        limit   int
        asJSON  bool
        lockTTL time.Duration
    )
    cmd := &cobra.Command{
        Use:   "history",
        Short: "List leader/oldest/divergence changes from a journal",
        RunE: func(cmd *cobra.Command, args []string) error {
            if path == "" { return fmt.Errorf("missing --journal") }
            j, err := journal.Open(path, journal.Options{ReadOnly: true, LockTimeout: lockTTL})
            if err != nil { return err }
            defer j.Close()
            entries, err := j.List(limit)
            if err != nil { return err }
            return printHistory(cmd.OutOrStdout(), entries, asJSON)
        },
    }
    cmd.Flags().StringVar(&path, "journal", "", "path of the history journal (required)")
    cmd.Flags().IntVar(&limit, "limit", 50, "number of most recent entries; 0 lists all")
    cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON lines")
    cmd.Flags().DurationVar(&lockTTL, "lock-timeout", time.Second, "how long to wait for a running monitor's lock")
    return cmd
}

func printHistory(w io.Writer, entries []journal.Entry, asJSON bool) error {
    if asJSON {
        enc := json.NewEncoder(w)
        for _, e := range entries {
            if err := enc.Encode(e); err != nil { return err }
        }
        return nil
    }
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    fmt.Fprintln(tw, "SEQ\tAT\tEVENT\tDETAIL")
    for _, e := range entries {
        fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Seq, e.At.Format(time.RFC3339), e.Type, describe(e.Event))
    }
    return tw.Flush()
}

func describe(ev aggregator.Event) string {
    switch ev.Type {
    case aggregator.EventLeaderChanged:
        return fmt.Sprintf("leader %d -> %d", ev.PrevLeaderID, ev.LeaderID)
    case aggregator.EventOldestChanged:
        return fmt.Sprintf("oldest %d -> %d", ev.PrevOldestID, ev.OldestID)
    case aggregator.EventLeaderCleared:
        return fmt.Sprintf("all nodes offline, leader %d and oldest %d cleared", ev.PrevLeaderID, ev.PrevOldestID)
    case aggregator.EventDivergenceChanged:
        if ev.Divergence { return "views diverged" }
        return "views converged"
    }
    return ""
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
