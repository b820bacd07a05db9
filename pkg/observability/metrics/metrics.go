package metrics

import (
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/observation"
)

const namespace = "clusterview"

var (
    once sync.Once

    SummaryNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "summary",
        Name:      "nodes",
        Help:      "Number of summary nodes per reported state",
    }, []string{"state"})

    SummaryUp = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "summary",
        Name:      "up_nodes",
        Help:      "Number of summary nodes whose state is up",
    })

    LeaderID = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Name:      "leader_id",
        Help:      "Node id currently recorded as leader, 0 when unknown",
    })

    OldestID = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Name:      "oldest_id",
        Help:      "Node id currently recorded as oldest, 0 when unknown",
    })

    Divergence = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Name:      "divergence",
        Help:      "1 if some summary node reports memberState unreachable, else 0",
    })

    LeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Name:      "leader_changes_total",
        Help:      "Total number of observed leader change events",
    })

    Promotions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Name:      "promotions_total",
        Help:      "Reports absorbed, by whether they replaced the summary",
    }, []string{"result"})

    Fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "poll",
        Name:      "fetches_total",
        Help:      "Status fetches per endpoint and result (ok, error, invalid)",
    }, []string{"endpoint", "result"})

    FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: namespace,
        Subsystem: "poll",
        Name:      "fetch_duration_seconds",
        Help:      "Latency of status fetches",
        Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
    }, []string{"result"})

    Rounds = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "poll",
        Name:      "rounds_total",
        Help:      "Total number of poll rounds started",
    })

    Endpoints = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "poll",
        Name:      "endpoints",
        Help:      "Number of endpoints polled in the last round",
    })

    StaleResets = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Name:      "stale_resets_total",
        Help:      "Slots reset to offline by the staleness sweep",
    }, []string{"scope"})

    AllDownResets = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Name:      "all_down_resets_total",
        Help:      "Times leader and oldest were cleared because every node was offline",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })

    WatchSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "watch",
        Name:      "subscribers",
        Help:      "Number of active snapshot watch streams",
    })
    WatchSent = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "watch",
        Name:      "sent_total",
        Help:      "Snapshots sent to watch streams",
    })

    JournalAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "journal",
        Name:      "appends_total",
        Help:      "Events offered to the history journal, by result (ok, error, dropped)",
    }, []string{"result"})

    startTime = time.Now()
    Uptime    = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
        Namespace: namespace,
        Name:      "uptime_seconds",
        Help:      "Process uptime in seconds",
    }, func() float64 { return time.Since(startTime).Seconds() })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(SummaryNodes, SummaryUp, LeaderID, OldestID, Divergence)
        prometheus.MustRegister(LeaderChanges, Promotions, StaleResets, AllDownResets)
        prometheus.MustRegister(Fetches, FetchDuration, Rounds, Endpoints)
        prometheus.MustRegister(GRPCConnDials, GRPCConnReuse, GRPCConnEvictions, GRPCConnActive)
        prometheus.MustRegister(WatchSubscribers, WatchSent, JournalAppends, Uptime)
        prometheus.MustRegister(RequestsTotal, RequestDuration, InFlight)
    })
}

// ObserveSnapshot mirrors a published snapshot into the summary gauges.
func ObserveSnapshot(s aggregator.Snapshot) {
    for _, st := range observation.States {
        SummaryNodes.WithLabelValues(string(st)).Set(float64(s.Summary.States[st]))
    }
    SummaryUp.Set(float64(s.Summary.UpCount))
    LeaderID.Set(float64(s.Summary.LeaderID))
    OldestID.Set(float64(s.Summary.OldestID))
    Divergence.Set(boolGauge(s.Summary.Divergence))
}

// ObserveOutcome counts one absorbed report.
func ObserveOutcome(o aggregator.Outcome) {
    if o.Promoted {
        Promotions.WithLabelValues("accepted").Inc()
    } else {
        Promotions.WithLabelValues("rejected").Inc()
    }
    if o.LeaderChanged() { LeaderChanges.Inc() }
}

// ObserveFetch records one fetch attempt against endpoint.
func ObserveFetch(endpoint, result string, d time.Duration) {
    Fetches.WithLabelValues(endpoint, result).Inc()
    FetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveSweep records the slots reset by one sweep.
func ObserveSweep(summary, members int) {
    if summary > 0 { StaleResets.WithLabelValues("summary").Add(float64(summary)) }
    if members > 0 { StaleResets.WithLabelValues("members").Add(float64(members)) }
}

func boolGauge(b bool) float64 {
    if b { return 1 }
    return 0
}
