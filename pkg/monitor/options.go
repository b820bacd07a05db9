package monitor

import (
    "fmt"
    "log"
    "time"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/discovery"
    "github.com/amirimatin/clusterview/pkg/journal"
    "github.com/amirimatin/clusterview/pkg/transport"
)

// Options carries dependency-injected components and runtime configuration used
// to assemble the monitor. Instances are typically produced from
// bootstrap.Config.
type Options struct {
    // Fetcher pulls status documents from cluster members.
    Fetcher transport.StateFetcher
    // Discovery yields the member endpoints polled every round.
    Discovery discovery.Discovery
    // Logger is used by the monitor and the poller.
    Logger *log.Logger

    // Interval, Timeout and StaleAfter tune the poll loop; zero picks the
    // poller and aggregator defaults.
    Interval   time.Duration
    Timeout    time.Duration
    StaleAfter time.Duration
    // Now overrides the aggregator clock (tests).
    Now func() time.Time

    // Optional management server exposing published snapshots.
    RPCServer transport.RPCServer
    // Optional journal receiving every summary change event.
    Journal *journal.Journal

    // Optional callbacks. Both run on internal goroutines and must not block.
    OnPublish func(aggregator.Snapshot)
    OnEvent   func(aggregator.Event)
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if o.Fetcher == nil {
        return fmt.Errorf("%w: nil Fetcher", ErrInvalidOptions)
    }
    if o.Discovery == nil {
        return fmt.Errorf("%w: nil Discovery", ErrInvalidOptions)
    }
    if o.Logger == nil {
        return fmt.Errorf("%w: nil Logger", ErrInvalidOptions)
    }
    if o.Interval < 0 || o.Timeout < 0 || o.StaleAfter < 0 {
        return fmt.Errorf("%w: negative duration", ErrInvalidOptions)
    }
    return nil
}
