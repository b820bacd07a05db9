package poller

import (
    "errors"

    "github.com/amirimatin/clusterview/pkg/aggregator"
)

var (
    // ErrMalformedReport wraps any document that cannot be turned into a report.
    ErrMalformedReport = errors.New("poller: malformed report")
    // ErrUnknownObserver is returned when selfPort is not a cluster node id.
    ErrUnknownObserver = aggregator.ErrUnknownObserver
    // ErrNoEndpoints is reported for a round that had nothing to poll.
    ErrNoEndpoints = errors.New("poller: no endpoints")
    // ErrInvalidOptions is returned by New for missing or out-of-range options.
    ErrInvalidOptions = errors.New("poller: invalid options")
)
