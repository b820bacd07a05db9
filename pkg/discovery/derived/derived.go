// Package derived computes member endpoints from the fixed node numbering:
// node id BaseNodeID+slot serves its status on port id+PortOffset.
package derived

import (
    "context"
    "net"
    "strconv"

    "github.com/amirimatin/clusterview/pkg/discovery"
    "github.com/amirimatin/clusterview/pkg/observation"
)

// DefaultPortOffset maps node 2551 to status port 9551.
const DefaultPortOffset = 7000

type Options struct {
    // Host defaults to 127.0.0.1.
    Host string
    // BaseID defaults to observation.BaseNodeID.
    BaseID int
    // PortOffset defaults to DefaultPortOffset.
    PortOffset int
    // Count defaults to observation.ClusterSize and is capped by it.
    Count int
}

type derived struct{ eps []string }

func New(opts Options) discovery.Discovery {
    if opts.Host == "" { opts.Host = "127.0.0.1" }
    if opts.BaseID == 0 { opts.BaseID = observation.BaseNodeID }
    if opts.PortOffset == 0 { opts.PortOffset = DefaultPortOffset }
    if opts.Count <= 0 || opts.Count > observation.ClusterSize { opts.Count = observation.ClusterSize }
    eps := make([]string, opts.Count)
    for i := range eps {
        eps[i] = net.JoinHostPort(opts.Host, strconv.Itoa(opts.BaseID+i+opts.PortOffset))
    }
    return &derived{eps: eps}
}

func (d *derived) Endpoints(context.Context) ([]string, error) {
    return append([]string(nil), d.eps...), nil
}
