package aggregator

import (
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// DefaultStaleAfter is the age after which an observation is considered
// stale and is demoted back to its default.
const DefaultStaleAfter = 3 * time.Second

// Sweep resets every observation older than threshold (strictly) to its
// default, stamped now. The seed-node marker is static and survives the
// reset. It returns the number of slots reset.
func Sweep(nodes *observation.Nodes, now time.Time, threshold time.Duration) int {
    reset := 0
    for i := range nodes {
        o := nodes[i]
        if now.Sub(o.LastUpdated) <= threshold {
            continue
        }
        d := observation.Default(observation.NodeID(i), now)
        d.SeedNode = o.SeedNode
        nodes[i] = d
        reset++
    }
    return reset
}
