package aggregator

import (
    "fmt"
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// MemberMatrix stores what each member currently believes about every node:
// matrix[observer][subject], both indexed by slot.
type MemberMatrix [observation.ClusterSize]observation.Nodes

// NewMemberMatrix returns a matrix with every cell set to its default.
func NewMemberMatrix(now time.Time) MemberMatrix {
    var m MemberMatrix
    for i := range m {
        m[i] = observation.NewNodes(now)
    }
    return m
}

// Row returns a copy of one observer's row.
func (m *MemberMatrix) Row(observer int) observation.Nodes { return m[observer] }

// ReplaceRow writes a fresh report from observer into its row. Every reported
// observation is stamped with now; slots the report does not mention keep
// their previous entry. The report is checked in full before anything is
// written.
func (m *MemberMatrix) ReplaceRow(observer int, reported []observation.Observation, now time.Time) error {
    if observer < 0 || observer >= observation.ClusterSize {
        return fmt.Errorf("%w: slot %d", ErrUnknownObserver, observer)
    }
    slots, err := reportSlots(reported)
    if err != nil { return err }
    for i, o := range reported {
        o.LastUpdated = now
        m[observer][slots[i]] = o
    }
    return nil
}

// Sweep runs the staleness scan over every row and returns the number of
// cells reset.
func (m *MemberMatrix) Sweep(now time.Time, threshold time.Duration) int {
    n := 0
    for i := range m {
        n += Sweep(&m[i], now, threshold)
    }
    return n
}

// reportSlots resolves the slot of every reported observation, rejecting out
// of range and duplicate node ids.
func reportSlots(reported []observation.Observation) ([]int, error) {
    if len(reported) > observation.ClusterSize {
        return nil, fmt.Errorf("%w: %d entries", ErrTooManyNodes, len(reported))
    }
    var seen [observation.ClusterSize]bool
    slots := make([]int, len(reported))
    for i, o := range reported {
        s, ok := observation.Slot(o.NodeID)
        if !ok {
            return nil, fmt.Errorf("%w: node %d", ErrNodeOutOfRange, o.NodeID)
        }
        if seen[s] {
            return nil, fmt.Errorf("%w: node %d", ErrDuplicateNode, o.NodeID)
        }
        seen[s] = true
        slots[i] = s
    }
    return slots, nil
}
