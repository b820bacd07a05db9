package observation

import (
    "fmt"
    "time"
)

const (
    // ClusterSize is the fixed number of members (and subjects) tracked.
    ClusterSize = 9
    // BaseNodeID is the identity of slot 0. Node ids are BaseNodeID+slot.
    BaseNodeID = 2551
    // NoNode is the sentinel used for "no leader" / "no oldest".
    NoNode = 0
    // UnknownMemberState is the member state of a default observation.
    UnknownMemberState = "unknown"
)

// Well-known member states reported by the nodes' membership protocol. The
// field is free-form; only these two carry meaning for the aggregator.
const (
    MemberStateUp          = "up"
    MemberStateUnreachable = "unreachable"
)

// State is the coarse lifecycle state of a node as seen by an observer.
type State string

const (
    StateOffline     State = "offline"
    StateStarting    State = "starting"
    StateUp          State = "up"
    StateStopping    State = "stopping"
    StateUnreachable State = "unreachable"
    StateDown        State = "down"
)

// States lists every valid State in display order.
var States = []State{StateOffline, StateStarting, StateUp, StateStopping, StateUnreachable, StateDown}

// ParseState maps a wire string onto a State. Unknown values are rejected so
// that a malformed report never reaches the aggregator.
func ParseState(s string) (State, error) {
    for _, st := range States {
        if string(st) == s {
            return st, nil
        }
    }
    return "", fmt.Errorf("observation: unknown state %q", s)
}

// Observation is one node's status as reported by some observer.
type Observation struct {
    NodeID      int       `json:"node"`
    State       State     `json:"state"`
    MemberState string    `json:"memberState"`
    Leader      bool      `json:"leader"`
    Oldest      bool      `json:"oldest"`
    SeedNode    bool      `json:"seedNode"`
    LastUpdated time.Time `json:"lastUpdated"`
}

// Default returns the offline/unknown observation for node id stamped at now.
func Default(id int, now time.Time) Observation {
    return Observation{
        NodeID:      id,
        State:       StateOffline,
        MemberState: UnknownMemberState,
        LastUpdated: now,
    }
}

// IsUp reports whether the node's membership protocol considers it up.
func (o Observation) IsUp() bool { return o.MemberState == MemberStateUp }

// Nodes is a full row of observations, one per slot. Being an array it is
// copied by value, which keeps snapshots independent of the live state.
type Nodes [ClusterSize]Observation

// NewNodes returns a row of default observations.
func NewNodes(now time.Time) Nodes {
    var n Nodes
    for i := range n {
        n[i] = Default(NodeID(i), now)
    }
    return n
}

// NodeID returns the node id for a slot.
func NodeID(slot int) int { return BaseNodeID + slot }

// Slot maps a node id onto its slot index.
func Slot(id int) (int, bool) {
    s := id - BaseNodeID
    if s < 0 || s >= ClusterSize {
        return 0, false
    }
    return s, true
}

// UpCount counts observations whose member state is exactly "up".
func UpCount(obs []Observation) int {
    n := 0
    for _, o := range obs {
        if o.IsUp() {
            n++
        }
    }
    return n
}

// CountInState counts observations in the given state.
func CountInState(obs []Observation, st State) int {
    n := 0
    for _, o := range obs {
        if o.State == st {
            n++
        }
    }
    return n
}

// StateCounts returns the number of observations per state; every state is
// present in the result, including zero counts.
func StateCounts(obs []Observation) map[State]int {
    out := make(map[State]int, len(States))
    for _, st := range States {
        out[st] = 0
    }
    for _, o := range obs {
        out[o.State]++
    }
    return out
}
