package aggregator

import (
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// SummaryView is the cluster-wide merged opinion, taken from whichever member
// is currently treated as authoritative.
type SummaryView struct {
    Nodes    observation.Nodes `json:"nodes"`
    LeaderID int               `json:"leader"`
    OldestID int               `json:"oldest"`
}

// NewSummaryView returns the initial summary: all nodes offline, no leader,
// no oldest.
func NewSummaryView(now time.Time) SummaryView {
    return SummaryView{Nodes: observation.NewNodes(now)}
}

// UpCount is the number of summary nodes whose member state is "up".
func (s *SummaryView) UpCount() int { return observation.UpCount(s.Nodes[:]) }

// AllOffline reports whether every summary node is in the offline state.
func (s *SummaryView) AllOffline() bool {
    return observation.CountInState(s.Nodes[:], observation.StateOffline) == observation.ClusterSize
}

// HasDivergence reports whether gossip convergence is currently impossible,
// i.e. some summary node is reported unreachable.
func (s *SummaryView) HasDivergence() bool { return HasDivergence(s.Nodes[:]) }

// HasDivergence returns true iff any observation has member state
// "unreachable".
func HasDivergence(nodes []observation.Observation) bool {
    for _, o := range nodes {
        if o.MemberState == observation.MemberStateUnreachable {
            return true
        }
    }
    return false
}
