package aggregator

import (
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// Snapshot is a JSON-serializable, read-only copy of the aggregator state as
// handed to consumers.
type Snapshot struct {
    // Tick counts the sweeps performed so far, one per poll round.
    Tick        uint64          `json:"tick"`
    PublishedAt time.Time       `json:"publishedAt"`
    Summary     SummarySnapshot `json:"summary"`
    Members     []MemberRow     `json:"members"`
}

// SummarySnapshot is the summary view plus the values consumers derive from
// it.
type SummarySnapshot struct {
    SummaryView
    UpCount    int                       `json:"upCount"`
    Online     bool                      `json:"online"`
    Divergence bool                      `json:"divergence"`
    States     map[observation.State]int `json:"states"`
}

// MemberRow is one observer's row of the matrix.
type MemberRow struct {
    MemberID int               `json:"member"`
    Nodes    observation.Nodes `json:"nodes"`
}

func newSnapshot(s SummaryView, m MemberMatrix, tick uint64, now time.Time) Snapshot {
    up := s.UpCount()
    snap := Snapshot{
        Tick:        tick,
        PublishedAt: now,
        Summary: SummarySnapshot{
            SummaryView: s,
            UpCount:     up,
            Online:      up > 0,
            Divergence:  s.HasDivergence(),
            States:      observation.StateCounts(s.Nodes[:]),
        },
        Members: make([]MemberRow, observation.ClusterSize),
    }
    for i := range m {
        snap.Members[i] = MemberRow{MemberID: observation.NodeID(i), Nodes: m[i]}
    }
    return snap
}
