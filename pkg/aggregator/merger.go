package aggregator

import (
    "fmt"
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// Report is one member's freshly received view of the cluster.
type Report struct {
    // ObserverID is the node id of the member that produced the report.
    ObserverID int
    // ClaimsLeader is the member's "I am the leader" flag.
    ClaimsLeader bool
    // ClaimsOldest is the member's "I am the oldest" flag. Informational only;
    // the summary's oldest is taken from the promoted report's node flags.
    ClaimsOldest bool
    Nodes        []observation.Observation
}

// Validate checks the report without touching any state.
func (r Report) Validate() error {
    if _, ok := observation.Slot(r.ObserverID); !ok {
        return fmt.Errorf("%w: node %d", ErrUnknownObserver, r.ObserverID)
    }
    _, err := reportSlots(r.Nodes)
    return err
}

// UpCount is the number of reported nodes whose member state is "up".
func (r Report) UpCount() int { return observation.UpCount(r.Nodes) }

// OldestID returns the id of the first reported node flagged oldest, or
// observation.NoNode.
func (r Report) OldestID() int {
    for _, o := range r.Nodes {
        if o.Oldest {
            return o.NodeID
        }
    }
    return observation.NoNode
}

// Outcome describes what an absorption did to the summary.
type Outcome struct {
    Promoted     bool
    PrevLeaderID int
    LeaderID     int
    PrevOldestID int
    OldestID     int
}

// LeaderChanged reports whether the absorption moved the summary leader.
func (o Outcome) LeaderChanged() bool { return o.PrevLeaderID != o.LeaderID }
// OldestChanged reports whether the absorption moved the summary oldest.
func (o Outcome) OldestChanged() bool { return o.PrevOldestID != o.OldestID }

// Merger folds reports into a matrix and summary it does not own. It holds no
// lock; callers serialize access.
type Merger struct {
    Matrix  *MemberMatrix
    Summary *SummaryView
}

// Absorb applies r: the observer's matrix row is replaced, then the report
// is promoted into the summary iff it claims leadership and either reports
// at least as many up nodes as the summary or comes from the incumbent
// leader. An invalid report leaves both structures untouched; a valid report
// that is not promoted still replaces its observer's row.
func (m Merger) Absorb(r Report, now time.Time) (Outcome, error) {
    out := Outcome{
        PrevLeaderID: m.Summary.LeaderID,
        LeaderID:     m.Summary.LeaderID,
        PrevOldestID: m.Summary.OldestID,
        OldestID:     m.Summary.OldestID,
    }
    if err := r.Validate(); err != nil {
        return out, err
    }
    observer, _ := observation.Slot(r.ObserverID)
    if err := m.Matrix.ReplaceRow(observer, r.Nodes, now); err != nil {
        return out, err
    }
    if !ShouldPromote(r, m.Summary) {
        return out, nil
    }

    nodes := observation.NewNodes(now)
    for _, o := range r.Nodes {
        s, _ := observation.Slot(o.NodeID)
        o.LastUpdated = now
        nodes[s] = o
    }
    m.Summary.Nodes = nodes
    m.Summary.LeaderID = r.ObserverID
    m.Summary.OldestID = r.OldestID()

    out.Promoted = true
    out.LeaderID = m.Summary.LeaderID
    out.OldestID = m.Summary.OldestID
    return out, nil
}

// ShouldPromote is the leader arbitration rule. The incumbent leader may
// refresh the summary even when its up-count dropped, which keeps the
// leader stable while counts fluctuate during a membership transition.
func ShouldPromote(r Report, s *SummaryView) bool {
    if !r.ClaimsLeader {
        return false
    }
    return r.UpCount() >= s.UpCount() || r.ObserverID == s.LeaderID
}
