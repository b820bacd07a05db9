package poller

import (
    "encoding/json"
    "fmt"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/observation"
    "github.com/amirimatin/clusterview/pkg/transport"
)

// DecodeReport validates a raw status document and converts it into a
// report. A document is accepted or rejected as a whole; on error nothing of
// it may be applied.
func DecodeReport(b []byte) (aggregator.Report, error) {
    var doc transport.StateDocument
    if err := json.Unmarshal(b, &doc); err != nil {
        return aggregator.Report{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
    }
    return ReportFromDocument(doc)
}

// ReportFromDocument converts an already decoded document.
func ReportFromDocument(doc transport.StateDocument) (aggregator.Report, error) {
    var r aggregator.Report
    switch {
    case doc.SelfPort == nil:
        return r, fmt.Errorf("%w: missing selfPort", ErrMalformedReport)
    case doc.Leader == nil:
        return r, fmt.Errorf("%w: missing leader", ErrMalformedReport)
    case doc.Nodes == nil:
        return r, fmt.Errorf("%w: missing nodes", ErrMalformedReport)
    }
    r.ObserverID = *doc.SelfPort
    r.ClaimsLeader = *doc.Leader
    if doc.Oldest != nil { r.ClaimsOldest = *doc.Oldest }

    r.Nodes = make([]observation.Observation, 0, len(doc.Nodes))
    for i, n := range doc.Nodes {
        if n.Port == nil || n.State == nil || n.MemberState == nil {
            return aggregator.Report{}, fmt.Errorf("%w: node %d: missing port, state or memberState", ErrMalformedReport, i)
        }
        st, err := observation.ParseState(*n.State)
        if err != nil {
            return aggregator.Report{}, fmt.Errorf("%w: node %d: %v", ErrMalformedReport, *n.Port, err)
        }
        r.Nodes = append(r.Nodes, observation.Observation{
            NodeID:      *n.Port,
            State:       st,
            MemberState: *n.MemberState,
            Leader:      n.Leader,
            Oldest:      n.Oldest,
            SeedNode:    n.SeedNode,
        })
    }
    if err := r.Validate(); err != nil {
        return aggregator.Report{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
    }
    return r, nil
}

// EncodeReport renders a report as the document a member would serve. It is
// the inverse of DecodeReport and is used by simulated members.
func EncodeReport(r aggregator.Report) ([]byte, error) {
    self, leader, oldest := r.ObserverID, r.ClaimsLeader, r.ClaimsOldest
    doc := transport.StateDocument{SelfPort: &self, Leader: &leader, Oldest: &oldest, Nodes: []transport.NodeDocument{}}
    for _, o := range r.Nodes {
        port, state, ms := o.NodeID, string(o.State), o.MemberState
        doc.Nodes = append(doc.Nodes, transport.NodeDocument{
            Port: &port, State: &state, MemberState: &ms,
            Leader: o.Leader, Oldest: o.Oldest, SeedNode: o.SeedNode,
        })
    }
    return json.Marshal(doc)
}
