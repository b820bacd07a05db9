package aggregator

import (
    "strconv"
    "sync"
    "time"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// Options configures an Aggregator.
type Options struct {
    // StaleAfter is the staleness threshold; zero means DefaultStaleAfter.
    StaleAfter time.Duration
    // Now is the clock; nil means time.Now.
    Now func() time.Time
}

// Aggregator owns the member matrix and the summary view. Writes are
// serialized by a mutex; readers get deep copies through Snapshot.
type Aggregator struct {
    opts Options

    mu         sync.RWMutex
    matrix     MemberMatrix
    summary    SummaryView
    sweeps     uint64
    divergence bool

    eb eventBus
}

// New returns an aggregator in its initial state: every node offline, no
// leader and no oldest.
func New(opts Options) *Aggregator {
    if opts.StaleAfter <= 0 { opts.StaleAfter = DefaultStaleAfter }
    if opts.Now == nil { opts.Now = time.Now }
    now := opts.Now()
    return &Aggregator{
        opts:    opts,
        matrix:  NewMemberMatrix(now),
        summary: NewSummaryView(now),
    }
}

// StaleAfter returns the configured staleness threshold.
func (a *Aggregator) StaleAfter() time.Duration { return a.opts.StaleAfter }

// SweepResult reports how many observations a sweep demoted.
type SweepResult struct {
    Summary int
    Members int
}

// Sweep demotes stale observations in the summary and in every matrix row.
// The poller calls it once per tick before issuing requests.
func (a *Aggregator) Sweep() SweepResult {
    now := a.opts.Now()
    a.mu.Lock()
    a.sweeps++
    res := SweepResult{
        Summary: Sweep(&a.summary.Nodes, now, a.opts.StaleAfter),
        Members: a.matrix.Sweep(now, a.opts.StaleAfter),
    }
    evs := a.divergenceEventLocked(now)
    a.mu.Unlock()
    a.eb.publish(evs...)
    return res
}

// Absorb folds one member's report into the matrix and, when the leader
// arbitration allows it, into the summary.
func (a *Aggregator) Absorb(r Report) (Outcome, error) {
    now := a.opts.Now()
    a.mu.Lock()
    out, err := Merger{Matrix: &a.matrix, Summary: &a.summary}.Absorb(r, now)
    if err != nil {
        a.mu.Unlock()
        return out, err
    }
    var evs []Event
    if out.LeaderChanged() {
        evs = append(evs, Event{Type: EventLeaderChanged, At: now, LeaderID: out.LeaderID, PrevLeaderID: out.PrevLeaderID, OldestID: out.OldestID})
    }
    if out.OldestChanged() {
        evs = append(evs, Event{Type: EventOldestChanged, At: now, LeaderID: out.LeaderID, OldestID: out.OldestID, PrevOldestID: out.PrevOldestID})
    }
    evs = append(evs, a.divergenceEventLocked(now)...)
    a.mu.Unlock()
    a.eb.publish(evs...)
    return out, nil
}

// FetchFailed applies the all-down fallback after a failed or absent fetch:
// when every summary node is offline, the leader and oldest claims have no
// live source left and are cleared. It reports whether anything was cleared.
func (a *Aggregator) FetchFailed() bool {
    now := a.opts.Now()
    a.mu.Lock()
    if !a.summary.AllOffline() || (a.summary.LeaderID == observation.NoNode && a.summary.OldestID == observation.NoNode) {
        a.mu.Unlock()
        return false
    }
    ev := Event{
        Type:         EventLeaderCleared,
        At:           now,
        PrevLeaderID: a.summary.LeaderID,
        PrevOldestID: a.summary.OldestID,
        Details:      map[string]string{"offline": strconv.Itoa(observation.ClusterSize)},
    }
    a.summary.LeaderID = observation.NoNode
    a.summary.OldestID = observation.NoNode
    a.mu.Unlock()
    a.eb.publish(ev)
    return true
}

// Summary returns a copy of the summary view.
func (a *Aggregator) Summary() SummaryView {
    a.mu.RLock()
    defer a.mu.RUnlock()
    return a.summary
}

// Matrix returns a copy of the member matrix.
func (a *Aggregator) Matrix() MemberMatrix {
    a.mu.RLock()
    defer a.mu.RUnlock()
    return a.matrix
}

// HasDivergence reports whether any summary node is unreachable.
func (a *Aggregator) HasDivergence() bool {
    a.mu.RLock()
    defer a.mu.RUnlock()
    return a.summary.HasDivergence()
}

// Snapshot returns a read-only copy of the whole state with derived fields.
func (a *Aggregator) Snapshot() Snapshot {
    a.mu.RLock()
    summary := a.summary
    matrix := a.matrix
    sweeps := a.sweeps
    a.mu.RUnlock()
    return newSnapshot(summary, matrix, sweeps, a.opts.Now())
}

func (a *Aggregator) divergenceEventLocked(now time.Time) []Event {
    d := a.summary.HasDivergence()
    if d == a.divergence {
        return nil
    }
    a.divergence = d
    return []Event{{Type: EventDivergenceChanged, At: now, LeaderID: a.summary.LeaderID, Divergence: d}}
}
