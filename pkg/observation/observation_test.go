package observation

import (
    "testing"
    "time"
)

func TestDefault(t *testing.T) {
    now := time.Unix(100, 0)
    o := Default(2555, now)
    if o.NodeID != 2555 || o.State != StateOffline || o.MemberState != "unknown" {
        t.Fatalf("unexpected default: %+v", o)
    }
    if o.Leader || o.Oldest || o.SeedNode {
        t.Fatalf("flags must be false: %+v", o)
    }
    if !o.LastUpdated.Equal(now) {
        t.Fatalf("lastUpdated = %v, want %v", o.LastUpdated, now)
    }
}

func TestNewNodes_IDsBySlot(t *testing.T) {
    n := NewNodes(time.Now())
    for i, o := range n {
        if o.NodeID != BaseNodeID+i {
            t.Fatalf("slot %d id = %d", i, o.NodeID)
        }
        if o.State != StateOffline {
            t.Fatalf("slot %d state = %s", i, o.State)
        }
    }
}

func TestSlot(t *testing.T) {
    cases := []struct {
        id   int
        slot int
        ok   bool
    }{
        {2551, 0, true},
        {2559, 8, true},
        {2550, 0, false},
        {2560, 0, false},
        {0, 0, false},
    }
    for _, c := range cases {
        s, ok := Slot(c.id)
        if ok != c.ok || (ok && s != c.slot) {
            t.Fatalf("Slot(%d) = %d,%v want %d,%v", c.id, s, ok, c.slot, c.ok)
        }
    }
}

func TestParseState(t *testing.T) {
    for _, st := range States {
        got, err := ParseState(string(st))
        if err != nil || got != st {
            t.Fatalf("ParseState(%q) = %q, %v", st, got, err)
        }
    }
    if _, err := ParseState("Up"); err == nil {
        t.Fatalf("expected case-sensitive rejection")
    }
    if _, err := ParseState(""); err == nil {
        t.Fatalf("expected error for empty state")
    }
}

func TestUpCount_ExactMatch(t *testing.T) {
    obs := []Observation{
        {MemberState: "up"},
        {MemberState: "Up"},
        {MemberState: "up "},
        {MemberState: "up"},
        {MemberState: "weaklyup"},
    }
    if got := UpCount(obs); got != 2 {
        t.Fatalf("UpCount = %d, want 2", got)
    }
}

func TestStateCounts(t *testing.T) {
    n := NewNodes(time.Now())
    n[0].State = StateUp
    n[1].State = StateUp
    n[2].State = StateUnreachable
    c := StateCounts(n[:])
    if c[StateUp] != 2 || c[StateUnreachable] != 1 || c[StateOffline] != 6 || c[StateDown] != 0 {
        t.Fatalf("unexpected counts: %v", c)
    }
    if got := CountInState(n[:], StateOffline); got != 6 {
        t.Fatalf("CountInState offline = %d", got)
    }
}
