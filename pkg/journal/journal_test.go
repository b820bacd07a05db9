package journal

import (
    "context"
    "path/filepath"
    "testing"
    "time"

    "github.com/amirimatin/clusterview/pkg/aggregator"
)

func openTemp(t *testing.T, opts Options) (*Journal, string) {
    t.Helper()
    path := filepath.Join(t.TempDir(), "history.db")
    j, err := Open(path, opts)
    if err != nil { t.Fatalf("open: %v", err) }
    return j, path
}

func TestAppendAndList(t *testing.T) {
    j, _ := openTemp(t, Options{})
    defer j.Close()

    at := time.Unix(1_700_000_000, 0).UTC()
    evs := []aggregator.Event{
        {Type: aggregator.EventLeaderChanged, At: at, LeaderID: 2551},
        {Type: aggregator.EventOldestChanged, At: at, LeaderID: 2551, OldestID: 2552},
        {Type: aggregator.EventLeaderCleared, At: at.Add(time.Second), PrevLeaderID: 2551, PrevOldestID: 2552},
    }
    for i, ev := range evs {
        seq, err := j.Append(ev)
        if err != nil { t.Fatalf("append: %v", err) }
        if seq != uint64(i+1) {
            t.Fatalf("seq = %d, want %d", seq, i+1)
        }
    }

    all, err := j.List(0)
    if err != nil { t.Fatalf("list: %v", err) }
    if len(all) != 3 {
        t.Fatalf("len = %d, want 3", len(all))
    }
    for i, e := range all {
        if e.Seq != uint64(i+1) || e.Type != evs[i].Type || !e.At.Equal(evs[i].At) {
            t.Fatalf("entry %d = %+v", i, e)
        }
    }

    last, err := j.List(2)
    if err != nil { t.Fatalf("list: %v", err) }
    if len(last) != 2 || last[0].Seq != 2 || last[1].Seq != 3 {
        t.Fatalf("unexpected tail: %+v", last)
    }
    if last[1].PrevLeaderID != 2551 || last[1].PrevOldestID != 2552 {
        t.Fatalf("fields lost: %+v", last[1])
    }
}

func TestRetention(t *testing.T) {
    j, _ := openTemp(t, Options{Retain: 3})
    defer j.Close()
    for i := 0; i < 5; i++ {
        if _, err := j.Append(aggregator.Event{Type: aggregator.EventLeaderChanged, LeaderID: 2551 + i}); err != nil {
            t.Fatalf("append: %v", err)
        }
    }
    all, err := j.List(0)
    if err != nil { t.Fatalf("list: %v", err) }
    if len(all) != 3 || all[0].Seq != 3 || all[2].Seq != 5 || all[2].LeaderID != 2555 {
        t.Fatalf("unexpected retained entries: %+v", all)
    }
}

func TestReopenReadOnly(t *testing.T) {
    j, path := openTemp(t, Options{})
    if _, err := j.Append(aggregator.Event{Type: aggregator.EventDivergenceChanged, Divergence: true}); err != nil {
        t.Fatalf("append: %v", err)
    }
    if err := j.Close(); err != nil { t.Fatalf("close: %v", err) }

    ro, err := Open(path, Options{ReadOnly: true})
    if err != nil { t.Fatalf("reopen: %v", err) }
    defer ro.Close()
    all, err := ro.List(0)
    if err != nil { t.Fatalf("list: %v", err) }
    if len(all) != 1 || !all[0].Divergence {
        t.Fatalf("unexpected entries: %+v", all)
    }
    if _, err := ro.Append(aggregator.Event{Type: aggregator.EventLeaderChanged}); err == nil {
        t.Fatalf("append on read-only journal succeeded")
    }
}

func TestRecordFromSubscription(t *testing.T) {
    j, _ := openTemp(t, Options{})
    defer j.Close()

    ch := make(chan aggregator.Event, 2)
    ch <- aggregator.Event{Type: aggregator.EventLeaderChanged, LeaderID: 2553}
    ch <- aggregator.Event{Type: aggregator.EventOldestChanged, OldestID: 2551}
    close(ch)
    j.Record(context.Background(), ch, nil)

    all, err := j.List(0)
    if err != nil { t.Fatalf("list: %v", err) }
    if len(all) != 2 || all[0].LeaderID != 2553 || all[1].OldestID != 2551 {
        t.Fatalf("unexpected entries: %+v", all)
    }
}
