package monitor

import (
    "context"
    "sync"

    "github.com/amirimatin/clusterview/pkg/aggregator"
)

// Watch returns a channel receiving every published snapshot. The channel is
// closed when ctx is done. Snapshots are dropped for consumers that fall
// behind.
func (m *Monitor) Watch(ctx context.Context) <-chan aggregator.Snapshot {
    ch := make(chan aggregator.Snapshot, 16)
    m.sb.add(ch)
    go func() {
        <-ctx.Done()
        m.sb.remove(ch)
        close(ch)
    }()
    return ch
}

type snapshotBus struct {
    mu   sync.Mutex
    subs map[chan aggregator.Snapshot]struct{}
}

func (b *snapshotBus) add(ch chan aggregator.Snapshot) {
    b.mu.Lock()
    if b.subs == nil { b.subs = make(map[chan aggregator.Snapshot]struct{}) }
    b.subs[ch] = struct{}{}
    b.mu.Unlock()
}

func (b *snapshotBus) remove(ch chan aggregator.Snapshot) {
    b.mu.Lock()
    delete(b.subs, ch)
    b.mu.Unlock()
}

func (b *snapshotBus) publish(s aggregator.Snapshot) {
    b.mu.Lock()
    for ch := range b.subs {
        select {
        case ch <- s:
        default:
        }
    }
    b.mu.Unlock()
}
