package aggregator

import (
    "context"
    "sync"
    "time"
)

// EventType names the kind of summary change an Event reports.
type EventType string

const (
    EventLeaderChanged     EventType = "leader_changed"
    EventOldestChanged     EventType = "oldest_changed"
    EventLeaderCleared     EventType = "leader_cleared" // all nodes offline
    EventDivergenceChanged EventType = "divergence_changed"
)

// Event describes a change of the summary. Only the fields relevant to the
// event type are meaningful.
type Event struct {
    Type         EventType         `json:"type"`
    At           time.Time         `json:"at"`
    LeaderID     int               `json:"leader"`
    PrevLeaderID int               `json:"prevLeader"`
    OldestID     int               `json:"oldest"`
    PrevOldestID int               `json:"prevOldest"`
    Divergence   bool              `json:"divergence"`
    Details      map[string]string `json:"details,omitempty"`
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events are dropped when the consumer
// falls behind so that the writer never blocks on a reader.
func (a *Aggregator) Subscribe(ctx context.Context) <-chan Event {
    return a.SubscribeBuffered(ctx, defaultEventBuffer, nil)
}

// SubscribeBuffered is Subscribe with a chosen buffer size. onDrop, when set,
// is called on the publishing goroutine for every event the subscriber
// missed; it must not block or subscribe.
func (a *Aggregator) SubscribeBuffered(ctx context.Context, buffer int, onDrop func(Event)) <-chan Event {
    if buffer <= 0 { buffer = defaultEventBuffer }
    ch := make(chan Event, buffer)
    a.eb.add(ch, onDrop)
    go func() {
        <-ctx.Done()
        a.eb.remove(ch)
        close(ch)
    }()
    return ch
}

const defaultEventBuffer = 64

type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]func(Event)
}

func (e *eventBus) add(ch chan Event, onDrop func(Event)) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]func(Event)) }
    e.subs[ch] = onDrop
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(evs ...Event) {
    if len(evs) == 0 { return }
    e.mu.Lock()
    for ch, onDrop := range e.subs {
        for _, ev := range evs {
            select {
            case ch <- ev:
            default:
                if onDrop != nil { onDrop(ev) }
            }
        }
    }
    e.mu.Unlock()
}
