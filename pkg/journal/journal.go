// Package journal keeps a durable history of summary changes (leader and
// oldest changes, all-down resets, divergence flips) in a bbolt file.
//
// A Journal is safe for concurrent use: bbolt serializes write transactions
// and lets read transactions run alongside them.
package journal

import (
    "context"
    "encoding/binary"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    "go.etcd.io/bbolt"

    "github.com/amirimatin/clusterview/pkg/aggregator"
    "github.com/amirimatin/clusterview/pkg/internal/logutil"
    "github.com/amirimatin/clusterview/pkg/observability/metrics"
)

var eventsBucket = []byte("events")

// DefaultRetain is the number of entries kept when Options.Retain is zero.
const DefaultRetain = 10000

var ErrClosed = errors.New("journal: closed")

type Options struct {
    // Retain caps the number of stored entries; older ones are dropped.
    Retain int
    // ReadOnly opens the file with a shared lock; Append fails.
    ReadOnly bool
    // LockTimeout bounds waiting for the file lock; zero means 1s.
    LockTimeout time.Duration
}

// Entry is one journaled event with its sequence number.
type Entry struct {
    Seq uint64 `json:"seq"`
    aggregator.Event
}

// Journal is an append-only, size-capped event history in a bbolt file.
type Journal struct {
    db     *bbolt.DB
    path   string
    retain int
}

// Open opens or creates the journal at path.
func Open(path string, opts Options) (*Journal, error) {
    if opts.Retain <= 0 { opts.Retain = DefaultRetain }
    if opts.LockTimeout <= 0 { opts.LockTimeout = time.Second }
    db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.LockTimeout, ReadOnly: opts.ReadOnly})
    if err != nil {
        return nil, fmt.Errorf("journal: open %s: %w", path, err)
    }
    if !opts.ReadOnly {
        err = db.Update(func(tx *bbolt.Tx) error {
            _, err := tx.CreateBucketIfNotExists(eventsBucket)
            return err
        })
        if err != nil {
            db.Close()
            return nil, fmt.Errorf("journal: create bucket: %w", err)
        }
    }
    return &Journal{db: db, path: path, retain: opts.Retain}, nil
}

// Path returns the file the journal was opened from.
func (j *Journal) Path() string { return j.path }

// Close releases the bbolt file and its lock.
func (j *Journal) Close() error { return j.db.Close() }

func seqKey(v uint64) []byte {
    buf := make([]byte, 8)
    binary.BigEndian.PutUint64(buf, v)
    return buf
}

// Append stores ev and returns its sequence number. Entries beyond the
// retention cap are removed oldest first in the same transaction.
func (j *Journal) Append(ev aggregator.Event) (uint64, error) {
    var seq uint64
    err := j.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(eventsBucket)
        if b == nil { return ErrClosed }
        var err error
        if seq, err = b.NextSequence(); err != nil { return err }
        data, err := json.Marshal(Entry{Seq: seq, Event: ev})
        if err != nil { return err }
        if err := b.Put(seqKey(seq), data); err != nil { return err }
        return trim(b, seq, j.retain)
    })
    if err != nil {
        metrics.JournalAppends.WithLabelValues("error").Inc()
        return 0, err
    }
    metrics.JournalAppends.WithLabelValues("ok").Inc()
    return seq, nil
}

// trim deletes every entry older than the newest retain ones. Keys are
// consecutive sequence numbers, so the cutoff follows from seq alone.
func trim(b *bbolt.Bucket, seq uint64, retain int) error {
    if seq <= uint64(retain) { return nil }
    cutoff := seq - uint64(retain)
    c := b.Cursor()
    for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.First() {
        if err := c.Delete(); err != nil { return err }
    }
    return nil
}

// List returns up to limit most recent entries in ascending order; limit <= 0
// returns everything.
func (j *Journal) List(limit int) ([]Entry, error) {
    var out []Entry
    err := j.db.View(func(tx *bbolt.Tx) error {
        b := tx.Bucket(eventsBucket)
        if b == nil { return nil }
        c := b.Cursor()
        for k, v := c.Last(); k != nil; k, v = c.Prev() {
            var e Entry
            if err := json.Unmarshal(v, &e); err != nil {
                return fmt.Errorf("journal: entry %d: %w", binary.BigEndian.Uint64(k), err)
            }
            out = append(out, e)
            if limit > 0 && len(out) == limit { break }
        }
        return nil
    })
    if err != nil { return nil, err }
    for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
        out[l], out[r] = out[r], out[l]
    }
    return out, nil
}

// Record appends every event from events until the channel is closed or ctx
// is done. Append failures are logged and do not stop recording.
func (j *Journal) Record(ctx context.Context, events <-chan aggregator.Event, logger *log.Logger) {
    for {
        select {
        case <-ctx.Done():
            return
        case ev, ok := <-events:
            if !ok { return }
            if _, err := j.Append(ev); err != nil {
                logutil.Errorf(logger, "journal: append %s: %v", ev.Type, err)
            }
        }
    }
}
