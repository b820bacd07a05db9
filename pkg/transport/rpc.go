package transport

import "context"

// StateDocument is the status document a cluster member serves at
// /cluster-state. Pointer fields are required; a nil pointer means the field
// was absent from the payload.
type StateDocument struct {
    SelfPort *int           `json:"selfPort"`
    Leader   *bool          `json:"leader"`
    Oldest   *bool          `json:"oldest"`
    Nodes    []NodeDocument `json:"nodes"`
}

// NodeDocument is one member's view of another node.
type NodeDocument struct {
    Port        *int    `json:"port"`
    State       *string `json:"state"`
    MemberState *string `json:"memberState"`
    Leader      bool    `json:"leader"`
    Oldest      bool    `json:"oldest"`
    SeedNode    bool    `json:"seedNode"`
}

// StateFetcher retrieves the raw status document served by the member at
// addr. Implementations must not retry; the poll loop owns the cadence.
type StateFetcher interface {
    FetchState(ctx context.Context, addr string) ([]byte, error)
}

// SnapshotFunc returns a JSON-encoded payload for the management API.
// Using []byte avoids import cycles on aggregator types.
type SnapshotFunc func(ctx context.Context) ([]byte, error)

// WatchFunc subscribes to published snapshots. The returned channel is closed
// when ctx is done.
type WatchFunc func(ctx context.Context) <-chan []byte

// Handlers back the management endpoints. Nil handlers are reported as not
// supported.
type Handlers struct {
    Snapshot    SnapshotFunc
    Summary     SnapshotFunc
    Convergence SnapshotFunc
    Watch       WatchFunc
}

// RPCServer exposes the published cluster state to consumers.
type RPCServer interface {
    Start(ctx context.Context, h Handlers) error
    Addr() string
    Stop(ctx context.Context) error
}

// RPCClient reads published state from a running monitor using the chosen
// management protocol (HTTP/JSON or gRPC JSON codec).
type RPCClient interface {
    GetSnapshot(ctx context.Context, addr string) ([]byte, error)
    GetSummary(ctx context.Context, addr string) ([]byte, error)
}

// Watcher is an optional client for the snapshot stream (gRPC only). Watch
// blocks until the stream ends or ctx is done and invokes onSnapshot for each
// published snapshot.
type Watcher interface {
    Watch(ctx context.Context, addr string, onSnapshot func([]byte)) error
}
