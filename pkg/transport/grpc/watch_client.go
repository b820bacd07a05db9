package grpc

import (
    "context"
    "errors"
    "io"

    "google.golang.org/grpc"

    "github.com/amirimatin/clusterview/pkg/transport"
)

// Watch opens the Monitor/Watch server stream on addr and invokes onSnapshot
// for every published snapshot. It returns nil when the server ends the
// stream and ctx.Err() when ctx is done.
func (c *Client) Watch(ctx context.Context, addr string, onSnapshot func([]byte)) error {
    cc, rel, err := c.getConn(ctx, addr)
    if err != nil { return err }
    defer rel()
    sd := &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}
    cs, err := cc.NewStream(ctx, sd, methodWatch)
    if err != nil { return err }
    if err := cs.SendMsg(&empty{}); err != nil { return err }
    _ = cs.CloseSend()
    for {
        var m blob
        if err := cs.RecvMsg(&m); err != nil {
            if errors.Is(err, io.EOF) { return nil }
            if ctx.Err() != nil { return ctx.Err() }
            return err
        }
        if onSnapshot != nil { onSnapshot(m.Data) }
    }
}

var _ transport.Watcher = (*Client)(nil)
