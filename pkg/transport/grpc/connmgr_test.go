package grpc

import (
    "context"
    "testing"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials/insecure"
)

func lazyDialer(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // non-blocking dial: no server is needed to create the conn object
    return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func TestConnManagerReuseAndEvict(t *testing.T) {
    m := NewConnManager(time.Hour, lazyDialer)
    defer m.Close()
    ctx := context.Background()

    cc1, rel1, err := m.Get(ctx, "127.0.0.1:1")
    if err != nil { t.Fatalf("get: %v", err) }
    cc2, rel2, err := m.Get(ctx, "127.0.0.1:1")
    if err != nil { t.Fatalf("get: %v", err) }
    if cc1 != cc2 {
        t.Fatalf("expected the cached connection to be reused")
    }
    if _, rel3, err := m.Get(ctx, "127.0.0.1:2"); err != nil {
        t.Fatalf("get: %v", err)
    } else {
        rel3()
    }
    if m.Len() != 2 { t.Fatalf("len = %d, want 2", m.Len()) }

    // referenced connections survive eviction
    future := time.Now().Add(time.Minute)
    if n := m.evictIdle(future); n != 1 {
        t.Fatalf("evicted %d, want 1", n)
    }
    rel1()
    rel2()
    if n := m.evictIdle(future); n != 1 {
        t.Fatalf("evicted %d after release, want 1", n)
    }
    if m.Len() != 0 { t.Fatalf("len = %d, want 0", m.Len()) }
}
