package etcd

import (
    "context"
    "errors"
    "testing"
    "time"

    "go.etcd.io/etcd/api/v3/mvccpb"
    clientv3 "go.etcd.io/etcd/client/v3"
)

type fakeKV struct {
    calls  int
    prefix string
    kvs    []*mvccpb.KeyValue
    err    error
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
    f.calls++
    f.prefix = key
    if f.err != nil { return nil, f.err }
    return &clientv3.GetResponse{Kvs: f.kvs}, nil
}

func kv(k, v string) *mvccpb.KeyValue { return &mvccpb.KeyValue{Key: []byte(k), Value: []byte(v)} }

func TestListsPrefix(t *testing.T) {
    f := &fakeKV{kvs: []*mvccpb.KeyValue{
        kv("/cv/2553", "10.0.0.3:9553"),
        kv("/cv/2551", "10.0.0.1:9551"),
        kv("/cv/dup", "10.0.0.1:9551"),
        kv("/cv/blank", " "),
    }}
    d := newWithKV(Options{Prefix: "/cv", Refresh: time.Hour}, f)
    got, err := d.Endpoints(context.Background())
    if err != nil { t.Fatal(err) }
    if f.prefix != "/cv/" {
        t.Fatalf("listed %q, want /cv/", f.prefix)
    }
    if len(got) != 2 || got[0] != "10.0.0.1:9551" || got[1] != "10.0.0.3:9553" {
        t.Fatalf("unexpected endpoints: %#v", got)
    }
    // cached within the refresh window
    if _, err := d.Endpoints(context.Background()); err != nil { t.Fatal(err) }
    if f.calls != 1 { t.Fatalf("calls = %d, want 1", f.calls) }
}

func TestErrorKeepsLastAnswer(t *testing.T) {
    f := &fakeKV{kvs: []*mvccpb.KeyValue{kv("/clusterview/members/a", "h:9551")}}
    d := newWithKV(Options{Refresh: time.Nanosecond}, f)
    if _, err := d.Endpoints(context.Background()); err != nil { t.Fatal(err) }
    time.Sleep(time.Millisecond)
    f.err = errors.New("etcdserver: request timed out")
    got, err := d.Endpoints(context.Background())
    if err == nil { t.Fatalf("expected error") }
    if len(got) != 1 || got[0] != "h:9551" {
        t.Fatalf("expected cached endpoints alongside error, got %#v", got)
    }
}

func TestNewClientRequiresEndpoints(t *testing.T) {
    if _, err := New(Options{}); err == nil {
        t.Fatalf("expected error without etcd endpoints")
    }
}
