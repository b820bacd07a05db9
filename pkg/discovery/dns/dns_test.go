package dns

import (
    "context"
    "strings"
    "testing"
    "time"
)

func TestParseSRVName(t *testing.T) {
    s, p, n := parseSRVName("_cluster-state._tcp.example.com")
    if s != "cluster-state" || p != "tcp" || n != "example.com" {
        t.Fatalf("parseSRVName failed: got (%q,%q,%q)", s, p, n)
    }
    s, p, n = parseSRVName("bad.srv")
    if s != "" || p != "" || n != "" {
        t.Fatalf("expected empty parts for bad input, got (%q,%q,%q)", s, p, n)
    }
}

func TestPassthroughHostPort(t *testing.T) {
    d := New(Options{Names: []string{"1.2.3.4:9551", "[::1]:9552"}, Refresh: 5 * time.Millisecond})
    got, err := d.Endpoints(context.Background())
    if err != nil { t.Fatal(err) }
    if len(got) != 2 || got[0] != "1.2.3.4:9551" || got[1] != "[::1]:9552" {
        t.Fatalf("unexpected endpoints: %#v", got)
    }
}

func TestLookupHostLocalhost(t *testing.T) {
    d := New(Options{Names: []string{"localhost"}, Port: 12345, Refresh: 5 * time.Millisecond})
    got, err := d.Endpoints(context.Background())
    if err != nil || len(got) == 0 {
        t.Fatalf("expected at least one resolved host:port, got %#v (%v)", got, err)
    }
    for _, s := range got {
        if !strings.HasSuffix(s, ":12345") {
            t.Fatalf("expected port suffix, got %#v", got)
        }
    }
}

func TestNothingResolved(t *testing.T) {
    d := New(Options{Names: []string{"  "}})
    if _, err := d.Endpoints(context.Background()); err == nil {
        t.Fatalf("expected error when nothing resolves")
    }
}
