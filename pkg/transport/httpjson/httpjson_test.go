package httpjson

import (
    "context"
    "errors"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/amirimatin/clusterview/pkg/transport"
)

func TestFetchState(t *testing.T) {
    var hits atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        hits.Add(1)
        if r.URL.Path != "/cluster-state" {
            http.NotFound(w, r)
            return
        }
        _, _ = w.Write([]byte(`{"selfPort":2551}`))
    }))
    defer srv.Close()

    c := NewClient(time.Second)
    b, err := c.FetchState(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
    if err != nil { t.Fatalf("fetch: %v", err) }
    if string(b) != `{"selfPort":2551}` {
        t.Fatalf("body = %s", b)
    }
    if n := hits.Load(); n != 1 { t.Fatalf("hits = %d, want 1", n) }
}

func TestFetchStateNon2xxIsSingleAttempt(t *testing.T) {
    var hits atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        hits.Add(1)
        http.Error(w, "starting", http.StatusServiceUnavailable)
    }))
    defer srv.Close()

    c := NewClient(time.Second)
    _, err := c.FetchState(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
    var se *StatusError
    if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
        t.Fatalf("expected StatusError 503, got %v", err)
    }
    if n := hits.Load(); n != 1 { t.Fatalf("client retried: hits = %d", n) }
}

func TestFetchStateTimeout(t *testing.T) {
    release := make(chan struct{})
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        select {
        case <-release:
        case <-r.Context().Done():
        }
    }))
    defer srv.Close()
    defer close(release)

    c := NewClient(5 * time.Second)
    ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
    defer cancel()
    if _, err := c.FetchState(ctx, strings.TrimPrefix(srv.URL, "http://")); err == nil {
        t.Fatalf("expected timeout error")
    }
}

func TestManagementServer(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    s := NewServer("127.0.0.1:0", nil)
    err := s.Start(ctx, transport.Handlers{
        Snapshot:    func(context.Context) ([]byte, error) { return []byte(`{"tick":3}`), nil },
        Summary:     func(context.Context) ([]byte, error) { return nil, errors.New("boom") },
        Convergence: func(context.Context) ([]byte, error) { return []byte(`{"divergence":false}`), nil },
    })
    if err != nil { t.Fatalf("start: %v", err) }
    defer s.Stop(context.Background())

    c := NewClient(time.Second)
    b, err := c.GetSnapshot(ctx, s.Addr())
    if err != nil || string(b) != `{"tick":3}` {
        t.Fatalf("snapshot = %s, %v", b, err)
    }
    if _, err := c.GetSummary(ctx, s.Addr()); err == nil {
        t.Fatalf("expected handler error to surface as non-2xx")
    }

    cases := []struct {
        method, path string
        code         int
        body         string
    }{
        {http.MethodGet, "/convergence", http.StatusOK, `{"divergence":false}`},
        {http.MethodGet, "/healthz", http.StatusOK, "ok"},
        {http.MethodPost, "/snapshot", http.StatusMethodNotAllowed, ""},
        {http.MethodGet, "/metrics", http.StatusOK, ""},
    }
    for _, tc := range cases {
        req, _ := http.NewRequest(tc.method, "http://"+s.Addr()+tc.path, nil)
        resp, err := http.DefaultClient.Do(req)
        if err != nil { t.Fatalf("%s %s: %v", tc.method, tc.path, err) }
        body, _ := io.ReadAll(resp.Body)
        resp.Body.Close()
        if resp.StatusCode != tc.code {
            t.Fatalf("%s %s: status %d, want %d", tc.method, tc.path, resp.StatusCode, tc.code)
        }
        if tc.body != "" && string(body) != tc.body {
            t.Fatalf("%s %s: body %q, want %q", tc.method, tc.path, body, tc.body)
        }
    }
}

func TestHandlerNotSupported(t *testing.T) {
    rec := httptest.NewRecorder()
    Handler(transport.Handlers{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
    if rec.Code != http.StatusNotImplemented {
        t.Fatalf("status = %d, want 501", rec.Code)
    }
}
