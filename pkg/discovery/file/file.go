package file

import (
    "bufio"
    "context"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/clusterview/pkg/discovery"
)

// Options configures file/ENV-based discovery.
type Options struct {
    // Path to a file (or glob) with one endpoint per line or a comma-separated list.
    Path string
    // Env overrides the file when the variable is set and non-empty.
    Env string
    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []string
}

func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    return &impl{opts: opts}
}

func (i *impl) Endpoints(context.Context) ([]string, error) {
    i.mu.Lock()
    defer i.mu.Unlock()
    if i.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(i.opts.Env)); v != "" {
            return normalize(splitList(v)), nil
        }
    }
    if i.opts.Path == "" { return nil, nil }

    now := time.Now()
    stat, err := os.Stat(i.opts.Path)
    if err == nil {
        if stat.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
            eps, err := loadFile(i.opts.Path)
            if err != nil { return append([]string(nil), i.cache...), err }
            i.cache = eps
            i.last = now
            i.mtime = stat.ModTime()
        }
        return append([]string(nil), i.cache...), nil
    }

    matches, _ := filepath.Glob(i.opts.Path)
    if len(matches) == 0 {
        if i.cache != nil { return append([]string(nil), i.cache...), nil }
        return nil, fmt.Errorf("file discovery: %s: %w", i.opts.Path, err)
    }
    var all []string
    for _, m := range matches {
        eps, err := loadFile(m)
        if err != nil { continue }
        all = append(all, eps...)
    }
    i.cache = normalize(all)
    i.last = now
    return append([]string(nil), i.cache...), nil
}

func loadFile(path string) ([]string, error) {
    f, err := os.Open(path)
    if err != nil { return nil, err }
    defer f.Close()
    var eps []string
    s := bufio.NewScanner(f)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        eps = append(eps, splitList(line)...)
    }
    if err := s.Err(); err != nil { return nil, err }
    return normalize(eps), nil
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}

// normalize de-duplicates and sorts.
func normalize(eps []string) []string {
    set := make(map[string]struct{}, len(eps))
    out := make([]string, 0, len(eps))
    for _, e := range eps {
        if _, ok := set[e]; ok { continue }
        set[e] = struct{}{}
        out = append(out, e)
    }
    sort.Strings(out)
    return out
}
