package static

import (
    "context"
    "strings"

    "github.com/amirimatin/clusterview/pkg/discovery"
)

type staticEndpoints struct {
    eps []string
}

func (s *staticEndpoints) Endpoints(context.Context) ([]string, error) {
    return append([]string(nil), s.eps...), nil
}

// New returns a Discovery that always returns the given endpoints.
func New(endpoints ...string) discovery.Discovery {
    cleaned := make([]string, 0, len(endpoints))
    for _, v := range endpoints {
        v = strings.TrimSpace(v)
        if v != "" {
            cleaned = append(cleaned, v)
        }
    }
    return &staticEndpoints{eps: cleaned}
}

// Parse converts a comma-separated list into endpoints.
func Parse(csv string) []string {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" {
            out = append(out, p)
        }
    }
    return out
}
