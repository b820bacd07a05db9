package discovery

import (
    "context"

    "github.com/amirimatin/clusterview/pkg/observation"
)

// Discovery provides the member endpoints (host:port) polled each round.
// Observer identity comes from the documents themselves, so the order of the
// returned endpoints carries no meaning.
type Discovery interface {
    Endpoints(ctx context.Context) ([]string, error)
}

// Func adapts a plain function to Discovery.
type Func func(ctx context.Context) ([]string, error)

func (f Func) Endpoints(ctx context.Context) ([]string, error) { return f(ctx) }

// Limit returns at most observation.ClusterSize endpoints, dropping empty
// entries and duplicates while keeping the original order.
func Limit(eps []string) []string {
    seen := make(map[string]struct{}, len(eps))
    out := make([]string, 0, observation.ClusterSize)
    for _, e := range eps {
        if e == "" { continue }
        if _, ok := seen[e]; ok { continue }
        seen[e] = struct{}{}
        out = append(out, e)
        if len(out) == observation.ClusterSize { break }
    }
    return out
}
