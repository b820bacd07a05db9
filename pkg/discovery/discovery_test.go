package discovery

import (
    "context"
    "fmt"
    "testing"
)

func TestLimit(t *testing.T) {
    var in []string
    for i := 0; i < 12; i++ { in = append(in, fmt.Sprintf("h:%d", i)) }
    in = append([]string{"", "h:0"}, in...)
    got := Limit(in)
    if len(got) != 9 {
        t.Fatalf("len = %d, want 9", len(got))
    }
    for i, e := range got {
        if e != fmt.Sprintf("h:%d", i) {
            t.Fatalf("item %d = %q", i, e)
        }
    }
    if got := Limit(nil); len(got) != 0 {
        t.Fatalf("Limit(nil) = %v", got)
    }
}

func TestFunc(t *testing.T) {
    d := Func(func(context.Context) ([]string, error) { return []string{"a:1"}, nil })
    got, err := d.Endpoints(context.Background())
    if err != nil || len(got) != 1 || got[0] != "a:1" {
        t.Fatalf("got %v, %v", got, err)
    }
}
