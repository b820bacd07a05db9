package static

import (
    "context"
    "testing"
)

func TestParse(t *testing.T) {
    cases := []struct {
        in   string
        want []string
    }{
        {"", nil},
        {"127.0.0.1:9551", []string{"127.0.0.1:9551"}},
        {" a:9551 , b:9552 ", []string{"a:9551", "b:9552"}},
        {",,a:9551, ,b:9552,", []string{"a:9551", "b:9552"}},
    }
    for _, c := range cases {
        got := Parse(c.in)
        if len(got) != len(c.want) {
            t.Fatalf("len mismatch for %q: got %d want %d", c.in, len(got), len(c.want))
        }
        for i := range got {
            if got[i] != c.want[i] {
                t.Fatalf("[%q] item %d: got %q want %q", c.in, i, got[i], c.want[i])
            }
        }
    }
}

func TestNewReturnsCopy(t *testing.T) {
    d := New(" a:9551 ", "", "b:9552")
    got, err := d.Endpoints(context.Background())
    if err != nil { t.Fatal(err) }
    if len(got) != 2 || got[0] != "a:9551" || got[1] != "b:9552" {
        t.Fatalf("unexpected endpoints: %#v", got)
    }
    got[0] = "x"
    got2, _ := d.Endpoints(context.Background())
    if got2[0] != "a:9551" {
        t.Fatalf("expected a copy, got %#v", got2)
    }
}
