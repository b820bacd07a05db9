package tracing

import (
    "context"
    "errors"
    "testing"

    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/trace"
)

func TestDisabledIsNoop(t *testing.T) {
    shutdown, err := Setup(false)
    if err != nil { t.Fatalf("setup: %v", err) }
    defer shutdown(context.Background())

    ctx, end := StartSpan(context.Background(), "noop", attribute.String("k", "v"))
    defer end()
    if trace.SpanFromContext(ctx).SpanContext().IsValid() {
        t.Fatalf("disabled tracing must not start a span")
    }
    Fail(ctx, errors.New("ignored"))
}

func TestEnabledStartsSpan(t *testing.T) {
    shutdown, err := Setup(true)
    if err != nil { t.Fatalf("setup: %v", err) }
    defer func() {
        _ = shutdown(context.Background())
        enabled = false
    }()
    ctx, end := StartSpan(context.Background(), "poll.fetch", attribute.String("endpoint", "127.0.0.1:9551"))
    if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
        t.Fatalf("expected a recording span")
    }
    Fail(ctx, errors.New("boom"))
    end()
}
