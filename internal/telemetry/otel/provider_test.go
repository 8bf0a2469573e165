package otel

import (
	"context"
	"testing"
)

func TestSetupNoopWhenDisabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if p.Gate() != nil {
		t.Fatalf("expected nil gate instruments when telemetry disabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithMetricsAndTraces(t *testing.T) {
	p, err := Setup(context.Background(), Config{EnableMetrics: true, EnableTraces: true})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer p.Shutdown(context.Background())

	g := p.Gate()
	if g == nil {
		t.Fatalf("expected non-nil gate instruments")
	}
	span, ctx := g.StartDecision(context.Background(), "enforce")
	if span == nil {
		t.Fatalf("expected non-nil decision span")
	}
	g.RecordDecision(span, "deny", "enforce")
	g.RecordResolverError(ctx, "unresolved")
}

func TestEnvBool(t *testing.T) {
	cases := map[string]bool{"1": true, "true": true, "on": true, "0": false, "false": false, "off": false, "": true}
	for in, want := range cases {
		if got := EnvBool(in, true); got != want {
			t.Errorf("EnvBool(%q, true) = %v, want %v", in, got, want)
		}
	}
}

func TestParseHeadersEnv(t *testing.T) {
	got := ParseHeadersEnv("a=1,b=2; c=3")
	if got["a"] != "1" || got["b"] != "2" || got["c"] != "3" {
		t.Fatalf("got %v", got)
	}
	if ParseHeadersEnv("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
