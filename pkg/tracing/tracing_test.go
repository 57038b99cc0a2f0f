package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("expected tracing to be disabled by default")
	}
	if cfg.ServiceName != "framerelay" {
		t.Errorf("expected service name 'framerelay', got '%s'", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestSpanHelpers_NoProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()

	AddSpanAttributes(ctx, attribute.String("test.key", "test.value"))
	RecordError(ctx, errors.New("test error"))
}

func TestTraceHandshake(t *testing.T) {
	ctx, span := TraceHandshake(context.Background(), "register", "conn-1", "stream-1")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	span.End()
}

func TestTraceHTTPRequest(t *testing.T) {
	ctx, span := TraceHTTPRequest(context.Background(), "GET", "/health")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	span.End()
}
