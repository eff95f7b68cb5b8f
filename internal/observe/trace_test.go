package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider globally for one test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog redirects slog.Default into a buffer for one test.
func captureLog(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan(t *testing.T) {
	exp := useTracer(t)

	ctx, span := StartSpan(context.Background(), "pipeline.cycle")
	id := TraceID(ctx)
	span.End()

	if len(id) != 32 {
		t.Errorf("TraceID = %q, want 32 hex chars", id)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "pipeline.cycle" {
		t.Fatalf("spans = %+v", spans)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != id {
		t.Errorf("recorded trace id = %s, want %s", got, id)
	}
}

func TestTraceID_WithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)
	buf := captureLog(t, slog.LevelInfo)

	Logger(context.Background()).Info("plain")
	ctx, span := StartSpan(context.Background(), "stt.transcribe")
	defer span.End()
	Logger(ctx).Info("traced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %q", lines)
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("untraced line has trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id="+TraceID(ctx)) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("traced line = %s", lines[1])
	}
}
