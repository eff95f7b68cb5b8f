package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestSetup_ServesMetrics(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	tel, err := Setup(context.Background(), Options{Version: "test", Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.SegmentsFlushed.Add(context.Background(), 4)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "parrot_segments_flushed") {
		t.Errorf("exposition lacks parrot_segments_flushed:\n%s", body)
	}

	_, span := StartSpan(context.Background(), "after-setup")
	if !span.SpanContext().IsValid() {
		t.Error("span from the installed tracer provider has no valid context")
	}
	span.End()

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
