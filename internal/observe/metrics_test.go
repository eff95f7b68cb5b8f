package observe

import (
	"context"
	"slices"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue returns the int64 sum data point whose attribute key has value, or
// the first data point when key is empty.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q: no data point with %s=%s", name, key, value)
	return 0
}

func TestLatencyHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.STTDuration.Record(ctx, 0.3)
	m.TTSDuration.Record(ctx, 0.8)
	m.TTSDuration.Record(ctx, 1.2)
	m.SegmentDuration.Record(ctx, 1.5)

	rm := collect(t, reader)
	tests := []struct {
		name   string
		count  uint64
		bounds []float64
	}{
		{"parrot.stt.duration", 1, latencyBuckets},
		{"parrot.tts.duration", 2, latencyBuckets},
		{"parrot.segment.duration", 1, segmentBuckets},
	}
	for _, tt := range tests {
		met := findMetric(rm, tt.name)
		if met == nil {
			t.Fatalf("metric %q not found", tt.name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) != 1 {
			t.Fatalf("%s: data = %+v", tt.name, met.Data)
		}
		dp := hist.DataPoints[0]
		if dp.Count != tt.count {
			t.Errorf("%s count = %d, want %d", tt.name, dp.Count, tt.count)
		}
		if !slices.Equal(dp.Bounds, tt.bounds) {
			t.Errorf("%s bounds = %v, want %v", tt.name, dp.Bounds, tt.bounds)
		}
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
	m.RecordProviderRequest(ctx, "whisper", "stt", "error")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "parrot.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumValue(t, rm, "parrot.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestPipelineCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SegmentsFlushed.Add(ctx, 3)
	m.RecordDiscard(ctx, "blank")
	m.RecordDiscard(ctx, "blank")
	m.RecordDiscard(ctx, "empty")
	m.RecordStatus(ctx, "listening")
	m.RecordUnderrun(128)
	m.RecordUnderrun(64)
	m.RecordProviderError(ctx, "piper", "tts")
	m.TranscriptCorrections.Add(ctx, 2)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "parrot.segments.flushed", "", ""); got != 3 {
		t.Errorf("segments flushed = %d, want 3", got)
	}
	if got := sumValue(t, rm, "parrot.transcripts.discarded", "reason", "blank"); got != 2 {
		t.Errorf("blank discards = %d, want 2", got)
	}
	if got := sumValue(t, rm, "parrot.status.changes", "status", "listening"); got != 1 {
		t.Errorf("listening events = %d, want 1", got)
	}
	if got := sumValue(t, rm, "parrot.playback.underruns", "", ""); got != 192 {
		t.Errorf("underrun frames = %d, want 192", got)
	}
	if got := sumValue(t, rm, "parrot.transcripts.corrections", "", ""); got != 2 {
		t.Errorf("corrections = %d, want 2", got)
	}
	if got := sumValue(t, rm, "parrot.provider.errors", "provider", "piper"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PipelineRunning.Add(ctx, 1)
	m.PipelineRunning.Add(ctx, -1)
	m.PipelineRunning.Add(ctx, 1)
	m.RecordInputRMS(0.02)
	m.RecordInputRMS(0.04)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "parrot.pipeline.running", "", ""); got != 1 {
		t.Errorf("pipeline running = %d, want 1", got)
	}

	met := findMetric(rm, "parrot.input.rms")
	if met == nil {
		t.Fatal("parrot.input.rms not found")
	}
	g, ok := met.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatal("parrot.input.rms is not a float64 gauge")
	}
	if len(g.DataPoints) != 1 || g.DataPoints[0].Value != 0.04 {
		t.Errorf("input rms data points = %+v, want last value 0.04", g.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
