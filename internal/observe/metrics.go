// Package observe provides application-wide observability primitives for
// parrot: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Instruments live in [Metrics]. [Setup] installs the global providers and
// bridges them to Prometheus; components that are not handed a *Metrics fall
// back to [DefaultMetrics], which binds to whatever global meter provider is
// installed when it is first called.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parrot metrics.
const meterName = "github.com/MrWong99/parrot"

// Metrics holds the instruments recorded by the pipeline and the control
// surface.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ResampleDuration tracks resampling of synthesised audio.
	ResampleDuration metric.Float64Histogram

	// CycleDuration tracks one flush cycle, from segment flush until the
	// pipeline returns to listening.
	CycleDuration metric.Float64Histogram

	// SegmentDuration tracks the audio length of flushed speech segments.
	SegmentDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsFlushed counts speech segments handed to STT.
	SegmentsFlushed metric.Int64Counter

	// TranscriptsDiscarded counts transcripts that were not synthesised. Use
	// with attribute.String("reason", ...).
	TranscriptsDiscarded metric.Int64Counter

	// TranscriptCorrections counts vocabulary substitutions in transcripts.
	TranscriptCorrections metric.Int64Counter

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// PlaybackUnderruns counts output frames zero-filled mid-utterance.
	PlaybackUnderruns metric.Int64Counter

	// StatusChanges counts pipeline status events. Use with
	// attribute.String("status", ...).
	StatusChanges metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// PipelineRunning is 1 while a pipeline run is live.
	PipelineRunning metric.Int64UpDownCounter

	// InputRMS is the most recent diagnostic input energy sample.
	InputRMS metric.Float64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control surface latency. Use with
	// attributes method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// httpBuckets covers control requests, which are mostly in-memory.
var httpBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.25, 1,
}

// segmentBuckets covers utterance lengths from a short word to a long sentence.
var segmentBuckets = []float64{
	0.3, 0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

// builder creates instruments on one meter and collects their errors so
// NewMetrics can report them together.
type builder struct {
	meter metric.Meter
	errs  []error
}

func (b *builder) latency(name, desc string, buckets ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.errs = append(b.errs, err)
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{meter: mp.Meter(meterName)}
	met := &Metrics{
		STTDuration:      b.latency("parrot.stt.duration", "Latency of speech-to-text transcription.", latencyBuckets...),
		TTSDuration:      b.latency("parrot.tts.duration", "Latency of text-to-speech synthesis.", latencyBuckets...),
		ResampleDuration: b.latency("parrot.resample.duration", "Latency of resampling synthesised audio to the output rate.", latencyBuckets...),
		CycleDuration:    b.latency("parrot.cycle.duration", "Latency from segment flush until the pipeline returns to listening.", latencyBuckets...),
		SegmentDuration:  b.latency("parrot.segment.duration", "Audio length of flushed speech segments.", segmentBuckets...),

		SegmentsFlushed:       b.counter("parrot.segments.flushed", "Total speech segments flushed to transcription."),
		TranscriptsDiscarded:  b.counter("parrot.transcripts.discarded", "Total transcripts dropped before synthesis by reason."),
		TranscriptCorrections: b.counter("parrot.transcripts.corrections", "Total vocabulary substitutions applied to transcripts."),
		ProviderRequests:      b.counter("parrot.provider.requests", "Total provider requests by provider, kind and status."),
		ProviderErrors:        b.counter("parrot.provider.errors", "Total provider errors by provider and kind."),
		PlaybackUnderruns:     b.counter("parrot.playback.underruns", "Total output frames zero-filled because the playback buffer ran dry."),
		StatusChanges:         b.counter("parrot.status.changes", "Total pipeline status events by status."),

		HTTPRequestDuration: b.latency("parrot.http.request.duration", "HTTP request latency by method, route and status.", httpBuckets...),
	}

	var err error
	met.PipelineRunning, err = b.meter.Int64UpDownCounter("parrot.pipeline.running",
		metric.WithDescription("1 while a pipeline run is active."))
	b.errs = append(b.errs, err)
	met.InputRMS, err = b.meter.Float64Gauge("parrot.input.rms",
		metric.WithDescription("Most recent input RMS energy sample."))
	b.errs = append(b.errs, err)

	if err := errors.Join(b.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordDiscard records a transcript dropped before synthesis.
func (m *Metrics) RecordDiscard(ctx context.Context, reason string) {
	m.TranscriptsDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordStatus records a pipeline status event.
func (m *Metrics) RecordStatus(ctx context.Context, status string) {
	m.StatusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordUnderrun records missing zero-filled output frames.
func (m *Metrics) RecordUnderrun(frames int) {
	m.PlaybackUnderruns.Add(context.Background(), int64(frames))
}

// RecordInputRMS records a diagnostic input energy sample.
func (m *Metrics) RecordInputRMS(rms float64) {
	m.InputRMS.Record(context.Background(), rms)
}
