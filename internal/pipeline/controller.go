// Package pipeline drives the capture → VAD → STT → TTS → playback loop.
//
// A [Controller] owns at most one live run. The run goroutine opens the
// capture and playback devices, then polls the VAD engine on a fixed ticker.
// When a speech segment is complete it is transcribed, synthesised,
// resampled to the output rate, and queued for playback. All slow work
// happens on the run goroutine; the device callbacks only touch the VAD
// engine and the playback buffer, each behind its own short critical section.
//
// Stopping sets a per-run flag. A cycle that is already inside STT or TTS
// runs to completion; the loop observes the flag at its next tick, closes the
// devices, and emits [StatusStopped].
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/playback"
	"github.com/MrWong99/parrot/internal/transcript"
	"github.com/MrWong99/parrot/internal/vad"
	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/audio/device"
	"github.com/MrWong99/parrot/pkg/audio/resample"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	pvad "github.com/MrWong99/parrot/pkg/provider/vad"
)

// DefaultPollInterval is how often the run loop checks for a complete segment.
const DefaultPollInterval = 50 * time.Millisecond

// blankMarker is emitted by whisper for segments without recognisable speech.
const blankMarker = "[BLANK_AUDIO]"

// Config holds the collaborators of a [Controller].
type Config struct {
	// Devices resolves and opens the capture and playback devices. Required.
	Devices *device.Manager

	// STT transcribes flushed segments. Required.
	STT stt.Provider

	// TTS synthesises accepted transcripts. A nil TTS skips synthesis.
	TTS tts.Provider

	// Corrector rewrites vocabulary terms in accepted transcripts before
	// synthesis. Nil skips correction.
	Corrector *transcript.Corrector

	// STTName and TTSName label provider metrics. Default "stt" and "tts".
	STTName string
	TTSName string

	// Classifier overrides the VAD engine's energy classifier.
	Classifier pvad.Classifier

	// Metrics receives pipeline instrumentation. Defaults to
	// observe.DefaultMetrics.
	Metrics *observe.Metrics

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration

	// SilenceDuration is the initial end-of-utterance silence. Defaults to
	// vad.DefaultSilenceDuration.
	SilenceDuration time.Duration

	// Now is the clock used for VAD timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Controller runs the conversational audio loop. All methods are safe for
// concurrent use.
type Controller struct {
	devices    *device.Manager
	stt        stt.Provider
	tts        tts.Provider
	corrector  *transcript.Corrector
	sttName    string
	ttsName    string
	classifier pvad.Classifier
	metrics    *observe.Metrics
	poll       time.Duration
	now        func() time.Time

	silence  atomic.Int64
	running  atomic.Bool
	playback *playback.Buffer
	events   broadcaster

	mu  sync.Mutex
	cur *run
}

// run is the state of one Start → stopped lifetime.
type run struct {
	id     string
	stop   atomic.Bool
	engine atomic.Pointer[vad.Engine]
	done   chan struct{}
	err    error
}

// New creates a Controller. It does not touch any device until Start.
func New(cfg Config) (*Controller, error) {
	if cfg.Devices == nil {
		return nil, errors.New("pipeline: device manager is required")
	}
	if cfg.STT == nil {
		return nil, errors.New("pipeline: stt provider is required")
	}
	c := &Controller{
		devices:    cfg.Devices,
		stt:        cfg.STT,
		tts:        cfg.TTS,
		corrector:  cfg.Corrector,
		sttName:    cmp.Or(cfg.STTName, "stt"),
		ttsName:    cmp.Or(cfg.TTSName, "tts"),
		classifier: cfg.Classifier,
		metrics:    cfg.Metrics,
		poll:       cfg.PollInterval,
		now:        cfg.Now,
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.poll <= 0 {
		c.poll = DefaultPollInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	silence := cfg.SilenceDuration
	if silence <= 0 {
		silence = vad.DefaultSilenceDuration
	}
	c.silence.Store(int64(silence))
	c.playback = playback.NewBuffer(playback.WithUnderrunHook(c.metrics.RecordUnderrun))
	c.events.last = Event{Status: StatusIdle, Time: time.Now()}
	return c, nil
}

// Start begins a new run. It is a no-op while a run is live, including a run
// that has been asked to stop but has not yet reached its next tick.
// Cancelling ctx ends the run the same way Stop does.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return
	}

	r := &run{id: uuid.NewString(), done: make(chan struct{})}
	c.cur = r
	c.running.Store(true)
	c.metrics.PipelineRunning.Add(ctx, 1)
	c.emit(ctx, r, StatusListening)

	slog.Info("pipeline started", "run_id", r.id)
	go c.run(ctx, r)
}

// Stop asks the live run to end. It returns immediately; use Wait to block
// until the run has released its devices.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r != nil {
		r.stop.Store(true)
	}
}

// Running reports whether a run is live.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Wait blocks until the most recent run has ended and returns its error.
// It returns nil immediately if Start was never called.
func (c *Controller) Wait() error {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// SilenceDuration returns the end-of-utterance silence currently in effect.
func (c *Controller) SilenceDuration() time.Duration {
	return time.Duration(c.silence.Load())
}

// SetSilenceDuration changes the end-of-utterance silence. It takes effect at
// the next poll, including during a live run.
func (c *Controller) SetSilenceDuration(d time.Duration) {
	c.silence.Store(int64(d))
}

// Subscribe registers a status observer. Events are delivered on a buffered
// channel of the given size; when it is full the oldest pending event is
// dropped. Call cancel to unregister and close the channel.
func (c *Controller) Subscribe(size int) (events <-chan Event, cancel func()) {
	return c.events.subscribe(size)
}

// Status returns the most recently emitted event.
func (c *Controller) Status() Event {
	return c.events.current()
}

func (c *Controller) emit(ctx context.Context, r *run, s Status) {
	c.metrics.RecordStatus(ctx, s.String())
	c.events.publish(Event{Status: s, RunID: r.id, Time: time.Now()})
}

func (c *Controller) run(ctx context.Context, r *run) {
	defer close(r.done)

	in, out, err := c.openDevices(r)
	if err != nil {
		slog.Error("pipeline: failed to open audio devices", "run_id", r.id, "err", err)
		r.err = err
		c.finish(ctx, r)
		return
	}

	inRate, outRate := in.Format().SampleRate, out.Format().SampleRate
	slog.Info("audio devices opened",
		"run_id", r.id,
		"input", in.Format().String(),
		"output", out.Format().String(),
	)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.stop.Store(true)
		case <-ticker.C:
		}
		if r.stop.Load() {
			break
		}
		c.tick(ctx, r, inRate, outRate)
	}

	if err := in.Close(); err != nil {
		slog.Warn("pipeline: close input", "run_id", r.id, "err", err)
	}
	if err := out.Close(); err != nil {
		slog.Warn("pipeline: close output", "run_id", r.id, "err", err)
	}
	c.finish(ctx, r)
}

// finish resets the shared buffers and marks the run as ended.
func (c *Controller) finish(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	c.playback.Clear()
	c.emit(ctx, r, StatusStopped)
	c.running.Store(false)
	c.metrics.PipelineRunning.Add(ctx, -1)
	slog.Info("pipeline stopped", "run_id", r.id, "err", r.err)
}

// openDevices opens capture then playback. The VAD engine is built for the
// capture stream's native rate; frames delivered before it exists are dropped.
func (c *Controller) openDevices(r *run) (in, out device.Stream, err error) {
	in, err = c.devices.OpenInput(func(interleaved []float32, f audio.Format) {
		if r.stop.Load() {
			return
		}
		e := r.engine.Load()
		if e == nil {
			return
		}
		e.Process(audio.Downmix(interleaved, f.Channels), c.now())
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: %w", err)
	}

	opts := []vad.Option{vad.WithEnergyObserver(c.metrics.RecordInputRMS)}
	if c.classifier != nil {
		opts = append(opts, vad.WithClassifier(c.classifier))
	}
	r.engine.Store(vad.NewEngine(in.Format().SampleRate, opts...))

	out, err = c.devices.OpenOutput(func(buf []float32, f audio.Format) {
		c.playback.Fill(buf, f.Channels)
	})
	if err != nil {
		_ = in.Close()
		return nil, nil, fmt.Errorf("pipeline: %w", err)
	}
	return in, out, nil
}

func (c *Controller) tick(ctx context.Context, r *run, inRate, outRate int) {
	segment, ok := r.engine.Load().TryFlush(c.now(), c.SilenceDuration())
	if !ok {
		return
	}
	c.cycle(ctx, r, segment, inRate, outRate)
}

// cycle turns one flushed segment into queued playback audio. Every exit
// path returns the run to StatusListening.
func (c *Controller) cycle(ctx context.Context, r *run, segment []float32, inRate, outRate int) {
	ctx, span := observe.StartSpan(ctx, "pipeline.cycle",
		trace.WithAttributes(
			attribute.String("run_id", r.id),
			attribute.Int("samples", len(segment)),
			attribute.Int("sample_rate", inRate),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("run_id", r.id)

	start := time.Now()
	c.emit(ctx, r, StatusProcessing)
	defer func() {
		c.metrics.CycleDuration.Record(ctx, time.Since(start).Seconds())
		c.emit(ctx, r, StatusListening)
	}()

	if len(segment) == 0 {
		return
	}
	c.metrics.SegmentsFlushed.Add(ctx, 1)
	c.metrics.SegmentDuration.Record(ctx, audio.SamplesDuration(len(segment), inRate).Seconds())

	text, err := c.transcribe(ctx, segment, inRate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		if errors.Is(err, stt.ErrModelNotLoaded) {
			log.Warn("skipping segment: no speech model loaded")
		} else {
			log.Error("transcription failed", "err", err)
		}
		return
	}

	text = strings.TrimSpace(text)
	if reason := discardReason(text); reason != "" {
		c.metrics.RecordDiscard(ctx, reason)
		log.Debug("transcript discarded", "reason", reason, "text", text)
		return
	}
	log.Info("transcribed", "text", text)

	if c.corrector != nil {
		if fixed, fixes := c.corrector.Correct(text); len(fixes) > 0 {
			c.metrics.TranscriptCorrections.Add(ctx, int64(len(fixes)))
			log.Debug("transcript corrected", "text", fixed, "corrections", len(fixes))
			text = fixed
		}
	}

	c.emit(ctx, r, StatusSpeaking)
	speech, err := c.synthesize(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		if errors.Is(err, tts.ErrNotConfigured) {
			log.Warn("skipping synthesis: no voice configured")
		} else {
			log.Error("synthesis failed", "err", err)
		}
		return
	}
	if len(speech.Samples) == 0 {
		return
	}

	c.playback.Push(c.toOutputRate(ctx, speech, outRate))
}

// discardReason returns why a trimmed transcript should not be spoken, or ""
// when it should.
func discardReason(text string) string {
	switch {
	case text == "":
		return "empty"
	case strings.Contains(text, blankMarker):
		return "blank"
	case utf8.RuneCountInString(text) <= 1:
		return "too_short"
	}
	return ""
}

func (c *Controller) transcribe(ctx context.Context, segment []float32, rate int) (string, error) {
	ctx, span := observe.StartSpan(ctx, "stt.transcribe",
		trace.WithAttributes(attribute.String("provider", c.sttName)))
	defer span.End()

	start := time.Now()
	text, err := c.stt.Transcribe(ctx, segment, rate)
	c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		c.metrics.RecordProviderRequest(ctx, c.sttName, "stt", "error")
		c.metrics.RecordProviderError(ctx, c.sttName, "stt")
		return "", err
	}
	c.metrics.RecordProviderRequest(ctx, c.sttName, "stt", "ok")
	return text, nil
}

func (c *Controller) synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if c.tts == nil {
		return tts.Audio{}, tts.ErrNotConfigured
	}
	ctx, span := observe.StartSpan(ctx, "tts.synthesize",
		trace.WithAttributes(attribute.String("provider", c.ttsName)))
	defer span.End()

	start := time.Now()
	out, err := c.tts.Synthesize(ctx, text)
	c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		c.metrics.RecordProviderRequest(ctx, c.ttsName, "tts", "error")
		c.metrics.RecordProviderError(ctx, c.ttsName, "tts")
		return tts.Audio{}, err
	}
	c.metrics.RecordProviderRequest(ctx, c.ttsName, "tts", "ok")
	return out, nil
}

// toOutputRate converts synthesised audio to the playback device rate. On
// failure it logs and returns the audio unchanged.
func (c *Controller) toOutputRate(ctx context.Context, speech tts.Audio, outRate int) []float32 {
	if speech.SampleRate == outRate {
		return speech.Samples
	}
	start := time.Now()
	out, err := resample.Resample(speech.Samples, speech.SampleRate, outRate)
	c.metrics.ResampleDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("resample failed, playing at source rate",
			"from", speech.SampleRate, "to", outRate, "err", err)
		return speech.Samples
	}
	return out
}
