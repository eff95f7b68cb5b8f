// Package vad turns a continuous stream of mono capture frames into discrete
// speech segments.
//
// Engine runs inside the real-time capture callback. Every operation takes
// one short mutex-guarded critical section and never blocks on I/O. The
// controller polls TryFlush to collect finished segments.
package vad

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/parrot/pkg/audio"
	pvad "github.com/MrWong99/parrot/pkg/provider/vad"
	"github.com/MrWong99/parrot/pkg/provider/vad/energy"
)

// Timing constants of the segmenter.
const (
	// SilenceThreshold is the RMS level above which a frame counts as speech.
	SilenceThreshold = energy.DefaultThreshold

	// PreRollDuration is how much audio before speech onset is kept and prepended.
	PreRollDuration = 250 * time.Millisecond

	// PostRoll is how long after the last speech frame silence frames are
	// still appended to the segment.
	PostRoll = 200 * time.Millisecond

	// MinSpeechDuration is the minimum time since onset before a segment may
	// be flushed.
	MinSpeechDuration = 300 * time.Millisecond

	// DefaultSilenceDuration is the default trailing silence that ends an
	// utterance.
	DefaultSilenceDuration = 700 * time.Millisecond

	// DebugInterval is the period of diagnostic energy reports.
	DebugInterval = time.Second
)

// EnergyObserver receives a diagnostic RMS sample once per DebugInterval.
// It is called from the capture callback and must not block.
type EnergyObserver func(rms float64)

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the default RMS energy classifier.
func WithClassifier(c pvad.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithEnergyObserver registers a callback for periodic energy reports.
func WithEnergyObserver(fn EnergyObserver) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine buffers speech segments for a single input stream.
type Engine struct {
	classifier pvad.Classifier
	observer   EnergyObserver
	sampleRate int

	mu           sync.Mutex
	preroll      *PreRoll
	segment      []float32
	speechStart  time.Time // zero when no session is open
	lastActivity time.Time
	lastDebug    time.Time
}

// NewEngine returns an Engine for mono input at sampleRate Hz.
func NewEngine(sampleRate int, opts ...Option) *Engine {
	e := &Engine{
		classifier: energy.New(SilenceThreshold),
		sampleRate: sampleRate,
		preroll:    NewPreRoll(audio.SamplesFor(PreRollDuration, sampleRate)),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SampleRate returns the input rate the engine was built for.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Process classifies one mono frame captured at now and updates the segment.
func (e *Engine) Process(frame []float32, now time.Time) pvad.Decision {
	d := e.classifier.Classify(frame)

	e.mu.Lock()
	switch {
	case d.Speech:
		if e.speechStart.IsZero() {
			e.speechStart = now
			e.segment = e.preroll.AppendTo(e.segment)
		}
		e.lastActivity = now
		e.segment = append(e.segment, frame...)
	case !e.speechStart.IsZero() && now.Sub(e.lastActivity) < PostRoll:
		e.segment = append(e.segment, frame...)
	}
	e.preroll.Push(frame)

	report := now.Sub(e.lastDebug) >= DebugInterval
	if report {
		e.lastDebug = now
	}
	inSession := !e.speechStart.IsZero()
	e.mu.Unlock()

	if report {
		slog.Debug("input energy", "rms", d.Level, "speech", d.Speech, "in_session", inSession)
		if e.observer != nil {
			e.observer(d.Level)
		}
	}
	return d
}

// ShouldFlush reports whether the open segment is complete: a session is
// open, silence has lasted at least silence, and at least MinSpeechDuration
// has passed since onset.
func (e *Engine) ShouldFlush(now time.Time, silence time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shouldFlushLocked(now, silence)
}

func (e *Engine) shouldFlushLocked(now time.Time, silence time.Duration) bool {
	if e.speechStart.IsZero() {
		return false
	}
	return now.Sub(e.lastActivity) >= silence && now.Sub(e.speechStart) >= MinSpeechDuration
}

// Flush drains the segment and closes the session. The returned slice is
// owned by the caller.
func (e *Engine) Flush() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() []float32 {
	seg := e.segment
	e.segment = nil
	e.speechStart = time.Time{}
	e.lastActivity = time.Time{}
	return seg
}

// TryFlush performs ShouldFlush and Flush under one lock so no frame can be
// appended between the decision and the drain.
func (e *Engine) TryFlush(now time.Time, silence time.Duration) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.shouldFlushLocked(now, silence) {
		return nil, false
	}
	return e.flushLocked(), true
}

// InSession reports whether a speech session is open.
func (e *Engine) InSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.speechStart.IsZero()
}

// SegmentLen returns the number of buffered segment samples.
func (e *Engine) SegmentLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.segment)
}

// PreRollLen returns the number of samples currently in the pre-roll ring.
func (e *Engine) PreRollLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preroll.Len()
}

// Reset discards the segment, the pre-roll and all timing state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushLocked()
	e.preroll.Reset()
	e.lastDebug = time.Time{}
}
