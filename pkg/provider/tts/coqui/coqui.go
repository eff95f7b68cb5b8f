// Package coqui provides a TTS provider backed by a Coqui TTS server's REST
// API. It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is a GET /api/tts with query
//     parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is a POST
//     /tts_to_audio/ with a JSON body and requires a speaker.
//
// Both servers answer one WAV file per request. Longer utterances are split
// into sentences that are synthesised concurrently and joined in order.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	audio, err := p.Synthesize(ctx, "Hello there. How are you?")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage   = "en"
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 22050

	ttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint = "/api/tts"

	// sentenceLookahead bounds the number of sentence requests in flight.
	sentenceLookahead = 4
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g. "en", "de").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode selects the server API. APIModeStandard is the default.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithSpeaker selects the speaker: a speaker_id for multi-speaker standard
// models, or the speaker_wav reference for XTTS.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// WithSampleRate sets the rate reported by SampleRate before the first
// response has been seen. Defaults to 22050 Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.rate.Store(int64(rate))
		}
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server. It is safe
// for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client

	// rate is the sample rate of the most recent response.
	rate atomic.Int64
}

// New creates a Provider targeting serverURL (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	p.rate.Store(defaultSampleRate)
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// SampleRate implements tts.Provider. It reports the rate of the last
// synthesised response.
func (p *Provider) SampleRate() int { return int(p.rate.Load()) }

// Ready implements tts.Provider. XTTS needs a speaker reference.
func (p *Provider) Ready() bool {
	return p.apiMode != APIModeXTTS || p.speaker != ""
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{SampleRate: p.SampleRate()}, nil
	}
	if !p.Ready() {
		return tts.Audio{}, fmt.Errorf("coqui: xtts mode needs a speaker: %w", tts.ErrNotConfigured)
	}

	sentences := splitSentences(text)
	type part struct {
		samples []float32
		rate    int
	}
	parts := make([]part, len(sentences))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sentenceLookahead)
	for i, s := range sentences {
		g.Go(func() error {
			wav, err := p.synthesize(gctx, s)
			if err != nil {
				return err
			}
			samples, rate, err := audio.DecodeWAV(wav)
			if err != nil {
				return fmt.Errorf("coqui: decode response: %w", err)
			}
			parts[i] = part{samples: samples, rate: rate}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tts.Audio{}, err
	}

	out := tts.Audio{SampleRate: parts[0].rate}
	for _, pt := range parts {
		if pt.rate != out.SampleRate {
			return tts.Audio{}, fmt.Errorf("coqui: server changed sample rate mid-utterance (%d, %d)", out.SampleRate, pt.rate)
		}
		out.Samples = append(out.Samples, pt.samples...)
	}
	p.rate.Store(int64(out.SampleRate))
	return out, nil
}

// synthesize issues one synthesis request and returns the WAV response body.
func (p *Provider) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	var (
		req      *http.Request
		endpoint string
		err      error
	)
	if p.apiMode == APIModeXTTS {
		endpoint = ttsEndpoint
		body, merr := json.Marshal(ttsRequest{Text: sentence, SpeakerWav: p.speaker, Language: p.language})
		if merr != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		endpoint = apiTTSEndpoint
		params := url.Values{}
		params.Set("text", sentence)
		if p.speaker != "" {
			params.Set("speaker_id", p.speaker)
		}
		if p.language != "" {
			params.Set("language_id", p.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// splitSentences cuts text after '.', '!' or '?' when followed by whitespace
// or the end of text. Abbreviations like "3.14" stay intact.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && !unicode.IsSpace(rune(text[i+1])) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
