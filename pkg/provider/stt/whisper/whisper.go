// Package whisper provides whisper.cpp-backed STT providers.
//
// Two backends are available:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference).
//   - [NativeProvider] links whisper.cpp through its CGO bindings and runs
//     inference in-process.
//
// Both accept a complete speech segment at any sample rate, resample it to
// 16 kHz and pad it to at least 1.1 s before inference.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := p.Transcribe(ctx, samples, 48000)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the model the
// server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the spoken language hint. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTemperature sets the decoding temperature. Zero is greedy decoding.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithHTTPClient replaces the default client, which times out after 60 s.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider sends segments to a whisper.cpp server.
type Provider struct {
	endpoint    string
	model       string
	language    string
	temperature float64
	client      *http.Client
}

// New returns a Provider for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: server url is required")
	}
	p := &Provider{
		endpoint: strings.TrimRight(baseURL, "/") + "/inference",
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe resamples the segment to 16 kHz, pads it and posts it as a WAV
// upload. The returned text is trimmed.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	prepared, err := prepareSamples(samples, rate)
	if err != nil {
		return "", err
	}
	body, contentType, err := p.form(audio.EncodeWAV(prepared, modelSampleRate))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: post segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// form builds the multipart body of an /inference request.
func (p *Provider) form(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err == nil {
		_, err = fw.Write(wav)
	}
	if err != nil {
		return nil, "", fmt.Errorf("whisper: write audio part: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", strconv.FormatFloat(p.temperature, 'f', -1, 64)},
		{"language", p.language},
		{"model", p.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
