// Package mock provides an in-memory device.Host for tests.
//
// Input is injected with Host.Feed, which invokes the open capture callback
// synchronously; playback is pulled with Host.Pull, which invokes the open
// playback callback.
//
// Example:
//
//	h := &mock.Host{
//	    Inputs:       []string{"mic"},
//	    Outputs:      []string{"speakers"},
//	    InputFormat:  audio.Format{SampleRate: 48000, Channels: 1},
//	    OutputFormat: audio.Format{SampleRate: 48000, Channels: 2},
//	}
//	h.Feed(samples)
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/audio/device"
)

// Host is a mock implementation of device.Host.
type Host struct {
	mu sync.Mutex

	// Inputs and Outputs are the enumerated device names. The first entry of
	// each is the default device.
	Inputs  []string
	Outputs []string

	// InputFormat and OutputFormat are reported by opened streams.
	InputFormat  audio.Format
	OutputFormat audio.Format

	// OpenInputErr and OpenOutputErr, if non-nil, fail the respective open.
	OpenInputErr  error
	OpenOutputErr error

	// OpenedInputs and OpenedOutputs record the names passed to the opens.
	OpenedInputs  []string
	OpenedOutputs []string

	inCB  device.InputCallback
	outCB device.OutputCallback
	in    *Stream
	out   *Stream
}

// InputDevices implements device.Host.
func (h *Host) InputDevices() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Inputs...), nil
}

// OutputDevices implements device.Host.
func (h *Host) OutputDevices() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Outputs...), nil
}

// DefaultInput implements device.Host.
func (h *Host) DefaultInput() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Inputs) == 0 {
		return "", device.ErrNoDevice
	}
	return h.Inputs[0], nil
}

// DefaultOutput implements device.Host.
func (h *Host) DefaultOutput() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Outputs) == 0 {
		return "", device.ErrNoDevice
	}
	return h.Outputs[0], nil
}

// OpenInput implements device.Host.
func (h *Host) OpenInput(name string, cb device.InputCallback) (device.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OpenedInputs = append(h.OpenedInputs, name)
	if h.OpenInputErr != nil {
		return nil, h.OpenInputErr
	}
	h.inCB = cb
	h.in = &Stream{host: h, format: h.InputFormat, input: true}
	return h.in, nil
}

// OpenOutput implements device.Host.
func (h *Host) OpenOutput(name string, cb device.OutputCallback) (device.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OpenedOutputs = append(h.OpenedOutputs, name)
	if h.OpenOutputErr != nil {
		return nil, h.OpenOutputErr
	}
	h.outCB = cb
	h.out = &Stream{host: h, format: h.OutputFormat}
	return h.out, nil
}

// ErrClosed is returned by Feed and Pull when no stream is open.
var ErrClosed = errors.New("mock: stream not open")

// Feed delivers interleaved samples to the open capture callback.
func (h *Host) Feed(interleaved []float32) error {
	h.mu.Lock()
	cb, format := h.inCB, h.InputFormat
	h.mu.Unlock()
	if cb == nil {
		return ErrClosed
	}
	cb(interleaved, format)
	return nil
}

// Pull asks the open playback callback for frames frames and returns the
// interleaved result.
func (h *Host) Pull(frames int) ([]float32, error) {
	h.mu.Lock()
	cb, format := h.outCB, h.OutputFormat
	h.mu.Unlock()
	if cb == nil {
		return nil, ErrClosed
	}
	ch := max(format.Channels, 1)
	out := make([]float32, frames*ch)
	cb(out, format)
	return out, nil
}

// InputOpen reports whether a capture stream is open.
func (h *Host) InputOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inCB != nil
}

// OutputOpen reports whether a playback stream is open.
func (h *Host) OutputOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outCB != nil
}

// Stream is the mock device.Stream.
type Stream struct {
	host   *Host
	format audio.Format
	input  bool

	mu     sync.Mutex
	closed bool
}

// Format implements device.Stream.
func (s *Stream) Format() audio.Format { return s.format }

// Close implements device.Stream. It detaches the stream's callback.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	h := s.host
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.input && h.in == s {
		h.inCB, h.in = nil, nil
	}
	if !s.input && h.out == s {
		h.outCB, h.out = nil, nil
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Compile-time interface assertions.
var (
	_ device.Host   = (*Host)(nil)
	_ device.Stream = (*Stream)(nil)
)
