// Package device defines the hardware boundary of the pipeline: enumerating
// audio devices and opening callback-driven capture and playback streams.
//
// Callbacks run on the audio backend's real-time thread. They must return
// quickly and must never block on I/O or on locks held across slow work.
package device

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/parrot/pkg/audio"
)

var (
	// ErrNoDevice is returned when no device is selected and the host has no
	// default device of the requested kind.
	ErrNoDevice = errors.New("device: no device available")

	// ErrUnknownDevice is returned when a device name does not match any
	// enumerated device.
	ErrUnknownDevice = errors.New("device: unknown device")
)

// InputCallback receives interleaved float32 samples captured from an input
// device together with the stream's format.
type InputCallback func(interleaved []float32, format audio.Format)

// OutputCallback fills out with interleaved float32 samples for playback.
// Every element of out must be written.
type OutputCallback func(out []float32, format audio.Format)

// Stream is an open, running device stream.
type Stream interface {
	// Format returns the negotiated sample rate and channel count.
	Format() audio.Format

	// Close stops the stream and releases the device. Calling Close more
	// than once is safe.
	Close() error
}

// Host is an audio backend.
type Host interface {
	// InputDevices lists the names of all capture devices.
	InputDevices() ([]string, error)

	// OutputDevices lists the names of all playback devices.
	OutputDevices() ([]string, error)

	// DefaultInput returns the name of the default capture device, or
	// ErrNoDevice.
	DefaultInput() (string, error)

	// DefaultOutput returns the name of the default playback device, or
	// ErrNoDevice.
	DefaultOutput() (string, error)

	// OpenInput starts capturing from the named device. An empty name
	// selects the host default.
	OpenInput(name string, cb InputCallback) (Stream, error)

	// OpenOutput starts playback on the named device. An empty name selects
	// the host default.
	OpenOutput(name string, cb OutputCallback) (Stream, error)
}

// Manager tracks which input and output device the user selected and
// resolves "selected, else host default" when streams are opened.
type Manager struct {
	host Host

	mu     sync.Mutex
	input  string
	output string
}

// NewManager returns a Manager with no device selected.
func NewManager(host Host) *Manager {
	return &Manager{host: host}
}

// Host returns the underlying audio backend.
func (m *Manager) Host() Host { return m.host }

// InputDevices lists capture device names.
func (m *Manager) InputDevices() ([]string, error) { return m.host.InputDevices() }

// OutputDevices lists playback device names.
func (m *Manager) OutputDevices() ([]string, error) { return m.host.OutputDevices() }

// SetInput selects the capture device by name. The name must be one of
// InputDevices. An empty name clears the selection.
func (m *Manager) SetInput(name string) error {
	if name != "" {
		if err := validate(m.host.InputDevices, name); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.input = name
	m.mu.Unlock()
	return nil
}

// SetOutput selects the playback device by name. The name must be one of
// OutputDevices. An empty name clears the selection.
func (m *Manager) SetOutput(name string) error {
	if name != "" {
		if err := validate(m.host.OutputDevices, name); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.output = name
	m.mu.Unlock()
	return nil
}

// SelectedInput returns the explicitly selected capture device, or "".
func (m *Manager) SelectedInput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// SelectedOutput returns the explicitly selected playback device, or "".
func (m *Manager) SelectedOutput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}

// InputName resolves the selected capture device, falling back to the
// host default.
func (m *Manager) InputName() (string, error) {
	if name := m.SelectedInput(); name != "" {
		return name, nil
	}
	name, err := m.host.DefaultInput()
	if err != nil || name == "" {
		return "", fmt.Errorf("no input device selected: %w", ErrNoDevice)
	}
	return name, nil
}

// OutputName resolves the selected playback device, falling back to the
// host default.
func (m *Manager) OutputName() (string, error) {
	if name := m.SelectedOutput(); name != "" {
		return name, nil
	}
	name, err := m.host.DefaultOutput()
	if err != nil || name == "" {
		return "", fmt.Errorf("no output device selected: %w", ErrNoDevice)
	}
	return name, nil
}

// OpenInput opens the resolved capture device.
func (m *Manager) OpenInput(cb InputCallback) (Stream, error) {
	name, err := m.InputName()
	if err != nil {
		return nil, err
	}
	s, err := m.host.OpenInput(name, cb)
	if err != nil {
		return nil, fmt.Errorf("device: open input %q: %w", name, err)
	}
	return s, nil
}

// OpenOutput opens the resolved playback device.
func (m *Manager) OpenOutput(cb OutputCallback) (Stream, error) {
	name, err := m.OutputName()
	if err != nil {
		return nil, err
	}
	s, err := m.host.OpenOutput(name, cb)
	if err != nil {
		return nil, fmt.Errorf("device: open output %q: %w", name, err)
	}
	return s, nil
}

func validate(list func() ([]string, error), name string) error {
	names, err := list()
	if err != nil {
		return fmt.Errorf("device: enumerate: %w", err)
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return nil
}
