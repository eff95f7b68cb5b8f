// Package malgo implements device.Host on top of miniaudio through the
// malgo bindings. It works with the platform's native backend (WASAPI,
// CoreAudio, ALSA/PulseAudio).
//
// Capture streams open in the device's native sample format, rate and
// channel count; samples are converted to float32 in the callback. Playback
// streams request float32 and let miniaudio convert to the device format.
package malgo

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/audio/device"
)

// Compile-time interface assertions.
var (
	_ device.Host   = (*Host)(nil)
	_ device.Stream = (*stream)(nil)
)

// Host is a miniaudio-backed device.Host. Create one per process with New
// and release it with Close.
type Host struct {
	ctx *malgo.AllocatedContext
}

// New initialises the miniaudio context with the platform default backends.
// miniaudio log lines are forwarded to slog at debug level.
func New() (*Host, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Host{ctx: ctx}, nil
}

// Close releases the miniaudio context. Streams must be closed first.
func (h *Host) Close() error {
	if h.ctx == nil {
		return nil
	}
	err := h.ctx.Uninit()
	h.ctx.Free()
	h.ctx = nil
	return err
}

// InputDevices implements device.Host.
func (h *Host) InputDevices() ([]string, error) { return h.names(malgo.Capture) }

// OutputDevices implements device.Host.
func (h *Host) OutputDevices() ([]string, error) { return h.names(malgo.Playback) }

// DefaultInput implements device.Host.
func (h *Host) DefaultInput() (string, error) { return h.defaultName(malgo.Capture) }

// DefaultOutput implements device.Host.
func (h *Host) DefaultOutput() (string, error) { return h.defaultName(malgo.Playback) }

func (h *Host) names(kind malgo.DeviceType) ([]string, error) {
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (h *Host) defaultName(kind malgo.DeviceType) (string, error) {
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return "", fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info.Name(), nil
		}
	}
	if len(infos) > 0 {
		return infos[0].Name(), nil
	}
	return "", device.ErrNoDevice
}

// find returns the device with the given name. An empty name returns nil,
// which selects the backend default.
func (h *Host) find(kind malgo.DeviceType, name string) (*malgo.DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == name {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", device.ErrUnknownDevice, name)
}

// OpenInput implements device.Host.
func (h *Host) OpenInput(name string, cb device.InputCallback) (device.Stream, error) {
	info, err := h.find(malgo.Capture, name)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Alsa.NoMMap = 1
	if info != nil {
		cfg.Capture.DeviceID = info.ID.Pointer()
	}

	s := &stream{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if !s.ready() {
				return
			}
			samples := decode(in, s.sampleFormat)
			if samples == nil {
				return
			}
			cb(samples, s.format)
		},
	}

	dev, err := malgo.InitDevice(h.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", err)
	}
	s.dev = dev
	s.sampleFormat = dev.CaptureFormat()
	s.format = audio.Format{SampleRate: int(dev.SampleRate()), Channels: int(dev.CaptureChannels())}

	if !supported(s.sampleFormat) {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: unsupported capture sample format %d", s.sampleFormat)
	}
	if err := s.start(); err != nil {
		return nil, err
	}

	slog.Info("capture stream started", "device", name, "format", s.format.String(), "sample_format", formatName(s.sampleFormat))
	return s, nil
}

// OpenOutput implements device.Host.
func (h *Host) OpenOutput(name string, cb device.OutputCallback) (device.Stream, error) {
	info, err := h.find(malgo.Playback, name)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Alsa.NoMMap = 1
	if info != nil {
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	s := &stream{}
	// scratch is only touched from the playback thread.
	var scratch []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			if !s.ready() {
				clear(out)
				return
			}
			n := int(frameCount) * s.format.Channels
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			scratch = scratch[:n]
			cb(scratch, s.format)
			audio.PutFloat32LE(out, scratch)
		},
	}

	dev, err := malgo.InitDevice(h.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device: %w", err)
	}
	s.dev = dev
	s.sampleFormat = dev.PlaybackFormat()
	s.format = audio.Format{SampleRate: int(dev.SampleRate()), Channels: int(dev.PlaybackChannels())}

	if err := s.start(); err != nil {
		return nil, err
	}

	slog.Info("playback stream started", "device", name, "format", s.format.String())
	return s, nil
}

// stream wraps a started malgo device.
type stream struct {
	dev          *malgo.Device
	format       audio.Format
	sampleFormat malgo.FormatType

	mu      sync.Mutex
	running bool
	once    sync.Once
}

func (s *stream) start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	if err := s.dev.Start(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.dev.Uninit()
		return fmt.Errorf("malgo: start device: %w", err)
	}
	return nil
}

// ready reports whether the callback may deliver data.
func (s *stream) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Format implements device.Stream.
func (s *stream) Format() audio.Format { return s.format }

// Close implements device.Stream.
func (s *stream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.dev.Uninit()
	})
	return nil
}

func supported(f malgo.FormatType) bool {
	switch f {
	case malgo.FormatF32, malgo.FormatS16, malgo.FormatU8, malgo.FormatS32, malgo.FormatS24:
		return true
	}
	return false
}

// decode converts a raw capture buffer into float32 samples.
func decode(in []byte, f malgo.FormatType) []float32 {
	switch f {
	case malgo.FormatF32:
		return audio.F32LEToFloat32(in)
	case malgo.FormatS16:
		return audio.S16ToFloat32(in)
	case malgo.FormatU8:
		return audio.U8ToFloat32(in)
	case malgo.FormatS32:
		out := make([]float32, len(in)/4)
		for i := range out {
			out[i] = float32(int32(binary.LittleEndian.Uint32(in[i*4:]))) / (1 << 31)
		}
		return out
	case malgo.FormatS24:
		out := make([]float32, len(in)/3)
		for i := range out {
			b := in[i*3:]
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			out[i] = float32(v) / (1 << 23)
		}
		return out
	}
	return nil
}

func formatName(f malgo.FormatType) string {
	switch f {
	case malgo.FormatU8:
		return "u8"
	case malgo.FormatS16:
		return "s16"
	case malgo.FormatS24:
		return "s24"
	case malgo.FormatS32:
		return "s32"
	case malgo.FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}
