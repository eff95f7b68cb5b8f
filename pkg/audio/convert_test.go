package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/parrot/pkg/audio"
)

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		in       []float32
		channels int
		want     []float32
	}{
		{name: "mono copy", in: []float32{0.1, -0.2}, channels: 1, want: []float32{0.1, -0.2}},
		{name: "stereo average", in: []float32{0.2, 0.4, -1, 1}, channels: 2, want: []float32{0.3, 0}},
		{name: "partial trailing frame dropped", in: []float32{0.5, 0.5, 0.9}, channels: 2, want: []float32{0.5}},
		{name: "quad", in: []float32{1, 1, 0, 0}, channels: 4, want: []float32{0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.Downmix(tt.in, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if !approxEqual(float64(got[i]), float64(tt.want[i]), 1e-6) {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDownmix_MonoDoesNotAlias(t *testing.T) {
	in := []float32{0.25}
	out := audio.Downmix(in, 1)
	out[0] = 1
	if in[0] != 0.25 {
		t.Fatal("Downmix mutated its input")
	}
}

func TestFillInterleaved(t *testing.T) {
	out := make([]float32, 6)
	n := audio.FillInterleaved(out, []float32{0.1, 0.2, 0.3, 0.4}, 2)
	if n != 3 {
		t.Fatalf("frames = %d, want 3", n)
	}
	want := []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	constant := make([]float32, 480)
	for i := range constant {
		constant[i] = 0.05
	}
	if got := audio.RMS(constant); !approxEqual(got, 0.05, 1e-6) {
		t.Errorf("RMS(constant 0.05) = %v", got)
	}
	alt := []float32{0.5, -0.5, 0.5, -0.5}
	if got := audio.RMS(alt); !approxEqual(got, 0.5, 1e-6) {
		t.Errorf("RMS(alternating) = %v, want 0.5", got)
	}
}

func TestS16ToFloat32(t *testing.T) {
	pcm := make([]byte, 7) // trailing odd byte ignored
	binary.LittleEndian.PutUint16(pcm[0:], uint16(0))
	binary.LittleEndian.PutUint16(pcm[2:], 0x8000) // -32768
	binary.LittleEndian.PutUint16(pcm[4:], uint16(16384))
	got := audio.S16ToFloat32(pcm)
	want := []float32{0, -1, 0.5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestU8ToFloat32(t *testing.T) {
	got := audio.U8ToFloat32([]byte{128, 0, 192})
	want := []float32{0, -1, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFloat32LE(t *testing.T) {
	in := []float32{0.25, -0.75}
	buf := make([]byte, 8)
	if n := audio.PutFloat32LE(buf, in); n != 2 {
		t.Fatalf("PutFloat32LE wrote %d, want 2", n)
	}
	got := audio.F32LEToFloat32(buf)
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], in[i])
		}
	}
}

func TestFloat32ToS16_Clamps(t *testing.T) {
	pcm := audio.Float32ToS16([]float32{2, -2, 0})
	got := []int16{
		int16(binary.LittleEndian.Uint16(pcm[0:])),
		int16(binary.LittleEndian.Uint16(pcm[2:])),
		int16(binary.LittleEndian.Uint16(pcm[4:])),
	}
	want := []int16{32767, -32767, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	wav := audio.EncodeWAV([]float32{0, 0.5, -0.5}, 16000)
	if len(wav) != 44+6 {
		t.Fatalf("len = %d, want 50", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatal("missing RIFF/WAVE/data markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 6 {
		t.Errorf("data size = %d, want 6", size)
	}
}

func TestSamplesDuration(t *testing.T) {
	if got := audio.SamplesDuration(48000, 48000); got != time.Second {
		t.Errorf("SamplesDuration = %v, want 1s", got)
	}
	if got := audio.SamplesFor(250*time.Millisecond, 48000); got != 12000 {
		t.Errorf("SamplesFor = %d, want 12000", got)
	}
	if got := audio.SamplesFor(time.Second, 0); got != 0 {
		t.Errorf("SamplesFor with zero rate = %d, want 0", got)
	}
	f := audio.Frame{Samples: make([]float32, 480), SampleRate: 48000}
	if f.Duration() != 10*time.Millisecond {
		t.Errorf("Frame.Duration = %v, want 10ms", f.Duration())
	}
}
