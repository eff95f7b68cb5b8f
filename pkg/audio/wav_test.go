package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/parrot/pkg/audio"
)

func TestDecodeWAV_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25}
	samples, rate, err := audio.DecodeWAV(audio.EncodeWAV(in, 22050))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate = %d, want 22050", rate)
	}
	if len(samples) != len(in) {
		t.Fatalf("len = %d, want %d", len(samples), len(in))
	}
	for i := range in {
		if !approxEqual(float64(samples[i]), float64(in[i]), 1e-4) {
			t.Errorf("samples[%d] = %v, want %v", i, samples[i], in[i])
		}
	}
}

// stereoWAV builds a 16-bit stereo file with a LIST chunk between fmt and data.
func stereoWAV(frames [][2]int16, rate int) []byte {
	le := binary.LittleEndian
	var b []byte
	b = append(b, "RIFF"...)
	b = le.AppendUint32(b, 0)
	b = append(b, "WAVE"...)

	b = append(b, "fmt "...)
	b = le.AppendUint32(b, 16)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 2)
	b = le.AppendUint32(b, uint32(rate))
	b = le.AppendUint32(b, uint32(rate*4))
	b = le.AppendUint16(b, 4)
	b = le.AppendUint16(b, 16)

	b = append(b, "LIST"...)
	b = le.AppendUint32(b, 3)
	b = append(b, 'a', 'b', 'c', 0) // odd size plus pad byte

	b = append(b, "data"...)
	b = le.AppendUint32(b, uint32(len(frames)*4))
	for _, f := range frames {
		b = le.AppendUint16(b, uint16(f[0]))
		b = le.AppendUint16(b, uint16(f[1]))
	}
	le.PutUint32(b[4:8], uint32(len(b)-8))
	return b
}

func TestDecodeWAV_StereoSkipsUnknownChunks(t *testing.T) {
	wav := stereoWAV([][2]int16{{16384, 0}, {-16384, -16384}}, 48000)
	samples, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 48000 {
		t.Errorf("rate = %d", rate)
	}
	want := []float64{0.25, -0.5}
	if len(samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(samples), len(want))
	}
	for i, w := range want {
		if !approxEqual(float64(samples[i]), w, 1e-4) {
			t.Errorf("samples[%d] = %v, want %v", i, samples[i], w)
		}
	}
}

func TestDecodeWAV_UnknownLengthReadsToEnd(t *testing.T) {
	wav := audio.EncodeWAV([]float32{0.5, 0.5, 0.5}, 16000)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)
	samples, _, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("len = %d, want 3", len(samples))
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	noData := audio.EncodeWAV(nil, 16000)[:36]

	adpcm := audio.EncodeWAV([]float32{0}, 16000)
	binary.LittleEndian.PutUint16(adpcm[20:22], 2)

	tests := []struct {
		name string
		wav  []byte
	}{
		{name: "empty", wav: nil},
		{name: "not riff", wav: []byte("OggS0000WAVEfmt ")},
		{name: "missing data", wav: noData},
		{name: "compressed", wav: adpcm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := audio.DecodeWAV(tt.wav)
			if !errors.Is(err, audio.ErrInvalidWAV) {
				t.Errorf("err = %v, want ErrInvalidWAV", err)
			}
		})
	}
}
