package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavBitsPerSample = 16

// EncodeWAV wraps mono float32 samples in a 16-bit PCM RIFF/WAV container,
// suitable for upload to HTTP transcription endpoints.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * wavBitsPerSample / 8
	blockAlign := channels * wavBitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], wavBitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	PutS16LE(buf[44:], samples)

	return buf
}

// ErrInvalidWAV is returned by DecodeWAV for data that is not a PCM
// RIFF/WAVE container it understands.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// DecodeWAV parses a RIFF/WAVE container holding 8-bit unsigned, 16-bit
// signed or 32-bit float PCM and returns its samples downmixed to mono along
// with the sample rate. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(wav []byte) ([]float32, int, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format, channels, bits int
		rate                   int
		haveFmt                bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = int(binary.LittleEndian.Uint16(wav[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			// Streaming encoders write 0 or 0xFFFFFFFF when the length is unknown.
			end := body + size
			if size == 0 || end > len(wav) || end < body {
				end = len(wav)
			}
			samples, err := decodePCM(wav[body:end], format, bits)
			if err != nil {
				return nil, 0, err
			}
			if channels < 1 || rate <= 0 {
				return nil, 0, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, channels, rate)
			}
			return Downmix(samples, channels), rate, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, 0, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

func decodePCM(data []byte, format, bits int) ([]float32, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return S16ToFloat32(data), nil
	case format == wavFormatPCM && bits == 8:
		return U8ToFloat32(data), nil
	case format == wavFormatFloat && bits == 32:
		return F32LEToFloat32(data), nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrInvalidWAV, format, bits)
}
