package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// Float32FromBytes decodes a little-endian float32 PCM buffer. The length
// must be a multiple of 4; the buffer is validated, never aliased.
func Float32FromBytes(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 buffer length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// BytesFromFloat32 encodes samples as a little-endian float32 PCM buffer.
func BytesFromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Int16FromBytes decodes a little-endian int16 PCM buffer. The length must
// be a multiple of 2.
func Int16FromBytes(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("int16 buffer length %d is not a multiple of 2", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// BytesFromInt16 encodes samples as a little-endian int16 PCM buffer.
func BytesFromInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// SampleCount returns how many samples of the given format fit in the
// buffer, or an error if the length is not aligned to the sample width.
func SampleCount(data []byte, format types.SampleFormat) (int, error) {
	width := format.BytesPerSample()
	if width == 0 {
		return 0, fmt.Errorf("unsupported sample format %q", format)
	}
	if len(data)%width != 0 {
		return 0, fmt.Errorf("%s buffer length %d is not a multiple of %d", format, len(data), width)
	}
	return len(data) / width, nil
}
