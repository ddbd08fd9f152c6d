package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// WAV format codes from the RIFF specification.
const (
	wavFormatPCM       = 1 // int16
	wavFormatIEEEFloat = 3 // float32

	// WAVHeaderSize is the byte length of the RIFF/WAVE header this
	// package writes.
	WAVHeaderSize = 44
)

// EncodeWAVHeader builds the 44-byte RIFF/WAVE header for a payload of
// dataSize bytes. Callers streaming to disk write a header with a
// provisional size and rewrite it once the payload length is known.
func EncodeWAVHeader(sampleRate, channels int, format types.SampleFormat, dataSize int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	var audioFormat uint16
	var bitsPerSample uint16
	switch format {
	case types.FormatInt16:
		audioFormat = wavFormatPCM
		bitsPerSample = 16
	case types.FormatFloat32:
		audioFormat = wavFormatIEEEFloat
		bitsPerSample = 32
	default:
		return nil, fmt.Errorf("unsupported sample format %q", format)
	}

	blockAlign := channels * int(bitsPerSample) / 8
	byteRate := sampleRate * blockAlign

	header := make([]byte, WAVHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], audioFormat)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	return header, nil
}

// EncodeWAV wraps PCM bytes in a RIFF/WAVE container. The layout is
// byte-exact: a 44-byte header followed by the payload copied verbatim.
func EncodeWAV(pcm []byte, sampleRate, channels int, format types.SampleFormat) ([]byte, error) {
	header, err := EncodeWAVHeader(sampleRate, channels, format, len(pcm))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, WAVHeaderSize+len(pcm))
	out = append(out, header...)
	out = append(out, pcm...)
	return out, nil
}
