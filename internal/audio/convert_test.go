package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

func TestFloat32RoundTrip(t *testing.T) {
	in := []float32{0.0, 1.0, -1.0, 0.12345}
	out, err := Float32FromBytes(BytesFromFloat32(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{0, 32767, -32768, 1234}
	out, err := Int16FromBytes(BytesFromInt16(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMisalignedBuffersRejected(t *testing.T) {
	_, err := Float32FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = Int16FromBytes([]byte{1})
	assert.Error(t, err)
}

func TestSampleCount(t *testing.T) {
	n, err := SampleCount(make([]byte, 16), types.FormatFloat32)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = SampleCount(make([]byte, 16), types.FormatInt16)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = SampleCount(make([]byte, 15), types.FormatFloat32)
	assert.Error(t, err)

	_, err = SampleCount(nil, types.SampleFormat("ogg"))
	assert.Error(t, err)
}
