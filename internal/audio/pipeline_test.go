package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

func TestRMSZeroBuffer(t *testing.T) {
	assert.Equal(t, 0.0, RMS(nil))
	assert.Equal(t, 0.0, RMS([]float32{0, 0, 0, 0}))
}

func TestRMSIgnoresInvalidSamples(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	// Invalid samples are excluded from the mean, not zeroed.
	assert.InDelta(t, 0.5, RMS([]float32{0.5, nan, inf}), 1e-9)
	assert.Equal(t, 0.0, RMS([]float32{nan, inf}))
}

func TestRMSClampsGlitchSamples(t *testing.T) {
	// A corrupt value of 1e6 is clamped to 10 before squaring.
	assert.InDelta(t, 10.0, RMS([]float32{1e6}), 1e-9)
}

func TestRMSToDb(t *testing.T) {
	assert.True(t, math.IsInf(RMSToDb(0), -1))
	assert.InDelta(t, 0.0, RMSToDb(1.0), 1e-9)
	assert.InDelta(t, -20.0, RMSToDb(0.1), 1e-9)
}

func TestPeak(t *testing.T) {
	assert.Equal(t, 0.0, Peak(nil))
	assert.InDelta(t, 0.8, Peak([]float32{0.1, -0.8, 0.3}), 1e-6)
}

func TestToInt16FullRange(t *testing.T) {
	out := ToInt16([]float32{1.0, -1.0})
	assert.Equal(t, []int16{32767, -32768}, out)
}

func TestToInt16Clamps(t *testing.T) {
	out := ToInt16([]float32{2.0, -2.0})
	assert.Equal(t, []int16{32767, -32768}, out)
}

func TestToInt16AsymmetricScaling(t *testing.T) {
	out := ToInt16([]float32{0.5, -0.5})
	assert.Equal(t, int16(16383), out[0])  // 0.5 * 0x7FFF
	assert.Equal(t, int16(-16384), out[1]) // -0.5 * 0x8000
}

func TestStereoToMonoInt16FloorsAverage(t *testing.T) {
	in := BytesFromInt16([]int16{100, 200, 300, 400})
	out, err := StereoToMono(in, types.FormatInt16)
	require.NoError(t, err)

	mono, err := Int16FromBytes(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{150, 350}, mono)
}

func TestStereoToMonoInt16FloorsTowardNegativeInfinity(t *testing.T) {
	in := BytesFromInt16([]int16{-3, -4})
	out, err := StereoToMono(in, types.FormatInt16)
	require.NoError(t, err)

	mono, err := Int16FromBytes(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{-4}, mono) // floor(-3.5), not trunc
}

func TestStereoToMonoFloat32(t *testing.T) {
	in := BytesFromFloat32([]float32{0.2, 0.4, -1.0, 1.0})
	out, err := StereoToMono(in, types.FormatFloat32)
	require.NoError(t, err)

	mono, err := Float32FromBytes(out)
	require.NoError(t, err)
	require.Len(t, mono, 2)
	assert.InDelta(t, 0.3, float64(mono[0]), 1e-6)
	assert.InDelta(t, 0.0, float64(mono[1]), 1e-6)
}

func TestStereoToMonoRejectsOddBuffers(t *testing.T) {
	_, err := StereoToMono(BytesFromInt16([]int16{1, 2, 3}), types.FormatInt16)
	assert.Error(t, err)

	_, err = StereoToMono([]byte{1, 2, 3}, types.FormatInt16)
	assert.Error(t, err)
}

func rawSample(samples []float32, sampleRate, channels int) *types.RawAudioSample {
	return &types.RawAudioSample{
		Data:             BytesFromFloat32(samples),
		SampleRate:       sampleRate,
		ChannelCount:     channels,
		TimestampSeconds: 1.5,
	}
}

func TestPipelineDerivedFields(t *testing.T) {
	p := NewPipeline(PipelineConfig{Format: types.FormatFloat32})

	// 4 samples, stereo, 48kHz: 2 frames.
	enhanced, ok, err := p.Process(rawSample([]float32{0.1, 0.2, 0.3, 0.4}, 48000, 2))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 4, enhanced.SampleCount)
	assert.Equal(t, 2, enhanced.FramesCount)
	assert.InDelta(t, 2.0/48000.0*1000, enhanced.DurationMs, 1e-9)
	assert.Equal(t, types.FormatFloat32, enhanced.Format)
	assert.Equal(t, 1.5, enhanced.Timestamp)
	assert.Equal(t, 48000, enhanced.SampleRate)
	assert.Equal(t, 2, enhanced.Channels)
}

func TestPipelineSampleCountFromOriginalBufferAfterConversion(t *testing.T) {
	p := NewPipeline(PipelineConfig{Format: types.FormatInt16})

	enhanced, ok, err := p.Process(rawSample([]float32{0.5, -0.5, 0.25, -0.25}, 48000, 2))
	require.NoError(t, err)
	require.True(t, ok)

	// Emitted format is int16 (2 bytes/sample) but SampleCount still comes
	// from the original float32 buffer.
	assert.Equal(t, 4, enhanced.SampleCount)
	assert.Equal(t, 8, len(enhanced.Data))
	assert.Equal(t, types.FormatInt16, enhanced.Format)
}

func TestPipelineVolumeGate(t *testing.T) {
	p := NewPipeline(PipelineConfig{Format: types.FormatFloat32, MinVolume: 0.01})

	// RMS 0.002 < minVolume 0.01: suppressed entirely.
	enhanced, ok, err := p.Process(rawSample([]float32{0.002, -0.002}, 48000, 1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, enhanced)

	// Loud sample passes.
	_, ok, err = p.Process(rawSample([]float32{0.5, -0.5}, 48000, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPipelineDefaultGatePassesSilence(t *testing.T) {
	p := NewPipeline(PipelineConfig{})

	_, ok, err := p.Process(rawSample([]float32{0, 0}, 48000, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPipelineRejectsMisalignedBuffer(t *testing.T) {
	p := NewPipeline(PipelineConfig{})

	_, _, err := p.Process(&types.RawAudioSample{Data: []byte{1, 2, 3}, SampleRate: 48000, ChannelCount: 1})
	assert.Error(t, err)
}
