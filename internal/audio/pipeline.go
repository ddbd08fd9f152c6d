// Package audio provides the per-sample processing pipeline: RMS and peak
// analysis, volume gating, format and channel conversion, and WAV encoding.
package audio

import (
	"fmt"
	"math"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

const (
	// MinDB is the floor for dB level reporting (silence).
	MinDB = -60.0
	// sampleClamp bounds corrupt or glitch samples before squaring so a
	// single broken value cannot blow up the RMS metric.
	sampleClamp = 10.0
)

// RMS returns the root mean square of the samples in [0, 1] for well-formed
// input. NaN and infinite values are excluded; remaining values are clamped
// to [-10, 10] before squaring. Returns 0 for an empty or all-invalid buffer.
func RMS(samples []float32) float64 {
	var sum float64
	var valid int
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v = max(-sampleClamp, min(sampleClamp, v))
		sum += v * v
		valid++
	}
	if valid == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(valid))
}

// Peak returns the largest absolute sample value, with the same filtering
// and clamping as RMS. Returns 0 for an empty or all-invalid buffer.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v = math.Abs(max(-sampleClamp, min(sampleClamp, v)))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMSToDb converts a linear RMS value to decibels. RMSToDb(0) is -Inf.
func RMSToDb(rms float64) float64 {
	return 20 * math.Log10(rms)
}

// DbFloored converts a linear level to dB, floored at MinDB for display.
func DbFloored(level float64) float64 {
	if level <= 0 {
		return MinDB
	}
	return max(RMSToDb(level), MinDB)
}

// ToInt16 converts float32 samples to signed 16-bit values. Samples are
// clamped to [-1, 1]; negative values scale by 0x8000 and non-negative by
// 0x7FFF so the full signed range is used without overflow.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := max(float32(-1.0), min(float32(1.0), s))
		if v < 0 {
			out[i] = int16(v * 0x8000)
		} else {
			out[i] = int16(v * 0x7FFF)
		}
	}
	return out
}

// StereoToMono averages interleaved stereo pairs into a mono buffer.
// For int16 the average is floored before narrowing. The buffer must hold an
// even number of samples of the given format.
func StereoToMono(data []byte, format types.SampleFormat) ([]byte, error) {
	switch format {
	case types.FormatFloat32:
		samples, err := Float32FromBytes(data)
		if err != nil {
			return nil, err
		}
		if len(samples)%2 != 0 {
			return nil, fmt.Errorf("stereo buffer has odd sample count %d", len(samples))
		}
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[2*i] + samples[2*i+1]) / 2
		}
		return BytesFromFloat32(mono), nil

	case types.FormatInt16:
		samples, err := Int16FromBytes(data)
		if err != nil {
			return nil, err
		}
		if len(samples)%2 != 0 {
			return nil, fmt.Errorf("stereo buffer has odd sample count %d", len(samples))
		}
		mono := make([]int16, len(samples)/2)
		for i := range mono {
			avg := math.Floor((float64(samples[2*i]) + float64(samples[2*i+1])) / 2)
			mono[i] = int16(avg)
		}
		return BytesFromInt16(mono), nil

	default:
		return nil, fmt.Errorf("unsupported sample format %q", format)
	}
}

// PipelineConfig controls per-sample enhancement.
type PipelineConfig struct {
	// Format is the emitted sample format.
	Format types.SampleFormat
	// MinVolume suppresses samples whose RMS falls below it. The default 0
	// passes everything through.
	MinVolume float64
}

// Pipeline converts raw provider samples into enhanced samples. Its methods
// are pure and allocation-bounded; it holds no mutable state and is safe for
// concurrent use.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates a pipeline with the given configuration. An empty
// format defaults to float32 pass-through.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Format == "" {
		cfg.Format = types.FormatFloat32
	}
	return &Pipeline{cfg: cfg}
}

// Process analyzes and converts one raw sample. The second return value is
// false when the sample was suppressed by the volume gate; suppressed samples
// are not counted toward output statistics.
func (p *Pipeline) Process(raw *types.RawAudioSample) (*types.EnhancedAudioSample, bool, error) {
	samples, err := Float32FromBytes(raw.Data)
	if err != nil {
		return nil, false, fmt.Errorf("parse raw sample: %w", err)
	}

	rms := RMS(samples)
	if rms < p.cfg.MinVolume {
		return nil, false, nil
	}
	peak := Peak(samples)

	channels := raw.ChannelCount
	if channels <= 0 {
		channels = 1
	}

	// Accounting is always derived from the original float32 buffer, even
	// when the emitted format is int16.
	sampleCount := len(samples)
	framesCount := sampleCount / channels
	durationMs := 0.0
	if raw.SampleRate > 0 {
		durationMs = float64(framesCount) / float64(raw.SampleRate) * 1000
	}

	data := raw.Data
	if p.cfg.Format == types.FormatInt16 {
		data = BytesFromInt16(ToInt16(samples))
	}

	return &types.EnhancedAudioSample{
		Data:        data,
		SampleRate:  raw.SampleRate,
		Channels:    channels,
		Timestamp:   raw.TimestampSeconds,
		Format:      p.cfg.Format,
		SampleCount: sampleCount,
		FramesCount: framesCount,
		DurationMs:  durationMs,
		RMS:         rms,
		Peak:        peak,
	}, true, nil
}
