package stream

import (
	"context"
	"fmt"

	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/session"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// STTOptions configures a speech-oriented stream. Zero values pick the
// defaults speech engines expect: int16 samples, mono.
type STTOptions struct {
	// Format is the output sample format; "" defaults to int16.
	Format types.SampleFormat
	// Channels is the output channel count; 0 defaults to 1 (mono).
	Channels int
	// Mode selects raw or object delivery to the consumer.
	Mode Mode
	// HighWater is forwarded to the underlying stream.
	HighWater int
}

// STTStream is a stream whose samples are converted for speech consumers.
// It always captures float32 from the session and converts the sample
// format before downmixing channels, in that order, because the channel
// averaging operates on the already-narrowed byte layout.
type STTStream struct {
	inner    *Stream
	format   types.SampleFormat
	channels int
	mode     Mode
}

// NewSTT creates a speech-oriented stream over the session. The capture
// itself is forced to float32 object delivery regardless of options; the
// options only shape what the consumer receives.
func NewSTT(sess *session.Session, target types.CaptureTarget, cfg session.Config, opts STTOptions) *STTStream {
	if opts.Format == "" {
		opts.Format = types.FormatInt16
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	cfg.Pipeline.Format = types.FormatFloat32
	inner := New(sess, target, cfg, Options{Mode: ModeObject, HighWater: opts.HighWater})
	return &STTStream{
		inner:    inner,
		format:   opts.Format,
		channels: opts.Channels,
		mode:     opts.Mode,
	}
}

// OnError registers an error callback without starting the capture.
func (s *STTStream) OnError(fn func(error)) { s.inner.OnError(fn) }

// OnEnd registers an end-of-output callback.
func (s *STTStream) OnEnd(fn func()) { s.inner.OnEnd(fn) }

// Backpressured reports whether the underlying stream is backed up.
func (s *STTStream) Backpressured() bool { return s.inner.Backpressured() }

// Stop ends the stream.
func (s *STTStream) Stop() error { return s.inner.Stop() }

// Next pulls the next converted sample. Only valid in object mode.
func (s *STTStream) Next(ctx context.Context) (*types.EnhancedAudioSample, error) {
	if s.mode != ModeObject {
		return nil, types.NewError(types.CodeInvalidArgument, "stream is in raw mode; use NextRaw")
	}
	in, err := s.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	return s.convert(in)
}

// NextRaw pulls the next converted PCM payload. Valid in either mode.
func (s *STTStream) NextRaw(ctx context.Context) ([]byte, error) {
	in, err := s.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.convert(in)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// convert narrows the sample format first and downmixes channels second.
func (s *STTStream) convert(in *types.EnhancedAudioSample) (*types.EnhancedAudioSample, error) {
	data := in.Data
	format := in.Format

	if format != s.format {
		if format != types.FormatFloat32 || s.format != types.FormatInt16 {
			return nil, types.NewError(types.CodeInvalidArgument,
				fmt.Sprintf("unsupported conversion %s to %s", format, s.format))
		}
		floats, err := audio.Float32FromBytes(data)
		if err != nil {
			return nil, err
		}
		data = audio.BytesFromInt16(audio.ToInt16(floats))
		format = types.FormatInt16
	}

	channels := in.Channels
	if s.channels == 1 && channels == 2 {
		mono, err := audio.StereoToMono(data, format)
		if err != nil {
			return nil, err
		}
		data = mono
		channels = 1
	}

	sampleCount := len(data) / format.BytesPerSample()
	return &types.EnhancedAudioSample{
		Data:        data,
		SampleRate:  in.SampleRate,
		Channels:    channels,
		Timestamp:   in.Timestamp,
		Format:      format,
		SampleCount: sampleCount,
		FramesCount: sampleCount / channels,
		DurationMs:  in.DurationMs,
		RMS:         in.RMS,
		Peak:        in.Peak,
	}, nil
}
