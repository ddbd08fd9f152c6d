package stream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/session"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

type fakeProvider struct {
	mu       sync.Mutex
	onSample func(*types.RawAudioSample)
	starts   atomic.Int64
}

func (p *fakeProvider) StartCapture(_ types.CaptureTarget, _ types.CaptureConfig, onSample func(*types.RawAudioSample)) error {
	p.starts.Add(1)
	p.mu.Lock()
	p.onSample = onSample
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) Stop() error { return nil }

func (p *fakeProvider) push(values []float32) {
	p.mu.Lock()
	cb := p.onSample
	p.mu.Unlock()
	if cb != nil {
		cb(&types.RawAudioSample{
			Data:         audio.BytesFromFloat32(values),
			SampleRate:   48000,
			ChannelCount: 2,
		})
	}
}

// feed keeps pushing samples until told to stop, so a pull always has data
// coming regardless of when the session wires the callback.
func feed(p *fakeProvider, values []float32, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		p.push(values)
		time.Sleep(2 * time.Millisecond)
	}
}

func target() types.CaptureTarget {
	return types.CaptureTarget{Kind: types.TargetApplication, ProcessID: 7}
}

func TestErrorSubscribeDoesNotStartCapture(t *testing.T) {
	provider := &fakeProvider{}
	s := New(session.New(provider), target(), session.Config{}, Options{})

	s.OnError(func(error) {})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), provider.starts.Load())
}

func TestFirstPullStartsCapture(t *testing.T) {
	provider := &fakeProvider{}
	s := New(session.New(provider), target(), session.Config{}, Options{})
	defer func() { _ = s.Stop() }()

	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go feed(provider, []float32{0.5, -0.5}, stopFeed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sample, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.starts.Load())
	assert.Equal(t, types.FormatFloat32, sample.Format)
	assert.Equal(t, 2, sample.SampleCount)
}

func TestRawModeDeliversPayloadOnly(t *testing.T) {
	provider := &fakeProvider{}
	s := New(session.New(provider), target(), session.Config{}, Options{Mode: ModeRaw})
	defer func() { _ = s.Stop() }()

	_, err := s.Next(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeInvalidArgument))

	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go feed(provider, []float32{0.5, -0.5}, stopFeed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := s.NextRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, audio.BytesFromFloat32([]float32{0.5, -0.5}), data)
}

func TestStopSignalsEndExactlyOnce(t *testing.T) {
	provider := &fakeProvider{}
	s := New(session.New(provider), target(), session.Config{}, Options{})

	var ends atomic.Int64
	s.OnEnd(func() { ends.Add(1) })

	stopFeed := make(chan struct{})
	go feed(provider, []float32{0.5, -0.5}, stopFeed)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Next(ctx)
	require.NoError(t, err)
	close(stopFeed)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, int64(1), ends.Load())
}

func TestExternalSessionStopEndsStream(t *testing.T) {
	provider := &fakeProvider{}
	sess := session.New(provider)
	s := New(sess, target(), session.Config{}, Options{})

	var ends atomic.Int64
	s.OnEnd(func() { ends.Add(1) })

	stopFeed := make(chan struct{})
	go feed(provider, []float32{0.5, -0.5}, stopFeed)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Next(ctx)
	require.NoError(t, err)
	close(stopFeed)

	// Someone else owns the session and stops it directly.
	require.NoError(t, sess.Stop())

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	for {
		if _, err := s.Next(readCtx); err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
	assert.Equal(t, int64(1), ends.Load())

	// A later stream-level Stop must not re-signal.
	require.NoError(t, s.Stop())
	assert.Equal(t, int64(1), ends.Load())
}

func TestBackpressureFlagWithoutThrottling(t *testing.T) {
	provider := &fakeProvider{}
	s := New(session.New(provider), target(), session.Config{QueueSize: 512}, Options{HighWater: 8})
	defer func() { _ = s.Stop() }()

	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go feed(provider, []float32{0.5, -0.5}, stopFeed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Next(ctx)
	require.NoError(t, err)

	// Stop pulling and let the producer run past the high-water mark.
	deadline := time.Now().Add(2 * time.Second)
	for !s.Backpressured() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, s.Backpressured())
	assert.GreaterOrEqual(t, s.Buffered(), 8)
}

func TestSTTConvertsToInt16Mono(t *testing.T) {
	provider := &fakeProvider{}
	s := NewSTT(session.New(provider), target(), session.Config{}, STTOptions{})
	defer func() { _ = s.Stop() }()

	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go feed(provider, []float32{1.0, 0.5, -1.0, -0.5}, stopFeed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sample, err := s.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.FormatInt16, sample.Format)
	assert.Equal(t, 1, sample.Channels)
	assert.Equal(t, 2, sample.SampleCount)
	assert.Equal(t, 2, sample.FramesCount)

	mono, err := audio.Int16FromBytes(sample.Data)
	require.NoError(t, err)
	// Format narrows first, then channels average with flooring:
	// (32767+16383)/2 = 24575 and (-32768+-16384)/2 = -24576.
	assert.Equal(t, []int16{24575, -24576}, mono)
}

func TestSTTKeepsRequestedShape(t *testing.T) {
	provider := &fakeProvider{}
	opts := STTOptions{Format: types.FormatFloat32, Channels: 2}
	s := NewSTT(session.New(provider), target(), session.Config{}, opts)
	defer func() { _ = s.Stop() }()

	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go feed(provider, []float32{0.25, -0.25}, stopFeed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sample, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.FormatFloat32, sample.Format)
	assert.Equal(t, 2, sample.Channels)
	assert.Equal(t, audio.BytesFromFloat32([]float32{0.25, -0.25}), sample.Data)
}

func TestSTTRawMode(t *testing.T) {
	provider := &fakeProvider{}
	s := NewSTT(session.New(provider), target(), session.Config{}, STTOptions{Mode: ModeRaw})
	defer func() { _ = s.Stop() }()

	_, err := s.Next(context.Background())
	require.Error(t, err)

	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go feed(provider, []float32{1.0, 1.0}, stopFeed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := s.NextRaw(ctx)
	require.NoError(t, err)
	mono, err := audio.Int16FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, []int16{32767}, mono)
}
