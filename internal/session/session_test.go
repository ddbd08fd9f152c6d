package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// fakeProvider simulates the platform capture backend. It delivers samples
// only when the test pushes them, mirroring the real provider's push model.
type fakeProvider struct {
	mu        sync.Mutex
	onSample  func(*types.RawAudioSample)
	startErr  error
	startHang time.Duration
	starts    int
	stops     int
}

func (p *fakeProvider) StartCapture(_ types.CaptureTarget, _ types.CaptureConfig, onSample func(*types.RawAudioSample)) error {
	if p.startHang > 0 {
		time.Sleep(p.startHang)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	if p.startErr != nil {
		return p.startErr
	}
	p.onSample = onSample
	return nil
}

func (p *fakeProvider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

// push simulates the provider's audio thread delivering one callback.
func (p *fakeProvider) push(raw *types.RawAudioSample) {
	p.mu.Lock()
	cb := p.onSample
	p.mu.Unlock()
	if cb != nil {
		cb(raw)
	}
}

func appTarget(pid int) types.CaptureTarget {
	return types.CaptureTarget{
		Kind:      types.TargetApplication,
		ProcessID: pid,
		App:       &types.ApplicationInfo{ProcessID: pid, ApplicationName: "Spotify"},
	}
}

func floatSample(values []float32) *types.RawAudioSample {
	return &types.RawAudioSample{
		Data:         audio.BytesFromFloat32(values),
		SampleRate:   48000,
		ChannelCount: 2,
	}
}

// recorder collects session events for assertions.
type recorder struct {
	mu      sync.Mutex
	starts  []types.CaptureTarget
	stops   []types.CaptureTarget
	samples []*types.EnhancedAudioSample
	errs    []error
}

func (r *recorder) listener() Listener {
	return Listener{
		OnStart: func(t types.CaptureTarget) {
			r.mu.Lock()
			r.starts = append(r.starts, t)
			r.mu.Unlock()
		},
		OnAudio: func(s *types.EnhancedAudioSample) {
			r.mu.Lock()
			r.samples = append(r.samples, s)
			r.mu.Unlock()
		},
		OnStop: func(t types.CaptureTarget) {
			r.mu.Lock()
			r.stops = append(r.stops, t)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) counts() (starts, stops, samples, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts), len(r.stops), len(r.samples), len(r.errs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartStopLifecycle(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	require.Equal(t, types.StateIdle, s.State())
	require.NoError(t, s.Start(appTarget(101), Config{}))
	assert.Equal(t, types.StateActive, s.State())

	provider.push(floatSample([]float32{0.5, -0.5}))
	waitFor(t, func() bool { _, _, n, _ := rec.counts(); return n == 1 })

	require.NoError(t, s.Stop())
	assert.Equal(t, types.StateIdle, s.State())

	starts, stops, _, errs := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, 0, errs)
}

func TestSecondStartFailsWithoutDisturbingFirst(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	require.NoError(t, s.Start(appTarget(101), Config{}))

	err := s.Start(appTarget(202), Config{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeAlreadyCapturing))

	// The first capture keeps running and delivering.
	assert.Equal(t, types.StateActive, s.State())
	assert.Equal(t, types.TargetApplication, s.Target().Kind)
	assert.Equal(t, 101, s.Target().ProcessID)
	provider.push(floatSample([]float32{0.1, 0.2}))
	waitFor(t, func() bool { _, _, n, _ := rec.counts(); return n == 1 })

	// Failure was also emitted as an error event.
	_, _, _, errs := rec.counts()
	assert.Equal(t, 1, errs)
}

func TestStopIsIdempotentAndEmitsOnce(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	require.NoError(t, s.Start(appTarget(101), Config{}))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	_, stops, _, _ := rec.counts()
	assert.Equal(t, 1, stops)
}

func TestLateSamplesAfterStopAreDropped(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	require.NoError(t, s.Start(appTarget(101), Config{}))
	require.NoError(t, s.Stop())

	// The provider's audio thread races stop completion on some
	// platforms; late callbacks must not resurrect the session.
	provider.push(floatSample([]float32{0.5, -0.5}))
	time.Sleep(50 * time.Millisecond)

	_, _, samples, _ := rec.counts()
	assert.Equal(t, 0, samples)
	assert.Equal(t, types.StateIdle, s.State())
}

func TestProviderStartErrorReturnsToIdle(t *testing.T) {
	provider := &fakeProvider{startErr: assert.AnError}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	err := s.Start(appTarget(101), Config{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeCaptureFailed))
	assert.Equal(t, types.StateIdle, s.State())

	// Dual reporting: thrown and emitted.
	_, _, _, errs := rec.counts()
	assert.Equal(t, 1, errs)

	// The session is reusable after a failed start.
	provider.mu.Lock()
	provider.startErr = nil
	provider.mu.Unlock()
	require.NoError(t, s.Start(appTarget(101), Config{}))
}

func TestProviderStartTimeout(t *testing.T) {
	provider := &fakeProvider{startHang: 500 * time.Millisecond}
	s := New(provider)

	err := s.Start(appTarget(101), Config{StartTimeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeCaptureFailed))
	assert.Equal(t, types.StateIdle, s.State())
}

func TestVolumeGateSuppressesQuietSamples(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	cfg := Config{Pipeline: audio.PipelineConfig{MinVolume: 0.01}}
	require.NoError(t, s.Start(appTarget(101), cfg))

	provider.push(floatSample([]float32{0.002, -0.002}))
	provider.push(floatSample([]float32{0.5, -0.5}))
	waitFor(t, func() bool { _, _, n, _ := rec.counts(); return n == 1 })

	time.Sleep(50 * time.Millisecond)
	_, _, samples, _ := rec.counts()
	assert.Equal(t, 1, samples)
}

func TestSamplesDeliveredInOrder(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)

	var mu sync.Mutex
	var got []float64
	s.Subscribe(Listener{OnAudio: func(sample *types.EnhancedAudioSample) {
		mu.Lock()
		got = append(got, sample.Timestamp)
		mu.Unlock()
	}})

	require.NoError(t, s.Start(appTarget(101), Config{}))
	for i := range 20 {
		raw := floatSample([]float32{0.1, 0.2})
		raw.TimestampSeconds = float64(i)
		provider.push(raw)
	}

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 20 })
	mu.Lock()
	defer mu.Unlock()
	for i := range 20 {
		assert.Equal(t, float64(i), got[i])
	}
}

func TestQueueOverflowDropsInsteadOfBlocking(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)

	var release = make(chan struct{})
	var delivered atomic.Int64
	s.Subscribe(Listener{OnAudio: func(*types.EnhancedAudioSample) {
		<-release
		delivered.Add(1)
	}})

	require.NoError(t, s.Start(appTarget(101), Config{QueueSize: 4}))

	// Flood far past the queue capacity while the consumer is blocked.
	for range 100 {
		provider.push(floatSample([]float32{0.1, 0.2}))
	}
	close(release)

	waitFor(t, func() bool { return s.DroppedSamples() > 0 })
	assert.Positive(t, s.DroppedSamples())
}

func TestDisposeMakesSessionUnusable(t *testing.T) {
	provider := &fakeProvider{}
	s := New(provider)
	rec := &recorder{}
	s.Subscribe(rec.listener())

	require.NoError(t, s.Start(appTarget(101), Config{}))
	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose())

	err := s.Start(appTarget(101), Config{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeCaptureFailed))
}

func TestRegistryShutdownSweepsSessions(t *testing.T) {
	r := NewRegistry()

	p1 := &fakeProvider{}
	p2 := &fakeProvider{}
	s1 := New(p1)
	s2 := New(p2)
	r.Add(s1)
	r.Add(s2)
	require.Equal(t, 2, r.Len())

	require.NoError(t, s1.Start(appTarget(1), Config{}))
	require.NoError(t, r.Shutdown())

	assert.Equal(t, types.StateIdle, s1.State())
	assert.Error(t, s1.Start(appTarget(1), Config{}))
	assert.Equal(t, 0, r.Len())

	// Closed registry disposes additions immediately.
	s3 := New(&fakeProvider{})
	r.Add(s3)
	assert.Error(t, s3.Start(appTarget(1), Config{}))
}
