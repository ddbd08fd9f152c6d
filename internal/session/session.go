// Package session owns the capture state machine: it binds the platform
// provider's raw callback to the audio pipeline and enforces the
// at-most-one-active-capture invariant.
package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// DefaultQueueSize bounds the producer-to-consumer hand-off. The provider
// delivers from a thread the engine does not control; a bounded queue keeps
// a slow consumer from growing memory without limit.
const DefaultQueueSize = 64

// Provider is the platform capture backend as seen by a session.
type Provider interface {
	// StartCapture begins delivering raw samples for the target. The
	// callback may be invoked from any thread and must not be blocked.
	StartCapture(target types.CaptureTarget, cfg types.CaptureConfig, onSample func(*types.RawAudioSample)) error
	// Stop ends delivery. Late in-flight callbacks may still arrive
	// afterwards on some platforms; the session discards them.
	Stop() error
}

// Config controls a session's capture and processing behavior.
type Config struct {
	// Capture is the provider-facing configuration.
	Capture types.CaptureConfig
	// Pipeline controls per-sample enhancement.
	Pipeline audio.PipelineConfig
	// StartTimeout bounds the provider start call; 0 uses the default.
	StartTimeout time.Duration
	// QueueSize bounds the sample hand-off; 0 uses DefaultQueueSize.
	QueueSize int
}

// Session is the capture state machine. At most one capture may be starting
// or active at any time; Start enforces this atomically.
// It is safe for concurrent use.
type Session struct {
	provider Provider
	hub      *Hub

	mu         sync.RWMutex
	state      types.SessionState
	target     types.CaptureTarget
	pipeline   *audio.Pipeline
	generation uint64
	disposed   bool
	startTime  time.Time

	// Hand-off from the provider callback to the pump goroutine.
	queue    chan *types.EnhancedAudioSample
	stopCh   chan struct{}
	pumpDone chan struct{}

	dropped atomic.Uint64
}

// New creates an idle session over the given provider.
func New(provider Provider) *Session {
	return &Session{
		provider: provider,
		hub:      NewHub(),
		state:    types.StateIdle,
	}
}

// Subscribe registers a listener for session events and returns its
// unsubscribe function.
func (s *Session) Subscribe(l Listener) func() {
	return s.hub.Subscribe(l)
}

// State returns the current session state.
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsActive reports whether audio is currently being captured.
func (s *Session) IsActive() bool {
	return s.State() == types.StateActive
}

// Target returns the snapshot of the target captured at start time.
func (s *Session) Target() types.CaptureTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// Uptime returns how long the current capture has been active.
func (s *Session) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != types.StateActive {
		return 0
	}
	return time.Since(s.startTime)
}

// DroppedSamples returns how many samples were discarded because the
// hand-off queue was full.
func (s *Session) DroppedSamples() uint64 {
	return s.dropped.Load()
}

// fail emits the error to listeners and returns it, so callers relying on
// either channel see the failure.
func (s *Session) fail(err error) error {
	s.hub.EmitError(err)
	return err
}

// ReportError emits an error event for a failure detected outside the
// session, such as target resolution, and returns the same error.
func (s *Session) ReportError(err error) error {
	return s.fail(err)
}

// Start begins capturing the target. Allowed only from the idle state: a
// concurrent or repeated start fails with already_capturing and leaves the
// running capture untouched.
func (s *Session) Start(target types.CaptureTarget, cfg Config) error {
	cfg.Capture.ApplyDefaults()
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = types.DefaultStartTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return s.fail(types.NewError(types.CodeCaptureFailed, "session is disposed"))
	}
	if s.state != types.StateIdle {
		s.mu.Unlock()
		return s.fail(types.NewError(types.CodeAlreadyCapturing,
			"a capture is already running; stop it before starting another"))
	}

	s.state = types.StateStarting
	s.target = target
	s.pipeline = audio.NewPipeline(cfg.Pipeline)
	s.generation++
	gen := s.generation
	s.queue = make(chan *types.EnhancedAudioSample, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.pumpDone = make(chan struct{})
	s.mu.Unlock()

	onSample := func(raw *types.RawAudioSample) {
		s.handleSample(gen, raw)
	}

	// Provider start calls can hang on platform bugs; bound them with an
	// explicit timeout instead of waiting forever.
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.provider.StartCapture(target, cfg.Capture, onSample)
	}()

	var startErr error
	select {
	case err := <-errCh:
		startErr = err
	case <-time.After(cfg.StartTimeout):
		startErr = types.NewError(types.CodeCaptureFailed, "provider start timed out")
		// Best effort: ask the provider to abandon the hung start.
		if err := s.provider.Stop(); err != nil {
			slog.Warn("provider stop after start timeout failed", "error", err)
		}
	}

	if startErr != nil {
		s.mu.Lock()
		s.state = types.StateIdle
		s.mu.Unlock()
		if types.CodeOf(startErr) == "" {
			startErr = types.CaptureFailed("provider failed to start capture", startErr)
		}
		return s.fail(startErr)
	}

	s.mu.Lock()
	if s.state != types.StateStarting {
		// Stop raced the start; unwind the provider and report failure.
		s.state = types.StateIdle
		s.mu.Unlock()
		if err := s.provider.Stop(); err != nil {
			slog.Warn("provider stop after aborted start failed", "error", err)
		}
		return s.fail(types.NewError(types.CodeCaptureFailed, "capture was stopped while starting"))
	}
	s.state = types.StateActive
	s.startTime = time.Now()
	queue := s.queue
	stopCh := s.stopCh
	pumpDone := s.pumpDone
	s.mu.Unlock()

	go s.pump(queue, stopCh, pumpDone)

	slog.Info("capture started", "kind", target.Kind, "sample_rate", cfg.Capture.SampleRate,
		"channels", cfg.Capture.Channels)
	s.hub.EmitStart(target)
	return nil
}

// handleSample runs on the provider's thread. It must never block: the
// pipeline is pure and the queue send is non-blocking.
func (s *Session) handleSample(gen uint64, raw *types.RawAudioSample) {
	s.mu.RLock()
	// Provider callbacks can race stop completion; late or stale samples
	// must never resurrect an ended session.
	if s.state != types.StateActive || gen != s.generation {
		s.mu.RUnlock()
		return
	}
	pipeline := s.pipeline
	queue := s.queue
	s.mu.RUnlock()

	enhanced, ok, err := pipeline.Process(raw)
	if err != nil {
		slog.Warn("discarding malformed sample", "error", err)
		return
	}
	if !ok {
		// Suppressed by the volume gate.
		return
	}

	select {
	case queue <- enhanced:
	default:
		s.dropped.Add(1)
	}
}

// pump delivers queued samples to listeners in order. One consumer goroutine
// keeps delivery ordered; it exits before the stop event is emitted, so no
// audio can follow a stop.
func (s *Session) pump(queue chan *types.EnhancedAudioSample, stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stopCh:
			return
		case sample := <-queue:
			s.hub.EmitAudio(sample)
		}
	}
}

// Stop ends the capture. It is idempotent: a no-op when already idle or
// stopping, and the stop event fires exactly once per capture.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == types.StateIdle || s.state == types.StateStopping {
		s.mu.Unlock()
		return nil
	}
	wasStarting := s.state == types.StateStarting
	s.state = types.StateStopping
	target := s.target
	stopCh := s.stopCh
	pumpDone := s.pumpDone
	s.mu.Unlock()

	if wasStarting {
		// Start will observe the state change and unwind itself.
		return nil
	}

	if err := s.provider.Stop(); err != nil {
		slog.Warn("provider stop reported error", "error", err)
	}

	// Shut the pump down before signaling stop so no sample can be
	// delivered after the stop event.
	close(stopCh)
	select {
	case <-pumpDone:
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("sample pump did not stop in time")
	}

	s.mu.Lock()
	s.state = types.StateIdle
	s.mu.Unlock()

	if dropped := s.dropped.Load(); dropped > 0 {
		slog.Info("capture stopped", "kind", target.Kind, "dropped_samples", dropped)
	} else {
		slog.Info("capture stopped", "kind", target.Kind)
	}
	s.hub.EmitStop(target)
	return nil
}

// Dispose stops any running capture, clears all listeners, and makes the
// session permanently unusable. It is idempotent.
func (s *Session) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	err := s.Stop()
	s.hub.Clear()
	return err
}
