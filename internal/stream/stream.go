// Package stream bridges the session's push-based sample delivery to a
// pull-based consumer API. Capture starts lazily on the first pull, so a
// stream can be handed to a consumer before anything touches the OS.
package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/oszuidwest/zwfm-audiotap/internal/session"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// Mode selects what a stream hands to its consumer.
type Mode int

const (
	// ModeObject delivers the full enhanced sample with metadata.
	ModeObject Mode = iota
	// ModeRaw delivers only the PCM payload.
	ModeRaw
)

// DefaultHighWater is the buffered-sample count above which the stream
// reports backpressure.
const DefaultHighWater = 256

// Options configures a stream over a session.
type Options struct {
	// Mode selects raw or object delivery. Defaults to ModeObject.
	Mode Mode
	// HighWater is the buffered-sample threshold for the backpressure
	// flag; 0 uses DefaultHighWater.
	HighWater int
}

// item is one buffered delivery. sample is nil in raw mode so object
// metadata is not retained longer than needed.
type item struct {
	data   []byte
	sample *types.EnhancedAudioSample
}

// Stream pulls enhanced samples out of a capture session.
//
// The producer cannot be paused: when the consumer stops draining, the
// internal buffer keeps growing and the stream only reports backpressure via
// Backpressured. Bounding memory is the consumer's responsibility.
type Stream struct {
	session *session.Session
	target  types.CaptureTarget
	cfg     session.Config
	mode    Mode
	high    int

	mu            sync.Mutex
	started       bool
	stopped       bool
	buf           []item
	errFns        []func(error)
	endFns        []func()
	unsub         func()
	backpressured bool

	notify  chan struct{}
	done    chan struct{}
	endOnce sync.Once
}

// New creates a stream over the session for the given target. The session is
// not started until the first pull.
func New(sess *session.Session, target types.CaptureTarget, cfg session.Config, opts Options) *Stream {
	if opts.HighWater <= 0 {
		opts.HighWater = DefaultHighWater
	}
	return &Stream{
		session: sess,
		target:  target,
		cfg:     cfg,
		mode:    opts.Mode,
		high:    opts.HighWater,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Mode returns the stream's delivery mode.
func (s *Stream) Mode() Mode {
	return s.mode
}

// OnError registers an error callback. Registering here does not start the
// capture; only pulling does.
func (s *Stream) OnError(fn func(error)) {
	s.mu.Lock()
	s.errFns = append(s.errFns, fn)
	s.mu.Unlock()
}

// OnEnd registers a callback invoked exactly once when the stream ends,
// whether through Stop or an external session stop.
func (s *Stream) OnEnd(fn func()) {
	s.mu.Lock()
	s.endFns = append(s.endFns, fn)
	s.mu.Unlock()
}

// Backpressured reports whether the internal buffer has crossed the
// high-water mark since the consumer last drained below it.
func (s *Stream) Backpressured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backpressured
}

// Buffered returns the number of samples waiting to be pulled.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// start begins the capture on first pull. Callers must not hold s.mu.
func (s *Stream) start() error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	unsub := s.session.Subscribe(session.Listener{
		OnAudio: s.push,
		OnError: s.fanError,
		// The session may be stopped by someone other than this
		// stream; that still has to end the stream cleanly.
		OnStop: func(types.CaptureTarget) { s.signalEnd() },
	})
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()

	if err := s.session.Start(s.target, s.cfg); err != nil {
		s.detach()
		s.signalEnd()
		return err
	}
	return nil
}

func (s *Stream) push(sample *types.EnhancedAudioSample) {
	it := item{data: sample.Data}
	if s.mode == ModeObject {
		it.sample = sample
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, it)
	if len(s.buf) >= s.high && !s.backpressured {
		s.backpressured = true
		slog.Warn("stream consumer is not keeping up", "buffered", len(s.buf))
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Stream) fanError(err error) {
	s.mu.Lock()
	fns := make([]func(error), len(s.errFns))
	copy(fns, s.errFns)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// signalEnd marks end-of-output. It fires the end callbacks exactly once no
// matter how many paths reach it.
func (s *Stream) signalEnd() {
	s.endOnce.Do(func() {
		s.mu.Lock()
		fns := make([]func(), len(s.endFns))
		copy(fns, s.endFns)
		s.mu.Unlock()
		close(s.done)
		for _, fn := range fns {
			fn()
		}
	})
}

func (s *Stream) detach() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// next pulls the next buffered item, starting the capture if needed. It
// returns io.EOF once the stream has ended and the buffer is drained.
func (s *Stream) next(ctx context.Context) (item, error) {
	if err := s.start(); err != nil {
		return item{}, err
	}
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			it := s.buf[0]
			s.buf = s.buf[1:]
			if s.backpressured && len(s.buf) < s.high/2 {
				s.backpressured = false
			}
			s.mu.Unlock()
			return it, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
			// Drain anything that raced the end signal. done is closed,
			// so re-entering the select fires this case again until the
			// buffer is empty.
			s.mu.Lock()
			empty := len(s.buf) == 0
			s.mu.Unlock()
			if empty {
				return item{}, io.EOF
			}
		case <-ctx.Done():
			return item{}, ctx.Err()
		}
	}
}

// Next pulls the next enhanced sample. Only valid in object mode.
func (s *Stream) Next(ctx context.Context) (*types.EnhancedAudioSample, error) {
	if s.mode != ModeObject {
		return nil, types.NewError(types.CodeInvalidArgument, "stream is in raw mode; use NextRaw")
	}
	it, err := s.next(ctx)
	if err != nil {
		return nil, err
	}
	return it.sample, nil
}

// NextRaw pulls the next PCM payload. Valid in either mode.
func (s *Stream) NextRaw(ctx context.Context) ([]byte, error) {
	it, err := s.next(ctx)
	if err != nil {
		return nil, err
	}
	return it.data, nil
}

// Stop ends the stream. Listeners are detached before the session is
// stopped, so nothing can be pushed after the end signal.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wasStarted := s.started
	s.mu.Unlock()

	s.detach()
	var err error
	if wasStarted {
		err = s.session.Stop()
	}
	s.signalEnd()
	return err
}
