package audio

import (
	"sync"
	"time"
)

// SilenceConfig holds the configurable thresholds for silence detection.
type SilenceConfig struct {
	Threshold  float64 // dB level below which audio is considered silent
	DurationMs int64   // milliseconds of silence before triggering
	RecoveryMs int64   // milliseconds of audio before considering recovered
}

// SilenceEvent represents the result of a silence detection update.
type SilenceEvent struct {
	InSilence  bool    // currently in confirmed silence state
	DurationMs int64   // current silence duration in ms (0 if not silent)
	CurrentDB  float64 // level that produced this update, in dB

	// State transitions, for triggering notifications.
	JustEntered     bool  // true on the update when silence is first confirmed
	JustRecovered   bool  // true on the update when recovery completes
	TotalDurationMs int64 // total silence duration in ms (set when JustRecovered)
}

// SilenceDetector tracks audio silence state and generates detection events.
// It is safe for concurrent use.
type SilenceDetector struct {
	mu                sync.Mutex
	silenceStart      time.Time
	recoveryStart     time.Time
	inSilence         bool
	silenceDurationMs int64
}

// NewSilenceDetector creates a new silence detector.
func NewSilenceDetector() *SilenceDetector {
	return &SilenceDetector{}
}

// Update feeds a new level into the detector and returns the current state.
func (d *SilenceDetector) Update(db float64, cfg SilenceConfig, now time.Time) SilenceEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	event := SilenceEvent{CurrentDB: db}

	if db < cfg.Threshold {
		d.recoveryStart = time.Time{}

		if d.silenceStart.IsZero() {
			d.silenceStart = now
		}

		silenceDurationMs := now.Sub(d.silenceStart).Milliseconds()
		d.silenceDurationMs = silenceDurationMs

		if d.inSilence {
			event.InSilence = true
			event.DurationMs = silenceDurationMs
		} else if silenceDurationMs >= cfg.DurationMs {
			// Just crossed the duration threshold
			d.inSilence = true
			event.InSilence = true
			event.DurationMs = silenceDurationMs
			event.JustEntered = true
		}
		return event
	}

	// Audio is above threshold - preserve silence start during recovery.
	if !d.inSilence {
		d.silenceStart = time.Time{}
		return event
	}

	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}

	if now.Sub(d.recoveryStart).Milliseconds() >= cfg.RecoveryMs {
		event.JustRecovered = true
		event.TotalDurationMs = d.silenceDurationMs

		d.inSilence = false
		d.silenceDurationMs = 0
		d.silenceStart = time.Time{}
		d.recoveryStart = time.Time{}
	} else {
		// Still within the recovery period - remain in silence state
		event.InSilence = true
	}

	return event
}

// Reset clears the silence detection state.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silenceStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.inSilence = false
	d.silenceDurationMs = 0
}
