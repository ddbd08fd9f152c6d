package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var silenceCfg = SilenceConfig{Threshold: -40, DurationMs: 1000, RecoveryMs: 500}

func TestSilenceDetectorEntersAfterDuration(t *testing.T) {
	d := NewSilenceDetector()
	now := time.Now()

	ev := d.Update(-50, silenceCfg, now)
	assert.False(t, ev.InSilence)

	ev = d.Update(-50, silenceCfg, now.Add(500*time.Millisecond))
	assert.False(t, ev.InSilence)

	ev = d.Update(-50, silenceCfg, now.Add(1100*time.Millisecond))
	assert.True(t, ev.InSilence)
	assert.True(t, ev.JustEntered)
	assert.Equal(t, int64(1100), ev.DurationMs)

	// Still silent: confirmed but no new transition.
	ev = d.Update(-50, silenceCfg, now.Add(1500*time.Millisecond))
	assert.True(t, ev.InSilence)
	assert.False(t, ev.JustEntered)
}

func TestSilenceDetectorRecovery(t *testing.T) {
	d := NewSilenceDetector()
	now := time.Now()

	d.Update(-50, silenceCfg, now)
	d.Update(-50, silenceCfg, now.Add(1100*time.Millisecond))

	// Audio returns but the recovery window hasn't elapsed yet.
	ev := d.Update(-10, silenceCfg, now.Add(1200*time.Millisecond))
	assert.True(t, ev.InSilence)
	assert.False(t, ev.JustRecovered)

	ev = d.Update(-10, silenceCfg, now.Add(1800*time.Millisecond))
	assert.True(t, ev.JustRecovered)
	assert.False(t, ev.InSilence)
	assert.Equal(t, int64(1100), ev.TotalDurationMs)
}

func TestSilenceDetectorBriefDipDoesNotTrigger(t *testing.T) {
	d := NewSilenceDetector()
	now := time.Now()

	d.Update(-50, silenceCfg, now)
	ev := d.Update(-10, silenceCfg, now.Add(300*time.Millisecond))
	assert.False(t, ev.InSilence)

	// Silence clock restarted.
	ev = d.Update(-50, silenceCfg, now.Add(400*time.Millisecond))
	assert.False(t, ev.InSilence)
	ev = d.Update(-50, silenceCfg, now.Add(1300*time.Millisecond))
	assert.False(t, ev.InSilence)
	ev = d.Update(-50, silenceCfg, now.Add(1500*time.Millisecond))
	assert.True(t, ev.JustEntered)
}

func TestPeakHolder(t *testing.T) {
	p := NewPeakHolder()
	now := time.Now()

	assert.Equal(t, -20.0, p.Update(-20, now))
	// Lower peak within hold window keeps the held value.
	assert.Equal(t, -20.0, p.Update(-35, now.Add(time.Second)))
	// After the hold duration the lower value takes over.
	assert.Equal(t, -35.0, p.Update(-35, now.Add(5*time.Second)))

	p.Reset()
	assert.Equal(t, -12.0, p.Update(-12, now))
}
