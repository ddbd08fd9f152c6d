// Package types provides shared type definitions used across the capture engine.
package types

import "time"

// SessionState represents the current state of a capture session.
type SessionState string

const (
	// StateIdle indicates no capture is running.
	StateIdle SessionState = "idle"
	// StateStarting indicates the provider is being started.
	StateStarting SessionState = "starting"
	// StateActive indicates audio is being captured and processed.
	StateActive SessionState = "active"
	// StateStopping indicates the session is shutting down.
	StateStopping SessionState = "stopping"
)

// SampleFormat identifies the PCM sample encoding of a buffer.
type SampleFormat string

const (
	// FormatFloat32 is 32-bit IEEE float PCM, the provider's native format.
	FormatFloat32 SampleFormat = "float32"
	// FormatInt16 is 16-bit signed integer PCM.
	FormatInt16 SampleFormat = "int16"
)

// BytesPerSample returns the width of one sample in bytes, or 0 for an
// unknown format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatFloat32:
		return 4
	case FormatInt16:
		return 2
	default:
		return 0
	}
}

// Audio capture defaults used when values are not specified.
const (
	// DefaultSampleRate is the capture sample rate in Hz.
	DefaultSampleRate = 48000
	// DefaultChannels is the number of capture channels (stereo).
	DefaultChannels = 2
	// DefaultBufferSize requests the platform's native buffer size.
	DefaultBufferSize = 0
	// DefaultStartTimeout bounds provider start calls that can hang on
	// platform bugs.
	DefaultStartTimeout = 10 * time.Second
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
)

// TargetKind identifies the variant of a CaptureTarget.
type TargetKind string

const (
	// TargetApplication captures audio from a single application.
	TargetApplication TargetKind = "application"
	// TargetWindow captures audio from a single window.
	TargetWindow TargetKind = "window"
	// TargetDisplay captures audio from everything on a display.
	TargetDisplay TargetKind = "display"
	// TargetMultiApp captures mixed audio from several applications.
	TargetMultiApp TargetKind = "multiApp"
)

// Rect describes the on-screen frame of a window or display.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ApplicationInfo describes a running application that can be captured.
// ProcessID is the natural key.
type ApplicationInfo struct {
	ProcessID        int    `json:"process_id"`
	BundleIdentifier string `json:"bundle_identifier"`
	ApplicationName  string `json:"application_name"`
}

// WindowInfo describes a capturable window.
type WindowInfo struct {
	WindowID               uint64 `json:"window_id"`
	Frame                  Rect   `json:"frame"`
	Layer                  int    `json:"layer"`
	OnScreen               bool   `json:"on_screen"`
	Title                  string `json:"title"`
	OwningProcessID        int    `json:"owning_process_id"`
	OwningApplicationName  string `json:"owning_application_name"`
	OwningBundleIdentifier string `json:"owning_bundle_identifier"`
}

// DisplayInfo describes a capturable display.
type DisplayInfo struct {
	DisplayID     uint32 `json:"display_id"`
	Frame         Rect   `json:"frame"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	IsMainDisplay bool   `json:"is_main_display"`
}

// CaptureTarget is an immutable snapshot of what a session captures.
// It is resolved once at capture start and never re-resolved while active.
type CaptureTarget struct {
	Kind      TargetKind        `json:"kind"`
	ProcessID int               `json:"process_id,omitzero"`
	App       *ApplicationInfo  `json:"app,omitempty"`
	Window    *WindowInfo       `json:"window,omitempty"`
	Display   *DisplayInfo      `json:"display,omitempty"`
	Apps      []ApplicationInfo `json:"apps,omitempty"`
}

// CaptureConfig is the provider-facing capture configuration.
type CaptureConfig struct {
	// SampleRate in Hz. Reported, not enforced: the engine surfaces the
	// rate the source actually produces instead of resampling.
	SampleRate int `json:"sample_rate"`
	// Channels is 1 (mono) or 2 (stereo).
	Channels int `json:"channels"`
	// BufferSize in frames; 0 requests the platform default.
	BufferSize int `json:"buffer_size"`
	// ExcludeCursor omits cursor-related audio cues where supported.
	ExcludeCursor bool `json:"exclude_cursor"`
}

// DefaultCaptureConfig returns a CaptureConfig with engine defaults applied.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		BufferSize:    DefaultBufferSize,
		ExcludeCursor: true,
	}
}

// ApplyDefaults fills zero-value fields with engine defaults.
func (c *CaptureConfig) ApplyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
}

// RawAudioSample is one provider callback's worth of audio, always
// interleaved float32 PCM from the provider's point of view.
type RawAudioSample struct {
	Data             []byte  `json:"-"`
	SampleRate       int     `json:"sample_rate"`
	ChannelCount     int     `json:"channel_count"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
}

// EnhancedAudioSample is a RawAudioSample after pipeline processing:
// analyzed, optionally format-converted, with derived accounting fields.
type EnhancedAudioSample struct {
	Data        []byte       `json:"-"`
	SampleRate  int          `json:"sample_rate"`
	Channels    int          `json:"channels"`
	Timestamp   float64      `json:"timestamp"`
	Format      SampleFormat `json:"format"`
	SampleCount int          `json:"sample_count"`
	FramesCount int          `json:"frames_count"`
	DurationMs  float64      `json:"duration_ms"`
	RMS         float64      `json:"rms"`
	Peak        float64      `json:"peak"`
}
