package audiotap

import (
	"github.com/oszuidwest/zwfm-audiotap/internal/resolver"
	"github.com/oszuidwest/zwfm-audiotap/internal/session"
	"github.com/oszuidwest/zwfm-audiotap/internal/stream"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// Provider is the platform capture backend. Implementations enumerate
// capturable sources and deliver raw audio for one target at a time.
type Provider interface {
	// ListApplications returns the applications currently capturable.
	ListApplications() ([]types.ApplicationInfo, error)
	// ListWindows returns the windows currently capturable.
	ListWindows() ([]types.WindowInfo, error)
	// ListDisplays returns the attached displays.
	ListDisplays() ([]types.DisplayInfo, error)

	// StartCapture begins delivering raw samples for the target. The
	// callback may be invoked from any thread and must not be blocked.
	StartCapture(target types.CaptureTarget, cfg types.CaptureConfig, onSample func(*types.RawAudioSample)) error
	// Stop ends delivery. Late in-flight callbacks after Stop returns
	// are discarded by the engine.
	Stop() error
}

// Re-exported core types so consumers work with the root package only.
type (
	ApplicationInfo     = types.ApplicationInfo
	WindowInfo          = types.WindowInfo
	DisplayInfo         = types.DisplayInfo
	CaptureTarget       = types.CaptureTarget
	CaptureConfig       = types.CaptureConfig
	RawAudioSample      = types.RawAudioSample
	EnhancedAudioSample = types.EnhancedAudioSample
	SampleFormat        = types.SampleFormat
	SessionState        = types.SessionState
	TargetKind          = types.TargetKind
	Error               = types.Error
	ErrorCode           = types.ErrorCode
	ErrorDetails        = types.ErrorDetails

	// Identifier selects a capture source by name, pid, or reference.
	Identifier = resolver.Identifier

	// Listener receives session events; zero callbacks are skipped.
	Listener = session.Listener

	// Stream delivers enhanced samples through a pull API.
	Stream = stream.Stream
	// StreamOptions configures a Stream.
	StreamOptions = stream.Options
	// STTStream delivers samples converted for speech consumers.
	STTStream = stream.STTStream
	// STTOptions configures an STTStream.
	STTOptions = stream.STTOptions
)

// Sample formats.
const (
	FormatFloat32 = types.FormatFloat32
	FormatInt16   = types.FormatInt16
)

// Target kinds.
const (
	TargetApplication = types.TargetApplication
	TargetWindow      = types.TargetWindow
	TargetDisplay     = types.TargetDisplay
	TargetMultiApp    = types.TargetMultiApp
)

// Session states.
const (
	StateIdle     = types.StateIdle
	StateStarting = types.StateStarting
	StateActive   = types.StateActive
	StateStopping = types.StateStopping
)

// Error codes.
const (
	CodePermissionDenied = types.CodePermissionDenied
	CodeTargetNotFound   = types.CodeTargetNotFound
	CodeInvalidArgument  = types.CodeInvalidArgument
	CodeAlreadyCapturing = types.CodeAlreadyCapturing
	CodeCaptureFailed    = types.CodeCaptureFailed
	CodeProcessNotFound  = types.CodeProcessNotFound
)

// Stream delivery modes.
const (
	ModeObject = stream.ModeObject
	ModeRaw    = stream.ModeRaw
)

// ByName selects a source by display name or bundle identifier.
func ByName(name string) Identifier { return resolver.ByName(name) }

// ByPid selects a source by numeric id.
func ByPid(pid int) Identifier { return resolver.ByPid(pid) }

// ByRef selects a source from an already-enumerated application.
func ByRef(app *ApplicationInfo) Identifier { return resolver.ByRef(app) }

// CodeOf extracts the ErrorCode from err, or "" for non-engine errors.
func CodeOf(err error) ErrorCode { return types.CodeOf(err) }

// IsCode reports whether err is an engine error with the given code.
func IsCode(err error, code ErrorCode) bool { return types.IsCode(err, code) }
