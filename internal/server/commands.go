package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-audiotap/internal/config"
	"github.com/oszuidwest/zwfm-audiotap/internal/recording"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// MaxLogEntries is the maximum number of silence log entries returned to a client.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CaptureStatus describes the engine's capture session for monitor clients.
type CaptureStatus struct {
	State          string  `json:"state"`
	TargetKind     string  `json:"target_kind,omitempty"`
	TargetName     string  `json:"target_name,omitempty"`
	UptimeSeconds  float64 `json:"uptime_seconds,omitempty"`
	DroppedSamples uint64  `json:"dropped_samples,omitempty"`
}

// Levels is the most recent audio level measurement.
type Levels struct {
	RMSDb      float64 `json:"rms_db"`
	PeakDb     float64 `json:"peak_db"`
	HeldPeakDb float64 `json:"held_peak_db"`
}

// Engine is the surface the monitor needs from the capture engine.
type Engine interface {
	CaptureStatus() CaptureStatus
	AudioLevels() Levels

	RecorderStatuses() map[string]recording.Status
	AddRecorder(recorder *types.Recorder) error
	UpdateRecorder(recorder *types.Recorder) error
	RemoveRecorder(id string) error
	StartRecorder(id string) error
	StopRecorder(id string) error

	// ApplySilenceConfig propagates changed silence settings to the running pipeline.
	ApplySilenceConfig()
	// InvalidateGraphClient discards the cached Graph client after credential changes.
	InvalidateGraphClient()
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg    *config.Config
	engine Engine
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, engine Engine) *CommandHandler {
	return &CommandHandler{
		cfg:    cfg,
		engine: engine,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "recorders/add", "silence/update")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "recorders":
		h.handleRecorders(action, cmd, send)
	case "silence":
		h.handleSilence(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "recording":
		h.handleRecording(action, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleRecorders routes recorders/* commands
func (h *CommandHandler) handleRecorders(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "add":
		h.handleAddRecorder(cmd, send)
	case "delete":
		h.handleDeleteRecorder(cmd, send)
	case "update":
		h.handleUpdateRecorder(cmd, send)
	case "start":
		h.handleStartRecorder(cmd, send)
	case "stop":
		h.handleStopRecorder(cmd, send)
	case "test-s3":
		h.handleTestRecorderS3(cmd, send)
	default:
		slog.Warn("unknown recorders action", "action", action)
	}
}

// handleSilence routes silence/* commands
func (h *CommandHandler) handleSilence(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleSilenceUpdate(cmd, send)
	case "get":
		h.handleSilenceGet(send)
	default:
		slog.Warn("unknown silence action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTestWebhook(cmd, send)
		case "get":
			h.handleWebhookGet(send)
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleTestLog(cmd, send)
		case "view":
			h.handleViewSilenceLog(cmd, send)
		case "get":
			h.handleLogGet(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTestEmail(cmd, send)
		case "get":
			h.handleEmailGet(send)
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleRecording routes recording/* commands
func (h *CommandHandler) handleRecording(action string, send chan<- any) {
	switch action {
	case "regenerate-key":
		h.handleRegenerateAPIKey(send)
	case "get":
		h.handleRecordingGet(send)
	default:
		slog.Warn("unknown recording action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
