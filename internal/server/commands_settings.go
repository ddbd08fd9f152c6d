package server

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-audiotap/internal/config"
)

// --- Silence detection handlers ---

// handleSilenceUpdate processes a silence/update command.
func (h *CommandHandler) handleSilenceUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *SilenceUpdateRequest) error {
		if req.ThresholdDB != nil {
			if err := h.cfg.SetSilenceThreshold(*req.ThresholdDB); err != nil {
				return err
			}
		}
		if req.DurationMs != nil {
			if err := h.cfg.SetSilenceDurationMs(*req.DurationMs); err != nil {
				return err
			}
		}
		if req.RecoveryMs != nil {
			if err := h.cfg.SetSilenceRecoveryMs(*req.RecoveryMs); err != nil {
				return err
			}
		}

		h.engine.ApplySilenceConfig()
		return nil
	})
}

// handleSilenceGet processes a silence/get command.
func (h *CommandHandler) handleSilenceGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "silence/get", map[string]any{
		"threshold_db": snap.SilenceThreshold,
		"duration_ms":  snap.SilenceDurationMs,
		"recovery_ms":  snap.SilenceRecoveryMs,
	})
}

// --- Recording settings handlers ---

// handleRegenerateAPIKey processes a recording/regenerate-key command.
func (h *CommandHandler) handleRegenerateAPIKey(send chan<- any) {
	newKey, err := config.GenerateAPIKey()
	if err != nil {
		slog.Error("recording/regenerate-key: failed to generate", "error", err)
		SendError(send, "recording/regenerate-key", err)
		return
	}

	if err := h.cfg.SetRecordingAPIKey(newKey); err != nil {
		slog.Error("recording/regenerate-key: failed to save", "error", err)
		SendError(send, "recording/regenerate-key", err)
		return
	}

	slog.Info("recording/regenerate-key: API key regenerated")
	SendSuccess(send, "recording/regenerate-key", map[string]any{"api_key": newKey})
}

// handleRecordingGet processes a recording/get command.
func (h *CommandHandler) handleRecordingGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "recording/get", map[string]any{
		"api_key":              snap.RecordingAPIKey,
		"max_duration_minutes": snap.RecordingMaxDurationMinutes,
		"recorders":            snap.Recorders,
	})
}

// --- Config handlers ---

// handleConfigGet processes a config/get command.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "config/get", map[string]any{
		"capture": map[string]any{
			"sample_rate":      snap.SampleRate,
			"channels":         snap.Channels,
			"buffer_size":      snap.BufferSize,
			"format":           snap.Format,
			"min_volume":       snap.MinVolume,
			"exclude_cursor":   snap.ExcludeCursor,
			"start_timeout_ms": snap.StartTimeoutMs,
			"queue_size":       snap.QueueSize,
		},
		"resolver": map[string]any{
			"fallback_to_first": snap.FallbackToFirst,
			"audio_only":        snap.AudioOnly,
		},
		"activity": map[string]any{
			"enabled":  snap.ActivityEnabled,
			"decay_ms": snap.ActivityDecayMs,
		},
		"silence": map[string]any{
			"threshold_db": snap.SilenceThreshold,
			"duration_ms":  snap.SilenceDurationMs,
			"recovery_ms":  snap.SilenceRecoveryMs,
		},
		"monitor": map[string]any{
			"port":            snap.MonitorPort,
			"allowed_origins": snap.MonitorAllowedOrigins,
		},
	})
}
