package server

import (
	"fmt"

	"github.com/oszuidwest/zwfm-audiotap/internal/notify"
)

// --- Webhook handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleTestWebhook processes a notifications/webhook/test command.
func (h *CommandHandler) handleTestWebhook(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		snap := h.cfg.Snapshot()
		if !snap.HasWebhook() {
			return nil, fmt.Errorf("webhook URL not configured")
		}
		return nil, notify.SendTestWebhook(snap.WebhookURL)
	})
}

// handleWebhookGet processes a notifications/webhook/get command.
func (h *CommandHandler) handleWebhookGet(send chan<- any) {
	SendSuccess(send, "notifications/webhook/get", map[string]any{
		"url": h.cfg.Snapshot().WebhookURL,
	})
}

// --- Log handlers ---

// handleLogUpdate processes a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *LogUpdateRequest) error {
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleTestLog processes a notifications/log/test command.
func (h *CommandHandler) handleTestLog(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, notify.WriteTestLog(h.cfg.Snapshot().LogPath)
	})
}

// handleViewSilenceLog processes a notifications/log/view command.
func (h *CommandHandler) handleViewSilenceLog(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		snap := h.cfg.Snapshot()
		if !snap.HasLogPath() {
			return nil, fmt.Errorf("log file path not configured")
		}
		entries, err := notify.ReadSilenceLog(snap.LogPath, MaxLogEntries)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries}, nil
	})
}

// handleLogGet processes a notifications/log/get command.
func (h *CommandHandler) handleLogGet(send chan<- any) {
	SendSuccess(send, "notifications/log/get", map[string]any{
		"path": h.cfg.Snapshot().LogPath,
	})
}

// --- Email handlers ---

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *EmailUpdateRequest) error {
		// Preserve secret if not provided
		secret := req.ClientSecret
		if secret == "" {
			secret = h.cfg.Snapshot().GraphClientSecret
		}

		if err := h.cfg.SetGraphConfig(req.TenantID, req.ClientID, secret, req.FromAddress, req.Recipients); err != nil {
			return err
		}

		h.engine.InvalidateGraphClient()
		return nil
	})
}

// handleTestEmail processes a notifications/email/test command.
func (h *CommandHandler) handleTestEmail(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, notify.SendTestEmail(notify.BuildGraphConfig(h.cfg.Snapshot()))
	})
}

// handleEmailGet processes a notifications/email/get command.
// The client secret is never returned.
func (h *CommandHandler) handleEmailGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "notifications/email/get", map[string]any{
		"tenant_id":    snap.GraphTenantID,
		"client_id":    snap.GraphClientID,
		"from_address": snap.GraphFromAddress,
		"recipients":   snap.GraphRecipients,
		"configured":   snap.HasGraph(),
	})
}
