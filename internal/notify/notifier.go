package notify

import (
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/config"
	"github.com/oszuidwest/zwfm-audiotap/internal/util"
)

// SilenceNotifier manages notifications for silence detection events on a
// capture. It is an optional diagnostic: the session itself never suppresses
// or alters audio because of silence.
type SilenceNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	// targetName labels notifications with the captured target
	targetName string

	// Track which notifications have been sent for current silence period
	webhookSent bool
	emailSent   bool
	logSent     bool

	// Cached Graph client for email notifications
	graphClient *GraphClient
}

// NewSilenceNotifier returns a SilenceNotifier configured with the given config.
func NewSilenceNotifier(cfg *config.Config) *SilenceNotifier {
	return &SilenceNotifier{cfg: cfg}
}

// SetTargetName sets the capture target name used in notifications.
func (n *SilenceNotifier) SetTargetName(name string) {
	n.mu.Lock()
	n.targetName = name
	n.mu.Unlock()
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *SilenceNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *SilenceNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleEvent processes a silence event and triggers notifications.
func (n *SilenceNotifier) HandleEvent(event audio.SilenceEvent) {
	if event.JustEntered {
		n.handleSilenceStart(event.CurrentDB)
	}

	if event.JustRecovered {
		n.handleSilenceEnd(event.TotalDurationMs, event.CurrentDB)
	}
}

// handleSilenceStart triggers notifications when silence is first detected.
func (n *SilenceNotifier) handleSilenceStart(levelDB float64) {
	cfg := n.cfg.Snapshot()
	target := n.target()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() {
		util.LogNotifyResult(
			func() error { return SendSilenceWebhook(cfg.WebhookURL, target, levelDB, cfg.SilenceThreshold) },
			"Silence webhook",
		)
	})
	n.trySend(&n.emailSent, cfg.HasGraph(), func() { n.sendSilenceEmail(cfg, target, levelDB) })
	n.trySend(&n.logSent, cfg.HasLogPath(), func() {
		util.LogNotifyResult(
			func() error { return LogSilenceStart(cfg.LogPath, levelDB, cfg.SilenceThreshold) },
			"Silence log",
		)
	})
}

// trySend sends a notification if the condition is met and not already sent.
func (n *SilenceNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// handleSilenceEnd triggers recovery notifications when silence ends.
func (n *SilenceNotifier) handleSilenceEnd(totalDurationMs int64, levelDB float64) {
	cfg := n.cfg.Snapshot()
	target := n.target()

	// Only send recovery notifications if we sent the corresponding start notification
	n.mu.Lock()
	shouldSendWebhookRecovery := n.webhookSent
	shouldSendEmailRecovery := n.emailSent
	shouldSendLogRecovery := n.logSent
	// Reset notification state for next silence period
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()

	if shouldSendWebhookRecovery {
		go util.LogNotifyResult(
			func() error {
				return SendRecoveryWebhook(cfg.WebhookURL, target, totalDurationMs, levelDB, cfg.SilenceThreshold)
			},
			"Recovery webhook",
		)
	}

	if shouldSendEmailRecovery {
		go n.sendRecoveryEmail(cfg, target, totalDurationMs, levelDB)
	}

	if shouldSendLogRecovery {
		go util.LogNotifyResult(
			func() error { return LogSilenceEnd(cfg.LogPath, totalDurationMs, levelDB, cfg.SilenceThreshold) },
			"Recovery log",
		)
	}
}

// Reset clears the notification state.
func (n *SilenceNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()
}

func (n *SilenceNotifier) target() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.targetName
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *SilenceNotifier) sendSilenceEmail(cfg config.Snapshot, target string, levelDB float64) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error {
			subject := "[ALERT] Silence Detected - " + AppName
			body := fmt.Sprintf(
				"Silence detected on the captured audio.\n\n"+
					"Target:    %s\n"+
					"Level:     %.1f dB\n"+
					"Threshold: %.1f dB\n"+
					"Time:      %s\n\n"+
					"Silence is ongoing. Please check the audio source.",
				target, levelDB, cfg.SilenceThreshold, util.HumanTime(),
			)
			return n.sendEmail(graphCfg, subject, body)
		},
		"Silence email",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *SilenceNotifier) sendRecoveryEmail(cfg config.Snapshot, target string, durationMs int64, levelDB float64) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error {
			subject := "[OK] Audio Recovered - " + AppName
			body := fmt.Sprintf(
				"Audio recovered on the captured target.\n\n"+
					"Target:         %s\n"+
					"Level:          %.1f dB\n"+
					"Silence lasted: %s\n"+
					"Threshold:      %.1f dB\n"+
					"Time:           %s",
				target, levelDB, util.FormatDuration(durationMs), cfg.SilenceThreshold, util.HumanTime(),
			)
			return n.sendEmail(graphCfg, subject, body)
		},
		"Recovery email",
	)
}

// sendEmail handles the common email sending infrastructure.
func (n *SilenceNotifier) sendEmail(cfg *GraphConfig, subject, body string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}
