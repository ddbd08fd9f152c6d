// Package config provides engine configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
	"github.com/oszuidwest/zwfm-audiotap/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultMonitorPort                 = 8765
	DefaultSilenceThreshold            = -40.0
	DefaultSilenceDurationMs           = 15000 // 15 seconds in milliseconds
	DefaultSilenceRecoveryMs           = 5000  // 5 seconds in milliseconds
	DefaultActivityDecayMs             = 30000
	DefaultRecordingMaxDurationMinutes = 240 // 4 hours for on-demand recorders
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CaptureDefaults holds the capture parameters applied when a caller does
// not override them per capture.
type CaptureDefaults struct {
	SampleRate     int     `json:"sample_rate" validate:"omitempty,gt=0"`
	Channels       int     `json:"channels" validate:"omitempty,oneof=1 2"`
	BufferSize     int     `json:"buffer_size" validate:"gte=0"`
	ExcludeCursor  bool    `json:"exclude_cursor"`
	Format         string  `json:"format" validate:"omitempty,oneof=float32 int16"`
	MinVolume      float64 `json:"min_volume" validate:"gte=0"`
	StartTimeoutMs int64   `json:"start_timeout_ms" validate:"gte=0"`
	QueueSize      int     `json:"queue_size" validate:"gte=0"`
}

// ResolverConfig holds target-selection behavior.
type ResolverConfig struct {
	FallbackToFirst bool `json:"fallback_to_first"` // Fall back to the first source when nothing matches
	AudioOnly       bool `json:"audio_only"`        // Filter out system utilities unlikely to play audio
}

// ActivityConfig holds audio-activity ranking behavior.
type ActivityConfig struct {
	Disabled bool  `json:"disabled"` // Ranking is on unless explicitly disabled
	DecayMs  int64 `json:"decay_ms" validate:"gte=0"`
}

// SilenceDetectionConfig holds silence detection thresholds and timing parameters.
type SilenceDetectionConfig struct {
	ThresholdDB float64 `json:"threshold_db" validate:"lte=0"` // Silence threshold in dB
	DurationMs  int64   `json:"duration_ms" validate:"gte=0"`  // Duration below threshold before silence alert
	RecoveryMs  int64   `json:"recovery_ms" validate:"gte=0"`  // Duration above threshold before recovery
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url"` // Webhook URL for silence alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for silence events
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`                            // Azure AD tenant ID
	ClientID     string `json:"client_id"`                            // App registration client ID
	ClientSecret string `json:"client_secret"`                        // App registration client secret
	FromAddress  string `json:"from_address" validate:"omitempty,email"` // Shared mailbox sender address
	Recipients   string `json:"recipients"`                           // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Log     LogConfig     `json:"log"`
	Email   EmailConfig   `json:"email"`
}

// MonitorConfig holds the WebSocket monitor server settings.
type MonitorConfig struct {
	Port           int      `json:"port" validate:"omitempty,gte=1,lte=65535"`
	AllowedOrigins []string `json:"allowed_origins" validate:"dive,url"`
}

// RecordingConfig holds recording settings.
type RecordingConfig struct {
	APIKey             string           `json:"api_key"`                                // API key for recording control
	MaxDurationMinutes int              `json:"max_duration_minutes" validate:"gte=0"` // Max duration for on-demand recorders
	Recorders          []types.Recorder `json:"recorders"`                              // Recording destinations
}

// Config holds all engine configuration. It is safe for concurrent use.
type Config struct {
	Capture          CaptureDefaults        `json:"capture"`
	Resolver         ResolverConfig         `json:"resolver"`
	Activity         ActivityConfig         `json:"activity"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`
	Notifications    NotificationsConfig    `json:"notifications"`
	Monitor          MonitorConfig          `json:"monitor"`
	Recording        RecordingConfig        `json:"recording"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values. An empty filePath keeps the
// configuration in memory only.
func New(filePath string) *Config {
	return &Config{
		Monitor:   MonitorConfig{Port: DefaultMonitorPort},
		Recording: RecordingConfig{Recorders: []types.Recorder{}},
		filePath:  filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		c.applyDefaults()
		return c.validateLocked()
	}

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		c.applyDefaults()
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return c.validateLocked()
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		return util.WrapError("validate config", err)
	}
	for i := range c.Recording.Recorders {
		if err := validateRecorder(&c.Recording.Recorders[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateRecorder checks the cross-field requirements a struct tag cannot
// express: storage modes imply which destinations must be configured.
func validateRecorder(r *types.Recorder) error {
	switch r.StorageMode {
	case types.StorageLocal, types.StorageS3, types.StorageBoth:
	default:
		return fmt.Errorf("recorder %q: invalid storage_mode %q", r.Name, r.StorageMode)
	}
	switch r.RotationMode {
	case types.RotationHourly, types.RotationOnDemand:
	default:
		return fmt.Errorf("recorder %q: invalid rotation_mode %q", r.Name, r.RotationMode)
	}
	switch r.Format {
	case "", types.FormatFloat32, types.FormatInt16:
	default:
		return fmt.Errorf("recorder %q: invalid format %q", r.Name, r.Format)
	}
	if r.UsesLocal() && r.LocalPath == "" {
		return fmt.Errorf("recorder %q: local_path is required for storage_mode %q", r.Name, r.StorageMode)
	}
	if r.UsesS3() {
		// The endpoint is optional; empty means the default AWS endpoint.
		if r.S3Bucket == "" || r.S3AccessKeyID == "" || r.S3SecretAccessKey == "" {
			return fmt.Errorf("recorder %q: s3 settings are required for storage_mode %q", r.Name, r.StorageMode)
		}
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = types.DefaultSampleRate
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = types.DefaultChannels
	}
	if c.Capture.Format == "" {
		c.Capture.Format = string(types.FormatFloat32)
	}
	if c.Activity.DecayMs == 0 {
		c.Activity.DecayMs = DefaultActivityDecayMs
	}
	if c.Monitor.Port == 0 {
		c.Monitor.Port = DefaultMonitorPort
	}
	if c.Recording.Recorders == nil {
		c.Recording.Recorders = []types.Recorder{}
	}
	for i := range c.Recording.Recorders {
		if c.Recording.Recorders[i].CreatedAt == 0 {
			c.Recording.Recorders[i].CreatedAt = time.Now().UnixMilli()
		}
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	if c.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Recorder management ---

// Recorder returns a copy of the recorder with the given ID, or nil if not found.
func (c *Config) Recorder(id string) *types.Recorder {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Recording.Recorders {
		if c.Recording.Recorders[i].ID == id {
			recorder := c.Recording.Recorders[i]
			return &recorder
		}
	}
	return nil
}

// findRecorderIndex returns the index of the recorder with the given ID, or -1 if not found.
func (c *Config) findRecorderIndex(id string) int {
	for i := range c.Recording.Recorders {
		if c.Recording.Recorders[i].ID == id {
			return i
		}
	}
	return -1
}

// AddRecorder adds a new recorder and saves the configuration.
func (c *Config) AddRecorder(recorder *types.Recorder) error {
	if err := validateRecorder(recorder); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	shortID, err := generateShortID()
	if err != nil {
		return fmt.Errorf("failed to generate ID: %w", err)
	}
	recorder.ID = fmt.Sprintf("recorder-%s", shortID)

	if recorder.RetentionDays == 0 {
		recorder.RetentionDays = types.DefaultRetentionDays
	}
	// New recorders are enabled by default
	recorder.Enabled = true
	recorder.CreatedAt = time.Now().UnixMilli()

	c.Recording.Recorders = append(c.Recording.Recorders, *recorder)
	return c.saveLocked()
}

// RemoveRecorder removes a recorder by ID and saves the configuration.
func (c *Config) RemoveRecorder(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.findRecorderIndex(id)
	if i == -1 {
		return fmt.Errorf("recorder not found: %s", id)
	}

	c.Recording.Recorders = append(c.Recording.Recorders[:i], c.Recording.Recorders[i+1:]...)
	return c.saveLocked()
}

// UpdateRecorder updates an existing recorder and saves the configuration.
func (c *Config) UpdateRecorder(recorder *types.Recorder) error {
	if err := validateRecorder(recorder); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.findRecorderIndex(recorder.ID)
	if i == -1 {
		return fmt.Errorf("recorder not found: %s", recorder.ID)
	}

	c.Recording.Recorders[i] = *recorder
	return c.saveLocked()
}

// --- Getters for individual settings ---

// LogPath returns the configured log file path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// RecordingAPIKey returns the API key for recording control endpoints.
func (c *Config) RecordingAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.APIKey
}

// --- Setters for individual settings ---

// SetSilenceThreshold updates the silence detection threshold and saves the configuration.
func (c *Config) SetSilenceThreshold(threshold float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.ThresholdDB = threshold
	return c.saveLocked()
}

// SetSilenceDurationMs updates the silence duration and saves the configuration.
func (c *Config) SetSilenceDurationMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.DurationMs = ms
	return c.saveLocked()
}

// SetSilenceRecoveryMs updates the silence recovery time and saves the configuration.
func (c *Config) SetSilenceRecoveryMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.RecoveryMs = ms
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetRecordingAPIKey updates the API key and saves the configuration.
func (c *Config) SetRecordingAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.APIKey = key
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// Capture
	SampleRate     int
	Channels       int
	BufferSize     int
	ExcludeCursor  bool
	Format         string
	MinVolume      float64
	StartTimeoutMs int64
	QueueSize      int

	// Resolver
	FallbackToFirst bool
	AudioOnly       bool

	// Activity
	ActivityEnabled bool
	ActivityDecayMs int64

	// Silence Detection
	SilenceThreshold  float64
	SilenceDurationMs int64
	SilenceRecoveryMs int64

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Monitor
	MonitorPort           int
	MonitorAllowedOrigins []string

	// Recording
	RecordingAPIKey             string
	RecordingMaxDurationMinutes int
	Recorders                   []types.Recorder
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// Capture (with defaults)
		SampleRate:     cmp.Or(c.Capture.SampleRate, types.DefaultSampleRate),
		Channels:       cmp.Or(c.Capture.Channels, types.DefaultChannels),
		BufferSize:     c.Capture.BufferSize,
		ExcludeCursor:  c.Capture.ExcludeCursor,
		Format:         cmp.Or(c.Capture.Format, string(types.FormatFloat32)),
		MinVolume:      c.Capture.MinVolume,
		StartTimeoutMs: c.Capture.StartTimeoutMs,
		QueueSize:      c.Capture.QueueSize,

		// Resolver
		FallbackToFirst: c.Resolver.FallbackToFirst,
		AudioOnly:       c.Resolver.AudioOnly,

		// Activity
		ActivityEnabled: !c.Activity.Disabled,
		ActivityDecayMs: cmp.Or(c.Activity.DecayMs, int64(DefaultActivityDecayMs)),

		// Silence Detection (with defaults)
		SilenceThreshold:  cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold),
		SilenceDurationMs: cmp.Or(c.SilenceDetection.DurationMs, DefaultSilenceDurationMs),
		SilenceRecoveryMs: cmp.Or(c.SilenceDetection.RecoveryMs, DefaultSilenceRecoveryMs),

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		// Monitor
		MonitorPort:           cmp.Or(c.Monitor.Port, DefaultMonitorPort),
		MonitorAllowedOrigins: slices.Clone(c.Monitor.AllowedOrigins),

		// Recording
		RecordingAPIKey:             c.Recording.APIKey,
		RecordingMaxDurationMinutes: cmp.Or(c.Recording.MaxDurationMinutes, DefaultRecordingMaxDurationMinutes),
		Recorders:                   slices.Clone(c.Recording.Recorders),
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}

// generateShortID generates a random 8-character hex ID for recorders.
func generateShortID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}
