package types

// StorageMode determines where finished recordings end up.
type StorageMode string

const (
	// StorageLocal keeps recordings on the local filesystem only.
	StorageLocal StorageMode = "local"
	// StorageS3 uploads recordings to S3-compatible storage and removes
	// the local file after a successful upload.
	StorageS3 StorageMode = "s3"
	// StorageBoth uploads to S3 and keeps the local file.
	StorageBoth StorageMode = "both"
)

// RotationMode determines when a recorder closes the current file.
type RotationMode string

const (
	// RotationHourly rotates on the wall-clock hour.
	RotationHourly RotationMode = "hourly"
	// RotationOnDemand records a single file until stopped or the
	// maximum duration is reached.
	RotationOnDemand RotationMode = "ondemand"
)

// DefaultRetentionDays is how long local recordings are kept when the
// recorder does not specify a retention period.
const DefaultRetentionDays = 90

// Recorder represents a recording destination configuration.
type Recorder struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Enabled      bool         `json:"enabled"`
	Format       SampleFormat `json:"format"`        // WAV payload format (float32 or int16)
	RotationMode RotationMode `json:"rotation_mode"` // hourly or ondemand
	StorageMode  StorageMode  `json:"storage_mode"`  // local, s3, or both
	LocalPath    string       `json:"local_path"`    // Local directory (required for local/both)

	// S3 configuration (required for s3/both modes)
	S3Endpoint        string `json:"s3_endpoint"`
	S3Bucket          string `json:"s3_bucket"`
	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
	// S3 prefix auto-generated: recordings/{sanitized-name}/

	RetentionDays int   `json:"retention_days"` // Days to keep recordings (default 90)
	CreatedAt     int64 `json:"created_at"`     // Unix timestamp of creation
}

// IsEnabled reports whether the recorder is enabled.
func (r *Recorder) IsEnabled() bool {
	return r.Enabled
}

// UsesLocal reports whether the recorder keeps a local copy.
func (r *Recorder) UsesLocal() bool {
	return r.StorageMode == StorageLocal || r.StorageMode == StorageBoth
}

// UsesS3 reports whether the recorder uploads to S3.
func (r *Recorder) UsesS3() bool {
	return r.StorageMode == StorageS3 || r.StorageMode == StorageBoth
}

// SilenceLogEntry is one line in the silence notification log file.
type SilenceLogEntry struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
	LevelDB     float64 `json:"level_db,omitempty"`
	ThresholdDB float64 `json:"threshold_db,omitempty"`
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// IsConfigured reports whether every field required to send mail is set.
func (g *GraphConfig) IsConfigured() bool {
	return g.TenantID != "" && g.ClientID != "" && g.ClientSecret != "" &&
		g.FromAddress != "" && g.Recipients != ""
}
