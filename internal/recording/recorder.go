package recording

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/events"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// WavRecorder writes enhanced samples to a WAV file with optional S3 upload.
// It supports both hourly rotation and on-demand modes.
type WavRecorder struct {
	mu sync.RWMutex

	id                 string
	config             types.Recorder
	maxDurationMinutes int           // For on-demand mode (from global config)
	rotationOffset     time.Duration // Staggered offset for hourly rotation

	tempDir string
	state   State
	errMsg  string

	// Stream parameters fixed at Start
	sampleRate int
	channels   int
	format     types.SampleFormat

	// Current file. The WAV header is written with a provisional size and
	// patched when the file is finalized.
	file         *os.File
	currentFile  string
	startTime    time.Time
	bytesWritten int64

	// S3 client, created lazily and recreated when the config changes
	s3Client *s3.Client

	// Upload queue
	uploadQueue  chan uploadRequest
	retryQueue   []pendingUpload
	uploadWg     sync.WaitGroup
	uploadStopCh chan struct{}

	// Rotation timer (hourly mode)
	rotationTimer *time.Timer

	// Max duration timer (on-demand mode)
	durationTimer *time.Timer

	statusCallback func()
	eventLogger    *events.Logger

	// Called when an upload is abandoned after exhausting retries
	abandonFunc AbandonFunc
}

// AbandonFunc is invoked when an upload exceeds its retry window.
type AbandonFunc func(recorderName, filename, s3Key string, retryCount int, lastError string)

// NewWavRecorder creates a new recorder with the given configuration.
// maxDurationMinutes is the global max duration for on-demand recorders.
// rotationOffset staggers hourly rotation to spread I/O across recorders.
func NewWavRecorder(cfg *types.Recorder, tempDir string, maxDurationMinutes int, rotationOffset time.Duration, opts ...RecorderOption) (*WavRecorder, error) {
	r := &WavRecorder{
		id:                 cfg.ID,
		config:             *cfg,
		maxDurationMinutes: maxDurationMinutes,
		rotationOffset:     rotationOffset,
		tempDir:            tempDir,
		state:              StateIdle,
		format:             cfg.Format,
		uploadQueue:        make(chan uploadRequest, 100),
		uploadStopCh:       make(chan struct{}),
	}
	if r.format == "" {
		r.format = types.FormatInt16
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.isS3Configured() {
		client, err := createS3Client(RecorderToS3Config(cfg))
		if err != nil {
			return nil, fmt.Errorf("create S3 client: %w", err)
		}
		r.s3Client = client
	}

	return r, nil
}

// RecorderOption customizes a WavRecorder.
type RecorderOption func(*WavRecorder)

// WithStatusCallback sets a callback invoked after state changes.
func WithStatusCallback(fn func()) RecorderOption {
	return func(r *WavRecorder) { r.statusCallback = fn }
}

// WithEventLogger attaches an upload event logger.
func WithEventLogger(l *events.Logger) RecorderOption {
	return func(r *WavRecorder) { r.eventLogger = l }
}

// WithAbandonFunc sets the callback invoked when an upload is abandoned.
func WithAbandonFunc(fn AbandonFunc) RecorderOption {
	return func(r *WavRecorder) { r.abandonFunc = fn }
}

// ID returns the recorder's unique identifier.
func (r *WavRecorder) ID() string {
	return r.id
}

// Config returns a copy of the recorder's configuration.
func (r *WavRecorder) Config() types.Recorder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Start begins recording at the given stream parameters.
func (r *WavRecorder) Start(sampleRate, channels int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return nil // Already recording
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid stream parameters %d Hz / %d ch", sampleRate, channels)
	}

	r.sampleRate = sampleRate
	r.channels = channels

	if err := os.MkdirAll(r.outputDir(), 0o755); err != nil {
		return fmt.Errorf("create recording directory: %w", err)
	}

	if err := r.openFileLocked(); err != nil {
		return err
	}

	r.uploadWg.Add(1)
	go r.uploadWorker()

	// Schedule based on rotation mode
	if r.config.RotationMode == types.RotationHourly {
		r.scheduleRotationLocked()
	} else if r.maxDurationMinutes > 0 {
		r.scheduleDurationLimitLocked()
	}

	r.state = StateRecording
	r.errMsg = ""

	slog.Info("recorder started", "id", r.id, "name", r.config.Name, "mode", r.config.RotationMode,
		"sample_rate", sampleRate, "channels", channels)
	return nil
}

// Stop gracefully stops recording, finalizing and queueing the current file.
func (r *WavRecorder) Stop() error {
	r.mu.Lock()

	if r.state == StateIdle {
		r.mu.Unlock()
		return nil
	}

	r.state = StateFinalizing

	if r.rotationTimer != nil {
		r.rotationTimer.Stop()
		r.rotationTimer = nil
	}
	if r.durationTimer != nil {
		r.durationTimer.Stop()
		r.durationTimer = nil
	}

	r.mu.Unlock()

	r.finalizeAndQueue()

	// Stop upload worker; it drains the queue before exiting
	close(r.uploadStopCh)
	r.uploadWg.Wait()

	r.mu.Lock()
	r.state = StateIdle
	r.uploadStopCh = make(chan struct{}) // Reset for next start
	r.mu.Unlock()

	slog.Info("recorder stopped", "id", r.id, "name", r.config.Name)
	return nil
}

// WriteSample appends one enhanced sample to the current file, converting
// the payload to the recorder's format when needed.
func (r *WavRecorder) WriteSample(sample *types.EnhancedAudioSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording || r.file == nil {
		return nil
	}

	data, err := r.convertPayload(sample)
	if err != nil {
		r.errMsg = err.Error()
		return err
	}

	n, err := r.file.Write(data)
	if err != nil {
		r.errMsg = err.Error()
		return err
	}
	r.bytesWritten += int64(n)
	return nil
}

// convertPayload converts the sample payload to the recorder's format.
func (r *WavRecorder) convertPayload(sample *types.EnhancedAudioSample) ([]byte, error) {
	if sample.Format == r.format {
		return sample.Data, nil
	}
	if sample.Format == types.FormatFloat32 && r.format == types.FormatInt16 {
		floats, err := audio.Float32FromBytes(sample.Data)
		if err != nil {
			return nil, err
		}
		return audio.BytesFromInt16(audio.ToInt16(floats)), nil
	}
	return nil, fmt.Errorf("cannot convert %s samples to %s", sample.Format, r.format)
}

// Status returns the current recorder status.
func (r *WavRecorder) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := Status{
		State:        string(r.state),
		Error:        r.errMsg,
		BytesWritten: r.bytesWritten,
	}

	if r.state == StateRecording && !r.startTime.IsZero() {
		status.DurationSeconds = time.Since(r.startTime).Seconds()
		status.CurrentFile = filepath.Base(r.currentFile)
	}

	return status
}

// IsRecording returns true if currently recording.
func (r *WavRecorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == StateRecording
}

// IsCurrentFile reports whether path is the file being written right now.
func (r *WavRecorder) IsCurrentFile(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentFile == path
}

// S3Client returns the recorder's S3 client, or nil if S3 is not configured.
func (r *WavRecorder) S3Client() *s3.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s3Client
}

// UpdateConfig updates the recorder configuration.
// If S3 config changed, the client is recreated.
func (r *WavRecorder) UpdateConfig(cfg *types.Recorder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldS3 := r.config.S3Bucket + r.config.S3Endpoint + r.config.S3AccessKeyID
	newS3 := cfg.S3Bucket + cfg.S3Endpoint + cfg.S3AccessKeyID

	r.config = *cfg

	if oldS3 != newS3 || cfg.S3SecretAccessKey != "" {
		if r.isS3Configured() {
			client, err := createS3Client(RecorderToS3Config(cfg))
			if err != nil {
				return fmt.Errorf("recreate S3 client: %w", err)
			}
			r.s3Client = client
		} else {
			r.s3Client = nil
		}
	}

	return nil
}

// outputDir returns the directory the current files are written to. Local
// and both modes write into the configured path; S3-only mode stages files
// in the temp directory until they are uploaded.
func (r *WavRecorder) outputDir() string {
	if r.config.UsesLocal() {
		return r.config.LocalPath
	}
	return filepath.Join(r.tempDir, "recorders", r.id)
}

// openFileLocked opens a new WAV file with a provisional header. Must be
// called with lock held.
func (r *WavRecorder) openFileLocked() error {
	r.startTime = time.Now()

	// Hourly files are named for the hour they cover
	stamp := r.startTime
	if r.config.RotationMode == types.RotationHourly {
		stamp = truncateToHour(stamp)
	}
	r.currentFile = filepath.Join(r.outputDir(), r.generateFilename(stamp))

	header, err := audio.EncodeWAVHeader(r.sampleRate, r.channels, r.format, 0)
	if err != nil {
		return fmt.Errorf("build WAV header: %w", err)
	}

	file, err := os.OpenFile(r.currentFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	if _, err := file.Write(header); err != nil {
		_ = file.Close()
		return fmt.Errorf("write WAV header: %w", err)
	}

	r.file = file
	r.bytesWritten = 0

	slog.Info("recording file opened", "id", r.id, "file", filepath.Base(r.currentFile), "format", r.format)
	return nil
}

// finalizeAndQueue patches the WAV header with the real payload size,
// closes the file, and queues it for upload.
func (r *WavRecorder) finalizeAndQueue() {
	r.mu.Lock()
	file := r.file
	r.file = nil
	currentFile := r.currentFile
	dataSize := r.bytesWritten
	sampleRate := r.sampleRate
	channels := r.channels
	format := r.format
	r.mu.Unlock()

	if file == nil {
		return
	}

	header, err := audio.EncodeWAVHeader(sampleRate, channels, format, int(dataSize))
	if err == nil {
		if _, err := file.WriteAt(header, 0); err != nil {
			slog.Warn("failed to patch WAV header", "id", r.id, "error", err)
		}
	}
	if err := file.Close(); err != nil {
		slog.Warn("failed to close recording file", "id", r.id, "error", err)
	}

	if currentFile != "" {
		r.queueForUpload(currentFile)
	}

	if r.statusCallback != nil {
		r.statusCallback()
	}
}

// scheduleRotationLocked schedules the next hourly rotation. Must be called with lock held.
// The rotation is staggered by rotationOffset to spread I/O across multiple recorders.
func (r *WavRecorder) scheduleRotationLocked() {
	duration := timeUntilNextHour(time.Now()) + r.rotationOffset
	r.rotationTimer = time.AfterFunc(duration, r.rotateFile)
}

// rotateFile handles hourly file rotation.
func (r *WavRecorder) rotateFile() {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	slog.Info("recorder rotating file at hour boundary", "id", r.id)
	r.mu.Unlock()

	r.finalizeAndQueue()

	// Hour boundaries double as retry points for failed uploads
	r.processRetryQueue()

	r.mu.Lock()
	if err := r.openFileLocked(); err != nil {
		slog.Error("failed to start new recording file", "id", r.id, "error", err)
		r.errMsg = err.Error()
	}
	r.scheduleRotationLocked()
	r.mu.Unlock()

	if r.statusCallback != nil {
		r.statusCallback()
	}
}

// scheduleDurationLimitLocked schedules auto-stop for on-demand mode. Must be called with lock held.
func (r *WavRecorder) scheduleDurationLimitLocked() {
	duration := time.Duration(r.maxDurationMinutes) * time.Minute
	r.durationTimer = time.AfterFunc(duration, func() {
		slog.Info("recorder max duration reached", "id", r.id, "duration", duration)
		if err := r.Stop(); err != nil {
			slog.Error("failed to stop recorder after max duration", "id", r.id, "error", err)
		}
	})
}

// generateFilename creates a filename for the given timestamp.
func (r *WavRecorder) generateFilename(t time.Time) string {
	safeName := sanitizeFilename(r.config.Name)
	return fmt.Sprintf("%s-%s.wav", safeName, t.Format("2006-01-02-15-04"))
}

// generateS3Key creates the S3 object key.
func (r *WavRecorder) generateS3Key(filename string) string {
	return fmt.Sprintf("recordings/%s/%s", sanitizeFilename(r.config.Name), filename)
}

// isS3Configured returns true if S3 is configured for this recorder.
func (r *WavRecorder) isS3Configured() bool {
	return r.config.S3Bucket != "" && r.config.S3AccessKeyID != "" && r.config.S3SecretAccessKey != ""
}

// TestS3 tests the S3 connection for this recorder.
func (r *WavRecorder) TestS3() error {
	r.mu.RLock()
	cfg := r.config
	r.mu.RUnlock()
	return TestS3Connection(RecorderToS3Config(&cfg))
}

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else if c == ' ' {
			result = append(result, '-')
		}
	}
	if len(result) == 0 {
		return "recording"
	}
	return string(result)
}
