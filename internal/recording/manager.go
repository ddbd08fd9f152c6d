package recording

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-audiotap/internal/config"
	"github.com/oszuidwest/zwfm-audiotap/internal/events"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// rotationStagger spaces hourly rotations across recorders so they do not
// all finalize and upload at the same instant.
const rotationStagger = 2 * time.Second

// Manager owns the set of configured recorders and fans captured audio
// out to the ones that are recording.
type Manager struct {
	mu        sync.RWMutex
	cfg       *config.Config
	tempDir   string
	recorders map[string]*WavRecorder

	// Stream parameters of the active capture, zero when idle
	sampleRate int
	channels   int

	eventLogger *events.Logger
	abandonFunc AbandonFunc

	cleanupStopCh chan struct{}
	cleanupWg     sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerEventLogger attaches an event logger passed on to recorders.
func WithManagerEventLogger(l *events.Logger) ManagerOption {
	return func(m *Manager) { m.eventLogger = l }
}

// WithManagerAbandonFunc sets the callback for abandoned uploads.
func WithManagerAbandonFunc(fn AbandonFunc) ManagerOption {
	return func(m *Manager) { m.abandonFunc = fn }
}

// NewManager creates a manager from the configured recorders and starts
// the daily retention cleanup scheduler.
func NewManager(cfg *config.Config, tempDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:           cfg,
		tempDir:       tempDir,
		recorders:     make(map[string]*WavRecorder),
		cleanupStopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.syncRecorders()
	m.startCleanupScheduler()
	return m
}

// syncRecorders reconciles the recorder instances with the configuration.
func (m *Manager) syncRecorders() {
	snap := m.cfg.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(snap.Recorders))
	for i := range snap.Recorders {
		rc := snap.Recorders[i]
		seen[rc.ID] = true

		if existing, ok := m.recorders[rc.ID]; ok {
			if err := existing.UpdateConfig(&rc); err != nil {
				slog.Error("failed to update recorder config", "id", rc.ID, "error", err)
			}
			continue
		}

		offset := time.Duration(len(m.recorders)) * rotationStagger
		rec, err := NewWavRecorder(&rc, m.tempDir, snap.RecordingMaxDurationMinutes, offset,
			WithEventLogger(m.eventLogger),
			WithAbandonFunc(m.abandonFunc))
		if err != nil {
			slog.Error("failed to create recorder", "id", rc.ID, "name", rc.Name, "error", err)
			continue
		}
		m.recorders[rc.ID] = rec
	}

	for id, rec := range m.recorders {
		if !seen[id] {
			if err := rec.Stop(); err != nil {
				slog.Warn("failed to stop removed recorder", "id", id, "error", err)
			}
			delete(m.recorders, id)
		}
	}
}

// CaptureStarted tells the manager a capture session is delivering audio.
// Enabled hourly recorders start immediately; on-demand recorders become
// startable.
func (m *Manager) CaptureStarted(sampleRate, channels int) {
	m.mu.Lock()
	m.sampleRate = sampleRate
	m.channels = channels
	recs := m.snapshotRecordersLocked()
	m.mu.Unlock()

	for _, rec := range recs {
		cfg := rec.Config()
		if !cfg.IsEnabled() || cfg.RotationMode != types.RotationHourly {
			continue
		}
		if err := rec.Start(sampleRate, channels); err != nil {
			slog.Error("failed to start hourly recorder", "id", rec.ID(), "error", err)
		}
	}
}

// CaptureStopped stops all recording recorders and clears the stream parameters.
func (m *Manager) CaptureStopped() {
	m.mu.Lock()
	m.sampleRate = 0
	m.channels = 0
	recs := m.snapshotRecordersLocked()
	m.mu.Unlock()

	for _, rec := range recs {
		if err := rec.Stop(); err != nil {
			slog.Warn("failed to stop recorder", "id", rec.ID(), "error", err)
		}
	}
}

// WriteAudio fans a captured sample out to all recording recorders.
func (m *Manager) WriteAudio(sample *types.EnhancedAudioSample) {
	m.mu.RLock()
	recs := m.snapshotRecordersLocked()
	m.mu.RUnlock()

	for _, rec := range recs {
		if !rec.IsRecording() {
			continue
		}
		if err := rec.WriteSample(sample); err != nil {
			slog.Warn("recorder write failed", "id", rec.ID(), "error", err)
		}
	}
}

// StartRecorder starts an on-demand recorder. Hourly recorders follow the
// capture session and cannot be started directly.
func (m *Manager) StartRecorder(id string) error {
	rec, err := m.recorder(id)
	if err != nil {
		return err
	}

	cfg := rec.Config()
	if cfg.RotationMode == types.RotationHourly {
		return ErrHourlyRecorderNotControllable
	}
	if !cfg.IsEnabled() {
		return fmt.Errorf("recorder %s is disabled", id)
	}
	if rec.IsRecording() {
		return ErrAlreadyRecording
	}

	m.mu.RLock()
	sampleRate, channels := m.sampleRate, m.channels
	m.mu.RUnlock()
	if sampleRate == 0 {
		return fmt.Errorf("no active capture to record")
	}

	return rec.Start(sampleRate, channels)
}

// StopRecorder stops an on-demand recorder.
func (m *Manager) StopRecorder(id string) error {
	rec, err := m.recorder(id)
	if err != nil {
		return err
	}

	if rec.Config().RotationMode == types.RotationHourly {
		return ErrHourlyRecorderNotControllable
	}
	if !rec.IsRecording() {
		return ErrNotRecording
	}

	return rec.Stop()
}

// Statuses returns the status of every recorder keyed by ID.
func (m *Manager) Statuses() map[string]Status {
	m.mu.RLock()
	recs := m.snapshotRecordersLocked()
	m.mu.RUnlock()

	statuses := make(map[string]Status, len(recs))
	for _, rec := range recs {
		statuses[rec.ID()] = rec.Status()
	}
	return statuses
}

// AddRecorder validates and persists a new recorder, then instantiates it.
func (m *Manager) AddRecorder(recorder *types.Recorder) error {
	if err := m.cfg.AddRecorder(recorder); err != nil {
		return err
	}
	m.syncRecorders()

	// New hourly recorders join an active capture immediately
	m.mu.RLock()
	sampleRate, channels := m.sampleRate, m.channels
	rec := m.recorders[recorder.ID]
	m.mu.RUnlock()

	if rec != nil && sampleRate > 0 && recorder.Enabled && recorder.RotationMode == types.RotationHourly {
		if err := rec.Start(sampleRate, channels); err != nil {
			slog.Error("failed to start new hourly recorder", "id", recorder.ID, "error", err)
		}
	}
	return nil
}

// UpdateRecorder persists changes to a recorder and applies them.
func (m *Manager) UpdateRecorder(recorder *types.Recorder) error {
	if err := m.cfg.UpdateRecorder(recorder); err != nil {
		return err
	}
	m.syncRecorders()

	// Disabling a recorder stops it
	if !recorder.Enabled {
		m.mu.RLock()
		rec := m.recorders[recorder.ID]
		m.mu.RUnlock()
		if rec != nil && rec.IsRecording() {
			if err := rec.Stop(); err != nil {
				slog.Warn("failed to stop disabled recorder", "id", recorder.ID, "error", err)
			}
		}
	}
	return nil
}

// RemoveRecorder stops and removes a recorder, deleting its configuration.
func (m *Manager) RemoveRecorder(id string) error {
	if err := m.cfg.RemoveRecorder(id); err != nil {
		return err
	}
	m.syncRecorders()
	return nil
}

// TestRecorderS3 verifies the S3 connection of a recorder.
func (m *Manager) TestRecorderS3(id string) error {
	rec, err := m.recorder(id)
	if err != nil {
		return err
	}
	return rec.TestS3()
}

// Shutdown stops all recorders and the cleanup scheduler.
func (m *Manager) Shutdown() {
	close(m.cleanupStopCh)
	m.cleanupWg.Wait()
	m.CaptureStopped()
}

// recorder looks up a recorder by ID.
func (m *Manager) recorder(id string) (*WavRecorder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recorders[id]
	if !ok {
		return nil, fmt.Errorf("recorder not found: %s", id)
	}
	return rec, nil
}

// snapshotRecordersLocked copies the recorder set. Must be called with at
// least a read lock held.
func (m *Manager) snapshotRecordersLocked() []*WavRecorder {
	recs := make([]*WavRecorder, 0, len(m.recorders))
	for _, rec := range m.recorders {
		recs = append(recs, rec)
	}
	return recs
}
