package audiotap

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-audiotap/internal/activity"
	"github.com/oszuidwest/zwfm-audiotap/internal/audio"
	"github.com/oszuidwest/zwfm-audiotap/internal/config"
	"github.com/oszuidwest/zwfm-audiotap/internal/events"
	"github.com/oszuidwest/zwfm-audiotap/internal/notify"
	"github.com/oszuidwest/zwfm-audiotap/internal/recording"
	"github.com/oszuidwest/zwfm-audiotap/internal/resolver"
	"github.com/oszuidwest/zwfm-audiotap/internal/server"
	"github.com/oszuidwest/zwfm-audiotap/internal/session"
	"github.com/oszuidwest/zwfm-audiotap/internal/stream"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
	"github.com/oszuidwest/zwfm-audiotap/internal/version"
)

// Engine wires the capture provider, target resolution, the session state
// machine, and the processing pipeline behind one entry point. It is safe
// for concurrent use.
type Engine struct {
	provider Provider
	cfg      *config.Config
	tempDir  string

	sess     *session.Session
	registry *session.Registry
	tracker  *activity.Tracker

	detector   *audio.SilenceDetector
	peakHold   *audio.PeakHolder
	notifier   *notify.SilenceNotifier
	recordings *recording.Manager
	events     *events.Logger

	silenceMu  sync.RWMutex
	silenceCfg audio.SilenceConfig

	levelsMu sync.RWMutex
	levels   server.Levels

	monitorMu  sync.Mutex
	monitorSrv *http.Server
	versions   *version.Checker
}

// Option customizes engine construction.
type Option func(*Engine)

// WithConfig uses an existing configuration instead of an in-memory default.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithEventLog persists capture lifecycle events as JSON lines at path.
func WithEventLog(path string) Option {
	return func(e *Engine) {
		logger, err := events.NewLogger(path)
		if err != nil {
			slog.Error("failed to open event log", "path", path, "error", err)
			return
		}
		e.events = logger
	}
}

// WithTempDir overrides the staging directory for S3-only recordings.
func WithTempDir(dir string) Option {
	return func(e *Engine) { e.tempDir = dir }
}

// New creates an engine around the given provider.
func New(provider Provider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, types.NewError(types.CodeInvalidArgument, "provider is required")
	}

	e := &Engine{
		provider: provider,
		tempDir:  os.TempDir(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.cfg == nil {
		e.cfg = config.New("")
		if err := e.cfg.Load(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	snap := e.cfg.Snapshot()

	e.tracker = activity.NewTracker(snap.ActivityDecayMs)
	if !snap.ActivityEnabled {
		e.tracker.Disable()
	}

	e.sess = session.New(provider)
	e.registry = session.NewRegistry()
	e.registry.Add(e.sess)

	e.detector = audio.NewSilenceDetector()
	e.peakHold = audio.NewPeakHolder()
	e.notifier = notify.NewSilenceNotifier(e.cfg)
	e.ApplySilenceConfig()

	e.recordings = recording.NewManager(e.cfg, e.tempDir,
		recording.WithManagerEventLogger(e.events),
		recording.WithManagerAbandonFunc(e.notifyUploadAbandoned))

	e.sess.Subscribe(session.Listener{
		OnAudio: e.handleAudio,
		OnStop:  e.handleStop,
		OnError: e.handleError,
	})

	return e, nil
}

// --- Enumeration ---

// ListApplications returns capturable applications. When the resolver is
// configured audio-only, system utilities are filtered out.
func (e *Engine) ListApplications() ([]ApplicationInfo, error) {
	apps, err := e.provider.ListApplications()
	if err != nil {
		return nil, types.CaptureFailed("list applications", err)
	}
	if !e.cfg.Snapshot().AudioOnly {
		return apps, nil
	}

	kept := resolver.FilterAudioOnly(appSources(apps))
	byID := make(map[int]bool, len(kept))
	for _, s := range kept {
		byID[s.ID] = true
	}
	filtered := make([]ApplicationInfo, 0, len(kept))
	for _, app := range apps {
		if byID[app.ProcessID] {
			filtered = append(filtered, app)
		}
	}
	return filtered, nil
}

// ListWindows returns capturable windows.
func (e *Engine) ListWindows() ([]WindowInfo, error) {
	windows, err := e.provider.ListWindows()
	if err != nil {
		return nil, types.CaptureFailed("list windows", err)
	}
	return windows, nil
}

// ListDisplays returns the attached displays.
func (e *Engine) ListDisplays() ([]DisplayInfo, error) {
	displays, err := e.provider.ListDisplays()
	if err != nil {
		return nil, types.CaptureFailed("list displays", err)
	}
	return displays, nil
}

// --- Target resolution ---

func appSources(apps []ApplicationInfo) []resolver.Source {
	sources := make([]resolver.Source, len(apps))
	for i, app := range apps {
		sources[i] = resolver.Source{
			ID:          app.ProcessID,
			Name:        app.ApplicationName,
			SecondaryID: app.BundleIdentifier,
		}
	}
	return sources
}

func (e *Engine) resolverOptions() resolver.Options {
	snap := e.cfg.Snapshot()
	return resolver.Options{
		FallbackToFirst: snap.FallbackToFirst,
		AudioOnly:       snap.AudioOnly,
	}
}

// ResolveAppTarget resolves identifiers against the running applications.
func (e *Engine) ResolveAppTarget(ids ...Identifier) (CaptureTarget, error) {
	apps, err := e.provider.ListApplications()
	if err != nil {
		return CaptureTarget{}, types.CaptureFailed("list applications", err)
	}

	src, err := resolver.Resolve(ids, appSources(apps), e.resolverOptions())
	if err != nil {
		return CaptureTarget{}, err
	}

	for i := range apps {
		if apps[i].ProcessID == src.ID {
			return CaptureTarget{
				Kind:      TargetApplication,
				ProcessID: apps[i].ProcessID,
				App:       &apps[i],
			}, nil
		}
	}
	return CaptureTarget{}, types.NewError(types.CodeProcessNotFound, fmt.Sprintf("process %d disappeared during resolution", src.ID)).
		WithDetails(&types.ErrorDetails{ProcessID: src.ID})
}

// ResolveWindowTarget resolves identifiers against the open windows.
// Window titles and owning application names both match.
func (e *Engine) ResolveWindowTarget(ids ...Identifier) (CaptureTarget, error) {
	windows, err := e.provider.ListWindows()
	if err != nil {
		return CaptureTarget{}, types.CaptureFailed("list windows", err)
	}

	sources := make([]resolver.Source, len(windows))
	for i, win := range windows {
		sources[i] = resolver.Source{
			ID:          int(win.WindowID),
			Name:        win.Title,
			SecondaryID: win.OwningApplicationName,
		}
	}

	opts := e.resolverOptions()
	opts.AudioOnly = false // The denylist is application-shaped
	src, err := resolver.Resolve(ids, sources, opts)
	if err != nil {
		return CaptureTarget{}, err
	}

	for i := range windows {
		if int(windows[i].WindowID) == src.ID {
			return CaptureTarget{
				Kind:      TargetWindow,
				ProcessID: windows[i].OwningProcessID,
				Window:    &windows[i],
			}, nil
		}
	}
	return CaptureTarget{}, types.TargetNotFound(identifierStrings(ids), nil)
}

// ResolveDisplayTarget resolves identifiers against the attached displays.
// With no identifiers the main display is chosen.
func (e *Engine) ResolveDisplayTarget(ids ...Identifier) (CaptureTarget, error) {
	displays, err := e.provider.ListDisplays()
	if err != nil {
		return CaptureTarget{}, types.CaptureFailed("list displays", err)
	}
	if len(displays) == 0 {
		return CaptureTarget{}, types.TargetNotFound(identifierStrings(ids), nil)
	}

	if len(ids) == 0 {
		main := &displays[0]
		for i := range displays {
			if displays[i].IsMainDisplay {
				main = &displays[i]
				break
			}
		}
		return CaptureTarget{Kind: TargetDisplay, Display: main}, nil
	}

	sources := make([]resolver.Source, len(displays))
	for i, d := range displays {
		sources[i] = resolver.Source{
			ID:   int(d.DisplayID),
			Name: fmt.Sprintf("display-%d", d.DisplayID),
		}
	}

	opts := e.resolverOptions()
	opts.AudioOnly = false
	src, err := resolver.Resolve(ids, sources, opts)
	if err != nil {
		return CaptureTarget{}, err
	}

	for i := range displays {
		if int(displays[i].DisplayID) == src.ID {
			return CaptureTarget{Kind: TargetDisplay, Display: &displays[i]}, nil
		}
	}
	return CaptureTarget{}, types.TargetNotFound(identifierStrings(ids), nil)
}

// ResolveMultiAppTarget resolves every identifier to an application. All
// identifiers must resolve; the error details name the ones that did not.
func (e *Engine) ResolveMultiAppTarget(ids ...Identifier) (CaptureTarget, error) {
	if len(ids) == 0 {
		return CaptureTarget{}, types.NewError(types.CodeInvalidArgument, "at least one application identifier is required")
	}

	apps, err := e.provider.ListApplications()
	if err != nil {
		return CaptureTarget{}, types.CaptureFailed("list applications", err)
	}
	sources := appSources(apps)

	byID := make(map[int]ApplicationInfo, len(apps))
	for _, app := range apps {
		byID[app.ProcessID] = app
	}

	opts := e.resolverOptions()
	opts.FallbackToFirst = false
	opts.NilOnMiss = true

	var resolved []ApplicationInfo
	var unresolved []string
	seen := make(map[int]bool)
	for _, id := range ids {
		src, err := resolver.Resolve([]Identifier{id}, sources, opts)
		if err != nil {
			return CaptureTarget{}, err
		}
		if src == nil {
			unresolved = append(unresolved, id.String())
			continue
		}
		if seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		resolved = append(resolved, byID[src.ID])
	}

	if len(resolved) == 0 {
		return CaptureTarget{}, types.TargetNotFound(identifierStrings(ids), sourceNames(sources))
	}
	if len(unresolved) > 0 {
		return CaptureTarget{}, types.NewError(types.CodeCaptureFailed,
			fmt.Sprintf("%d of %d applications could not be resolved", len(unresolved), len(ids))).
			WithDetails(&types.ErrorDetails{
				RequestedIdentifiers:  identifierStrings(ids),
				UnresolvedIdentifiers: unresolved,
				AvailableNames:        sourceNames(sources),
			})
	}

	return CaptureTarget{Kind: TargetMultiApp, Apps: resolved}, nil
}

func identifierStrings(ids []Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func sourceNames(sources []resolver.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Name
	}
	return out
}

// --- Capture control ---

// StartAppCapture resolves an application and starts capturing it.
func (e *Engine) StartAppCapture(ids ...Identifier) error {
	target, err := e.ResolveAppTarget(ids...)
	if err != nil {
		return e.sess.ReportError(err)
	}
	return e.startCapture(target)
}

// StartWindowCapture resolves a window and starts capturing it.
func (e *Engine) StartWindowCapture(ids ...Identifier) error {
	target, err := e.ResolveWindowTarget(ids...)
	if err != nil {
		return e.sess.ReportError(err)
	}
	return e.startCapture(target)
}

// StartDisplayCapture starts capturing a display, defaulting to the main one.
func (e *Engine) StartDisplayCapture(ids ...Identifier) error {
	target, err := e.ResolveDisplayTarget(ids...)
	if err != nil {
		return e.sess.ReportError(err)
	}
	return e.startCapture(target)
}

// StartMultiAppCapture starts a mixed capture of several applications.
func (e *Engine) StartMultiAppCapture(ids ...Identifier) error {
	target, err := e.ResolveMultiAppTarget(ids...)
	if err != nil {
		return e.sess.ReportError(err)
	}
	return e.startCapture(target)
}

// StartActiveAppCapture captures the application that produced audio most
// recently, falling back to the first capturable application when the
// tracker has no data.
func (e *Engine) StartActiveAppCapture() error {
	apps, err := e.ListApplications()
	if err != nil {
		return e.sess.ReportError(err)
	}
	if len(apps) == 0 {
		return e.sess.ReportError(types.TargetNotFound(nil, nil))
	}

	pids := make([]int, len(apps))
	byID := make(map[int]*ApplicationInfo, len(apps))
	for i := range apps {
		pids[i] = apps[i].ProcessID
		byID[apps[i].ProcessID] = &apps[i]
	}

	chosen := &apps[0]
	if ranked := e.tracker.Rank(pids); len(ranked) > 0 {
		chosen = byID[ranked[0]]
	}

	return e.startCapture(CaptureTarget{
		Kind:      TargetApplication,
		ProcessID: chosen.ProcessID,
		App:       chosen,
	})
}

// startCapture runs the session with the engine's configured defaults and
// wires recording and notification on success.
func (e *Engine) startCapture(target CaptureTarget) error {
	if err := e.sess.Start(target, e.sessionConfig()); err != nil {
		return err
	}

	snap := e.cfg.Snapshot()
	name := targetName(target)
	e.notifier.SetTargetName(name)
	e.recordings.CaptureStarted(snap.SampleRate, snap.Channels)
	e.logEvent(&events.CaptureEvent{
		Event:      events.EventStarted,
		TargetKind: string(target.Kind),
		TargetName: name,
		ProcessID:  target.ProcessID,
	})
	return nil
}

// sessionConfig builds the session configuration from the current snapshot.
func (e *Engine) sessionConfig() session.Config {
	snap := e.cfg.Snapshot()
	return session.Config{
		Capture: types.CaptureConfig{
			SampleRate:    snap.SampleRate,
			Channels:      snap.Channels,
			BufferSize:    snap.BufferSize,
			ExcludeCursor: snap.ExcludeCursor,
		},
		Pipeline: audio.PipelineConfig{
			Format:    types.SampleFormat(snap.Format),
			MinVolume: snap.MinVolume,
		},
		StartTimeout: time.Duration(snap.StartTimeoutMs) * time.Millisecond,
		QueueSize:    snap.QueueSize,
	}
}

// Stop ends the active capture, if any.
func (e *Engine) Stop() error {
	return e.sess.Stop()
}

// State returns the session state.
func (e *Engine) State() SessionState {
	return e.sess.State()
}

// IsActive reports whether a capture is running.
func (e *Engine) IsActive() bool {
	return e.sess.IsActive()
}

// Target returns the active capture target, zero when idle.
func (e *Engine) Target() CaptureTarget {
	return e.sess.Target()
}

// Subscribe registers a listener for session events and returns its
// unsubscribe function.
func (e *Engine) Subscribe(l Listener) func() {
	return e.sess.Subscribe(l)
}

// --- Streams ---

// NewStream creates a pull stream over the engine's session. The capture
// starts on the first pull or data subscription, not on creation.
func (e *Engine) NewStream(target CaptureTarget, opts StreamOptions) *Stream {
	return stream.New(e.sess, target, e.sessionConfig(), opts)
}

// NewSTTStream creates a speech-oriented stream (int16 mono by default).
func (e *Engine) NewSTTStream(target CaptureTarget, opts STTOptions) *STTStream {
	return stream.NewSTT(e.sess, target, e.sessionConfig(), opts)
}

// EncodeWAV wraps PCM data in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int, format SampleFormat) ([]byte, error) {
	return audio.EncodeWAV(pcm, sampleRate, channels, format)
}

// --- Session event handling ---

func (e *Engine) handleAudio(sample *types.EnhancedAudioSample) {
	now := time.Now()
	rmsDb := audio.DbFloored(sample.RMS)
	peakDb := audio.DbFloored(sample.Peak)
	heldDb := e.peakHold.Update(peakDb, now)

	e.levelsMu.Lock()
	e.levels = server.Levels{RMSDb: rmsDb, PeakDb: peakDb, HeldPeakDb: heldDb}
	e.levelsMu.Unlock()

	if pid := e.sess.Target().ProcessID; pid > 0 {
		e.tracker.Record(pid, sample.RMS)
	}

	e.silenceMu.RLock()
	silenceCfg := e.silenceCfg
	e.silenceMu.RUnlock()

	event := e.detector.Update(rmsDb, silenceCfg, now)
	e.notifier.HandleEvent(event)
	if event.JustEntered {
		e.logEvent(&events.CaptureEvent{
			Event:   events.EventSilence,
			LevelDB: event.CurrentDB,
		})
	}
	if event.JustRecovered {
		e.logEvent(&events.CaptureEvent{
			Event:      events.EventRecovery,
			LevelDB:    event.CurrentDB,
			DurationMs: event.TotalDurationMs,
		})
	}

	e.recordings.WriteAudio(sample)
}

func (e *Engine) handleStop(target types.CaptureTarget) {
	e.recordings.CaptureStopped()
	e.notifier.Reset()
	e.peakHold.Reset()

	e.levelsMu.Lock()
	e.levels = server.Levels{}
	e.levelsMu.Unlock()

	e.logEvent(&events.CaptureEvent{
		Event:      events.EventStopped,
		TargetKind: string(target.Kind),
		TargetName: targetName(target),
	})
}

func (e *Engine) handleError(err error) {
	e.logEvent(&events.CaptureEvent{
		Event: events.EventError,
		Error: err.Error(),
	})
}

// logEvent writes to the event log when one is configured.
func (e *Engine) logEvent(event *events.CaptureEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.Log(event); err != nil {
		slog.Warn("failed to log capture event", "error", err)
	}
}

// targetName renders a human-readable name for a capture target.
func targetName(target CaptureTarget) string {
	switch target.Kind {
	case TargetApplication:
		if target.App != nil {
			return target.App.ApplicationName
		}
	case TargetWindow:
		if target.Window != nil {
			if target.Window.Title != "" {
				return target.Window.Title
			}
			return target.Window.OwningApplicationName
		}
	case TargetDisplay:
		if target.Display != nil {
			return fmt.Sprintf("display-%d", target.Display.DisplayID)
		}
	case TargetMultiApp:
		return fmt.Sprintf("%d applications", len(target.Apps))
	}
	return ""
}

// notifyUploadAbandoned emails when a recording upload exceeds its retry window.
func (e *Engine) notifyUploadAbandoned(recorderName, filename, s3Key string, retryCount int, lastError string) {
	snap := e.cfg.Snapshot()
	if !snap.HasGraph() {
		return
	}
	err := notify.SendUploadAbandonedEmail(notify.BuildGraphConfig(snap), notify.UploadAbandonedParams{
		RecorderName: recorderName,
		Filename:     filename,
		S3Key:        s3Key,
		RetryCount:   retryCount,
		LastError:    lastError,
	})
	if err != nil {
		slog.Error("failed to send upload abandoned email", "error", err)
	}
}

// --- Monitor surface (implements server.Engine) ---

// CaptureStatus describes the session for monitor clients.
func (e *Engine) CaptureStatus() server.CaptureStatus {
	target := e.sess.Target()
	return server.CaptureStatus{
		State:          string(e.sess.State()),
		TargetKind:     string(target.Kind),
		TargetName:     targetName(target),
		UptimeSeconds:  e.sess.Uptime().Seconds(),
		DroppedSamples: e.sess.DroppedSamples(),
	}
}

// AudioLevels returns the most recent level measurement.
func (e *Engine) AudioLevels() server.Levels {
	e.levelsMu.RLock()
	defer e.levelsMu.RUnlock()
	return e.levels
}

// RecorderStatuses returns the status of every recorder.
func (e *Engine) RecorderStatuses() map[string]recording.Status {
	return e.recordings.Statuses()
}

// AddRecorder validates, persists, and instantiates a recorder.
func (e *Engine) AddRecorder(recorder *types.Recorder) error {
	return e.recordings.AddRecorder(recorder)
}

// UpdateRecorder persists changes to a recorder and applies them.
func (e *Engine) UpdateRecorder(recorder *types.Recorder) error {
	return e.recordings.UpdateRecorder(recorder)
}

// RemoveRecorder stops and deletes a recorder.
func (e *Engine) RemoveRecorder(id string) error {
	return e.recordings.RemoveRecorder(id)
}

// StartRecorder starts an on-demand recorder.
func (e *Engine) StartRecorder(id string) error {
	return e.recordings.StartRecorder(id)
}

// StopRecorder stops an on-demand recorder.
func (e *Engine) StopRecorder(id string) error {
	return e.recordings.StopRecorder(id)
}

// ApplySilenceConfig reloads the silence detection thresholds from config.
func (e *Engine) ApplySilenceConfig() {
	snap := e.cfg.Snapshot()
	e.silenceMu.Lock()
	e.silenceCfg = audio.SilenceConfig{
		Threshold:  snap.SilenceThreshold,
		DurationMs: snap.SilenceDurationMs,
		RecoveryMs: snap.SilenceRecoveryMs,
	}
	e.silenceMu.Unlock()
}

// InvalidateGraphClient discards the cached Graph client after credential changes.
func (e *Engine) InvalidateGraphClient() {
	e.notifier.InvalidateGraphClient()
}

// Config exposes the engine configuration for hosts that manage settings.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// StartMonitor starts the local WebSocket monitor server on the configured
// port and begins the background release check.
func (e *Engine) StartMonitor() *http.Server {
	e.monitorMu.Lock()
	defer e.monitorMu.Unlock()

	if e.monitorSrv != nil {
		return e.monitorSrv
	}
	e.versions = version.NewChecker()
	e.monitorSrv = server.NewMonitor(e.cfg, e).Start()
	return e.monitorSrv
}

// VersionInfo returns build and release information. The release check only
// runs while the monitor is up.
func (e *Engine) VersionInfo() version.Info {
	e.monitorMu.Lock()
	vc := e.versions
	e.monitorMu.Unlock()

	if vc == nil {
		return version.Info{Current: version.Version, Commit: version.Commit}
	}
	return vc.Info()
}

// Shutdown stops the capture, recorders, monitor, and background workers.
func (e *Engine) Shutdown() error {
	e.monitorMu.Lock()
	if e.versions != nil {
		e.versions.Stop()
		e.versions = nil
	}
	srv := e.monitorSrv
	e.monitorSrv = nil
	e.monitorMu.Unlock()

	if srv != nil {
		if err := srv.Close(); err != nil {
			slog.Warn("monitor server close failed", "error", err)
		}
	}

	err := e.registry.Shutdown()
	e.recordings.Shutdown()

	if e.events != nil {
		if cerr := e.events.Close(); cerr != nil {
			slog.Warn("event log close failed", "error", cerr)
		}
	}
	return err
}
