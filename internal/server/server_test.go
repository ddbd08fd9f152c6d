package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/config"
	"github.com/oszuidwest/zwfm-audiotap/internal/recording"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

type fakeEngine struct {
	started []string
	stopped []string
	failErr error
}

func (f *fakeEngine) CaptureStatus() CaptureStatus {
	return CaptureStatus{State: "active", TargetKind: "application", TargetName: "player"}
}

func (f *fakeEngine) AudioLevels() Levels {
	return Levels{RMSDb: -18.5, PeakDb: -6.2}
}

func (f *fakeEngine) RecorderStatuses() map[string]recording.Status {
	return map[string]recording.Status{}
}

func (f *fakeEngine) AddRecorder(*types.Recorder) error    { return f.failErr }
func (f *fakeEngine) UpdateRecorder(*types.Recorder) error { return f.failErr }
func (f *fakeEngine) RemoveRecorder(string) error          { return f.failErr }

func (f *fakeEngine) StartRecorder(id string) error {
	f.started = append(f.started, id)
	return f.failErr
}

func (f *fakeEngine) StopRecorder(id string) error {
	f.stopped = append(f.stopped, id)
	return f.failErr
}

func (f *fakeEngine) ApplySilenceConfig()    {}
func (f *fakeEngine) InvalidateGraphClient() {}

func newTestMonitor(t *testing.T, apiKey string) (*Monitor, *fakeEngine) {
	t.Helper()
	cfg := config.New("")
	if apiKey != "" {
		require.NoError(t, cfg.SetRecordingAPIKey(apiKey))
	}
	engine := &fakeEngine{}
	return NewMonitor(cfg, engine), engine
}

func originRequest(origin, host string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Host = host
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCheckOriginSameOrigin(t *testing.T) {
	assert.True(t, checkOrigin(originRequest("", "example.com"), nil), "missing Origin header")
	assert.True(t, checkOrigin(originRequest("http://example.com:8080", "example.com:8080"), nil))
}

func TestCheckOriginLocalhost(t *testing.T) {
	assert.True(t, checkOrigin(originRequest("http://localhost:3000", "other.example"), nil))
	assert.True(t, checkOrigin(originRequest("http://127.0.0.1:8080", "other.example"), nil))
	assert.True(t, checkOrigin(originRequest("http://[::1]:8080", "other.example"), nil))
}

func TestCheckOriginPrivateNetwork(t *testing.T) {
	assert.True(t, checkOrigin(originRequest("http://192.168.1.10", "other.example"), nil))
	assert.True(t, checkOrigin(originRequest("http://10.0.0.5:8080", "other.example"), nil))
}

func TestCheckOriginRejectsPublic(t *testing.T) {
	assert.False(t, checkOrigin(originRequest("https://evil.example", "studio.example"), nil))
	assert.False(t, checkOrigin(originRequest("http://8.8.8.8", "studio.example"), nil))
	assert.False(t, checkOrigin(originRequest("::not a url::", "studio.example"), nil))
}

func TestCheckOriginAllowsConfiguredOrigin(t *testing.T) {
	allowed := []string{"https://dashboard.example.com"}
	assert.True(t, checkOrigin(originRequest("https://dashboard.example.com", "studio.example"), allowed))
	assert.False(t, checkOrigin(originRequest("http://dashboard.example.com", "studio.example"), allowed), "scheme must match")
	assert.False(t, checkOrigin(originRequest("https://other.example.com", "studio.example"), allowed))
}

func TestRecordingAPIRequiresKey(t *testing.T) {
	monitor, engine := newTestMonitor(t, "secret-key")
	srv := httptest.NewServer(monitor.Routes())
	defer srv.Close()

	// No key
	resp, err := http.Post(srv.URL+"/api/recordings/start?recorder_id=recorder-1", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/recordings/start?recorder_id=recorder-1", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, engine.started)
}

func TestRecordingAPIUnavailableWithoutConfiguredKey(t *testing.T) {
	monitor, _ := newTestMonitor(t, "")
	srv := httptest.NewServer(monitor.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/recordings/start?recorder_id=recorder-1", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRecordingAPIStartStop(t *testing.T) {
	monitor, engine := newTestMonitor(t, "secret-key")
	srv := httptest.NewServer(monitor.Routes())
	defer srv.Close()

	do := func(path string) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		req.Header.Set("X-API-Key", "secret-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := do("/api/recordings/start?recorder_id=recorder-abc")
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "recording_started", body["status"])
	assert.Equal(t, []string{"recorder-abc"}, engine.started)

	resp = do("/api/recordings/stop?recorder_id=recorder-abc")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"recorder-abc"}, engine.stopped)

	// Missing recorder_id
	resp = do("/api/recordings/start")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordingAPIRejectsGet(t *testing.T) {
	monitor, _ := newTestMonitor(t, "secret-key")
	srv := httptest.NewServer(monitor.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/recordings/start?recorder_id=x", nil)
	req.Header.Set("X-API-Key", "secret-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCommandDispatchStartRecorder(t *testing.T) {
	cfg := config.New("")
	engine := &fakeEngine{}
	h := NewCommandHandler(cfg, engine)

	send := make(chan any, 4)
	h.Handle(WSCommand{Type: "recorders/start", ID: "recorder-1"}, send, func() {})

	assert.Equal(t, []string{"recorder-1"}, engine.started)
	require.Len(t, send, 1)
}

func TestCommandValidationFailure(t *testing.T) {
	cfg := config.New("")
	h := NewCommandHandler(cfg, &fakeEngine{})

	send := make(chan any, 4)
	// rotation_mode is required
	h.Handle(WSCommand{Type: "recorders/add", Data: json.RawMessage(`{"name":"x","storage_mode":"local"}`)}, send, func() {})

	require.Len(t, send, 1)
	msg := (<-send).(map[string]any)
	assert.Equal(t, false, msg["success"])
}

func TestSilenceUpdatePersists(t *testing.T) {
	cfg := config.New("")
	h := NewCommandHandler(cfg, &fakeEngine{})

	send := make(chan any, 4)
	threshold := `{"threshold_db":-35,"duration_ms":10000}`
	h.Handle(WSCommand{Type: "silence/update", Data: json.RawMessage(threshold)}, send, func() {})

	snap := cfg.Snapshot()
	assert.Equal(t, -35.0, snap.SilenceThreshold)
	assert.Equal(t, int64(10000), snap.SilenceDurationMs)
}

func TestBuildStatusRedactsSecrets(t *testing.T) {
	cfg := config.New("")
	require.NoError(t, cfg.AddRecorder(&types.Recorder{
		Name:              "Archive",
		RotationMode:      types.RotationHourly,
		StorageMode:       types.StorageS3,
		S3Bucket:          "bucket",
		S3AccessKeyID:     "key",
		S3SecretAccessKey: "super-secret",
	}))

	monitor := NewMonitor(cfg, &fakeEngine{})
	status := monitor.buildStatus()

	require.Len(t, status.Recorders, 1)
	assert.Empty(t, status.Recorders[0].S3SecretAccessKey)
	assert.Equal(t, "active", status.Capture.State)
}
