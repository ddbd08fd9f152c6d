package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-audiotap/internal/config"
	"github.com/oszuidwest/zwfm-audiotap/internal/recording"
	"github.com/oszuidwest/zwfm-audiotap/internal/types"

	"github.com/gorilla/websocket"
)

const (
	levelsInterval = 100 * time.Millisecond  // 10 fps for VU meters
	statusInterval = 3000 * time.Millisecond // Status updates every 3s
)

// Monitor is a local HTTP server exposing a WebSocket feed of capture
// status and live audio levels, plus an API-key protected recording API.
type Monitor struct {
	cfg      *config.Config
	engine   Engine
	commands *CommandHandler
	upgrader websocket.Upgrader
}

// NewMonitor creates a monitor server for the given engine.
func NewMonitor(cfg *config.Config, engine Engine) *Monitor {
	return &Monitor{
		cfg:      cfg,
		engine:   engine,
		commands: NewCommandHandler(cfg, engine),
		upgrader: newUpgrader(func() []string {
			return cfg.Snapshot().MonitorAllowedOrigins
		}),
	}
}

// Routes returns an [http.Handler] configured with all monitor routes.
func (m *Monitor) Routes() http.Handler {
	mux := http.NewServeMux()

	// Recording API routes (API key auth)
	mux.HandleFunc("/api/recordings/start", m.apiKeyAuth(m.handleStartRecording))
	mux.HandleFunc("/api/recordings/stop", m.apiKeyAuth(m.handleStopRecording))

	mux.HandleFunc("/ws", m.handleWebSocket)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the monitor server.
// Returns an *http.Server that can be used for graceful shutdown.
func (m *Monitor) Start() *http.Server {
	addr := fmt.Sprintf(":%d", m.cfg.Snapshot().MonitorPort)
	slog.Info("starting monitor server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: m.Routes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("monitor server error", "error", err)
		}
	}()

	return srv
}

// --- WebSocket feed ---

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go m.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go m.runWebSocketReader(conn, send, done, statusUpdate)

	m.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (m *Monitor) runWebSocketWriter(conn WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (m *Monitor) runWebSocketReader(conn WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		m.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop handles periodic status and level updates.
func (m *Monitor) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(levelsInterval)
	statusTicker := time.NewTicker(statusInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(m.buildStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(m.buildStatus()) {
				close(send)
				return
			}
		case <-levelsTicker.C:
			if !trySend(levelsMessage{Type: "levels", Levels: m.engine.AudioLevels()}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(m.buildStatus()) {
				close(send)
				return
			}
		}
	}
}

// levelsMessage is the periodic audio level push.
type levelsMessage struct {
	Type   string `json:"type"`
	Levels Levels `json:"levels"`
}

// statusMessage is the periodic status push.
type statusMessage struct {
	Type              string                      `json:"type"`
	Capture           CaptureStatus               `json:"capture"`
	Recorders         []types.Recorder            `json:"recorders"`
	RecorderStatuses  map[string]recording.Status `json:"recorder_statuses"`
	SilenceThreshold  float64                     `json:"silence_threshold"`
	SilenceDurationMs int64                       `json:"silence_duration_ms"`
	SilenceRecoveryMs int64                       `json:"silence_recovery_ms"`
	SilenceWebhook    string                      `json:"silence_webhook,omitempty"`
	SilenceLogPath    string                      `json:"silence_log_path,omitempty"`
	GraphTenantID     string                      `json:"graph_tenant_id,omitempty"`
	GraphClientID     string                      `json:"graph_client_id,omitempty"`
	GraphFromAddress  string                      `json:"graph_from_address,omitempty"`
	GraphRecipients   string                      `json:"graph_recipients,omitempty"`
	RecordingAPIKey   string                      `json:"recording_api_key,omitempty"`
}

// buildStatus returns the current WebSocket status response.
func (m *Monitor) buildStatus() statusMessage {
	cfg := m.cfg.Snapshot()

	return statusMessage{
		Type:              "status",
		Capture:           m.engine.CaptureStatus(),
		Recorders:         redactRecorders(cfg.Recorders),
		RecorderStatuses:  m.engine.RecorderStatuses(),
		SilenceThreshold:  cfg.SilenceThreshold,
		SilenceDurationMs: cfg.SilenceDurationMs,
		SilenceRecoveryMs: cfg.SilenceRecoveryMs,
		SilenceWebhook:    cfg.WebhookURL,
		SilenceLogPath:    cfg.LogPath,
		GraphTenantID:     cfg.GraphTenantID,
		GraphClientID:     cfg.GraphClientID,
		GraphFromAddress:  cfg.GraphFromAddress,
		GraphRecipients:   cfg.GraphRecipients,
		RecordingAPIKey:   cfg.RecordingAPIKey,
	}
}

// redactRecorders strips S3 secrets from recorder configs before pushing them.
func redactRecorders(recorders []types.Recorder) []types.Recorder {
	out := make([]types.Recorder, len(recorders))
	for i, r := range recorders {
		r.S3SecretAccessKey = ""
		out[i] = r
	}
	return out
}

// --- Recording API ---

// apiKeyAuth returns middleware for API key authentication.
func (m *Monitor) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := m.cfg.RecordingAPIKey()
		if apiKey == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// writeRecordingResult writes a JSON response for the recording API.
func writeRecordingResult(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode recording API response", "error", err)
	}
}

// handleStartRecording handles POST /api/recordings/start?recorder_id=xxx.
func (m *Monitor) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recorderID := r.URL.Query().Get("recorder_id")
	if recorderID == "" {
		writeRecordingResult(w, http.StatusBadRequest, map[string]string{"error": "recorder_id is required"})
		return
	}

	if err := m.engine.StartRecorder(recorderID); err != nil {
		writeRecordingResult(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeRecordingResult(w, http.StatusOK, map[string]string{"status": "recording_started", "recorder_id": recorderID})
}

// handleStopRecording handles POST /api/recordings/stop?recorder_id=xxx.
func (m *Monitor) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recorderID := r.URL.Query().Get("recorder_id")
	if recorderID == "" {
		writeRecordingResult(w, http.StatusBadRequest, map[string]string{"error": "recorder_id is required"})
		return
	}

	if err := m.engine.StopRecorder(recorderID); err != nil {
		writeRecordingResult(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeRecordingResult(w, http.StatusOK, map[string]string{"status": "recording_stopped", "recorder_id": recorderID})
}
