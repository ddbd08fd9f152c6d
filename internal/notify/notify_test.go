package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

func TestParseRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"},
		ParseRecipients("a@example.com, b@example.com"))
	assert.Equal(t, []string{"a@example.com"}, ParseRecipients(" a@example.com ,, "))
	assert.Nil(t, ParseRecipients(""))
}

func TestGraphConfigValidation(t *testing.T) {
	cfg := &types.GraphConfig{}
	assert.Error(t, ValidateConfig(cfg))
	assert.False(t, IsConfigured(cfg))

	cfg = &types.GraphConfig{
		TenantID:     "12345678-1234-1234-1234-123456789abc",
		ClientID:     "87654321-4321-4321-4321-cba987654321",
		ClientSecret: "secret",
		FromAddress:  "alerts@example.com",
		Recipients:   "ops@example.com",
	}
	assert.NoError(t, ValidateConfig(cfg))
	assert.True(t, IsConfigured(cfg))

	// Non-GUID tenant is rejected in strict validation.
	cfg.TenantID = "not-a-guid"
	assert.Error(t, ValidateConfig(cfg))
}

func TestSendSilenceWebhook(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, SendSilenceWebhook(srv.URL, "Spotify", -52.5, -40))
	assert.Equal(t, "silence_detected", got.Event)
	assert.Equal(t, "Spotify", got.TargetName)
	assert.InDelta(t, -52.5, got.LevelDB, 0.001)
	assert.NotEmpty(t, got.Timestamp)
}

func TestSendWebhookFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, SendRecoveryWebhook(srv.URL, "Spotify", 12000, -20, -40))
}

func TestSendWebhookSkipsWhenUnconfigured(t *testing.T) {
	assert.NoError(t, SendSilenceWebhook("", "Spotify", -50, -40))
}

func TestSilenceLogEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.log")

	require.NoError(t, LogSilenceStart(path, -55.2, -40))
	require.NoError(t, LogSilenceEnd(path, 16000, -18.1, -40))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := []types.SilenceLogEntry{}
	for _, raw := range splitLines(data) {
		var entry types.SilenceLogEntry
		require.NoError(t, json.Unmarshal(raw, &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "silence_start", lines[0].Event)
	assert.Equal(t, "silence_end", lines[1].Event)
	assert.Equal(t, int64(16000), lines[1].DurationMs)
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out
}
