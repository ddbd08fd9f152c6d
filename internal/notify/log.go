package notify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
	"github.com/oszuidwest/zwfm-audiotap/internal/util"
)

// LogSilenceStart records the beginning of a silence event.
func LogSilenceStart(logPath string, levelDB, threshold float64) error {
	return appendLogEntry(logPath, &types.SilenceLogEntry{
		Timestamp:   util.TimestampUTC(),
		Event:       "silence_start",
		LevelDB:     levelDB,
		ThresholdDB: threshold,
	})
}

// LogSilenceEnd records the end of a silence event.
func LogSilenceEnd(logPath string, silenceDurationMs int64, levelDB, threshold float64) error {
	return appendLogEntry(logPath, &types.SilenceLogEntry{
		Timestamp:   util.TimestampUTC(),
		Event:       "silence_end",
		DurationMs:  silenceDurationMs,
		LevelDB:     levelDB,
		ThresholdDB: threshold,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &types.SilenceLogEntry{
		Timestamp: util.TimestampUTC(),
		Event:     "test",
	})
}

// ReadSilenceLog returns the last n entries from the silence log, newest first.
func ReadSilenceLog(logPath string, n int) ([]types.SilenceLogEntry, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.SilenceLogEntry{}, nil
		}
		return nil, util.WrapError("open log file", err)
	}
	defer util.CloseQuietly(f, "silence log file")

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, util.WrapError("read log file", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	entries := make([]types.SilenceLogEntry, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var entry types.SilenceLogEntry
		if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *types.SilenceLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.CloseQuietly(f, "silence log file")

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
