// Package util provides small helpers shared across the capture engine.
package util

import (
	"fmt"
	"io"
	"log/slog"
)

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// CloseQuietly closes c and logs any error with the given label.
func CloseQuietly(c io.Closer, label string) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "what", label, "error", err)
	}
}

// LogNotifyResult executes a notification function and logs the result.
func LogNotifyResult(fn func() error, notifyType string) {
	if err := fn(); err != nil {
		slog.Error("notification failed", "type", notifyType, "error", err)
	} else {
		slog.Info("notification sent", "type", notifyType)
	}
}
