package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// cleanupHour is the local hour at which retention cleanup runs daily.
const cleanupHour = 3

// datePattern matches the date portion of generated filenames.
var datePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})-\d{2}-\d{2}\.wav$`)

// startCleanupScheduler launches the daily retention cleanup loop.
func (m *Manager) startCleanupScheduler() {
	m.cleanupWg.Add(1)
	go func() {
		defer m.cleanupWg.Done()
		for {
			next := nextCleanupTime(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				m.runCleanup()
			case <-m.cleanupStopCh:
				timer.Stop()
				return
			}
		}
	}()
}

// nextCleanupTime returns the next occurrence of the cleanup hour.
func nextCleanupTime(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// runCleanup applies retention to every recorder's storage.
func (m *Manager) runCleanup() {
	m.mu.RLock()
	recs := m.snapshotRecordersLocked()
	m.mu.RUnlock()

	for _, rec := range recs {
		cfg := rec.Config()
		retention := cfg.RetentionDays
		if retention <= 0 {
			retention = types.DefaultRetentionDays
		}
		cutoff := time.Now().AddDate(0, 0, -retention)

		if cfg.UsesLocal() {
			rec.cleanupLocalFiles(cutoff)
		}
		if cfg.UsesS3() {
			rec.cleanupS3Files(cutoff)
		}
	}
}

// cleanupLocalFiles removes local recordings older than cutoff.
func (r *WavRecorder) cleanupLocalFiles(cutoff time.Time) {
	dir := r.Config().LocalPath
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cleanup: failed to read recording directory", "id", r.id, "dir", dir, "error", err)
		}
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := extractDateFromFilename(entry.Name())
		if !ok || !date.Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if r.IsCurrentFile(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("cleanup: failed to remove file", "id", r.id, "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("cleanup: removed expired local recordings", "id", r.id, "count", removed)
	}
}

// cleanupS3Files removes S3 recordings older than cutoff.
func (r *WavRecorder) cleanupS3Files(cutoff time.Time) {
	client := r.S3Client()
	if client == nil {
		return
	}

	cfg := r.Config()
	prefix := r.generateS3Key("")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	removed := 0
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.S3Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Warn("cleanup: failed to list S3 objects", "id", r.id, "error", err)
			return
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			date, ok := extractDateFromFilename(filepath.Base(key))
			if !ok || !date.Before(cutoff) {
				continue
			}
			_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(cfg.S3Bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				slog.Warn("cleanup: failed to delete S3 object", "id", r.id, "key", key, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		slog.Info("cleanup: removed expired S3 recordings", "id", r.id, "count", removed)
	}
}

// extractDateFromFilename parses the recording date out of a generated filename.
func extractDateFromFilename(name string) (time.Time, bool) {
	match := datePattern.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation("2006-01-02", match[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
