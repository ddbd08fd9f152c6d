package recording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-audiotap/internal/events"
)

// MaxUploadRetryAge is how long a failed upload is retried before being abandoned.
const MaxUploadRetryAge = 24 * time.Hour

// uploadTimeout bounds a single S3 put.
const uploadTimeout = 5 * time.Minute

// uploadRequest is a queued file upload.
type uploadRequest struct {
	filePath string
	s3Key    string
}

// pendingUpload is a failed upload awaiting retry at the next hour boundary.
type pendingUpload struct {
	filePath   string
	s3Key      string
	firstTry   time.Time
	retryCount int
	lastError  string
}

// queueForUpload submits a finalized file to the upload worker. Local-only
// recorders keep the file in place and skip the queue entirely.
func (r *WavRecorder) queueForUpload(filePath string) {
	cfg := r.Config()
	if !cfg.UsesS3() {
		slog.Info("recording finalized", "id", r.id, "file", filepath.Base(filePath))
		return
	}

	filename := filepath.Base(filePath)
	s3Key := r.generateS3Key(filename)

	r.logUploadEvent(events.EventUploadQueued, filename, s3Key, 0, "")

	select {
	case r.uploadQueue <- uploadRequest{filePath: filePath, s3Key: s3Key}:
	default:
		slog.Error("upload queue full, deferring to retry queue", "id", r.id, "file", filename)
		r.addToRetryQueue(pendingUpload{
			filePath:  filePath,
			s3Key:     s3Key,
			firstTry:  time.Now(),
			lastError: "upload queue full",
		})
	}
}

// uploadWorker processes queued uploads. On stop it drains the queue
// before exiting so finalized files are not stranded.
func (r *WavRecorder) uploadWorker() {
	defer r.uploadWg.Done()

	for {
		select {
		case req := <-r.uploadQueue:
			r.handleUpload(req)
		case <-r.uploadStopCh:
			for {
				select {
				case req := <-r.uploadQueue:
					r.handleUpload(req)
				default:
					return
				}
			}
		}
	}
}

// handleUpload performs one upload, moving failures to the retry queue.
func (r *WavRecorder) handleUpload(req uploadRequest) {
	filename := filepath.Base(req.filePath)

	if err := r.uploadFile(req.filePath, req.s3Key); err != nil {
		slog.Error("upload failed", "id", r.id, "file", filename, "error", err)
		r.logUploadEvent(events.EventUploadFailed, filename, req.s3Key, 0, err.Error())
		r.addToRetryQueue(pendingUpload{
			filePath:  req.filePath,
			s3Key:     req.s3Key,
			firstTry:  time.Now(),
			lastError: err.Error(),
		})
		return
	}

	slog.Info("upload completed", "id", r.id, "file", filename, "key", req.s3Key)
	r.logUploadEvent(events.EventUploadCompleted, filename, req.s3Key, 0, "")
	r.removeAfterUpload(req.filePath)
}

// uploadFile puts a single file to S3.
func (r *WavRecorder) uploadFile(filePath, s3Key string) error {
	client := r.S3Client()
	if client == nil {
		return fmt.Errorf("S3 not configured")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	cfg := r.Config()

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.S3Bucket),
		Key:         aws.String(s3Key),
		Body:        file,
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// removeAfterUpload deletes the local copy after a successful upload.
// Recorders storing both locally and in S3 keep the file for retention cleanup.
func (r *WavRecorder) removeAfterUpload(filePath string) {
	cfg := r.Config()
	if cfg.UsesLocal() {
		return
	}
	if err := os.Remove(filePath); err != nil {
		slog.Warn("failed to remove uploaded file", "id", r.id, "file", filepath.Base(filePath), "error", err)
	}
}

// addToRetryQueue records a failed upload for retry at the next hour boundary.
func (r *WavRecorder) addToRetryQueue(p pendingUpload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryQueue = append(r.retryQueue, p)
}

// processRetryQueue retries failed uploads, abandoning entries older than
// MaxUploadRetryAge. Called at each hourly rotation.
func (r *WavRecorder) processRetryQueue() {
	r.mu.Lock()
	queue := r.retryQueue
	r.retryQueue = nil
	r.mu.Unlock()

	if len(queue) == 0 {
		return
	}

	slog.Info("processing upload retry queue", "id", r.id, "pending", len(queue))

	for _, p := range queue {
		if time.Since(p.firstTry) > MaxUploadRetryAge {
			r.abandonUpload(p)
			continue
		}
		r.retryUpload(p)
	}
}

// retryUpload attempts one retry, requeueing on failure.
func (r *WavRecorder) retryUpload(p pendingUpload) {
	filename := filepath.Base(p.filePath)
	p.retryCount++

	r.logUploadEvent(events.EventUploadRetry, filename, p.s3Key, p.retryCount, "")

	if err := r.uploadFile(p.filePath, p.s3Key); err != nil {
		slog.Warn("upload retry failed", "id", r.id, "file", filename, "attempt", p.retryCount, "error", err)
		p.lastError = err.Error()
		r.addToRetryQueue(p)
		return
	}

	slog.Info("upload retry succeeded", "id", r.id, "file", filename, "attempt", p.retryCount)
	r.logUploadEvent(events.EventUploadCompleted, filename, p.s3Key, p.retryCount, "")
	r.removeAfterUpload(p.filePath)
}

// abandonUpload gives up on an upload and notifies via the abandon callback.
// The local file is kept so the recording is not lost.
func (r *WavRecorder) abandonUpload(p pendingUpload) {
	filename := filepath.Base(p.filePath)

	slog.Error("abandoning upload after retry window expired",
		"id", r.id, "file", filename, "retries", p.retryCount, "last_error", p.lastError)
	r.logUploadEvent(events.EventUploadAbandoned, filename, p.s3Key, p.retryCount, p.lastError)

	if r.abandonFunc != nil {
		r.abandonFunc(r.Config().Name, filename, p.s3Key, p.retryCount, p.lastError)
	}
}

// logUploadEvent writes an upload event to the event log if one is attached.
func (r *WavRecorder) logUploadEvent(event events.EventType, filename, s3Key string, retryCount int, errMsg string) {
	if r.eventLogger == nil {
		return
	}
	if err := r.eventLogger.Log(&events.CaptureEvent{
		Event:        event,
		RecorderName: r.Config().Name,
		Filename:     filename,
		S3Key:        s3Key,
		RetryCount:   retryCount,
		Error:        errMsg,
	}); err != nil {
		slog.Warn("failed to log upload event", "error", err)
	}
}
