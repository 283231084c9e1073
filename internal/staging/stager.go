package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/codibridge/codi/internal/channel"
	"github.com/codibridge/codi/internal/metrics"
)

// MaxFileBytes is the default cap on a single staged attachment.
const MaxFileBytes int64 = 200 * 1024 * 1024

// Stager downloads thread attachments into request workspaces.
type Stager struct {
	downloader channel.FileDownloader
	maxBytes   int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewStager(log *slog.Logger, downloader channel.FileDownloader, m *metrics.Metrics, maxBytes int64) *Stager {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = MaxFileBytes
	}
	return &Stager{
		downloader: downloader,
		maxBytes:   maxBytes,
		metrics:    m,
		logger:     log.With(slog.String("component", "stager")),
	}
}

// Stage downloads file into ws and returns the local path. Any failure is
// logged and reported as false so the caller can carry on with the other
// attachments; a partial file is never left behind.
func (s *Stager) Stage(ctx context.Context, ws *Workspace, file channel.FileRef) (string, bool) {
	log := s.logger.With(slog.String("file_id", file.ID), slog.String("name", file.Name))
	if file.URLPrivate == "" {
		log.Info("attachment has no download url")
		s.metrics.AttachmentStaged(metrics.StageTransportError)
		return "", false
	}
	path, err := ws.Reserve(file.Name)
	if err != nil {
		log.Warn("reserve attachment path failed", slog.Any("error", err))
		s.metrics.AttachmentStaged(metrics.StageWriteError)
		return "", false
	}
	if err := s.download(ctx, path, file.URLPrivate); err != nil {
		ws.Release(path)
		result := classify(err)
		var statusErr *channel.HTTPStatusError
		if errors.As(err, &statusErr) {
			log.Info("failed to download attachment", slog.Int("status", statusErr.StatusCode), slog.Any("error", err))
		} else {
			log.Info("attachment download error", slog.String("result", result), slog.Any("error", err))
		}
		s.metrics.AttachmentStaged(result)
		return "", false
	}
	log.Info("attachment downloaded", slog.String("path", path))
	s.metrics.AttachmentStaged(metrics.StageOK)
	return path, true
}

func (s *Stager) download(ctx context.Context, path, url string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &writeError{err: fmt.Errorf("create file: %w", err)}
	}
	w := &limitedWriter{w: f, remaining: s.maxBytes}
	dlErr := s.downloader.Download(ctx, url, w)
	closeErr := f.Close()
	switch {
	case w.err != nil:
		return &writeError{err: w.err}
	case dlErr != nil:
		return dlErr
	case closeErr != nil:
		return &writeError{err: fmt.Errorf("close file: %w", closeErr)}
	}
	return nil
}

func classify(err error) string {
	var statusErr *channel.HTTPStatusError
	var wErr *writeError
	switch {
	case errors.As(err, &statusErr):
		return metrics.StageHTTPError
	case errors.As(err, &wErr):
		return metrics.StageWriteError
	default:
		return metrics.StageTransportError
	}
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// limitedWriter records the first local failure so it can be told apart from
// a transport error surfaced by the downloader.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	err       error
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if int64(len(p)) > l.remaining {
		l.err = fmt.Errorf("%w: max %d bytes", ErrFileTooLarge, l.remaining)
		return 0, l.err
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	if err != nil {
		l.err = fmt.Errorf("write file: %w", err)
		return n, l.err
	}
	return n, nil
}
