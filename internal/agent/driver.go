package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codibridge/codi/internal/metrics"
	"github.com/codibridge/codi/internal/staging"
)

const defaultCloseTimeout = 30 * time.Second

// Driver runs the open, generate, persist, close sequence for one request.
type Driver struct {
	service      Service
	metrics      *metrics.Metrics
	logger       *slog.Logger
	closeTimeout time.Duration
}

func NewDriver(log *slog.Logger, service Service, m *metrics.Metrics) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		service:      service,
		metrics:      m,
		logger:       log.With(slog.String("component", "agent")),
		closeTimeout: defaultCloseTimeout,
	}
}

// Run submits text and files to a fresh session and saves the produced files
// into outDir. The session is closed on every path once it was opened, even
// when ctx is already done. A close failure after a successful generate is
// returned together with the populated Response.
func (d *Driver) Run(ctx context.Context, text string, files []string, outDir string) (resp Response, err error) {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return Response{}, ErrNoTask
	}

	inputs := make([]InputFile, 0, len(files))
	for _, path := range files {
		inputs = append(inputs, InputFile{Path: path, Name: filepath.Base(path)})
	}

	started := time.Now()
	session, err := d.service.Open(ctx)
	if err != nil {
		return Response{}, &Error{Stage: StageOpen, Err: err}
	}
	d.logger.Debug("session opened", slog.Int("files", len(inputs)))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.closeTimeout)
		defer cancel()
		closeErr := session.Close(closeCtx)
		d.metrics.AgentSession(time.Since(started))
		if closeErr == nil {
			return
		}
		d.logger.Warn("close session failed", slog.Any("error", closeErr))
		if err == nil {
			err = &Error{Stage: StageClose, Err: closeErr}
		}
	}()

	reply, err := session.Generate(ctx, text, inputs)
	if err != nil {
		return Response{}, &Error{Stage: StageGenerate, Err: err}
	}

	saved, err := d.persist(ctx, reply.Files, outDir)
	if err != nil {
		return Response{}, &Error{Stage: StagePersist, Err: err}
	}
	return Response{Content: reply.Content, Files: saved}, nil
}

func (d *Driver) persist(ctx context.Context, files []OutputFile, outDir string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	saved := make([]string, 0, len(files))
	used := map[string]struct{}{}
	for _, file := range files {
		name := uniqueName(staging.SafeName(file.Name()), used)
		path, err := staging.Join(outDir, name)
		if err != nil {
			return saved, err
		}
		if err := writeFile(ctx, path, file); err != nil {
			return saved, fmt.Errorf("save %s: %w", name, err)
		}
		d.logger.Debug("saved agent file", slog.String("path", path))
		saved = append(saved, path)
	}
	return saved, nil
}

func writeFile(ctx context.Context, path string, file OutputFile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := file.WriteTo(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func uniqueName(name string, used map[string]struct{}) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, ok := used[candidate]; !ok {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
}
