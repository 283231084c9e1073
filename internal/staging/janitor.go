package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes request workspaces that outlived max age,
// which only happens when a request was interrupted before cleanup.
type Janitor struct {
	dir    string
	maxAge time.Duration
	spec   string
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// NewJanitor validates spec (standard five-field cron or a descriptor such as
// "@every 15m") and prepares a janitor for <dataRoot>/requests.
func NewJanitor(log *slog.Logger, dataRoot string, maxAge time.Duration, spec string) (*Janitor, error) {
	if log == nil {
		log = slog.Default()
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive")
	}
	base, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", spec, err)
	}
	return &Janitor{
		dir:    filepath.Join(base, requestsDir),
		maxAge: maxAge,
		spec:   spec,
		cron:   cron.New(cron.WithParser(parser)),
		logger: log.With(slog.String("component", "janitor")),
		now:    time.Now,
	}, nil
}

// Start runs one sweep immediately and then on the schedule.
func (j *Janitor) Start() error {
	if _, err := j.Sweep(); err != nil {
		j.logger.Warn("initial sweep failed", slog.Any("error", err))
	}
	if _, err := j.cron.AddFunc(j.spec, func() {
		if _, err := j.Sweep(); err != nil {
			j.logger.Warn("sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep or ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes workspaces whose modification time is older than max age and
// returns how many were removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspaces: %w", err)
	}
	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("remove stale workspace failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("removed stale workspaces", slog.Int("count", removed))
	}
	return removed, nil
}
