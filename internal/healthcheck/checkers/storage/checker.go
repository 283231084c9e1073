package storagechecker

import (
	"context"
	"os"

	"github.com/codibridge/codi/internal/healthcheck"
)

const checkTypeStorage = "storage.data_root"

// Checker verifies the data root accepts new files.
type Checker struct {
	dataRoot string
}

func NewChecker(dataRoot string) *Checker {
	return &Checker{dataRoot: dataRoot}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	item := healthcheck.CheckResult{
		ID:       checkTypeStorage,
		Type:     checkTypeStorage,
		Status:   healthcheck.StatusOK,
		Summary:  "Data root is writable.",
		Metadata: map[string]any{"path": c.dataRoot},
	}
	if err := probe(c.dataRoot); err != nil {
		item.Status = healthcheck.StatusError
		item.Summary = "Data root is not writable."
		item.Detail = err.Error()
	}
	return []healthcheck.CheckResult{item}
}

func probe(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
