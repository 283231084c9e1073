package storagechecker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/codibridge/codi/internal/healthcheck"
)

func TestCheckerWritableRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "data")
	items := NewChecker(root).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusOK {
		t.Fatalf("expected ok, got %+v", items)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}
}

func TestCheckerRootIsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	items := NewChecker(path).ListChecks(context.Background())
	if items[0].Status != healthcheck.StatusError {
		t.Fatalf("expected error, got %s", items[0].Status)
	}
}
