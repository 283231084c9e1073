package healthcheck

import (
	"context"
	"testing"
)

type staticChecker []CheckResult

func (s staticChecker) ListChecks(context.Context) []CheckResult { return s }

func TestCollectAndOverall(t *testing.T) {
	t.Parallel()

	results := Collect(context.Background(),
		staticChecker{{ID: "a", Status: StatusOK}},
		nil,
		staticChecker{{ID: "b", Status: StatusWarn}},
	)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if got := Overall(results); got != StatusWarn {
		t.Fatalf("expected warn, got %s", got)
	}
	results = append(results, CheckResult{ID: "c", Status: StatusError})
	if got := Overall(results); got != StatusError {
		t.Fatalf("expected error, got %s", got)
	}
	if got := Overall(nil); got != StatusOK {
		t.Fatalf("expected ok for no checks, got %s", got)
	}
}
