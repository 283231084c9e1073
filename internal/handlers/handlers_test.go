package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/codibridge/codi/internal/healthcheck"
	"github.com/codibridge/codi/internal/metrics"
)

type staticChecker []healthcheck.CheckResult

func (s staticChecker) ListChecks(context.Context) []healthcheck.CheckResult { return s }

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestPing(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewPingHandler(nil).Register(e)

	rec := serve(e, http.MethodGet, "/ping")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected ping response: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(e, http.MethodHead, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected head status: %d", rec.Code)
	}
}

func TestHealthReportsChecks(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewHealthHandler(nil,
		staticChecker{{ID: "a", Status: healthcheck.StatusOK}},
		staticChecker{{ID: "b", Status: healthcheck.StatusError, Summary: "down"}},
	).Register(e)

	rec := serve(e, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != healthcheck.StatusError || len(body.Checks) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthOK(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewHealthHandler(nil, staticChecker{{ID: "a", Status: healthcheck.StatusWarn}}).Register(e)
	if rec := serve(e, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("warn should still be 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.MentionHandled(metrics.OutcomeOK)
	e := echo.New()
	NewMetricsHandler(m).Register(e)

	rec := serve(e, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `codi_mentions_total{outcome="ok"} 1`) {
		t.Fatalf("missing counter in exposition:\n%s", rec.Body.String())
	}
}
