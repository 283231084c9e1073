package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/codibridge/codi/internal/healthcheck"
)

// HealthHandler reports the runtime checks. Any failing check turns the
// response into a 503.
type HealthHandler struct {
	logger   *slog.Logger
	checkers []healthcheck.Checker
}

type healthResponse struct {
	Status string                    `json:"status"`
	Checks []healthcheck.CheckResult `json:"checks"`
}

func NewHealthHandler(log *slog.Logger, checkers ...healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger:   log.With(slog.String("handler", "health")),
		checkers: checkers,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	checks := healthcheck.Collect(c.Request().Context(), h.checkers...)
	status := healthcheck.Overall(checks)
	code := http.StatusOK
	if status == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
		h.logger.Warn("health check failing", slog.Int("checks", len(checks)))
	}
	return c.JSON(code, healthResponse{Status: status, Checks: checks})
}
