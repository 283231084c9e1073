package channelchecker

import (
	"context"
	"log/slog"

	"github.com/codibridge/codi/internal/channel"
	"github.com/codibridge/codi/internal/healthcheck"
)

const checkTypeChannelConnection = "channel.connection"

// ConnectionObserver exposes the live platform connection, nil before start.
type ConnectionObserver interface {
	Connection() channel.Connection
}

// Checker evaluates the platform connection.
type Checker struct {
	logger   *slog.Logger
	name     string
	observer ConnectionObserver
}

// NewChecker creates a connection health checker labelled with name.
func NewChecker(log *slog.Logger, name string, observer ConnectionObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		name:     name,
		observer: observer,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	item := healthcheck.CheckResult{
		ID:       checkTypeChannelConnection + "." + c.name,
		Type:     checkTypeChannelConnection,
		Status:   healthcheck.StatusError,
		Summary:  "Channel " + c.name + " connection is down.",
		Metadata: map[string]any{"channel": c.name},
	}
	if c.observer == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable", slog.String("channel", c.name))
		item.Status = healthcheck.StatusWarn
		item.Summary = "Channel checker service is not available."
		item.Detail = "connection observer is nil"
		return []healthcheck.CheckResult{item}
	}
	conn := c.observer.Connection()
	switch {
	case conn == nil:
		item.Status = healthcheck.StatusWarn
		item.Summary = "Channel " + c.name + " is not connected yet."
	case conn.Running():
		item.Status = healthcheck.StatusOK
		item.Summary = "Channel " + c.name + " is connected."
	}
	if conn != nil {
		item.Metadata["running"] = conn.Running()
	}
	return []healthcheck.CheckResult{item}
}
