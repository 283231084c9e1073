package conversation

import (
	"context"
	"log/slog"

	"github.com/codibridge/codi/internal/channel"
	"github.com/codibridge/codi/internal/staging"
)

// Stager downloads one attachment into a request workspace.
type Stager interface {
	Stage(ctx context.Context, ws *staging.Workspace, file channel.FileRef) (string, bool)
}

// Reconstructor walks thread history to find the task for the agent.
type Reconstructor struct {
	normalizer *Normalizer
	stager     Stager
	order      ScanOrder
	logger     *slog.Logger
}

func NewReconstructor(log *slog.Logger, normalizer *Normalizer, stager Stager, order ScanOrder) *Reconstructor {
	if log == nil {
		log = slog.Default()
	}
	if order != ScanNewestFirst {
		order = ScanOldestFirst
	}
	return &Reconstructor{
		normalizer: normalizer,
		stager:     stager,
		order:      order,
		logger:     log.With(slog.String("component", "reconstructor")),
	}
}

// Reconstruct scans history in the configured order. Attachments of every
// visited message are staged into ws before that message is normalized, and
// the scan stops at the first actionable message. history must already
// exclude the message being replied under.
func (r *Reconstructor) Reconstruct(ctx context.Context, ws *staging.Workspace, history []channel.ThreadMessage, botUserID string) (Result, error) {
	var result Result
	for i := range history {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		msg := history[i]
		if r.order == ScanNewestFirst {
			msg = history[len(history)-1-i]
		}
		if msg.HasFiles() && r.stager != nil && ws != nil {
			for _, file := range msg.Files {
				if path, ok := r.stager.Stage(ctx, ws, file); ok {
					result.Files = append(result.Files, path)
				}
			}
		}
		turn, ok := r.normalizer.Normalize(ctx, msg, botUserID)
		if !ok {
			continue
		}
		result.Text = turn.Text
		result.HasText = true
		r.logger.Debug("selected message",
			slog.String("ts", msg.Timestamp),
			slog.String("role", string(turn.Role)),
			slog.Int("files", len(result.Files)),
		)
		return result, nil
	}
	r.logger.Debug("no actionable message", slog.Int("messages", len(history)), slog.Int("files", len(result.Files)))
	return result, nil
}
