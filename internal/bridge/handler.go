// Package bridge handles a mention end to end: it reads the thread, runs the
// agent and writes the result back.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codibridge/codi/internal/agent"
	"github.com/codibridge/codi/internal/channel"
	"github.com/codibridge/codi/internal/conversation"
	"github.com/codibridge/codi/internal/metrics"
	"github.com/codibridge/codi/internal/staging"
)

const (
	DefaultWaitMessage   = "Working on it! 🧪"
	DefaultTimeout       = 10 * time.Minute
	DefaultMaxConcurrent = 4
	defaultReplyTimeout  = 30 * time.Second
)

// Reconstructor selects the task from thread history.
type Reconstructor interface {
	Reconstruct(ctx context.Context, ws *staging.Workspace, history []channel.ThreadMessage, botUserID string) (conversation.Result, error)
}

// Runner runs one agent session.
type Runner interface {
	Run(ctx context.Context, text string, files []string, outDir string) (agent.Response, error)
}

// Options tunes a Handler. Zero values fall back to defaults.
type Options struct {
	BotUserID     string
	DataRoot      string
	WaitMessage   string
	Timeout       time.Duration
	MaxConcurrent int
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Threads       channel.ThreadReader
	Responder     channel.Responder
	Reconstructor Reconstructor
	Runner        Runner
	Metrics       *metrics.Metrics
}

type Handler struct {
	deps         Deps
	opts         Options
	sem          chan struct{}
	replyTimeout time.Duration
	newID        func() string
	logger       *slog.Logger
}

func NewHandler(log *slog.Logger, deps Deps, opts Options) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.WaitMessage) == "" {
		opts.WaitMessage = DefaultWaitMessage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Handler{
		deps:         deps,
		opts:         opts,
		sem:          make(chan struct{}, opts.MaxConcurrent),
		replyTimeout: defaultReplyTimeout,
		newID:        uuid.NewString,
		logger:       log.With(slog.String("component", "bridge")),
	}
}

// HandleMention answers one mention event. Failures after the thread is known
// are reported into the thread; the returned error is for logging only.
func (h *Handler) HandleMention(ctx context.Context, evt channel.MentionEvent) error {
	channelID := strings.TrimSpace(evt.Channel)
	threadTS := evt.ThreadRoot()
	if channelID == "" || threadTS == "" {
		h.deps.Metrics.MentionHandled(metrics.OutcomeError)
		return fmt.Errorf("mention %q has no channel or timestamp", evt.EventID)
	}

	requestID := h.newID()
	log := h.logger.With(
		slog.String("request_id", requestID),
		slog.String("channel", channelID),
		slog.String("thread_ts", threadTS),
	)
	r := &request{
		Handler:   h,
		log:       log,
		id:        requestID,
		channelID: channelID,
		threadTS:  threadTS,
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	outcome, err := r.run(reqCtx)
	if err != nil {
		log.Error("mention failed", slog.Any("error", err))
		if reportErr := r.reply(ctx, ErrorMessage(err, h.opts.Timeout)); reportErr != nil {
			log.Error("report error failed", slog.Any("error", reportErr))
			err = errors.Join(err, reportErr)
		}
		h.deps.Metrics.MentionHandled(metrics.OutcomeError)
		return err
	}
	h.deps.Metrics.MentionHandled(outcome)
	log.Info("mention handled", slog.String("outcome", outcome))
	return nil
}

type request struct {
	*Handler
	log           *slog.Logger
	id            string
	channelID     string
	threadTS      string
	placeholderTS string
	// answered is set once the agent reply replaced the placeholder.
	answered bool
}

func (r *request) run(ctx context.Context) (string, error) {
	ts, err := r.deps.Responder.Post(ctx, r.channelID, r.threadTS, r.opts.WaitMessage)
	if err != nil {
		return "", fmt.Errorf("post placeholder: %w", err)
	}
	r.placeholderTS = ts

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("wait for a free slot: %w", ctx.Err())
	}

	ws, err := staging.NewWorkspace(r.opts.DataRoot, r.id)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			r.log.Warn("remove workspace failed", slog.Any("error", err))
		}
	}()

	history, err := r.deps.Threads.ThreadReplies(ctx, r.channelID, r.threadTS)
	if err != nil {
		return "", fmt.Errorf("read thread: %w", err)
	}
	prior := conversation.WithoutNewest(history, r.placeholderTS)

	result, err := r.deps.Reconstructor.Reconstruct(ctx, ws, prior, r.opts.BotUserID)
	if err != nil {
		return "", fmt.Errorf("reconstruct thread: %w", err)
	}
	r.log.Debug("thread reconstructed",
		slog.Int("messages", len(prior)),
		slog.Bool("has_text", result.HasText),
		slog.Int("files", len(result.Files)),
	)

	resp, err := r.deps.Runner.Run(ctx, result.Text, result.Files, ws.OutDir())
	if errors.Is(err, agent.ErrNoTask) {
		if err := r.reply(ctx, noTaskMessage); err != nil {
			return "", err
		}
		return metrics.OutcomeNoTask, nil
	}
	if stage, ok := agent.StageOf(err); ok && stage == agent.StageClose {
		r.log.Warn("agent session did not close cleanly", slog.Any("error", err))
		err = nil
	}
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		text = emptyReplyText
	}
	if err := r.deps.Responder.Update(ctx, r.channelID, r.placeholderTS, text); err != nil {
		return "", fmt.Errorf("update reply: %w", err)
	}
	r.answered = true
	var uploadErrs []error
	for _, path := range resp.Files {
		if err := r.deps.Responder.Upload(ctx, r.channelID, r.threadTS, path); err != nil {
			r.log.Warn("upload agent file failed", slog.String("path", path), slog.Any("error", err))
			uploadErrs = append(uploadErrs, fmt.Errorf("upload %s: %w", filepath.Base(path), err))
		}
	}
	if err := errors.Join(uploadErrs...); err != nil {
		return "", err
	}
	return metrics.OutcomeOK, nil
}

// reply replaces the placeholder with text, or posts text into the thread
// when there is no placeholder left to replace. It uses its own deadline so a
// request that ran out of time can still be answered.
func (r *request) reply(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.replyTimeout)
	defer cancel()
	if r.placeholderTS != "" && !r.answered {
		err := r.deps.Responder.Update(ctx, r.channelID, r.placeholderTS, text)
		if err == nil {
			return nil
		}
		r.log.Warn("update placeholder failed, posting instead", slog.Any("error", err))
	}
	_, err := r.deps.Responder.Post(ctx, r.channelID, r.threadTS, text)
	return err
}
